// Package ipc implements the Unix-domain-socket stream transport
// adapter. It is semantically identical to tcp, differing only
// in how the net.Conn/net.Listener is obtained: a filesystem path
// instead of a host:port, with stale-socket cleanup on listen.
package ipc

import (
	"context"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"github.com/adam-ikari/uvrpc/address"
	"github.com/adam-ikari/uvrpc/errs"
	"github.com/adam-ikari/uvrpc/frame"
	"github.com/adam-ikari/uvrpc/internal/netutil"
	"github.com/adam-ikari/uvrpc/internal/streamconn"
	"github.com/adam-ikari/uvrpc/transport"
)

// Adapter implements transport.Adapter over net.UnixConn.
type Adapter struct {
	deps transport.Deps

	mu       sync.Mutex
	listener *netutil.StoppableListener
	peers    map[transport.PeerID]*streamconn.Peer
	nextID   uint64
}

func New(deps transport.Deps) *Adapter {
	return &Adapter{deps: deps, peers: make(map[transport.PeerID]*streamconn.Peer)}
}

func (a *Adapter) allocID() transport.PeerID {
	return transport.PeerID(atomic.AddUint64(&a.nextID, 1))
}

func (a *Adapter) Listen(ctx context.Context, addr address.Address) error {
	if addr.Transport != address.IPC {
		return errs.New(errs.InvalidArgument, "ipc: address %q is not an ipc:// address", addr)
	}

	// Remove any stale socket file from a previous, unclean shutdown.
	if fi, err := os.Stat(addr.Path); err == nil && fi.Mode()&os.ModeSocket != 0 {
		os.Remove(addr.Path)
	}

	ln, err := net.Listen("unix", addr.Path)
	if err != nil {
		if os.IsPermission(err) {
			return errs.Wrap(errs.Transport, err, "ipc: permission denied listening on %s", addr.Path)
		}
		return errs.Wrap(errs.Transport, err, "ipc: listen %s", addr.Path)
	}
	sl, err := netutil.New(ln)
	if err != nil {
		ln.Close()
		return errs.Wrap(errs.Transport, err, "ipc: wrap listener")
	}

	a.mu.Lock()
	a.listener = sl
	a.mu.Unlock()

	go a.acceptLoop(sl)
	return nil
}

func (a *Adapter) acceptLoop(sl *netutil.StoppableListener) {
	for {
		conn, err := sl.Accept()
		if err != nil {
			return
		}
		a.adopt(conn)
	}
}

func (a *Adapter) Connect(ctx context.Context, addr address.Address) error {
	if addr.Transport != address.IPC {
		return errs.New(errs.InvalidArgument, "ipc: address %q is not an ipc:// address", addr)
	}
	go func() {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "unix", addr.Path)
		if err != nil {
			a.deps.Loop.Post(func() {
				a.deps.Callbacks.OnConnect(0, errs.Wrap(errs.Transport, err, "ipc: connect %s", addr.Path))
			})
			return
		}
		a.adopt(conn)
	}()
	return nil
}

func (a *Adapter) adopt(conn net.Conn) {
	id := a.allocID()
	peer := streamconn.NewPeer(conn)

	a.mu.Lock()
	a.peers[id] = peer
	a.mu.Unlock()

	a.deps.Loop.Post(func() { a.deps.Callbacks.OnConnect(id, nil) })

	go streamconn.ReadLoop(a.deps.Loop, conn,
		func(f *frame.Frame) { a.deps.Callbacks.OnRecv(id, f) },
		func(err error) { a.disconnect(id, err) },
	)
}

func (a *Adapter) disconnect(id transport.PeerID, err error) {
	a.mu.Lock()
	peer, ok := a.peers[id]
	if ok {
		delete(a.peers, id)
	}
	a.mu.Unlock()
	if !ok {
		return
	}
	peer.Close()
	a.deps.Callbacks.OnDisconnect(id, errs.Wrap(errs.Transport, err, "ipc: connection closed"))
}

func (a *Adapter) Send(peer transport.PeerID, f *frame.Frame) error {
	a.mu.Lock()
	p, ok := a.peers[peer]
	a.mu.Unlock()
	if !ok {
		return errs.New(errs.Disconnected, "ipc: unknown peer %d", peer)
	}
	return p.Enqueue(f)
}

func (a *Adapter) ClosePeer(peer transport.PeerID) error {
	a.mu.Lock()
	p, ok := a.peers[peer]
	if ok {
		delete(a.peers, peer)
	}
	a.mu.Unlock()
	if !ok {
		return nil
	}
	err := p.Close()
	a.deps.Loop.Post(func() { a.deps.Callbacks.OnDisconnect(peer, nil) })
	return err
}

func (a *Adapter) Close() error {
	a.mu.Lock()
	sl := a.listener
	peers := a.peers
	a.peers = make(map[transport.PeerID]*streamconn.Peer)
	a.mu.Unlock()

	if sl != nil {
		sl.Stop()
	}
	for id, p := range peers {
		p.Close()
		a.deps.Loop.Post(func(id transport.PeerID) func() {
			return func() { a.deps.Callbacks.OnDisconnect(id, nil) }
		}(id))
	}
	return nil
}

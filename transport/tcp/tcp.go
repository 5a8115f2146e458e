// Package tcp implements the TCP stream transport adapter.
package tcp

import (
	"context"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/adam-ikari/uvrpc/address"
	"github.com/adam-ikari/uvrpc/errs"
	"github.com/adam-ikari/uvrpc/frame"
	"github.com/adam-ikari/uvrpc/internal/netutil"
	"github.com/adam-ikari/uvrpc/internal/streamconn"
	"github.com/adam-ikari/uvrpc/transport"
)

// Adapter implements transport.Adapter over net.TCPConn.
type Adapter struct {
	deps transport.Deps

	// LowLatency, when true, sets TCP_NODELAY on every accepted or
	// dialed connection.
	LowLatency bool

	mu       sync.Mutex
	listener *netutil.StoppableListener
	peers    map[transport.PeerID]*streamconn.Peer
	nextID   uint64
}

// New constructs a TCP adapter bound to deps.
func New(deps transport.Deps, lowLatency bool) *Adapter {
	return &Adapter{deps: deps, LowLatency: lowLatency, peers: make(map[transport.PeerID]*streamconn.Peer)}
}

func (a *Adapter) allocID() transport.PeerID {
	return transport.PeerID(atomic.AddUint64(&a.nextID, 1))
}

func (a *Adapter) Listen(ctx context.Context, addr address.Address) error {
	if addr.Transport != address.TCP {
		return errs.New(errs.InvalidArgument, "tcp: address %q is not a tcp:// address", addr)
	}
	ln, err := net.Listen("tcp", net.JoinHostPort(addr.Host, strconv.Itoa(int(addr.Port))))
	if err != nil {
		return errs.Wrap(errs.Transport, err, "tcp: listen %s", addr)
	}
	sl, err := netutil.New(ln)
	if err != nil {
		ln.Close()
		return errs.Wrap(errs.Transport, err, "tcp: wrap listener")
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
		a.adopt(conn, nil)
	}
}

func (a *Adapter) Connect(ctx context.Context, addr address.Address) error {
	if addr.Transport != address.TCP {
		return errs.New(errs.InvalidArgument, "tcp: address %q is not a tcp:// address", addr)
	}
	go func() {
		conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", net.JoinHostPort(addr.Host, strconv.Itoa(int(addr.Port))))
		if err != nil {
			a.deps.Loop.Post(func() {
				a.deps.Callbacks.OnConnect(0, errs.Wrap(errs.Transport, err, "tcp: connect %s", addr))
			})
			return
		}
		a.adopt(conn, nil)
	}()
	return nil
}

func (a *Adapter) adopt(conn net.Conn, dialErr error) {
	if a.LowLatency {
		if tc, ok := conn.(*net.TCPConn); ok {
			tc.SetNoDelay(true)
		}
	}

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
	a.deps.Callbacks.OnDisconnect(id, errs.Wrap(errs.Transport, err, "tcp: connection closed"))
}

func (a *Adapter) Send(peer transport.PeerID, f *frame.Frame) error {
	a.mu.Lock()
	p, ok := a.peers[peer]
	a.mu.Unlock()
	if !ok {
		return errs.New(errs.Disconnected, "tcp: unknown peer %d", peer)
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

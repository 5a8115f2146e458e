// Package udp implements the UDP datagram transport adapter.
// There is no connection concept at the transport: the adapter keeps a
// table from remote socket address to a synthetic transport.PeerID, and
// each received datagram is decoded as exactly one frame and attributed
// to the peer id of its source address. Loss, reordering, and
// duplication are not compensated.
package udp

import (
	"context"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/adam-ikari/uvrpc/address"
	"github.com/adam-ikari/uvrpc/errs"
	"github.com/adam-ikari/uvrpc/frame"
	"github.com/adam-ikari/uvrpc/transport"
	"github.com/google/uuid"
)

// outQueueDepth is not referenced: Send writes each datagram straight
// to the socket with no per-peer queue, so it never reports
// Backpressure.
const outQueueDepth = 256

type peerEntry struct {
	addr *net.UDPAddr
	tag  uuid.UUID // correlation id; not used for routing, and not read by this adapter
}

// Adapter implements transport.Adapter over a single *net.UDPConn,
// shared by every peer.
type Adapter struct {
	deps transport.Deps

	conn     *net.UDPConn
	isServer bool

	mu        sync.Mutex
	byAddr    map[string]transport.PeerID
	byPeer    map[transport.PeerID]peerEntry
	nextID    uint64
	closeOnce sync.Once
	done      chan struct{}
}

func New(deps transport.Deps) *Adapter {
	return &Adapter{
		deps:   deps,
		byAddr: make(map[string]transport.PeerID),
		byPeer: make(map[transport.PeerID]peerEntry),
		done:   make(chan struct{}),
	}
}

func (a *Adapter) allocID() transport.PeerID {
	return transport.PeerID(atomic.AddUint64(&a.nextID, 1))
}

func (a *Adapter) Listen(ctx context.Context, addr address.Address) error {
	if addr.Transport != address.UDP {
		return errs.New(errs.InvalidArgument, "udp: address %q is not a udp:// address", addr)
	}
	udpAddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(addr.Host, strconv.Itoa(int(addr.Port))))
	if err != nil {
		return errs.Wrap(errs.InvalidArgument, err, "udp: resolve %s", addr)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return errs.Wrap(errs.Transport, err, "udp: listen %s", addr)
	}
	a.conn = conn
	a.isServer = true
	go a.readLoop()
	return nil
}

// Connect for UDP establishes no handshake; it simply fixes the remote
// address this socket will read/write and reports OnConnect immediately
// once the local ephemeral socket is bound.
func (a *Adapter) Connect(ctx context.Context, addr address.Address) error {
	if addr.Transport != address.UDP {
		return errs.New(errs.InvalidArgument, "udp: address %q is not a udp:// address", addr)
	}
	udpAddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(addr.Host, strconv.Itoa(int(addr.Port))))
	if err != nil {
		return errs.Wrap(errs.InvalidArgument, err, "udp: resolve %s", addr)
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		a.deps.Loop.Post(func() {
			a.deps.Callbacks.OnConnect(0, errs.Wrap(errs.Transport, err, "udp: connect %s", addr))
		})
		return nil
	}
	a.conn = conn

	id := a.allocID()
	a.mu.Lock()
	a.byAddr[udpAddr.String()] = id
	a.byPeer[id] = peerEntry{addr: udpAddr, tag: uuid.New()}
	a.mu.Unlock()

	go a.readLoop()
	a.deps.Loop.Post(func() { a.deps.Callbacks.OnConnect(id, nil) })
	return nil
}

func (a *Adapter) readLoop() {
	buf := make([]byte, 65535)
	for {
		n, raddr, err := a.conn.ReadFromUDP(buf)
		select {
		case <-a.done:
			return
		default:
		}
		if err != nil {
			return
		}

		f, decErr := frame.Decode(buf[:n])

		id := a.peerFor(raddr)

		if decErr != nil {
			// A malformed datagram has no connection to close; it is
			// simply dropped. Higher layers that want to log this
			// wrap OnRecv, not this loop.
			continue
		}
		fr := f
		a.deps.Loop.Post(func() { a.deps.Callbacks.OnRecv(id, fr) })
	}
}

// peerFor returns the existing peer id for raddr, registering a new
// synthetic one (server-side only) if this source address is new.
func (a *Adapter) peerFor(raddr *net.UDPAddr) transport.PeerID {
	key := raddr.String()

	a.mu.Lock()
	defer a.mu.Unlock()

	if id, ok := a.byAddr[key]; ok {
		return id
	}
	id := a.allocID()
	a.byAddr[key] = id
	a.byPeer[id] = peerEntry{addr: raddr, tag: uuid.New()}
	if a.isServer {
		a.deps.Loop.Post(func() { a.deps.Callbacks.OnConnect(id, nil) })
	}
	return id
}

func (a *Adapter) Send(peer transport.PeerID, f *frame.Frame) error {
	a.mu.Lock()
	entry, ok := a.byPeer[peer]
	a.mu.Unlock()
	if !ok {
		return errs.New(errs.Disconnected, "udp: unknown peer %d", peer)
	}

	if len(f.Payload) > frame.MaxDatagramPayload {
		return errs.New(errs.InvalidArgument, "udp: payload exceeds maximum datagram size")
	}
	b, err := frame.Encode(f)
	if err != nil {
		return err
	}

	// A single UDP socket's send path has no user-space queue to
	// overflow the way a stream Peer's write channel does; a kernel
	// socket-buffer-full condition surfaces as a Transport error here
	// rather than Backpressure, since the OS already dropped nothing —
	// it simply refused the write.
	var werr error
	if a.isServer {
		_, werr = a.conn.WriteToUDP(b, entry.addr)
	} else {
		_, werr = a.conn.Write(b)
	}
	if werr != nil {
		return errs.Wrap(errs.Transport, werr, "udp: send to %s", entry.addr)
	}
	return nil
}

func (a *Adapter) ClosePeer(peer transport.PeerID) error {
	a.mu.Lock()
	entry, ok := a.byPeer[peer]
	if ok {
		delete(a.byPeer, peer)
		delete(a.byAddr, entry.addr.String())
	}
	a.mu.Unlock()
	if !ok {
		return nil
	}
	a.deps.Loop.Post(func() { a.deps.Callbacks.OnDisconnect(peer, nil) })
	return nil
}

func (a *Adapter) Close() error {
	a.closeOnce.Do(func() { close(a.done) })
	if a.conn == nil {
		return nil
	}

	a.mu.Lock()
	peers := a.byPeer
	a.byPeer = make(map[transport.PeerID]peerEntry)
	a.byAddr = make(map[string]transport.PeerID)
	a.mu.Unlock()

	for id := range peers {
		a.deps.Loop.Post(func(id transport.PeerID) func() {
			return func() { a.deps.Callbacks.OnDisconnect(id, nil) }
		}(id))
	}
	return a.conn.Close()
}

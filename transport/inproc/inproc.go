// Package inproc implements the in-process memory-queue transport
// adapter. A process-wide registry maps inproc names to a
// rendezvous Listener holding a bounded queue in each direction;
// "connecting" is an immediate atomic attach to an existing listener.
// No byte encoding is required: frames pass by reference.
package inproc

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/adam-ikari/uvrpc/address"
	"github.com/adam-ikari/uvrpc/errs"
	"github.com/adam-ikari/uvrpc/frame"
	"github.com/adam-ikari/uvrpc/loop"
	"github.com/adam-ikari/uvrpc/transport"
	"github.com/google/uuid"
)

// clientPeerID is the constant peer id a client-role Adapter uses for
// its single peer, the server it is attached to.
const clientPeerID transport.PeerID = 1

// registry is the only process-wide shared state in the engine: a
// mapping from inproc name to its listener, guarded by a mutex used
// only during Listen/Connect/teardown, never on the live frame path.
var (
	registryMu sync.Mutex
	registry   = make(map[string]*Listener)
)

// queue is a bounded, single-direction channel of frames with a
// dedicated forwarding goroutine that Post-s each frame onto the
// consuming side's loop in order, preserving inproc's per-direction
// FIFO guarantee.
type queue struct {
	ch        chan *frame.Frame
	closed    chan struct{}
	closeOnce sync.Once
}

func newQueue(depth int) *queue {
	return &queue{ch: make(chan *frame.Frame, depth), closed: make(chan struct{})}
}

func (q *queue) enqueue(f *frame.Frame) error {
	select {
	case q.ch <- f:
		return nil
	default:
		return errs.New(errs.Backpressure, "inproc: queue full")
	}
}

func (q *queue) forward(l loop.Loop, deliver func(*frame.Frame)) {
	for {
		select {
		case f := <-q.ch:
			fr := f
			l.Post(func() { deliver(fr) })
		case <-q.closed:
			return
		}
	}
}

func (q *queue) close() {
	q.closeOnce.Do(func() { close(q.closed) })
}

// attachment is one client's rendezvous with a Listener.
type attachment struct {
	serverPeerID  transport.PeerID
	clientTag     uuid.UUID // correlation id for logs/metrics, not used for routing
	clientDeps    transport.Deps
	ingress       *queue // client -> server
	egress        *queue // server -> client
}

// Listener is the server/publisher side of an inproc rendezvous point.
type Listener struct {
	name       string
	deps       transport.Deps
	queueDepth int

	mu          sync.Mutex
	attachments map[transport.PeerID]*attachment
	nextPeerID  uint64
}

func (l *Listener) allocPeerID() transport.PeerID {
	return transport.PeerID(atomic.AddUint64(&l.nextPeerID, 1))
}

// Adapter implements transport.Adapter for the inproc transport. The
// same type serves both roles; which fields are live depends on
// whether Listen or Connect was called.
type Adapter struct {
	deps       transport.Deps
	queueDepth int

	mu       sync.Mutex
	name     string
	listener *Listener   // set when this Adapter is the server/publisher
	att      *attachment // set when this Adapter is the client/subscriber
}

// New constructs an inproc adapter. queueDepth bounds each direction's
// queue and should generally track EngineConfig.max_concurrent.
func New(deps transport.Deps, queueDepth int) *Adapter {
	if queueDepth <= 0 {
		queueDepth = 128
	}
	return &Adapter{deps: deps, queueDepth: queueDepth}
}

func (a *Adapter) Listen(ctx context.Context, addr address.Address) error {
	if addr.Transport != address.Inproc {
		return errs.New(errs.InvalidArgument, "inproc: address %q is not an inproc:// address", addr)
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[addr.Name]; exists {
		return errs.New(errs.Transport, "inproc: %q already has a listener", addr.Name)
	}

	l := &Listener{
		name:        addr.Name,
		deps:        a.deps,
		queueDepth:  a.queueDepth,
		attachments: make(map[transport.PeerID]*attachment),
	}
	registry[addr.Name] = l

	a.mu.Lock()
	a.name = addr.Name
	a.listener = l
	a.mu.Unlock()
	return nil
}

func (a *Adapter) Connect(ctx context.Context, addr address.Address) error {
	if addr.Transport != address.Inproc {
		return errs.New(errs.InvalidArgument, "inproc: address %q is not an inproc:// address", addr)
	}

	registryMu.Lock()
	l, ok := registry[addr.Name]
	registryMu.Unlock()

	if !ok {
		a.deps.Loop.Post(func() {
			a.deps.Callbacks.OnConnect(0, errs.New(errs.Transport, "inproc: no listener registered for %q", addr.Name))
		})
		return nil
	}

	serverPeerID := l.allocPeerID()
	att := &attachment{
		serverPeerID: serverPeerID,
		clientTag:    uuid.New(),
		clientDeps:   a.deps,
		ingress:      newQueue(l.queueDepth),
		egress:       newQueue(a.queueDepth),
	}

	l.mu.Lock()
	l.attachments[serverPeerID] = att
	l.mu.Unlock()

	a.mu.Lock()
	a.name = addr.Name
	a.att = att
	a.mu.Unlock()

	go att.ingress.forward(l.deps.Loop, func(f *frame.Frame) { l.deps.Callbacks.OnRecv(serverPeerID, f) })
	go att.egress.forward(a.deps.Loop, func(f *frame.Frame) { a.deps.Callbacks.OnRecv(clientPeerID, f) })

	a.deps.Loop.Post(func() { a.deps.Callbacks.OnConnect(clientPeerID, nil) })
	l.deps.Loop.Post(func() { l.deps.Callbacks.OnConnect(serverPeerID, nil) })
	return nil
}

func (a *Adapter) Send(peer transport.PeerID, f *frame.Frame) error {
	a.mu.Lock()
	l := a.listener
	att := a.att
	a.mu.Unlock()

	if l != nil {
		l.mu.Lock()
		target, ok := l.attachments[peer]
		l.mu.Unlock()
		if !ok {
			return errs.New(errs.Disconnected, "inproc: unknown peer %d", peer)
		}
		return target.egress.enqueue(f)
	}

	if att != nil {
		return att.ingress.enqueue(f)
	}

	return errs.New(errs.InvalidState, "inproc: adapter not listening or connected")
}

func (a *Adapter) ClosePeer(peer transport.PeerID) error {
	a.mu.Lock()
	l := a.listener
	a.mu.Unlock()

	if l == nil {
		return nil
	}
	l.mu.Lock()
	att, ok := l.attachments[peer]
	if ok {
		delete(l.attachments, peer)
	}
	l.mu.Unlock()
	if !ok {
		return nil
	}

	att.ingress.close()
	att.egress.close()
	l.deps.Loop.Post(func() { l.deps.Callbacks.OnDisconnect(peer, nil) })
	att.clientDeps.Loop.Post(func() { att.clientDeps.Callbacks.OnDisconnect(clientPeerID, nil) })
	return nil
}

func (a *Adapter) Close() error {
	a.mu.Lock()
	l := a.listener
	att := a.att
	name := a.name
	a.listener = nil
	a.att = nil
	a.mu.Unlock()

	if l != nil {
		registryMu.Lock()
		if registry[name] == l {
			delete(registry, name)
		}
		registryMu.Unlock()

		l.mu.Lock()
		attachments := l.attachments
		l.attachments = make(map[transport.PeerID]*attachment)
		l.mu.Unlock()

		for peerID, at := range attachments {
			at.ingress.close()
			at.egress.close()
			l.deps.Loop.Post(func(id transport.PeerID) func() {
				return func() { l.deps.Callbacks.OnDisconnect(id, nil) }
			}(peerID))
			at.clientDeps.Loop.Post(func() { at.clientDeps.Callbacks.OnDisconnect(clientPeerID, nil) })
		}
	}

	if att != nil {
		att.ingress.close()
		att.egress.close()
		registryMu.Lock()
		srv := registry[name]
		registryMu.Unlock()
		if srv != nil {
			srv.mu.Lock()
			owned := srv.attachments[att.serverPeerID] == att
			if owned {
				delete(srv.attachments, att.serverPeerID)
			}
			srv.mu.Unlock()
			if owned {
				srv.deps.Loop.Post(func() { srv.deps.Callbacks.OnDisconnect(att.serverPeerID, nil) })
			}
		}
		a.deps.Loop.Post(func() { a.deps.Callbacks.OnDisconnect(clientPeerID, nil) })
	}

	return nil
}

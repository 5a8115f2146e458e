// Package transport defines the uniform contract the four
// transport adapters (TCP, UDP, IPC, INPROC) implement: a capability
// set {Listen, Connect, Send, Close} plus an upcall set {OnRecv,
// OnConnect, OnDisconnect}. Cores (client, server, publisher,
// subscriber) talk to an adapter only through this interface; the
// concrete adapter is picked once, at construction.
package transport

import (
	"context"

	"github.com/adam-ikari/uvrpc/address"
	"github.com/adam-ikari/uvrpc/frame"
	"github.com/adam-ikari/uvrpc/loop"
)

// PeerID identifies a logical remote endpoint: a connection for stream
// transports, a (remote-addr → synthetic-id) entry for UDP, or an
// attachment for inproc. Peer identifiers are tagged and opaque to
// cores; only the owning adapter interprets them further.
type PeerID uint64

// Callbacks are the upcalls an adapter fires. Every call happens on the
// owning loop.Loop goroutine — adapters are responsible for this, cores
// never need to re-enter the loop themselves.
type Callbacks struct {
	// OnRecv fires once per fully decoded inbound frame.
	OnRecv func(peer PeerID, f *frame.Frame)

	// OnConnect fires once a connection attempt resolves (success or
	// err != nil on failure). For server-role adapters it fires once
	// per accepted peer with err == nil.
	OnConnect func(peer PeerID, err error)

	// OnDisconnect fires once a peer's connection ends, for any reason
	// (explicit close, transport error, EOF).
	OnDisconnect func(peer PeerID, err error)
}

// Adapter is the uniform contract every transport implements.
type Adapter interface {
	// Listen binds addr in server/publisher mode. Inbound connections
	// (or, for datagram/inproc, inbound peers) are reported through
	// Callbacks.OnConnect followed by OnRecv calls.
	Listen(ctx context.Context, addr address.Address) error

	// Connect dials addr in client/subscriber mode. The result is
	// reported asynchronously through Callbacks.OnConnect; Connect
	// itself only reports synchronous, pre-flight errors (a bad
	// address).
	Connect(ctx context.Context, addr address.Address) error

	// Send enqueues one frame for delivery to peer. Send returns
	// immediately; it never blocks on I/O. It fails with
	// errs.Backpressure if the adapter's outbound queue for peer is
	// saturated, and the frame is not enqueued.
	Send(peer PeerID, f *frame.Frame) error

	// ClosePeer tears down one peer (stream transports: the
	// connection; datagram/inproc: the table entry), firing
	// OnDisconnect.
	ClosePeer(peer PeerID) error

	// Close tears down the adapter itself: the listener (if any) and
	// every peer, each firing OnDisconnect.
	Close() error
}

// Deps bundles what every adapter constructor needs: the owning loop
// (upcalls are Post-ed onto it so they never run synchronously from a
// core's API call) and the callback set.
type Deps struct {
	Loop      loop.Loop
	Callbacks Callbacks
}

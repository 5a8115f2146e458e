// Package uvrpc is a single-process, event-loop-driven RPC engine: a
// client core and a server core share a uniform transport contract
// (TCP, UDP, IPC, INPROC) and a little-endian binary frame format,
// plus a broadcast (publish/subscribe) topology layered over the same
// transports.
package uvrpc

import (
	"context"

	"github.com/adam-ikari/uvrpc/address"
	"github.com/adam-ikari/uvrpc/broadcast"
	"github.com/adam-ikari/uvrpc/errs"
	"github.com/adam-ikari/uvrpc/loop"
	"github.com/adam-ikari/uvrpc/transport"
	"github.com/adam-ikari/uvrpc/transport/inproc"
	"github.com/adam-ikari/uvrpc/transport/ipc"
	"github.com/adam-ikari/uvrpc/transport/tcp"
	"github.com/adam-ikari/uvrpc/transport/udp"
)

// newAdapter is the engine/address-parser wiring: it binds a
// (loop, config) pair to the concrete transport.Adapter the address
// names, so the client and server cores never reference a concrete
// transport package themselves. The broadcast package carries its own
// copy of this switch.
func newAdapter(lp loop.Loop, cfg *EngineConfig, cb transport.Callbacks) (transport.Adapter, error) {
	deps := transport.Deps{Loop: lp, Callbacks: cb}

	switch cfg.Address().Transport {
	case address.TCP:
		return tcp.New(deps, cfg.PerformanceMode() == LowLatency), nil
	case address.UDP:
		return udp.New(deps), nil
	case address.IPC:
		return ipc.New(deps), nil
	case address.Inproc:
		return inproc.New(deps, cfg.MaxConcurrent()), nil
	default:
		return nil, errs.New(errs.InvalidArgument, "uvrpc: unknown transport %q", cfg.Address().Transport)
	}
}

// ConnectionState is a client engine's position in the connection
// lifecycle graph.
type ConnectionState int32

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	Closing
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Closing:
		return "closing"
	default:
		return "unknown"
	}
}

// bgCtx is used for the lifetime of a Listen/Connect call: transports
// don't currently take meaningful cancellation beyond what
// disconnect()/Close() already does via ClosePeer/Close, but accepting
// a context keeps the adapter contract idiomatic and future-proof.
var bgCtx = context.Background()

// adapterParams projects the pieces of an EngineConfig the broadcast
// package needs to build its own transport.Adapter (it cannot import
// this package's EngineConfig type without an import cycle).
func adapterParams(cfg *EngineConfig) broadcast.AdapterParams {
	return broadcast.AdapterParams{
		Address:        cfg.Address(),
		LowLatency:     cfg.PerformanceMode() == LowLatency,
		InprocCapacity: cfg.MaxConcurrent(),
	}
}

// NewPublisher constructs and starts a Publisher bound to cfg's address.
func NewPublisher(lp loop.Loop, cfg *EngineConfig) (*broadcast.Publisher, error) {
	if cfg.Role() != RolePublisher {
		return nil, errs.New(errs.InvalidArgument, "uvrpc: NewPublisher requires a publisher-role config")
	}
	return broadcast.NewPublisher(lp, adapterParams(cfg))
}

// NewSubscriber constructs a Subscriber and connects it to cfg's address.
// Call Subscribe on the result before relying on delivery.
func NewSubscriber(lp loop.Loop, cfg *EngineConfig) (*broadcast.Subscriber, error) {
	if cfg.Role() != RoleSubscriber {
		return nil, errs.New(errs.InvalidArgument, "uvrpc: NewSubscriber requires a subscriber-role config")
	}
	return broadcast.NewSubscriber(lp, adapterParams(cfg))
}

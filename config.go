package uvrpc

import (
	"time"

	"github.com/adam-ikari/uvrpc/address"
	"github.com/adam-ikari/uvrpc/errs"
)

// Address and Transport are re-exported from the address package so
// callers only ever need to import the root uvrpc package for the
// common path.
type Address = address.Address
type Transport = address.Transport

const (
	TCP    = address.TCP
	UDP    = address.UDP
	IPC    = address.IPC
	Inproc = address.Inproc
)

// ParseAddress parses the transport URL forms.
func ParseAddress(raw string) (Address, error) { return address.ParseAddress(raw) }

// Role is the peer role an engine instance plays.
type Role int

const (
	RoleServer Role = iota
	RoleClient
	RolePublisher
	RoleSubscriber
)

func (r Role) String() string {
	switch r {
	case RoleServer:
		return "server"
	case RoleClient:
		return "client"
	case RolePublisher:
		return "publisher"
	case RoleSubscriber:
		return "subscriber"
	default:
		return "unknown"
	}
}

// PerformanceMode tunes transport-level tradeoffs. LowLatency
// enables TCP_NODELAY on stream sockets; HighThroughput favors larger
// buffered writes over per-message latency.
type PerformanceMode int

const (
	LowLatency PerformanceMode = iota
	HighThroughput
)

const (
	defaultMaxPendingCallbacks = 64
	defaultMaxConcurrent       = 128
	defaultSendBufferBytes     = 64 * 1024
	defaultRecvBufferBytes     = 64 * 1024
	defaultReconnectInitial    = 100 * time.Millisecond
	defaultReconnectMax        = 30 * time.Second
	defaultLinger              = 0
)

// EngineConfig is the immutable configuration bundle snapshotted at
// engine construction. There is no setter: every field is fixed by
// NewEngineConfig and its Option list, and read back only through
// accessor methods.
type EngineConfig struct {
	address             Address
	role                Role
	maxPendingCallbacks int
	maxConcurrent       int
	performanceMode     PerformanceMode
	sendBufferBytes     int
	recvBufferBytes     int
	reconnectInitial    time.Duration
	reconnectMax        time.Duration
	linger              time.Duration
}

// Option customizes an EngineConfig at construction time.
type Option func(*EngineConfig)

func WithMaxPendingCallbacks(n int) Option {
	return func(c *EngineConfig) { c.maxPendingCallbacks = n }
}

func WithMaxConcurrent(n int) Option {
	return func(c *EngineConfig) { c.maxConcurrent = n }
}

func WithPerformanceMode(m PerformanceMode) Option {
	return func(c *EngineConfig) { c.performanceMode = m }
}

func WithSendBufferBytes(n int) Option {
	return func(c *EngineConfig) { c.sendBufferBytes = n }
}

func WithRecvBufferBytes(n int) Option {
	return func(c *EngineConfig) { c.recvBufferBytes = n }
}

func WithReconnectBackoff(initial, max time.Duration) Option {
	return func(c *EngineConfig) { c.reconnectInitial = initial; c.reconnectMax = max }
}

func WithLinger(d time.Duration) Option {
	return func(c *EngineConfig) { c.linger = d }
}

// NewEngineConfig parses rawAddress and applies opts over the defaults,
// producing an immutable bundle. The bundle is owned by the caller and
// snapshotted (by value, on read) at every engine construction that
// consumes it.
func NewEngineConfig(rawAddress string, role Role, opts ...Option) (*EngineConfig, error) {
	addr, err := address.ParseAddress(rawAddress)
	if err != nil {
		return nil, err
	}

	c := &EngineConfig{
		address:             addr,
		role:                role,
		maxPendingCallbacks: defaultMaxPendingCallbacks,
		maxConcurrent:       defaultMaxConcurrent,
		performanceMode:     LowLatency,
		sendBufferBytes:     defaultSendBufferBytes,
		recvBufferBytes:     defaultRecvBufferBytes,
		reconnectInitial:    defaultReconnectInitial,
		reconnectMax:        defaultReconnectMax,
		linger:              defaultLinger,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.maxPendingCallbacks <= 0 {
		return nil, errs.New(errs.InvalidArgument, "config: max_pending_callbacks must be positive")
	}
	if c.maxConcurrent <= 0 {
		return nil, errs.New(errs.InvalidArgument, "config: max_concurrent must be positive")
	}
	if c.reconnectInitial <= 0 || c.reconnectMax < c.reconnectInitial {
		return nil, errs.New(errs.InvalidArgument, "config: reconnect backoff bounds are invalid")
	}

	return c, nil
}

func (c *EngineConfig) Address() Address                   { return c.address }
func (c *EngineConfig) Role() Role                          { return c.role }
func (c *EngineConfig) MaxPendingCallbacks() int            { return c.maxPendingCallbacks }
func (c *EngineConfig) MaxConcurrent() int                  { return c.maxConcurrent }
func (c *EngineConfig) PerformanceMode() PerformanceMode    { return c.performanceMode }
func (c *EngineConfig) SendBufferBytes() int                { return c.sendBufferBytes }
func (c *EngineConfig) RecvBufferBytes() int                { return c.recvBufferBytes }
func (c *EngineConfig) ReconnectInitial() time.Duration     { return c.reconnectInitial }
func (c *EngineConfig) ReconnectMax() time.Duration         { return c.reconnectMax }
func (c *EngineConfig) Linger() time.Duration               { return c.linger }

package uvrpc

import (
	"time"

	"github.com/adam-ikari/uvrpc/errs"
	"github.com/adam-ikari/uvrpc/frame"
	"github.com/adam-ikari/uvrpc/loop"
	"github.com/adam-ikari/uvrpc/metrics"
	"github.com/adam-ikari/uvrpc/pending"
	"github.com/adam-ikari/uvrpc/transport"
	"github.com/adam-ikari/uvrpc/ulog"
	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// Client is the request/response-initiating role: call/call_oneway over
// a single logical peer, with automatic reconnect-with-backoff. Like
// every engine core, a Client is only ever touched from its loop.Loop's
// goroutine and carries no mutex.
type Client struct {
	cfg     *EngineConfig
	lp      loop.Loop
	adapter transport.Adapter
	pend    *pending.Table
	metrics *metrics.Registry
	log     *logrus.Entry

	state   ConnectionState
	peer    transport.PeerID
	backoff backoff.BackOff

	onConnectUser func(err error)
	connectFired  bool
}

// NewClient constructs a Client bound to cfg's address via lp. metrics
// may be nil, in which case a private, never-scraped registry is used
// so every code path still updates counters.
func NewClient(lp loop.Loop, cfg *EngineConfig, reg *metrics.Registry) (*Client, error) {
	if cfg.Role() != RoleClient {
		return nil, errs.New(errs.InvalidArgument, "uvrpc: NewClient requires a client-role config")
	}
	if reg == nil {
		reg = metrics.Noop()
	}

	c := &Client{
		cfg:     cfg,
		lp:      lp,
		pend:    pending.New(cfg.MaxPendingCallbacks()),
		metrics: reg,
		log:     ulog.For("client").WithField("address", cfg.Address().String()),
		state:   Disconnected,
	}
	c.backoff = newBackoff(cfg)

	adapter, err := newAdapter(lp, cfg, transport.Callbacks{
		OnRecv:       c.onRecv,
		OnConnect:    c.onAdapterConnect,
		OnDisconnect: c.onAdapterDisconnect,
	})
	if err != nil {
		return nil, err
	}
	c.adapter = adapter
	return c, nil
}

func newBackoff(cfg *EngineConfig) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.ReconnectInitial()
	b.MaxInterval = cfg.ReconnectMax()
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0 // retry indefinitely; only disconnect() stops it
	b.Reset()            // start from the configured InitialInterval
	return b
}

// State reports the client's current lifecycle position.
func (c *Client) State() ConnectionState { return c.state }

// Connect initiates connection asynchronously. onConnect fires
// exactly once, the first time this connect() reaches Connected;
// automatic reconnects after a later disconnect do not refire it — they
// are observed through a registered OnDisconnect-equivalent (the
// completion status of in-flight calls) rather than this callback.
func (c *Client) Connect(onConnect func(err error)) error {
	if c.state != Disconnected {
		return errs.New(errs.InvalidState, "client: connect() called while %s", c.state)
	}
	c.onConnectUser = onConnect
	c.connectFired = false
	c.state = Connecting
	return c.adapter.Connect(bgCtx, c.cfg.Address())
}

// Disconnect tears down the connection (or cancels a pending attempt)
// and drains the pending table with status Disconnected. This never
// fires the connect callback, whether or not it already fired.
func (c *Client) Disconnect() {
	if c.state == Disconnected {
		return
	}
	c.state = Closing
	c.pend.Drain(int32(errs.Disconnected))
	if c.peer != 0 {
		_ = c.adapter.ClosePeer(c.peer)
	}
	_ = c.adapter.Close()
	c.peer = 0
	c.state = Disconnected
}

// Call initiates a request/response exchange. completion fires exactly
// once: with the response's status/payload, or with errs.Timeout /
// errs.Disconnected if the call never completes.
func (c *Client) Call(method string, payload []byte, completion pending.Completion) error {
	return c.call(method, payload, completion, 0)
}

// CallWithDeadline behaves like Call but additionally arms a per-call
// deadline timer; on expiry the completion fires with errs.Timeout and
// the entry is removed from the pending table. Deadlines are purely
// client-local and never sent on the wire.
func (c *Client) CallWithDeadline(method string, payload []byte, deadline time.Duration, completion pending.Completion) error {
	if deadline <= 0 {
		return errs.New(errs.InvalidArgument, "client: deadline must be positive")
	}
	return c.call(method, payload, completion, deadline)
}

func (c *Client) call(method string, payload []byte, completion pending.Completion, deadline time.Duration) error {
	if c.state != Connected {
		return errs.New(errs.InvalidState, "client: call(%q) while %s", method, c.state)
	}
	if len(method) == 0 || len(method) > frame.MaxMethodLen {
		return errs.New(errs.InvalidArgument, "client: method name %q invalid", method)
	}

	msgid := c.pend.NextID()
	if err := c.pend.Insert(msgid, completion); err != nil {
		c.metrics.Backpressure.WithLabelValues(c.transportLabel(), "call").Inc()
		return err
	}

	f := &frame.Frame{Kind: frame.Request, MsgID: msgid, Method: method, Payload: payload}
	if err := c.adapter.Send(c.peer, f); err != nil {
		c.pend.Take(msgid)
		if errs.Is(err, errs.Backpressure) {
			c.metrics.Backpressure.WithLabelValues(c.transportLabel(), "call").Inc()
		}
		return err
	}

	c.metrics.PendingCalls.WithLabelValues(c.transportLabel()).Set(float64(c.pend.Len()))

	if deadline > 0 {
		c.lp.PostDelayed(deadline, func() {
			if entry, ok := c.pend.Take(msgid); ok {
				c.metrics.PendingCalls.WithLabelValues(c.transportLabel()).Set(float64(c.pend.Len()))
				entry.Completion(int32(errs.Timeout), nil)
			}
		})
	}
	return nil
}

// CallOneway sends a fire-and-forget request: no msgid is reserved and
// no completion is ever invoked.
func (c *Client) CallOneway(method string, payload []byte) error {
	if c.state != Connected {
		return errs.New(errs.InvalidState, "client: call_oneway(%q) while %s", method, c.state)
	}
	if len(method) == 0 || len(method) > frame.MaxMethodLen {
		return errs.New(errs.InvalidArgument, "client: method name %q invalid", method)
	}
	f := &frame.Frame{Kind: frame.OnewayRequest, Method: method, Payload: payload}
	return c.adapter.Send(c.peer, f)
}

func (c *Client) onAdapterConnect(peer transport.PeerID, err error) {
	if c.state == Disconnected {
		// A connect attempt resolved after disconnect() already tore
		// things down (e.g. a retry in flight); nothing to do.
		return
	}

	if err != nil {
		c.log.WithError(err).Warn("connect attempt failed, retrying")
		c.metrics.ReconnectAttempts.WithLabelValues(c.transportLabel()).Inc()
		delay := c.backoff.NextBackOff()
		c.lp.PostDelayed(delay, func() {
			if c.state != Disconnected {
				_ = c.adapter.Connect(bgCtx, c.cfg.Address())
			}
		})
		return
	}

	c.peer = peer
	c.state = Connected
	c.backoff.Reset()
	c.log.Info("connected")

	if !c.connectFired {
		c.connectFired = true
		if c.onConnectUser != nil {
			c.onConnectUser(nil)
		}
	}
}

func (c *Client) onAdapterDisconnect(peer transport.PeerID, err error) {
	if c.state == Disconnected || c.state == Closing {
		return
	}
	c.log.WithError(err).Warn("disconnected, will retry")
	c.state = Connecting
	c.peer = 0
	c.pend.Drain(int32(errs.Disconnected))
	c.metrics.PendingCalls.WithLabelValues(c.transportLabel()).Set(0)

	delay := c.backoff.NextBackOff()
	c.lp.PostDelayed(delay, func() {
		if c.state == Connecting {
			_ = c.adapter.Connect(bgCtx, c.cfg.Address())
		}
	})
}

func (c *Client) onRecv(peer transport.PeerID, f *frame.Frame) {
	if f.Kind != frame.Response {
		c.log.WithField("kind", f.Kind).Warn("unexpected frame kind at client")
		return
	}
	entry, ok := c.pend.Take(f.MsgID)
	if !ok {
		// Already resolved by a deadline timer, or a stale/duplicate
		// response after a 32-bit msgid wrap; silently dropped.
		return
	}
	c.metrics.PendingCalls.WithLabelValues(c.transportLabel()).Set(float64(c.pend.Len()))
	entry.Completion(f.Status, f.Payload)
}

func (c *Client) transportLabel() string { return string(c.cfg.Address().Transport) }

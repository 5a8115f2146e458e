package uvrpc

import (
	"runtime/debug"

	"github.com/adam-ikari/uvrpc/errs"
	"github.com/adam-ikari/uvrpc/frame"
	"github.com/adam-ikari/uvrpc/handlerreg"
	"github.com/adam-ikari/uvrpc/loop"
	"github.com/adam-ikari/uvrpc/metrics"
	"github.com/adam-ikari/uvrpc/transport"
	"github.com/adam-ikari/uvrpc/ulog"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// Server is the request-accepting role: register named handlers, then
// start() and dispatch inbound requests to them. Dispatch is inline on
// the loop goroutine — there is no internal worker pool —
// so inbound ordering on a single connection is preserved exactly as
// received; a handler that wants to respond asynchronously is free to
// hold the RequestContext and call Respond later from any other posted
// callback on the same loop.
type Server struct {
	cfg      *EngineConfig
	lp       loop.Loop
	adapter  transport.Adapter
	registry *handlerreg.Registry
	metrics  *metrics.Registry
	log      *logrus.Entry

	// sem bounds the number of requests simultaneously awaiting a
	// response (max_concurrent). Enforcement here is advisory: a server
	// that is over budget still dispatches inline and reports the
	// overage via the Backpressure metric rather than pausing the
	// connection's reads, since a read-pause would need a cooperating
	// hook this minimal streamconn reader doesn't expose (see
	// DESIGN.md). Client-side backpressure (pending table, outbound
	// queues) remains hard-enforced.
	sem *semaphore.Weighted

	started bool
}

// NewServer constructs a Server bound to cfg's address via lp.
func NewServer(lp loop.Loop, cfg *EngineConfig, reg *metrics.Registry) (*Server, error) {
	if cfg.Role() != RoleServer {
		return nil, errs.New(errs.InvalidArgument, "uvrpc: NewServer requires a server-role config")
	}
	if reg == nil {
		reg = metrics.Noop()
	}

	s := &Server{
		cfg:      cfg,
		lp:       lp,
		registry: handlerreg.New(),
		metrics:  reg,
		log:      ulog.For("server").WithField("address", cfg.Address().String()),
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrent())),
	}

	adapter, err := newAdapter(lp, cfg, transport.Callbacks{
		OnRecv:       s.onRecv,
		OnConnect:    s.onAdapterConnect,
		OnDisconnect: s.onAdapterDisconnect,
	})
	if err != nil {
		return nil, err
	}
	s.adapter = adapter
	return s, nil
}

// Register binds name to handler. It must be called before Start;
// afterward the registry is frozen and Register fails.
func (s *Server) Register(name string, handler handlerreg.Handler) error {
	return s.registry.Register(name, handler)
}

// Start freezes the handler registry and begins listening.
func (s *Server) Start() error {
	s.registry.Freeze()
	if err := s.adapter.Listen(bgCtx, s.cfg.Address()); err != nil {
		return err
	}
	s.started = true
	return nil
}

// Stop tears down the listener and every connected peer.
func (s *Server) Stop() error {
	s.started = false
	return s.adapter.Close()
}

func (s *Server) onAdapterConnect(peer transport.PeerID, err error) {
	if err != nil {
		s.log.WithError(err).Warn("accept failed")
		return
	}
	s.log.WithField("peer", peer).Debug("peer connected")
}

func (s *Server) onAdapterDisconnect(peer transport.PeerID, err error) {
	s.log.WithField("peer", peer).WithError(err).Debug("peer disconnected")
}

func (s *Server) onRecv(peer transport.PeerID, f *frame.Frame) {
	switch f.Kind {
	case frame.Request, frame.OnewayRequest:
		s.dispatch(peer, f)
	default:
		s.log.WithField("kind", f.Kind).Warn("unexpected frame kind at server")
	}
}

func (s *Server) dispatch(peer transport.PeerID, f *frame.Frame) {
	s.metrics.RequestsReceived.WithLabelValues(s.transportLabel(), f.Method).Inc()

	handler, ok := s.registry.Lookup(f.Method)
	if !ok {
		if f.Kind == frame.Request {
			s.sendResponse(peer, f.MsgID, f.Method, int32(errs.MethodNotFound), nil)
		}
		return
	}

	acquired := s.sem.TryAcquire(1)
	if !acquired {
		s.metrics.Backpressure.WithLabelValues(s.transportLabel(), "dispatch").Inc()
		s.log.WithField("method", f.Method).Warn("dispatching over max_concurrent budget")
	}

	ctx := &RequestContext{
		srv:      s,
		peer:     peer,
		msgid:    f.MsgID,
		method:   f.Method,
		oneway:   f.Kind == frame.OnewayRequest,
		acquired: acquired,
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.WithField("method", f.Method).WithField("panic", r).
					WithField("stack", string(debug.Stack())).Error("handler panicked")
				if !ctx.oneway && !ctx.responded {
					s.sendResponse(peer, f.MsgID, f.Method, int32(errs.InternalError), nil)
				}
				ctx.release()
			}
		}()
		handler(ctx, f.Payload)
	}()

	if ctx.oneway {
		// Oneway requests never call Respond, so nothing would ever
		// release the slot this dispatch acquired.
		ctx.release()
	}
}

func (s *Server) sendResponse(peer transport.PeerID, msgid uint32, method string, status int32, payload []byte) {
	f := &frame.Frame{Kind: frame.Response, MsgID: msgid, Status: status, Payload: payload}
	if err := s.adapter.Send(peer, f); err != nil {
		s.log.WithField("peer", peer).WithError(err).Warn("failed to send response")
		return
	}
	s.metrics.ResponsesSent.WithLabelValues(s.transportLabel(), method, errs.KindOf(statusErr(status)).String()).Inc()
}

func (s *Server) transportLabel() string { return string(s.cfg.Address().Transport) }

// statusErr turns a status code back into a labeled errs.Kind purely for
// the ResponsesSent metric's "status" label; errs.Ok covers every
// successful response.
func statusErr(status int32) error {
	if status == int32(errs.Ok) {
		return nil
	}
	return errs.New(errs.Kind(status), "status %d", status)
}

// RequestContext correlates one inbound request with its response. It
// is passed to a handlerreg.Handler as the opaque ctx argument; callers
// must type-assert it back to *RequestContext (handlerreg cannot import
// this package without a cycle, so Handler's signature stays generic).
type RequestContext struct {
	srv    *Server
	peer   transport.PeerID
	msgid  uint32
	method string
	oneway bool

	responded bool
	acquired  bool
	released  bool
}

// Respond sends status/payload back to the caller. It fails with
// InvalidState if called on a oneway request or more than once for the
// same request. Responding is what frees this request's slot in
// the server's max_concurrent budget, so a handler that never responds
// (other than a oneway one) permanently consumes a slot.
func (ctx *RequestContext) Respond(status int32, payload []byte) error {
	if ctx.oneway {
		return errs.New(errs.InvalidState, "server: send_response called on a oneway request")
	}
	if ctx.responded {
		return errs.New(errs.InvalidState, "server: send_response called twice for msgid %d", ctx.msgid)
	}
	ctx.responded = true
	ctx.srv.sendResponse(ctx.peer, ctx.msgid, ctx.method, status, payload)
	ctx.release()
	return nil
}

func (ctx *RequestContext) release() {
	if ctx.released || !ctx.acquired {
		return
	}
	ctx.released = true
	ctx.srv.sem.Release(1)
}

// Peer returns the id of the connection this request arrived on, for
// handlers that want to correlate requests from the same caller.
func (ctx *RequestContext) Peer() transport.PeerID { return ctx.peer }

// Method returns the method name this request was dispatched for.
func (ctx *RequestContext) Method() string { return ctx.method }

// Oneway reports whether this request expects no response.
func (ctx *RequestContext) Oneway() bool { return ctx.oneway }

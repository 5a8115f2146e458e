// Package handlerreg implements the server-side method name → handler
// mapping: register-before-freeze semantics over a flat map, with
// plain closures over an opaque payload rather than reflected struct
// methods, so there is no reflection here.
package handlerreg

import (
	"sync"

	"github.com/adam-ikari/uvrpc/errs"
)

// Handler is the server-side function invoked for an inbound request.
// ctx carries the request/response correlation; the handler must call
// ctx.Respond exactly once, or zero times for a oneway request (the
// concrete RequestContext type lives in the server package, which this
// package cannot import without a cycle, so Handler is generic over it).
type Handler func(ctx interface{}, payload []byte)

// Registry is a collection of named handlers. Registration is only
// permitted before Freeze; thereafter it is read-only, matching the
// "frozen at server.start()" contract.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	frozen   bool
}

// New creates an empty, unfrozen Registry.
func New() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds name to handler. It fails with AlreadyExists if name is
// already bound, or InvalidState if the registry has been frozen.
func (r *Registry) Register(name string, handler Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return errs.New(errs.InvalidState, "handlerreg: register %q after server.start()", name)
	}
	if _, exists := r.handlers[name]; exists {
		return errs.New(errs.AlreadyExists, "handlerreg: method %q already registered", name)
	}
	r.handlers[name] = handler
	return nil
}

// Freeze prevents any further registration. Idempotent.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Lookup returns the handler bound to name, or ok=false if none is bound.
func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

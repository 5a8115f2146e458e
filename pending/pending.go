// Package pending implements the bounded msgid → completion table that
// makes request/response calls reliable: keyed by the wire format's
// uint32 msgid, and capacity-bounded instead of growing without limit.
//
// A Table is only ever touched from the goroutine of the loop.Loop that
// owns the client it belongs to, so it carries no mutex of its own.
package pending

import "github.com/adam-ikari/uvrpc/errs"

// Completion is invoked exactly once when an entry is resolved, whether
// by a matching response, a deadline, or a drain on disconnect.
type Completion func(status int32, payload []byte)

// Entry is one outstanding call.
type Entry struct {
	MsgID      uint32
	Completion Completion
}

// Table is a fixed-capacity map from msgid to Entry.
type Table struct {
	cap     int
	entries map[uint32]Entry
	nextID  uint32 // last allocated id; 0 is reserved, so this starts at 0 and pre-increments
}

// New creates a Table with the given capacity (EngineConfig.max_pending_callbacks).
func New(capacity int) *Table {
	return &Table{
		cap:     capacity,
		entries: make(map[uint32]Entry, capacity),
	}
}

// Len reports the number of outstanding entries.
func (t *Table) Len() int { return len(t.entries) }

// Cap reports the configured capacity.
func (t *Table) Cap() int { return t.cap }

// NextID allocates the next msgid: a monotonically incrementing counter
// that skips zero (reserved for oneway/broadcast) and wraps by modular
// arithmetic on overflow.
func (t *Table) NextID() uint32 {
	t.nextID++
	if t.nextID == 0 {
		// wrapped past 0xFFFFFFFF back to 0; skip the reserved value
		t.nextID = 1
	}
	return t.nextID
}

// Insert records a new outstanding call. It fails atomically (no partial
// state) with Backpressure if the table is at capacity, and likewise
// with Backpressure if msgid collides with a still-live entry (only
// possible after the 32-bit counter wraps around a long-lived client).
func (t *Table) Insert(msgid uint32, completion Completion) error {
	if _, live := t.entries[msgid]; live {
		return errs.New(errs.Backpressure, "pending: msgid %d collides with a live entry", msgid)
	}
	if len(t.entries) >= t.cap {
		return errs.New(errs.Backpressure, "pending: table full (capacity %d)", t.cap)
	}
	t.entries[msgid] = Entry{MsgID: msgid, Completion: completion}
	return nil
}

// Take removes and returns the entry for msgid, if any. Take is
// idempotent for unknown ids: it returns ok=false without error, which
// callers use both for "response after timeout" and "response after
// wrap collision".
func (t *Table) Take(msgid uint32) (Entry, bool) {
	e, ok := t.entries[msgid]
	if ok {
		delete(t.entries, msgid)
	}
	return e, ok
}

// Drain removes every entry and invokes each completion with status and
// an empty payload, in indeterminate order — used by disconnect();
// deadline firing is handled per-entry via Take instead.
func (t *Table) Drain(status int32) {
	for msgid, e := range t.entries {
		delete(t.entries, msgid)
		e.Completion(status, nil)
	}
}

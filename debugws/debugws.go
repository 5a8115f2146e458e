// Package debugws serves a live-statistics feed over a websocket.
// gorilla/websocket only allows one concurrent reader and one
// concurrent writer per connection, so this package keeps a read/write
// mutex split per session and pushes a one-way JSON snapshot on an
// interval — this endpoint is for observing a running engine, not for
// invoking it.
package debugws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/adam-ikari/uvrpc/ulog"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// SnapshotFunc returns anything that can be marshaled to JSON and
// represents a point-in-time view of an engine's state. Callers typically pass a
// closure capturing a *uvrpc.Client/*uvrpc.Server and a *metrics.Registry.
type SnapshotFunc func() interface{}

// Handler upgrades HTTP connections to websockets and pushes a
// SnapshotFunc's result to each connected client on Interval.
type Handler struct {
	Snapshot SnapshotFunc
	Interval time.Duration

	upgrader websocket.Upgrader
	log      *logrus.Entry
}

// NewHandler constructs a debugws Handler. interval defaults to one
// second if non-positive.
func NewHandler(snapshot SnapshotFunc, interval time.Duration) *Handler {
	if interval <= 0 {
		interval = time.Second
	}
	return &Handler{
		Snapshot: snapshot,
		Interval: interval,
		log:      ulog.For("debugws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Debug endpoints are expected to be reached from local
			// tooling (curl, a browser devtools console) rather than
			// arbitrary third-party origins; operators fronting this
			// with a reverse proxy can tighten CheckOrigin further.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request and streams snapshots until the
// connection is closed by either side.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("upgrade failed")
		return
	}
	sess := &session{conn: conn, log: h.log}
	defer sess.close()

	go sess.drainReads()

	ticker := time.NewTicker(h.Interval)
	defer ticker.Stop()

	for range ticker.C {
		if err := sess.writeJSON(h.Snapshot()); err != nil {
			return
		}
	}
}

// session guards one connection's mutually exclusive read/write sides.
type session struct {
	conn *websocket.Conn
	log  *logrus.Entry

	readMu  sync.Mutex
	writeMu sync.Mutex
	closed  bool
}

func (s *session) writeJSON(v interface{}) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, b)
}

// drainReads discards inbound client messages (this endpoint is
// observe-only) and exits on the first read error, which is how a
// client-initiated close is detected.
func (s *session) drainReads() {
	for {
		s.readMu.Lock()
		_, _, err := s.conn.ReadMessage()
		s.readMu.Unlock()
		if err != nil {
			s.close()
			return
		}
	}
}

func (s *session) close() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.conn.Close()
}

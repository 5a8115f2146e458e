// Package streamconn is the shared engine behind the two stream
// transports, TCP and IPC: both are "one peer = one net.Conn" with
// identical framing, read-loop, and bounded write-queue semantics;
// only how the net.Conn is obtained (dial vs. accept, TCP vs.
// Unix-domain) differs between the two adapters.
package streamconn

import (
	"encoding/binary"
	"io"
	"net"
	"sync"

	"github.com/adam-ikari/uvrpc/errs"
	"github.com/adam-ikari/uvrpc/frame"
	"github.com/adam-ikari/uvrpc/loop"
)

// QueueDepth is the number of outbound frames a Peer buffers before
// Send reports Backpressure. It is a count, not a byte budget, which is
// a deliberate simplification over send_buffer_bytes for the reference
// transports (documented in DESIGN.md).
const QueueDepth = 256

// Peer wraps one net.Conn with a dedicated writer goroutine draining a
// bounded queue, so concurrent Send calls never interleave bytes on
// the wire and Send itself never blocks the loop goroutine.
type Peer struct {
	Conn net.Conn

	queue  chan *frame.Frame
	closed chan struct{}
	once   sync.Once
}

// NewPeer wraps conn and starts its writer goroutine.
func NewPeer(conn net.Conn) *Peer {
	p := &Peer{
		Conn:   conn,
		queue:  make(chan *frame.Frame, QueueDepth),
		closed: make(chan struct{}),
	}
	go p.writeLoop()
	return p
}

func (p *Peer) writeLoop() {
	for {
		select {
		case f, ok := <-p.queue:
			if !ok {
				return
			}
			b, err := frame.EncodeStream(f)
			if err != nil {
				continue // invalid frame was rejected synchronously by Enqueue's Validate; unreachable in practice
			}
			if _, err := p.Conn.Write(b); err != nil {
				p.Close()
				return
			}
		case <-p.closed:
			return
		}
	}
}

// Enqueue validates f and attempts a non-blocking send onto the write
// queue.
func (p *Peer) Enqueue(f *frame.Frame) error {
	if err := f.Validate(); err != nil {
		return err
	}
	select {
	case p.queue <- f:
		return nil
	default:
		return errs.New(errs.Backpressure, "streamconn: outbound queue full")
	}
}

// Close shuts the peer down exactly once.
func (p *Peer) Close() error {
	var err error
	p.once.Do(func() {
		close(p.closed)
		err = p.Conn.Close()
	})
	return err
}

// ReadLoop reads length-prefixed frames from conn until EOF or error,
// delivering each to onFrame on the given loop. onDone is called
// exactly once when the loop exits, with the terminating error; it is
// never nil (a peer's orderly close arrives as io.EOF).
//
// Short reads must leave partial frames in place rather than deliver
// them incomplete: io.ReadFull below absorbs short reads by looping
// until it has exactly the bytes requested, collapsing what would
// otherwise be a hand-rolled incremental buffer into the standard
// library's equivalent primitive.
func ReadLoop(l loop.Loop, conn net.Conn, onFrame func(*frame.Frame), onDone func(error)) {
	var lenBuf [frame.LengthPrefixSize]byte
	for {
		if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
			l.Post(func() { onDone(err) })
			return
		}
		n := binary.LittleEndian.Uint32(lenBuf[:])
		body := make([]byte, n)
		if _, err := io.ReadFull(conn, body); err != nil {
			l.Post(func() { onDone(err) })
			return
		}
		f, err := frame.Decode(body)
		if err != nil {
			l.Post(func() { onDone(err) })
			return
		}
		fr := f
		l.Post(func() { onFrame(fr) })
	}
}

package streamconn

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/adam-ikari/uvrpc/errs"
	"github.com/adam-ikari/uvrpc/frame"
	"github.com/adam-ikari/uvrpc/loop"
	"github.com/stretchr/testify/require"
)

func TestPeerEnqueueDeliversOverThePipe(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	peer := NewPeer(client)
	defer peer.Close()

	require.NoError(t, peer.Enqueue(&frame.Frame{Kind: frame.Request, MsgID: 1, Method: "m", Payload: []byte("x")}))

	lenBuf := make([]byte, frame.LengthPrefixSize)
	_, err := readFull(server, lenBuf)
	require.NoError(t, err)
}

func TestReadLoopDecodesFramesInOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	lp := loop.New(0)
	go lp.Run(ctx)

	client, server := net.Pipe()
	defer server.Close()

	var got []*frame.Frame
	frameCh := make(chan *frame.Frame, 2)
	doneCh := make(chan error, 1)
	go ReadLoop(lp, server,
		func(f *frame.Frame) { frameCh <- f },
		func(err error) { doneCh <- err },
	)

	go func() {
		b1, _ := frame.EncodeStream(&frame.Frame{Kind: frame.Request, MsgID: 1, Method: "a"})
		b2, _ := frame.EncodeStream(&frame.Frame{Kind: frame.Request, MsgID: 2, Method: "b"})
		client.Write(b1)
		client.Write(b2)
	}()

	for i := 0; i < 2; i++ {
		select {
		case f := <-frameCh:
			got = append(got, f)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for frame")
		}
	}
	require.Equal(t, uint32(1), got[0].MsgID)
	require.Equal(t, uint32(2), got[1].MsgID)

	client.Close()
	select {
	case <-doneCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for onDone after close")
	}
}

func TestEnqueueReportsBackpressureWhenQueueFull(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	peer := NewPeer(client)
	defer peer.Close()

	// The writer goroutine can only drain as fast as the other end of
	// the pipe reads, and net.Pipe is unbuffered — so with nothing
	// reading from server, enough enqueues saturate the bounded queue.
	// The writer may already hold one frame blocked in Write, so up to
	// QueueDepth+1 enqueues can succeed before the queue reports full.
	var lastErr error
	for i := 0; i < QueueDepth+2; i++ {
		lastErr = peer.Enqueue(&frame.Frame{Kind: frame.OnewayRequest, Method: "m"})
		if lastErr != nil {
			break
		}
	}
	require.Error(t, lastErr)
	require.True(t, errs.Is(lastErr, errs.Backpressure))
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

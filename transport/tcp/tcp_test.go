package tcp

import (
	"context"
	"testing"
	"time"

	"github.com/adam-ikari/uvrpc/address"
	"github.com/adam-ikari/uvrpc/frame"
	"github.com/adam-ikari/uvrpc/loop"
	"github.com/adam-ikari/uvrpc/transport"
	"github.com/stretchr/testify/require"
)

func TestListenConnectSendRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	lp := loop.New(0)
	go lp.Run(ctx)

	serverRecv := make(chan *frame.Frame, 1)
	serverConnected := make(chan transport.PeerID, 1)
	server := New(transport.Deps{Loop: lp, Callbacks: transport.Callbacks{
		OnRecv:    func(peer transport.PeerID, f *frame.Frame) { serverRecv <- f },
		OnConnect: func(peer transport.PeerID, err error) { require.NoError(t, err); serverConnected <- peer },
	}}, false)

	// This adapter doesn't surface the OS-assigned port when binding to
	// :0, so Connect has nothing to discover it by; use a fixed port.
	addr := address.Address{Transport: address.TCP, Host: "127.0.0.1", Port: 28711}
	require.NoError(t, server.Listen(ctx, addr))

	clientConnected := make(chan transport.PeerID, 1)
	client := New(transport.Deps{Loop: lp, Callbacks: transport.Callbacks{
		OnRecv:    func(peer transport.PeerID, f *frame.Frame) {},
		OnConnect: func(peer transport.PeerID, err error) { require.NoError(t, err); clientConnected <- peer },
	}}, false)
	require.NoError(t, client.Connect(ctx, addr))

	var clientPeer, serverPeer transport.PeerID
	select {
	case clientPeer = <-clientConnected:
	case <-time.After(2 * time.Second):
		t.Fatal("client never connected")
	}
	select {
	case serverPeer = <-serverConnected:
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw the connection")
	}

	require.NoError(t, client.Send(clientPeer, &frame.Frame{Kind: frame.OnewayRequest, Method: "ping"}))

	select {
	case f := <-serverRecv:
		require.Equal(t, "ping", f.Method)
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the frame")
	}

	_ = serverPeer
	require.NoError(t, client.Close())
	require.NoError(t, server.Close())
}

func TestSendToUnknownPeerFails(t *testing.T) {
	lp := loop.New(0)
	a := New(transport.Deps{Loop: lp, Callbacks: transport.Callbacks{
		OnRecv: func(transport.PeerID, *frame.Frame) {}, OnConnect: func(transport.PeerID, error) {},
	}}, false)
	err := a.Send(999, &frame.Frame{Kind: frame.OnewayRequest, Method: "x"})
	require.Error(t, err)
}

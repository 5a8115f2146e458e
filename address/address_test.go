package address

import (
	"testing"

	"github.com/adam-ikari/uvrpc/errs"
	"github.com/stretchr/testify/require"
)

func TestParseAddressTCP(t *testing.T) {
	a, err := ParseAddress("tcp://127.0.0.1:9000")
	require.NoError(t, err)
	require.Equal(t, TCP, a.Transport)
	require.Equal(t, "127.0.0.1", a.Host)
	require.Equal(t, uint16(9000), a.Port)
	require.Equal(t, "tcp://127.0.0.1:9000", a.String())
}

func TestParseAddressTCPBracketedIPv6(t *testing.T) {
	a, err := ParseAddress("tcp://[::1]:9000")
	require.NoError(t, err)
	require.Equal(t, "::1", a.Host)
	require.Equal(t, uint16(9000), a.Port)
}

func TestParseAddressUDP(t *testing.T) {
	a, err := ParseAddress("udp://example.com:53")
	require.NoError(t, err)
	require.Equal(t, UDP, a.Transport)
	require.Equal(t, "example.com", a.Host)
	require.Equal(t, uint16(53), a.Port)
}

func TestParseAddressIPC(t *testing.T) {
	a, err := ParseAddress("ipc:///tmp/uvrpc.sock")
	require.NoError(t, err)
	require.Equal(t, IPC, a.Transport)
	require.Equal(t, "/tmp/uvrpc.sock", a.Path)
}

func TestParseAddressInproc(t *testing.T) {
	a, err := ParseAddress("inproc://test-bus")
	require.NoError(t, err)
	require.Equal(t, Inproc, a.Transport)
	require.Equal(t, "test-bus", a.Name)
}

func TestParseAddressRejectsMissingScheme(t *testing.T) {
	_, err := ParseAddress("127.0.0.1:9000")
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.InvalidArgument))
}

func TestParseAddressRejectsUnknownScheme(t *testing.T) {
	_, err := ParseAddress("quic://127.0.0.1:9000")
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.InvalidArgument))
}

func TestParseAddressRejectsBadPort(t *testing.T) {
	_, err := ParseAddress("tcp://127.0.0.1:not-a-port")
	require.Error(t, err)
}

func TestParseAddressRejectsEmptyIPCPath(t *testing.T) {
	_, err := ParseAddress("ipc://")
	require.Error(t, err)
}

func TestParseAddressRejectsEmptyInprocName(t *testing.T) {
	_, err := ParseAddress("inproc://")
	require.Error(t, err)
}

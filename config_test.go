package uvrpc

import (
	"testing"
	"time"

	"github.com/adam-ikari/uvrpc/errs"
	"github.com/stretchr/testify/require"
)

func TestNewEngineConfigDefaults(t *testing.T) {
	cfg, err := NewEngineConfig("tcp://127.0.0.1:9000", RoleServer)
	require.NoError(t, err)
	require.Equal(t, 64, cfg.MaxPendingCallbacks())
	require.Equal(t, 128, cfg.MaxConcurrent())
	require.Equal(t, LowLatency, cfg.PerformanceMode())
	require.Equal(t, RoleServer, cfg.Role())
}

func TestNewEngineConfigAppliesOptions(t *testing.T) {
	cfg, err := NewEngineConfig("tcp://127.0.0.1:9000", RoleClient,
		WithMaxPendingCallbacks(10),
		WithMaxConcurrent(5),
		WithPerformanceMode(HighThroughput),
		WithReconnectBackoff(10*time.Millisecond, time.Second),
	)
	require.NoError(t, err)
	require.Equal(t, 10, cfg.MaxPendingCallbacks())
	require.Equal(t, 5, cfg.MaxConcurrent())
	require.Equal(t, HighThroughput, cfg.PerformanceMode())
	require.Equal(t, 10*time.Millisecond, cfg.ReconnectInitial())
	require.Equal(t, time.Second, cfg.ReconnectMax())
}

func TestNewEngineConfigRejectsBadAddress(t *testing.T) {
	_, err := NewEngineConfig("not-a-valid-address", RoleServer)
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.InvalidArgument))
}

func TestNewEngineConfigRejectsInvalidOptions(t *testing.T) {
	_, err := NewEngineConfig("tcp://127.0.0.1:9000", RoleServer, WithMaxPendingCallbacks(0))
	require.Error(t, err)

	_, err = NewEngineConfig("tcp://127.0.0.1:9000", RoleServer, WithMaxConcurrent(-1))
	require.Error(t, err)

	_, err = NewEngineConfig("tcp://127.0.0.1:9000", RoleServer, WithReconnectBackoff(time.Second, time.Millisecond))
	require.Error(t, err)
}

func TestNewClientRejectsWrongRole(t *testing.T) {
	lp, cancel := runLoop(t)
	defer cancel()

	cfg, err := NewEngineConfig("tcp://127.0.0.1:9000", RoleServer)
	require.NoError(t, err)
	_, err = NewClient(lp, cfg, nil)
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.InvalidArgument))
}

func TestNewServerRejectsWrongRole(t *testing.T) {
	lp, cancel := runLoop(t)
	defer cancel()

	cfg, err := NewEngineConfig("tcp://127.0.0.1:9000", RoleClient)
	require.NoError(t, err)
	_, err = NewServer(lp, cfg, nil)
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.InvalidArgument))
}

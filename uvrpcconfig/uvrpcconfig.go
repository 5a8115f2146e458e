// Package uvrpcconfig loads an EngineConfig from a YAML file layered
// with UVRPC_-prefixed environment overrides, via
// github.com/spf13/viper. It is an optional convenience on top of
// uvrpc.NewEngineConfig — nothing else in this repository depends on
// it, so embedding callers that build an EngineConfig programmatically
// can skip this package entirely.
package uvrpcconfig

import (
	"strings"
	"time"

	"github.com/adam-ikari/uvrpc"
	"github.com/adam-ikari/uvrpc/errs"
	"github.com/spf13/viper"
)

var roleNames = map[string]uvrpc.Role{
	"server":     uvrpc.RoleServer,
	"client":     uvrpc.RoleClient,
	"publisher":  uvrpc.RolePublisher,
	"subscriber": uvrpc.RoleSubscriber,
}

var perfModeNames = map[string]uvrpc.PerformanceMode{
	"low_latency":    uvrpc.LowLatency,
	"high_throughput": uvrpc.HighThroughput,
}

// Load reads an EngineConfig from path (YAML) and any UVRPC_-prefixed
// environment variable overriding the same keys (e.g. UVRPC_ADDRESS,
// UVRPC_MAX_CONCURRENT). path may be empty to read from environment and
// defaults only.
func Load(path string) (*uvrpc.EngineConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("UVRPC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("performance_mode", "low_latency")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errs.Wrap(errs.InvalidArgument, err, "uvrpcconfig: reading %s", path)
		}
	}

	address := v.GetString("address")
	if address == "" {
		return nil, errs.New(errs.InvalidArgument, "uvrpcconfig: %q (or UVRPC_ADDRESS) is required", "address")
	}

	roleStr := strings.ToLower(v.GetString("role"))
	role, ok := roleNames[roleStr]
	if !ok {
		return nil, errs.New(errs.InvalidArgument, "uvrpcconfig: unknown role %q", roleStr)
	}

	var opts []uvrpc.Option
	if v.IsSet("max_pending_callbacks") {
		opts = append(opts, uvrpc.WithMaxPendingCallbacks(v.GetInt("max_pending_callbacks")))
	}
	if v.IsSet("max_concurrent") {
		opts = append(opts, uvrpc.WithMaxConcurrent(v.GetInt("max_concurrent")))
	}
	if perfStr := strings.ToLower(v.GetString("performance_mode")); perfStr != "" {
		mode, ok := perfModeNames[perfStr]
		if !ok {
			return nil, errs.New(errs.InvalidArgument, "uvrpcconfig: unknown performance_mode %q", perfStr)
		}
		opts = append(opts, uvrpc.WithPerformanceMode(mode))
	}
	if v.IsSet("send_buffer_bytes") {
		opts = append(opts, uvrpc.WithSendBufferBytes(v.GetInt("send_buffer_bytes")))
	}
	if v.IsSet("recv_buffer_bytes") {
		opts = append(opts, uvrpc.WithRecvBufferBytes(v.GetInt("recv_buffer_bytes")))
	}
	if v.IsSet("reconnect_initial_ms") || v.IsSet("reconnect_max_ms") {
		initial := time.Duration(v.GetInt("reconnect_initial_ms")) * time.Millisecond
		max := time.Duration(v.GetInt("reconnect_max_ms")) * time.Millisecond
		opts = append(opts, uvrpc.WithReconnectBackoff(initial, max))
	}
	if v.IsSet("linger_ms") {
		opts = append(opts, uvrpc.WithLinger(time.Duration(v.GetInt("linger_ms"))*time.Millisecond))
	}

	return uvrpc.NewEngineConfig(address, role, opts...)
}

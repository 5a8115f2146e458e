// Package metrics exposes monotonic counters of received requests and
// produced responses, backed by github.com/prometheus/client_golang.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles the prometheus collectors an engine instance
// updates over its lifetime. Callers that don't care about Prometheus
// export can use NewRegistry(prometheus.NewRegistry()) and simply never
// scrape it.
type Registry struct {
	RequestsReceived   *prometheus.CounterVec
	ResponsesSent      *prometheus.CounterVec
	PendingCalls       *prometheus.GaugeVec
	Backpressure       *prometheus.CounterVec
	ReconnectAttempts  *prometheus.CounterVec
}

// NewRegistry registers uvrpc's collectors on reg and returns the
// bundle. Passing a fresh prometheus.NewRegistry() keeps uvrpc's
// metrics off the global default registry unless the caller opts in.
func NewRegistry(reg prometheus.Registerer) *Registry {
	m := &Registry{
		RequestsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uvrpc_requests_received_total",
			Help: "Requests received by a server-role engine, by transport and method.",
		}, []string{"transport", "method"}),
		ResponsesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uvrpc_responses_sent_total",
			Help: "Responses sent by a server-role engine, by transport, method, and status.",
		}, []string{"transport", "method", "status"}),
		PendingCalls: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "uvrpc_pending_calls",
			Help: "Outstanding calls in a client-role engine's pending table, sampled per operation.",
		}, []string{"transport"}),
		Backpressure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uvrpc_backpressure_total",
			Help: "Operations that reported Backpressure, by transport and operation.",
		}, []string{"transport", "op"}),
		ReconnectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uvrpc_reconnect_attempts_total",
			Help: "Reconnect attempts made by a client-role engine, by transport.",
		}, []string{"transport"}),
	}

	reg.MustRegister(m.RequestsReceived, m.ResponsesSent, m.PendingCalls, m.Backpressure, m.ReconnectAttempts)
	return m
}

// Noop returns a Registry wired to a private, never-scraped registry —
// useful for tests and for callers that want the counters updated (so
// code paths stay identical) without caring about export.
func Noop() *Registry {
	return NewRegistry(prometheus.NewRegistry())
}

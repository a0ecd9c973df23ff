// Package mcpmetrics defines the prometheus collectors this server
// exposes at /metrics: request latency by method, worker concurrency
// and outcome counts, and approval decisions by category. Grounded on
// the teacher's cmd/contextd/main.go, which exposes client_golang's
// promhttp.Handler() on an Echo route; this package owns the
// collectors, and the transport wires the handler in.
package mcpmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry groups every collector this server registers. A single
// Registry is constructed at startup and threaded into the components
// that observe it (mcpserver, worker, approval).
type Registry struct {
	RequestDuration   *prometheus.HistogramVec
	RequestsTotal     *prometheus.CounterVec
	WorkerActive      prometheus.Gauge
	WorkerInvocations *prometheus.CounterVec
	ApprovalDecisions *prometheus.CounterVec
}

// NewRegistry constructs and registers every collector against reg. Pass
// prometheus.NewRegistry() for isolated tests, or
// prometheus.DefaultRegisterer for production wiring.
func NewRegistry(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)
	return &Registry{
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "statmcpd",
			Name:      "request_duration_seconds",
			Help:      "JSON-RPC request handling latency by method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "statmcpd",
			Name:      "requests_total",
			Help:      "JSON-RPC requests handled, by method and outcome.",
		}, []string{"method", "outcome"}),
		WorkerActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "statmcpd",
			Name:      "worker_active",
			Help:      "Worker subprocesses currently running.",
		}),
		WorkerInvocations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "statmcpd",
			Name:      "worker_invocations_total",
			Help:      "Worker invocations by script id and outcome kind.",
		}, []string{"script_id", "outcome"}),
		ApprovalDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "statmcpd",
			Name:      "approval_decisions_total",
			Help:      "Approval gate decisions by category and decision.",
		}, []string{"category", "decision"}),
	}
}

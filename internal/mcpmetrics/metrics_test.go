package mcpmetrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry_CollectorsObserveAndGather(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRegistry(reg)

	m.RequestsTotal.WithLabelValues("tools/call", "ok").Inc()
	m.RequestDuration.WithLabelValues("tools/call").Observe(0.05)
	m.WorkerActive.Set(2)
	m.WorkerInvocations.WithLabelValues("stats.summary", "completed").Inc()
	m.ApprovalDecisions.WithLabelValues("file_operations", "denied").Inc()

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]*dto.MetricFamily)
	for _, f := range families {
		names[f.GetName()] = f
	}

	assert.Contains(t, names, "statmcpd_requests_total")
	assert.Contains(t, names, "statmcpd_worker_active")
	assert.Contains(t, names, "statmcpd_worker_invocations_total")
	assert.Contains(t, names, "statmcpd_approval_decisions_total")

	workerActive := names["statmcpd_worker_active"].GetMetric()
	require.Len(t, workerActive, 1)
	assert.Equal(t, float64(2), workerActive[0].GetGauge().GetValue())
}

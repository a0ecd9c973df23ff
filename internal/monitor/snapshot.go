package monitor

import (
	dto "github.com/prometheus/client_model/go"
)

// snapshotFromFamilies reduces the statmcpd_* collectors registered by
// internal/mcpmetrics into the flat totals the dashboard renders. Label
// values beyond the ones it sums (outcome, decision) are intentionally
// collapsed; the dashboard shows aggregate health, not a per-method or
// per-script breakdown.
func snapshotFromFamilies(families map[string]*dto.MetricFamily) Snapshot {
	var s Snapshot

	if f, ok := families["statmcpd_requests_total"]; ok {
		for _, m := range f.GetMetric() {
			v := m.GetCounter().GetValue()
			switch labelValue(m, "outcome") {
			case "ok":
				s.RequestsOK += v
			default:
				s.RequestsError += v
			}
		}
	}

	if f, ok := families["statmcpd_request_duration_seconds"]; ok {
		for _, m := range f.GetMetric() {
			h := m.GetHistogram()
			s.RequestDuration += h.GetSampleSum()
			s.RequestCount += float64(h.GetSampleCount())
		}
	}

	if f, ok := families["statmcpd_worker_active"]; ok {
		for _, m := range f.GetMetric() {
			s.WorkerActive += m.GetGauge().GetValue()
		}
	}

	if f, ok := families["statmcpd_worker_invocations_total"]; ok {
		for _, m := range f.GetMetric() {
			v := m.GetCounter().GetValue()
			switch labelValue(m, "outcome") {
			case "completed":
				s.WorkerCompleted += v
			default:
				s.WorkerFailed += v
			}
		}
	}

	if f, ok := families["statmcpd_approval_decisions_total"]; ok {
		for _, m := range f.GetMetric() {
			v := m.GetCounter().GetValue()
			switch labelValue(m, "decision") {
			case "approved":
				s.ApprovalApproved += v
			default:
				s.ApprovalDenied += v
			}
		}
	}

	return s
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

// Package monitor implements the statmcp monitor subcommand: a terminal
// dashboard that polls a running daemon's /metrics endpoint and renders
// request throughput, worker concurrency, and approval-decision trends.
// Grounded on the teacher's internal/monitor package, adapted from a
// VictoriaMetrics PromQL client to a direct Prometheus text-exposition
// scrape of this server's own /metrics route, since statmcp has no
// separate metrics backend to query.
package monitor

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/common/expfmt"
)

// MetricsClient scrapes a statmcp daemon's /metrics endpoint.
type MetricsClient struct {
	baseURL string
	client  *http.Client
}

// NewMetricsClient creates a client for the daemon at baseURL (e.g.
// "http://127.0.0.1:8787").
func NewMetricsClient(baseURL string) *MetricsClient {
	return &MetricsClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 2 * time.Second},
	}
}

// Snapshot holds the cumulative counter and gauge values scraped from one
// /metrics response. Counters are raw totals; the dashboard model
// computes per-tick rates by diffing consecutive snapshots.
type Snapshot struct {
	RequestsOK      float64
	RequestsError   float64
	RequestDuration float64 // sum of observed seconds, all methods
	RequestCount    float64 // histogram sample count, all methods

	WorkerActive    float64
	WorkerCompleted float64
	WorkerFailed    float64

	ApprovalApproved float64
	ApprovalDenied   float64
}

// Fetch scrapes and parses the daemon's /metrics endpoint.
func (c *MetricsClient) Fetch(ctx context.Context) (Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/metrics", nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("monitor: building request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Snapshot{}, fmt.Errorf("monitor: fetching metrics: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Snapshot{}, fmt.Errorf("monitor: unexpected status %d", resp.StatusCode)
	}

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(resp.Body)
	if err != nil {
		return Snapshot{}, fmt.Errorf("monitor: parsing metrics: %w", err)
	}

	return snapshotFromFamilies(families), nil
}

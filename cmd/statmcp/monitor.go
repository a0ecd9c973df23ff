package main

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/arborist-labs/statmcp/internal/monitor"
)

var (
	monitorDaemonURL string
	monitorInterval  time.Duration
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Render a live dashboard of a running daemon's metrics",
	Long: `monitor polls a running statmcp daemon's /metrics endpoint and renders
request throughput, worker concurrency, and approval-decision trends as
a terminal dashboard. It is purely observational: it never calls
tools/call and has no effect on the daemon's state.`,
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().StringVar(&monitorDaemonURL, "url", "http://127.0.0.1:8787", "base URL of the running daemon's HTTP+SSE transport")
	monitorCmd.Flags().DurationVar(&monitorInterval, "interval", 1*time.Second, "refresh interval")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	model := monitor.NewModel(monitorDaemonURL, monitorInterval)
	program := tea.NewProgram(model)
	if _, err := program.Run(); err != nil {
		return fatalRuntimeError(fmt.Errorf("statmcp: monitor dashboard exited: %w", err))
	}
	return nil
}

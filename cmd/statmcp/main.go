// Package main implements the statmcp server binary: the MCP stdio and
// HTTP+SSE transports, a capability dump for operators wiring up a
// client, and a terminal dashboard for the running daemon's metrics.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	debug      bool

	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "statmcp",
	Short: "MCP server exposing sandboxed statistical computation tools",
	Long: `statmcp is a Model Context Protocol server that exposes statistical
computation tools (summary statistics, hypothesis tests) backed by
sandboxed worker subprocesses, gated by a per-session approval
workflow for filesystem, package-installation, and system operations.`,
	Version: fmt.Sprintf("%s (commit %s, built %s)", version, gitCommit, buildDate),
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML configuration file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug-level logging")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(serveHTTPCmd)
	rootCmd.AddCommand(listCapabilitiesCmd)
	rootCmd.AddCommand(monitorCmd)
}

// exitStatusError carries the exit code spec.md §6 assigns to fatal
// runtime errors (2), distinct from the configuration/startup class (1)
// that every other error path falls back to.
type exitStatusError struct {
	code int
	err  error
}

func (e *exitStatusError) Error() string { return e.err.Error() }
func (e *exitStatusError) Unwrap() error { return e.err }

func fatalRuntimeError(err error) error {
	if err == nil {
		return nil
	}
	return &exitStatusError{code: 2, err: err}
}

func exitCodeFor(err error) int {
	if status, ok := err.(*exitStatusError); ok {
		return status.code
	}
	return 1
}

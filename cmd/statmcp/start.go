package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arborist-labs/statmcp/internal/transport/stdio"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Launch the stdio MCP transport",
	Long: `start runs a single MCP session over stdin/stdout: newline-delimited
JSON-RPC requests in, single-line JSON-RPC responses out, with all
logging routed to stderr so stdout stays a clean wire protocol stream.`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	d, err := bootstrap(configPath, debug)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		d.log.Info(ctx, "statmcp: received signal, draining stdio session", zap.String("signal", sig.String()))
		cancel()
	}()

	defer d.Close(context.Background())

	transport := stdio.New(d.cfg.Stdio, d.server.Handle, d.log, os.Stdout).WithEventBus(d.bus)
	if err := transport.Run(ctx, os.Stdin); err != nil {
		return fatalRuntimeError(fmt.Errorf("statmcp: stdio session ended: %w", err))
	}
	return nil
}

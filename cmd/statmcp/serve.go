package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arborist-labs/statmcp/internal/transport/httpsse"
)

var (
	serveHost string
	servePort int
)

var serveHTTPCmd = &cobra.Command{
	Use:   "serve-http",
	Short: "Launch the HTTP+SSE MCP transport",
	Long: `serve-http runs the multi-session HTTP+SSE transport: a POST /mcp
JSON-RPC endpoint, a GET /mcp/sse notification stream, health and
metrics probes. --host and --port override the configured values for
this invocation only.`,
	RunE: runServeHTTP,
}

func init() {
	serveHTTPCmd.Flags().StringVar(&serveHost, "host", "", "override server.host")
	serveHTTPCmd.Flags().IntVar(&servePort, "port", 0, "override server.port")
}

func runServeHTTP(cmd *cobra.Command, args []string) error {
	d, err := bootstrap(configPath, debug)
	if err != nil {
		return err
	}

	if serveHost != "" {
		d.cfg.Server.Host = serveHost
	}
	if servePort != 0 {
		d.cfg.Server.Port = servePort
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		d.log.Info(ctx, "statmcp: received signal, shutting down http+sse transport", zap.String("signal", sig.String()))
		cancel()
	}()

	defer d.Close(context.Background())

	d.log.Info(ctx, "statmcp: serving http+sse",
		zap.String("host", d.cfg.Server.Host),
		zap.Int("port", d.cfg.Server.Port))

	transport := httpsse.New(d.cfg.Server, d.cfg.Session, d.server.Handle, d.log).WithEventBus(d.bus)
	if err := transport.Start(ctx); err != nil && err != http.ErrServerClosed {
		return fatalRuntimeError(fmt.Errorf("statmcp: http+sse transport ended: %w", err))
	}
	return nil
}

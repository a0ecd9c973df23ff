package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/arborist-labs/statmcp/internal/approval"
	"github.com/arborist-labs/statmcp/internal/catalog"
	"github.com/arborist-labs/statmcp/internal/config"
	"github.com/arborist-labs/statmcp/internal/eventbus"
	"github.com/arborist-labs/statmcp/internal/logging"
	"github.com/arborist-labs/statmcp/internal/mcpmetrics"
	"github.com/arborist-labs/statmcp/internal/mcpserver"
	"github.com/arborist-labs/statmcp/internal/vfs"
	"github.com/arborist-labs/statmcp/internal/worker"
)

// daemon bundles every long-lived component start and serve-http wire
// together. Built once by bootstrap and shut down in reverse order by
// Close.
type daemon struct {
	cfg     *config.Config
	log     *logging.Logger
	metrics *mcpmetrics.Registry
	bus     *eventbus.Bus
	server  *mcpserver.Server
}

// bootstrap loads configuration, wires every collaborator spec.md's
// operations depend on, and assembles the MCP server core shared by the
// start and serve-http subcommands. It never starts a transport; callers
// do that with the returned server.
func bootstrap(configPath string, debug bool) (*daemon, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("statmcp: loading configuration: %w", err)
	}

	logCfg := logging.NewDefaultConfig()
	logCfg.Fields["service"] = cfg.Observability.ServiceName
	if debug {
		logCfg.Level = zapcore.DebugLevel
	} else if lvl, err := logging.LevelFromString(cfg.Observability.Level); err == nil {
		logCfg.Level = lvl
	}
	log, err := logging.NewLogger(logCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("statmcp: building logger: %w", err)
	}

	metrics := mcpmetrics.NewRegistry(prometheus.DefaultRegisterer)

	var bus *eventbus.Bus
	var publisher worker.EventPublisher
	if cfg.EventBus.Enabled {
		bus, err = eventbus.Start(cfg.EventBus)
		if err != nil {
			return nil, fmt.Errorf("statmcp: starting event bus: %w", err)
		}
		publisher = bus
	}

	vfsPolicy, err := vfs.New(cfg.VFS)
	if err != nil {
		return nil, fmt.Errorf("statmcp: building VFS policy: %w", err)
	}

	workerBridge := worker.New(cfg.Worker, publisher).WithMetrics(metrics)

	approvalRegistry := approval.NewRegistry(log).WithMetrics(metrics)
	approvalRegistry.SetAutoApprove(cfg.Approval.AutoApprove)
	if cfg.Approval.PatternsPath != "" {
		if err := approvalRegistry.LoadFile(cfg.Approval.PatternsPath); err != nil {
			return nil, fmt.Errorf("statmcp: loading approval patterns: %w", err)
		}
		if cfg.Approval.HotReload {
			if err := approvalRegistry.WatchFile(cfg.Approval.PatternsPath); err != nil {
				return nil, fmt.Errorf("statmcp: watching approval patterns: %w", err)
			}
		}
	}

	cat, err := catalog.Build(catalog.Deps{
		Worker:   workerBridge,
		VFS:      vfsPolicy,
		Approval: approvalRegistry,
	})
	if err != nil {
		return nil, fmt.Errorf("statmcp: building catalog: %w", err)
	}

	srv := mcpserver.New(
		mcpserver.ServerInfo{Name: cfg.Observability.ServiceName, Version: version},
		cat.Tools, cat.Resources, cat.ResourceTemplates, cat.Prompts,
		log,
	).WithMetrics(metrics)

	return &daemon{cfg: cfg, log: log, metrics: metrics, bus: bus, server: srv}, nil
}

// Close releases the daemon's background resources. Safe to call on a
// daemon whose event bus was never started.
func (d *daemon) Close(ctx context.Context) {
	if d.bus != nil {
		if err := d.bus.Close(); err != nil {
			d.log.Warn(ctx, "statmcp: event bus close failed", zap.Error(err))
		}
	}
}

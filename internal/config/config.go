// Package config loads and validates statmcpd's runtime configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config is the fully-resolved runtime configuration for statmcpd.
type Config struct {
	Production    ProductionConfig    `koanf:"production"`
	Server        ServerConfig        `koanf:"server"`
	Stdio         StdioConfig         `koanf:"stdio"`
	Observability ObservabilityConfig `koanf:"observability"`
	Session       SessionConfig       `koanf:"session"`
	Approval      ApprovalConfig      `koanf:"approval"`
	VFS           VFSConfig           `koanf:"vfs"`
	Worker        WorkerConfig        `koanf:"worker"`
	EventBus      EventBusConfig      `koanf:"event_bus"`
}

// ProductionConfig gates behaviors that should only run outside local dev.
type ProductionConfig struct {
	Enabled bool `koanf:"enabled"`
}

// ServerConfig controls the HTTP+SSE transport.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	CORSOrigins     []string `koanf:"cors_origins"`
	MaxBodyBytes    int64    `koanf:"max_body_bytes"`
}

// StdioConfig controls the stdio transport.
type StdioConfig struct {
	MaxLineBytes int      `koanf:"max_line_bytes"`
	PoolSize     int      `koanf:"pool_size"`
	DrainTimeout Duration `koanf:"drain_timeout"`
}

// ObservabilityConfig controls logging and telemetry export.
type ObservabilityConfig struct {
	Level           string `koanf:"level"`
	ServiceName     string `koanf:"service_name"`
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	OTLPEndpoint    string `koanf:"otlp_endpoint"`
}

// SessionConfig bounds session lifetime and progress notification rate.
type SessionConfig struct {
	IdleTimeout      Duration `koanf:"idle_timeout"`
	ProgressRateHz   float64  `koanf:"progress_rate_hz"`
	MaxConcurrentOps int      `koanf:"max_concurrent_ops"`
}

// ApprovalConfig controls the approval category pattern set.
type ApprovalConfig struct {
	PatternsPath string `koanf:"patterns_path"`
	HotReload    bool   `koanf:"hot_reload"`
	AutoApprove  bool   `koanf:"auto_approve"`
}

// VFSConfig controls the virtual file system policy.
type VFSConfig struct {
	Roots        []string `koanf:"roots"`
	ReadOnly     bool     `koanf:"read_only"`
	MaxFileBytes int64    `koanf:"max_file_bytes"`
	AllowedMIME  []string `koanf:"allowed_mime"`
	CacheSize    int      `koanf:"cache_size"`
}

// WorkerConfig controls subprocess execution.
type WorkerConfig struct {
	ScratchRoot        string   `koanf:"scratch_root"`
	ExecPath           string   `koanf:"exec_path"`
	DefaultTimeout     Duration `koanf:"default_timeout"`
	SoftTermGrace      Duration `koanf:"soft_term_grace"`
	MaxConcurrent      int      `koanf:"max_concurrent"`
	QueueWaitDeadline  Duration `koanf:"queue_wait_deadline"`
	StderrRingBufBytes int      `koanf:"stderr_ring_buf_bytes"`
}

// EventBusConfig controls the embedded NATS server.
type EventBusConfig struct {
	Enabled   bool   `koanf:"enabled"`
	StoreDir  string `koanf:"store_dir"`
	ClusterID string `koanf:"cluster_id"`
}

// Defaults returns a Config populated with the built-in defaults, applied
// before any file or environment overlay.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8787,
			ShutdownTimeout: Duration(10e9),
			MaxBodyBytes:    10 << 20,
		},
		Stdio: StdioConfig{
			MaxLineBytes: 4 << 20,
			PoolSize:     8,
			DrainTimeout: Duration(5e9),
		},
		Observability: ObservabilityConfig{
			Level:       "info",
			ServiceName: "statmcpd",
		},
		Session: SessionConfig{
			IdleTimeout:      Duration(30 * 60e9),
			ProgressRateHz:   20,
			MaxConcurrentOps: 16,
		},
		Approval: ApprovalConfig{
			PatternsPath: "",
			HotReload:    true,
		},
		VFS: VFSConfig{
			ReadOnly:     false,
			MaxFileBytes: 25 << 20,
			AllowedMIME:  []string{"text/plain", "text/csv", "application/json"},
			CacheSize:    4096,
		},
		Worker: WorkerConfig{
			ScratchRoot:        filepath.Join(os.TempDir(), "statmcp-worker"),
			DefaultTimeout:     Duration(60e9),
			SoftTermGrace:      Duration(3e9),
			MaxConcurrent:      4,
			QueueWaitDeadline:  Duration(30e9),
			StderrRingBufBytes: 64 << 10,
		},
		EventBus: EventBusConfig{
			Enabled:   true,
			ClusterID: "statmcp-local",
		},
	}
}

// Validate checks the resolved configuration for internal consistency.
// It does not touch the filesystem.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be positive")
	}
	if c.Observability.EnableTelemetry && strings.TrimSpace(c.Observability.ServiceName) == "" {
		return fmt.Errorf("observability.service_name required when telemetry is enabled")
	}
	if c.Session.ProgressRateHz <= 0 {
		return fmt.Errorf("session.progress_rate_hz must be positive")
	}
	if c.Session.MaxConcurrentOps < 1 {
		return fmt.Errorf("session.max_concurrent_ops must be >= 1")
	}
	if len(c.VFS.Roots) == 0 {
		return fmt.Errorf("vfs.roots must list at least one allow-listed root")
	}
	for _, root := range c.VFS.Roots {
		if !filepath.IsAbs(root) {
			return fmt.Errorf("vfs.roots entries must be absolute paths: %q", root)
		}
	}
	if c.VFS.MaxFileBytes <= 0 {
		return fmt.Errorf("vfs.max_file_bytes must be positive")
	}
	if c.Worker.MaxConcurrent < 1 {
		return fmt.Errorf("worker.max_concurrent must be >= 1")
	}
	if c.Worker.DefaultTimeout.Duration() <= 0 {
		return fmt.Errorf("worker.default_timeout must be positive")
	}
	if strings.TrimSpace(c.Worker.ScratchRoot) == "" {
		return fmt.Errorf("worker.scratch_root must not be empty")
	}
	return nil
}

package approval

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap"

	"github.com/arborist-labs/statmcp/internal/logging"
	"github.com/arborist-labs/statmcp/internal/mcpmetrics"
)

// Registry holds the currently active compiled category set and, when
// configured with a patterns file, watches it for changes and hot-swaps
// the set atomically. Existing per-session decisions are unaffected by a
// reload: Registry only changes which patterns future matches run against.
type Registry struct {
	compiled    atomic.Pointer[[]compiledCategory]
	watcher     *fsnotify.Watcher
	log         *logging.Logger
	autoApprove atomic.Bool
	metrics     *mcpmetrics.Registry
}

// WithMetrics attaches a collector registry; subsequent Gate resolutions
// record a decision count by category. Optional — a nil Registry (the
// zero value) is a no-op.
func (r *Registry) WithMetrics(m *mcpmetrics.Registry) *Registry {
	r.metrics = m
	return r
}

func (r *Registry) recordDecision(category, decision string) {
	if r.metrics == nil {
		return
	}
	r.metrics.ApprovalDecisions.WithLabelValues(category, decision).Inc()
}

// NewRegistry returns a Registry seeded with the built-in default
// category set.
func NewRegistry(log *logging.Logger) *Registry {
	r := &Registry{log: log}
	compiled, err := compileConfig(DefaultConfig())
	if err != nil {
		// The built-in defaults must always compile; a failure here is a
		// programming error, not a runtime condition.
		panic(fmt.Sprintf("approval: default config failed to compile: %v", err))
	}
	r.compiled.Store(&compiled)
	return r
}

// LoadFile parses path as patterns.toml and replaces the active category
// set. Categories omitted from the file fall back to the built-in default
// for that category id.
func (r *Registry) LoadFile(path string) error {
	cfg, err := loadConfigFile(path)
	if err != nil {
		return err
	}
	merged := mergeWithDefaults(cfg)
	if err := merged.Validate(); err != nil {
		return err
	}
	compiled, err := compileConfig(merged)
	if err != nil {
		return err
	}
	r.compiled.Store(&compiled)
	return nil
}

// WatchFile starts an fsnotify watch on path, reloading on every write
// event. Reload failures are logged and the previously active category
// set is kept in place.
func (r *Registry) WatchFile(path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("approval: creating watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return fmt.Errorf("approval: watching %s: %w", path, err)
	}
	r.watcher = watcher

	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := r.LoadFile(path); err != nil {
					r.log.Error(context.Background(), "approval: hot-reload failed, keeping previous pattern set",
						zap.String("path", path), zap.Error(err))
					continue
				}
				r.log.Info(context.Background(), "approval: reloaded pattern set", zap.String("path", path))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				r.log.Error(context.Background(), "approval: watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}

// Close stops the file watcher, if any.
func (r *Registry) Close() error {
	if r.watcher == nil {
		return nil
	}
	return r.watcher.Close()
}

// categories returns the currently active compiled category set.
func (r *Registry) categories() []compiledCategory {
	return *r.compiled.Load()
}

// MatchCategories returns the IDs of every category whose pattern set
// matches text, preserving category declaration order.
func (r *Registry) MatchCategories(text string) []string {
	var ids []string
	for _, cc := range r.categories() {
		if cc.Match(text) {
			ids = append(ids, cc.ID)
		}
	}
	return ids
}

// SetAutoApprove configures a server-wide override that resolves any
// unasked category to approved without prompting the client, used for
// automation and test harnesses per spec.md §4.4.
func (r *Registry) SetAutoApprove(enabled bool) {
	r.autoApprove.Store(enabled)
}

// AutoApprove reports whether the auto-approve override is active.
func (r *Registry) AutoApprove() bool {
	return r.autoApprove.Load()
}

// Describe returns the description for a category id, or "" if unknown.
func (r *Registry) Describe(id string) string {
	for _, cc := range r.categories() {
		if cc.ID == id {
			return cc.Description
		}
	}
	return ""
}

func loadConfigFile(path string) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
		return nil, fmt.Errorf("approval: loading %s: %w", path, err)
	}
	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("approval: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// mergeWithDefaults overlays cfg's categories onto the built-in defaults,
// replacing any default category with the same id and appending the rest.
func mergeWithDefaults(cfg *Config) *Config {
	defaults := DefaultConfig()
	byID := make(map[string]int, len(defaults.Categories))
	merged := make([]Category, len(defaults.Categories))
	copy(merged, defaults.Categories)
	for i, cat := range merged {
		byID[cat.ID] = i
	}
	for _, cat := range cfg.Categories {
		if i, ok := byID[cat.ID]; ok {
			merged[i] = cat
		} else {
			merged = append(merged, cat)
		}
	}
	return &Config{Categories: merged}
}

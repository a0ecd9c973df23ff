package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/arborist-labs/statmcp/internal/config"
	"github.com/arborist-labs/statmcp/internal/mcpmetrics"
	"github.com/arborist-labs/statmcp/internal/sanitize"
)

// EventPublisher receives worker lifecycle events for observability. The
// event bus implementation of this interface lives in internal/eventbus;
// worker depends only on this interface to avoid a package cycle.
type EventPublisher interface {
	Publish(subject string, payload any)
}

type noopPublisher struct{}

func (noopPublisher) Publish(string, any) {}

// Env is the _env block injected into every args.json, giving the script
// its execution context without requiring command-line argument parsing.
type Env struct {
	LogLevel     string `json:"log_level"`
	OutputPath   string `json:"output_path"`
	ProgressPipe string `json:"progress_pipe,omitempty"`
}

// Bridge spawns sandboxed worker scripts per invocation using the
// JSON-in/JSON-out temp-file protocol described in spec.md §4.6.
type Bridge struct {
	cfg     config.WorkerConfig
	sem     *semaphore
	pub     EventPublisher
	metrics *mcpmetrics.Registry
}

// New builds a Bridge. pub may be nil, in which case events are dropped.
func New(cfg config.WorkerConfig, pub EventPublisher) *Bridge {
	if pub == nil {
		pub = noopPublisher{}
	}
	return &Bridge{
		cfg: cfg,
		sem: newSemaphore(cfg.MaxConcurrent),
		pub: pub,
	}
}

// WithMetrics attaches a collector registry; subsequent invocations
// update worker concurrency and outcome counters. Optional — a nil
// Registry (the zero value) is a no-op.
func (b *Bridge) WithMetrics(m *mcpmetrics.Registry) *Bridge {
	b.metrics = m
	return b
}

// Invoke runs scriptID with args, returning the parsed result document.
// sessionID is used only to tag published events (the scratch directory
// is named from scriptID and a fresh invocation id); cancel, if non-nil, is observed cooperatively alongside ctx and
// the configured hard deadline.
func (b *Bridge) Invoke(ctx context.Context, sessionID, scriptID string, args map[string]any, cancel <-chan struct{}) (json.RawMessage, error) {
	invocationID := uuid.NewString()
	subjectPrefix := fmt.Sprintf("operations.%s.%s", sanitize.Identifier(sessionID), invocationID)

	release, err := b.sem.Acquire(ctx, b.cfg.QueueWaitDeadline.Duration())
	if err != nil {
		b.pub.Publish(subjectPrefix+".queued_out", map[string]any{"script": scriptID})
		return nil, err
	}
	defer release()

	b.pub.Publish(subjectPrefix+".started", map[string]any{"script": scriptID})
	if b.metrics != nil {
		b.metrics.WorkerActive.Inc()
		defer b.metrics.WorkerActive.Dec()
	}

	dirName := sanitize.ScratchDirName(scriptID, invocationID)
	scratchDir := filepath.Join(b.cfg.ScratchRoot, dirName)
	if err := os.MkdirAll(scratchDir, 0o700); err != nil {
		return nil, &Error{Kind: KindExecutionError, Err: fmt.Errorf("creating scratch dir: %w", err)}
	}
	defer os.RemoveAll(scratchDir)

	argsPath := filepath.Join(scratchDir, "args.json")
	resultPath := filepath.Join(scratchDir, "result.json")

	payload := map[string]any{}
	for k, v := range args {
		payload[k] = v
	}
	payload["_env"] = Env{LogLevel: "info", OutputPath: resultPath}

	argsBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, &Error{Kind: KindProtocolError, Err: fmt.Errorf("marshaling args: %w", err)}
	}
	if err := os.WriteFile(argsPath, argsBytes, 0o600); err != nil {
		return nil, &Error{Kind: KindExecutionError, Err: fmt.Errorf("writing args.json: %w", err)}
	}
	if err := os.WriteFile(resultPath, []byte{}, 0o600); err != nil {
		return nil, &Error{Kind: KindExecutionError, Err: fmt.Errorf("writing result.json: %w", err)}
	}

	result, err := b.run(ctx, scriptID, argsPath, resultPath, cancel)

	if err != nil {
		b.pub.Publish(subjectPrefix+".failed", map[string]any{"script": scriptID, "error": err.Error()})
		outcome := "failed"
		var werr *Error
		if errors.As(err, &werr) {
			outcome = string(werr.Kind)
		}
		b.observe(scriptID, outcome)
		return nil, err
	}
	b.pub.Publish(subjectPrefix+".completed", map[string]any{"script": scriptID})
	b.observe(scriptID, "completed")
	return result, nil
}

func (b *Bridge) observe(scriptID, outcome string) {
	if b.metrics == nil {
		return
	}
	b.metrics.WorkerInvocations.WithLabelValues(scriptID, outcome).Inc()
}

func (b *Bridge) run(parent context.Context, scriptID, argsPath, resultPath string, cancel <-chan struct{}) (json.RawMessage, error) {
	deadline := b.cfg.DefaultTimeout.Duration()
	ctx, stop := context.WithTimeout(parent, deadline)
	defer stop()

	cmd := exec.CommandContext(ctx, b.cfg.ExecPath, scriptID, argsPath, resultPath)
	stderr := newRingBuffer(b.cfg.StderrRingBufBytes)
	cmd.Stderr = stderr
	cmd.Stdout = &bytes.Buffer{}

	if err := cmd.Start(); err != nil {
		return nil, &Error{Kind: KindExecutionError, Err: fmt.Errorf("starting worker: %w", err)}
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		return b.finish(cmd, err, resultPath, stderr)

	case <-cancel:
		return b.terminate(cmd, done, stderr, KindCancelled)

	case <-ctx.Done():
		return b.terminate(cmd, done, stderr, KindTimeout)
	}
}

// terminate sends SIGTERM, waits a grace period, then SIGKILLs.
func (b *Bridge) terminate(cmd *exec.Cmd, done <-chan error, stderr *ringBuffer, kind Kind) (json.RawMessage, error) {
	if cmd.Process != nil {
		_ = cmd.Process.Signal(syscall.SIGTERM)
	}

	grace := b.cfg.SoftTermGrace.Duration()
	select {
	case <-done:
	case <-time.After(grace):
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		<-done
	}

	return nil, &Error{Kind: kind, StderrTail: stderr.String()}
}

func (b *Bridge) finish(cmd *exec.Cmd, waitErr error, resultPath string, stderr *ringBuffer) (json.RawMessage, error) {
	if waitErr != nil {
		exitCode := -1
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		return nil, &Error{Kind: KindExecutionError, ExitCode: exitCode, StderrTail: stderr.String(), Err: waitErr}
	}

	raw, err := os.ReadFile(resultPath)
	if err != nil {
		return nil, &Error{Kind: KindProtocolError, StderrTail: stderr.String(), Err: fmt.Errorf("reading result.json: %w", err)}
	}

	var probe json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, &Error{Kind: KindProtocolError, StderrTail: stderr.String(), Err: fmt.Errorf("parsing result.json: %w", err)}
	}

	return raw, nil
}

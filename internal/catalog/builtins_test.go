package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arborist-labs/statmcp/internal/approval"
	statmcpconfig "github.com/arborist-labs/statmcp/internal/config"
	"github.com/arborist-labs/statmcp/internal/logging"
	"github.com/arborist-labs/statmcp/internal/session"
	"github.com/arborist-labs/statmcp/internal/vfs"
	"github.com/arborist-labs/statmcp/internal/worker"
)

const fakeRuntime = `#!/bin/sh
RESULT_PATH="$3"
echo '{"mean": 4.2, "_formatting": "mean is **4.2**"}' > "$RESULT_PATH"
`

func newTestDeps(t *testing.T) (Deps, string) {
	t.Helper()
	root := t.TempDir()
	v, err := vfs.New(statmcpconfig.VFSConfig{Roots: []string{root}, MaxFileBytes: 1 << 20, CacheSize: 16})
	require.NoError(t, err)

	scriptPath := filepath.Join(t.TempDir(), "runtime.sh")
	require.NoError(t, os.WriteFile(scriptPath, []byte(fakeRuntime), 0o700))

	wb := worker.New(statmcpconfig.WorkerConfig{
		ScratchRoot:        t.TempDir(),
		ExecPath:           scriptPath,
		DefaultTimeout:     statmcpconfig.Duration(2e9),
		SoftTermGrace:      statmcpconfig.Duration(1e8),
		MaxConcurrent:      2,
		QueueWaitDeadline:  statmcpconfig.Duration(1e9),
		StderrRingBufBytes: 4096,
	}, nil)

	reg := approval.NewRegistry(logging.NewTestLogger().Logger)
	reg.SetAutoApprove(true)

	return Deps{Worker: wb, VFS: v, Approval: reg}, root
}

type noopBackChannel struct{}

func (noopBackChannel) Notify(string, any) {}

func (noopBackChannel) Request(context.Context, string, any) (json.RawMessage, error) {
	return nil, errors.New("noopBackChannel: Request not implemented")
}

func TestSummaryHandler_Success(t *testing.T) {
	deps, root := newTestDeps(t)
	datasetPath := filepath.Join(root, "data.csv")
	require.NoError(t, os.WriteFile(datasetPath, []byte("a,b\n1,2\n"), 0o600))

	sess := session.New()
	require.NoError(t, sess.Initialize("2025-06-18", session.ClientInfo{Name: "t"}))
	ctx := session.NewContext(context.Background(), sess, "req-1", logging.NewTestLogger().Logger, noopBackChannel{})

	handler := summaryHandler(deps)
	args, _ := json.Marshal(map[string]any{"dataset_path": datasetPath})
	result, err := handler(ctx, args)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.IsError)
	assert.NotEmpty(t, result.Content)
}

func TestSummaryHandler_RejectsPathOutsideVFSRoot(t *testing.T) {
	deps, _ := newTestDeps(t)
	outside := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(outside, []byte("a,b\n1,2\n"), 0o600))

	sess := session.New()
	ctx := session.NewContext(context.Background(), sess, "req-1", logging.NewTestLogger().Logger, noopBackChannel{})

	handler := summaryHandler(deps)
	args, _ := json.Marshal(map[string]any{"dataset_path": outside})
	result, err := handler(ctx, args)
	require.Error(t, err)
	assert.Nil(t, result)

	var denied *vfs.DeniedError
	assert.ErrorAs(t, err, &denied)
}

func TestSummaryHandler_ApprovalDenied(t *testing.T) {
	deps, root := newTestDeps(t)
	deps.Approval.SetAutoApprove(false)
	datasetPath := filepath.Join(root, "data.csv")
	require.NoError(t, os.WriteFile(datasetPath, []byte("a,b\n1,2\n"), 0o600))

	sess := session.New()
	ctx := session.NewContext(context.Background(), sess, "req-1", logging.NewTestLogger().Logger, noopBackChannel{})
	ctx.Elicit = func(categoryID, description string) (session.ApprovalDecision, error) {
		return session.DecisionDenied, nil
	}

	handler := summaryHandler(deps)
	args, _ := json.Marshal(map[string]any{"dataset_path": datasetPath, "columns": []string{"rm -rf /tmp/x"}})
	result, err := handler(ctx, args)
	require.Error(t, err)
	require.Nil(t, result)

	var denied *approval.DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, approval.CategoryFileOperations, denied.Category)
}

func TestSummaryHandler_InvalidArgumentsJSON(t *testing.T) {
	deps, _ := newTestDeps(t)
	sess := session.New()
	ctx := session.NewContext(context.Background(), sess, "req-1", logging.NewTestLogger().Logger, noopBackChannel{})

	handler := summaryHandler(deps)
	result, err := handler(ctx, json.RawMessage(`not json`))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

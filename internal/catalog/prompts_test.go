package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arborist-labs/statmcp/internal/logging"
	"github.com/arborist-labs/statmcp/internal/session"
)

func TestDescribeDatasetRenderer_RendersUserMessage(t *testing.T) {
	ctx := session.NewContext(context.Background(), session.New(), "req-1", logging.NewTestLogger().Logger, noopBackChannel{})

	prompts := RegisterBuiltinPrompts()
	require.Len(t, prompts, 1)
	assert.Equal(t, "describe_dataset", prompts[0].Name)

	messages, err := prompts[0].Renderer(ctx, map[string]string{"dataset_path": "data/sample.csv"})
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "user", messages[0].Role)
	assert.Contains(t, messages[0].Content.Text, "data/sample.csv")
	assert.Contains(t, messages[0].Content.Text, "stats.summary")
}

func TestDescribeDatasetRenderer_RequiresDatasetPath(t *testing.T) {
	ctx := session.NewContext(context.Background(), session.New(), "req-1", logging.NewTestLogger().Logger, noopBackChannel{})

	prompts := RegisterBuiltinPrompts()
	_, err := prompts[0].Renderer(ctx, map[string]string{})
	assert.Error(t, err)
}

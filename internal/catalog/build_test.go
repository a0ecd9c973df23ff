package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arborist-labs/statmcp/internal/registry"
)

func TestBuild_RegistersBuiltinsAndCloses(t *testing.T) {
	deps, _ := newTestDeps(t)

	cat, err := Build(deps)
	require.NoError(t, err)

	assert.Equal(t, 2, cat.Tools.Len())
	assert.Equal(t, 1, cat.Resources.Len())
	assert.Equal(t, 0, cat.ResourceTemplates.Len())
	assert.Equal(t, 1, cat.Prompts.Len())

	_, err = cat.Tools.Get("stats.summary")
	require.NoError(t, err)

	err = cat.Tools.Register(Tool{Name: "late_entry"})
	assert.ErrorIs(t, err, registry.ErrClosed)
}

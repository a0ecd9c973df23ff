package approval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileConfig_DefaultCompiles(t *testing.T) {
	compiled, err := compileConfig(DefaultConfig())
	require.NoError(t, err)
	assert.Len(t, compiled, 3)
}

func TestCompileConfig_BadPatternFails(t *testing.T) {
	cfg := &Config{Categories: []Category{
		{ID: "broken", Description: "x", Patterns: []string{"("}},
	}}
	_, err := compileConfig(cfg)
	assert.Error(t, err)
}

func TestCompiledCategory_Match(t *testing.T) {
	compiled, err := compileConfig(DefaultConfig())
	require.NoError(t, err)

	var fileOps compiledCategory
	for _, cc := range compiled {
		if cc.ID == CategoryFileOperations {
			fileOps = cc
		}
	}
	require.NotEmpty(t, fileOps.ID)
	assert.True(t, fileOps.Match("rm -rf /tmp/foo"))
	assert.False(t, fileOps.Match("ls -la"))
}

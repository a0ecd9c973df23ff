package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTool struct {
	Name string
}

func newToolRegistrar() *Registrar[fakeTool] {
	return NewRegistrar(func(t fakeTool) string { return t.Name })
}

func TestRegistrar_RegisterAndGet(t *testing.T) {
	r := newToolRegistrar()

	require.NoError(t, r.Register(fakeTool{Name: "summary"}))
	require.NoError(t, r.Register(fakeTool{Name: "regression"}))

	got, err := r.Get("summary")
	require.NoError(t, err)
	assert.Equal(t, "summary", got.Name)

	_, err = r.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistrar_DuplicateNameRejected(t *testing.T) {
	r := newToolRegistrar()
	require.NoError(t, r.Register(fakeTool{Name: "summary"}))

	err := r.Register(fakeTool{Name: "summary"})
	assert.ErrorIs(t, err, ErrDuplicateName)
}

func TestRegistrar_InvalidNameRejected(t *testing.T) {
	r := newToolRegistrar()
	err := r.Register(fakeTool{Name: "Bad Name!"})
	assert.Error(t, err)
}

func TestRegistrar_ClosedRejectsRegistration(t *testing.T) {
	r := newToolRegistrar()
	r.Close()

	err := r.Register(fakeTool{Name: "summary"})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRegistrar_ListPagination(t *testing.T) {
	r := newToolRegistrar()
	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, r.Register(fakeTool{Name: name}))
	}

	page, err := r.List("", nil)
	require.NoError(t, err)
	require.Len(t, page.Entries, 3)
	assert.Empty(t, page.NextCursor)
}

func TestRegistrar_ListAnnotateFiltersEntries(t *testing.T) {
	r := newToolRegistrar()
	require.NoError(t, r.Register(fakeTool{Name: "visible"}))
	require.NoError(t, r.Register(fakeTool{Name: "hidden"}))

	page, err := r.List("", func(t fakeTool) (fakeTool, bool) {
		return t, t.Name == "visible"
	})
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, "visible", page.Entries[0].Name)
}

func TestRegistrar_ListInvalidCursor(t *testing.T) {
	r := newToolRegistrar()
	require.NoError(t, r.Register(fakeTool{Name: "a"}))

	_, err := r.List("not-a-number", nil)
	assert.Error(t, err)
}

func TestRegistrar_Len(t *testing.T) {
	r := newToolRegistrar()
	assert.Equal(t, 0, r.Len())
	require.NoError(t, r.Register(fakeTool{Name: "a"}))
	assert.Equal(t, 1, r.Len())
}

package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkspaceResetClearsStaleFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "work")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "leftover"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "leftover", "crash.tif"), []byte("stale"), 0644))

	w := NewWorkspace(dir)
	require.NoError(t, w.Reset())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, 1, w.Resets())
}

func TestWorkspaceScopedWipesAfterUse(t *testing.T) {
	w := NewWorkspace(filepath.Join(t.TempDir(), "work"))

	err := w.Scoped(func(dir string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a.tif"), []byte("a"), 0644))
	})
	require.NoError(t, err)

	entries, err := os.ReadDir(w.Dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, 2, w.Resets())
}

func TestWorkspaceScopedWipesOnPanic(t *testing.T) {
	w := NewWorkspace(filepath.Join(t.TempDir(), "work"))

	assert.Panics(t, func() {
		w.Scoped(func(dir string) {
			os.WriteFile(filepath.Join(dir, "a.tif"), []byte("a"), 0644)
			panic("processing blew up")
		})
	})

	entries, err := os.ReadDir(w.Dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWorkspaceResetFailure(t *testing.T) {
	parent := t.TempDir()
	blocker := filepath.Join(parent, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	// A regular file sits where the workspace's parent directory should be.
	w := NewWorkspace(filepath.Join(blocker, "work"))
	called := false
	err := w.Scoped(func(string) { called = true })

	var wsErr *WorkspaceError
	require.ErrorAs(t, err, &wsErr)
	assert.False(t, called)
}

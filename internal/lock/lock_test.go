package lock

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/torctl/internal/exitcode"
)

func TestPathFor(t *testing.T) {
	assert.Equal(t, filepath.Join("opt", "tor.lock"), PathFor(filepath.Join("opt", "tor")+string(filepath.Separator)))
}

func TestTryAcquire(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "tor")

	l, err := TryAcquire(dir)
	require.NoError(t, err)
	assert.Equal(t, PathFor(dir), l.Path())

	_, err = TryAcquire(dir)
	require.Error(t, err)
	assert.True(t, exitcode.Is(err, exitcode.ErrBusy))

	require.NoError(t, l.Release())

	again, err := TryAcquire(dir)
	require.NoError(t, err)
	require.NoError(t, again.Release())
}

func TestTryAcquire_IndependentDirs(t *testing.T) {
	root := t.TempDir()
	a, err := TryAcquire(filepath.Join(root, "a"))
	require.NoError(t, err)
	defer a.Release()

	b, err := TryAcquire(filepath.Join(root, "b"))
	require.NoError(t, err)
	defer b.Release()
}

package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatch(t *testing.T) {
	path := writeFile(t, "ircd.yaml", "server:\n  name: one\n")
	other := filepath.Join(filepath.Dir(path), "other.yaml")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	require.NoError(t, Watch(ctx, path, 50*time.Millisecond, func() { calls.Add(1) }))

	// unrelated files in the same directory are ignored
	require.NoError(t, os.WriteFile(other, []byte("x"), 0o600))
	time.Sleep(200 * time.Millisecond)
	assert.Zero(t, calls.Load())

	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(path, []byte("server:\n  name: two\n"), 0o600))
	}
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	// rename-into-place counts as a change
	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, []byte("server:\n  name: three\n"), 0o600))
	require.NoError(t, os.Rename(tmp, path))
	assert.Eventually(t, func() bool { return calls.Load() == 2 }, 2*time.Second, 10*time.Millisecond)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "three", cfg.Server.Name)
}

func TestWatchMissingDirectory(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "nope", "ircd.yaml"), DefaultWatchDebounce, func() {})
	assert.Error(t, err)
}

func TestIsLocalFile(t *testing.T) {
	assert.True(t, IsLocalFile("ircd.yaml"))
	assert.False(t, IsLocalFile(""))
	assert.False(t, IsLocalFile("https://example.com/ircd.yaml"))
}

package main

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

func TestWatchConfig_DebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agent: {}\n"), 0o600))

	var calls atomic.Int32
	w, err := watchConfig(context.Background(), path, testLogger(), func() { calls.Add(1) })
	require.NoError(t, err)
	defer w.Stop()

	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(path, []byte("agent:\n  maxIterations: 5\n"), 0o600))
	}
	// Other files in the directory are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o600))

	assert.Eventually(t, func() bool { return calls.Load() >= 1 }, 5*time.Second, 50*time.Millisecond)
	time.Sleep(2 * w.debounce)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWatchConfig_StopIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))

	w, err := watchConfig(context.Background(), path, testLogger(), func() {})
	require.NoError(t, err)
	w.Stop()
	w.Stop()
}

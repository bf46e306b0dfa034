package confloader

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

// runWatcher runs w until the test ends.
func runWatcher(t *testing.T, w *Watcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestNewWatcher_MissingDirectory(t *testing.T) {
	_, err := NewWatcher("/nonexistent/peerscout/config.yaml")
	assert.Error(t, err)
}

func TestWatcher_CallsHandlersForItsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "peerscout.yaml")
	writeFile(t, path, "log:\n  level: info\n")

	w, err := NewWatcher(path, WithSettle(0))
	require.NoError(t, err)

	var calls atomic.Int32
	var got atomic.Value
	w.OnChange(func(p string) {
		got.Store(p)
		calls.Add(1)
	})
	runWatcher(t, w)

	writeFile(t, filepath.Join(dir, "unrelated.yaml"), "x: 1\n")
	writeFile(t, path, "log:\n  level: debug\n")

	require.Eventually(t, func() bool { return calls.Load() > 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, path, got.Load())
}

func TestWatcher_WaitsForFileToSettle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peerscout.yaml")
	writeFile(t, path, "a: 1\n")

	mock := clock.NewMock()
	w, err := NewWatcher(path, WithSettle(time.Second), WithClock(mock))
	require.NoError(t, err)

	var calls atomic.Int32
	w.OnChange(func(string) { calls.Add(1) })
	runWatcher(t, w)

	writeFile(t, path, "a: 2\n")
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, calls.Load(), "handlers must wait for the quiet period")

	require.Eventually(t, func() bool {
		mock.Add(time.Second)
		return calls.Load() > 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_RunStopsWithContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peerscout.yaml")
	w, err := NewWatcher(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestWatcher_HandlerAddedWhileRunning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peerscout.yaml")
	writeFile(t, path, "a: 1\n")

	w, err := NewWatcher(path, WithSettle(0))
	require.NoError(t, err)
	runWatcher(t, w)

	var calls atomic.Int32
	w.OnChange(func(string) { calls.Add(1) })
	writeFile(t, path, "a: 2\n")

	require.Eventually(t, func() bool { return calls.Load() > 0 }, 2*time.Second, 10*time.Millisecond)
}

package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherReloadsOnExternalWrite(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "checklists.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"Pump-1": ["a", "b"]}`), 0o600))

	c, err := Load(path)
	require.NoError(t, err)

	reloaded := make(chan struct{}, 1)
	w, err := NewWatcher(c, func() {
		select {
		case reloaded <- struct{}{}:
		default:
		}
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher a moment to start before touching the file.
	time.Sleep(50 * time.Millisecond)
	content := `{"Pump-1": ["a", "b"], "Press-2": ["c", "d"]}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	select {
	case <-reloaded:
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not reload after external write")
	}
	assert.Equal(t, 2, c.Len())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop on cancel")
	}
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "checklists.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"Pump-1": ["a", "b"]}`), 0o600))

	c, err := Load(path)
	require.NoError(t, err)

	reloaded := make(chan struct{}, 1)
	w, err := NewWatcher(c, func() { reloaded <- struct{}{} })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "unrelated.txt"), []byte("x"), 0o600))

	select {
	case <-reloaded:
		t.Fatal("watcher reloaded for an unrelated file")
	case <-time.After(300 * time.Millisecond):
	}
}

package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"quarry/internal/log"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchDeliversChanges(t *testing.T) {
	tempDir := t.TempDir()

	w, err := New(log.Discard())
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	changes := make(chan Change, 16)
	cancel, err := w.Watch(tempDir, func(c Change) {
		select {
		case changes <- c:
		default:
		}
	})
	require.NoError(t, err)
	defer cancel()
	assert.Equal(t, []string{filepath.Clean(tempDir)}, w.Directories())

	// Allow a brief moment for fsnotify to initialize watches
	time.Sleep(50 * time.Millisecond)

	testFilePath := filepath.Join(tempDir, "testfile.txt")
	require.NoError(t, os.WriteFile(testFilePath, []byte("x"), 0o644))

	select {
	case c := <-changes:
		assert.Equal(t, testFilePath, c.Path)
		assert.Equal(t, filepath.Clean(tempDir), c.Dir)
		assert.True(t, c.Op.Has(fsnotify.Create) || c.Op.Has(fsnotify.Write))
	case <-time.After(3 * time.Second):
		t.Fatal("Timeout waiting for change")
	}
}

func TestUnwatchRemovesDirectory(t *testing.T) {
	tempDir := t.TempDir()
	w, err := New(log.Discard())
	require.NoError(t, err)
	defer w.Stop()

	first, err := w.Watch(tempDir, func(Change) {})
	require.NoError(t, err)
	second, err := w.Watch(tempDir, func(Change) {})
	require.NoError(t, err)

	first()
	first()
	assert.Len(t, w.Directories(), 1)
	second()
	assert.Empty(t, w.Directories())
}

func TestWatchRejectsFiles(t *testing.T) {
	tempDir := t.TempDir()
	file := filepath.Join(tempDir, "f")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	w, err := New(log.Discard())
	require.NoError(t, err)
	defer w.Stop()

	_, err = w.Watch(file, func(Change) {})
	assert.Error(t, err)
	_, err = w.Watch(filepath.Join(tempDir, "missing"), func(Change) {})
	assert.Error(t, err)
}

func TestStartStop(t *testing.T) {
	w, err := New(log.Discard())
	require.NoError(t, err)

	require.NoError(t, w.Start())
	assert.True(t, w.IsRunning())
	assert.Error(t, w.Start())

	w.Stop()
	assert.False(t, w.IsRunning())
	w.Stop()
	assert.Error(t, w.Start(), "a stopped watcher cannot be restarted")
}

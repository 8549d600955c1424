package web

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

func TestChangeWatcherFiresForProjectFiles(t *testing.T) {
	root := t.TempDir()
	project := filepath.Join(root, "-src-api")
	require.NoError(t, os.MkdirAll(project, 0o755))

	var fired atomic.Int32
	w, err := newChangeWatcher([]string{root}, func() { fired.Add(1) })
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.NoError(t, os.WriteFile(filepath.Join(project, "c1.jsonl"), []byte("{}\n"), 0o644))
	assert.Eventually(t, func() bool { return fired.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
}

func TestChangeWatcherFollowsNewProjectDirs(t *testing.T) {
	root := t.TempDir()

	var fired atomic.Int32
	w, err := newChangeWatcher([]string{root}, func() { fired.Add(1) })
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	project := filepath.Join(root, "-src-new")
	require.NoError(t, os.MkdirAll(project, 0o755))
	assert.Eventually(t, func() bool { return fired.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)

	before := fired.Load()
	// Give the watcher a moment to register the new directory.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(project, "c1.jsonl"), []byte("{}\n"), 0o644))
	assert.Eventually(t, func() bool { return fired.Load() > before }, 3*time.Second, 20*time.Millisecond)
}

func TestChangeWatcherNoRoots(t *testing.T) {
	_, err := newChangeWatcher([]string{filepath.Join(t.TempDir(), "missing")}, func() {})
	assert.Error(t, err)
}

package web

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/orcadeck/orca/internal/platform"
)

const watcherDebounce = 250 * time.Millisecond

// changeWatcher calls onChange (debounced) when anything under its roots
// changes. Each root and its immediate subdirectories are watched, which
// covers the transcripts layout <root>/<project>/<id>.jsonl and the
// directory holding state.db and its WAL.
type changeWatcher struct {
	watcher  *fsnotify.Watcher
	roots    map[string]bool
	onChange func()

	closeOnce sync.Once
}

func newChangeWatcher(roots []string, onChange func()) (*changeWatcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &changeWatcher{watcher: fw, roots: make(map[string]bool), onChange: onChange}
	added := 0
	for _, root := range roots {
		root = filepath.Clean(root)
		if err := fw.Add(root); err != nil {
			webLog.Warn("watch_add_failed", slog.String("dir", root), slog.String("error", err.Error()))
			continue
		}
		if caveat := platform.WatchCaveat(root); caveat != "" {
			webLog.Warn("watch_unreliable", slog.String("dir", root), slog.String("reason", caveat))
		}
		w.roots[root] = true
		added++
		entries, _ := os.ReadDir(root)
		for _, e := range entries {
			if e.IsDir() {
				_ = fw.Add(filepath.Join(root, e.Name()))
			}
		}
	}
	if added == 0 {
		_ = fw.Close()
		return nil, os.ErrNotExist
	}
	return w, nil
}

// Run processes events until ctx ends or Close is called.
func (w *changeWatcher) Run(ctx context.Context) {
	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	fire := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(watcherDebounce, w.onChange)
	}
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create != 0 && w.roots[filepath.Dir(event.Name)] {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.watcher.Add(event.Name)
				}
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			fire()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			webLog.Warn("watcher_error", slog.String("error", err.Error()))
		}
	}
}

// Close stops the underlying fsnotify watcher. Safe to call twice.
func (w *changeWatcher) Close() {
	w.closeOnce.Do(func() { _ = w.watcher.Close() })
}

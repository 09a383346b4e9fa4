package content

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounce coalesces bursts of fsnotify events (editors tend to fire
// several per save) into one reload.
const debounce = 500 * time.Millisecond

// Watch reloads the store when the content tree changes, and rescans
// on a fixed cadence as a safety net for edits fsnotify misses (new
// subdirectories, network filesystems). Blocks until ctx is done.
func (s *Store) Watch(ctx context.Context, rescan time.Duration) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("content: fsnotify unavailable, polling only", "error", err)
		return s.pollOnly(ctx, rescan)
	}
	defer watcher.Close()

	s.addWatchDirs(watcher)

	ticker := time.NewTicker(rescan)
	defer ticker.Stop()

	var pending *time.Timer
	var pendingC <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return s.pollOnly(ctx, rescan)
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if pending == nil {
				pending = time.NewTimer(debounce)
				pendingC = pending.C
			} else {
				pending.Reset(debounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return s.pollOnly(ctx, rescan)
			}
			slog.Warn("content: watch error", "error", err)
		case <-pendingC:
			pending, pendingC = nil, nil
			s.reloadAndLog()
			s.addWatchDirs(watcher) // pick up newly created subdirs
		case <-ticker.C:
			s.reloadAndLog()
		}
	}
}

func (s *Store) pollOnly(ctx context.Context, rescan time.Duration) error {
	ticker := time.NewTicker(rescan)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.reloadAndLog()
		}
	}
}

func (s *Store) reloadAndLog() {
	if err := s.Reload(); err != nil {
		slog.Warn("content: reload failed", "error", err)
	}
}

// addWatchDirs registers the content dir and every subdirectory.
// Re-adding an already watched dir is a no-op.
func (s *Store) addWatchDirs(watcher *fsnotify.Watcher) {
	filepath.WalkDir(s.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if err := watcher.Add(path); err != nil {
			slog.Debug("content: watch add failed", "path", path, "error", err)
		}
		return nil
	})
}

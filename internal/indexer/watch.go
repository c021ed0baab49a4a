package indexer

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Aman-CERP/amanrag/internal/errors"
)

// Watch re-indexes files as they change. Events are debounced so rapid
// save bursts coalesce into one changed-files run per window. Blocks
// until the context is cancelled.
func (ix *Indexer) Watch(ctx context.Context, opts Options) error {
	if opts.Root == "" {
		return errors.Validation("root", "a repository root is required")
	}
	debounce := ix.cfg.WatchDebounce
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(errors.KindInternal, "create file watcher", err)
	}
	defer watcher.Close()

	if err := ix.watchDirs(watcher, opts.Root); err != nil {
		return err
	}
	ix.logger.Info("watching for changes", "root", opts.Root, "debounce", debounce)

	pending := make(map[string]struct{})
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		paths := make([]string, 0, len(pending))
		for p := range pending {
			paths = append(paths, p)
		}
		clear(pending)
		timerC = nil
		if len(paths) == 0 {
			return
		}
		if _, err := ix.IndexChangedFiles(ctx, opts, paths); err != nil {
			ix.logger.Warn("watch re-index failed", "error", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			rel, err := filepath.Rel(opts.Root, event.Name)
			if err != nil || strings.HasPrefix(rel, "..") {
				continue
			}
			rel = filepath.ToSlash(rel)
			if skipWatchPath(rel) {
				continue
			}
			// New directories need their own watch.
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = ix.watchDirs(watcher, event.Name)
					continue
				}
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				pending[rel] = struct{}{}
				if timer == nil {
					timer = time.NewTimer(debounce)
				} else {
					timer.Reset(debounce)
				}
				timerC = timer.C
			}

		case <-timerC:
			flush()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			ix.logger.Warn("watch error", "error", err)
		}
	}
}

// watchDirs registers root and all its non-ignored subdirectories.
func (ix *Indexer) watchDirs(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if name := d.Name(); strings.HasPrefix(name, ".") && path != root {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			ix.logger.Warn("watch add failed", "dir", path, "error", err)
		}
		return nil
	})
}

// skipWatchPath filters event paths that are never indexable.
func skipWatchPath(rel string) bool {
	for _, part := range strings.Split(rel, "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
		if part == "node_modules" || part == "vendor" {
			return true
		}
	}
	return false
}

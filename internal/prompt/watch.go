package prompt

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads lib whenever the prompts file at path is written or recreated.
// The parent directory is watched so editors that replace the file are handled.
// Returns once the watcher is registered; it stops when ctx is done.
func Watch(ctx context.Context, lib *Library, path string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	target := filepath.Clean(path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create prompts watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}

	logger = logger.With("component", "prompts", "path", target)

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := lib.Reload(target); err != nil {
					logger.Warn("prompts reload failed, keeping previous prompts", "error", err)
					continue
				}
				logger.Info("prompts reloaded")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("prompts watcher error", "error", err)
			}
		}
	}()

	return nil
}

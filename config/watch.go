package config

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/moby/tapkit/log"
	"github.com/pkg/errors"
)

// WatchManager reloads the manager config file whenever it changes and calls
// fn with the new values. Invalid files are logged and skipped. WatchManager
// blocks until ctx is done.
func WatchManager(ctx context.Context, path string, base Manager, fn func(*Manager)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create config watcher")
	}
	defer watcher.Close()

	// Editors replace files on save, so watch the directory.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return errors.Wrapf(err, "failed to watch %s", path)
	}

	logger := log.G(ctx).WithField("path", path)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			c := base
			if err := Load(path, &c); err != nil {
				logger.WithError(err).Error("failed to reload config")
				continue
			}
			if err := c.Validate(); err != nil {
				logger.WithError(err).Error("ignoring invalid config")
				continue
			}
			logger.Debug("config reloaded")
			fn(&c)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.WithError(err).Warn("config watcher error")
		case <-ctx.Done():
			return nil
		}
	}
}

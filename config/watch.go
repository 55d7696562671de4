package config

import (
	"context"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
)

// Watch re-parses path whenever it is written or replaced and hands every
// valid result to onChange. Invalid files are logged and skipped. The
// directory is watched rather than the file so editors that rename over
// the file are still seen. Watch returns nil once ctx is done.
func Watch(ctx context.Context, path string, logger *log.Logger, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create config watcher")
	}
	defer watcher.Close()

	target, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrapf(err, "resolve config path %s", path)
	}

	err = watcher.Add(filepath.Dir(target))
	if err != nil {
		return errors.Wrapf(err, "watch %s", filepath.Dir(target))
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevant(e, target) {
				continue
			}

			cfg, err := Load(target)
			if err != nil {
				logger.Warn("ignoring config change", "path", target, "err", err)
				continue
			}
			logger.Info("config reloaded", "path", target)
			onChange(cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher", "err", err)
		}
	}
}

func relevant(e fsnotify.Event, target string) bool {
	name, err := filepath.Abs(e.Name)
	if err != nil || name != target {
		return false
	}
	return e.Op&(fsnotify.Create|fsnotify.Write) != 0
}

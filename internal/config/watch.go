package config

import (
	"context"

	"github.com/fsnotify/fsnotify"

	"pravnyk/internal/logging"
)

// Watch reloads the config file on change and pushes the logging section
// into the logging package. Blocks until ctx is done. Reload failures are
// logged and the previous config stays in effect.
func Watch(ctx context.Context, path string, onReload func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	log := logging.Get(logging.CategoryConfig)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(path)
			if err != nil {
				log.Warn("config reload failed, keeping previous: %v", err)
				continue
			}
			logging.Apply(cfg.Logging)
			if onReload != nil {
				onReload(cfg)
			}
			log.Info("config reloaded from %s", path)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("config watcher error: %v", err)
		}
	}
}

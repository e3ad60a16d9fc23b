package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/goshops-com/opsagent/internal/rules"
	"github.com/rs/zerolog/log"
)

// WatchRules reloads the rules file into the engine whenever it changes
// on disk, until ctx is cancelled. The parent directory is watched
// rather than the file itself because editors and config management
// tools typically replace the file via rename, which would drop a
// file-level watch.
func WatchRules(ctx context.Context, path string, engine *rules.Engine) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return err
	}
	log.Info().Str("path", path).Msg("watching rules file for changes")

	// Debounce: a single save often produces several events.
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(250 * time.Millisecond)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("rules watcher error")

		case <-pending:
			pending = nil
			cfg, err := LoadRulesFile(path)
			if err != nil {
				log.Error().Err(err).Msg("rules reload failed, keeping previous rule set")
				continue
			}
			engine.LoadRules(cfg)
		}
	}
}

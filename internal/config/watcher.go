package config

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher reloads the config file when it changes on disk
type Watcher struct {
	loader   *Loader
	watcher  *fsnotify.Watcher
	logger   zerolog.Logger
	onChange func(*Config)
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewWatcher watches the loader's config file and calls onChange with every
// successfully reloaded config. Invalid intermediate writes are logged and skipped.
func NewWatcher(loader *Loader, logger zerolog.Logger, onChange func(*Config)) (*Watcher, error) {
	if loader == nil {
		return nil, fmt.Errorf("loader is required")
	}
	if onChange == nil {
		return nil, fmt.Errorf("onChange callback is required")
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Editors replace files by rename, so the directory is watched rather than the file.
	dir := filepath.Dir(loader.GetConfigPath())
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w := &Watcher{
		loader:   loader,
		watcher:  fw,
		logger:   logger.With().Str("component", "config_watcher").Logger(),
		onChange: onChange,
		done:     make(chan struct{}),
	}

	w.wg.Add(1)
	go w.run()

	return w, nil
}

func (w *Watcher) run() {
	defer w.wg.Done()

	target := filepath.Clean(w.loader.GetConfigPath())

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			cfg, err := w.loader.Load()
			if err != nil {
				w.logger.Warn().Err(err).Msg("Config reload failed, keeping previous config")
				continue
			}

			w.logger.Info().Str("path", target).Msg("Config reloaded")
			w.onChange(cfg)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("Config watcher error")
		}
	}
}

// Stop stops watching
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
		w.wg.Wait()
	})
	return err
}

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"dbupdater/pkg/logging"
)

// DefaultDebounceInterval is the time to wait after the last change to
// config.yaml before reloading it.
const DefaultDebounceInterval = 500 * time.Millisecond

// Watcher reloads config.yaml when it changes.
type Watcher struct {
	configPath string
	onChange   func(OperatorConfig)
	prepare    func(*OperatorConfig)
	debounce   time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher returns a watcher for the config.yaml in configPath. onChange
// receives every revision that parses and validates.
func NewWatcher(configPath string, onChange func(OperatorConfig)) *Watcher {
	return &Watcher{
		configPath: configPath,
		onChange:   onChange,
		debounce:   DefaultDebounceInterval,
	}
}

// WithPrepare sets a hook applied to each revision before validation, such
// as command line overrides.
func (w *Watcher) WithPrepare(prepare func(*OperatorConfig)) *Watcher {
	w.prepare = prepare
	return w
}

// Run watches until ctx is done. The directory is watched rather than the
// file so that editors replacing the file by rename are seen.
func (w *Watcher) Run(ctx context.Context) error {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	defer fsWatcher.Close()

	if err := fsWatcher.Add(w.configPath); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.configPath, err)
	}
	logging.Info("ConfigWatcher", "Watching %s for changes", ConfigFilePath(w.configPath))

	defer w.stopTimer()
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-fsWatcher.Errors:
			if !ok {
				return nil
			}
			logging.Error("ConfigWatcher", err, "fsnotify error")
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Base(event.Name) != configFileName {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}

	logging.Debug("ConfigWatcher", "Config file changed: %s (%s)", event.Name, event.Op)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := LoadConfig(w.configPath)
	if err != nil {
		logging.Warn("ConfigWatcher", "Ignoring config change: %v", err)
		return
	}
	if w.prepare != nil {
		w.prepare(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		logging.Warn("ConfigWatcher", "Ignoring invalid config change: %v", err)
		return
	}
	w.onChange(cfg)
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

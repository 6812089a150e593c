package daemon

import (
	"context"
	"sync"
	"time"

	"github.com/agentctl/agentctl/config"
	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// ConfigWatcher watches agentctl's config file for changes and
// re-parses it, handing the result to onReload. Unlike the teacher's
// watcher, this never runs external hook commands or tracks symlink
// targets: SPEC_FULL.md §5 scopes the hot-reload surface down to log
// level and a handful of non-structural settings — structural fields
// (socket path, intervals, supervisor tuning) take effect on the next
// daemon restart, not live.
type ConfigWatcher struct {
	watcher    *fsnotify.Watcher
	configPath string
	debounce   time.Duration
	logger     *logrus.Entry

	mu         sync.Mutex
	lastChange time.Time
	onReload   func(*config.Config)
}

// NewConfigWatcher watches configPath (the file FindConfigFile/Load
// resolved at startup) and invokes onReload with the freshly parsed
// Config whenever it changes on disk, debounced to absorb editors that
// write in multiple steps (write-then-rename, truncate-then-write).
func NewConfigWatcher(configPath string, debounce time.Duration, logger *logrus.Entry, onReload func(*config.Config)) (*ConfigWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(configPath); err != nil {
		_ = watcher.Close()
		return nil, err
	}
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}
	return &ConfigWatcher{
		watcher:    watcher,
		configPath: configPath,
		debounce:   debounce,
		logger:     logger,
		onReload:   onReload,
	}, nil
}

// Start blocks until ctx is cancelled, reloading the config on every
// debounced write/create event.
func (w *ConfigWatcher) Start(ctx context.Context) {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.handleChange()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("config watcher error")
		case <-ctx.Done():
			_ = w.watcher.Close()
			return
		}
	}
}

func (w *ConfigWatcher) handleChange() {
	w.mu.Lock()
	elapsed := time.Since(w.lastChange)
	if elapsed < w.debounce {
		w.mu.Unlock()
		return
	}
	w.lastChange = time.Now()
	w.mu.Unlock()

	cfg, err := config.Load(w.configPath)
	if err != nil {
		w.logger.WithError(err).Warn("config reload failed, keeping previous settings")
		return
	}
	cfg.SetDefaults()
	w.logger.Info("config reloaded")
	if w.onReload != nil {
		w.onReload(cfg)
	}
}

// Close stops the watcher and releases resources.
func (w *ConfigWatcher) Close() error {
	return w.watcher.Close()
}

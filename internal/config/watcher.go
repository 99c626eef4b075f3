package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Store holds the current configuration. Engines read it when they start.
type Store struct {
	mu  sync.RWMutex
	cfg Config
}

// NewStore returns a store holding cfg.
func NewStore(cfg Config) *Store {
	return &Store{cfg: cfg}
}

// Snapshot returns a copy of the current configuration.
func (s *Store) Snapshot() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Set replaces the configuration.
func (s *Store) Set(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

// Loader rebuilds a configuration from all sources.
type Loader func() (Config, error)

const reloadDelay = 100 * time.Millisecond

// Watcher reloads the store when the config file is written.
type Watcher struct {
	path  string
	store *Store
	load  Loader
	log   zerolog.Logger

	// OnReload, if set, is called after each successful reload.
	OnReload func(Config)

	mu       sync.Mutex
	debounce *time.Timer
}

// NewWatcher returns a watcher for path. load is called on every change.
func NewWatcher(path string, store *Store, load Loader, logger zerolog.Logger) *Watcher {
	return &Watcher{path: path, store: store, load: load, log: logger}
}

// Run watches the file's directory until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	if w.path == "" {
		return
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.log.Error().Err(err).Msg("failed to create watcher")
		return
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		w.log.Warn().Err(err).Str("dir", dir).Msg("config changes will not be picked up")
		return
	}
	name := filepath.Base(w.path)

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.debounce != nil {
				w.debounce.Stop()
			}
			w.mu.Unlock()
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.scheduleReload(reloadDelay)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("watcher error")
		}
	}
}

func (w *Watcher) scheduleReload(delay time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(delay, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := w.load()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		w.log.Warn().Err(err).Msg("config reload rejected, keeping previous")
		return
	}
	w.store.Set(cfg)
	w.log.Info().Str("path", w.path).Msg("config reloaded")
	if w.OnReload != nil {
		w.OnReload(cfg)
	}
}

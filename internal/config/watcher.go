package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"flowbridge/pkg/logging"
)

// debounceInterval is the time to wait after the last file event before
// reloading, so editors that write in multiple steps trigger one reload.
const debounceInterval = 500 * time.Millisecond

// Watcher monitors the config file and reloads it on change.
//
// Only a subset of configuration is safe to apply to a running server; the
// OnChange callback receives the freshly loaded (and validated) Config and
// decides what to pick up. A file change that fails to load or validate is
// logged and dropped, keeping the last good configuration in effect.
type Watcher struct {
	path     string
	onChange func(Config)

	mu        sync.Mutex
	fsWatcher *fsnotify.Watcher
	stopCh    chan struct{}
	running   bool

	debounceMu    sync.Mutex
	debounceTimer *time.Timer
}

// NewWatcher creates a watcher for the config file at path.
func NewWatcher(path string, onChange func(Config)) *Watcher {
	return &Watcher{
		path:     path,
		onChange: onChange,
	}
}

// Start begins watching. It watches the containing directory rather than the
// file itself so atomic-rename saves keep being observed.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running || w.path == "" {
		return nil
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsWatcher.Add(filepath.Dir(w.path)); err != nil {
		fsWatcher.Close()
		return err
	}

	w.fsWatcher = fsWatcher
	w.stopCh = make(chan struct{})
	w.running = true

	go w.loop()
	logging.Debug("Config", "Watching %s for changes", w.path)
	return nil
}

// Stop terminates the watcher. It is safe to call Stop more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	close(w.stopCh)
	w.fsWatcher.Close()
	w.running = false
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			logging.Warn("Config", "Config watcher error: %v", err)
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(debounceInterval, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		logging.Warn("Config", "Ignoring config change, reload failed: %v", err)
		return
	}
	logging.Info("Config", "Configuration reloaded from %s", w.path)
	w.onChange(cfg)
}

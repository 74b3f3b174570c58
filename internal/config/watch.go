package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// debounceDelay absorbs the burst of events editors emit for a single save.
const debounceDelay = 250 * time.Millisecond

// Watcher reloads the configuration when the config file changes on disk.
// Reloads that fail validation are reported through the error callback and
// the previous configuration stays in effect.
type Watcher struct {
	watcher *fsnotify.Watcher
	path    string

	onChange func(*Config)
	onError  func(error)

	mu     sync.Mutex
	stopCh chan struct{}
	once   sync.Once
}

// NewWatcher creates a watcher for the given config file path.
// onChange receives each successfully reloaded configuration; onError may be
// nil, in which case reload failures are silently dropped.
func NewWatcher(path string, onChange func(*Config), onError func(error)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory rather than the file itself: editors that
	// write-then-rename would otherwise detach the watch on first save.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		_ = fw.Close()
		return nil, err
	}

	return &Watcher{
		watcher:  fw,
		path:     path,
		onChange: onChange,
		onError:  onError,
		stopCh:   make(chan struct{}),
	}, nil
}

// Start begins watching for config file changes
func (w *Watcher) Start() {
	go w.watchLoop()
}

// Stop stops the watcher and releases its resources
func (w *Watcher) Stop() {
	w.once.Do(func() {
		close(w.stopCh)
		_ = w.watcher.Close()
	})
}

func (w *Watcher) watchLoop() {
	debounceTimer := time.NewTimer(0)
	<-debounceTimer.C // drain initial timer

	pending := false

	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			pending = true
			debounceTimer.Reset(debounceDelay)

		case <-debounceTimer.C:
			if !pending {
				continue
			}
			pending = false
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.reportError(err)
		}
	}
}

// reload re-reads the config file and hands the result to the callback.
// The mutex keeps a slow callback from overlapping with the next reload.
func (w *Watcher) reload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := viper.ReadInConfig(); err != nil {
		w.reportError(err)
		return
	}

	cfg, err := Load()
	if err != nil {
		w.reportError(err)
		return
	}

	if w.onChange != nil {
		w.onChange(cfg)
	}
}

func (w *Watcher) reportError(err error) {
	if w.onError != nil {
		w.onError(err)
	}
}

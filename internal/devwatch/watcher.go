package devwatch

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceWindow collapses editor save bursts for the same path.
const debounceWindow = 100 * time.Millisecond

// contentExtensions are the file types a change should republish for:
// manifests and compiled levels, authoring configs, and image assets.
var contentExtensions = map[string]struct{}{
	".json": {},
	".yaml": {},
	".yml":  {},
	".png":  {},
}

// Watcher reports changed content files under the watched directories.
// It exists for development reloads only; construction is gated behind an
// explicit flag in the app config.
type Watcher struct {
	watcher *fsnotify.Watcher
	accept  func(string) bool

	Events chan string
	Errors chan error

	closeCh chan struct{}
	once    sync.Once
}

// Option adjusts watcher construction.
type Option func(*Watcher)

// WithAccept replaces the default content-extension filter.
func WithAccept(accept func(path string) bool) Option {
	return func(w *Watcher) {
		if accept != nil {
			w.accept = accept
		}
	}
}

// NewWatcher watches the given directories, non-recursively, for content
// file changes.
func NewWatcher(dirs []string, opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("devwatch: %w", err)
	}
	for _, dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			_ = fsw.Close()
			return nil, fmt.Errorf("devwatch: watch %s: %w", dir, err)
		}
	}

	w := &Watcher{
		watcher: fsw,
		accept:  IsContentFile,
		Events:  make(chan string, 16),
		Errors:  make(chan error, 1),
		closeCh: make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	go w.run()
	return w, nil
}

// Close stops the watcher and closes its channels. Safe to call twice.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.closeCh)
		err = w.watcher.Close()
		close(w.Events)
		close(w.Errors)
	})
	return err
}

func (w *Watcher) run() {
	last := make(map[string]time.Time)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if !w.accept(event.Name) {
				continue
			}
			now := time.Now()
			if !debounced(last, event.Name, now) {
				continue
			}
			select {
			case w.Events <- event.Name:
			case <-w.closeCh:
				return
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			select {
			case w.Errors <- err:
			default:
			}
		case <-w.closeCh:
			return
		}
	}
}

// debounced records the event time and reports whether it falls outside the
// debounce window of the previous event for the same path.
func debounced(last map[string]time.Time, name string, now time.Time) bool {
	if prev, ok := last[name]; ok && now.Sub(prev) < debounceWindow {
		return false
	}
	last[name] = now
	return true
}

// IsContentFile reports whether the path names a reloadable content file.
func IsContentFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	_, ok := contentExtensions[ext]
	return ok
}

package pgconfig

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches a config file for changes and invokes callback with
// the newly loaded File after a debounce window, so a hot pool-resize
// doesn't fire once per editor save.
type Watcher struct {
	path     string
	callback func(*File)
	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	stopCh   chan struct{}
}

const debounceWindow = 500 * time.Millisecond

// NewWatcher starts watching path, calling callback on every debounced
// write/create event after a successful reload. A failed reload is
// logged and skipped; the watcher keeps running.
func NewWatcher(path string, callback func(*File)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return nil, fmt.Errorf("watching config file: %w", err)
	}

	cw := &Watcher{
		path:     path,
		callback: callback,
		watcher:  w,
		stopCh:   make(chan struct{}),
	}
	go cw.run()
	return cw, nil
}

func (cw *Watcher) run() {
	var debounce *time.Timer
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(debounceWindow, cw.reload)
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("pgconfig: watcher error", "err", err)
		case <-cw.stopCh:
			return
		}
	}
}

func (cw *Watcher) reload() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	f, err := Load(cw.path)
	if err != nil {
		slog.Warn("pgconfig: hot-reload failed", "path", cw.path, "err", err)
		return
	}
	slog.Info("pgconfig: configuration reloaded", "path", cw.path)
	cw.callback(f)
}

// Stop stops the watcher and releases its underlying fsnotify handle.
func (cw *Watcher) Stop() error {
	close(cw.stopCh)
	return cw.watcher.Close()
}

// Package watch delivers filesystem change notifications per directory.
package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"quarry/internal/log"

	"github.com/fsnotify/fsnotify"
)

// Change is a filesystem event inside a watched directory.
type Change struct {
	Path      string
	Dir       string
	Op        fsnotify.Op
	Timestamp time.Time
}

// Handler receives changes. It runs on the watcher goroutine and must not
// block.
type Handler func(Change)

// Watcher monitors directories for changes using fsnotify
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	logger    log.Logging

	// Lock for running state and the handler table
	mutex    sync.RWMutex
	handlers map[string]map[int]Handler
	nextID   int
	running  bool
	stopChan chan struct{}
	done     chan struct{}
}

// New creates a new directory watcher using fsnotify
func New(logger log.Logging) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &Watcher{
		fsWatcher: fsWatcher,
		logger:    logger,
		handlers:  make(map[string]map[int]Handler),
	}, nil
}

// Watch calls fn for every change directly inside dir. The returned function
// removes the handler; the directory stops being watched with its last
// handler.
func (w *Watcher) Watch(dir string, fn Handler) (func(), error) {
	dir = filepath.Clean(dir)
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("error accessing directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	w.mutex.Lock()
	defer w.mutex.Unlock()
	if w.fsWatcher == nil {
		return nil, fmt.Errorf("watcher is closed")
	}

	hs, ok := w.handlers[dir]
	if !ok {
		if err := w.fsWatcher.Add(dir); err != nil {
			return nil, fmt.Errorf("failed to add directory %s to watcher: %w", dir, err)
		}
		hs = make(map[int]Handler)
		w.handlers[dir] = hs
		w.logger.With(log.F("directory", dir)).Debug("Watching directory")
	}
	id := w.nextID
	w.nextID++
	hs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() { w.unwatch(dir, id) })
	}, nil
}

func (w *Watcher) unwatch(dir string, id int) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	hs, ok := w.handlers[dir]
	if !ok {
		return
	}
	delete(hs, id)
	if len(hs) > 0 {
		return
	}
	delete(w.handlers, dir)
	if err := w.fsWatcher.Remove(dir); err != nil {
		w.logger.With(log.F("directory", dir), log.F("error", err)).Debug("Could not remove watch")
	}
}

// Start begins the file watching process using fsnotify
func (w *Watcher) Start() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if w.running {
		return fmt.Errorf("watcher already running")
	}
	if w.fsWatcher == nil {
		return fmt.Errorf("watcher is closed")
	}
	w.running = true
	w.stopChan = make(chan struct{})
	w.done = make(chan struct{})

	go w.loop(w.stopChan, w.done)
	w.logger.Debug("Watcher started")
	return nil
}

func (w *Watcher) loop(stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.dispatch(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.With(log.F("error", err)).Error("fsnotify watcher error")
		case <-stop:
			return
		}
	}
}

func (w *Watcher) dispatch(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}
	change := Change{
		Path:      event.Name,
		Dir:       filepath.Dir(event.Name),
		Op:        event.Op,
		Timestamp: time.Now(),
	}

	w.mutex.RLock()
	hs := w.handlers[change.Dir]
	fns := make([]Handler, 0, len(hs))
	for _, fn := range hs {
		fns = append(fns, fn)
	}
	w.mutex.RUnlock()

	for _, fn := range fns {
		fn(change)
	}
}

// Stop halts the file watching process and releases the fsnotify instance.
// A stopped watcher cannot be restarted.
func (w *Watcher) Stop() {
	w.mutex.Lock()
	if w.fsWatcher == nil {
		w.mutex.Unlock()
		return
	}
	running := w.running
	if running {
		close(w.stopChan)
	}
	done := w.done
	fsw := w.fsWatcher
	w.fsWatcher = nil
	w.running = false
	w.handlers = make(map[string]map[int]Handler)
	w.mutex.Unlock()

	if running {
		<-done
	}
	if err := fsw.Close(); err != nil {
		w.logger.With(log.F("error", err)).Error("Error closing fsnotify watcher")
	}
	w.logger.Debug("Watcher stopped")
}

// IsRunning returns whether the watcher is currently active
func (w *Watcher) IsRunning() bool {
	w.mutex.RLock()
	defer w.mutex.RUnlock()
	return w.running
}

// Directories returns the directories being watched
func (w *Watcher) Directories() []string {
	w.mutex.RLock()
	defer w.mutex.RUnlock()
	out := make([]string, 0, len(w.handlers))
	for dir := range w.handlers {
		out = append(out, dir)
	}
	return out
}

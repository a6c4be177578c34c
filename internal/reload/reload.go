// Package reload watches configuration files and invokes a callback when
// they change. Editors replace files with rename-write sequences, so the
// watcher tracks the parent directory and debounces bursts into a single
// reload per file.
package reload

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrClosed is returned when the watcher has been closed.
var ErrClosed = errors.New("reload: watcher closed")

// Func is invoked with the path of a changed file.
type Func func(path string)

// Watcher debounces filesystem notifications for a fixed set of files.
type Watcher struct {
	mu       sync.Mutex
	fsw      *fsnotify.Watcher
	files    map[string]Func
	dirs     map[string]bool
	debounce time.Duration
	timers   map[string]*time.Timer
	log      *slog.Logger
	closed   bool
	done     chan struct{}
	wg       sync.WaitGroup
}

// Option configures a watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period before a change fires.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(w *Watcher) { w.log = log }
}

// NewWatcher creates and starts a watcher.
func NewWatcher(opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsw:      fsw,
		files:    make(map[string]Func),
		dirs:     make(map[string]bool),
		debounce: 200 * time.Millisecond,
		timers:   make(map[string]*time.Timer),
		log:      slog.New(slog.NewTextHandler(os.Stderr, nil)),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// Watch registers a file path with its reload callback. The parent
// directory is watched so the file is picked up again after editors
// replace it.
func (w *Watcher) Watch(path string, fn Func) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}

	dir := filepath.Dir(abs)
	if !w.dirs[dir] {
		if err := w.fsw.Add(dir); err != nil {
			return err
		}
		w.dirs[dir] = true
	}
	w.files[abs] = fn
	return nil
}

// Close stops the watcher. Pending debounce timers are cancelled.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for _, t := range w.timers {
		t.Stop()
	}
	close(w.done)
	w.mu.Unlock()

	err := w.fsw.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Rename) {
				w.schedule(ev.Name)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("file watch error", "error", err)
		}
	}
}

// schedule arms (or re-arms) the debounce timer for a tracked file.
func (w *Watcher) schedule(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	fn, tracked := w.files[abs]
	if !tracked {
		return
	}

	if t, ok := w.timers[abs]; ok {
		t.Stop()
	}
	w.timers[abs] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, abs)
		closed := w.closed
		w.mu.Unlock()
		if closed {
			return
		}
		fn(abs)
	})
}

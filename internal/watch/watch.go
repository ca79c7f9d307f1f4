// Package watch reports changes to shader files so active effects can be
// rebuilt from them.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/Faultbox/wf-filters/internal/logger"
)

// DefaultDebounce coalesces the burst of events a single save produces.
const DefaultDebounce = 100 * time.Millisecond

type entry struct {
	path string
	refs int
}

// Watcher tracks a reference-counted set of files. The parent directories
// are watched, so files replaced by rename keep being followed.
type Watcher struct {
	fs       *fsnotify.Watcher
	debounce time.Duration
	log      *zap.Logger

	mu    sync.Mutex
	files map[string]*entry
	dirs  map[string]int
}

// New creates a watcher. A debounce of 0 means DefaultDebounce.
func New(debounce time.Duration) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		fs:       fs,
		debounce: debounce,
		log:      logger.Named("watch"),
		files:    make(map[string]*entry),
		dirs:     make(map[string]int),
	}, nil
}

func key(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", path, err)
	}
	return abs, nil
}

// Add starts following path. Paths may be added more than once and are
// followed until removed as often.
func (w *Watcher) Add(path string) error {
	k, err := key(path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if e, ok := w.files[k]; ok {
		e.refs++
		return nil
	}
	dir := filepath.Dir(k)
	if w.dirs[dir] == 0 {
		if err := w.fs.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
	}
	w.dirs[dir]++
	w.files[k] = &entry{path: path, refs: 1}
	w.log.Debug("watching shader", zap.String("path", k))
	return nil
}

// Remove drops one reference to path.
func (w *Watcher) Remove(path string) error {
	k, err := key(path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	e, ok := w.files[k]
	if !ok {
		return fmt.Errorf("%s is not watched", path)
	}
	e.refs--
	if e.refs > 0 {
		return nil
	}
	delete(w.files, k)

	dir := filepath.Dir(k)
	w.dirs[dir]--
	if w.dirs[dir] > 0 {
		return nil
	}
	delete(w.dirs, dir)
	if err := w.fs.Remove(dir); err != nil {
		return fmt.Errorf("unwatching %s: %w", dir, err)
	}
	w.log.Debug("stopped watching shader", zap.String("path", k))
	return nil
}

// Watched returns the followed files, sorted.
func (w *Watcher) Watched() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.files))
	for k := range w.files {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// lookup maps an event name to the path the file was added under.
func (w *Watcher) lookup(name string) (string, bool) {
	k, err := key(name)
	if err != nil {
		return "", false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.files[k]
	if !ok {
		return "", false
	}
	return e.path, true
}

// Run delivers changes to onChange until ctx is done, then closes the
// watcher. onChange runs on Run's goroutine, once per file per burst.
func (w *Watcher) Run(ctx context.Context, onChange func(path string)) error {
	defer w.fs.Close()

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			path, ok := w.lookup(event.Name)
			if !ok {
				continue
			}
			pending[path] = struct{}{}
			timer.Reset(w.debounce)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", zap.Error(err))

		case <-timer.C:
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			clear(pending)
			sort.Strings(paths)
			for _, p := range paths {
				w.log.Info("shader changed on disk", zap.String("path", p))
				onChange(p)
			}
		}
	}
}

// Close stops the watcher without running it.
func (w *Watcher) Close() error {
	return w.fs.Close()
}

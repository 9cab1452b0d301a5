// Package watcher reports changes to files on disk, such as the landmark catalog.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 500 * time.Millisecond

// Service monitors a set of files and calls onChange once per effective change.
// Editors often replace files instead of writing them, so the parent
// directories are watched and events are filtered by name.
type Service struct {
	onChange func(path string)
	debounce time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	files    map[string]time.Time // absolute path -> last reported mtime
	timers   map[string]*time.Timer
	pending  sync.WaitGroup
	stopped  bool
	watcher  *fsnotify.Watcher
	stopCh   chan struct{}
	doneCh   chan struct{}
	starting bool
}

// NewService creates a monitor for paths. Files that do not exist yet are
// reported when they appear.
func NewService(paths []string, onChange func(path string)) (*Service, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no paths to watch")
	}
	files := make(map[string]time.Time, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", p, err)
		}
		files[abs] = modTime(abs)
	}
	return &Service{
		onChange: onChange,
		debounce: defaultDebounce,
		logger:   slog.With("component", "watcher"),
		files:    files,
		timers:   make(map[string]*time.Timer),
	}, nil
}

// SetDebounce changes the quiet period between the last event and the callback.
func (s *Service) SetDebounce(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.debounce = d
}

// Start begins watching. It is non-blocking.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.starting || s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.starting = true
	s.mu.Unlock()

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	dirs := make(map[string]struct{})
	for path := range s.files {
		dirs[filepath.Dir(path)] = struct{}{}
	}
	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			s.logger.Warn("Watcher: directory not watchable", "dir", dir, "error", err)
		}
	}

	s.mu.Lock()
	s.watcher = w
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.run(ctx)
	s.logger.Info("Watcher: started", "files", len(s.files))
	return nil
}

// Stop ends watching and waits for pending callbacks. It is safe to call twice.
func (s *Service) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	for path, t := range s.timers {
		if t.Stop() {
			s.pending.Done()
		}
		delete(s.timers, path)
	}
	w, stopCh, doneCh := s.watcher, s.stopCh, s.doneCh
	s.mu.Unlock()

	if w != nil {
		close(stopCh)
		<-doneCh
		if err := w.Close(); err != nil {
			s.logger.Error("Watcher: close failed", "error", err)
		}
	}
	s.pending.Wait()
}

func (s *Service) run(ctx context.Context) {
	defer close(s.doneCh)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			s.schedule(filepath.Clean(ev.Name))
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error("Watcher: fsnotify error", "error", err)
		}
	}
}

func (s *Service) schedule(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if _, tracked := s.files[path]; !tracked {
		return
	}
	if t, ok := s.timers[path]; ok && t.Stop() {
		s.pending.Done()
	}
	s.pending.Add(1)
	s.timers[path] = time.AfterFunc(s.debounce, func() {
		defer s.pending.Done()
		s.mu.Lock()
		delete(s.timers, path)
		s.mu.Unlock()
		if s.changed(path) {
			s.report(path)
		}
	})
}

// CheckChanged polls the modification times and reports every file that changed
// since it was last reported. It serves platforms where fsnotify is unavailable.
func (s *Service) CheckChanged() []string {
	s.mu.Lock()
	paths := make([]string, 0, len(s.files))
	for p := range s.files {
		paths = append(paths, p)
	}
	s.mu.Unlock()

	var changed []string
	for _, p := range paths {
		if s.changed(p) {
			changed = append(changed, p)
			s.report(p)
		}
	}
	return changed
}

// changed records the current mtime and reports whether it differs from the last one.
func (s *Service) changed(path string) bool {
	mt := modTime(path)
	s.mu.Lock()
	defer s.mu.Unlock()
	if mt.IsZero() || mt.Equal(s.files[path]) {
		return false
	}
	s.files[path] = mt
	return true
}

func (s *Service) report(path string) {
	s.logger.Info("Watcher: file changed", "file", filepath.Base(path))
	if s.onChange != nil {
		s.onChange(path)
	}
}

func modTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

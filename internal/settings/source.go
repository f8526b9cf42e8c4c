package settings

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const reloadDebounce = 250 * time.Millisecond

// Source serves the current Snapshot. Readers never block; a reload swaps the
// whole value, so a caller holding a Snapshot keeps a consistent view.
type Source struct {
	path    string
	current atomic.Pointer[Snapshot]
	logger  *zap.Logger
}

// NewSource loads the initial snapshot; a broken file at startup is an error.
func NewSource(path string, logger *zap.Logger) (*Source, error) {
	s := &Source{path: path, logger: logger}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Static returns a Source that always serves snap. Used in tests and when no
// settings file is configured.
func Static(snap Snapshot) *Source {
	s := &Source{logger: zap.NewNop()}
	s.current.Store(&snap)
	return s
}

func (s *Source) Snapshot() Snapshot {
	return s.current.Load().clone()
}

func (s *Source) Reload() error {
	snap, err := Load(s.path)
	if err != nil {
		return err
	}
	s.current.Store(&snap)
	return nil
}

// Watch reloads the snapshot whenever the settings file changes, until ctx is
// cancelled. The parent directory is watched because editors commonly replace
// the file with a rename. A file that fails to parse leaves the previous
// snapshot in place.
func (s *Source) Watch(ctx context.Context) error {
	if s.path == "" {
		<-ctx.Done()
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("watch %s: %w", s.path, err)
	}
	target := filepath.Clean(s.path)

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	schedule := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(reloadDebounce, func() {
			if err := s.Reload(); err != nil {
				s.logger.Warn("settings reload failed, keeping previous", zap.String("path", s.path), zap.Error(err))
				return
			}
			s.logger.Info("settings reloaded", zap.String("path", s.path))
		})
	}
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				schedule()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("settings watcher error", zap.Error(err))
		}
	}
}

package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads a single file on change, debouncing editor write bursts.
// Used for the classifier keyword list so heuristics can be tuned without a
// redeploy.
type Watcher struct {
	path     string
	onChange func() error
	watcher  *fsnotify.Watcher
	logger   *zap.Logger
}

// NewWatcher watches path and invokes onChange after every write. The
// containing directory is watched rather than the file itself so atomic
// rename-style saves are picked up.
func NewWatcher(path string, onChange func() error, logger *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{path: path, onChange: onChange, watcher: fw, logger: logger}, nil
}

// Start runs the watch loop until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	go func() {
		defer w.watcher.Close()

		var pending <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				pending = time.After(250 * time.Millisecond)
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.logger.Warn("File watcher error", zap.Error(err))
			case <-pending:
				pending = nil
				if err := w.onChange(); err != nil {
					w.logger.Warn("Reload failed; keeping previous state",
						zap.String("path", w.path),
						zap.Error(err),
					)
				} else {
					w.logger.Info("Reloaded watched file", zap.String("path", w.path))
				}
			}
		}
	}()
}

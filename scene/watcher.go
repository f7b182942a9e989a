package scene

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/slighter12/maya-livelink-go/logger"
)

const defaultReloadDebounce = 150 * time.Millisecond

// Watcher reloads a scene file whenever it changes on disk.
type Watcher struct {
	path     string
	debounce time.Duration
	onReload func(*Graph, error)
}

// NewWatcher watches path and calls onReload with each freshly parsed graph,
// or the parse error. onReload runs on the watcher goroutine.
func NewWatcher(path string, onReload func(*Graph, error)) *Watcher {
	return &Watcher{
		path:     filepath.Clean(path),
		debounce: defaultReloadDebounce,
		onReload: onReload,
	}
}

// Run blocks until ctx is done. The parent directory is watched so editors
// that replace the file atomically are still seen.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create scene watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch scene directory: %w", err)
	}
	logger.Info("Watching scene file", "path", w.path)

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			logger.Debug("Scene file changed", "path", w.path, "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			pending = timer.C
		case <-pending:
			pending = nil
			g, err := LoadFile(w.path)
			w.onReload(g, err)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Scene watcher error", "path", w.path, "error", err)
		}
	}
}

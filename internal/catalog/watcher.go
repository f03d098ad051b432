package catalog

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// reloadDebounce coalesces bursts of write events from editors that save in
// multiple steps.
const reloadDebounce = 100 * time.Millisecond

// Watcher reloads the catalog when its backing file changes on disk.
// It watches the parent directory since fsnotify cannot watch a file that is
// replaced by rename, which is how both editors and Catalog.saveLocked write.
type Watcher struct {
	catalog  *Catalog
	watcher  *fsnotify.Watcher
	onReload func()
	running  atomic.Bool
}

// NewWatcher creates a watcher for the catalog's backing file. onReload, if
// non-nil, is called after every successful reload.
func NewWatcher(c *Catalog, onReload func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(c.path)); err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{catalog: c, watcher: fsw, onReload: onReload}, nil
}

// Run watches until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return nil
	}
	defer w.watcher.Close()

	var (
		debounce *time.Timer
		reload   = make(chan struct{}, 1)
	)

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.catalog.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case <-reload:
			if err := w.catalog.Reload(); err != nil {
				log.Warn().Err(err).Str("path", w.catalog.path).Msg("Catalog reload failed")
				continue
			}
			log.Info().
				Str("path", w.catalog.path).
				Int("assets", w.catalog.Len()).
				Msg("Catalog reloaded")
			if w.onReload != nil {
				w.onReload()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			log.Error().Err(err).Msg("Catalog watcher error")
		}
	}
}

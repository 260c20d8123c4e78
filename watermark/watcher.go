package watermark

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// =============================================================================
// WATCHER - Keeps the scanned watermark current
// =============================================================================

// Watcher re-scans the invoice directory whenever files appear, move or
// disappear, so a generated (or deleted) invoice moves the watermark
// without a restart.
type Watcher struct {
	dir string
	log zerolog.Logger
	fsw *fsnotify.Watcher

	mu       sync.RWMutex
	months   map[int]int
	onChange func(year, month int)
}

// NewWatcher creates dir if needed, watches it and its subdirectories,
// and performs the initial scan.
func NewWatcher(dir string, log zerolog.Logger) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create invoice dir: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	w := &Watcher{dir: dir, log: log, fsw: fsw}
	if err := w.addTree(dir); err != nil {
		fsw.Close()
		return nil, err
	}
	if _, err := w.rescan(); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// OnChange registers fn to be called for every year whose watermark
// changed after a rescan. Must be set before Run.
func (w *Watcher) OnChange(fn func(year, month int)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = fn
}

// LastInvoiced returns the highest invoiced month of year seen on disk.
func (w *Watcher) LastInvoiced(year int) int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.months[year]
}

// Run processes file system events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	w.log.Info().Str("dir", w.dir).Msg("watching invoice directory")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Error().Err(err).Msg("watcher error")
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func (w *Watcher) handle(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.log.Warn().Err(err).Str("path", event.Name).Msg("cannot watch new directory")
			}
		}
	}

	changed, err := w.rescan()
	if err != nil {
		w.log.Error().Err(err).Msg("rescan failed")
		return
	}

	w.mu.RLock()
	fn := w.onChange
	w.mu.RUnlock()

	for year, month := range changed {
		w.log.Info().Int("year", year).Int("month", month).Msg("watermark changed")
		if fn != nil {
			fn(year, month)
		}
	}
}

// rescan replaces the cached months and returns the years that changed.
func (w *Watcher) rescan() (map[int]int, error) {
	months, err := Scan(w.dir)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	changed := make(map[int]int)
	for year, month := range months {
		if w.months[year] != month {
			changed[year] = month
		}
	}
	for year := range w.months {
		if _, ok := months[year]; !ok {
			changed[year] = 0
		}
	}
	w.months = months
	return changed, nil
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

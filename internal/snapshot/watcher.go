package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Aman-CERP/crmrag/internal/errors"
)

// Watcher defaults.
const (
	DefaultDebounce = 500 * time.Millisecond
	DefaultGrace    = 30 * time.Second
)

// LoadFunc builds a fresh snapshot.
type LoadFunc func(ctx context.Context) (*Snapshot, error)

// Watcher reloads the artifact when its file is written or replaced and
// publishes the result through a Holder. A failed reload keeps the
// previous snapshot.
type Watcher struct {
	holder   *Holder
	path     string
	load     LoadFunc
	debounce time.Duration
	grace    time.Duration

	// reloaded receives the outcome of every reload attempt; nil outside tests.
	reloaded chan error
}

// NewWatcher watches path and calls load on change.
func NewWatcher(holder *Holder, path string, load LoadFunc) *Watcher {
	return &Watcher{
		holder:   holder,
		path:     filepath.Clean(path),
		load:     load,
		debounce: DefaultDebounce,
		grace:    DefaultGrace,
	}
}

// SetDebounce sets the quiet period before a reload. Non-positive values
// keep the current setting.
func (w *Watcher) SetDebounce(d time.Duration) {
	if d > 0 {
		w.debounce = d
	}
}

// SetGrace sets how long a replaced snapshot stays open for in-flight
// queries before it is closed.
func (w *Watcher) SetGrace(d time.Duration) {
	if d >= 0 {
		w.grace = d
	}
}

// Run watches until ctx is cancelled. The artifact's directory is watched
// rather than the file because WriteArtifact replaces it by rename.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer func() { _ = fsw.Close() }()

	dir := filepath.Dir(w.path)
	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	slog.Info("snapshot_watch_started",
		slog.String("path", w.path),
		slog.Duration("debounce", w.debounce))

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("snapshot_watch_error", slog.String("error", err.Error()))

		case <-fire:
			fire = nil
			w.reload(ctx)
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != w.path {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}

func (w *Watcher) reload(ctx context.Context) {
	start := time.Now()
	next, err := w.load(ctx)
	if err != nil {
		slog.Error("snapshot_reload_failed",
			append([]any{slog.String("path", w.path)}, errors.FormatForLog(err)...)...)
		w.report(err)
		return
	}

	prev := w.holder.Swap(next)
	slog.Info("snapshot_reloaded",
		slog.String("path", w.path),
		slog.Int("documents", next.Documents.Len()),
		slog.Duration("duration", time.Since(start)))

	if prev != nil {
		time.AfterFunc(w.grace, func() { _ = prev.Close() })
	}
	w.report(nil)
}

func (w *Watcher) report(err error) {
	if w.reloaded != nil {
		w.reloaded <- err
	}
}

package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/resumekit/authz/pkg/observability"
)

// Watcher reloads a catalogue file when it changes on disk and hands
// the parsed result to a callback. It watches the file's directory
// rather than the file itself so atomic rename-style saves are seen,
// and debounces because editors emit several events per save. A file
// that no longer parses is logged and ignored; the previous catalogue
// stays in effect.
type Watcher struct {
	path     string
	onReload func(*Catalog)
	fsw      *fsnotify.Watcher
	debounce time.Duration
}

// NewWatcher creates a watcher for the catalogue at path. onReload is
// called from the watcher goroutine with each successfully parsed
// catalogue.
func NewWatcher(path string, onReload func(*Catalog)) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve catalogue path %s: %w", path, err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}
	return &Watcher{
		path:     abs,
		onReload: onReload,
		fsw:      fsw,
		debounce: 100 * time.Millisecond,
	}, nil
}

// Start consumes filesystem events until the context is cancelled or
// the watcher is closed.
func (w *Watcher) Start(ctx context.Context) {
	go w.run(ctx)
}

func (w *Watcher) run(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if pending && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(w.debounce)
			pending = true
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			observability.GetLogger(ctx).WithError(err).Warn("catalogue watcher error")
		case <-timer.C:
			pending = false
			w.reload(ctx)
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	c, err := Load(w.path)
	if err != nil {
		observability.GetLogger(ctx).WithError(err).WithField("path", w.path).
			Warn("catalogue reload failed, keeping the previous catalogue")
		return
	}
	observability.GetLogger(ctx).WithField("path", w.path).Info("catalogue reloaded")
	w.onReload(c)
}

// Close stops the watcher and ends the Start goroutine.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

package ml

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads a model when one of its artifact files changes on disk.
// Rapid successive writes are collapsed into a single reload.
type Watcher struct {
	guard    *Guard
	watcher  *fsnotify.Watcher
	logger   *zap.Logger
	debounce time.Duration

	// artifact path -> model id
	owners map[string]string

	mu      sync.Mutex
	pending map[string]time.Time
	doneCh  chan struct{}
}

// NewWatcher prepares a watcher over every directory that holds a
// configured artifact.
func NewWatcher(guard *Guard, debounce time.Duration, logger *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	store := guard.Store()
	owners := make(map[string]string)
	dirs := make(map[string]struct{})
	for _, id := range store.IDs() {
		spec, _ := store.Spec(id)
		for _, a := range spec.Artifacts {
			path := filepath.Clean(store.ArtifactPath(a))
			owners[path] = id
			dirs[filepath.Dir(path)] = struct{}{}
		}
	}

	w := &Watcher{
		guard:    guard,
		watcher:  fw,
		logger:   logger.Named("model_watcher"),
		debounce: debounce,
		owners:   owners,
		pending:  make(map[string]time.Time),
		doneCh:   make(chan struct{}),
	}
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			// The directory may be created later; reloads still work on demand.
			w.logger.Warn("cannot watch model directory", zap.String("dir", dir), zap.Error(err))
		}
	}
	return w, nil
}

// Run processes events until ctx is cancelled, then closes the underlying
// fsnotify watcher.
func (w *Watcher) Run(ctx context.Context) {
	defer close(w.doneCh)
	defer w.watcher.Close()

	ticker := time.NewTicker(w.debounce / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watch error", zap.Error(err))
		case now := <-ticker.C:
			w.flush(ctx, now)
		}
	}
}

// Done is closed once Run has returned.
func (w *Watcher) Done() <-chan struct{} {
	return w.doneCh
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	id, ok := w.owners[filepath.Clean(event.Name)]
	if !ok {
		return
	}
	w.logger.Debug("artifact changed", zap.String("model", id), zap.String("path", event.Name), zap.String("op", event.Op.String()))

	w.mu.Lock()
	w.pending[id] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) flush(ctx context.Context, now time.Time) {
	var due []string
	w.mu.Lock()
	for id, at := range w.pending {
		if now.Sub(at) >= w.debounce {
			due = append(due, id)
			delete(w.pending, id)
		}
	}
	w.mu.Unlock()

	for _, id := range due {
		if err := w.guard.Reload(ctx, id); err != nil {
			w.logger.Warn("reload after change failed", zap.String("model", id), zap.Error(err))
			continue
		}
		w.logger.Info("model reloaded after change", zap.String("model", id))
	}
}

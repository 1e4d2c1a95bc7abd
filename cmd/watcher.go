package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/kozaktomas/face-attendance/internal/roster"
)

// enroller adds one dataset image to the roster.
type enroller interface {
	Enroll(ctx context.Context, path string) (*roster.SubmitResult, error)
}

// datasetWatcher enrolls images written into the dataset directory.
// Writes are debounced so a file is enrolled once it stops changing.
type datasetWatcher struct {
	watcher  *fsnotify.Watcher
	manager  enroller
	dir      string
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]time.Time

	doneCh chan struct{}
}

func newDatasetWatcher(manager enroller, dir string) (*datasetWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating dataset watcher: %w", err)
	}
	return &datasetWatcher{
		watcher:  watcher,
		manager:  manager,
		dir:      dir,
		debounce: 500 * time.Millisecond,
		pending:  make(map[string]time.Time),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins watching. It returns once the directory is registered.
func (w *datasetWatcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(w.dir); err != nil {
		_ = w.watcher.Close()
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}
	go w.run(ctx)
	return nil
}

// Stop closes the watcher and waits for the event loop to exit.
func (w *datasetWatcher) Stop() {
	if err := w.watcher.Close(); err != nil {
		log.Printf("dataset watcher: close: %v", err)
	}
	<-w.doneCh
}

func (w *datasetWatcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(100 * time.Millisecond)
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
			log.Printf("dataset watcher: %v", err)
		case now := <-ticker.C:
			for _, path := range w.due(now) {
				w.enroll(ctx, path)
			}
		}
	}
}

func (w *datasetWatcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if _, _, ok := roster.ParseDatasetName(filepath.Base(event.Name)); !ok {
		return
	}
	w.mu.Lock()
	w.pending[event.Name] = time.Now()
	w.mu.Unlock()
}

// due returns the pending paths that have been quiet for the debounce period.
func (w *datasetWatcher) due(now time.Time) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []string
	for path, seen := range w.pending {
		if now.Sub(seen) >= w.debounce {
			out = append(out, path)
			delete(w.pending, path)
		}
	}
	return out
}

func (w *datasetWatcher) enroll(ctx context.Context, path string) {
	res, err := w.manager.Enroll(ctx, path)
	switch {
	case errors.Is(err, roster.ErrDuplicateID):
		log.Printf("dataset watcher: %s: student already enrolled", filepath.Base(path))
	case err != nil:
		log.Printf("dataset watcher: %s: %v", filepath.Base(path), err)
	default:
		log.Printf("dataset watcher: enrolled %s (%s)", res.Record.Name, res.Record.ID)
	}
}

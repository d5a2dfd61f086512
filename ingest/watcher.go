package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"

	"github.com/becomeliminal/nim-sleepcoach/index"
)

// DefaultDebounce is how long the watcher waits after the last change before
// rebuilding.
const DefaultDebounce = 500 * time.Millisecond

// Watcher rebuilds the index whenever a data file in the data directory
// changes. Changes to the index file and chat history are ignored.
type Watcher struct {
	builder   *Builder
	dataDir   string
	indexPath string
	debounce  time.Duration
	watcher   *fsnotify.Watcher

	// OnRebuild, when set, is called after every rebuild attempt.
	OnRebuild func(*index.Index, error)
}

// NewWatcher creates a watcher for dataDir. debounce <= 0 uses DefaultDebounce.
func NewWatcher(builder *Builder, dataDir, indexPath string, debounce time.Duration) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(dataDir); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", dataDir, err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		builder:   builder,
		dataDir:   dataDir,
		indexPath: indexPath,
		debounce:  debounce,
		watcher:   w,
	}, nil
}

// Watch blocks until ctx is cancelled, rebuilding the index after changes.
func (w *Watcher) Watch(ctx context.Context) error {
	defer w.watcher.Close()

	log.Infof("[INGEST] Watching %s for changes", w.dataDir)

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			log.Debugf("[INGEST] %s %s", event.Op, filepath.Base(event.Name))
			if pending && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(w.debounce)
			pending = true

		case <-timer.C:
			pending = false
			idx, err := w.builder.Run(ctx, w.dataDir, w.indexPath)
			if err != nil {
				log.Errorf("[INGEST] Rebuild failed: %v", err)
			}
			if w.OnRebuild != nil {
				w.OnRebuild(idx, err)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			log.Warnf("[INGEST] Watcher error: %v", err)
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.Base(event.Name)
	switch name {
	case WearableFile, ProfileFile, LocationFile, CustomFile:
	default:
		return false
	}
	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return true
	}
	target, err := filepath.Abs(w.indexPath)
	return err != nil || abs != target
}

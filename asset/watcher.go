package asset

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"mixdown/logger"
	"mixdown/model"
)

var importExtensions = map[string]bool{
	".wav":  true,
	".flac": true,
	".mp3":  true,
	".ogg":  true,
	".aiff": true,
	".aif":  true,
	".m4a":  true,
}

// ImportFunc receives imported asset metadata so the caller can register it
// with the document engine.
type ImportFunc func(a *model.Asset, existed bool)

// Watcher imports audio files dropped into a directory. DAW-style watch
// folder: copy a sample in, it shows up in the project's asset list.
type Watcher struct {
	dir      string
	store    *Store
	onImport ImportFunc
	watcher  *fsnotify.Watcher
}

// NewWatcher builds a watcher for dir. The directory is created if missing.
func NewWatcher(dir string, store *Store, onImport ImportFunc) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}
	return &Watcher{dir: dir, store: store, onImport: onImport, watcher: w}, nil
}

// Run processes filesystem events until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()
	logger.Info("watching import directory", logger.String("dir", w.dir))

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			ext := strings.ToLower(filepath.Ext(event.Name))
			if !importExtensions[ext] {
				continue
			}
			w.importFile(ctx, event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("import watcher error", logger.ErrorField(err))

		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) importFile(ctx context.Context, path string) {
	// The create event fires before the copy finishes; wait for the size to
	// settle before reading.
	var size int64 = -1
	for i := 0; i < 20; i++ {
		info, err := os.Stat(path)
		if err != nil {
			return
		}
		if info.Size() == size && size > 0 {
			break
		}
		size = info.Size()
		select {
		case <-time.After(250 * time.Millisecond):
		case <-ctx.Done():
			return
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("read import file",
			logger.String("path", path),
			logger.ErrorField(err))
		return
	}

	a, existed, err := w.store.Import(ctx, filepath.Base(path), data)
	if err != nil && a == nil {
		logger.Error("import failed",
			logger.String("path", path),
			logger.ErrorField(err))
		return
	}

	logger.Info("imported from watch folder",
		logger.String("path", path),
		logger.String("asset", string(a.ID)),
		logger.Bool("deduplicated", existed))

	if w.onImport != nil {
		w.onImport(a, existed)
	}
}

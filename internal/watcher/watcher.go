package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/docscout/docscout/internal/scanner"
)

// FolderWatcher watches a document folder recursively with fsnotify
// and emits debounced batches of document events. Events for files
// the scanner would not index are filtered out at the source.
type FolderWatcher struct {
	opts      Options
	rootPath  string
	fsWatcher *fsnotify.Watcher
	debouncer *Debouncer
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// New creates a FolderWatcher for the given options.
func New(opts Options) (*FolderWatcher, error) {
	opts = opts.WithDefaults()

	absRoot, err := filepath.Abs(opts.RootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &FolderWatcher{
		opts:      opts,
		rootPath:  absRoot,
		fsWatcher: fsw,
		debouncer: NewDebouncer(opts.Debounce, opts.BufferSize),
		stopCh:    make(chan struct{}),
	}, nil
}

// Start runs the watch loop until the context is cancelled or Stop is
// called. It blocks; run it in its own goroutine.
func (w *FolderWatcher) Start(ctx context.Context) error {
	if err := w.addRecursive(w.rootPath); err != nil {
		return fmt.Errorf("failed to watch folder tree: %w", err)
	}

	slog.Info("watching document folder", slog.String("root", w.rootPath))

	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("file watcher error", slog.String("error", err.Error()))
		}
	}
}

// Batches returns the channel of debounced event batches. Closed when
// the watcher stops.
func (w *FolderWatcher) Batches() <-chan []FileEvent {
	return w.debouncer.Output()
}

// Stop stops the watcher and releases resources. Safe to call
// multiple times.
func (w *FolderWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		_ = w.fsWatcher.Close()
		w.debouncer.Stop()
	})
}

// handleEvent converts one fsnotify event into a document event.
func (w *FolderWatcher) handleEvent(event fsnotify.Event) {
	relPath, err := filepath.Rel(w.rootPath, event.Name)
	if err != nil {
		return
	}
	relPath = filepath.ToSlash(relPath)

	// New directories must join the watch set before their contents
	// produce events
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !w.excluded(relPath + "/") {
				_ = w.addRecursive(event.Name)
			}
			return
		}
	}

	if w.excluded(relPath) {
		return
	}
	if scanner.DetectFormat(relPath) == scanner.FormatUnknown {
		return
	}

	var op Operation
	switch {
	case event.Op&fsnotify.Create != 0:
		op = OpCreate
	case event.Op&fsnotify.Write != 0:
		op = OpModify
	case event.Op&fsnotify.Remove != 0:
		op = OpDelete
	case event.Op&fsnotify.Rename != 0:
		op = OpRename
	default:
		// Chmod and friends never affect index content
		return
	}

	w.debouncer.Add(FileEvent{
		Path:      relPath,
		Operation: op,
		Timestamp: time.Now(),
	})
}

// addRecursive registers every non-excluded directory under root with
// the fsnotify watcher. fsnotify watches are not recursive on their own.
func (w *FolderWatcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}

		relPath, err := filepath.Rel(w.rootPath, path)
		if err != nil {
			return nil
		}
		if relPath == "." {
			return w.fsWatcher.Add(path)
		}
		if w.excluded(filepath.ToSlash(relPath) + "/") {
			return filepath.SkipDir
		}
		return w.fsWatcher.Add(path)
	})
}

// excluded reports whether a root-relative path matches any exclude
// pattern, with the same trailing-slash handling as the scanner.
func (w *FolderWatcher) excluded(relPath string) bool {
	for _, pattern := range w.opts.ExcludePatterns {
		if ok, err := doublestar.Match(pattern, relPath); err == nil && ok {
			return true
		}
		trimmed := relPath
		if len(trimmed) > 1 && trimmed[len(trimmed)-1] == '/' {
			trimmed = trimmed[:len(trimmed)-1]
		}
		if ok, err := doublestar.Match(pattern, trimmed); err == nil && ok {
			return true
		}
	}
	return false
}

package watcher

import (
	"context"
	"log/slog"
)

// BuildFunc runs one index build cycle.
type BuildFunc func(ctx context.Context) error

// Runner connects a FolderWatcher to the build pipeline. Batches are
// consumed by a single loop, so builds never run concurrently; changes
// arriving during a build sit in the batch channel and coalesce into
// the next cycle.
type Runner struct {
	watcher *FolderWatcher
	build   BuildFunc
}

// NewRunner creates a Runner over the given watcher and build function.
func NewRunner(w *FolderWatcher, build BuildFunc) *Runner {
	return &Runner{watcher: w, build: build}
}

// Run consumes debounced batches until the context is cancelled or the
// watcher stops. Build failures are logged and the loop continues: a
// transient provider outage must not end watch mode.
func (r *Runner) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-r.watcher.Batches():
			if !ok {
				return nil
			}
			if len(batch) == 0 {
				continue
			}

			slog.Info("document changes detected",
				slog.Int("events", len(batch)))

			if err := r.build(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				slog.Error("watch-triggered build failed",
					slog.String("error", err.Error()))
			}
		}
	}
}

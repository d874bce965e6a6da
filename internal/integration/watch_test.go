package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/docscout/docscout/internal/search"
	"github.com/docscout/docscout/internal/watcher"
)

// TestWatchKeepsIndexCurrent drives the same loop the watch command
// runs: watcher batches trigger incremental builds, and a query after
// the build sees the new document.
func TestWatchKeepsIndexCurrent(t *testing.T) {
	p := newPipeline(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p.write(t, "seed.txt", "initial document so the first build has content")
	_, err := p.coord.Build(ctx, false)
	require.NoError(t, err)

	w, err := watcher.New(watcher.Options{
		RootDir:         p.root,
		ExcludePatterns: []string{".docscout/**"},
		Debounce:        50 * time.Millisecond,
	})
	require.NoError(t, err)
	defer w.Stop()

	go func() { _ = w.Start(ctx) }()

	runner := watcher.NewRunner(w, func(ctx context.Context) error {
		_, err := p.coord.Build(ctx, false)
		return err
	})
	go func() { _ = runner.Run(ctx) }()

	// Give the watcher time to register directories before writing
	time.Sleep(100 * time.Millisecond)

	p.write(t, "recipes.txt", "the chocolate cake recipe needs two eggs and cocoa powder")

	require.Eventually(t, func() bool {
		results, err := p.engine.Search(ctx, "chocolate cake recipe", search.Options{TopK: 5})
		if err != nil || len(results) == 0 {
			return false
		}
		for _, r := range results {
			if r.Path == "recipes.txt" {
				return true
			}
		}
		return false
	}, 5*time.Second, 50*time.Millisecond, "watched file never became searchable")

	// Deletion flows through the same loop
	require.NoError(t, os.Remove(filepath.Join(p.root, "recipes.txt")))

	require.Eventually(t, func() bool {
		results, err := p.engine.Search(ctx, "chocolate cake recipe", search.Options{TopK: 10})
		if err != nil {
			return false
		}
		for _, r := range results {
			if r.Path == "recipes.txt" {
				return false
			}
		}
		return true
	}, 5*time.Second, 50*time.Millisecond, "removed file still searchable")
}

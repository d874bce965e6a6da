package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/docscout/docscout/internal/ui"
	"github.com/docscout/docscout/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch the document folder and keep the index current",
		Long: `Run an initial build, then watch the document folder and trigger
an incremental build whenever documents change. Changes arriving
during a build coalesce into one follow-up build.

Stop with Ctrl-C.`,
		RunE: runWatch,
	}
}

func runWatch(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	styles := ui.StylesFor(cmd.OutOrStdout())
	out := cmd.OutOrStdout()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	_, _, coord, cleanup, err := openPipeline(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := coord.Open(ctx); err != nil {
		return err
	}

	// Initial build so the watch starts from a current index
	summary, err := coord.Build(ctx, false)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s %d chunks (%s index)\n",
		styles.Success.Render("index ready:"), summary.ChunkCount, summary.Variant)

	debounce, err := time.ParseDuration(cfg.Indexing.WatchDebounce)
	if err != nil || debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	w, err := watcher.New(watcher.Options{
		RootDir:         cfg.Paths.Root,
		ExcludePatterns: cfg.Paths.Exclude,
		Debounce:        debounce,
	})
	if err != nil {
		return err
	}
	defer w.Stop()

	go func() { _ = w.Start(ctx) }()

	fmt.Fprintln(out, styles.Label.Render("watching for changes (Ctrl-C to stop)"))

	runner := watcher.NewRunner(w, func(ctx context.Context) error {
		summary, err := coord.Build(ctx, false)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s +%d ~%d -%d (%d chunks)\n",
			styles.Label.Render("updated:"),
			summary.Added, summary.Modified, summary.Removed, summary.ChunkCount)
		return nil
	})

	if err := runner.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	fmt.Fprintln(out, styles.Dim.Render("watch stopped"))
	return nil
}

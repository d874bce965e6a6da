package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/docscout/docscout/internal/index"
	"github.com/docscout/docscout/internal/ui"
)

func newIndexCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build or update the document index",
		Long: `Scan the document folder and index new, changed, and removed
documents. Unchanged documents are never re-processed.

Examples:
  docscout index
  docscout index --force
  docscout index --root ~/Documents/contracts`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIndex(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Re-index every document and rebuild the index structure")
	return cmd
}

func runIndex(cmd *cobra.Command, force bool) error {
	ctx := cmd.Context()
	styles := ui.StylesFor(cmd.OutOrStdout())

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

	coord.OnProgress = newProgressReporter()

	summary, err := coord.Build(ctx, force)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, styles.Header.Render("Index updated"))
	fmt.Fprintf(out, "  %s %d added, %d modified, %d removed\n",
		styles.Label.Render("documents:"), summary.Added, summary.Modified, summary.Removed)
	fmt.Fprintf(out, "  %s %d (%s index)\n",
		styles.Label.Render("chunks:"), summary.ChunkCount, summary.Variant)
	fmt.Fprintf(out, "  %s %s\n",
		styles.Label.Render("duration:"), summary.Duration.Round(time.Millisecond))

	if summary.Failed > 0 {
		fmt.Fprintln(out, styles.Warning.Render(
			fmt.Sprintf("  %d document(s) failed and will be retried next run:", summary.Failed)))
		for _, path := range summary.FailedDocs {
			fmt.Fprintf(out, "    %s\n", styles.Dim.Render(path))
		}
	}
	return nil
}

// newProgressReporter renders per-phase progress bars on stderr when
// it is a terminal, and stays silent otherwise.
func newProgressReporter() func(index.ProgressEvent) {
	if !ui.IsTTY(os.Stderr) {
		return nil
	}

	var bar *progressbar.ProgressBar
	var barPhase index.Phase

	return func(ev index.ProgressEvent) {
		if ev.Total == 0 {
			return
		}
		if bar == nil || barPhase != ev.Phase {
			if bar != nil {
				_ = bar.Finish()
			}
			barPhase = ev.Phase
			bar = progressbar.NewOptions(ev.Total,
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionSetDescription(phaseLabel(ev.Phase)),
				progressbar.OptionSetWidth(32),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
		}
		_ = bar.Set(ev.Current)
	}
}

func phaseLabel(p index.Phase) string {
	switch p {
	case index.PhaseExtracting:
		return "extracting"
	case index.PhaseEmbedding:
		return "embedding"
	default:
		return "indexing"
	}
}

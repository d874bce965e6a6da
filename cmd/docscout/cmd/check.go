package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/docscout/docscout/internal/preflight"
	"github.com/docscout/docscout/internal/ui"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the environment is ready for indexing",
		Long: `Check that the document folder is readable, the data directory is
writable, there is disk space for the index, and the embedding
provider is reachable.`,
		RunE: runCheck,
	}
}

func runCheck(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	styles := ui.StylesFor(out)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	_, embedder, _, cleanup, err := openPipeline(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	checker := preflight.New(cfg.Paths.Root, cfg.DataDir(), embedder)
	results := checker.RunAll(ctx)

	for _, r := range results {
		label := styles.Success.Render("PASS")
		switch r.Status {
		case preflight.StatusWarn:
			label = styles.Warning.Render("WARN")
		case preflight.StatusFail:
			label = styles.Error.Render("FAIL")
		}
		fmt.Fprintf(out, "[%s] %s: %s\n", label, r.Name, r.Message)
	}

	if preflight.HasCriticalFailures(results) {
		return fmt.Errorf("environment is not ready")
	}
	fmt.Fprintln(out, styles.Success.Render("ready"))
	return nil
}

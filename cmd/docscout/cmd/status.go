package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/docscout/docscout/internal/ui"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show index status",
		Long:  `Show what the index currently holds: document and chunk counts, the index structure in use, the embedding model, and when the last build finished.`,
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	styles := ui.StylesFor(out)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, _, coord, cleanup, err := openPipeline(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	manifest, err := coord.Manifest()
	if err != nil {
		return err
	}
	if manifest == nil {
		fmt.Fprintln(out, styles.Dim.Render("no index yet — run 'docscout index' first"))
		return nil
	}

	docs, err := st.ListDocuments(ctx)
	if err != nil {
		return err
	}
	chunks, err := st.CountChunks(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, styles.Header.Render("Index status"))
	fmt.Fprintf(out, "  %s %s\n", styles.Label.Render("root:"), cfg.Paths.Root)
	fmt.Fprintf(out, "  %s %d\n", styles.Label.Render("documents:"), len(docs))
	fmt.Fprintf(out, "  %s %d\n", styles.Label.Render("chunks:"), chunks)
	fmt.Fprintf(out, "  %s %s\n", styles.Label.Render("structure:"), manifest.Variant)
	fmt.Fprintf(out, "  %s %s (%d dimensions)\n", styles.Label.Render("model:"), manifest.Model, manifest.Dimensions)
	fmt.Fprintf(out, "  %s %s\n", styles.Label.Render("built:"), manifest.BuiltAt.Local().Format("2006-01-02 15:04:05"))
	return nil
}

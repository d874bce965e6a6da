package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/docscout/docscout/internal/search"
	"github.com/docscout/docscout/internal/ui"
)

type searchOptions struct {
	topK      int
	documents []string
	format    string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed documents",
		Long: `Run a semantic query against the indexed documents.

Examples:
  docscout search "termination clause notice period"
  docscout search "quarterly revenue forecast" --top-k 5
  docscout search "safety procedures" --doc manuals/plant-a.pdf
  docscout search "budget overruns" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.topK, "top-k", "k", 0, "Number of results (default from config)")
	cmd.Flags().StringSliceVar(&opts.documents, "doc", nil, "Restrict to these documents (repeatable, root-relative path)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearch(cmd *cobra.Command, query string, opts searchOptions) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if opts.topK <= 0 {
		opts.topK = cfg.Search.TopK
	}

	st, embedder, coord, cleanup, err := openPipeline(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := coord.Open(ctx); err != nil {
		return err
	}

	engine := search.NewEngine(st, embedder, coord.Handle())
	results, err := engine.Search(ctx, query, search.Options{
		TopK:      opts.topK,
		Documents: opts.documents,
	})
	if err != nil {
		return err
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	return renderResults(cmd, query, results)
}

func renderResults(cmd *cobra.Command, query string, results []*search.Result) error {
	out := cmd.OutOrStdout()
	styles := ui.StylesFor(out)

	if len(results) == 0 {
		fmt.Fprintln(out, styles.Dim.Render(fmt.Sprintf("no results for %q", query)))
		return nil
	}

	for i, r := range results {
		fmt.Fprintf(out, "%s %s %s\n",
			styles.Score.Render(fmt.Sprintf("%2d. [%.3f]", i+1, r.Score)),
			styles.Path.Render(r.Path),
			styles.Label.Render("("+r.Location+")"))
		fmt.Fprintf(out, "    %s\n", styles.Snippet.Render(r.Snippet))
		if i < len(results)-1 {
			fmt.Fprintln(out)
		}
	}
	return nil
}

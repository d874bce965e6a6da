// Package cmd provides the CLI commands for docscout.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/docscout/docscout/internal/config"
	"github.com/docscout/docscout/internal/embed"
	"github.com/docscout/docscout/internal/index"
	"github.com/docscout/docscout/internal/logging"
	"github.com/docscout/docscout/internal/store"
	"github.com/docscout/docscout/pkg/version"
)

var (
	flagRoot    string
	flagDataDir string
	debugMode   bool

	loggingCleanup func()
)

// NewRootCmd creates the root command for the docscout CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docscout",
		Short: "Incremental semantic search over a document folder",
		Long: `docscout indexes PDF, Word, Excel, and text documents in a folder
and answers natural-language queries against them.

Indexing is incremental: only documents that changed since the last
run are re-processed. The vector index scales its structure to the
corpus size automatically.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("docscout version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&flagRoot, "root", "", "Document folder to index (default: current directory)")
	cmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "Index data directory (default: <root>/.docscout)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = teardownLogging

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	_ = godotenv.Load()
	return NewRootCmd().Execute()
}

func setupLogging(_ *cobra.Command, _ []string) error {
	cfg := logging.DefaultConfig()
	if debugMode {
		cfg = logging.DebugConfig()
	}

	logger, cleanup, err := logging.Setup(cfg)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

func teardownLogging(_ *cobra.Command, _ []string) {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
}

// loadConfig layers the YAML config, environment, and CLI flags.
func loadConfig() (*config.Config, error) {
	root := flagRoot
	if root == "" {
		var err error
		root, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve working directory: %w", err)
		}
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}

	cfg.Paths.Root = root
	if flagDataDir != "" {
		cfg.Paths.DataDir = flagDataDir
	}
	if debugMode {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

// openPipeline wires the store, embedder, and coordinator for a
// command. The returned cleanup closes them in reverse order.
func openPipeline(ctx context.Context, cfg *config.Config) (*store.SQLiteStore, embed.Embedder, *index.Coordinator, func(), error) {
	st, err := store.NewSQLiteStore(cfg.MetadataPath())
	if err != nil {
		return nil, nil, nil, nil, err
	}

	embedder, err := embed.New(ctx, cfg.Embeddings)
	if err != nil {
		_ = st.Close()
		return nil, nil, nil, nil, err
	}

	coord := index.NewCoordinator(index.ConfigFrom(cfg), st, embedder)

	cleanup := func() {
		_ = embedder.Close()
		_ = st.Close()
	}
	return st, embedder, coord, cleanup, nil
}

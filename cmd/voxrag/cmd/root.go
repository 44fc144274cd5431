// Package cmd provides the CLI commands for voxrag.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/voxide/voxrag/internal/config"
	"github.com/voxide/voxrag/internal/logging"
	"github.com/voxide/voxrag/pkg/version"
)

// Global flags shared by all commands.
var (
	flagConfig string
	flagData   string
	flagDim    int
	flagAddr   string
	flagDebug  bool

	loggingCleanup func()
)

// NewRootCmd creates the root command for the voxrag CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "voxrag",
		Short: "Embeddable semantic-retrieval engine for local RAG",
		Long: `voxrag stores embedding vectors with their text chunks and document
metadata, indexes them with an in-memory HNSW graph, and answers top-k
similarity queries re-ranked by recency and packed to a token budget.

Running 'voxrag' with no arguments starts the HTTP server.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return cmd.Help()
			}
			return runServe(cmd)
		},
	}

	cmd.SetVersionTemplate("voxrag version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to YAML config file")
	cmd.PersistentFlags().StringVar(&flagData, "data", "", "Data directory for vectors.bin and metadata.db")
	cmd.PersistentFlags().IntVar(&flagDim, "dim", 0, "Vector dimension")
	cmd.PersistentFlags().StringVar(&flagAddr, "addr", "", "HTTP listen address")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")

	cmd.PersistentPostRun = func(_ *cobra.Command, _ []string) {
		if loggingCleanup != nil {
			loggingCleanup()
		}
	}

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newIngestMessageCmd())
	cmd.AddCommand(newRetrieveCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// loadConfig builds the effective config: file + env, then flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}

	if flagData != "" {
		cfg.Store.DataDir = flagData
	}
	if flagDim > 0 {
		cfg.Store.Dimension = flagDim
	}
	if flagAddr != "" {
		cfg.Server.Addr = flagAddr
	}
	if flagDebug {
		cfg.Logging.Level = "debug"
	}

	return cfg, cfg.Validate()
}

// setupServerLogging installs rotating-file + stderr logging.
func setupServerLogging(cfg *config.Config) error {
	lc := logging.DefaultConfig()
	lc.Level = cfg.Logging.Level
	cleanup, err := logging.SetupDefault(lc)
	if err != nil {
		return err
	}
	loggingCleanup = cleanup
	return nil
}

// setupCLILogging logs to stderr only, keeping stdout a clean JSON stream.
func setupCLILogging(cfg *config.Config) error {
	cleanup, err := logging.SetupDefault(logging.StderrConfig(cfg.Logging.Level))
	if err != nil {
		return err
	}
	loggingCleanup = cleanup
	return nil
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/careermap/jobradar/internal/config"
	"github.com/careermap/jobradar/internal/logging"
)

var (
	cfgFile string
	verbose bool
)

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobradar",
		Short: "A job posting crawler and extraction engine.",
		Long: `jobradar crawls job boards for postings matching a title search,
extracts structured records with per-board selector descriptors, and
delivers the deduplicated results to files, Postgres, or a downstream
API. Boards are paced individually and back off when throttled.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./jobradar.yaml)")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "force development logging")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newSitesCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

// setup loads configuration and builds the logger the way every
// subcommand needs them.
func setup() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development || verbose)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("init logger: %w", err)
	}

	return cfg, logger, nil
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the
// command context so crawls drain instead of dying mid-page.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

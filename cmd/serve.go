package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/careermap/jobradar/internal/api"
	"github.com/careermap/jobradar/internal/crawl"
	"github.com/careermap/jobradar/internal/sites"
	"github.com/careermap/jobradar/internal/store"
)

// defaultServeInterval paces background crawls when the config does not
// set one.
const defaultServeInterval = time.Hour

type serveOptions struct {
	port  int
	crawl crawlOptions
}

// newServeCmd creates and configures the 'serve' subcommand.
func newServeCmd() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the status HTTP server",
		Long: `Serves crawl run history, board pacing state, and Prometheus
metrics over HTTP. With --title the server also crawls in the
background on the configured interval.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeCommand(cmd, opts)
		},
	}
	cmd.Flags().IntVar(&opts.port, "port", 0, "listen port (0 = config)")
	opts.crawl.registerFlags(cmd.Flags())
	return cmd
}

func runServeCommand(cmd *cobra.Command, opts *serveOptions) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush

	opts.crawl.apply(cmd.Flags(), &cfg)
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = opts.port
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := cmd.Context()
	tracker := crawl.NewTracker()
	eng, err := buildEngine(ctx, cfg, tracker, logger)
	if err != nil {
		return err
	}

	var repo store.RunRepository
	if eng.runs != nil {
		repo = eng.runs
	}
	catalog := cfg.Catalog()
	apiServer := api.NewServer(
		api.NewRunHandler(repo, logger.Named("api")),
		tracker,
		catalog,
		eng.pacer,
		api.Options{APIKey: cfg.Server.APIKey, Timeout: cfg.Server.Timeout, Logger: logger.Named("api")},
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveCtx, stop := context.WithCancel(ctx)
	defer stop()

	crawlDone := make(chan struct{})
	if opts.crawl.title != "" {
		descs, err := sites.Select(catalog, cfg.Crawl.Sites)
		if err != nil {
			return err
		}
		interval := cfg.Crawl.Interval
		if interval <= 0 {
			interval = defaultServeInterval
		}
		params := opts.crawl.params(cfg, descs)
		go func() {
			defer close(crawlDone)
			cycle := func(ctx context.Context) error {
				summary, err := eng.controller.Run(ctx, params)
				if err != nil {
					return err
				}
				eng.deliver(ctx, summary)
				return nil
			}
			if err := crawl.RunEvery(serveCtx, eng.clock, interval, logger, cycle); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("background crawl stopped", zap.Error(err))
			}
		}()
	} else {
		close(crawlDone)
	}

	go func() {
		logger.Info("status server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("status server error", zap.Error(err))
			stop()
		}
	}()

	<-serveCtx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	<-crawlDone
	eng.Close()
	logger.Info("shutdown complete")
	return nil
}

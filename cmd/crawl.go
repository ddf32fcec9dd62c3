// Package cmd defines and implements the CLI commands for the jobradar executable.
package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/careermap/jobradar/internal/clock"
	"github.com/careermap/jobradar/internal/config"
	"github.com/careermap/jobradar/internal/crawl"
	"github.com/careermap/jobradar/internal/fetch"
	"github.com/careermap/jobradar/internal/forward"
	"github.com/careermap/jobradar/internal/metrics"
	"github.com/careermap/jobradar/internal/output"
	"github.com/careermap/jobradar/internal/progress"
	"github.com/careermap/jobradar/internal/progress/sinks"
	"github.com/careermap/jobradar/internal/randsrc"
	"github.com/careermap/jobradar/internal/ratelimit"
	"github.com/careermap/jobradar/internal/sites"
	"github.com/careermap/jobradar/internal/storage/postgres"
)

type crawlOptions struct {
	title     string
	location  string
	siteNames []string
	keywords  []string
	maxJobs   int
	maxPages  int
	workers   int
	outputDir string
	jsonOut   bool
	csvOut    bool
	snapshots bool
	noSkills  bool
	interval  time.Duration
	postgres  string
	forward   string
}

// registerFlags declares the crawl tuning flags shared by the crawl and
// serve commands.
func (o *crawlOptions) registerFlags(f *pflag.FlagSet) {
	f.StringVar(&o.title, "title", "", "job title to search for")
	f.StringVar(&o.location, "location", "", "location filter, empty searches everywhere")
	f.StringSliceVar(&o.siteNames, "site", nil, "board to crawl, repeatable (default: every enabled board)")
	f.StringSliceVar(&o.keywords, "keyword", nil, "keep only postings mentioning one of these, repeatable")
	f.IntVar(&o.maxJobs, "max-jobs", 0, "stop after this many postings across all boards (0 = unlimited)")
	f.IntVar(&o.maxPages, "max-pages", 0, "cap result pages per board (0 = board default)")
	f.IntVar(&o.workers, "workers", 0, "crawl this many boards in parallel (0 = config)")
	f.StringVar(&o.outputDir, "output-dir", "", "directory for result files (default from config)")
	f.BoolVar(&o.jsonOut, "json", true, "write a JSON file per run")
	f.BoolVar(&o.csvOut, "csv", true, "write a CSV file per run")
	f.BoolVar(&o.snapshots, "snapshots", false, "save HTML snapshots of blocked responses")
	f.BoolVar(&o.noSkills, "no-skills", false, "skip skill vocabulary scanning")
	f.StringVar(&o.postgres, "postgres", "", "Postgres DSN for record and run persistence")
	f.StringVar(&o.forward, "forward-url", "", "POST finished runs to this endpoint as a JSON array")
}

// apply layers explicitly-set flags over the loaded config.
func (o *crawlOptions) apply(f *pflag.FlagSet, cfg *config.Config) {
	if f.Changed("site") {
		cfg.Crawl.Sites = o.siteNames
	}
	if f.Changed("keyword") {
		cfg.Crawl.Keywords = o.keywords
	}
	if f.Changed("max-jobs") {
		cfg.Crawl.MaxJobs = o.maxJobs
	}
	if f.Changed("max-pages") {
		cfg.Crawl.MaxPages = o.maxPages
	}
	if f.Changed("workers") {
		cfg.Crawl.Workers = o.workers
	}
	if f.Changed("no-skills") {
		cfg.Crawl.Skills = !o.noSkills
	}
	if f.Changed("interval") {
		cfg.Crawl.Interval = o.interval
	}
	if f.Changed("output-dir") {
		cfg.Output.Dir = o.outputDir
	}
	if f.Changed("json") {
		cfg.Output.JSON = o.jsonOut
	}
	if f.Changed("csv") {
		cfg.Output.CSV = o.csvOut
	}
	if f.Changed("snapshots") {
		cfg.Output.Snapshots = o.snapshots
	}
	if f.Changed("postgres") {
		cfg.Postgres.DSN = o.postgres
	}
	if f.Changed("forward-url") {
		cfg.Forward.Endpoint = o.forward
	}
}

// params assembles the controller parameters for one crawl cycle.
func (o *crawlOptions) params(cfg config.Config, descs []sites.Descriptor) crawl.Params {
	return crawl.Params{
		Query:     o.title,
		Location:  o.location,
		Sites:     descs,
		MaxJobs:   cfg.Crawl.MaxJobs,
		MaxPages:  cfg.Crawl.MaxPages,
		Keywords:  cfg.Crawl.Keywords,
		SkillScan: cfg.Crawl.Skills,
		Workers:   cfg.Crawl.Workers,
	}
}

// newCrawlCmd creates and configures the 'crawl' subcommand.
func newCrawlCmd() *cobra.Command {
	opts := &crawlOptions{}
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl the configured job boards",
		Long: `Searches every selected job board for postings matching --title,
extracts and deduplicates the results, and delivers them to the
configured sinks. With --interval the crawl repeats on that cadence
until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawlCommand(cmd, opts)
		},
	}
	opts.registerFlags(cmd.Flags())
	cmd.Flags().DurationVar(&opts.interval, "interval", 0, "repeat the crawl on this cadence (0 = run once)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func runCrawlCommand(cmd *cobra.Command, opts *crawlOptions) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush

	opts.apply(cmd.Flags(), &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	descs, err := sites.Select(cfg.Catalog(), cfg.Crawl.Sites)
	if err != nil {
		return err
	}

	eng, err := buildEngine(cmd.Context(), cfg, nil, logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	params := opts.params(cfg, descs)
	cycle := func(ctx context.Context) error {
		summary, err := eng.controller.Run(ctx, params)
		if err != nil {
			return err
		}
		eng.deliver(ctx, summary)
		return nil
	}

	return crawl.RunEvery(cmd.Context(), eng.clock, cfg.Crawl.Interval, logger, cycle)
}

// engine bundles the wired crawl pipeline so shutdown stays in one place.
type engine struct {
	controller *crawl.Controller
	pacer      *ratelimit.Limiter
	hub        *progress.Hub
	writer     *output.Writer
	records    *postgres.RecordStore
	runs       *postgres.RunStore
	forward    *forward.Client
	clock      clock.Clock
	cfg        config.Config
	log        *zap.Logger
}

// buildEngine wires the fetcher, limiter, event hub, and sinks from
// config. A non-nil tracker lets the status server watch runs.
func buildEngine(ctx context.Context, cfg config.Config, tracker *crawl.Tracker, logger *zap.Logger) (*engine, error) {
	metrics.Init()

	clk := clock.NewSystem()
	rnd := randsrc.NewWallSeeded()
	pacer := ratelimit.New(clk, rnd)

	var snaps fetch.Snapshotter
	if cfg.Output.Snapshots {
		snaps = output.NewSnapshots(filepath.Join(cfg.Output.Dir, "snapshots"), clk, logger.Named("snapshots"))
	}
	fetcher := fetch.New(cfg.Fetch, pacer, clk, rnd, snaps, logger.Named("fetch"))

	sinkList := []progress.Sink{sinks.NewLogSink(logger.Named("events"))}
	promSink, err := sinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		return nil, fmt.Errorf("register event metrics: %w", err)
	}
	sinkList = append(sinkList, promSink)

	eng := &engine{pacer: pacer, clock: clk, cfg: cfg, log: logger}

	if cfg.Postgres.DSN != "" {
		records, err := postgres.NewRecordStore(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("connect record store: %w", err)
		}
		runs, err := postgres.NewRunStore(ctx, cfg.Postgres.DSN)
		if err != nil {
			records.Close()
			return nil, fmt.Errorf("connect run store: %w", err)
		}
		eng.records = records
		eng.runs = runs
		sinkList = append(sinkList, sinks.NewStoreSink(runs, logger.Named("store")))
	}

	eng.hub = progress.NewHub(progress.Config{Logger: logger.Named("progress")}, sinkList...)

	if cfg.Output.JSON || cfg.Output.CSV {
		eng.writer = output.NewWriter(cfg.Output.Dir, clk, logger.Named("output"))
	}
	eng.forward = forward.New(cfg.Forward, logger.Named("forward"))

	eng.controller = crawl.New(crawl.Deps{
		Fetcher: fetcher,
		Pacing:  pacer,
		Emitter: eng.hub,
		Tracker: tracker,
		Clock:   clk,
		Rand:    rnd,
		Logger:  logger.Named("crawl"),
	})

	return eng, nil
}

// deliver pushes a finished run to every configured sink. Sink failures
// are logged, never fatal: the records exist and the next sink may
// still want them.
func (e *engine) deliver(ctx context.Context, summary *crawl.Summary) {
	if len(summary.Records) == 0 {
		e.log.Info("crawl produced no records, skipping delivery")
		return
	}

	if e.writer != nil && e.cfg.Output.JSON {
		if path, err := e.writer.WriteJSON(summary.Records); err != nil {
			e.log.Error("json output failed", zap.Error(err))
		} else {
			e.log.Info("records written", zap.String("path", path), zap.Int("records", len(summary.Records)))
		}
	}
	if e.writer != nil && e.cfg.Output.CSV {
		if path, err := e.writer.WriteCSV(summary.Records); err != nil {
			e.log.Error("csv output failed", zap.Error(err))
		} else {
			e.log.Info("records written", zap.String("path", path), zap.Int("records", len(summary.Records)))
		}
	}
	if e.records != nil {
		if err := e.records.StoreBatch(ctx, summary.Records); err != nil {
			e.log.Error("record persistence failed", zap.Error(err))
		}
	}
	if e.forward.Enabled() {
		if err := e.forward.Send(ctx, summary.Records); err != nil {
			e.log.Error("record forwarding failed", zap.Error(err))
		}
	}
}

// Close flushes the event hub and releases database pools.
func (e *engine) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.hub.Close(ctx); err != nil {
		e.log.Warn("event hub close failed", zap.Error(err))
	}
	if e.records != nil {
		e.records.Close()
	}
	if e.runs != nil {
		e.runs.Close()
	}
}

// Command ingest runs the ride-calendar ingestion pipeline for one or more
// sources. With no arguments it runs every registered source; a failure in
// any one of them causes a non-zero exit code.
//
//	ingest [--schedule <cron-expr>] [source ...]
//	ingest metrics summary --since 7d
//
// --schedule defaults to the INGEST_SCHEDULE environment variable.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/trailblazeapp/ride-ingest/internal/cache"
	"github.com/trailblazeapp/ride-ingest/internal/chunker"
	"github.com/trailblazeapp/ride-ingest/internal/config"
	"github.com/trailblazeapp/ride-ingest/internal/fetcher"
	"github.com/trailblazeapp/ride-ingest/internal/metrics"
	"github.com/trailblazeapp/ride-ingest/internal/notify"
	"github.com/trailblazeapp/ride-ingest/internal/pipeline"
	"github.com/trailblazeapp/ride-ingest/internal/scheduler"
	"github.com/trailblazeapp/ride-ingest/internal/source"
	"github.com/trailblazeapp/ride-ingest/internal/source/aerc"
	"github.com/trailblazeapp/ride-ingest/internal/store"
	"github.com/trailblazeapp/ride-ingest/internal/telemetry"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "metrics" {
		runMetricsSubcommand(os.Args[2:])
		return
	}

	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config load failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := source.NewRegistry()
	registry.Register(aerc.New())
	// PNER and Facebook drivers register here once implemented.

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("postgres connection failed", zap.Error(err))
	}
	defer pool.Close()

	eventStore := store.New(pool, logger)

	notifier, err := notify.New(cfg.NATSURL, logger)
	if err != nil {
		logger.Error("nats connection failed, geocode notifications disabled", zap.Error(err))
	}
	defer notifier.Close()

	var otelExporter *telemetry.Exporter
	if cfg.OTLPEndpoint != "" {
		otelExporter, err = telemetry.Init(ctx, cfg.OTLPEndpoint)
		if err != nil {
			logger.Warn("otel init failed, continuing without live metrics", zap.Error(err))
		} else {
			defer otelExporter.Shutdown(ctx)
		}
	}

	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	schedule := fs.String("schedule", cfg.CronSchedule, "cron expression; re-run the sources on this schedule instead of once")
	_ = fs.Parse(args)

	driverNames := fs.Args()
	if len(driverNames) == 0 {
		driverNames = registry.Names()
	}

	runAll := func() int {
		return runSources(ctx, driverNames, registry, cfg, logger, eventStore, notifier, otelExporter)
	}

	if *schedule != "" {
		return runScheduled(*schedule, runAll, logger)
	}

	return runAll()
}

func runSources(
	ctx context.Context,
	names []string,
	registry *source.Registry,
	cfg config.Config,
	logger *zap.Logger,
	eventStore *store.Store,
	notifier *notify.Publisher,
	otelExporter *telemetry.Exporter,
) int {
	exitCode := 0

	for _, name := range names {
		driver, ok := registry.Get(name)
		if !ok {
			logger.Error("unknown source", zap.String("source", name))
			exitCode = 1
			continue
		}

		c, err := cache.New(filepath.Join(cfg.CacheDir, name), cfg.CacheTTL, cfg.RefreshCache, logger)
		if err != nil {
			logger.Error("cache init failed", zap.String("source", name), zap.Error(err))
			exitCode = 1
			continue
		}

		f := fetcher.New(fetcher.Config{
			MaxRetries:     cfg.MaxRetries,
			RetryDelay:     cfg.RetryDelay,
			RequestTimeout: cfg.RequestTimeout,
		}, logger)

		deps := pipeline.Deps{
			Fetcher:  f,
			Cache:    c,
			Store:    eventStore,
			Notifier: notifier,
			ChunkCfg: chunker.Config{
				InitialSize: cfg.InitialChunkSize,
				MinSize:     cfg.MinChunkSize,
				MaxSize:     cfg.MaxChunkSize,
			},
			MetricsDir: cfg.MetricsDir,
			Logger:     logger,
		}

		orch := pipeline.New(driver, deps)

		runCtx, cancel := context.WithTimeout(ctx, cfg.RunTimeout)
		runMetrics, err := orch.Run(runCtx)
		cancel()

		if err != nil {
			logger.Error("source run failed", zap.String("source", name), zap.Error(err))
			otelExporter.RecordRunError(ctx, name)
			exitCode = 1
			continue
		}

		otelExporter.RecordRowsFetched(ctx, name, int64(runMetrics.RowsFetched))
		otelExporter.RecordEventsIngested(ctx, name, int64(runMetrics.EventsAdded+runMetrics.EventsUpdated))
	}

	return exitCode
}

func runScheduled(expr string, runAll func() int, logger *zap.Logger) int {
	lastCode := 0
	s, err := scheduler.New(expr, func() { lastCode = runAll() }, logger)
	if err != nil {
		logger.Fatal("invalid --schedule expression", zap.String("expr", expr), zap.Error(err))
	}

	s.Start()
	defer s.Stop()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	return lastCode
}

func runMetricsSubcommand(args []string) {
	fs := flag.NewFlagSet("metrics", flag.ExitOnError)
	since := fs.String("since", "7d", "lookback window, e.g. 7d, 24h")
	dir := fs.String("dir", "./logs/metrics", "metrics directory")
	_ = fs.Parse(args[1:])

	window, err := parseLookback(*since)
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid --since:", err)
		os.Exit(1)
	}

	runs, err := metrics.Summary(*dir, time.Now().Add(-window))
	if err != nil {
		fmt.Fprintln(os.Stderr, "summary failed:", err)
		os.Exit(1)
	}

	for _, rm := range runs {
		fmt.Printf("%-10s %-8s added=%-4d updated=%-4d rejected=%-4d loss=%.1f%%\n",
			rm.Source, rm.Status, rm.EventsAdded, rm.EventsUpdated, rm.EventsRejected, rm.ExtractionLossPercent)
	}
}

// parseLookback accepts Go durations plus a day-suffixed shorthand ("7d")
// since operators reason about this window in days, not hours.
func parseLookback(s string) (time.Duration, error) {
	if len(s) > 1 && s[len(s)-1] == 'd' {
		days, err := time.ParseDuration(s[:len(s)-1] + "h")
		if err != nil {
			return 0, err
		}
		return days * 24, nil
	}
	return time.ParseDuration(s)
}

func newLogger() *zap.Logger {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(getenvDefault("LOG_LEVEL", "info"))); err != nil {
		level.SetLevel(zap.InfoLevel)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = level

	logger, err := cfg.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	return logger
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

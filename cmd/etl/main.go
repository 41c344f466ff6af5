package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/dwd-climate-etl/internal/adapter/dwd"
	httpadapter "github.com/couchcryptid/dwd-climate-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/dwd-climate-etl/internal/adapter/kafka"
	"github.com/couchcryptid/dwd-climate-etl/internal/cache"
	"github.com/couchcryptid/dwd-climate-etl/internal/config"
	"github.com/couchcryptid/dwd-climate-etl/internal/observability"
	"github.com/couchcryptid/dwd-climate-etl/internal/pipeline"
	"github.com/couchcryptid/dwd-climate-etl/internal/scheduler"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	downloader := dwd.NewHTTPDownloader(&http.Client{Timeout: cfg.HTTPTimeout}, dwd.RetryPolicy{MaxRetries: cfg.FetchMaxRetries}, logger)
	client := dwd.NewClient(cfg.DWDBaseURL, downloader, metrics, logger)

	p := pipeline.New(client, pipeline.Options{
		Concurrency:   cfg.FetchConcurrency,
		IncludeRecent: cfg.IncludeRecent,
		DedupeOverlap: cfg.DedupePhaseOverlap,
	}, logger, metrics)
	series := cache.New(p, cfg.CacheSize, cfg.CacheTTL, clockwork.NewRealClock(), metrics)

	// Publishing is feature-flagged via KAFKA_BROKERS.
	var (
		writer    *kafkaadapter.Writer
		publisher scheduler.Publisher
	)
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, metrics, logger)
		publisher = writer
		logger.Info("kafka sink enabled", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
	} else {
		logger.Info("kafka sink disabled")
	}

	sched := scheduler.New(cfg.RefreshRegions, cfg.RefreshInterval, p, series, publisher, logger)

	// Without scheduled regions the service computes on demand and has
	// nothing to wait for.
	var ready sharedobs.ReadinessChecker = p
	if len(cfg.RefreshRegions) == 0 {
		ready = httpadapter.ReadinessFunc(func(context.Context) error { return nil })
	}
	srv := httpadapter.NewServer(cfg.HTTPAddr, ready, series, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start scheduled refresh.
	if err := sched.Start(); err != nil {
		logger.Error("scheduler start failed", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	sched.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

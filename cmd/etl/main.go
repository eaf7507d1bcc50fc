package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/couchcryptid/brewery-data-etl/internal/adapter/blobstore"
	httpadapter "github.com/couchcryptid/brewery-data-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/brewery-data-etl/internal/adapter/kafka"
	"github.com/couchcryptid/brewery-data-etl/internal/adapter/openbrewery"
	"github.com/couchcryptid/brewery-data-etl/internal/config"
	"github.com/couchcryptid/brewery-data-etl/internal/lake"
	"github.com/couchcryptid/brewery-data-etl/internal/observability"
	"github.com/couchcryptid/brewery-data-etl/internal/pipeline"
	"github.com/couchcryptid/brewery-data-etl/internal/scheduler"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := blobstore.Options{S3: blobstore.S3Options{
		Region:         cfg.S3Region,
		Endpoint:       cfg.S3Endpoint,
		ForcePathStyle: cfg.S3ForcePathStyle,
	}}
	stores := make([]blobstore.Store, 0, 3)
	defer func() {
		for _, st := range stores {
			if err := st.Close(); err != nil {
				logger.Error("storage close error", "error", err)
			}
		}
	}()
	for _, root := range []string{cfg.BronzeRoot, cfg.SilverRoot, cfg.GoldRoot} {
		st, err := blobstore.Open(ctx, root, opts)
		if err != nil {
			logger.Error("failed to open storage root", "root", root, "error", err)
			return 1
		}
		stores = append(stores, st)
	}
	bronze, silver, gold := stores[0], stores[1], stores[2]

	mem := memory.NewGoAllocator()
	cache := lake.NewTableCache()
	defer cache.Close()

	// Publishing is feature-flagged via KAFKA_BROKERS.
	var publisher pipeline.Publisher
	if cfg.PublishEnabled() {
		writer := kafkaadapter.NewWriter(cfg, logger)
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		publisher = writer
		logger.Info("aggregate publishing enabled", "topic", cfg.KafkaAggregateTopic, "brokers", cfg.KafkaBrokers)
	} else {
		logger.Info("aggregate publishing disabled")
	}

	p := pipeline.New(pipeline.Stages{
		Fetcher:    openbrewery.NewClient(cfg.SourceURL, metrics, logger),
		Raw:        lake.NewRawWriter(bronze, logger),
		Normalizer: pipeline.NewNormalizer(mem, lake.NewTabularWriter(silver, mem, logger), logger),
		Aggregator: pipeline.NewAggregator(lake.NewAnalyticalWriter(gold, mem, logger), logger),
		Publisher:  publisher,
	}, cache, logger, metrics)

	if !cfg.Scheduled() {
		summary, err := p.Run(ctx)
		if err != nil {
			logger.Error("run failed", "stage", summary.FailedStage, "error", err)
			return 1
		}
		return 0
	}

	sched := scheduler.New(p, cfg.RunInterval, logger)
	srv := httpadapter.NewServer(cfg.HTTPAddr, p, p, sched, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	if err := sched.Start(ctx); err != nil {
		logger.Error("scheduler start error", "error", err)
		return 1
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	sched.Stop()

	logger.Info("shutdown complete")
	return 0
}

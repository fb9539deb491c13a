package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DeafMist/news-annotator/internal/config"
	"github.com/DeafMist/news-annotator/internal/elasticsearch"
	"github.com/DeafMist/news-annotator/internal/logger"
)

const (
	connectAttempts = 10
	firstDelay      = 2 * time.Second
	maxDelay        = 30 * time.Second
	runTimeout      = 2 * time.Minute
)

type pinger interface {
	Ping(ctx context.Context) error
}

type pruner interface {
	DeleteOlderThan(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)
}

func main() {
	log := logger.New("retention")
	if err := config.LoadDotEnv(); err != nil {
		log.Error("load env file", slog.Any("err", err))
		os.Exit(1)
	}
	cfg, err := config.LoadRetention()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
	if err != nil {
		log.Error("init elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := waitReady(ctx, log, esClient, connectAttempts, firstDelay); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info("shutdown signal received during startup")
			return
		}
		log.Error("failed to connect to elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}
	log.Info("connected to elasticsearch", slog.String("index", esClient.Index()))

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	log.Info("retention job running",
		slog.Duration("interval", cfg.Interval),
		slog.Duration("max_age", cfg.MaxAge),
	)

	// first pass runs immediately
	runOnce(ctx, log, esClient, cfg)

	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received")
			return
		case <-ticker.C:
			runOnce(ctx, log, esClient, cfg)
		}
	}
}

// waitReady pings until Elasticsearch answers, doubling the delay between attempts up
// to maxDelay.
func waitReady(ctx context.Context, log *slog.Logger, p pinger, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = p.Ping(pingCtx)
		cancel()
		if err == nil {
			return nil
		}

		log.Warn("elasticsearch ping failed, retrying",
			slog.Any("err", err),
			slog.Int("attempt", i+1),
			slog.Int("max_retries", attempts),
			slog.Duration("retry_in", delay),
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay = min(delay*2, maxDelay)
	}
	return err
}

func runOnce(ctx context.Context, log *slog.Logger, p pruner, cfg *config.Retention) int64 {
	subCtx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	deleted, err := p.DeleteOlderThan(subCtx, cfg.MaxAge, cfg.BatchSize)
	if err != nil {
		log.Warn("retention run failed (will retry on next interval)", slog.Any("err", err))
		return deleted
	}

	if deleted > 0 {
		log.Info("retention run completed", slog.Int64("deleted", deleted))
	} else {
		log.Debug("retention run completed, no old annotations found")
	}
	return deleted
}

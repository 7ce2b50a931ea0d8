// Package main provides the worker application entry point. The process
// runs the review workers, the queue maintenance loop, and the status
// endpoint; with --process-failed it instead retries failed reviews from
// the database and exits.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/fairyhunter13/review-insights/internal/adapter/ai"
	"github.com/fairyhunter13/review-insights/internal/adapter/ai/stub"
	"github.com/fairyhunter13/review-insights/internal/adapter/observability"
	"github.com/fairyhunter13/review-insights/internal/adapter/queue/redisq"
	"github.com/fairyhunter13/review-insights/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/review-insights/internal/adapter/store/redisstore"
	"github.com/fairyhunter13/review-insights/internal/app"
	"github.com/fairyhunter13/review-insights/internal/config"
	"github.com/fairyhunter13/review-insights/internal/domain"
	"github.com/fairyhunter13/review-insights/internal/usecase"
)

func main() {
	processFailed := flag.Bool("process-failed", false, "retry failed reviews from the database and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	slog.Info("starting worker", slog.String("env", cfg.AppEnv))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("database connection failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	store := redisstore.New(cfg)
	queue := redisq.New(store, cfg)
	if !queue.Ping(ctx) {
		slog.Error("queue store unreachable", slog.String("addr", cfg.StoreAddr()))
		os.Exit(1)
	}

	rawRepo := postgres.NewRawReviewRepo(pool)
	statusRepo := postgres.NewStatusRepo(pool)
	structuredRepo := postgres.NewStructuredReviewRepo(pool)

	var analyzer domain.Analyzer
	if cfg.AnalyzerAPIKey != "" {
		analyzer = ai.New(cfg)
	} else {
		slog.Warn("no analyzer API key configured, using stub analyzer")
		analyzer = stub.New()
	}
	pipeline := usecase.NewProcessorService(rawRepo, statusRepo, structuredRepo, analyzer)

	if *processFailed {
		retrySvc := usecase.NewRetryService(rawRepo, statusRepo, pipeline, cfg.MaxRetries)
		retried, failed, err := retrySvc.RetryAllFailed(ctx)
		if err != nil {
			slog.Error("failed review pass errored", slog.Any("error", err))
			os.Exit(1)
		}
		slog.Info("failed review pass finished",
			slog.Int("retried", retried),
			slog.Int("failed", failed))
		return
	}

	thresholds, err := cfg.Thresholds()
	if err != nil {
		slog.Error("health threshold config invalid, using env defaults", slog.Any("error", err))
	}

	var wg sync.WaitGroup
	for i := 0; i < cfg.WorkerCount; i++ {
		w := app.NewWorker(queue, pipeline, cfg.WorkerInnerRetries, cfg.WorkerInnerDelay)
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(ctx)
		}()
	}

	maintenance := app.NewMaintenanceLoop(queue, cfg.MaintenanceInterval, thresholds)
	wg.Add(1)
	go func() {
		defer wg.Done()
		maintenance.Run(ctx)
	}()

	status := app.NewStatusServer(cfg, queue, thresholds)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := status.Run(ctx); err != nil {
			slog.Error("status server error", slog.Any("error", err))
		}
	}()

	slog.Info("worker started successfully, waiting for shutdown signal",
		slog.Int("worker_count", cfg.WorkerCount))
	<-ctx.Done()
	slog.Info("signal received, shutting down")
	wg.Wait()
	slog.Info("worker stopped")
}

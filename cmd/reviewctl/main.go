// Package main provides the operator CLI for the review queue: bulk and
// single enqueue, queue inspection, and the destructive clear operations.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/fairyhunter13/review-insights/internal/adapter/ai"
	"github.com/fairyhunter13/review-insights/internal/adapter/ai/stub"
	"github.com/fairyhunter13/review-insights/internal/adapter/csvsource"
	"github.com/fairyhunter13/review-insights/internal/adapter/observability"
	"github.com/fairyhunter13/review-insights/internal/adapter/queue/redisq"
	"github.com/fairyhunter13/review-insights/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/review-insights/internal/adapter/store/redisstore"
	"github.com/fairyhunter13/review-insights/internal/config"
	"github.com/fairyhunter13/review-insights/internal/domain"
	"github.com/fairyhunter13/review-insights/internal/usecase"
)

const usageText = `Usage: reviewctl <command> [arguments]

Commands:
  enqueue-all <csv_filename>                           enqueue every review from a CSV file
  enqueue-single <id> <date> <rating> <text>           enqueue one review
  queue-status                                         show queue depths
  clear-queue                                          delete all queues and claims
  clear-database --password <token>                    purge all review records (DANGEROUS)
  retry-failed                                         reprocess failed reviews from the database
`

func main() {
	flag.Usage = func() { fmt.Fprint(os.Stderr, usageText) }
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(observability.SetupLogger(cfg))

	ctx := context.Background()
	store := redisstore.New(cfg)
	queue := redisq.New(store, cfg)
	source := csvsource.New(cfg.DataFilesPath)

	switch args[0] {
	case "enqueue-all":
		if len(args) != 2 {
			fmt.Fprintln(os.Stderr, "usage: reviewctl enqueue-all <csv_filename>")
			os.Exit(2)
		}
		admin := usecase.NewAdminService(queue, source, nil)
		count, err := admin.EnqueueAll(ctx, args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		if count == 0 {
			fmt.Printf("No reviews were enqueued from %s\n", args[1])
			os.Exit(1)
		}
		fmt.Printf("Successfully enqueued %d reviews from %s\n", count, args[1])

	case "enqueue-single":
		if len(args) != 5 {
			fmt.Fprintln(os.Stderr, "usage: reviewctl enqueue-single <review_id> <date> <rating> <text>")
			os.Exit(2)
		}
		admin := usecase.NewAdminService(queue, source, nil)
		review := domain.Review{ReviewID: args[1], Date: args[2], Rating: args[3], Text: args[4]}
		id, err := admin.EnqueueOne(ctx, review)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Successfully enqueued review %s (envelope %s)\n", review.ReviewID, id)

	case "queue-status":
		admin := usecase.NewAdminService(queue, source, nil)
		stats, err := admin.QueueStatus(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		total := stats.Main + stats.Processing + stats.Retry + stats.Failed
		fmt.Printf("Queue contains %d reviews (main: %d, processing: %d, retry: %d, failed: %d)\n",
			total, stats.Main, stats.Processing, stats.Retry, stats.Failed)
		fmt.Printf("Active processing claims: %d\n", stats.VisibilityKeys)

	case "clear-queue":
		admin := usecase.NewAdminService(queue, source, nil)
		if err := admin.ClearQueue(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Queue cleared successfully")

	case "clear-database":
		fs := flag.NewFlagSet("clear-database", flag.ExitOnError)
		token := fs.String("password", "", "confirmation token")
		_ = fs.Parse(args[1:])
		pool, err := postgres.NewPool(ctx, cfg.DBURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "database connection failed: %v\n", err)
			os.Exit(1)
		}
		defer pool.Close()
		admin := usecase.NewAdminService(queue, source, postgres.NewCleanupService(pool))
		counts, err := admin.ClearDatabase(ctx, *token)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Database cleared successfully. Deleted %d records total "+
			"(structured: %d, statuses: %d, raw: %d)\n",
			counts.Total(), counts.StructuredReviews, counts.ReviewStatuses, counts.RawReviews)

	case "retry-failed":
		pool, err := postgres.NewPool(ctx, cfg.DBURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "database connection failed: %v\n", err)
			os.Exit(1)
		}
		defer pool.Close()
		rawRepo := postgres.NewRawReviewRepo(pool)
		statusRepo := postgres.NewStatusRepo(pool)
		structuredRepo := postgres.NewStructuredReviewRepo(pool)
		pipeline := usecase.NewProcessorService(rawRepo, statusRepo, structuredRepo, analyzerFor(cfg))
		retrySvc := usecase.NewRetryService(rawRepo, statusRepo, pipeline, cfg.MaxRetries)
		retried, failed, err := retrySvc.RetryAllFailed(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Retry complete: %d succeeded, %d failed\n", retried, failed)
		if failed > 0 {
			os.Exit(1)
		}

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		flag.Usage()
		os.Exit(2)
	}
}

func analyzerFor(cfg config.Config) domain.Analyzer {
	if cfg.AnalyzerAPIKey != "" {
		return ai.New(cfg)
	}
	slog.Warn("no analyzer API key configured, using stub analyzer")
	return stub.New()
}

package usecase

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/review-insights/internal/domain"
)

// ClearDatabaseToken must be supplied verbatim before the record store is
// purged. Any other value aborts the operation.
const ClearDatabaseToken = "YES_DELETE_IT"

// ReviewSource streams reviews out of a named data file.
type ReviewSource interface {
	Extract(filename string, fn func(domain.Review) error) error
}

// AdminService backs the operator CLI: bulk and single enqueue, queue
// inspection, and the destructive clear operations.
type AdminService struct {
	Queue    domain.ReliableQueue
	Source   ReviewSource
	Cleaner  domain.DatabaseCleaner
	validate *validator.Validate
}

// NewAdminService constructs an AdminService with its dependencies.
func NewAdminService(q domain.ReliableQueue, src ReviewSource, cleaner domain.DatabaseCleaner) AdminService {
	return AdminService{
		Queue:    q,
		Source:   src,
		Cleaner:  cleaner,
		validate: validator.New(),
	}
}

// EnqueueAll reads every review from the named CSV file and enqueues it.
// Rows that fail validation are skipped with a warning; the returned count
// covers only successfully enqueued reviews.
func (s AdminService) EnqueueAll(ctx domain.Context, csvFilename string) (int, error) {
	if !s.Queue.Ping(ctx) {
		return 0, fmt.Errorf("op=admin.EnqueueAll: %w", domain.ErrStoreUnavailable)
	}
	enqueued := 0
	skipped := 0
	err := s.Source.Extract(csvFilename, func(review domain.Review) error {
		if err := s.validate.Struct(review); err != nil {
			skipped++
			slog.Warn("skipping invalid review row",
				slog.String("review_id", review.ReviewID),
				slog.Any("error", err))
			return nil
		}
		if _, err := s.Queue.Enqueue(ctx, review); err != nil {
			return err
		}
		enqueued++
		return nil
	})
	if err != nil {
		return enqueued, fmt.Errorf("op=admin.EnqueueAll: %w", err)
	}
	slog.Info("bulk enqueue finished",
		slog.String("file", csvFilename),
		slog.Int("enqueued", enqueued),
		slog.Int("skipped", skipped))
	return enqueued, nil
}

// EnqueueOne validates and enqueues a single review, returning the queue
// envelope id.
func (s AdminService) EnqueueOne(ctx domain.Context, review domain.Review) (string, error) {
	if err := s.validate.Struct(review); err != nil {
		return "", fmt.Errorf("op=admin.EnqueueOne: %w: %w", domain.ErrInvalidArgument, err)
	}
	if !s.Queue.Ping(ctx) {
		return "", fmt.Errorf("op=admin.EnqueueOne: %w", domain.ErrStoreUnavailable)
	}
	id, err := s.Queue.Enqueue(ctx, review)
	if err != nil {
		return "", fmt.Errorf("op=admin.EnqueueOne: %w", err)
	}
	return id, nil
}

// QueueStatus returns a depth snapshot of all logical queues.
func (s AdminService) QueueStatus(ctx domain.Context) (domain.QueueStats, error) {
	if !s.Queue.Ping(ctx) {
		return domain.QueueStats{}, fmt.Errorf("op=admin.QueueStatus: %w", domain.ErrStoreUnavailable)
	}
	stats, err := s.Queue.Stats(ctx)
	if err != nil {
		return domain.QueueStats{}, fmt.Errorf("op=admin.QueueStatus: %w", err)
	}
	return stats, nil
}

// ClearQueue deletes every logical queue and all visibility records.
func (s AdminService) ClearQueue(ctx domain.Context) error {
	if !s.Queue.Ping(ctx) {
		return fmt.Errorf("op=admin.ClearQueue: %w", domain.ErrStoreUnavailable)
	}
	if err := s.Queue.Clear(ctx); err != nil {
		return fmt.Errorf("op=admin.ClearQueue: %w", err)
	}
	return nil
}

// ClearDatabase purges all review records. The token gate is checked here,
// not in the CLI, so every caller goes through it.
func (s AdminService) ClearDatabase(ctx domain.Context, token string) (domain.DeletedCounts, error) {
	if token != ClearDatabaseToken {
		return domain.DeletedCounts{}, fmt.Errorf("op=admin.ClearDatabase: %w: confirmation token mismatch", domain.ErrInvalidArgument)
	}
	counts, err := s.Cleaner.ClearAll(ctx)
	if err != nil {
		return domain.DeletedCounts{}, fmt.Errorf("op=admin.ClearDatabase: %w", err)
	}
	return counts, nil
}

// RetryService re-runs the pipeline for reviews whose status row says
// failed. It uses the status retry_count as an audit counter and bound,
// independent of the queue envelope's delivery counter.
type RetryService struct {
	Raw        domain.RawReviewRepository
	Statuses   domain.StatusRepository
	Pipeline   domain.Pipeline
	MaxRetries int
}

// NewRetryService constructs a RetryService.
func NewRetryService(raw domain.RawReviewRepository, st domain.StatusRepository, p domain.Pipeline, maxRetries int) RetryService {
	return RetryService{Raw: raw, Statuses: st, Pipeline: p, MaxRetries: maxRetries}
}

// RetryOne reprocesses a single failed review in place.
func (s RetryService) RetryOne(ctx domain.Context, reviewID string) error {
	rec, err := s.Statuses.Get(ctx, reviewID)
	if err != nil {
		return fmt.Errorf("op=retry.RetryOne: %w", err)
	}
	if rec.RetryCount >= s.MaxRetries {
		return fmt.Errorf("op=retry.RetryOne: %w: retry limit %d reached for %s", domain.ErrInvalidArgument, s.MaxRetries, reviewID)
	}
	raw, err := s.Raw.Get(ctx, reviewID)
	if err != nil {
		return fmt.Errorf("op=retry.RetryOne: %w", err)
	}
	if err := s.Statuses.IncrementRetryCount(ctx, reviewID); err != nil {
		return fmt.Errorf("op=retry.RetryOne: %w", err)
	}
	review := domain.Review{ReviewID: raw.ReviewID, Date: raw.Date, Rating: raw.Rating, Text: raw.Text}
	if _, err := s.Pipeline.Process(ctx, review); err != nil {
		return fmt.Errorf("op=retry.RetryOne: %w", err)
	}
	return nil
}

// RetryAllFailed walks every failed status row and reprocesses each one.
// Individual failures are logged and counted, never fatal for the batch.
func (s RetryService) RetryAllFailed(ctx domain.Context) (retried, failed int, err error) {
	records, err := s.Statuses.ListByStatus(ctx, domain.StatusFailed)
	if err != nil {
		return 0, 0, fmt.Errorf("op=retry.RetryAllFailed: %w", err)
	}
	for _, rec := range records {
		if retryErr := s.RetryOne(ctx, rec.ReviewID); retryErr != nil {
			failed++
			if errors.Is(retryErr, domain.ErrInvalidArgument) {
				slog.Warn("skipping review at retry limit", slog.String("review_id", rec.ReviewID))
				continue
			}
			slog.Error("manual retry failed",
				slog.String("review_id", rec.ReviewID),
				slog.Any("error", retryErr))
			continue
		}
		retried++
	}
	slog.Info("manual retry pass finished",
		slog.Int("candidates", len(records)),
		slog.Int("retried", retried),
		slog.Int("failed", failed))
	return retried, failed, nil
}

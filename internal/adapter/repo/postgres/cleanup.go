package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/fairyhunter13/review-insights/internal/domain"
)

// CleanupService deletes all review records. It backs the operator's
// clear-database command and nothing else.
type CleanupService struct{ Pool PgxPool }

// NewCleanupService creates a new cleanup service.
func NewCleanupService(pool PgxPool) *CleanupService { return &CleanupService{Pool: pool} }

// ClearAll bulk-deletes every row from the three review relations inside a
// single transaction, children before parents.
func (s *CleanupService) ClearAll(ctx context.Context) (domain.DeletedCounts, error) {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.DeletedCounts{}, fmt.Errorf("op=cleanup.begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var counts domain.DeletedCounts
	tag, err := tx.Exec(ctx, `DELETE FROM structured_reviews`)
	if err != nil {
		return domain.DeletedCounts{}, fmt.Errorf("op=cleanup.structured: %w", err)
	}
	counts.StructuredReviews = tag.RowsAffected()

	tag, err = tx.Exec(ctx, `DELETE FROM review_statuses`)
	if err != nil {
		return domain.DeletedCounts{}, fmt.Errorf("op=cleanup.statuses: %w", err)
	}
	counts.ReviewStatuses = tag.RowsAffected()

	tag, err = tx.Exec(ctx, `DELETE FROM raw_reviews`)
	if err != nil {
		return domain.DeletedCounts{}, fmt.Errorf("op=cleanup.raw: %w", err)
	}
	counts.RawReviews = tag.RowsAffected()

	if err := tx.Commit(ctx); err != nil {
		return domain.DeletedCounts{}, fmt.Errorf("op=cleanup.commit: %w", err)
	}

	slog.Info("database cleared",
		slog.Int64("structured_reviews", counts.StructuredReviews),
		slog.Int64("review_statuses", counts.ReviewStatuses),
		slog.Int64("raw_reviews", counts.RawReviews),
	)
	return counts, nil
}

var _ domain.DatabaseCleaner = (*CleanupService)(nil)

package postgres

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/review-insights/internal/domain"
)

// StatusRepo persists and loads per-review processing status.
type StatusRepo struct{ Pool PgxPool }

// NewStatusRepo constructs a StatusRepo with the given pool.
func NewStatusRepo(p PgxPool) *StatusRepo { return &StatusRepo{Pool: p} }

const statusColumns = `review_id, status, processing_stage, COALESCE(error_message,''), processing_started_at, processing_completed_at, COALESCE(processing_duration_seconds,''), retry_count, COALESCE(processing_metadata,''), created_at, updated_at`

// Upsert inserts or refreshes a status row keyed on review_id. Existing rows
// keep their retry_count; the caller bumps it explicitly through
// IncrementRetryCount when a manual retry starts.
func (r *StatusRepo) Upsert(ctx domain.Context, s domain.StatusRecord) error {
	tracer := otel.Tracer("repo.review_statuses")
	ctx, span := tracer.Start(ctx, "review_statuses.Upsert")
	defer span.End()
	span.SetAttributes(attribute.String("review.id", s.ReviewID))
	now := time.Now().UTC()
	started := s.StartedAt
	if started.IsZero() {
		started = now
	}
	q := `INSERT INTO review_statuses (review_id, status, processing_stage, error_message, processing_started_at, retry_count, processing_metadata, created_at, updated_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8)
	ON CONFLICT (review_id)
	DO UPDATE SET status=EXCLUDED.status, processing_stage=EXCLUDED.processing_stage, error_message=EXCLUDED.error_message, processing_metadata=EXCLUDED.processing_metadata, updated_at=EXCLUDED.updated_at`
	_, err := r.Pool.Exec(ctx, q, s.ReviewID, s.Status, s.Stage, s.ErrorMessage, started, s.RetryCount, s.Metadata, now)
	if err != nil {
		return fmt.Errorf("op=status.upsert: %w", err)
	}
	return nil
}

// Get loads a status row by review id.
func (r *StatusRepo) Get(ctx domain.Context, reviewID string) (domain.StatusRecord, error) {
	tracer := otel.Tracer("repo.review_statuses")
	ctx, span := tracer.Start(ctx, "review_statuses.Get")
	defer span.End()
	q := `SELECT ` + statusColumns + ` FROM review_statuses WHERE review_id=$1`
	row := r.Pool.QueryRow(ctx, q, reviewID)
	s, err := scanStatus(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.StatusRecord{}, fmt.Errorf("op=status.get: %w", domain.ErrNotFound)
		}
		return domain.StatusRecord{}, fmt.Errorf("op=status.get: %w", err)
	}
	return s, nil
}

// ListByStatus returns every status row currently in the given state.
func (r *StatusRepo) ListByStatus(ctx domain.Context, status domain.ReviewStatus) ([]domain.StatusRecord, error) {
	tracer := otel.Tracer("repo.review_statuses")
	ctx, span := tracer.Start(ctx, "review_statuses.ListByStatus")
	defer span.End()
	q := `SELECT ` + statusColumns + ` FROM review_statuses WHERE status=$1 ORDER BY updated_at`
	rows, err := r.Pool.Query(ctx, q, status)
	if err != nil {
		return nil, fmt.Errorf("op=status.list: %w", err)
	}
	defer rows.Close()
	var out []domain.StatusRecord
	for rows.Next() {
		s, err := scanStatus(rows)
		if err != nil {
			return nil, fmt.Errorf("op=status.list: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=status.list: %w", err)
	}
	return out, nil
}

// MarkCompleted transitions a row to completed with its duration.
func (r *StatusRepo) MarkCompleted(ctx domain.Context, reviewID, durationSeconds, metadata string) error {
	tracer := otel.Tracer("repo.review_statuses")
	ctx, span := tracer.Start(ctx, "review_statuses.MarkCompleted")
	defer span.End()
	q := `UPDATE review_statuses SET status=$2, processing_completed_at=$3, processing_duration_seconds=$4, processing_metadata=$5, updated_at=$3 WHERE review_id=$1`
	_, err := r.Pool.Exec(ctx, q, reviewID, domain.StatusCompleted, time.Now().UTC(), durationSeconds, metadata)
	if err != nil {
		return fmt.Errorf("op=status.mark_completed: %w", err)
	}
	return nil
}

// MarkFailed transitions a row to failed with the last error.
func (r *StatusRepo) MarkFailed(ctx domain.Context, reviewID, errMsg, metadata string) error {
	tracer := otel.Tracer("repo.review_statuses")
	ctx, span := tracer.Start(ctx, "review_statuses.MarkFailed")
	defer span.End()
	q := `UPDATE review_statuses SET status=$2, error_message=$3, processing_metadata=$4, updated_at=$5 WHERE review_id=$1`
	_, err := r.Pool.Exec(ctx, q, reviewID, domain.StatusFailed, errMsg, metadata, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=status.mark_failed: %w", err)
	}
	return nil
}

// IncrementRetryCount bumps the audit retry counter for manual retries.
func (r *StatusRepo) IncrementRetryCount(ctx domain.Context, reviewID string) error {
	tracer := otel.Tracer("repo.review_statuses")
	ctx, span := tracer.Start(ctx, "review_statuses.IncrementRetryCount")
	defer span.End()
	q := `UPDATE review_statuses SET retry_count=retry_count+1, updated_at=$2 WHERE review_id=$1`
	_, err := r.Pool.Exec(ctx, q, reviewID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=status.increment_retry: %w", err)
	}
	return nil
}

func scanStatus(row pgx.Row) (domain.StatusRecord, error) {
	var s domain.StatusRecord
	err := row.Scan(&s.ReviewID, &s.Status, &s.Stage, &s.ErrorMessage, &s.StartedAt, &s.CompletedAt, &s.DurationSeconds, &s.RetryCount, &s.Metadata, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

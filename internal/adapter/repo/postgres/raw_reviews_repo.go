package postgres

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/review-insights/internal/domain"
)

// RawReviewRepo persists and loads raw reviews using a minimal pgx pool.
type RawReviewRepo struct{ Pool PgxPool }

// NewRawReviewRepo constructs a RawReviewRepo with the given pool.
func NewRawReviewRepo(p PgxPool) *RawReviewRepo { return &RawReviewRepo{Pool: p} }

// Upsert inserts or refreshes a raw review keyed on review_id. The upsert is
// what makes reprocessing the same review safe.
func (r *RawReviewRepo) Upsert(ctx domain.Context, rv domain.RawReview) error {
	tracer := otel.Tracer("repo.raw_reviews")
	ctx, span := tracer.Start(ctx, "raw_reviews.Upsert")
	defer span.End()
	q := `INSERT INTO raw_reviews (review_id, date, rating, text, created_at, updated_at)
	VALUES ($1,$2,$3,$4,$5,$5)
	ON CONFLICT (review_id)
	DO UPDATE SET date=EXCLUDED.date, rating=EXCLUDED.rating, text=EXCLUDED.text, updated_at=EXCLUDED.updated_at`
	_, err := r.Pool.Exec(ctx, q, rv.ReviewID, rv.Date, rv.Rating, rv.Text, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=raw_review.upsert: %w", err)
	}
	return nil
}

// Get loads a raw review by id.
func (r *RawReviewRepo) Get(ctx domain.Context, reviewID string) (domain.RawReview, error) {
	tracer := otel.Tracer("repo.raw_reviews")
	ctx, span := tracer.Start(ctx, "raw_reviews.Get")
	defer span.End()
	q := `SELECT review_id, date, rating, text, created_at, updated_at FROM raw_reviews WHERE review_id=$1`
	row := r.Pool.QueryRow(ctx, q, reviewID)
	var rv domain.RawReview
	if err := row.Scan(&rv.ReviewID, &rv.Date, &rv.Rating, &rv.Text, &rv.CreatedAt, &rv.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return domain.RawReview{}, fmt.Errorf("op=raw_review.get: %w", domain.ErrNotFound)
		}
		return domain.RawReview{}, fmt.Errorf("op=raw_review.get: %w", err)
	}
	return rv, nil
}

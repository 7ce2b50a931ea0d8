package postgres

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/review-insights/internal/domain"
)

// StructuredReviewRepo persists and loads analyzer insights.
type StructuredReviewRepo struct{ Pool PgxPool }

// NewStructuredReviewRepo constructs a StructuredReviewRepo with the given pool.
func NewStructuredReviewRepo(p PgxPool) *StructuredReviewRepo {
	return &StructuredReviewRepo{Pool: p}
}

// Upsert inserts or updates a structured review by review_id.
func (r *StructuredReviewRepo) Upsert(ctx domain.Context, s domain.StructuredReview) error {
	tracer := otel.Tracer("repo.structured_reviews")
	ctx, span := tracer.Start(ctx, "structured_reviews.Upsert")
	defer span.End()
	q := `INSERT INTO structured_reviews (review_id, overall_sentiment, sentiment_score, topics_mentioned, problems_identified, suggested_improvements, key_insights, processing_metadata, created_at, updated_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9)
	ON CONFLICT (review_id)
	DO UPDATE SET overall_sentiment=EXCLUDED.overall_sentiment, sentiment_score=EXCLUDED.sentiment_score, topics_mentioned=EXCLUDED.topics_mentioned, problems_identified=EXCLUDED.problems_identified, suggested_improvements=EXCLUDED.suggested_improvements, key_insights=EXCLUDED.key_insights, processing_metadata=EXCLUDED.processing_metadata, updated_at=EXCLUDED.updated_at`
	_, err := r.Pool.Exec(ctx, q, s.ReviewID, s.OverallSentiment, s.SentimentScore, s.TopicsMentioned, s.ProblemsIdentified, s.SuggestedImprovements, s.KeyInsights, s.ProcessingMetadata, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=structured.upsert: %w", err)
	}
	return nil
}

// Get loads a structured review by review id.
func (r *StructuredReviewRepo) Get(ctx domain.Context, reviewID string) (domain.StructuredReview, error) {
	tracer := otel.Tracer("repo.structured_reviews")
	ctx, span := tracer.Start(ctx, "structured_reviews.Get")
	defer span.End()
	q := `SELECT review_id, overall_sentiment, sentiment_score, COALESCE(topics_mentioned,''), COALESCE(problems_identified,''), COALESCE(suggested_improvements,''), COALESCE(key_insights,''), COALESCE(processing_metadata,''), created_at, updated_at FROM structured_reviews WHERE review_id=$1`
	row := r.Pool.QueryRow(ctx, q, reviewID)
	var s domain.StructuredReview
	if err := row.Scan(&s.ReviewID, &s.OverallSentiment, &s.SentimentScore, &s.TopicsMentioned, &s.ProblemsIdentified, &s.SuggestedImprovements, &s.KeyInsights, &s.ProcessingMetadata, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return domain.StructuredReview{}, fmt.Errorf("op=structured.get: %w", domain.ErrNotFound)
		}
		return domain.StructuredReview{}, fmt.Errorf("op=structured.get: %w", err)
	}
	return s, nil
}

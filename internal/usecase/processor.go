// Package usecase contains application business logic services.
package usecase

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/review-insights/internal/adapter/observability"
	"github.com/fairyhunter13/review-insights/internal/domain"
)

// Processing stages recorded in review_statuses.processing_stage.
const (
	StageRawReviewSaved   = "raw_review_saved"
	StageRetryProcessing  = "retry_processing"
	StageGenerating       = "processing_insights"
	StageSavingStructured = "saving_structured_review"
)

// ProcessorService runs the per-review pipeline: persist the raw review,
// track status, call the analyzer, persist the structured result. Every
// step is an upsert keyed on review_id, so reprocessing the same review
// after a crash or redelivery converges on the same rows.
type ProcessorService struct {
	Raw        domain.RawReviewRepository
	Statuses   domain.StatusRepository
	Structured domain.StructuredReviewRepository
	Analyzer   domain.Analyzer
}

// NewProcessorService constructs a ProcessorService with its dependencies.
func NewProcessorService(raw domain.RawReviewRepository, st domain.StatusRepository, str domain.StructuredReviewRepository, an domain.Analyzer) ProcessorService {
	return ProcessorService{Raw: raw, Statuses: st, Structured: str, Analyzer: an}
}

// Process runs the full pipeline for one review. On any failure the status
// row is marked failed with the error message before the error is returned,
// so the database always reflects the final disposition.
func (s ProcessorService) Process(ctx domain.Context, review domain.Review) (domain.Insights, error) {
	tracer := otel.Tracer("usecase.processor")
	ctx, span := tracer.Start(ctx, "processor.Process")
	defer span.End()

	start := time.Now()
	insights, err := s.process(ctx, review, start)
	observability.ProcessingDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		observability.ReviewsFailedTotal.Inc()
		failMeta, _ := json.Marshal(map[string]any{
			"failure_timestamp": time.Now().UTC().Format(time.RFC3339),
			"failure_stage":     "processing",
		})
		if markErr := s.Statuses.MarkFailed(ctx, review.ReviewID, err.Error(), string(failMeta)); markErr != nil {
			slog.Error("mark failed did not stick",
				slog.String("review_id", review.ReviewID),
				slog.Any("error", markErr))
		}
		return domain.Insights{}, err
	}
	observability.ReviewsCompletedTotal.Inc()
	return insights, nil
}

func (s ProcessorService) process(ctx domain.Context, review domain.Review, start time.Time) (domain.Insights, error) {
	if review.ReviewID == "" {
		return domain.Insights{}, fmt.Errorf("%w: review_id required", domain.ErrInvalidArgument)
	}

	if err := s.saveRawAndTrack(ctx, review); err != nil {
		return domain.Insights{}, err
	}

	if err := s.updateStage(ctx, review.ReviewID, StageGenerating); err != nil {
		return domain.Insights{}, err
	}
	if strings.TrimSpace(review.Text) == "" {
		return domain.Insights{}, fmt.Errorf("%w: empty review text", domain.ErrAnalyzerPermanent)
	}
	insights, err := s.Analyzer.Analyze(ctx, review)
	if err != nil {
		return domain.Insights{}, fmt.Errorf("op=processor.analyze: %w", err)
	}

	if err := s.updateStage(ctx, review.ReviewID, StageSavingStructured); err != nil {
		return domain.Insights{}, err
	}
	structured, err := toStructured(review.ReviewID, insights)
	if err != nil {
		return domain.Insights{}, err
	}
	if err := s.Structured.Upsert(ctx, structured); err != nil {
		return domain.Insights{}, fmt.Errorf("op=processor.save_structured: %w", err)
	}

	duration := strconv.FormatFloat(time.Since(start).Seconds(), 'f', 3, 64)
	completionMeta, _ := json.Marshal(map[string]any{
		"completion_timestamp": time.Now().UTC().Format(time.RFC3339),
		"total_topics":         len(insights.TopicsMentioned),
		"total_problems":       len(insights.ProblemsIdentified),
		"total_suggestions":    len(insights.SuggestedImprovements),
	})
	if err := s.Statuses.MarkCompleted(ctx, review.ReviewID, duration, string(completionMeta)); err != nil {
		return domain.Insights{}, fmt.Errorf("op=processor.mark_completed: %w", err)
	}
	slog.Info("review processed",
		slog.String("review_id", review.ReviewID),
		slog.String("sentiment", insights.OverallSentiment),
		slog.String("duration_seconds", duration))
	return insights, nil
}

// saveRawAndTrack upserts the raw review and establishes the status row.
// A pre-existing status row means this is a redelivery or manual retry,
// which is recorded as a distinct stage.
func (s ProcessorService) saveRawAndTrack(ctx domain.Context, review domain.Review) error {
	now := time.Now().UTC()
	raw := domain.RawReview{
		ReviewID: review.ReviewID,
		Date:     review.Date,
		Rating:   review.Rating,
		Text:     review.Text,
	}
	if err := s.Raw.Upsert(ctx, raw); err != nil {
		return fmt.Errorf("op=processor.save_raw: %w", err)
	}

	stage := StageRawReviewSaved
	if _, err := s.Statuses.Get(ctx, review.ReviewID); err == nil {
		stage = StageRetryProcessing
	} else if !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("op=processor.get_status: %w", err)
	}
	meta, _ := json.Marshal(map[string]string{"stage_entered_at": now.Format(time.RFC3339)})
	rec := domain.StatusRecord{
		ReviewID:  review.ReviewID,
		Status:    domain.StatusInProgress,
		Stage:     stage,
		StartedAt: now,
		Metadata:  string(meta),
	}
	if err := s.Statuses.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("op=processor.save_status: %w", err)
	}
	return nil
}

func (s ProcessorService) updateStage(ctx domain.Context, reviewID, stage string) error {
	rec := domain.StatusRecord{
		ReviewID: reviewID,
		Status:   domain.StatusInProgress,
		Stage:    stage,
	}
	if err := s.Statuses.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("op=processor.update_stage: %w", err)
	}
	return nil
}

// toStructured flattens list-valued insights into JSON columns.
func toStructured(reviewID string, ins domain.Insights) (domain.StructuredReview, error) {
	topics, _ := json.Marshal(ins.TopicsMentioned)
	problems, _ := json.Marshal(ins.ProblemsIdentified)
	improvements, _ := json.Marshal(ins.SuggestedImprovements)
	keyInsights, _ := json.Marshal(ins.KeyPhrases)
	meta, _ := json.Marshal(map[string]string{
		"processing_version": "1.0",
		"updated_at":         time.Now().UTC().Format(time.RFC3339),
	})
	return domain.StructuredReview{
		ReviewID:              reviewID,
		OverallSentiment:      ins.OverallSentiment,
		SentimentScore:        ins.SentimentScore,
		TopicsMentioned:       string(topics),
		ProblemsIdentified:    string(problems),
		SuggestedImprovements: string(improvements),
		KeyInsights:           string(keyInsights),
		ProcessingMetadata:    string(meta),
	}, nil
}

var _ domain.Pipeline = (ProcessorService{})

// Package domain defines the core entities and ports of the review
// ingestion system. Adapters depend on this package, never the reverse.
package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	// ErrStoreUnavailable covers connectivity or protocol failures against
	// the queue store. Always retryable; callers skip the cycle and resume.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrPayloadCorrupted marks a blob that fails to deserialize. The
	// offending entry is logged and dropped, never propagated as fatal.
	ErrPayloadCorrupted = errors.New("payload corrupted")
	// ErrAnalyzerTransient is a processing failure worth retrying.
	ErrAnalyzerTransient = errors.New("analyzer transient failure")
	// ErrAnalyzerPermanent is a processing failure retries cannot fix.
	ErrAnalyzerPermanent = errors.New("analyzer permanent failure")
	ErrInternal          = errors.New("internal error")
)

// Review is the input payload. ReviewID is the idempotence key for all
// downstream writes; the queue does not inspect anything beyond it.
type Review struct {
	ReviewID string `json:"review_id" validate:"required,max=50"`
	Date     string `json:"date"`
	Rating   string `json:"rating" validate:"required,max=50"`
	Text     string `json:"text" validate:"required"`
}

// Insights is the structured output of the external analyzer.
type Insights struct {
	OverallSentiment      string            `json:"overall_sentiment"`
	SentimentScore        float64           `json:"sentiment_score"`
	TopicsMentioned       []string          `json:"topics_mentioned"`
	ProblemsIdentified    []string          `json:"problems_identified"`
	SuggestedImprovements []string          `json:"suggested_improvements"`
	KeyPhrases            []string          `json:"key_phrases"`
	Metadata              map[string]string `json:"metadata,omitempty"`
}

// ReviewStatus values persisted in review_statuses.status.
type ReviewStatus string

const (
	StatusInProgress ReviewStatus = "in-progress"
	StatusCompleted  ReviewStatus = "completed"
	StatusFailed     ReviewStatus = "failed"
)

// RawReview is the persisted form of an ingested review.
type RawReview struct {
	ReviewID  string
	Date      string
	Rating    string
	Text      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StructuredReview is the persisted form of analyzer insights.
type StructuredReview struct {
	ReviewID              string
	OverallSentiment      string
	SentimentScore        float64
	TopicsMentioned       string
	ProblemsIdentified    string
	SuggestedImprovements string
	KeyInsights           string
	ProcessingMetadata    string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// StatusRecord tracks per-review processing state. RetryCount here is the
// user-visible audit counter for manual retries of failed rows; the queue
// envelope carries its own authoritative lifecycle counter.
type StatusRecord struct {
	ReviewID        string
	Status          ReviewStatus
	Stage           string
	ErrorMessage    string
	StartedAt       time.Time
	CompletedAt     *time.Time
	DurationSeconds string
	RetryCount      int
	Metadata        string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Repositories (ports)

type RawReviewRepository interface {
	Upsert(ctx Context, r RawReview) error
	Get(ctx Context, reviewID string) (RawReview, error)
}

type StatusRepository interface {
	Upsert(ctx Context, s StatusRecord) error
	Get(ctx Context, reviewID string) (StatusRecord, error)
	ListByStatus(ctx Context, status ReviewStatus) ([]StatusRecord, error)
	MarkCompleted(ctx Context, reviewID, durationSeconds, metadata string) error
	MarkFailed(ctx Context, reviewID, errMsg, metadata string) error
	IncrementRetryCount(ctx Context, reviewID string) error
}

type StructuredReviewRepository interface {
	Upsert(ctx Context, s StructuredReview) error
	Get(ctx Context, reviewID string) (StructuredReview, error)
}

// DeletedCounts reports how many rows each relation lost in a purge.
type DeletedCounts struct {
	StructuredReviews int64
	ReviewStatuses    int64
	RawReviews        int64
}

// Total returns the number of rows deleted across all relations.
func (d DeletedCounts) Total() int64 {
	return d.StructuredReviews + d.ReviewStatuses + d.RawReviews
}

// DatabaseCleaner (port) purges every review record from the record store.
type DatabaseCleaner interface {
	ClearAll(ctx Context) (DeletedCounts, error)
}

// Analyzer (port) wraps the external analysis service.
type Analyzer interface {
	Analyze(ctx Context, review Review) (Insights, error)
}

// Pipeline (port) is the per-message idempotent processing state machine.
type Pipeline interface {
	Process(ctx Context, review Review) (Insights, error)
}

// Context aliases context.Context so domain signatures stay compact.
type Context = context.Context

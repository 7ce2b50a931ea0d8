// Package redisq implements the reliable at-least-once review queue on top
// of the queue store adapter: four logical queues (main, processing, retry,
// failed), visibility-timeout tracking, ack/nack, and delayed retries.
package redisq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/review-insights/internal/adapter/observability"
	"github.com/fairyhunter13/review-insights/internal/config"
	"github.com/fairyhunter13/review-insights/internal/domain"
)

// Store is the capability surface redisq needs from the queue store.
type Store interface {
	PushFront(ctx context.Context, list, blob string) error
	AtomicMove(ctx context.Context, from, to string, timeout time.Duration) (string, error)
	ListLen(ctx context.Context, list string) (int64, error)
	ListRange(ctx context.Context, list string) ([]string, error)
	ListRemoveValue(ctx context.Context, list string, count int64, blob string) (int64, error)
	SetWithTTL(ctx context.Context, key, blob string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, keys ...string) error
	ScanKeys(ctx context.Context, prefix string) ([]string, error)
	ZSetAdd(ctx context.Context, key, blob string, score float64) error
	ZSetRangeByScore(ctx context.Context, key string, lo, hi float64) ([]string, error)
	ZSetRemove(ctx context.Context, key, blob string) error
	ZSetCard(ctx context.Context, key string) (int64, error)
	Ping(ctx context.Context) error
}

// Queue implements domain.ReliableQueue.
type Queue struct {
	store Store

	mainQueue       string
	processingQueue string
	retryQueue      string
	failedQueue     string

	visibilityTimeout time.Duration
	maxRetries        int
	claimBlockTimeout time.Duration

	now func() time.Time
}

// New builds a Queue over the given store using the configured names.
func New(store Store, cfg config.Config) *Queue {
	return &Queue{
		store:             store,
		mainQueue:         cfg.MainQueue,
		processingQueue:   cfg.ProcessingQueue,
		retryQueue:        cfg.RetryQueue(),
		failedQueue:       cfg.FailedQueue,
		visibilityTimeout: cfg.VisibilityTimeout,
		maxRetries:        cfg.MaxRetries,
		claimBlockTimeout: cfg.ClaimBlockTimeout,
		now:               time.Now,
	}
}

func (q *Queue) visibilityKey(envelopeID string) string {
	return q.processingQueue + ":" + envelopeID
}

func (q *Queue) nowSeconds() float64 {
	return float64(q.now().UnixNano()) / 1e9
}

// Enqueue wraps a review in a fresh envelope and pushes it onto main.
// Idempotence is the caller's concern: the same review_id enqueued twice
// produces two envelopes, and downstream upserts absorb the duplicate.
func (q *Queue) Enqueue(ctx context.Context, review domain.Review) (string, error) {
	tracer := otel.Tracer("queue.redisq")
	ctx, span := tracer.Start(ctx, "queue.Enqueue")
	defer span.End()

	env := domain.Envelope{
		ID:         uuid.NewString(),
		Review:     review,
		RetryCount: 0,
		EnqueuedAt: q.nowSeconds(),
	}
	blob, err := marshalEnvelope(env)
	if err != nil {
		return "", err
	}
	if err := q.store.PushFront(ctx, q.mainQueue, blob); err != nil {
		return "", fmt.Errorf("op=queue.enqueue: %w", err)
	}
	span.SetAttributes(attribute.String("envelope.id", env.ID))
	observability.MessagesEnqueuedTotal.Inc()
	return env.ID, nil
}

// Claim atomically moves the oldest envelope from main to processing and
// writes its visibility record. Returns ErrNotFound when main stays empty
// for the blocking timeout. A crash between the move and the visibility
// write leaves an orphaned processing entry that ReapExpired reclassifies.
func (q *Queue) Claim(ctx context.Context, workerID string) (domain.Envelope, error) {
	tracer := otel.Tracer("queue.redisq")
	ctx, span := tracer.Start(ctx, "queue.Claim")
	defer span.End()

	blob, err := q.store.AtomicMove(ctx, q.mainQueue, q.processingQueue, q.claimBlockTimeout)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Envelope{}, domain.ErrNotFound
		}
		return domain.Envelope{}, fmt.Errorf("op=queue.claim: %w", err)
	}

	env, err := unmarshalEnvelope(blob)
	if err != nil {
		// Corrupted blob is now stuck in processing; drop it there so it
		// cannot wedge the claim path.
		slog.Error("dropping corrupted envelope from processing", slog.Any("error", err))
		_, _ = q.store.ListRemoveValue(ctx, q.processingQueue, 1, blob)
		return domain.Envelope{}, err
	}

	started := q.nowSeconds()
	rec := domain.VisibilityRecord{
		Envelope:  env,
		WorkerID:  workerID,
		StartedAt: started,
		ExpiresAt: started + q.visibilityTimeout.Seconds(),
	}
	recBlob, err := marshalVisibility(rec)
	if err != nil {
		return domain.Envelope{}, err
	}
	if err := q.store.SetWithTTL(ctx, q.visibilityKey(env.ID), recBlob, q.visibilityTimeout); err != nil {
		// The claim stands in the processing list; maintenance will reap it
		// once it notices the missing visibility key.
		return domain.Envelope{}, fmt.Errorf("op=queue.claim: %w", err)
	}

	span.SetAttributes(
		attribute.String("envelope.id", env.ID),
		attribute.String("worker.id", workerID),
		attribute.Int("envelope.retry_count", env.RetryCount),
	)
	observability.MessagesClaimedTotal.Inc()
	return env, nil
}

// Ack finishes a claim successfully. The visibility key is deleted before
// the processing-list entry so a crash in between never resurrects a
// completed message: the leftover list entry gets reaped as timed out and
// downstream writes are idempotent on review_id.
func (q *Queue) Ack(ctx context.Context, envelopeID string) error {
	tracer := otel.Tracer("queue.redisq")
	ctx, span := tracer.Start(ctx, "queue.Ack")
	defer span.End()
	span.SetAttributes(attribute.String("envelope.id", envelopeID))

	if err := q.store.Delete(ctx, q.visibilityKey(envelopeID)); err != nil {
		return fmt.Errorf("op=queue.ack: %w", err)
	}
	if err := q.removeFromList(ctx, q.processingQueue, envelopeID); err != nil {
		return fmt.Errorf("op=queue.ack: %w", err)
	}
	observability.MessagesAckedTotal.Inc()
	return nil
}

// Nack reports a failed attempt. Returns false when the visibility record
// is already gone: maintenance reaped the claim and owns the envelope now.
func (q *Queue) Nack(ctx context.Context, envelopeID, errMsg string) (bool, error) {
	tracer := otel.Tracer("queue.redisq")
	ctx, span := tracer.Start(ctx, "queue.Nack")
	defer span.End()
	span.SetAttributes(attribute.String("envelope.id", envelopeID))

	recBlob, err := q.store.Get(ctx, q.visibilityKey(envelopeID))
	if errors.Is(err, domain.ErrNotFound) {
		slog.Warn("nack without visibility record; claim was reaped", slog.String("envelope_id", envelopeID))
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("op=queue.nack: %w", err)
	}
	rec, err := unmarshalVisibility(recBlob)
	if err != nil {
		// A corrupted visibility record cannot be routed; drop it and let
		// the list entry be reaped on the next maintenance pass.
		slog.Error("deleting corrupted visibility record", slog.String("envelope_id", envelopeID), slog.Any("error", err))
		_ = q.store.Delete(ctx, q.visibilityKey(envelopeID))
		return false, nil
	}

	env := rec.Envelope
	env.RetryCount++
	env.LastError = errMsg
	failedAt := q.nowSeconds()
	env.FailedAt = &failedAt

	if err := q.store.Delete(ctx, q.visibilityKey(envelopeID)); err != nil {
		return false, fmt.Errorf("op=queue.nack: %w", err)
	}
	if err := q.removeFromList(ctx, q.processingQueue, envelopeID); err != nil {
		return false, fmt.Errorf("op=queue.nack: %w", err)
	}

	blob, err := marshalEnvelope(env)
	if err != nil {
		return false, err
	}
	if env.RetryCount < q.maxRetries {
		delay := domain.RetryDelay(env.RetryCount)
		due := q.nowSeconds() + delay.Seconds()
		if err := q.store.ZSetAdd(ctx, q.retryQueue, blob, due); err != nil {
			return false, fmt.Errorf("op=queue.nack: %w", err)
		}
		slog.Info("envelope scheduled for retry",
			slog.String("envelope_id", env.ID),
			slog.Int("retry_count", env.RetryCount),
			slog.Duration("delay", delay))
		observability.MessagesNackedTotal.WithLabelValues("retry").Inc()
	} else {
		if err := q.store.PushFront(ctx, q.failedQueue, blob); err != nil {
			return false, fmt.Errorf("op=queue.nack: %w", err)
		}
		slog.Warn("envelope moved to failed queue",
			slog.String("envelope_id", env.ID),
			slog.Int("retry_count", env.RetryCount),
			slog.String("last_error", errMsg))
		observability.MessagesNackedTotal.WithLabelValues("failed").Inc()
	}
	return true, nil
}

// PromoteRetries moves every due envelope from the retry schedule back to
// main. Push-then-remove is not atomic: a crash in between duplicates the
// envelope in main, which downstream idempotence absorbs.
func (q *Queue) PromoteRetries(ctx context.Context) (int, error) {
	tracer := otel.Tracer("queue.redisq")
	ctx, span := tracer.Start(ctx, "queue.PromoteRetries")
	defer span.End()

	due, err := q.store.ZSetRangeByScore(ctx, q.retryQueue, 0, q.nowSeconds())
	if err != nil {
		return 0, fmt.Errorf("op=queue.promote_retries: %w", err)
	}
	moved := 0
	for _, blob := range due {
		if err := q.store.PushFront(ctx, q.mainQueue, blob); err != nil {
			return moved, fmt.Errorf("op=queue.promote_retries: %w", err)
		}
		if err := q.store.ZSetRemove(ctx, q.retryQueue, blob); err != nil {
			return moved, fmt.Errorf("op=queue.promote_retries: %w", err)
		}
		moved++
	}
	if moved > 0 {
		slog.Info("promoted retry envelopes to main queue", slog.Int("count", moved))
		observability.MessagesPromotedTotal.Add(float64(moved))
	}
	span.SetAttributes(attribute.Int("promoted", moved))
	return moved, nil
}

// ReapExpired reclassifies claims that are no longer alive: visibility
// records past their expiry, and processing-list entries with no visibility
// key at all (a worker crashed in the claim window or the TTL fired).
// Corrupted blobs are logged and deleted, never fatal.
func (q *Queue) ReapExpired(ctx context.Context) (int, error) {
	tracer := otel.Tracer("queue.redisq")
	ctx, span := tracer.Start(ctx, "queue.ReapExpired")
	defer span.End()

	keys, err := q.store.ScanKeys(ctx, q.processingQueue+":")
	if err != nil {
		return 0, fmt.Errorf("op=queue.reap_expired: %w", err)
	}

	now := q.nowSeconds()
	live := make(map[string]struct{}, len(keys))
	reaped := 0

	for _, key := range keys {
		recBlob, err := q.store.Get(ctx, key)
		if errors.Is(err, domain.ErrNotFound) {
			continue // TTL fired between scan and get
		}
		if err != nil {
			return reaped, fmt.Errorf("op=queue.reap_expired: %w", err)
		}
		rec, err := unmarshalVisibility(recBlob)
		if err != nil {
			slog.Error("deleting corrupted visibility record", slog.String("key", key), slog.Any("error", err))
			if derr := q.store.Delete(ctx, key); derr != nil {
				return reaped, fmt.Errorf("op=queue.reap_expired: %w", derr)
			}
			reaped++
			continue
		}
		if now > rec.ExpiresAt {
			if err := q.reapEnvelope(ctx, rec.Envelope, key); err != nil {
				return reaped, err
			}
			reaped++
			continue
		}
		live[rec.Envelope.ID] = struct{}{}
	}

	// Processing-list entries without a live visibility key are timed out
	// even though no record remains to say so.
	blobs, err := q.store.ListRange(ctx, q.processingQueue)
	if err != nil {
		return reaped, fmt.Errorf("op=queue.reap_expired: %w", err)
	}
	for _, blob := range blobs {
		env, err := unmarshalEnvelope(blob)
		if err != nil {
			slog.Error("dropping corrupted envelope from processing", slog.Any("error", err))
			if _, rerr := q.store.ListRemoveValue(ctx, q.processingQueue, 1, blob); rerr != nil {
				return reaped, fmt.Errorf("op=queue.reap_expired: %w", rerr)
			}
			reaped++
			continue
		}
		if _, ok := live[env.ID]; ok {
			continue
		}
		if err := q.reapEnvelope(ctx, env, q.visibilityKey(env.ID)); err != nil {
			return reaped, err
		}
		reaped++
	}

	if reaped > 0 {
		observability.MessagesReapedTotal.Add(float64(reaped))
	}
	span.SetAttributes(attribute.Int("reaped", reaped))
	return reaped, nil
}

// reapEnvelope routes a timed-out envelope back to main or on to failed and
// clears its processing state.
func (q *Queue) reapEnvelope(ctx context.Context, env domain.Envelope, visKey string) error {
	env.RetryCount++
	env.LastError = "Processing timeout"
	timedOut := q.nowSeconds()
	env.TimedOutAt = &timedOut

	if err := q.store.Delete(ctx, visKey); err != nil {
		return fmt.Errorf("op=queue.reap_envelope: %w", err)
	}
	if err := q.removeFromList(ctx, q.processingQueue, env.ID); err != nil {
		return fmt.Errorf("op=queue.reap_envelope: %w", err)
	}

	blob, err := marshalEnvelope(env)
	if err != nil {
		return err
	}
	dest := q.mainQueue
	if env.RetryCount >= q.maxRetries {
		dest = q.failedQueue
	}
	if err := q.store.PushFront(ctx, dest, blob); err != nil {
		return fmt.Errorf("op=queue.reap_envelope: %w", err)
	}
	slog.Info("reaped expired claim",
		slog.String("envelope_id", env.ID),
		slog.Int("retry_count", env.RetryCount),
		slog.String("routed_to", dest))
	return nil
}

// Stats returns the depth of each logical queue.
func (q *Queue) Stats(ctx context.Context) (domain.QueueStats, error) {
	var s domain.QueueStats
	var err error
	if s.Main, err = q.store.ListLen(ctx, q.mainQueue); err != nil {
		return domain.QueueStats{}, fmt.Errorf("op=queue.stats: %w", err)
	}
	if s.Processing, err = q.store.ListLen(ctx, q.processingQueue); err != nil {
		return domain.QueueStats{}, fmt.Errorf("op=queue.stats: %w", err)
	}
	if s.Failed, err = q.store.ListLen(ctx, q.failedQueue); err != nil {
		return domain.QueueStats{}, fmt.Errorf("op=queue.stats: %w", err)
	}
	if s.Retry, err = q.store.ZSetCard(ctx, q.retryQueue); err != nil {
		return domain.QueueStats{}, fmt.Errorf("op=queue.stats: %w", err)
	}
	keys, err := q.store.ScanKeys(ctx, q.processingQueue+":")
	if err != nil {
		return domain.QueueStats{}, fmt.Errorf("op=queue.stats: %w", err)
	}
	s.VisibilityKeys = int64(len(keys))
	return s, nil
}

// Clear deletes all four queues and every visibility key. Operator tooling
// only.
func (q *Queue) Clear(ctx context.Context) error {
	if err := q.store.Delete(ctx, q.mainQueue, q.processingQueue, q.failedQueue, q.retryQueue); err != nil {
		return fmt.Errorf("op=queue.clear: %w", err)
	}
	keys, err := q.store.ScanKeys(ctx, q.processingQueue+":")
	if err != nil {
		return fmt.Errorf("op=queue.clear: %w", err)
	}
	if err := q.store.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("op=queue.clear: %w", err)
	}
	return nil
}

// Ping reports store liveness.
func (q *Queue) Ping(ctx context.Context) bool {
	return q.store.Ping(ctx) == nil
}

// removeFromList removes the single list entry whose envelope id matches.
// Removing nothing is fine; the entry may already be gone.
func (q *Queue) removeFromList(ctx context.Context, list, envelopeID string) error {
	blobs, err := q.store.ListRange(ctx, list)
	if err != nil {
		return err
	}
	for _, blob := range blobs {
		env, err := unmarshalEnvelope(blob)
		if err != nil {
			continue
		}
		if env.ID == envelopeID {
			_, err := q.store.ListRemoveValue(ctx, list, 1, blob)
			return err
		}
	}
	return nil
}

var _ domain.ReliableQueue = (*Queue)(nil)

// Package app wires long-running processes: the review workers, the queue
// maintenance loop, and the status HTTP endpoint.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/review-insights/internal/domain"
)

// Worker claims envelopes from the queue and runs each one through the
// pipeline, acking on success and nacking on exhausted failure.
type Worker struct {
	id       string
	queue    domain.ReliableQueue
	pipeline domain.Pipeline

	innerRetries int
	innerDelay   time.Duration
}

// NewWorker constructs a Worker with a unique id of the form
// "<hostname>-<ulid>".
func NewWorker(q domain.ReliableQueue, p domain.Pipeline, innerRetries int, innerDelay time.Duration) *Worker {
	host, err := os.Hostname()
	if err != nil {
		host = "worker"
	}
	if innerRetries < 1 {
		innerRetries = 1
	}
	return &Worker{
		id:           fmt.Sprintf("%s-%s", host, ulid.Make().String()),
		queue:        q,
		pipeline:     p,
		innerRetries: innerRetries,
		innerDelay:   innerDelay,
	}
}

// ID returns the worker's claim identity.
func (w *Worker) ID() string { return w.id }

// Run claims and processes envelopes until the context is cancelled. Store
// outages are logged and waited out rather than crashing the loop.
func (w *Worker) Run(ctx context.Context) {
	slog.Info("worker started",
		slog.String("worker_id", w.id),
		slog.Int("inner_retries", w.innerRetries),
		slog.Duration("inner_delay", w.innerDelay))
	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopping", slog.String("worker_id", w.id))
			return
		default:
		}
		w.processNext(ctx)
	}
}

// processNext handles a single claim cycle. An empty queue is the normal
// idle case: Claim blocks up to its timeout and returns ErrNotFound.
func (w *Worker) processNext(ctx context.Context) {
	env, err := w.queue.Claim(ctx, w.id)
	if errors.Is(err, domain.ErrNotFound) {
		return
	}
	if err != nil {
		if errors.Is(err, domain.ErrPayloadCorrupted) {
			return
		}
		slog.Error("claim failed", slog.String("worker_id", w.id), slog.Any("error", err))
		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
		}
		return
	}

	tracer := otel.Tracer("app.worker")
	msgCtx, span := tracer.Start(ctx, "worker.ProcessEnvelope")
	span.SetAttributes(
		attribute.String("envelope.id", env.ID),
		attribute.String("review.id", env.Review.ReviewID),
		attribute.Int("envelope.retry_count", env.RetryCount),
	)
	defer span.End()

	slog.Info("processing review",
		slog.String("worker_id", w.id),
		slog.String("envelope_id", env.ID),
		slog.String("review_id", env.Review.ReviewID),
		slog.Int("retry_count", env.RetryCount))

	err = w.processWithRetries(msgCtx, env.Review)
	if err == nil {
		if ackErr := w.queue.Ack(msgCtx, env.ID); ackErr != nil {
			slog.Error("ack failed; envelope will be redelivered",
				slog.String("envelope_id", env.ID),
				slog.Any("error", ackErr))
		}
		return
	}

	span.RecordError(err)
	accepted, nackErr := w.queue.Nack(msgCtx, env.ID, err.Error())
	if nackErr != nil {
		slog.Error("nack failed; claim left for maintenance",
			slog.String("envelope_id", env.ID),
			slog.Any("error", nackErr))
		return
	}
	if !accepted {
		slog.Warn("claim already reaped before nack",
			slog.String("envelope_id", env.ID),
			slog.String("review_id", env.Review.ReviewID))
	}
}

// processWithRetries runs the pipeline up to innerRetries times with a
// constant delay. Permanent analyzer failures are not retried; the attempt
// budget is for transient faults only.
func (w *Worker) processWithRetries(ctx context.Context, review domain.Review) error {
	attempt := 0
	op := func() error {
		attempt++
		_, err := w.pipeline.Process(ctx, review)
		if err == nil {
			if attempt > 1 {
				slog.Info("review succeeded after retry",
					slog.String("review_id", review.ReviewID),
					slog.Int("attempt", attempt))
			}
			return nil
		}
		if errors.Is(err, domain.ErrAnalyzerPermanent) || errors.Is(err, domain.ErrInvalidArgument) {
			return backoff.Permanent(err)
		}
		slog.Warn("processing attempt failed",
			slog.String("review_id", review.ReviewID),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", w.innerRetries),
			slog.Any("error", err))
		return err
	}
	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(w.innerDelay), uint64(w.innerRetries-1)),
		ctx,
	)
	if err := backoff.Retry(op, bo); err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return perm.Unwrap()
		}
		return err
	}
	return nil
}

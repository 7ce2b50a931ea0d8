package domain

import "time"

// Envelope wraps a Review with queue metadata. Serialized as JSON and
// treated as an opaque blob by the store. RetryCount is the authoritative
// lifecycle counter: it only ever increases for a given review payload.
type Envelope struct {
	ID         string   `json:"id"`
	Review     Review   `json:"review_data"`
	RetryCount int      `json:"retry_count"`
	EnqueuedAt float64  `json:"enqueued_at"`
	LastError  string   `json:"last_error,omitempty"`
	FailedAt   *float64 `json:"failed_at,omitempty"`
	TimedOutAt *float64 `json:"timed_out_at,omitempty"`
}

// VisibilityRecord is the authoritative evidence that a claim is alive.
// Stored under <processing_queue>:<envelope_id> with TTL = visibility timeout.
type VisibilityRecord struct {
	Envelope  Envelope `json:"message"`
	WorkerID  string   `json:"worker_id"`
	StartedAt float64  `json:"started_at"`
	ExpiresAt float64  `json:"expires_at"`
}

// QueueStats is a cheap snapshot of all queue depths.
type QueueStats struct {
	Main           int64 `json:"main_queue"`
	Processing     int64 `json:"processing_queue"`
	Retry          int64 `json:"retry_queue"`
	Failed         int64 `json:"failed_queue"`
	VisibilityKeys int64 `json:"processing_keys"`
}

// Total returns the number of envelopes tracked across all queues.
func (s QueueStats) Total() int64 {
	return s.Main + s.Processing + s.Retry + s.Failed + s.VisibilityKeys
}

// ReliableQueue (port) is the at-least-once work queue. Every operation may
// return ErrStoreUnavailable; callers treat that as retryable and never drop
// work because of it.
type ReliableQueue interface {
	// Enqueue wraps the review in a fresh envelope, pushes it onto the main
	// queue, and returns the envelope id.
	Enqueue(ctx Context, review Review) (string, error)
	// Claim atomically moves the oldest main-queue envelope into processing
	// and records a visibility claim for workerID. Returns ErrNotFound when
	// no message arrives within the blocking timeout.
	Claim(ctx Context, workerID string) (Envelope, error)
	Ack(ctx Context, envelopeID string) error
	// Nack reports a failed attempt. Returns false when the visibility
	// record is gone, meaning maintenance already reaped the claim.
	Nack(ctx Context, envelopeID, errMsg string) (bool, error)
	PromoteRetries(ctx Context) (int, error)
	ReapExpired(ctx Context) (int, error)
	Stats(ctx Context) (QueueStats, error)
	Clear(ctx Context) error
	Ping(ctx Context) bool
}

const (
	retryBaseDelay = 60 * time.Second
	retryMaxDelay  = 3600 * time.Second
)

// RetryDelay returns the backoff before attempt retryCount re-enters the
// main queue: min(60 * 2^retryCount, 3600) seconds, evaluated against the
// counter after increment.
func RetryDelay(retryCount int) time.Duration {
	d := retryBaseDelay
	for i := 0; i < retryCount; i++ {
		d *= 2
		if d >= retryMaxDelay {
			return retryMaxDelay
		}
	}
	return d
}

package usecase_test

import (
	"fmt"
	"sync"

	"github.com/fairyhunter13/review-insights/internal/domain"
)

// In-memory fakes for the domain ports. They are deliberately dumb: maps
// guarded by a mutex, with optional error injection per method.

type fakeRawRepo struct {
	mu      sync.Mutex
	rows    map[string]domain.RawReview
	upserts int
	err     error
}

func newFakeRawRepo() *fakeRawRepo {
	return &fakeRawRepo{rows: map[string]domain.RawReview{}}
}

func (f *fakeRawRepo) Upsert(_ domain.Context, r domain.RawReview) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.rows[r.ReviewID] = r
	f.upserts++
	return nil
}

func (f *fakeRawRepo) Get(_ domain.Context, id string) (domain.RawReview, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	if !ok {
		return domain.RawReview{}, domain.ErrNotFound
	}
	return r, nil
}

type fakeStatusRepo struct {
	mu     sync.Mutex
	rows   map[string]domain.StatusRecord
	stages map[string][]string
	err    error
}

func newFakeStatusRepo() *fakeStatusRepo {
	return &fakeStatusRepo{
		rows:   map[string]domain.StatusRecord{},
		stages: map[string][]string{},
	}
}

func (f *fakeStatusRepo) Upsert(_ domain.Context, s domain.StatusRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if existing, ok := f.rows[s.ReviewID]; ok {
		s.RetryCount = existing.RetryCount
	}
	f.rows[s.ReviewID] = s
	f.stages[s.ReviewID] = append(f.stages[s.ReviewID], s.Stage)
	return nil
}

func (f *fakeStatusRepo) Get(_ domain.Context, id string) (domain.StatusRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.rows[id]
	if !ok {
		return domain.StatusRecord{}, domain.ErrNotFound
	}
	return s, nil
}

func (f *fakeStatusRepo) ListByStatus(_ domain.Context, status domain.ReviewStatus) ([]domain.StatusRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.StatusRecord
	for _, s := range f.rows {
		if s.Status == status {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStatusRepo) MarkCompleted(_ domain.Context, id, duration, metadata string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.rows[id]
	s.ReviewID = id
	s.Status = domain.StatusCompleted
	s.DurationSeconds = duration
	s.Metadata = metadata
	f.rows[id] = s
	return nil
}

func (f *fakeStatusRepo) MarkFailed(_ domain.Context, id, errMsg, metadata string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.rows[id]
	s.ReviewID = id
	s.Status = domain.StatusFailed
	s.ErrorMessage = errMsg
	s.Metadata = metadata
	f.rows[id] = s
	return nil
}

func (f *fakeStatusRepo) IncrementRetryCount(_ domain.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	s.RetryCount++
	f.rows[id] = s
	return nil
}

type fakeStructuredRepo struct {
	mu   sync.Mutex
	rows map[string]domain.StructuredReview
	err  error
}

func newFakeStructuredRepo() *fakeStructuredRepo {
	return &fakeStructuredRepo{rows: map[string]domain.StructuredReview{}}
}

func (f *fakeStructuredRepo) Upsert(_ domain.Context, s domain.StructuredReview) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.rows[s.ReviewID] = s
	return nil
}

func (f *fakeStructuredRepo) Get(_ domain.Context, id string) (domain.StructuredReview, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.rows[id]
	if !ok {
		return domain.StructuredReview{}, domain.ErrNotFound
	}
	return s, nil
}

type fakeAnalyzer struct {
	mu    sync.Mutex
	calls int
	errs  []error // consumed per call; nil entry means success
}

func (f *fakeAnalyzer) Analyze(_ domain.Context, review domain.Review) (domain.Insights, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var err error
	if len(f.errs) > 0 {
		err = f.errs[0]
		f.errs = f.errs[1:]
	}
	f.calls++
	if err != nil {
		return domain.Insights{}, err
	}
	return domain.Insights{
		OverallSentiment: "negative",
		SentimentScore:   -0.5,
		TopicsMentioned:  []string{"delivery"},
	}, nil
}

type fakeQueue struct {
	mu       sync.Mutex
	enqueued []domain.Review
	cleared  bool
	alive    bool
	enqErr   error
	seq      int
}

func newFakeQueue() *fakeQueue { return &fakeQueue{alive: true} }

func (f *fakeQueue) Enqueue(_ domain.Context, r domain.Review) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enqErr != nil {
		return "", f.enqErr
	}
	f.seq++
	f.enqueued = append(f.enqueued, r)
	return fmt.Sprintf("env-%d", f.seq), nil
}

func (f *fakeQueue) Claim(domain.Context, string) (domain.Envelope, error) {
	return domain.Envelope{}, domain.ErrNotFound
}
func (f *fakeQueue) Ack(domain.Context, string) error { return nil }
func (f *fakeQueue) Nack(domain.Context, string, string) (bool, error) {
	return true, nil
}
func (f *fakeQueue) PromoteRetries(domain.Context) (int, error) { return 0, nil }
func (f *fakeQueue) ReapExpired(domain.Context) (int, error)    { return 0, nil }
func (f *fakeQueue) Stats(domain.Context) (domain.QueueStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return domain.QueueStats{Main: int64(len(f.enqueued))}, nil
}
func (f *fakeQueue) Clear(domain.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = true
	return nil
}
func (f *fakeQueue) Ping(domain.Context) bool { return f.alive }

type fakeSource struct {
	reviews []domain.Review
	err     error
}

func (f *fakeSource) Extract(_ string, fn func(domain.Review) error) error {
	if f.err != nil {
		return f.err
	}
	for _, r := range f.reviews {
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

type fakeCleaner struct {
	called bool
	counts domain.DeletedCounts
}

func (f *fakeCleaner) ClearAll(domain.Context) (domain.DeletedCounts, error) {
	f.called = true
	return f.counts, nil
}

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/review-insights/internal/domain"
)

// poolStub records executed SQL and plays back canned row responses.
type poolStub struct {
	execSQL  []string
	execArgs [][]any
	execErr  error
	execTag  pgconn.CommandTag

	row pgx.Row

	tx *txStub
}

func (p *poolStub) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	p.execSQL = append(p.execSQL, sql)
	p.execArgs = append(p.execArgs, args)
	if p.execErr != nil {
		return pgconn.CommandTag{}, p.execErr
	}
	return p.execTag, nil
}

func (p *poolStub) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row { return p.row }

func (p *poolStub) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (p *poolStub) BeginTx(_ context.Context, _ pgx.TxOptions) (pgx.Tx, error) {
	if p.tx == nil {
		return nil, errors.New("no tx configured")
	}
	return p.tx, nil
}

type rowStub struct {
	err  error
	vals []any
}

func (r rowStub) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i := range dest {
		if i >= len(r.vals) {
			break
		}
		switch d := dest[i].(type) {
		case *string:
			*d = r.vals[i].(string)
		case *int:
			*d = r.vals[i].(int)
		case *float64:
			*d = r.vals[i].(float64)
		case *time.Time:
			*d = r.vals[i].(time.Time)
		case **time.Time:
			if r.vals[i] != nil {
				v := r.vals[i].(time.Time)
				*d = &v
			}
		case *domain.ReviewStatus:
			*d = domain.ReviewStatus(r.vals[i].(string))
		}
	}
	return nil
}

// txStub implements the slice of pgx.Tx the cleanup service touches.
type txStub struct {
	poolStub
	committed  bool
	rolledBack bool
	commitErr  error
}

func (t *txStub) Begin(context.Context) (pgx.Tx, error) { return nil, errors.New("nested tx") }
func (t *txStub) Commit(context.Context) error {
	t.committed = true
	return t.commitErr
}
func (t *txStub) Rollback(context.Context) error {
	t.rolledBack = true
	return nil
}
func (t *txStub) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, errors.New("not implemented")
}
func (t *txStub) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (t *txStub) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (t *txStub) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, errors.New("not implemented")
}
func (t *txStub) Conn() *pgx.Conn { return nil }

func TestRawReviewUpsertArgs(t *testing.T) {
	p := &poolStub{}
	repo := NewRawReviewRepo(p)

	err := repo.Upsert(context.Background(), domain.RawReview{
		ReviewID: "R1", Date: "2025-01-01", Rating: "5 stars", Text: "Nice.",
	})
	require.NoError(t, err)
	require.Len(t, p.execSQL, 1)
	require.Contains(t, p.execSQL[0], "ON CONFLICT (review_id)")
	require.Equal(t, "R1", p.execArgs[0][0])
	require.Equal(t, "Nice.", p.execArgs[0][3])
}

func TestRawReviewGetNotFound(t *testing.T) {
	p := &poolStub{row: rowStub{err: pgx.ErrNoRows}}
	repo := NewRawReviewRepo(p)

	_, err := repo.Get(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRawReviewGetFound(t *testing.T) {
	now := time.Now().UTC()
	p := &poolStub{row: rowStub{vals: []any{"R1", "2025-01-01", "5", "Nice.", now, now}}}
	repo := NewRawReviewRepo(p)

	got, err := repo.Get(context.Background(), "R1")
	require.NoError(t, err)
	require.Equal(t, "R1", got.ReviewID)
	require.Equal(t, "Nice.", got.Text)
}

func TestStatusUpsertKeepsRetryCountOnConflict(t *testing.T) {
	p := &poolStub{}
	repo := NewStatusRepo(p)

	err := repo.Upsert(context.Background(), domain.StatusRecord{
		ReviewID: "R1", Status: domain.StatusInProgress, Stage: "raw_review_saved",
	})
	require.NoError(t, err)
	require.Contains(t, p.execSQL[0], "ON CONFLICT (review_id)")
	// The conflict branch must not touch retry_count.
	require.NotContains(t, p.execSQL[0], "retry_count=EXCLUDED")
}

func TestStatusGetNotFound(t *testing.T) {
	p := &poolStub{row: rowStub{err: pgx.ErrNoRows}}
	repo := NewStatusRepo(p)

	_, err := repo.Get(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStatusIncrementRetryCountIsServerSide(t *testing.T) {
	p := &poolStub{}
	repo := NewStatusRepo(p)

	require.NoError(t, repo.IncrementRetryCount(context.Background(), "R1"))
	require.Contains(t, p.execSQL[0], "retry_count=retry_count+1")
}

func TestStructuredUpsertArgs(t *testing.T) {
	p := &poolStub{}
	repo := NewStructuredReviewRepo(p)

	err := repo.Upsert(context.Background(), domain.StructuredReview{
		ReviewID: "R1", OverallSentiment: "negative", SentimentScore: -0.4,
		TopicsMentioned: `["delivery"]`,
	})
	require.NoError(t, err)
	require.Contains(t, p.execSQL[0], "structured_reviews")
	require.Equal(t, "negative", p.execArgs[0][1])
}

func TestCleanupClearAllDeletesChildrenFirst(t *testing.T) {
	tx := &txStub{}
	tx.execTag = pgconn.NewCommandTag("DELETE 2")
	p := &poolStub{tx: tx}
	svc := NewCleanupService(p)

	counts, err := svc.ClearAll(context.Background())
	require.NoError(t, err)
	require.True(t, tx.committed)
	require.Equal(t, int64(6), counts.Total())
	require.Len(t, tx.execSQL, 3)
	require.Contains(t, tx.execSQL[0], "structured_reviews")
	require.Contains(t, tx.execSQL[1], "review_statuses")
	require.Contains(t, tx.execSQL[2], "raw_reviews")
}

func TestCleanupClearAllRollsBackOnError(t *testing.T) {
	tx := &txStub{}
	tx.execErr = errors.New("deadlock")
	p := &poolStub{tx: tx}
	svc := NewCleanupService(p)

	_, err := svc.ClearAll(context.Background())
	require.Error(t, err)
	require.False(t, tx.committed)
	require.True(t, tx.rolledBack)
}

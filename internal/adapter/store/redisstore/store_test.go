package redisstore

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/review-insights/internal/domain"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return NewWithClient(rdb), mr
}

func TestPushFrontPopBackFIFO(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.PushFront(ctx, "q", "first"))
	require.NoError(t, c.PushFront(ctx, "q", "second"))

	got, err := c.PopBack(ctx, "q", 100*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, "first", got)

	got, err = c.PopBack(ctx, "q", 100*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, "second", got)

	_, err = c.PopBack(ctx, "q", 10*time.Millisecond)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAtomicMove(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.PushFront(ctx, "main", "a"))
	blob, err := c.AtomicMove(ctx, "main", "processing", 100*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, "a", blob)

	n, err := c.ListLen(ctx, "main")
	require.NoError(t, err)
	require.Zero(t, n)
	n, err = c.ListLen(ctx, "processing")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestAtomicMoveEmptyTimesOut(t *testing.T) {
	c, _ := newTestClient(t)
	_, err := c.AtomicMove(context.Background(), "main", "processing", 10*time.Millisecond)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSetWithTTLAndExpiry(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.SetWithTTL(ctx, "k", "v", time.Minute))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v", got)

	mr.FastForward(2 * time.Minute)
	_, err = c.Get(ctx, "k")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteToleratesMissingAndEmpty(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	require.NoError(t, c.Delete(ctx))
	require.NoError(t, c.Delete(ctx, "nope"))
}

func TestListRemoveValue(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.PushFront(ctx, "q", "x"))
	require.NoError(t, c.PushFront(ctx, "q", "y"))
	n, err := c.ListRemoveValue(ctx, "q", 1, "x")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	n, err = c.ListRemoveValue(ctx, "q", 1, "absent")
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestScanKeysByPrefix(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.SetWithTTL(ctx, "proc:1", "a", time.Minute))
	require.NoError(t, c.SetWithTTL(ctx, "proc:2", "b", time.Minute))
	require.NoError(t, c.SetWithTTL(ctx, "other", "c", time.Minute))

	keys, err := c.ScanKeys(ctx, "proc:")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"proc:1", "proc:2"}, keys)
}

func TestZSetScheduling(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.ZSetAdd(ctx, "retry", "due", 100))
	require.NoError(t, c.ZSetAdd(ctx, "retry", "later", 500))

	due, err := c.ZSetRangeByScore(ctx, "retry", 0, 200)
	require.NoError(t, err)
	require.Equal(t, []string{"due"}, due)

	require.NoError(t, c.ZSetRemove(ctx, "retry", "due"))
	n, err := c.ZSetCard(ctx, "retry")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestPingAfterClose(t *testing.T) {
	c, mr := newTestClient(t)
	require.NoError(t, c.Ping(context.Background()))
	mr.Close()
	err := c.Ping(context.Background())
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

// Package redisstore is the queue store adapter. It is the only place that
// speaks the store's wire protocol; everything above it works against the
// small capability surface exposed here.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/review-insights/internal/config"
	"github.com/fairyhunter13/review-insights/internal/domain"
)

// Client wraps a redis connection with the semantic operations the queue
// needs. All failures other than "nothing there" map to ErrStoreUnavailable
// so callers can treat them uniformly as retryable.
type Client struct {
	rdb redis.Cmdable
}

// New connects to the queue store using the configured address.
func New(cfg config.Config) *Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.StoreAddr(),
		DB:       cfg.StoreDB,
		Password: cfg.StorePassword,
	})
	return &Client{rdb: rdb}
}

// NewWithClient wraps an existing redis client; used by tests.
func NewWithClient(rdb redis.Cmdable) *Client { return &Client{rdb: rdb} }

func storeErr(op string, err error) error {
	return fmt.Errorf("op=%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}

// PushFront appends a blob to the head of a list (FIFO with PopBack).
func (c *Client) PushFront(ctx context.Context, list, blob string) error {
	if err := c.rdb.LPush(ctx, list, blob).Err(); err != nil {
		return storeErr("store.push_front", err)
	}
	return nil
}

// PopBack pops the oldest element of a list, blocking up to timeout.
// Returns ErrNotFound when the list stays empty.
func (c *Client) PopBack(ctx context.Context, list string, timeout time.Duration) (string, error) {
	res, err := c.rdb.BRPop(ctx, timeout, list).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", storeErr("store.pop_back", err)
	}
	// BRPOP replies [key, value].
	if len(res) < 2 {
		return "", storeErr("store.pop_back", fmt.Errorf("short reply: %v", res))
	}
	return res[1], nil
}

// AtomicMove pops the oldest element of from and appends it to to in one
// store-side operation, blocking up to timeout. This is the primitive that
// makes a claim atomic; returns ErrNotFound on timeout with no element.
func (c *Client) AtomicMove(ctx context.Context, from, to string, timeout time.Duration) (string, error) {
	blob, err := c.rdb.BLMove(ctx, from, to, "RIGHT", "LEFT", timeout).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", storeErr("store.atomic_move", err)
	}
	return blob, nil
}

// ListLen returns the length of a list.
func (c *Client) ListLen(ctx context.Context, list string) (int64, error) {
	n, err := c.rdb.LLen(ctx, list).Result()
	if err != nil {
		return 0, storeErr("store.list_len", err)
	}
	return n, nil
}

// ListRange returns every blob currently in a list, newest first.
func (c *Client) ListRange(ctx context.Context, list string) ([]string, error) {
	blobs, err := c.rdb.LRange(ctx, list, 0, -1).Result()
	if err != nil {
		return nil, storeErr("store.list_range", err)
	}
	return blobs, nil
}

// ListRemoveValue removes up to count occurrences of blob from a list.
// Removing zero is not an error.
func (c *Client) ListRemoveValue(ctx context.Context, list string, count int64, blob string) (int64, error) {
	n, err := c.rdb.LRem(ctx, list, count, blob).Result()
	if err != nil {
		return 0, storeErr("store.list_remove", err)
	}
	return n, nil
}

// SetWithTTL stores a blob under key with a store-enforced TTL. The TTL is
// set in the same RPC as the value.
func (c *Client) SetWithTTL(ctx context.Context, key, blob string, ttl time.Duration) error {
	if err := c.rdb.SetEx(ctx, key, blob, ttl).Err(); err != nil {
		return storeErr("store.set_ttl", err)
	}
	return nil
}

// Get returns the blob stored under key, or ErrNotFound.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	blob, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", storeErr("store.get", err)
	}
	return blob, nil
}

// Delete removes the given keys. Missing keys are not an error.
func (c *Client) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return storeErr("store.delete", err)
	}
	return nil
}

// ScanKeys returns every key starting with prefix.
func (c *Client) ScanKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := c.rdb.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			return nil, storeErr("store.scan_keys", err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

// ZSetAdd adds a blob to a sorted set with the given score.
func (c *Client) ZSetAdd(ctx context.Context, key, blob string, score float64) error {
	if err := c.rdb.ZAdd(ctx, key, redis.Z{Score: score, Member: blob}).Err(); err != nil {
		return storeErr("store.zset_add", err)
	}
	return nil
}

// ZSetRangeByScore returns members with lo <= score <= hi, score order.
func (c *Client) ZSetRangeByScore(ctx context.Context, key string, lo, hi float64) ([]string, error) {
	blobs, err := c.rdb.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: strconv.FormatFloat(lo, 'f', -1, 64),
		Max: strconv.FormatFloat(hi, 'f', -1, 64),
	}).Result()
	if err != nil {
		return nil, storeErr("store.zset_range", err)
	}
	return blobs, nil
}

// ZSetRemove removes a member from a sorted set.
func (c *Client) ZSetRemove(ctx context.Context, key, blob string) error {
	if err := c.rdb.ZRem(ctx, key, blob).Err(); err != nil {
		return storeErr("store.zset_remove", err)
	}
	return nil
}

// ZSetCard returns the cardinality of a sorted set.
func (c *Client) ZSetCard(ctx context.Context, key string) (int64, error) {
	n, err := c.rdb.ZCard(ctx, key).Result()
	if err != nil {
		return 0, storeErr("store.zset_card", err)
	}
	return n, nil
}

// Ping probes store liveness.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return storeErr("store.ping", err)
	}
	return nil
}

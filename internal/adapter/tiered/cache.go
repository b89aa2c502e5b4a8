// Package tiered implements a two-level (L1 + L2) cache adapter.
package tiered

import (
	"context"
	"log/slog"
	"time"

	"github.com/Strob0t/RepairDesk/internal/port/cache"
)

// Cache combines an in-process L1 with an optional shared L2.
//
// Get checks L1 first, then L2, backfilling L1 on an L2 hit. An
// unreachable L2 degrades to a miss so reads fall through to the system
// of record. Set and Delete write both levels.
type Cache struct {
	l1       cache.Cache
	l2       cache.Cache // nil when running without NATS
	l1Expire time.Duration
}

// New creates a tiered cache. l2 may be nil. l1Expire is the lifetime of
// entries backfilled from L2.
func New(l1, l2 cache.Cache, l1Expire time.Duration) *Cache {
	return &Cache{l1: l1, l2: l2, l1Expire: l1Expire}
}

// Get checks L1, then L2.
func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	val, found, err := c.l1.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if found || c.l2 == nil {
		return val, found, nil
	}

	val, found, err = c.l2.Get(ctx, key)
	if err != nil {
		slog.Warn("l2 cache get failed, treating as miss", "key", key, "error", err)
		return nil, false, nil
	}
	if found {
		_ = c.l1.Set(ctx, key, val, c.l1Expire)
		return val, true, nil
	}
	return nil, false, nil
}

// Set writes to L1 and L2.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.l1.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	if c.l2 == nil {
		return nil
	}
	return c.l2.Set(ctx, key, value, ttl)
}

// Delete removes key from L1 and L2.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.l1.Delete(ctx, key); err != nil {
		return err
	}
	if c.l2 == nil {
		return nil
	}
	return c.l2.Delete(ctx, key)
}

// Evict removes key from L1 only. It is used when another instance already
// cleared the shared level and announced the change.
func (c *Cache) Evict(ctx context.Context, key string) error {
	return c.l1.Delete(ctx, key)
}

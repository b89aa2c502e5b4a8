package tiered_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Strob0t/RepairDesk/internal/adapter/tiered"
	"github.com/Strob0t/RepairDesk/internal/port/cache"
)

var _ cache.Cache = (*tiered.Cache)(nil)

// memCache is a simple in-memory cache for testing.
type memCache struct {
	data   map[string][]byte
	getErr error
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (m *memCache) Get(_ context.Context, key string) (data []byte, ok bool, err error) {
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.data[key] = value
	return nil
}

func (m *memCache) Delete(_ context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func TestTiered_L2HitBackfillsL1(t *testing.T) {
	l1, l2 := newMemCache(), newMemCache()
	c := tiered.New(l1, l2, 5*time.Minute)
	l2.data["chat.status.s1"] = []byte("view")

	val, found, err := c.Get(context.Background(), "chat.status.s1")
	if err != nil || !found || string(val) != "view" {
		t.Fatalf("Get = %q, %v, %v", val, found, err)
	}
	if string(l1.data["chat.status.s1"]) != "view" {
		t.Fatal("expected L1 backfill")
	}
}

func TestTiered_L2ErrorIsAMiss(t *testing.T) {
	l1, l2 := newMemCache(), newMemCache()
	l2.getErr = errors.New("nats timeout")
	c := tiered.New(l1, l2, time.Minute)

	_, found, err := c.Get(context.Background(), "k")
	if err != nil {
		t.Fatalf("L2 failure should degrade, got %v", err)
	}
	if found {
		t.Fatal("expected miss")
	}
}

func TestTiered_WithoutL2(t *testing.T) {
	l1 := newMemCache()
	c := tiered.New(l1, nil, time.Minute)
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatal(err)
	}
	if val, ok, _ := c.Get(ctx, "k"); !ok || string(val) != "v" {
		t.Fatalf("expected L1 hit, got %q %v", val, ok)
	}
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := c.Get(ctx, "missing"); ok {
		t.Fatal("expected miss")
	}
}

func TestTiered_SetAndDeleteBoth(t *testing.T) {
	l1, l2 := newMemCache(), newMemCache()
	c := tiered.New(l1, l2, 5*time.Minute)
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatal(err)
	}
	if _, ok := l1.data["k"]; !ok {
		t.Fatal("expected k in L1")
	}
	if _, ok := l2.data["k"]; !ok {
		t.Fatal("expected k in L2")
	}

	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if len(l1.data) != 0 || len(l2.data) != 0 {
		t.Fatal("expected both levels empty")
	}
}

func TestTiered_EvictKeepsL2(t *testing.T) {
	l1, l2 := newMemCache(), newMemCache()
	c := tiered.New(l1, l2, time.Minute)
	l1.data["k"] = []byte("stale")
	l2.data["k"] = []byte("fresh")

	if err := c.Evict(context.Background(), "k"); err != nil {
		t.Fatal(err)
	}
	if _, ok := l1.data["k"]; ok {
		t.Fatal("expected k evicted from L1")
	}
	val, _, _ := c.Get(context.Background(), "k")
	if string(val) != "fresh" {
		t.Fatalf("expected L2 value after evict, got %q", val)
	}
}

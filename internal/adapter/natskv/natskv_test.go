package natskv

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/RepairDesk/internal/domain/agent"
	"github.com/Strob0t/RepairDesk/internal/domain/notification"
	"github.com/Strob0t/RepairDesk/internal/port/agentstore"
	"github.com/Strob0t/RepairDesk/internal/port/cache"
	"github.com/Strob0t/RepairDesk/internal/port/notificationstore"
)

var (
	_ cache.Cache             = (*Cache)(nil)
	_ agentstore.Store        = (*AgentStore)(nil)
	_ notificationstore.Store = (*NotificationStore)(nil)
)

// testBucket creates a fresh KV bucket or skips when NATS_URL is not set.
func testBucket(t *testing.T) jetstream.KeyValue {
	t.Helper()

	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}
	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(nc.Close)

	js, err := jetstream.New(nc)
	if err != nil {
		t.Fatalf("jetstream: %v", err)
	}
	ctx := context.Background()
	bucket := "test_" + strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	_ = js.DeleteKeyValue(ctx, bucket)
	kv, err := js.CreateKeyValue(ctx, jetstream.KeyValueConfig{Bucket: bucket, History: 1})
	if err != nil {
		t.Fatalf("create bucket: %v", err)
	}
	t.Cleanup(func() { _ = js.DeleteKeyValue(context.Background(), bucket) })
	return kv
}

func TestEncodeKeyIsKVSafe(t *testing.T) {
	for _, raw := range []string{"customer_jane@example.com", "chat:status:123", "a b.c"} {
		key := encodeKey(raw)
		for _, r := range key {
			ok := r == '-' || r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
			if !ok {
				t.Fatalf("encodeKey(%q) = %q contains %q", raw, key, r)
			}
		}
	}
}

func TestCache_RoundTrip(t *testing.T) {
	c := NewCache(testBucket(t))
	ctx := context.Background()

	if _, ok, err := c.Get(ctx, "chat.status.s1"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if err := c.Set(ctx, "chat.status.s1", []byte(`{"status":"waiting-agent"}`), time.Minute); err != nil {
		t.Fatal(err)
	}
	val, ok, err := c.Get(ctx, "chat.status.s1")
	if err != nil || !ok || string(val) != `{"status":"waiting-agent"}` {
		t.Fatalf("Get = %q, %v, %v", val, ok, err)
	}
	if err := c.Delete(ctx, "chat.status.s1"); err != nil {
		t.Fatal(err)
	}
	if err := c.Delete(ctx, "chat.status.s1"); err != nil {
		t.Fatalf("deleting a missing key should not fail: %v", err)
	}
}

func TestAgentStore_Lifecycle(t *testing.T) {
	s := NewAgentStore(testBucket(t), 2)
	ctx := context.Background()

	if _, err := s.SetAvailable(ctx, "a1", agent.Info{Name: "Ana", ExpertiseTags: []string{"printer"}}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SetAvailable(ctx, "a2", agent.Info{Name: "Ben", ExpertiseTags: []string{"laptop"}}); err != nil {
		t.Fatal(err)
	}

	got, ok, err := s.Reserve(ctx, "laptop")
	if err != nil || !ok || got.ID != "a2" {
		t.Fatalf("Reserve = %+v, %v, %v", got, ok, err)
	}
	if ok, _ := s.IncrementActiveChats(ctx, "a2"); !ok {
		t.Fatal("second chat should fit")
	}
	a2, _, _ := s.Get(ctx, "a2")
	if a2.Status != agent.StatusBusy || a2.ActiveChats != 2 {
		t.Fatalf("expected busy at capacity, got %+v", a2)
	}
	if ok, _ := s.IncrementActiveChats(ctx, "a2"); ok {
		t.Fatal("increment at capacity must be refused")
	}

	if err := s.DecrementActiveChats(ctx, "a2"); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateStatus(ctx, "ghost", agent.StatusAway); err != nil {
		t.Fatal(err)
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != "a1" || list[1].Status != agent.StatusAvailable {
		t.Fatalf("unexpected roster %+v", list)
	}
}

func TestAgentStore_ConcurrentReserve(t *testing.T) {
	s := NewAgentStore(testBucket(t), 3)
	ctx := context.Background()
	_, _ = s.SetAvailable(ctx, "a1", agent.Info{Name: "Ana"})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok, err := s.Reserve(ctx, ""); err == nil && ok {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if granted != 3 {
		t.Fatalf("expected 3 reservations, got %d", granted)
	}
	a, _, _ := s.Get(ctx, "a1")
	if a.ActiveChats != 3 {
		t.Fatalf("active chats = %d, want 3", a.ActiveChats)
	}
}

func TestNotificationStore_AppendAndRead(t *testing.T) {
	s := NewNotificationStore(testBucket(t), 3)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	var last notification.Notification
	for i := range 5 {
		last = notification.New(notification.TypeChatRequest, "s", "t", "m", nil, base.Add(time.Duration(i)*time.Second))
		if err := s.Append(ctx, "agent@shop", last); err != nil {
			t.Fatal(err)
		}
	}
	list, err := s.List(ctx, "agent@shop")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 || list[0].ID != last.ID {
		t.Fatalf("unexpected feed %+v", list)
	}

	if err := s.MarkRead(ctx, "agent@shop", last.ID); err != nil {
		t.Fatal(err)
	}
	if c, _ := s.UnreadCount(ctx, "agent@shop"); c != 2 {
		t.Fatalf("unread = %d, want 2", c)
	}

	if err := s.AppendToAll(ctx, []string{"x", "y"}, last); err != nil {
		t.Fatal(err)
	}
	if l, _ := s.List(ctx, "y"); len(l) != 1 {
		t.Fatalf("fan-out missing for y: %+v", l)
	}
	if l, _ := s.List(ctx, "nobody"); len(l) != 0 {
		t.Fatalf("unknown agent should have an empty feed")
	}
}

package natskv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/RepairDesk/internal/domain/notification"
)

// NotificationStore keeps one KV entry per agent holding the agent's
// newest-first notification list.
type NotificationStore struct {
	kv    jetstream.KeyValue
	limit int
}

// NewNotificationStore creates a KV-backed notification store.
func NewNotificationStore(kv jetstream.KeyValue, limit int) *NotificationStore {
	if limit < 1 {
		limit = notification.DefaultCap
	}
	return &NotificationStore{kv: kv, limit: limit}
}

func decodeFeed(raw []byte) ([]notification.Notification, error) {
	var list []notification.Notification
	if len(raw) == 0 {
		return list, nil
	}
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decode notifications: %w", err)
	}
	return list, nil
}

func (s *NotificationStore) update(ctx context.Context, agentID string, fn func([]notification.Notification) ([]notification.Notification, bool)) error {
	return casUpdate(ctx, s.kv, encodeKey(agentID), func(current []byte) ([]byte, error) {
		list, err := decodeFeed(current)
		if err != nil {
			return nil, err
		}
		list, changed := fn(list)
		if !changed {
			return nil, nil
		}
		return json.Marshal(list)
	})
}

// Append inserts n at the head of the agent's feed.
func (s *NotificationStore) Append(ctx context.Context, agentID string, n notification.Notification) error {
	return s.update(ctx, agentID, func(list []notification.Notification) ([]notification.Notification, bool) {
		return notification.Prepend(list, n, s.limit), true
	})
}

// AppendToAll appends n to each agent's feed. Every feed is written
// independently; the first failure is reported after trying the rest.
func (s *NotificationStore) AppendToAll(ctx context.Context, agentIDs []string, n notification.Notification) error {
	var errs []error
	for _, id := range agentIDs {
		if err := s.Append(ctx, id, n); err != nil {
			errs = append(errs, fmt.Errorf("agent %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// List returns the agent's feed, newest first.
func (s *NotificationStore) List(ctx context.Context, agentID string) ([]notification.Notification, error) {
	entry, err := s.kv.Get(ctx, encodeKey(agentID))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return []notification.Notification{}, nil
		}
		return nil, fmt.Errorf("notifications get %s: %w", agentID, err)
	}
	return decodeFeed(entry.Value())
}

// MarkRead flags one notification as read.
func (s *NotificationStore) MarkRead(ctx context.Context, agentID, notificationID string) error {
	return s.update(ctx, agentID, func(list []notification.Notification) ([]notification.Notification, bool) {
		return list, notification.MarkRead(list, notificationID)
	})
}

// UnreadCount returns the number of unread entries in the agent's feed.
func (s *NotificationStore) UnreadCount(ctx context.Context, agentID string) (int, error) {
	list, err := s.List(ctx, agentID)
	if err != nil {
		return 0, err
	}
	return notification.Unread(list), nil
}

package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/Strob0t/RepairDesk/internal/domain/notification"
)

// NotificationStore keeps a bounded notification feed per agent.
type NotificationStore struct {
	mu    sync.Mutex
	lists map[string][]notification.Notification
	limit int
}

// NewNotificationStore creates a store that keeps the newest limit entries
// per agent.
func NewNotificationStore(limit int) *NotificationStore {
	if limit < 1 {
		limit = notification.DefaultCap
	}
	return &NotificationStore{
		lists: make(map[string][]notification.Notification),
		limit: limit,
	}
}

// Append inserts n at the head of the agent's feed.
func (s *NotificationStore) Append(_ context.Context, agentID string, n notification.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lists[agentID] = notification.Prepend(s.lists[agentID], n, s.limit)
	return nil
}

// AppendToAll inserts the same notification into every listed feed. Each
// feed holds its own copy, so read state is tracked per agent.
func (s *NotificationStore) AppendToAll(_ context.Context, agentIDs []string, n notification.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range agentIDs {
		s.lists[id] = notification.Prepend(s.lists[id], n, s.limit)
	}
	return nil
}

// List returns a copy of the agent's feed, newest first.
func (s *NotificationStore) List(_ context.Context, agentID string) ([]notification.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.lists[agentID]), nil
}

// MarkRead flags one notification as read.
func (s *NotificationStore) MarkRead(_ context.Context, agentID, notificationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	notification.MarkRead(s.lists[agentID], notificationID)
	return nil
}

// UnreadCount returns the number of unread entries in the agent's feed.
func (s *NotificationStore) UnreadCount(_ context.Context, agentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return notification.Unread(s.lists[agentID]), nil
}

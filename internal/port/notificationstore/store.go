// Package notificationstore defines the port for per-agent notification feeds.
package notificationstore

import (
	"context"

	"github.com/Strob0t/RepairDesk/internal/domain/notification"
)

// Store keeps a bounded, newest-first notification list per agent.
// Unknown agents yield empty results; lists are created lazily.
type Store interface {
	// Append inserts n at the head of the agent's list, evicting the oldest
	// entries beyond the cap.
	Append(ctx context.Context, agentID string, n notification.Notification) error

	// AppendToAll appends the same notification to every listed agent.
	AppendToAll(ctx context.Context, agentIDs []string, n notification.Notification) error

	// List returns the agent's notifications, newest first.
	List(ctx context.Context, agentID string) ([]notification.Notification, error)

	// MarkRead flags one notification as read. Unknown ids are ignored.
	MarkRead(ctx context.Context, agentID, notificationID string) error

	// UnreadCount returns the number of unread notifications for the agent.
	UnreadCount(ctx context.Context, agentID string) (int, error)
}

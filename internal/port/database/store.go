// Package database defines the persistence port for customers and chat sessions.
package database

import (
	"context"

	"github.com/Strob0t/RepairDesk/internal/domain/chat"
)

// ChatStore is the system of record for customers, chat sessions and their
// message logs. Lookups of unknown ids return domain.ErrNotFound.
type ChatStore interface {
	// FindOrCreateCustomer returns the customer with email, creating it if needed.
	FindOrCreateCustomer(ctx context.Context, email, name string) (*chat.Customer, error)

	// FindOrCreateSession returns the session with id, creating it for the
	// customer if needed. An existing session is forced to waiting-agent.
	FindOrCreateSession(ctx context.Context, id string, customer *chat.Customer, deviceType, issue string) (*chat.Session, error)

	// UpdateSessionStatus applies a status transition. Moving to ended
	// stamps EndedAt.
	UpdateSessionStatus(ctx context.Context, id string, upd chat.SessionUpdate) (*chat.Session, error)

	// AppendSystemMessage adds a system-authored message to the session log.
	AppendSystemMessage(ctx context.Context, sessionID, content string) error

	// GetSession returns one session.
	GetSession(ctx context.Context, id string) (*chat.Session, error)

	// QueuePosition returns the 1-based position of a waiting session among
	// all waiting sessions, oldest first. Sessions that are not waiting
	// report 0.
	QueuePosition(ctx context.Context, sessionID string) (int, error)

	// ListMessages returns the session's messages, oldest first.
	ListMessages(ctx context.Context, sessionID string) ([]chat.Message, error)
}

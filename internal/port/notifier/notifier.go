// Package notifier defines the urgent-channel notification port (interface)
// used to reach agents outside the browser (email, Slack, SMS gateways).
package notifier

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned when a notifier is missing required settings.
var ErrNotConfigured = errors.New("notifier: not configured")

// Level is the urgency of an escalated notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning" // waiting customers
	LevelError   Level = "error"   // urgent repair issues
)

// Notification is the payload sent through a Notifier.
type Notification struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Level   Level  `json:"level"`
	Source  string `json:"source"` // notification type, e.g. "chat_request", "urgent_issue"
	Link    string `json:"link,omitempty"`
}

// Notifier is the port interface for sending notifications.
type Notifier interface {
	// Name returns the unique identifier for this notifier (e.g. "slack", "email").
	Name() string

	// Send delivers a notification. It must honor ctx cancellation.
	Send(ctx context.Context, notification Notification) error
}

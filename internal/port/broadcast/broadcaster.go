// Package broadcast defines the port for publishing real-time events to rooms.
package broadcast

import (
	"context"
	"errors"
)

// ErrNoSubscribers is returned by Publish when the room has no live listener.
// It is informational: callers treat it as "stored only", not as a failure.
var ErrNoSubscribers = errors.New("broadcast: no subscribers in room")

// Publisher sends typed events to string-addressed rooms
// ("agents", "agent_{id}", "customer_{email}").
type Publisher interface {
	// Publish delivers payload under eventName to every subscriber of room.
	// Delivery is best effort: there is no acknowledgement and no retry.
	Publish(ctx context.Context, room, eventName string, payload any) error
}

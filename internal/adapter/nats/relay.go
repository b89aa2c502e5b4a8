package nats

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/Strob0t/RepairDesk/internal/port/broadcast"
	"github.com/Strob0t/RepairDesk/internal/port/messagequeue"
)

// Relay is a broadcast.Publisher that delivers to the local websocket hub
// and forwards the event to every other instance over NATS. Each instance
// runs one Relay; Start feeds remote events into the local hub.
type Relay struct {
	local  broadcast.Publisher
	queue  messagequeue.Queue
	origin string
}

// NewRelay wires a local publisher to the queue.
func NewRelay(local broadcast.Publisher, queue messagequeue.Queue) *Relay {
	return &Relay{local: local, queue: queue, origin: uuid.NewString()}
}

// RoomSubject returns the subject carrying events for room. Room names may
// contain characters that are not valid in subject tokens ('.', '@'), so
// they are base64url encoded.
func RoomSubject(room string) string {
	return messagequeue.SubjectRoomEvent + "." + base64.RawURLEncoding.EncodeToString([]byte(room))
}

// Publish delivers locally, then forwards to the other instances. The
// result reflects local delivery only when the forward fails; once the
// event is on the wire a remote subscriber may receive it, so
// ErrNoSubscribers is not reported.
func (r *Relay) Publish(ctx context.Context, room, eventName string, payload any) error {
	localErr := r.local.Publish(ctx, room, eventName, payload)
	if localErr != nil && !errors.Is(localErr, broadcast.ErrNoSubscribers) {
		slog.Warn("local room publish failed", "room", room, "event", eventName, "error", localErr)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("relay marshal %s: %w", eventName, err)
	}
	data, err := json.Marshal(messagequeue.RoomEventPayload{
		Origin:  r.origin,
		Room:    room,
		Event:   eventName,
		Payload: raw,
	})
	if err != nil {
		return fmt.Errorf("relay marshal envelope: %w", err)
	}

	if err := r.queue.Publish(ctx, RoomSubject(room), data); err != nil {
		if localErr != nil {
			return errors.Join(localErr, err)
		}
		// Local listeners got it; losing the cross-instance copy is logged only.
		slog.Warn("room relay publish failed", "room", room, "event", eventName, "error", err)
	}
	return nil
}

// Start subscribes to room events from other instances and delivers them
// to the local publisher. The returned function stops the subscription.
func (r *Relay) Start(ctx context.Context) (func(), error) {
	return r.queue.Subscribe(ctx, messagequeue.SubjectRoomEvent+".>", r.forward)
}

func (r *Relay) forward(ctx context.Context, subject string, data []byte) error {
	var ev messagequeue.RoomEventPayload
	if err := json.Unmarshal(data, &ev); err != nil {
		return fmt.Errorf("relay decode %s: %w", subject, err)
	}
	if ev.Origin == r.origin {
		return nil
	}
	if !strings.HasSuffix(subject, RoomSubject(ev.Room)[len(messagequeue.SubjectRoomEvent):]) {
		slog.Warn("room event subject mismatch", "subject", subject, "room", ev.Room)
		return nil
	}

	err := r.local.Publish(ctx, ev.Room, ev.Event, ev.Payload)
	if err != nil && !errors.Is(err, broadcast.ErrNoSubscribers) {
		return err
	}
	return nil
}

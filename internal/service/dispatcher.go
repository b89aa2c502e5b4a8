package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	cfotel "github.com/Strob0t/RepairDesk/internal/adapter/otel"
	"github.com/Strob0t/RepairDesk/internal/domain/chat"
	"github.com/Strob0t/RepairDesk/internal/domain/notification"
	"github.com/Strob0t/RepairDesk/internal/port/agentstore"
	"github.com/Strob0t/RepairDesk/internal/port/broadcast"
	"github.com/Strob0t/RepairDesk/internal/port/notificationstore"
	"github.com/Strob0t/RepairDesk/internal/port/notifier"
)

// NotificationDispatcher turns domain events into agent notifications,
// stores them per agent and publishes them to the real-time rooms.
//
// The store is always written before the publish so a client that misses
// the live event finds it on its next poll. Delivery problems are reported
// as a notification.DeliveryOutcome, never as an error.
type NotificationDispatcher struct {
	agents  agentstore.Store
	store   notificationstore.Store
	hub     broadcast.Publisher
	urgent  *NotificationService
	metrics *cfotel.Metrics
	baseURL string
	now     func() time.Time
}

// NewNotificationDispatcher creates a dispatcher. hub, urgent and metrics
// may be nil.
func NewNotificationDispatcher(
	agents agentstore.Store,
	store notificationstore.Store,
	hub broadcast.Publisher,
	urgent *NotificationService,
	metrics *cfotel.Metrics,
) *NotificationDispatcher {
	return &NotificationDispatcher{
		agents:  agents,
		store:   store,
		hub:     hub,
		urgent:  urgent,
		metrics: metrics,
		now:     time.Now,
	}
}

// SetBaseURL sets the dashboard URL used for links in urgent messages.
func (d *NotificationDispatcher) SetBaseURL(u string) {
	d.baseURL = strings.TrimRight(u, "/")
}

// NotifyAgentsOfChatRequest tells every online agent that a customer is
// waiting and escalates the request to the urgent channel.
func (d *NotificationDispatcher) NotifyAgentsOfChatRequest(ctx context.Context, req chat.Request) notification.DeliveryOutcome {
	ctx, span := cfotel.StartDispatchSpan(ctx, string(notification.TypeChatRequest), notification.RoomAgents)
	defer span.End()

	if req.Timestamp.IsZero() {
		req.Timestamp = d.now()
	}
	data, _ := json.Marshal(req)

	msg := fmt.Sprintf("%s is waiting for an agent", req.CustomerName)
	if req.DeviceType != "" {
		msg = fmt.Sprintf("%s needs help with a %s", req.CustomerName, req.DeviceType)
	}
	n := notification.New(notification.TypeChatRequest, req.SessionID, "New Chat Request", msg, data, req.Timestamp)

	storeErr := d.fanOut(ctx, n)
	outcome := d.publish(ctx, notification.RoomAgents, notification.EventNewChatRequest, n)
	outcome = d.finish(ctx, n.Type, outcome, storeErr)

	d.escalate(ctx, n, notifier.LevelWarning, d.link("/chat/"+req.SessionID))
	return outcome
}

// NotifyAgentAssignment tells one agent that a chat was handed to them.
func (d *NotificationDispatcher) NotifyAgentAssignment(ctx context.Context, agentID, sessionID, customerName string) notification.DeliveryOutcome {
	room := notification.AgentRoom(agentID)
	ctx, span := cfotel.StartDispatchSpan(ctx, "chat_assignment", room)
	defer span.End()

	data, _ := json.Marshal(map[string]string{
		"sessionId":    sessionID,
		"customerName": customerName,
	})
	n := notification.New(notification.TypeChatRequest, sessionID, "Chat Assigned",
		fmt.Sprintf("You have been assigned to chat with %s", customerName), data, d.now())

	var storeErr error
	if err := d.store.Append(ctx, agentID, n); err != nil {
		slog.ErrorContext(ctx, "store assignment notification", "agent_id", agentID, "error", err)
		storeErr = err
	}
	outcome := d.publish(ctx, room, notification.EventChatAssigned, n)
	return d.finish(ctx, "chat_assignment", outcome, storeErr)
}

// NotifyAgents fans a repair or appointment lifecycle event out to every
// online agent. Title and message come from the fixed event table; unknown
// events get a generic repair update.
func (d *NotificationDispatcher) NotifyAgents(ctx context.Context, eventType string, data json.RawMessage) notification.DeliveryOutcome {
	tmpl := notification.TemplateFor(eventType)
	ctx, span := cfotel.StartDispatchSpan(ctx, string(tmpl.Type), notification.RoomAgents)
	defer span.End()

	subject := notification.EventSubject(eventType, data)
	n := notification.New(tmpl.Type, subject, tmpl.Title, tmpl.Message, data, d.now())

	storeErr := d.fanOut(ctx, n)
	outcome := d.publish(ctx, notification.RoomAgents, eventType, n)
	outcome = d.finish(ctx, n.Type, outcome, storeErr)

	level := notifier.LevelInfo
	if n.Type == notification.TypeUrgentIssue {
		level = notifier.LevelError
	}
	d.escalate(ctx, n, level, d.link(""))
	return outcome
}

// NotifyCustomer publishes payload to the customer's room. Customers have
// no stored feed.
func (d *NotificationDispatcher) NotifyCustomer(ctx context.Context, email, eventType string, payload any) notification.DeliveryOutcome {
	room := notification.CustomerRoom(email)
	ctx, span := cfotel.StartDispatchSpan(ctx, "customer", room)
	defer span.End()

	outcome := d.publish(ctx, room, eventType, payload)
	return d.finish(ctx, "customer", outcome, nil)
}

// Feed returns an agent's notifications, newest first, and how many are unread.
func (d *NotificationDispatcher) Feed(ctx context.Context, agentID string) ([]notification.Notification, int, error) {
	list, err := d.store.List(ctx, agentID)
	if err != nil {
		return nil, 0, fmt.Errorf("list notifications for %s: %w", agentID, err)
	}
	return list, notification.Unread(list), nil
}

// MarkRead flags one of the agent's notifications as read.
func (d *NotificationDispatcher) MarkRead(ctx context.Context, agentID, notificationID string) error {
	if err := d.store.MarkRead(ctx, agentID, notificationID); err != nil {
		return fmt.Errorf("mark notification %s read: %w", notificationID, err)
	}
	return nil
}

// fanOut stores n for every agent that is not offline.
func (d *NotificationDispatcher) fanOut(ctx context.Context, n notification.Notification) error {
	agents, err := d.agents.List(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "load agent roster", "notification_id", n.ID, "error", err)
		return err
	}
	ids := make([]string, 0, len(agents))
	for i := range agents {
		if agents[i].Online() {
			ids = append(ids, agents[i].ID)
		}
	}
	if len(ids) == 0 {
		slog.DebugContext(ctx, "no online agents for notification", "notification_id", n.ID)
		return nil
	}
	if err := d.store.AppendToAll(ctx, ids, n); err != nil {
		slog.ErrorContext(ctx, "store notification", "notification_id", n.ID, "agents", len(ids), "error", err)
		return err
	}
	return nil
}

func (d *NotificationDispatcher) publish(ctx context.Context, room, event string, payload any) notification.DeliveryOutcome {
	if d.hub == nil {
		return notification.QueuedOnly
	}
	err := d.hub.Publish(ctx, room, event, payload)
	switch {
	case err == nil:
		return notification.Delivered
	case errors.Is(err, broadcast.ErrNoSubscribers):
		return notification.QueuedOnly
	default:
		slog.WarnContext(ctx, "real-time publish failed", "room", room, "event", event, "error", err)
		return notification.Failed
	}
}

// finish folds a store failure into the outcome, then logs and counts it.
// A notification that reached nobody and was not stored either is failed.
func (d *NotificationDispatcher) finish(ctx context.Context, kind notification.Type, outcome notification.DeliveryOutcome, storeErr error) notification.DeliveryOutcome {
	if storeErr != nil && outcome == notification.QueuedOnly {
		outcome = notification.Failed
	}
	d.metrics.RecordNotification(ctx, string(kind), string(outcome))
	slog.DebugContext(ctx, "notification dispatched", "kind", kind, "outcome", outcome)
	return outcome
}

func (d *NotificationDispatcher) escalate(ctx context.Context, n notification.Notification, level notifier.Level, link string) {
	if d.urgent == nil {
		return
	}
	d.urgent.NotifyAsync(ctx, notifier.Notification{
		Title:   n.Title,
		Message: n.Message,
		Level:   level,
		Source:  string(n.Type),
		Link:    link,
	})
}

func (d *NotificationDispatcher) link(path string) string {
	if d.baseURL == "" {
		return ""
	}
	return d.baseURL + path
}

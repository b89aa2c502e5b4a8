package notification

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Lifecycle event names accepted from the repair and appointment side.
const (
	EventRepairCreated       = "repair_created"
	EventRepairStatusUpdated = "repair_status_updated"
	EventNewAppointment      = "new_appointment"
	EventUrgentIssue         = "urgent_issue"
)

// Real-time event names published by the dispatcher.
const (
	EventNewChatRequest = "new_chat_request"
	EventChatAssigned   = "chat_assigned"
	EventAgentAssigned  = "agent_assigned"
	EventChatEnded      = "chat_ended"
	EventAgentStatus    = "agent.status"
)

// Template is the fixed presentation of a lifecycle event.
type Template struct {
	Type    Type
	Title   string
	Message string
}

var templates = map[string]Template{
	EventRepairCreated: {
		Type:    TypeRepairUpdate,
		Title:   "New Repair Request",
		Message: "A new repair request has been created",
	},
	EventRepairStatusUpdated: {
		Type:    TypeRepairUpdate,
		Title:   "Repair Status Updated",
		Message: "A repair status has been updated",
	},
	EventNewAppointment: {
		Type:    TypeNewAppointment,
		Title:   "New Appointment",
		Message: "A new appointment has been booked",
	},
	EventUrgentIssue: {
		Type:    TypeUrgentIssue,
		Title:   "Urgent Issue",
		Message: "An urgent issue needs attention",
	},
}

// LookupTemplate returns the template for a lifecycle event.
func LookupTemplate(event string) (Template, bool) {
	t, ok := templates[event]
	return t, ok
}

// TemplateFor returns the template for event, falling back to a generic
// repair update for unknown events.
func TemplateFor(event string) Template {
	if t, ok := templates[event]; ok {
		return t
	}
	return Template{
		Type:    TypeRepairUpdate,
		Title:   "Notification",
		Message: "New event: " + event,
	}
}

// entityKeys are the payload fields that identify the record an event is
// about, in lookup order.
var entityKeys = []string{"repairId", "appointmentId", "issueId", "customerId", "sessionId", "id"}

// EventSubject returns the notification subject for a lifecycle event: the
// event name joined with the entity id found in data, or the event name
// alone when data names no entity.
func EventSubject(event string, data json.RawMessage) string {
	var fields map[string]any
	if len(data) == 0 || json.Unmarshal(data, &fields) != nil {
		return event
	}
	for _, k := range entityKeys {
		switch v := fields[k].(type) {
		case string:
			if v != "" {
				return event + "_" + v
			}
		case float64:
			return event + "_" + fmt.Sprint(v)
		}
	}
	return event
}

// Room names on the real-time transport.
const RoomAgents = "agents"

// AgentRoom returns the private room of one agent.
func AgentRoom(agentID string) string {
	return "agent_" + agentID
}

// CustomerRoom returns the room a customer's browser joins. Emails are
// compared case-insensitively.
func CustomerRoom(email string) string {
	return "customer_" + strings.ToLower(strings.TrimSpace(email))
}

// DeliveryOutcome reports what happened to a dispatched notification.
type DeliveryOutcome string

const (
	// Delivered means the notification was stored (if applicable) and
	// published to at least one live subscriber.
	Delivered DeliveryOutcome = "delivered"
	// QueuedOnly means the notification is only in the store; nobody was
	// listening or no real-time transport is configured.
	QueuedOnly DeliveryOutcome = "queued_only"
	// Failed means the real-time publish returned an error.
	Failed DeliveryOutcome = "failed"
)

package messagequeue

import "encoding/json"

// RoomEventPayload is the schema for rooms.event.* messages.
type RoomEventPayload struct {
	Origin  string          `json:"origin,omitempty"` // instance that already delivered locally
	Room    string          `json:"room"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// ChatRequestedPayload is the schema for chat.requested messages.
type ChatRequestedPayload struct {
	SessionID     string `json:"session_id"`
	CustomerEmail string `json:"customer_email"`
	DeviceType    string `json:"device_type,omitempty"`
	AgentAssigned bool   `json:"agent_assigned"`
	AgentID       string `json:"agent_id,omitempty"`
}

// ChatAssignedPayload is the schema for chat.assigned messages.
type ChatAssignedPayload struct {
	SessionID string `json:"session_id"`
	AgentID   string `json:"agent_id"`
}

// ChatEndedPayload is the schema for chat.ended messages.
type ChatEndedPayload struct {
	SessionID string `json:"session_id"`
	AgentID   string `json:"agent_id,omitempty"`
}

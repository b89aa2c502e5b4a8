package ws

import "time"

// Control message types exchanged with clients.
const (
	ControlJoin     = "join"
	ControlLeave    = "leave"
	ControlJoined   = "joined"
	ControlRejected = "rejected"
)

// AgentStatusEvent is published to the agents room when an agent's
// presence or load changes.
type AgentStatusEvent struct {
	AgentID     string `json:"agent_id"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	ActiveChats int    `json:"active_chats"`
	MaxChats    int    `json:"max_chats"`
}

// AgentAssignedEvent tells a customer that a technician took the chat.
type AgentAssignedEvent struct {
	SessionID string `json:"sessionId"`
	AgentID   string `json:"agentId"`
	AgentName string `json:"agentName"`
}

// ChatEndedEvent tells a customer, or the assigned agent, that the chat
// session is closed.
type ChatEndedEvent struct {
	SessionID string    `json:"sessionId"`
	EndedAt   time.Time `json:"endedAt"`
}

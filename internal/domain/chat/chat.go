// Package chat defines customers, support chat sessions and the
// "request a human agent" use-case payloads.
package chat

import (
	"time"
)

// Status is the lifecycle state of a chat session.
type Status string

const (
	// StatusActive is a session created outside the agent-request flow,
	// e.g. a direct AI chat.
	StatusActive       Status = "active"
	StatusWaitingAgent Status = "waiting-agent"
	StatusAgentJoined  Status = "agent-joined"
	StatusEnded        Status = "ended"
)

// Sender identifies who wrote a message.
type Sender string

const (
	SenderSystem   Sender = "system"
	SenderCustomer Sender = "customer"
	SenderAgent    Sender = "agent"
	SenderAI       Sender = "ai"
)

// Customer is a person who contacted the shop.
type Customer struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is a support chat thread owned by a customer.
type Session struct {
	ID               string     `json:"id"`
	CustomerID       string     `json:"customer_id"`
	CustomerEmail    string     `json:"customer_email"`
	CustomerName     string     `json:"customer_name"`
	Status           Status     `json:"status"`
	TechnicianID     string     `json:"technician_id,omitempty"`
	TechnicianName   string     `json:"technician_name,omitempty"`
	DeviceType       string     `json:"device_type,omitempty"`
	IssueDescription string     `json:"issue_description,omitempty"`
	StartedAt        time.Time  `json:"started_at"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
	UpdatedAt        time.Time  `json:"updated_at"`

	// DetachedTechnicianID is the technician a reopen removed from an
	// agent-joined session. Only FindOrCreateSession sets it; the caller
	// owns releasing that technician's chat slot.
	DetachedTechnicianID string `json:"-"`
}

// Message is a single entry of a session's message log.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Sender    Sender    `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionUpdate carries a status transition for the persistence layer.
// TechnicianID and TechnicianName are written only when non-empty.
type SessionUpdate struct {
	Status         Status
	TechnicianID   string
	TechnicianName string
}

// Request is the ephemeral chat request handed to the notification
// dispatcher. It is not persisted by the routing core.
type Request struct {
	SessionID        string    `json:"session_id"`
	CustomerName     string    `json:"customer_name"`
	CustomerEmail    string    `json:"customer_email"`
	DeviceType       string    `json:"device_type,omitempty"`
	IssueDescription string    `json:"issue_description,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

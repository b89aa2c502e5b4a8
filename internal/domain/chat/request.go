package chat

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/Strob0t/RepairDesk/internal/domain"
)

// RequestAgentInput is the body of POST /api/chat/request-agent.
type RequestAgentInput struct {
	CustomerName     string `json:"customerName"`
	CustomerEmail    string `json:"customerEmail"`
	DeviceType       string `json:"deviceType,omitempty"`
	IssueDescription string `json:"issueDescription,omitempty"`
	SessionID        string `json:"sessionId,omitempty"`
}

// Normalize trims whitespace from every field.
func (in *RequestAgentInput) Normalize() {
	in.CustomerName = strings.TrimSpace(in.CustomerName)
	in.CustomerEmail = strings.TrimSpace(in.CustomerEmail)
	in.DeviceType = strings.TrimSpace(in.DeviceType)
	in.IssueDescription = strings.TrimSpace(in.IssueDescription)
	in.SessionID = strings.TrimSpace(in.SessionID)
}

// Validate checks the required fields and replaces CustomerEmail with its
// bare lowercased address, so "Jane <Jane@X.com>" and "jane@x.com" name the
// same customer and notification room. Errors wrap domain.ErrValidation.
func (in *RequestAgentInput) Validate() error {
	if in.CustomerName == "" {
		return fmt.Errorf("%w: customerName is required", domain.ErrValidation)
	}
	if in.CustomerEmail == "" {
		return fmt.Errorf("%w: customerEmail is required", domain.ErrValidation)
	}
	addr, err := mail.ParseAddress(in.CustomerEmail)
	if err != nil {
		return fmt.Errorf("%w: customerEmail is not a valid address", domain.ErrValidation)
	}
	in.CustomerEmail = strings.ToLower(addr.Address)
	return nil
}

// RequestAgentResult is the reply to the customer.
type RequestAgentResult struct {
	Success           bool   `json:"success"`
	SessionID         string `json:"sessionId"`
	Message           string `json:"message"`
	AgentAssigned     bool   `json:"agentAssigned"`
	EstimatedWaitTime int    `json:"estimatedWaitTime"`
}

// StatusView is the reply of GET /api/chat/request-agent.
type StatusView struct {
	SessionID         string     `json:"sessionId"`
	Status            Status     `json:"status"`
	AgentAssigned     bool       `json:"agentAssigned"`
	AgentName         string     `json:"agentName,omitempty"`
	EstimatedWaitTime int        `json:"estimatedWaitTime"`
	StartedAt         time.Time  `json:"startedAt"`
	EndedAt           *time.Time `json:"endedAt,omitempty"`
}

// View projects a session into its status view. waitMinutes is reported
// only while the session is waiting for an agent.
func (s *Session) View(waitMinutes int) StatusView {
	v := StatusView{
		SessionID:     s.ID,
		Status:        s.Status,
		AgentAssigned: s.TechnicianID != "" && s.Status == StatusAgentJoined,
		AgentName:     s.TechnicianName,
		StartedAt:     s.StartedAt,
		EndedAt:       s.EndedAt,
	}
	if s.Status == StatusWaitingAgent {
		v.EstimatedWaitTime = waitMinutes
	}
	return v
}

// JoinRequest is the body of POST /api/chat/sessions/{id}/join.
type JoinRequest struct {
	AgentID string `json:"agentId"`
}

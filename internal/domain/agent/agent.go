// Package agent defines the support Agent entity, its load accounting rules
// and the selection algorithm used to route chat requests.
package agent

import (
	"fmt"
	"slices"
	"time"
)

// Status represents the presence state of an agent.
type Status string

const (
	StatusAvailable Status = "available"
	StatusBusy      Status = "busy"
	StatusAway      Status = "away"
	StatusOffline   Status = "offline"
)

// DefaultMaxChats is the capacity given to an agent when it comes online.
const DefaultMaxChats = 5

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusBusy, StatusAway, StatusOffline:
		return true
	}
	return false
}

// ParseStatus converts a raw string into a Status.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown agent status %q", raw)
	}
	return s, nil
}

// Agent is a human support agent with live presence and load counters.
type Agent struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	ExpertiseTags []string  `json:"expertise_tags"`
	Status        Status    `json:"status"`
	ActiveChats   int       `json:"active_chats"`
	MaxChats      int       `json:"max_chats"`
	LastSeen      time.Time `json:"last_seen"`
}

// Info is the caller-supplied part of an agent registration.
type Info struct {
	Name          string   `json:"name"`
	ExpertiseTags []string `json:"expertise_tags"`
}

// New returns an available agent with no active chats.
func New(id string, info Info, maxChats int, now time.Time) Agent {
	if maxChats < 1 {
		maxChats = DefaultMaxChats
	}
	return Agent{
		ID:            id,
		Name:          info.Name,
		ExpertiseTags: slices.Clone(info.ExpertiseTags),
		Status:        StatusAvailable,
		MaxChats:      maxChats,
		LastSeen:      now,
	}
}

// Clone returns a deep copy so callers cannot alias registry state.
func (a Agent) Clone() Agent {
	a.ExpertiseTags = slices.Clone(a.ExpertiseTags)
	return a
}

// AtCapacity reports whether the agent cannot take another chat.
func (a *Agent) AtCapacity() bool {
	return a.ActiveChats >= a.MaxChats
}

// Eligible reports whether the agent can be handed a new chat.
func (a *Agent) Eligible() bool {
	return a.Status == StatusAvailable && !a.AtCapacity()
}

// SetStatus applies a presence change. An agent at capacity cannot be
// marked available; it stays busy until a chat is released.
func (a *Agent) SetStatus(s Status, now time.Time) {
	if s == StatusAvailable && a.AtCapacity() {
		s = StatusBusy
	}
	a.Status = s
	a.LastSeen = now
}

// Increment takes one more chat. It refuses (returns false) when the agent
// is already at capacity so ActiveChats never exceeds MaxChats.
func (a *Agent) Increment(now time.Time) bool {
	if a.AtCapacity() {
		return false
	}
	a.ActiveChats++
	if a.AtCapacity() {
		a.Status = StatusBusy
	}
	a.LastSeen = now
	return true
}

// Decrement releases one chat, floored at zero. A busy agent that drops
// under capacity becomes available again.
func (a *Agent) Decrement(now time.Time) {
	if a.ActiveChats > 0 {
		a.ActiveChats--
	}
	if a.Status == StatusBusy && !a.AtCapacity() {
		a.Status = StatusAvailable
	}
	a.LastSeen = now
}

// Online reports whether the agent should receive broadcast notifications.
func (a *Agent) Online() bool {
	return a.Status != StatusOffline
}

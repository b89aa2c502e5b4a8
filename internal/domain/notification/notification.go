// Package notification defines agent notification records, the event
// lookup table used to title them and the real-time room naming scheme.
package notification

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type classifies a notification.
type Type string

const (
	TypeChatRequest    Type = "chat_request"
	TypeRepairUpdate   Type = "repair_update"
	TypeNewAppointment Type = "new_appointment"
	TypeUrgentIssue    Type = "urgent_issue"
)

// DefaultCap is the number of notifications kept per agent.
const DefaultCap = 50

// Notification is one entry of an agent's notification feed.
type Notification struct {
	ID        string          `json:"id"`
	Type      Type            `json:"type"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Read      bool            `json:"read"`
}

// New builds an unread notification. The ID is derived from the type, the
// subject (session id, event name, ...) and the timestamp.
func New(typ Type, subject, title, message string, data json.RawMessage, now time.Time) Notification {
	return Notification{
		ID:        fmt.Sprintf("%s_%s_%d", typ, subject, now.UnixMilli()),
		Type:      typ,
		Title:     title,
		Message:   message,
		Data:      data,
		Timestamp: now,
	}
}

// Prepend inserts n at the head of list and truncates the tail to limit.
// The returned slice may share storage with list.
func Prepend(list []Notification, n Notification, limit int) []Notification {
	if limit < 1 {
		limit = DefaultCap
	}
	list = append(list, Notification{})
	copy(list[1:], list)
	list[0] = n
	if len(list) > limit {
		list = list[:limit]
	}
	return list
}

// MarkRead flips the read flag of the entry with the given id. It reports
// whether an entry matched.
func MarkRead(list []Notification, id string) bool {
	for i := range list {
		if list[i].ID == id {
			list[i].Read = true
			return true
		}
	}
	return false
}

// Unread counts entries not yet read.
func Unread(list []Notification) int {
	n := 0
	for i := range list {
		if !list[i].Read {
			n++
		}
	}
	return n
}

package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/RepairDesk/internal/domain"
	"github.com/Strob0t/RepairDesk/internal/domain/chat"
)

// ChatStore keeps customers, sessions and messages in memory. It backs
// chat.store=memory for local runs without PostgreSQL.
type ChatStore struct {
	mu        sync.Mutex
	customers map[string]*chat.Customer // by email
	sessions  map[string]*chatSession
	messages  map[string][]chat.Message
	seq       uint64 // orders waiting sessions with equal timestamps
	now       func() time.Time
}

type chatSession struct {
	chat.Session
	waitingSince time.Time
	waitingSeq   uint64
}

// NewChatStore creates an empty chat store.
func NewChatStore() *ChatStore {
	return &ChatStore{
		customers: make(map[string]*chat.Customer),
		sessions:  make(map[string]*chatSession),
		messages:  make(map[string][]chat.Message),
		now:       time.Now,
	}
}

// FindOrCreateCustomer returns the customer with email, creating it if needed.
func (s *ChatStore) FindOrCreateCustomer(_ context.Context, email, name string) (*chat.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.customers[email]; ok {
		cp := *c
		return &cp, nil
	}
	c := &chat.Customer{ID: uuid.NewString(), Email: email, Name: name, CreatedAt: s.now()}
	s.customers[email] = c
	cp := *c
	return &cp, nil
}

// FindOrCreateSession returns the session, reopened as waiting-agent.
func (s *ChatStore) FindOrCreateSession(_ context.Context, id string, customer *chat.Customer, deviceType, issue string) (*chat.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customerByID(customer.ID); !ok {
		return nil, fmt.Errorf("find or create session %s: customer %s: %w", id, customer.ID, domain.ErrNotFound)
	}

	now := s.now()
	cs, ok := s.sessions[id]
	if !ok {
		cs = &chatSession{Session: chat.Session{
			ID:            id,
			CustomerID:    customer.ID,
			CustomerEmail: customer.Email,
			CustomerName:  customer.Name,
			StartedAt:     now,
		}}
		s.sessions[id] = cs
	}
	if cs.CustomerID != customer.ID {
		return nil, fmt.Errorf("find or create session %s: owned by another customer: %w", id, domain.ErrConflict)
	}
	var detached string
	if cs.Status == chat.StatusAgentJoined {
		detached = cs.TechnicianID
	}
	if cs.Status != chat.StatusWaitingAgent {
		s.markWaiting(cs, now)
	}
	cs.Status = chat.StatusWaitingAgent
	cs.TechnicianID = ""
	cs.TechnicianName = ""
	cs.EndedAt = nil
	if deviceType != "" {
		cs.DeviceType = deviceType
	}
	if issue != "" {
		cs.IssueDescription = issue
	}
	cs.UpdatedAt = now
	out := s.copySession(cs)
	out.DetachedTechnicianID = detached
	return out, nil
}

// UpdateSessionStatus applies a status transition.
func (s *ChatStore) UpdateSessionStatus(_ context.Context, id string, upd chat.SessionUpdate) (*chat.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("update session %s: %w", id, domain.ErrNotFound)
	}
	now := s.now()
	if upd.Status == chat.StatusWaitingAgent && cs.Status != chat.StatusWaitingAgent {
		s.markWaiting(cs, now)
	}
	cs.Status = upd.Status
	if upd.TechnicianID != "" {
		cs.TechnicianID = upd.TechnicianID
	}
	if upd.TechnicianName != "" {
		cs.TechnicianName = upd.TechnicianName
	}
	if upd.Status == chat.StatusEnded && cs.EndedAt == nil {
		cs.EndedAt = &now
	}
	cs.UpdatedAt = now
	return s.copySession(cs), nil
}

// AppendSystemMessage adds a system message to the session log.
func (s *ChatStore) AppendSystemMessage(_ context.Context, sessionID, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return fmt.Errorf("append system message to %s: %w", sessionID, domain.ErrNotFound)
	}
	s.messages[sessionID] = append(s.messages[sessionID], chat.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Sender:    chat.SenderSystem,
		Content:   content,
		CreatedAt: s.now(),
	})
	return nil
}

// GetSession returns one session.
func (s *ChatStore) GetSession(_ context.Context, id string) (*chat.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("get session %s: %w", id, domain.ErrNotFound)
	}
	return s.copySession(cs), nil
}

// QueuePosition returns the 1-based position among waiting sessions.
func (s *ChatStore) QueuePosition(_ context.Context, sessionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, ok := s.sessions[sessionID]
	if !ok {
		return 0, fmt.Errorf("queue position %s: %w", sessionID, domain.ErrNotFound)
	}
	if cs.Status != chat.StatusWaitingAgent {
		return 0, nil
	}
	pos := 0
	for _, other := range s.sessions {
		if other.Status == chat.StatusWaitingAgent && !waitsLonger(cs, other) {
			pos++
		}
	}
	return pos, nil
}

// ListMessages returns the session's messages, oldest first.
func (s *ChatStore) ListMessages(_ context.Context, sessionID string) ([]chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return nil, fmt.Errorf("list messages %s: %w", sessionID, domain.ErrNotFound)
	}
	msgs := slices.Clone(s.messages[sessionID])
	if msgs == nil {
		msgs = []chat.Message{}
	}
	return msgs, nil
}

// markWaiting must be called with s.mu held.
func (s *ChatStore) markWaiting(cs *chatSession, now time.Time) {
	s.seq++
	cs.waitingSince = now
	cs.waitingSeq = s.seq
}

// waitsLonger reports whether a entered the queue strictly before b.
func waitsLonger(a, b *chatSession) bool {
	if !a.waitingSince.Equal(b.waitingSince) {
		return a.waitingSince.Before(b.waitingSince)
	}
	return a.waitingSeq < b.waitingSeq
}

// customerByID must be called with s.mu held.
func (s *ChatStore) customerByID(id string) (*chat.Customer, bool) {
	for _, c := range s.customers {
		if c.ID == id {
			return c, true
		}
	}
	return nil, false
}

func (s *ChatStore) copySession(cs *chatSession) *chat.Session {
	sess := cs.Session
	if cs.EndedAt != nil {
		t := *cs.EndedAt
		sess.EndedAt = &t
	}
	return &sess
}

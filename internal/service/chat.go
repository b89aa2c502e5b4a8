package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	cfotel "github.com/Strob0t/RepairDesk/internal/adapter/otel"
	"github.com/Strob0t/RepairDesk/internal/adapter/ws"
	"github.com/Strob0t/RepairDesk/internal/domain"
	"github.com/Strob0t/RepairDesk/internal/domain/chat"
	"github.com/Strob0t/RepairDesk/internal/domain/notification"
	"github.com/Strob0t/RepairDesk/internal/logger"
	"github.com/Strob0t/RepairDesk/internal/port/cache"
	"github.com/Strob0t/RepairDesk/internal/port/database"
	"github.com/Strob0t/RepairDesk/internal/port/messagequeue"
)

// DefaultEstimatedWaitMinutes is quoted to customers who were queued.
const DefaultEstimatedWaitMinutes = 3

const (
	defaultStatusTTL = 30 * time.Second
	statusKeyPrefix  = "chat:status:"

	msgQueued   = "All of our technicians are busy right now. You are in the queue and the next available technician will join shortly."
	msgAssigned = "%s has joined the chat."
	msgEnded    = "The chat has ended."
)

// ChatService runs the "talk to a human" workflow: it records the request,
// reserves an agent or queues the customer, and tells everybody involved.
type ChatService struct {
	store      database.ChatStore
	agents     *AgentService
	dispatcher *NotificationDispatcher
	queue      messagequeue.Queue
	cache      cache.Cache
	sf         singleflight.Group
	statusTTL  time.Duration
	waitMins   int
	metrics    *cfotel.Metrics
}

// NewChatService creates a ChatService. waitMinutes <= 0 selects the
// default estimate.
func NewChatService(store database.ChatStore, agents *AgentService, dispatcher *NotificationDispatcher, waitMinutes int) *ChatService {
	if waitMinutes <= 0 {
		waitMinutes = DefaultEstimatedWaitMinutes
	}
	return &ChatService{
		store:      store,
		agents:     agents,
		dispatcher: dispatcher,
		statusTTL:  defaultStatusTTL,
		waitMins:   waitMinutes,
	}
}

// SetQueue enables publishing chat lifecycle events to other instances.
func (s *ChatService) SetQueue(q messagequeue.Queue) { s.queue = q }

// SetCache enables caching of session status views.
func (s *ChatService) SetCache(c cache.Cache, ttl time.Duration) {
	s.cache = c
	if ttl > 0 {
		s.statusTTL = ttl
	}
}

// SetMetrics attaches OTEL metrics.
func (s *ChatService) SetMetrics(m *cfotel.Metrics) { s.metrics = m }

// RequestAgent handles a customer's request for a human technician.
func (s *ChatService) RequestAgent(ctx context.Context, in chat.RequestAgentInput) (*chat.RequestAgentResult, error) {
	start := time.Now()
	in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if in.SessionID == "" {
		in.SessionID = uuid.NewString()
	}
	ctx = logger.WithSessionID(ctx, in.SessionID)

	ctx, span := cfotel.StartRequestAgentSpan(ctx, in.SessionID, in.DeviceType)
	defer span.End()

	customer, err := s.store.FindOrCreateCustomer(ctx, in.CustomerEmail, in.CustomerName)
	if err != nil {
		return nil, fmt.Errorf("find or create customer: %w", err)
	}
	session, err := s.store.FindOrCreateSession(ctx, in.SessionID, customer, in.DeviceType, in.IssueDescription)
	if err != nil {
		return nil, fmt.Errorf("find or create session %s: %w", in.SessionID, err)
	}
	defer s.invalidate(ctx, session.ID)
	if prev := session.DetachedTechnicianID; prev != "" {
		if relErr := s.agents.Release(ctx, prev); relErr != nil {
			slog.ErrorContext(ctx, "release detached technician", "agent_id", prev, "error", relErr)
		}
	}

	picked, ok, err := s.agents.Reserve(ctx, in.DeviceType)
	if err != nil {
		slog.ErrorContext(ctx, "agent reservation failed, queueing request", "error", err)
		ok = false
	}

	var result *chat.RequestAgentResult
	if ok {
		result, err = s.assign(ctx, session, picked.ID, picked.Name, customer)
	} else {
		result, err = s.enqueue(ctx, session, customer, in)
	}
	if err != nil {
		return nil, err
	}

	s.publish(ctx, messagequeue.SubjectChatRequested, messagequeue.ChatRequestedPayload{
		SessionID:     session.ID,
		CustomerEmail: customer.Email,
		DeviceType:    in.DeviceType,
		AgentAssigned: result.AgentAssigned,
		AgentID:       picked.ID,
	})
	s.metrics.RecordChatRequest(ctx, result.AgentAssigned, time.Since(start).Seconds())
	slog.InfoContext(ctx, "agent requested",
		"device_type", in.DeviceType,
		"agent_assigned", result.AgentAssigned,
		"agent_id", picked.ID,
	)
	return result, nil
}

// assign records the reserved agent on the session and notifies both sides.
// The reservation is released if the session cannot be updated.
func (s *ChatService) assign(ctx context.Context, session *chat.Session, agentID, agentName string, customer *chat.Customer) (*chat.RequestAgentResult, error) {
	_, err := s.store.UpdateSessionStatus(ctx, session.ID, chat.SessionUpdate{
		Status:         chat.StatusAgentJoined,
		TechnicianID:   agentID,
		TechnicianName: agentName,
	})
	if err != nil {
		if relErr := s.agents.Release(ctx, agentID); relErr != nil {
			slog.ErrorContext(ctx, "release reservation", "agent_id", agentID, "error", relErr)
		}
		return nil, fmt.Errorf("assign session %s: %w", session.ID, err)
	}

	s.dispatcher.NotifyAgentAssignment(ctx, agentID, session.ID, customer.Name)
	s.dispatcher.NotifyCustomer(ctx, customer.Email, notification.EventAgentAssigned, ws.AgentAssignedEvent{
		SessionID: session.ID,
		AgentID:   agentID,
		AgentName: agentName,
	})
	s.metrics.RecordAssignment(ctx, "request")

	return &chat.RequestAgentResult{
		Success:           true,
		SessionID:         session.ID,
		Message:           fmt.Sprintf("Connected to %s. They will be with you in a moment.", agentName),
		AgentAssigned:     true,
		EstimatedWaitTime: 0,
	}, nil
}

// enqueue broadcasts the request to all agents and leaves a note in the
// session log.
func (s *ChatService) enqueue(ctx context.Context, session *chat.Session, customer *chat.Customer, in chat.RequestAgentInput) (*chat.RequestAgentResult, error) {
	s.dispatcher.NotifyAgentsOfChatRequest(ctx, chat.Request{
		SessionID:        session.ID,
		CustomerName:     customer.Name,
		CustomerEmail:    customer.Email,
		DeviceType:       in.DeviceType,
		IssueDescription: in.IssueDescription,
		Timestamp:        time.Now().UTC(),
	})

	if err := s.store.AppendSystemMessage(ctx, session.ID, msgQueued); err != nil {
		return nil, fmt.Errorf("append queue message to session %s: %w", session.ID, err)
	}

	return &chat.RequestAgentResult{
		Success:           true,
		SessionID:         session.ID,
		Message:           "Your request has been sent to our technicians.",
		AgentAssigned:     false,
		EstimatedWaitTime: s.waitMins,
	}, nil
}

// SessionStatus returns the status view of a session. Views are cached and
// concurrent misses for the same session share one load.
func (s *ChatService) SessionStatus(ctx context.Context, sessionID string) (*chat.StatusView, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("%w: sessionId is required", domain.ErrValidation)
	}
	key := statusKeyPrefix + sessionID

	if s.cache != nil {
		if raw, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			var v chat.StatusView
			if json.Unmarshal(raw, &v) == nil {
				return &v, nil
			}
		}
	}

	val, err, _ := s.sf.Do(key, func() (any, error) {
		sess, err := s.store.GetSession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		v := sess.View(s.waitMins)
		if s.cache != nil {
			if raw, err := json.Marshal(v); err == nil {
				_ = s.cache.Set(ctx, key, raw, s.statusTTL)
			}
		}
		return &v, nil
	})
	if err != nil {
		return nil, fmt.Errorf("session %s status: %w", sessionID, err)
	}
	return val.(*chat.StatusView), nil
}

// QueuePosition returns the 1-based position of a waiting session, or 0 if
// the session is not waiting.
func (s *ChatService) QueuePosition(ctx context.Context, sessionID string) (int, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return 0, fmt.Errorf("%w: sessionId is required", domain.ErrValidation)
	}
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return 0, fmt.Errorf("get session %s: %w", sessionID, err)
	}
	pos, err := s.store.QueuePosition(ctx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("queue position %s: %w", sessionID, err)
	}
	return pos, nil
}

// Messages returns the session's message log, oldest first.
func (s *ChatService) Messages(ctx context.Context, sessionID string) ([]chat.Message, error) {
	msgs, err := s.store.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages %s: %w", sessionID, err)
	}
	return msgs, nil
}

// JoinSession lets an agent pick a waiting session from the queue.
func (s *ChatService) JoinSession(ctx context.Context, sessionID, agentID string) (*chat.Session, error) {
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return nil, fmt.Errorf("%w: agentId is required", domain.ErrValidation)
	}
	ctx = logger.WithSessionID(ctx, sessionID)

	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", sessionID, err)
	}
	if sess.Status != chat.StatusWaitingAgent {
		return nil, fmt.Errorf("session %s is %s: %w", sessionID, sess.Status, domain.ErrConflict)
	}

	a, err := s.agents.Claim(ctx, agentID)
	if err != nil {
		return nil, err
	}

	updated, err := s.store.UpdateSessionStatus(ctx, sessionID, chat.SessionUpdate{
		Status:         chat.StatusAgentJoined,
		TechnicianID:   a.ID,
		TechnicianName: a.Name,
	})
	if err != nil {
		if relErr := s.agents.Release(ctx, a.ID); relErr != nil {
			slog.ErrorContext(ctx, "release claim", "agent_id", a.ID, "error", relErr)
		}
		return nil, fmt.Errorf("join session %s: %w", sessionID, err)
	}
	s.invalidate(ctx, sessionID)

	if err := s.store.AppendSystemMessage(ctx, sessionID, fmt.Sprintf(msgAssigned, a.Name)); err != nil {
		slog.WarnContext(ctx, "append join message", "error", err)
	}
	s.dispatcher.NotifyCustomer(ctx, updated.CustomerEmail, notification.EventAgentAssigned, ws.AgentAssignedEvent{
		SessionID: sessionID,
		AgentID:   a.ID,
		AgentName: a.Name,
	})
	s.publish(ctx, messagequeue.SubjectChatAssigned, messagequeue.ChatAssignedPayload{
		SessionID: sessionID,
		AgentID:   a.ID,
	})
	s.metrics.RecordAssignment(ctx, "queue")
	slog.InfoContext(ctx, "agent joined session", "agent_id", a.ID)
	return updated, nil
}

// EndSession closes a session and frees the technician's chat slot. Ending
// an already ended session returns it unchanged.
func (s *ChatService) EndSession(ctx context.Context, sessionID string) (*chat.Session, error) {
	ctx = logger.WithSessionID(ctx, sessionID)
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", sessionID, err)
	}
	if sess.Status == chat.StatusEnded {
		return sess, nil
	}

	updated, err := s.store.UpdateSessionStatus(ctx, sessionID, chat.SessionUpdate{Status: chat.StatusEnded})
	if err != nil {
		return nil, fmt.Errorf("end session %s: %w", sessionID, err)
	}
	s.invalidate(ctx, sessionID)

	if sess.Status == chat.StatusAgentJoined && sess.TechnicianID != "" {
		if err := s.agents.Release(ctx, sess.TechnicianID); err != nil {
			slog.ErrorContext(ctx, "release agent after chat end", "agent_id", sess.TechnicianID, "error", err)
		}
	}
	if err := s.store.AppendSystemMessage(ctx, sessionID, msgEnded); err != nil {
		slog.WarnContext(ctx, "append end message", "error", err)
	}

	endedAt := time.Now().UTC()
	if updated.EndedAt != nil {
		endedAt = *updated.EndedAt
	}
	s.dispatcher.NotifyCustomer(ctx, updated.CustomerEmail, notification.EventChatEnded, ws.ChatEndedEvent{
		SessionID: sessionID,
		EndedAt:   endedAt,
	})
	s.publish(ctx, messagequeue.SubjectChatEnded, messagequeue.ChatEndedPayload{
		SessionID: sessionID,
		AgentID:   sess.TechnicianID,
	})
	s.metrics.RecordSessionEnded(ctx)
	slog.InfoContext(ctx, "chat session ended", "agent_id", sess.TechnicianID)
	return updated, nil
}

// StartEventSubscriber drops cached status views when another instance
// changes a session. The returned function stops all subscriptions.
func (s *ChatService) StartEventSubscriber(ctx context.Context) (cancel func(), err error) {
	if s.queue == nil || s.cache == nil {
		return func() {}, nil
	}

	var cancels []func()
	stopAll := func() {
		for _, c := range cancels {
			c()
		}
	}
	for _, subject := range []string{
		messagequeue.SubjectChatRequested,
		messagequeue.SubjectChatAssigned,
		messagequeue.SubjectChatEnded,
	} {
		c, err := s.queue.Subscribe(ctx, subject, s.handleChatEvent)
		if err != nil {
			stopAll()
			return nil, fmt.Errorf("subscribe %s: %w", subject, err)
		}
		cancels = append(cancels, c)
	}
	return stopAll, nil
}

func (s *ChatService) handleChatEvent(ctx context.Context, subject string, data []byte) error {
	var ev struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		return fmt.Errorf("decode %s: %w", subject, err)
	}
	if ev.SessionID == "" {
		return nil
	}
	// The publishing instance already cleared the shared level.
	if e, ok := s.cache.(localEvicter); ok {
		if err := e.Evict(ctx, statusKeyPrefix+ev.SessionID); err != nil {
			slog.Debug("status cache evict failed", "session_id", ev.SessionID, "error", err)
		}
		return nil
	}
	s.invalidate(ctx, ev.SessionID)
	return nil
}

// localEvicter is implemented by tiered caches that can drop only their
// process-local level.
type localEvicter interface {
	Evict(ctx context.Context, key string) error
}

func (s *ChatService) invalidate(ctx context.Context, sessionID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, statusKeyPrefix+sessionID); err != nil {
		slog.Debug("status cache delete failed", "session_id", sessionID, "error", err)
	}
}

func (s *ChatService) publish(ctx context.Context, subject string, payload any) {
	if s.queue == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.ErrorContext(ctx, "marshal chat event", "subject", subject, "error", err)
		return
	}
	if err := s.queue.Publish(ctx, subject, data); err != nil {
		slog.WarnContext(ctx, "chat event publish failed", "subject", subject, "error", err)
	}
}

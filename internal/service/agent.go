package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Strob0t/RepairDesk/internal/adapter/ws"
	"github.com/Strob0t/RepairDesk/internal/domain"
	"github.com/Strob0t/RepairDesk/internal/domain/agent"
	"github.com/Strob0t/RepairDesk/internal/domain/notification"
	"github.com/Strob0t/RepairDesk/internal/port/agentstore"
	"github.com/Strob0t/RepairDesk/internal/port/broadcast"
)

// AgentService handles agent presence and load, and announces every change
// to the agents room.
type AgentService struct {
	store agentstore.Store
	hub   broadcast.Publisher
}

// NewAgentService creates a new AgentService. hub may be nil.
func NewAgentService(store agentstore.Store, hub broadcast.Publisher) *AgentService {
	return &AgentService{store: store, hub: hub}
}

// List returns all registered agents.
func (s *AgentService) List(ctx context.Context) ([]agent.Agent, error) {
	agents, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	return agents, nil
}

// Get returns an agent by ID.
func (s *AgentService) Get(ctx context.Context, id string) (agent.Agent, error) {
	a, ok, err := s.store.Get(ctx, id)
	if err != nil {
		return agent.Agent{}, fmt.Errorf("get agent %s: %w", id, err)
	}
	if !ok {
		return agent.Agent{}, fmt.Errorf("agent %s: %w", id, domain.ErrNotFound)
	}
	return a, nil
}

// SetAvailable brings an agent online with no active chats.
func (s *AgentService) SetAvailable(ctx context.Context, id string, info agent.Info) (agent.Agent, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return agent.Agent{}, fmt.Errorf("%w: agent id is required", domain.ErrValidation)
	}
	info.Name = strings.TrimSpace(info.Name)
	if info.Name == "" {
		info.Name = id
	}

	a, err := s.store.SetAvailable(ctx, id, info)
	if err != nil {
		return agent.Agent{}, fmt.Errorf("set agent %s available: %w", id, err)
	}
	slog.InfoContext(ctx, "agent available", "agent_id", id, "expertise", a.ExpertiseTags)
	s.announce(ctx, a)
	return a, nil
}

// UpdateStatus changes the presence of a registered agent.
func (s *AgentService) UpdateStatus(ctx context.Context, id, raw string) (agent.Agent, error) {
	status, err := agent.ParseStatus(raw)
	if err != nil {
		return agent.Agent{}, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if err := s.store.UpdateStatus(ctx, id, status); err != nil {
		return agent.Agent{}, fmt.Errorf("update agent %s status: %w", id, err)
	}

	// The registry ignores unknown ids; callers of this service want to know.
	a, err := s.Get(ctx, id)
	if err != nil {
		return agent.Agent{}, err
	}
	slog.InfoContext(ctx, "agent status changed", "agent_id", id, "status", a.Status)
	s.announce(ctx, a)
	return a, nil
}

// Reserve picks the best agent for deviceHint and takes one of its chat
// slots in a single step. It reports false when nobody is eligible.
func (s *AgentService) Reserve(ctx context.Context, deviceHint string) (agent.Agent, bool, error) {
	a, ok, err := s.store.Reserve(ctx, deviceHint)
	if err != nil {
		return agent.Agent{}, false, fmt.Errorf("reserve agent: %w", err)
	}
	if ok {
		s.announce(ctx, a)
	}
	return a, ok, nil
}

// Claim takes one chat slot of a specific agent.
func (s *AgentService) Claim(ctx context.Context, id string) (agent.Agent, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return agent.Agent{}, err
	}
	ok, err := s.store.IncrementActiveChats(ctx, id)
	if err != nil {
		return agent.Agent{}, fmt.Errorf("claim chat for agent %s: %w", id, err)
	}
	if !ok {
		return agent.Agent{}, fmt.Errorf("agent %s is at capacity: %w", id, domain.ErrConflict)
	}
	if fresh, ok := s.announceByID(ctx, id); ok {
		return fresh, nil
	}
	return a, nil
}

// Release frees one chat slot of the agent. Unknown agents are ignored.
func (s *AgentService) Release(ctx context.Context, id string) error {
	if err := s.store.DecrementActiveChats(ctx, id); err != nil {
		return fmt.Errorf("release chat for agent %s: %w", id, err)
	}
	s.announceByID(ctx, id)
	return nil
}

// announceByID re-reads the agent, announces it and returns the fresh copy.
func (s *AgentService) announceByID(ctx context.Context, id string) (agent.Agent, bool) {
	a, ok, err := s.store.Get(ctx, id)
	if err != nil || !ok {
		return agent.Agent{}, false
	}
	s.announce(ctx, a)
	return a, true
}

func (s *AgentService) announce(ctx context.Context, a agent.Agent) {
	if s.hub == nil {
		return
	}
	err := s.hub.Publish(ctx, notification.RoomAgents, notification.EventAgentStatus, ws.AgentStatusEvent{
		AgentID:     a.ID,
		Name:        a.Name,
		Status:      string(a.Status),
		ActiveChats: a.ActiveChats,
		MaxChats:    a.MaxChats,
	})
	if err != nil && !errors.Is(err, broadcast.ErrNoSubscribers) {
		slog.WarnContext(ctx, "agent status broadcast failed", "agent_id", a.ID, "error", err)
	}
}

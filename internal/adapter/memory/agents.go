// Package memory implements the agent registry, notification store and
// chat store ports in process memory. State is lost on restart and is not
// shared between instances.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Strob0t/RepairDesk/internal/domain/agent"
)

// AgentStore is a mutex-guarded agent registry.
type AgentStore struct {
	mu       sync.Mutex
	agents   map[string]*agent.Agent
	order    []string // registration order, for stable snapshots and tie breaking
	maxChats int
	now      func() time.Time // for testing
}

// NewAgentStore creates an empty registry. maxChats is the capacity given
// to agents when they come online.
func NewAgentStore(maxChats int) *AgentStore {
	if maxChats < 1 {
		maxChats = agent.DefaultMaxChats
	}
	return &AgentStore{
		agents:   make(map[string]*agent.Agent),
		maxChats: maxChats,
		now:      time.Now,
	}
}

// SetAvailable registers or overwrites an agent as available.
func (s *AgentStore) SetAvailable(_ context.Context, id string, info agent.Info) (agent.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := agent.New(id, info, s.maxChats, s.now())
	if _, exists := s.agents[id]; !exists {
		s.order = append(s.order, id)
	}
	s.agents[id] = &a
	return a.Clone(), nil
}

// UpdateStatus changes an agent's presence. Unknown ids are ignored.
func (s *AgentStore) UpdateStatus(_ context.Context, id string, status agent.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a, ok := s.agents[id]; ok {
		a.SetStatus(status, s.now())
	}
	return nil
}

// IncrementActiveChats takes one chat for the agent.
func (s *AgentStore) IncrementActiveChats(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.agents[id]
	if !ok {
		return false, nil
	}
	return a.Increment(s.now()), nil
}

// DecrementActiveChats releases one chat for the agent.
func (s *AgentStore) DecrementActiveChats(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a, ok := s.agents[id]; ok {
		a.Decrement(s.now())
	}
	return nil
}

// List returns a copy of every agent in registration order.
func (s *AgentStore) List(_ context.Context) ([]agent.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(), nil
}

// Get returns a copy of one agent.
func (s *AgentStore) Get(_ context.Context, id string) (agent.Agent, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.agents[id]
	if !ok {
		return agent.Agent{}, false, nil
	}
	return a.Clone(), true, nil
}

// Reserve selects and increments the best agent under a single lock.
func (s *AgentStore) Reserve(_ context.Context, deviceHint string) (agent.Agent, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := agent.Select(s.snapshot(), deviceHint)
	if !ok {
		return agent.Agent{}, false, nil
	}
	a := s.agents[id]
	if !a.Increment(s.now()) {
		return agent.Agent{}, false, nil
	}
	return a.Clone(), true, nil
}

// snapshot must be called with s.mu held.
func (s *AgentStore) snapshot() []agent.Agent {
	out := make([]agent.Agent, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.agents[id].Clone())
	}
	return out
}

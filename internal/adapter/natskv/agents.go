package natskv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/RepairDesk/internal/domain/agent"
)

// rosterKey holds the whole roster as one JSON document. Selection needs
// every agent at once, so a single revision guards select-and-reserve.
const rosterKey = "roster"

// AgentStore is an agent registry stored in a KV bucket and updated with
// compare-and-set on the bucket revision.
type AgentStore struct {
	kv       jetstream.KeyValue
	maxChats int
	now      func() time.Time
}

// NewAgentStore creates a KV-backed registry.
func NewAgentStore(kv jetstream.KeyValue, maxChats int) *AgentStore {
	if maxChats < 1 {
		maxChats = agent.DefaultMaxChats
	}
	return &AgentStore{kv: kv, maxChats: maxChats, now: time.Now}
}

// roster is the stored document. Agents are kept in registration order.
type roster struct {
	Agents []agent.Agent `json:"agents"`
}

func (r *roster) find(id string) *agent.Agent {
	for i := range r.Agents {
		if r.Agents[i].ID == id {
			return &r.Agents[i]
		}
	}
	return nil
}

func decodeRoster(raw []byte) (roster, error) {
	var r roster
	if len(raw) == 0 {
		return r, nil
	}
	if err := json.Unmarshal(raw, &r); err != nil {
		return r, fmt.Errorf("decode roster: %w", err)
	}
	return r, nil
}

// modify applies fn to the stored roster under CAS. fn reports whether it
// changed anything; unchanged rosters are not written back.
func (s *AgentStore) modify(ctx context.Context, fn func(r *roster) bool) error {
	return casUpdate(ctx, s.kv, rosterKey, func(current []byte) ([]byte, error) {
		r, err := decodeRoster(current)
		if err != nil {
			return nil, err
		}
		if !fn(&r) {
			return nil, nil
		}
		return json.Marshal(r)
	})
}

func (s *AgentStore) load(ctx context.Context) (roster, error) {
	entry, err := s.kv.Get(ctx, rosterKey)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return roster{}, nil
		}
		return roster{}, fmt.Errorf("kv get %s: %w", rosterKey, err)
	}
	return decodeRoster(entry.Value())
}

// SetAvailable registers or overwrites an agent as available.
func (s *AgentStore) SetAvailable(ctx context.Context, id string, info agent.Info) (agent.Agent, error) {
	var out agent.Agent
	err := s.modify(ctx, func(r *roster) bool {
		out = agent.New(id, info, s.maxChats, s.now())
		if a := r.find(id); a != nil {
			*a = out
		} else {
			r.Agents = append(r.Agents, out)
		}
		return true
	})
	if err != nil {
		return agent.Agent{}, err
	}
	return out.Clone(), nil
}

// UpdateStatus changes an agent's presence. Unknown ids are ignored.
func (s *AgentStore) UpdateStatus(ctx context.Context, id string, status agent.Status) error {
	return s.modify(ctx, func(r *roster) bool {
		a := r.find(id)
		if a == nil {
			return false
		}
		a.SetStatus(status, s.now())
		return true
	})
}

// IncrementActiveChats takes one chat for the agent.
func (s *AgentStore) IncrementActiveChats(ctx context.Context, id string) (bool, error) {
	var ok bool
	err := s.modify(ctx, func(r *roster) bool {
		ok = false
		if a := r.find(id); a != nil {
			ok = a.Increment(s.now())
		}
		return ok
	})
	if err != nil {
		return false, err
	}
	return ok, nil
}

// DecrementActiveChats releases one chat for the agent.
func (s *AgentStore) DecrementActiveChats(ctx context.Context, id string) error {
	return s.modify(ctx, func(r *roster) bool {
		a := r.find(id)
		if a == nil {
			return false
		}
		a.Decrement(s.now())
		return true
	})
}

// List returns every agent in registration order.
func (s *AgentStore) List(ctx context.Context) ([]agent.Agent, error) {
	r, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	if r.Agents == nil {
		return []agent.Agent{}, nil
	}
	return r.Agents, nil
}

// Get returns one agent.
func (s *AgentStore) Get(ctx context.Context, id string) (agent.Agent, bool, error) {
	r, err := s.load(ctx)
	if err != nil {
		return agent.Agent{}, false, err
	}
	if a := r.find(id); a != nil {
		return *a, true, nil
	}
	return agent.Agent{}, false, nil
}

// Reserve selects and increments the best agent in one CAS round. A lost
// race re-runs the selection against the winner's state.
func (s *AgentStore) Reserve(ctx context.Context, deviceHint string) (agent.Agent, bool, error) {
	var (
		picked agent.Agent
		ok     bool
	)
	err := s.modify(ctx, func(r *roster) bool {
		ok = false
		id, found := agent.Select(r.Agents, deviceHint)
		if !found {
			return false
		}
		a := r.find(id)
		if !a.Increment(s.now()) {
			return false
		}
		picked, ok = a.Clone(), true
		return true
	})
	if err != nil {
		return agent.Agent{}, false, err
	}
	return picked, ok, nil
}

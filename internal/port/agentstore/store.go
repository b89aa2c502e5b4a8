// Package agentstore defines the port for the agent presence and load registry.
package agentstore

import (
	"context"

	"github.com/Strob0t/RepairDesk/internal/domain/agent"
)

// Store holds agent presence and live load counters.
//
// Operations on unknown agent ids are silent no-ops; errors are returned
// only when a shared backend cannot be reached.
type Store interface {
	// SetAvailable registers or overwrites an agent as available with no active chats.
	SetAvailable(ctx context.Context, id string, info agent.Info) (agent.Agent, error)

	// UpdateStatus changes an agent's presence and refreshes LastSeen.
	UpdateStatus(ctx context.Context, id string, status agent.Status) error

	// IncrementActiveChats takes one chat for the agent. It reports false
	// when the agent is unknown or already at capacity.
	IncrementActiveChats(ctx context.Context, id string) (bool, error)

	// DecrementActiveChats releases one chat for the agent.
	DecrementActiveChats(ctx context.Context, id string) error

	// List returns a snapshot copy of all agents in registration order.
	List(ctx context.Context) ([]agent.Agent, error)

	// Get returns a copy of one agent.
	Get(ctx context.Context, id string) (agent.Agent, bool, error)

	// Reserve atomically selects the best agent for deviceHint (see
	// agent.Select) and increments its load. It reports false when no
	// agent is eligible.
	Reserve(ctx context.Context, deviceHint string) (agent.Agent, bool, error)
}

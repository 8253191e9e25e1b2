// internal/agents/agent.go
package agents

import (
	"context"
	"fmt"
	"sync"
)

// Input carries everything an agent may consume for one invocation. Lookups
// performed by agents are always tenant-scoped.
type Input struct {
	TenantID   string                 `json:"tenantId"`
	Query      string                 `json:"query"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

// Output is the partial analytical result produced by one agent.
type Output struct {
	Data       map[string]interface{} `json:"data"`
	Confidence float64                `json:"confidence"` // [0,1]
}

// Agent is a specialized computation unit (pricing, sentiment, forecast).
type Agent interface {
	ID() string
	Execute(ctx context.Context, input Input) (*Output, error)
}

// Registry holds the process's agents in registration order.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]Agent
	order  []string
}

func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]Agent)}
}

func (r *Registry) Register(a Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[a.ID()]; exists {
		return fmt.Errorf("agent %q already registered", a.ID())
	}
	r.agents[a.ID()] = a
	r.order = append(r.order, a.ID())
	return nil
}

func (r *Registry) Get(id string) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	return a, ok
}

// IDs returns agent ids in registration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

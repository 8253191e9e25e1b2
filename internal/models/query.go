// internal/models/query.go
package models

import "time"

// ExecutionMode selects which SLA and admission path a request takes.
type ExecutionMode string

const (
	ModeQuick ExecutionMode = "quick"
	ModeDeep  ExecutionMode = "deep"
)

// Priority tiers for the backpressure queue.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// QueryRequest is created at ingress and immutable afterwards.
type QueryRequest struct {
	ID            string        `json:"id"`
	TenantID      string        `json:"tenantId"`
	Text          string        `json:"text"`
	Priority      Priority      `json:"priority"`
	RequestedMode ExecutionMode `json:"requestedMode,omitempty"`
	ReceivedAt    time.Time     `json:"receivedAt"`
}

// RoutingDecision is derived deterministically from a QueryRequest.
// It is never persisted.
type RoutingDecision struct {
	Mode              ExecutionMode `json:"mode"`
	RequiredAgents    []string      `json:"requiredAgents"`
	CacheKey          string        `json:"cacheKey"`
	EstimatedDuration time.Duration `json:"estimatedDuration"`
	MatchedRules      []string      `json:"matchedRules,omitempty"`
}

// AgentTask is one unit of work inside an ExecutionPlan.
type AgentTask struct {
	AgentID    string                 `json:"agentId"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
	Timeout    time.Duration          `json:"timeout"`
	Required   bool                   `json:"required"`
}

// ExecutionPlan is the single tagged plan shape consumed by the coordinator.
// Invariant: every agent id in ParallelGroups appears exactly once in Tasks.
type ExecutionPlan struct {
	Tasks             []AgentTask   `json:"tasks"`
	ParallelGroups    [][]string    `json:"parallelGroups"`
	Mode              ExecutionMode `json:"mode"`
	EstimatedDuration time.Duration `json:"estimatedDuration"`
}

// Task returns the task for an agent id, or nil if the plan does not carry it.
func (p *ExecutionPlan) Task(agentID string) *AgentTask {
	for i := range p.Tasks {
		if p.Tasks[i].AgentID == agentID {
			return &p.Tasks[i]
		}
	}
	return nil
}

// FallbackStrategy records the recovery action taken for a failed agent.
type FallbackStrategy string

const (
	FallbackNone     FallbackStrategy = ""
	FallbackUseCache FallbackStrategy = "use_cache"
	FallbackRetry    FallbackStrategy = "retry"
	FallbackSkip     FallbackStrategy = "skip"
)

// AgentResult is produced once per task per execution attempt. A retry never
// mutates an existing result; it creates a new one.
type AgentResult struct {
	AgentID       string                 `json:"agentId"`
	Success       bool                   `json:"success"`
	Data          map[string]interface{} `json:"data,omitempty"`
	Error         string                 `json:"error,omitempty"`
	ErrorCode     string                 `json:"errorCode,omitempty"`
	Recoverable   bool                   `json:"recoverable"`
	Fallback      FallbackStrategy       `json:"fallback,omitempty"`
	FromCache     bool                   `json:"fromCache,omitempty"`
	ExecutionTime time.Duration          `json:"executionTime"`
	Confidence    float64                `json:"confidence"`
}

// QueuedRequest lives from enqueue until dequeue plus completion.
type QueuedRequest struct {
	Request    *QueryRequest `json:"request"`
	Priority   Priority      `json:"priority"`
	EnqueuedAt time.Time     `json:"enqueuedAt"`
}

// QueuePosition is returned to the caller on enqueue. Quick-mode requests
// always report position 0 with zero wait.
type QueuePosition struct {
	Position      int           `json:"position"`
	EstimatedWait time.Duration `json:"estimatedWait"`
}

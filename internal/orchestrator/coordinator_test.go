// internal/orchestrator/coordinator_test.go
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insight-orchestrator/internal/agents"
	"insight-orchestrator/internal/cache"
	stderrors "insight-orchestrator/internal/common/errors"
	"insight-orchestrator/internal/common/logger"
	"insight-orchestrator/internal/models"
	"insight-orchestrator/pkg/registry"
)

// ==========================
// Test Helper Functions
// ==========================

// fakeAgent is a scriptable agent: each Execute call consumes the next
// scripted step.
type fakeAgent struct {
	id    string
	delay time.Duration

	mu    sync.Mutex
	calls int
	steps []fakeStep
}

type fakeStep struct {
	output *agents.Output
	err    error
}

func (f *fakeAgent) ID() string { return f.id }

func (f *fakeAgent) Execute(ctx context.Context, _ agents.Input) (*agents.Output, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	step := fakeStep{output: &agents.Output{Data: map[string]interface{}{"ok": true}, Confidence: 0.9}}
	if f.calls < len(f.steps) {
		step = f.steps[f.calls]
	}
	f.calls++
	return step.output, step.err
}

func (f *fakeAgent) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestCoordinator(t *testing.T, reg *agents.Registry, opts ...CoordinatorOption) (*Coordinator, *cache.Cache) {
	t.Helper()
	c := cache.New(nil, cache.DefaultTTLs(), logger.NewTestLogger(t))
	coord := NewCoordinator(reg, registry.Default(), c, 8, 120*time.Second, 600*time.Second, logger.NewTestLogger(t), opts...)
	return coord, c
}

func singleGroupPlan(timeout time.Duration, required map[string]bool, agentIDs ...string) models.ExecutionPlan {
	tasks := make([]models.AgentTask, 0, len(agentIDs))
	for _, id := range agentIDs {
		tasks = append(tasks, models.AgentTask{
			AgentID:  id,
			Timeout:  timeout,
			Required: required[id],
		})
	}
	return models.ExecutionPlan{
		Tasks:          tasks,
		ParallelGroups: [][]string{agentIDs},
		Mode:           models.ModeDeep,
	}
}

// ==========================
// Core Functionality Tests
// ==========================

func TestCoordinator_GroupRunsInParallel(t *testing.T) {
	reg := agents.NewRegistry()
	for _, id := range []string{"pricing", "sentiment", "forecast"} {
		require.NoError(t, reg.Register(&fakeAgent{id: id, delay: 100 * time.Millisecond}))
	}
	coord, _ := newTestCoordinator(t, reg)

	plan := singleGroupPlan(time.Second, nil, "pricing", "sentiment", "forecast")
	req := newRequest("r1", models.PriorityNormal)

	start := time.Now()
	results, err := coord.Execute(context.Background(), req, &plan)
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.True(t, r.Success, r.AgentID)
	}
	assert.Less(t, elapsed, 250*time.Millisecond,
		"three 100ms agents in one group must overlap, not run back to back")
}

func TestCoordinator_ResultsKeepGroupOrder(t *testing.T) {
	reg := agents.NewRegistry()
	require.NoError(t, reg.Register(&fakeAgent{id: "pricing", delay: 80 * time.Millisecond}))
	require.NoError(t, reg.Register(&fakeAgent{id: "sentiment", delay: 10 * time.Millisecond}))
	coord, _ := newTestCoordinator(t, reg)

	plan := singleGroupPlan(time.Second, nil, "pricing", "sentiment")
	results, err := coord.Execute(context.Background(), newRequest("r1", models.PriorityNormal), &plan)

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "pricing", results[0].AgentID)
	assert.Equal(t, "sentiment", results[1].AgentID)
}

// ==========================
// Fallback Tests
// ==========================

func TestCoordinator_TimeoutFallsBackToCache(t *testing.T) {
	reg := agents.NewRegistry()
	require.NoError(t, reg.Register(&fakeAgent{id: "pricing", delay: 500 * time.Millisecond}))
	coord, c := newTestCoordinator(t, reg)

	req := newRequest("r1", models.PriorityNormal)
	cached := agents.Output{
		Data:       map[string]interface{}{"averageGap": 12.5},
		Confidence: 0.9,
	}
	require.NoError(t, c.Set(context.Background(), cache.CategoryPricing, req.TenantID, "pricing", cached))

	plan := singleGroupPlan(50*time.Millisecond, nil, "pricing")
	results, err := coord.Execute(context.Background(), req, &plan)

	require.NoError(t, err)
	require.Len(t, results, 1)
	r := results[0]
	assert.True(t, r.Success)
	assert.True(t, r.FromCache)
	assert.Equal(t, models.FallbackUseCache, r.Fallback)
	assert.Equal(t, 12.5, r.Data["averageGap"])
	assert.LessOrEqual(t, r.Confidence, 0.5, "cache-served results carry degraded confidence")
}

func TestCoordinator_TimeoutWithoutCacheFailsRecoverably(t *testing.T) {
	reg := agents.NewRegistry()
	require.NoError(t, reg.Register(&fakeAgent{id: "pricing", delay: 500 * time.Millisecond}))
	coord, _ := newTestCoordinator(t, reg)

	plan := singleGroupPlan(50*time.Millisecond, map[string]bool{"pricing": true}, "pricing")
	results, err := coord.Execute(context.Background(), newRequest("r1", models.PriorityNormal), &plan)

	require.NoError(t, err)
	require.Len(t, results, 1)
	r := results[0]
	assert.False(t, r.Success)
	assert.True(t, r.Recoverable)
	assert.Equal(t, string(stderrors.ErrCodeTimeoutExceeded), r.ErrorCode)
	assert.Equal(t, models.FallbackUseCache, r.Fallback)
}

func TestCoordinator_CriticalFailureRetriesOnce(t *testing.T) {
	agent := &fakeAgent{
		id: "pricing",
		steps: []fakeStep{
			{err: errors.New("transient store hiccup")},
			{output: &agents.Output{Data: map[string]interface{}{"averageGap": 3.0}, Confidence: 0.8}},
		},
	}
	reg := agents.NewRegistry()
	require.NoError(t, reg.Register(agent))
	coord, _ := newTestCoordinator(t, reg)

	plan := singleGroupPlan(time.Second, map[string]bool{"pricing": true}, "pricing")
	results, err := coord.Execute(context.Background(), newRequest("r1", models.PriorityNormal), &plan)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 2, agent.callCount())
	r := results[0]
	assert.True(t, r.Success)
	assert.Equal(t, models.FallbackRetry, r.Fallback)
	assert.Equal(t, 3.0, r.Data["averageGap"])
}

func TestCoordinator_CriticalFailureTwiceReportsFinalAttempt(t *testing.T) {
	agent := &fakeAgent{
		id: "pricing",
		steps: []fakeStep{
			{err: errors.New("first failure")},
			{err: errors.New("second failure")},
		},
	}
	reg := agents.NewRegistry()
	require.NoError(t, reg.Register(agent))
	coord, _ := newTestCoordinator(t, reg)

	plan := singleGroupPlan(time.Second, map[string]bool{"pricing": true}, "pricing")
	results, err := coord.Execute(context.Background(), newRequest("r1", models.PriorityNormal), &plan)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 2, agent.callCount(), "exactly one retry")
	r := results[0]
	assert.False(t, r.Success)
	assert.Equal(t, models.FallbackRetry, r.Fallback)
	assert.Contains(t, r.Error, "second failure", "only the final attempt is reported")
}

func TestCoordinator_OptionalFailureIsSkipped(t *testing.T) {
	agent := &fakeAgent{
		id:    "forecast",
		steps: []fakeStep{{err: errors.New("no sales data")}},
	}
	reg := agents.NewRegistry()
	require.NoError(t, reg.Register(agent))
	coord, _ := newTestCoordinator(t, reg)

	plan := singleGroupPlan(time.Second, nil, "forecast")
	results, err := coord.Execute(context.Background(), newRequest("r1", models.PriorityNormal), &plan)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, agent.callCount(), "optional agents are never retried")
	r := results[0]
	assert.False(t, r.Success)
	assert.Equal(t, models.FallbackSkip, r.Fallback)
}

func TestCoordinator_SuccessfulRunIsWrittenThrough(t *testing.T) {
	reg := agents.NewRegistry()
	require.NoError(t, reg.Register(&fakeAgent{id: "pricing"}))
	coord, c := newTestCoordinator(t, reg)

	req := newRequest("r1", models.PriorityNormal)
	plan := singleGroupPlan(time.Second, nil, "pricing")
	_, err := coord.Execute(context.Background(), req, &plan)
	require.NoError(t, err)

	_, found, err := c.Get(context.Background(), cache.CategoryPricing, req.TenantID, "pricing")
	require.NoError(t, err)
	assert.True(t, found, "successful runs feed the timeout fallback")
}

// ==========================
// Budget Tests
// ==========================

func TestCoordinator_BudgetExhaustionAbandonsRemainingGroups(t *testing.T) {
	reg := agents.NewRegistry()
	require.NoError(t, reg.Register(&fakeAgent{id: "pricing"}))
	require.NoError(t, reg.Register(&fakeAgent{id: "sentiment"}))

	// The clock jumps past the deep budget after the first group's budget
	// check, so the second group never starts.
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	calls := 0
	clock := func() time.Time {
		calls++
		if calls <= 2 { // start + first group check
			return base
		}
		return base.Add(601 * time.Second)
	}

	c := cache.New(nil, cache.DefaultTTLs(), logger.NewTestLogger(t))
	coord := NewCoordinator(reg, registry.Default(), c, 8, 120*time.Second, 600*time.Second,
		logger.NewTestLogger(t), WithCoordinatorClock(clock))

	plan := models.ExecutionPlan{
		Tasks: []models.AgentTask{
			{AgentID: "pricing", Timeout: time.Second},
			{AgentID: "sentiment", Timeout: time.Second},
		},
		ParallelGroups: [][]string{{"pricing"}, {"sentiment"}},
		Mode:           models.ModeDeep,
	}

	results, err := coord.Execute(context.Background(), newRequest("r1", models.PriorityNormal), &plan)

	require.Error(t, err)
	var stdErr *stderrors.StandardError
	require.True(t, errors.As(err, &stdErr))
	assert.Equal(t, stderrors.ErrCodeResourceLimitExceeded, stdErr.Code)
	assert.True(t, stderrors.SuggestsModeDowngrade(stdErr.Code))

	require.Len(t, results, 1, "partial results from completed groups are returned")
	assert.Equal(t, "pricing", results[0].AgentID)
}

func TestCoordinator_UnregisteredAgentYieldsResult(t *testing.T) {
	reg := agents.NewRegistry()
	coord, _ := newTestCoordinator(t, reg)

	plan := singleGroupPlan(time.Second, nil, "pricing")
	results, err := coord.Execute(context.Background(), newRequest("r1", models.PriorityNormal), &plan)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.NotEmpty(t, results[0].Error)
}

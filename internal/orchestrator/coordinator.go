// internal/orchestrator/coordinator.go
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"insight-orchestrator/internal/agents"
	"insight-orchestrator/internal/cache"
	stderrors "insight-orchestrator/internal/common/errors"
	"insight-orchestrator/internal/common/logger"
	"insight-orchestrator/internal/common/metrics"
	"insight-orchestrator/internal/models"
	"insight-orchestrator/pkg/registry"
)

// cacheFallbackConfidence is applied when a timed-out agent is answered from
// a previously cached run instead of a fresh execution.
const cacheFallbackConfidence = 0.5

// Coordinator runs an execution plan: groups sequentially in plan order,
// tasks within a group in parallel under a global fan-out cap. Every task
// yields exactly one AgentResult; a retry produces a new result and only the
// final attempt is reported.
type Coordinator struct {
	registry *agents.Registry
	catalog  *registry.AgentCatalog
	cache    *cache.Cache
	logger   logger.Logger

	maxConcurrentAgents int
	quickBudget         time.Duration
	deepBudget          time.Duration

	now func() time.Time
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithCoordinatorClock injects a clock for budget tests.
func WithCoordinatorClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) { c.now = now }
}

func NewCoordinator(
	reg *agents.Registry,
	catalog *registry.AgentCatalog,
	ch *cache.Cache,
	maxConcurrentAgents int,
	quickBudget, deepBudget time.Duration,
	log logger.Logger,
	opts ...CoordinatorOption,
) *Coordinator {
	if maxConcurrentAgents <= 0 {
		maxConcurrentAgents = 8
	}
	c := &Coordinator{
		registry: reg,
		catalog:  catalog,
		cache:    ch,
		logger: log.With(map[string]interface{}{
			"component": "coordinator",
		}),
		maxConcurrentAgents: maxConcurrentAgents,
		quickBudget:         quickBudget,
		deepBudget:          deepBudget,
		now:                 time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute runs the plan for one request. The wall-clock budget for the
// request's mode is checked between groups; when it is exhausted the
// remaining groups are abandoned and the partial results are returned
// alongside a resource-limit error. Results within a group are reported in
// group declaration order regardless of completion order.
func (c *Coordinator) Execute(ctx context.Context, req *models.QueryRequest, plan *models.ExecutionPlan) ([]models.AgentResult, error) {
	budget := c.quickBudget
	if plan.Mode == models.ModeDeep {
		budget = c.deepBudget
	}
	start := c.now()

	sem := make(chan struct{}, c.maxConcurrentAgents)
	var results []models.AgentResult

	for gi, group := range plan.ParallelGroups {
		if elapsed := c.now().Sub(start); elapsed >= budget {
			c.logger.Warn("wall-clock budget exhausted, abandoning remaining groups", map[string]interface{}{
				"requestId":       req.ID,
				"tenantId":        req.TenantID,
				"elapsed":         elapsed.String(),
				"budget":          budget.String(),
				"remainingGroups": len(plan.ParallelGroups) - gi,
			})
			return results, stderrors.NewResourceLimitExceededError(elapsed, budget)
		}

		groupResults := make([]models.AgentResult, len(group))
		var wg sync.WaitGroup
		for i, agentID := range group {
			task := plan.Task(agentID)
			if task == nil {
				groupResults[i] = models.AgentResult{
					AgentID:   agentID,
					Success:   false,
					Error:     "agent missing from plan tasks",
					ErrorCode: string(stderrors.ErrCodeInternal),
				}
				continue
			}

			wg.Add(1)
			go func(i int, task models.AgentTask) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()
				groupResults[i] = c.runTask(ctx, req, task)
			}(i, *task)
		}
		wg.Wait()

		results = append(results, groupResults...)
	}

	return results, nil
}

// runTask executes one agent with its per-task timeout and applies the
// fallback ladder: timeout tries the cache, a failed critical agent gets one
// retry, a failed optional agent is skipped.
func (c *Coordinator) runTask(ctx context.Context, req *models.QueryRequest, task models.AgentTask) models.AgentResult {
	result := c.attempt(ctx, req, task)

	switch {
	case result.Success:
		c.storeResult(ctx, req, task.AgentID, result)
		return result

	case result.ErrorCode == string(stderrors.ErrCodeTimeoutExceeded):
		if cached, ok := c.cachedResult(ctx, req, task.AgentID); ok {
			cached.Fallback = models.FallbackUseCache
			c.logger.Info("agent timed out, serving cached result", map[string]interface{}{
				"requestId": req.ID,
				"tenantId":  req.TenantID,
				"agentId":   task.AgentID,
			})
			metrics.AgentExecutions.WithLabelValues(task.AgentID, "cache_fallback").Inc()
			return cached
		}
		result.Fallback = models.FallbackUseCache
		result.Recoverable = true
		return result

	case task.Required:
		c.logger.Warn("critical agent failed, retrying once", map[string]interface{}{
			"requestId": req.ID,
			"tenantId":  req.TenantID,
			"agentId":   task.AgentID,
			"error":     result.Error,
		})
		retried := c.attempt(ctx, req, task)
		retried.Fallback = models.FallbackRetry
		if retried.Success {
			c.storeResult(ctx, req, task.AgentID, retried)
		}
		return retried

	default:
		result.Fallback = models.FallbackSkip
		c.logger.Info("optional agent failed, skipping", map[string]interface{}{
			"requestId": req.ID,
			"tenantId":  req.TenantID,
			"agentId":   task.AgentID,
			"error":     result.Error,
		})
		return result
	}
}

// attempt is a single agent execution under the task timeout.
func (c *Coordinator) attempt(ctx context.Context, req *models.QueryRequest, task models.AgentTask) models.AgentResult {
	agent, ok := c.registry.Get(task.AgentID)
	if !ok {
		return models.AgentResult{
			AgentID:   task.AgentID,
			Success:   false,
			Error:     "agent not registered",
			ErrorCode: string(stderrors.ErrCodeInternal),
		}
	}

	taskCtx := ctx
	var cancel context.CancelFunc
	if task.Timeout > 0 {
		taskCtx, cancel = context.WithTimeout(ctx, task.Timeout)
		defer cancel()
	}

	started := time.Now()
	output, err := agent.Execute(taskCtx, agents.Input{
		TenantID:   req.TenantID,
		Query:      req.Text,
		Parameters: task.Parameters,
	})
	elapsed := time.Since(started)
	metrics.AgentDuration.WithLabelValues(task.AgentID).Observe(elapsed.Seconds())

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || taskCtx.Err() == context.DeadlineExceeded {
			metrics.AgentExecutions.WithLabelValues(task.AgentID, "timeout").Inc()
			stdErr := stderrors.NewTimeoutExceededError(task.AgentID, elapsed, task.Timeout)
			return models.AgentResult{
				AgentID:       task.AgentID,
				Success:       false,
				Error:         stdErr.Message,
				ErrorCode:     string(stdErr.Code),
				Recoverable:   true,
				ExecutionTime: elapsed,
			}
		}

		metrics.AgentExecutions.WithLabelValues(task.AgentID, "failure").Inc()
		stdErr := stderrors.AsStandardError(err)
		if stdErr.Code == stderrors.ErrCodeInternal {
			stdErr = stderrors.NewAgentExecutionFailedError(task.AgentID, err)
		}
		return models.AgentResult{
			AgentID:       task.AgentID,
			Success:       false,
			Error:         err.Error(),
			ErrorCode:     string(stdErr.Code),
			Recoverable:   stdErr.Recoverable,
			ExecutionTime: elapsed,
		}
	}

	metrics.AgentExecutions.WithLabelValues(task.AgentID, "success").Inc()
	return models.AgentResult{
		AgentID:       task.AgentID,
		Success:       true,
		Data:          output.Data,
		Confidence:    output.Confidence,
		ExecutionTime: elapsed,
	}
}

// storeResult write-through caches a successful agent output under the
// agent's cache category so later timeouts can fall back to it.
func (c *Coordinator) storeResult(ctx context.Context, req *models.QueryRequest, agentID string, result models.AgentResult) {
	if c.cache == nil {
		return
	}
	category := c.cacheCategory(agentID)
	payload := agents.Output{Data: result.Data, Confidence: result.Confidence}
	if err := c.cache.Set(ctx, category, req.TenantID, agentID, payload); err != nil {
		c.logger.Warn("failed to cache agent result", map[string]interface{}{
			"agentId":  agentID,
			"tenantId": req.TenantID,
			"error":    err.Error(),
		})
	}
}

// cachedResult looks up the last successful run of an agent for this tenant.
func (c *Coordinator) cachedResult(ctx context.Context, req *models.QueryRequest, agentID string) (models.AgentResult, bool) {
	if c.cache == nil {
		return models.AgentResult{}, false
	}
	category := c.cacheCategory(agentID)
	raw, found, err := c.cache.Get(ctx, category, req.TenantID, agentID)
	if err != nil || !found {
		return models.AgentResult{}, false
	}

	var output agents.Output
	if err := json.Unmarshal(raw, &output); err != nil {
		return models.AgentResult{}, false
	}

	confidence := output.Confidence
	if confidence > cacheFallbackConfidence {
		confidence = cacheFallbackConfidence
	}
	return models.AgentResult{
		AgentID:    agentID,
		Success:    true,
		Data:       output.Data,
		Confidence: confidence,
		FromCache:  true,
	}, true
}

func (c *Coordinator) cacheCategory(agentID string) string {
	if spec, ok := c.catalog.Get(agentID); ok && spec.CacheCategory != "" {
		return spec.CacheCategory
	}
	return cache.CategoryQueryResult
}

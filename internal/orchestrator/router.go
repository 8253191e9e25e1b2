// internal/orchestrator/router.go
package orchestrator

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"
	"time"

	"insight-orchestrator/internal/models"
	"insight-orchestrator/pkg/registry"
)

// RouteRule maps query text to the agents that can answer it. Rules are
// evaluated in priority order; every matching rule contributes its agents.
type RouteRule struct {
	Name     string
	Keywords []string
	Patterns []*regexp.Regexp
	Agents   []string
	Mode     models.ExecutionMode
}

func (r RouteRule) matches(normalized string) bool {
	for _, kw := range r.Keywords {
		if strings.Contains(normalized, kw) {
			return true
		}
	}
	for _, p := range r.Patterns {
		if p.MatchString(normalized) {
			return true
		}
	}
	return false
}

// deepTriggers force deep mode regardless of how many agents matched.
var deepTriggers = []string{"comprehensive", "detailed", "full", "in-depth"}

// DefaultRules is the static rule table consulted by the router.
func DefaultRules() []RouteRule {
	return []RouteRule{
		{
			Name:     "pricing",
			Keywords: []string{"price", "pricing", "competitor", "cost", "margin", "undercut"},
			Patterns: []*regexp.Regexp{regexp.MustCompile(`\$\d`)},
			Agents:   []string{"pricing"},
			Mode:     models.ModeQuick,
		},
		{
			Name:     "sentiment",
			Keywords: []string{"review", "sentiment", "feedback", "rating", "satisfaction", "complaint"},
			Agents:   []string{"sentiment"},
			Mode:     models.ModeQuick,
		},
		{
			Name:     "forecast",
			Keywords: []string{"demand", "forecast", "inventory", "stock", "sales trend", "restock"},
			Agents:   []string{"forecast"},
			Mode:     models.ModeQuick,
		},
	}
}

// Router classifies a query into an execution mode and required agent set.
// It is a pure function of its inputs plus the static rule table: identical
// normalized queries by the same tenant over the same agent set always
// produce the same cache key.
type Router struct {
	rules   []RouteRule
	catalog *registry.AgentCatalog
}

func NewRouter(rules []RouteRule, catalog *registry.AgentCatalog) *Router {
	return &Router{rules: rules, catalog: catalog}
}

// Route derives the routing decision for a query. If no rule matches, the
// full agent set with deep mode is the conservative default: capability is
// never silently dropped for unclassified intent.
func (r *Router) Route(queryText, tenantID string, context map[string]interface{}) models.RoutingDecision {
	normalized := normalizeQuery(queryText)

	var agentSet []string
	seen := make(map[string]bool)
	var matched []string

	for _, rule := range r.rules {
		if !rule.matches(normalized) {
			continue
		}
		matched = append(matched, rule.Name)
		for _, id := range rule.Agents {
			if !seen[id] {
				seen[id] = true
				agentSet = append(agentSet, id)
			}
		}
	}

	mode := models.ModeQuick
	if len(agentSet) == 0 {
		// Unclassified intent: run everything, deep.
		agentSet = r.catalog.IDs()
		mode = models.ModeDeep
	} else if hasDeepTrigger(normalized) || len(agentSet) >= 2 {
		mode = models.ModeDeep
	}

	return models.RoutingDecision{
		Mode:              mode,
		RequiredAgents:    agentSet,
		CacheKey:          CacheKey(tenantID, queryText, agentSet),
		EstimatedDuration: r.estimate(agentSet),
		MatchedRules:      matched,
	}
}

// BuildPlan expands a routing decision into the single tagged plan shape the
// coordinator consumes. Agents are mutually independent, so they share one
// parallel group.
func (r *Router) BuildPlan(decision models.RoutingDecision, params map[string]interface{}) models.ExecutionPlan {
	tasks := make([]models.AgentTask, 0, len(decision.RequiredAgents))
	group := make([]string, 0, len(decision.RequiredAgents))

	for _, id := range decision.RequiredAgents {
		spec, _ := r.catalog.Get(id)
		tasks = append(tasks, models.AgentTask{
			AgentID:    id,
			Parameters: params,
			Timeout:    spec.TimeoutDuration(),
			Required:   spec.Critical,
		})
		group = append(group, id)
	}

	return models.ExecutionPlan{
		Tasks:             tasks,
		ParallelGroups:    [][]string{group},
		Mode:              decision.Mode,
		EstimatedDuration: decision.EstimatedDuration,
	}
}

// estimate is the wall-clock estimate for one parallel group: the slowest
// member dominates.
func (r *Router) estimate(agentIDs []string) time.Duration {
	var max time.Duration
	for _, id := range agentIDs {
		spec, ok := r.catalog.Get(id)
		if !ok {
			continue
		}
		if d := spec.EstimateDuration(); d > max {
			max = d
		}
	}
	return max
}

func normalizeQuery(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}

func hasDeepTrigger(normalized string) bool {
	for _, t := range deepTriggers {
		if strings.Contains(normalized, t) {
			return true
		}
	}
	return false
}

// CacheKey is the stable hash of (tenant, normalized query, sorted agent
// ids). Determinism is a correctness requirement: the same inputs must
// always produce the same key.
func CacheKey(tenantID, queryText string, agentIDs []string) string {
	sorted := make([]string, len(agentIDs))
	copy(sorted, agentIDs)
	sort.Strings(sorted)

	h := sha256.New()
	h.Write([]byte(tenantID))
	h.Write([]byte{0})
	h.Write([]byte(normalizeQuery(queryText)))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(sorted, ",")))
	return hex.EncodeToString(h.Sum(nil))
}

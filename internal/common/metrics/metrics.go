// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QueriesRouted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_queries_routed_total",
			Help: "Total number of queries routed by execution mode",
		},
		[]string{"mode"},
	)

	AgentExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_agent_executions_total",
			Help: "Total number of agent executions by agent and outcome",
		},
		[]string{"agent_id", "outcome"},
	)

	AgentDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "orchestrator_agent_duration_seconds",
			Help: "Duration of agent executions in seconds",
		},
		[]string{"agent_id"},
	)

	CacheOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_cache_operations_total",
			Help: "Cache lookups by category and result (hit, miss, stale)",
		},
		[]string{"category", "result"},
	)

	CacheInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_cache_invalidations_total",
			Help: "Cache entries invalidated by event type",
		},
		[]string{"event_type"},
	)

	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "orchestrator_queue_depth",
			Help: "Number of queued deep-mode requests per priority tier",
		},
		[]string{"tier"},
	)

	DeepExecutionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "orchestrator_deep_executions_active",
			Help: "Number of deep-mode executions currently running",
		},
	)

	SLAViolations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_sla_violations_total",
			Help: "SLA hard-timeout violations by mode",
		},
		[]string{"mode"},
	)
)

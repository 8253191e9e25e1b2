// internal/orchestrator/sla.go
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"insight-orchestrator/internal/common/alert"
	"insight-orchestrator/internal/common/config"
	"insight-orchestrator/internal/common/logger"
	"insight-orchestrator/internal/common/metrics"
	"insight-orchestrator/internal/models"
)

// throughputWindow is the sliding window used for throughput reporting.
const throughputWindow = time.Minute

// SLAHandle tracks one in-flight execution from start to completion.
type SLAHandle struct {
	ID        string
	TenantID  string
	Mode      models.ExecutionMode
	StartedAt time.Time
}

// Violation describes one SLA breach, hard or soft.
type Violation struct {
	Kind      string               `json:"kind"` // "timeout" or "target"
	TenantID  string               `json:"tenantId"`
	Mode      models.ExecutionMode `json:"mode"`
	Elapsed   string               `json:"elapsed"`
	Threshold string               `json:"threshold"`
	At        time.Time            `json:"at"`
}

type completion struct {
	at      time.Time
	mode    models.ExecutionMode
	success bool
}

// SLAMonitor enforces per-mode hard timeouts and soft targets. A hard breach
// raises an alert; a soft breach only logs. Completed executions feed a
// sliding throughput window that is pruned explicitly, never on a timer.
type SLAMonitor struct {
	cfg       config.SLAConfig
	publisher *alert.Publisher
	logger    logger.Logger
	now       func() time.Time

	mu          sync.Mutex
	inFlight    map[string]*SLAHandle
	completions []completion
	violations  []Violation
}

// SLAOption configures an SLAMonitor.
type SLAOption func(*SLAMonitor)

// WithSLAClock injects a clock for deadline tests.
func WithSLAClock(now func() time.Time) SLAOption {
	return func(m *SLAMonitor) { m.now = now }
}

// NewSLAMonitor creates the monitor. publisher may be nil; violations are
// then recorded and logged but not published.
func NewSLAMonitor(cfg config.SLAConfig, publisher *alert.Publisher, log logger.Logger, opts ...SLAOption) *SLAMonitor {
	m := &SLAMonitor{
		cfg:       cfg,
		publisher: publisher,
		logger: log.With(map[string]interface{}{
			"component": "sla-monitor",
		}),
		now:      time.Now,
		inFlight: make(map[string]*SLAHandle),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start registers an execution and returns its tracking handle.
func (m *SLAMonitor) Start(mode models.ExecutionMode, tenantID string) *SLAHandle {
	h := &SLAHandle{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Mode:      mode,
		StartedAt: m.now(),
	}
	m.mu.Lock()
	m.inFlight[h.ID] = h
	m.mu.Unlock()
	return h
}

// Complete finalizes an execution. The elapsed time is checked against the
// hard timeout and the soft target exactly once, here.
func (m *SLAMonitor) Complete(ctx context.Context, h *SLAHandle, success bool) {
	if h == nil {
		return
	}
	now := m.now()
	elapsed := now.Sub(h.StartedAt)

	m.mu.Lock()
	delete(m.inFlight, h.ID)
	m.completions = append(m.completions, completion{at: now, mode: h.Mode, success: success})
	m.mu.Unlock()

	hard, soft := m.thresholds(h.Mode)

	switch {
	case elapsed >= hard:
		m.recordViolation(ctx, Violation{
			Kind:      "timeout",
			TenantID:  h.TenantID,
			Mode:      h.Mode,
			Elapsed:   elapsed.String(),
			Threshold: hard.String(),
			At:        now,
		})
	case elapsed >= soft:
		m.logger.Warn("execution exceeded soft target", map[string]interface{}{
			"tenantId": h.TenantID,
			"mode":     string(h.Mode),
			"elapsed":  elapsed.String(),
			"target":   soft.String(),
		})
	}
}

// CheckTimeout reports whether an in-flight execution has already blown its
// hard timeout. It does not complete the handle.
func (m *SLAMonitor) CheckTimeout(h *SLAHandle) bool {
	if h == nil {
		return false
	}
	hard, _ := m.thresholds(h.Mode)
	return m.now().Sub(h.StartedAt) >= hard
}

// Deadline returns the absolute hard deadline for a handle.
func (m *SLAMonitor) Deadline(h *SLAHandle) time.Time {
	hard, _ := m.thresholds(h.Mode)
	return h.StartedAt.Add(hard)
}

// Throughput returns completions per mode inside the sliding window ending
// now. Prune is intentionally separate; reading never mutates.
func (m *SLAMonitor) Throughput() map[models.ExecutionMode]int {
	cutoff := m.now().Add(-throughputWindow)

	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[models.ExecutionMode]int)
	for _, c := range m.completions {
		if c.at.After(cutoff) {
			out[c.mode]++
		}
	}
	return out
}

// Violations returns a copy of every recorded violation.
func (m *SLAMonitor) Violations() []Violation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Violation, len(m.violations))
	copy(out, m.violations)
	return out
}

// Prune discards completions older than the sliding window. Callers decide
// when; typically the service loop invokes it periodically.
func (m *SLAMonitor) Prune() int {
	cutoff := m.now().Add(-throughputWindow)

	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.completions[:0]
	removed := 0
	for _, c := range m.completions {
		if c.at.After(cutoff) {
			kept = append(kept, c)
		} else {
			removed++
		}
	}
	m.completions = kept
	return removed
}

func (m *SLAMonitor) recordViolation(ctx context.Context, v Violation) {
	m.mu.Lock()
	m.violations = append(m.violations, v)
	m.mu.Unlock()

	metrics.SLAViolations.WithLabelValues(string(v.Mode)).Inc()
	m.logger.Error("hard SLA timeout violated", map[string]interface{}{
		"tenantId":  v.TenantID,
		"mode":      string(v.Mode),
		"elapsed":   v.Elapsed,
		"threshold": v.Threshold,
	})

	if err := m.publisher.PublishViolation(ctx, "SLA timeout violation", v); err != nil {
		m.logger.Warn("failed to publish SLA violation", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (m *SLAMonitor) thresholds(mode models.ExecutionMode) (hard, soft time.Duration) {
	if mode == models.ModeDeep {
		return time.Duration(m.cfg.DeepTimeout) * time.Second,
			time.Duration(m.cfg.DeepTarget) * time.Second
	}
	return time.Duration(m.cfg.QuickTimeout) * time.Second,
		time.Duration(m.cfg.QuickTarget) * time.Second
}

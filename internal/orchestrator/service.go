// internal/orchestrator/service.go
package orchestrator

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"insight-orchestrator/internal/cache"
	stderrors "insight-orchestrator/internal/common/errors"
	"insight-orchestrator/internal/common/logger"
	"insight-orchestrator/internal/common/metrics"
	"insight-orchestrator/internal/common/observability"
	"insight-orchestrator/internal/models"
)

// QueryResponse is the full answer for one query: the report plus the
// admission facts the caller may surface (queue position, cache provenance).
type QueryResponse struct {
	Report        *models.StructuredReport `json:"report"`
	QueuePosition models.QueuePosition     `json:"queuePosition"`
	Mode          models.ExecutionMode     `json:"mode"`
	FromCache     bool                     `json:"fromCache"`
}

// Service drives the full pipeline: route, admit, execute, synthesize,
// cache, record. One Service instance serves all tenants.
type Service struct {
	router      *Router
	queue       *BackpressureQueue
	coordinator *Coordinator
	synthesizer *Synthesizer
	cache       *cache.Cache
	sla         *SLAMonitor
	history     *History
	obs         *observability.Observability
	logger      logger.Logger

	dispatch *dispatcher
}

func NewService(
	router *Router,
	queue *BackpressureQueue,
	coordinator *Coordinator,
	synthesizer *Synthesizer,
	ch *cache.Cache,
	sla *SLAMonitor,
	history *History,
	obs *observability.Observability,
	log logger.Logger,
) *Service {
	return &Service{
		router:      router,
		queue:       queue,
		coordinator: coordinator,
		synthesizer: synthesizer,
		cache:       ch,
		sla:         sla,
		history:     history,
		obs:         obs,
		logger: log.With(map[string]interface{}{
			"component": "orchestrator",
		}),
		dispatch: newDispatcher(queue),
	}
}

// Run starts the deep-mode dispatcher and blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	s.dispatch.run(ctx)
}

// ProcessQuery executes the pipeline for one request and blocks until the
// report is ready or the request's hard deadline passes. Quick-mode requests
// bypass the queue entirely and report position zero.
func (s *Service) ProcessQuery(ctx context.Context, req *models.QueryRequest) (*QueryResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.ReceivedAt.IsZero() {
		req.ReceivedAt = time.Now().UTC()
	}
	if req.Priority == "" {
		req.Priority = models.PriorityNormal
	}

	decision := s.router.Route(req.Text, req.TenantID, nil)
	if req.RequestedMode != "" {
		decision.Mode = req.RequestedMode
	}
	metrics.QueriesRouted.WithLabelValues(string(decision.Mode)).Inc()

	s.logger.Info("query routed", map[string]interface{}{
		"requestId": req.ID,
		"tenantId":  req.TenantID,
		"mode":      string(decision.Mode),
		"agents":    decision.RequiredAgents,
	})

	// Identical queries by the same tenant over the same agent set resolve to
	// the same key; a fresh entry short-circuits the whole pipeline.
	if report, ok := s.cachedReport(ctx, req.TenantID, decision.CacheKey); ok {
		s.recordOutcome(ctx, decision.Mode, "cache_hit", 0)
		return &QueryResponse{
			Report:    report,
			Mode:      decision.Mode,
			FromCache: true,
		}, nil
	}

	handle := s.sla.Start(decision.Mode, req.TenantID)

	position := models.QueuePosition{}
	if decision.Mode == models.ModeDeep {
		var err error
		position, err = s.awaitAdmission(ctx, req, handle)
		if err != nil {
			s.sla.Complete(ctx, handle, false)
			return nil, err
		}
		defer func() {
			s.queue.Complete(req)
			s.dispatch.kick()
		}()
	}

	plan := s.router.BuildPlan(decision, nil)
	results, execErr := s.coordinator.Execute(ctx, req, &plan)

	report := s.synthesizer.Synthesize(ctx, req, results)
	if execErr != nil {
		stdErr := stderrors.AsStandardError(execErr)
		report.Warnings = append(report.Warnings, stdErr.Message)
		if stderrors.SuggestsModeDowngrade(stdErr.Code) && decision.Mode == models.ModeDeep {
			report.Warnings = append(report.Warnings, stdErr.SuggestedAction)
		}
	}

	if report.Success && execErr == nil {
		s.storeReport(ctx, req.TenantID, decision.CacheKey, report)
	}

	s.history.Append(report)
	s.sla.Complete(ctx, handle, report.Success)

	status := "success"
	if !report.Success {
		status = "failure"
	}
	s.recordOutcome(ctx, decision.Mode, status, time.Since(handle.StartedAt))

	return &QueryResponse{
		Report:        report,
		QueuePosition: position,
		Mode:          decision.Mode,
	}, nil
}

// RecentReports returns a tenant's most recent reports, newest first.
func (s *Service) RecentReports(tenantID string, limit int) []*models.StructuredReport {
	return s.history.Recent(tenantID, limit)
}

// GetReport looks up a single report, scoped to its owning tenant.
func (s *Service) GetReport(tenantID, reportID string) (*models.StructuredReport, bool) {
	return s.history.Get(tenantID, reportID)
}

// CacheMetrics exposes the cache counter snapshot.
func (s *Service) CacheMetrics(ctx context.Context) cache.Metrics {
	return s.cache.Snapshot(ctx)
}

// Throughput exposes the SLA monitor's sliding-window completion counts.
func (s *Service) Throughput() map[models.ExecutionMode]int {
	return s.sla.Throughput()
}

// awaitAdmission enqueues a deep request and blocks until the dispatcher
// grants it a concurrency slot, the hard deadline passes, or ctx ends.
func (s *Service) awaitAdmission(ctx context.Context, req *models.QueryRequest, handle *SLAHandle) (models.QueuePosition, error) {
	ready := s.dispatch.register(req.ID)
	position := s.queue.Enqueue(req)
	s.dispatch.kick()

	s.logger.Info("deep request queued", map[string]interface{}{
		"requestId":     req.ID,
		"tenantId":      req.TenantID,
		"position":      position.Position,
		"estimatedWait": position.EstimatedWait.String(),
	})

	deadline := time.NewTimer(time.Until(s.sla.Deadline(handle)))
	defer deadline.Stop()

	select {
	case <-ready:
		return position, nil
	case <-deadline.C:
		s.withdraw(req, ready)
		budget := s.sla.Deadline(handle).Sub(handle.StartedAt)
		return position, stderrors.NewTimeoutExceededError("queue admission", time.Since(handle.StartedAt), budget)
	case <-ctx.Done():
		s.withdraw(req, ready)
		return position, ctx.Err()
	}
}

// withdraw backs a waiter out of admission. When the dispatcher granted the
// slot in the same instant the waiter gave up, the slot is handed straight
// back so deep capacity never shrinks.
func (s *Service) withdraw(req *models.QueryRequest, ready chan struct{}) {
	if s.dispatch.abandon(req.ID, ready) {
		s.queue.Complete(req)
		s.dispatch.kick()
	}
}

func (s *Service) cachedReport(ctx context.Context, tenantID, cacheKey string) (*models.StructuredReport, bool) {
	raw, found, err := s.cache.Get(ctx, cache.CategoryQueryResult, tenantID, cacheKey)
	if err != nil || !found {
		return nil, false
	}
	var report models.StructuredReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, false
	}
	return &report, true
}

func (s *Service) storeReport(ctx context.Context, tenantID, cacheKey string, report *models.StructuredReport) {
	if err := s.cache.Set(ctx, cache.CategoryQueryResult, tenantID, cacheKey, report); err != nil {
		s.logger.Warn("failed to cache report", map[string]interface{}{
			"tenantId": tenantID,
			"reportId": report.ReportID,
			"error":    err.Error(),
		})
	}
}

func (s *Service) recordOutcome(ctx context.Context, mode models.ExecutionMode, status string, elapsed time.Duration) {
	if s.obs == nil {
		return
	}
	s.obs.RecordQueryProcessed(ctx, string(mode), status)
	if elapsed > 0 {
		s.obs.RecordQueryDuration(ctx, elapsed, string(mode))
	}
}

func validateRequest(req *models.QueryRequest) error {
	if req == nil {
		return stderrors.NewMalformedInputError("request is nil")
	}
	if strings.TrimSpace(req.TenantID) == "" {
		return stderrors.NewMalformedInputError("tenantId is required")
	}
	if strings.Contains(req.TenantID, ":") {
		return stderrors.NewTenantIsolationViolationError(req.TenantID, "")
	}
	if strings.TrimSpace(req.Text) == "" {
		return stderrors.NewQueryUnparseableError("query text is empty")
	}
	switch req.RequestedMode {
	case "", models.ModeQuick, models.ModeDeep:
	default:
		return stderrors.NewMalformedInputError("requestedMode must be quick or deep")
	}
	switch req.Priority {
	case "", models.PriorityHigh, models.PriorityNormal, models.PriorityLow:
	default:
		return stderrors.NewMalformedInputError("priority must be high, normal or low")
	}
	return nil
}

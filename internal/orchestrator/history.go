// internal/orchestrator/history.go
package orchestrator

import (
	"sync"

	"insight-orchestrator/internal/models"
)

// History keeps the most recent reports per tenant, newest first. Retention
// is a hard cap per tenant; appending beyond it drops the oldest report.
type History struct {
	mu        sync.RWMutex
	byTenant  map[string][]*models.StructuredReport
	retention int
}

func NewHistory(retention int) *History {
	if retention <= 0 {
		retention = 50
	}
	return &History{
		byTenant:  make(map[string][]*models.StructuredReport),
		retention: retention,
	}
}

// Append records a report under its owning tenant.
func (h *History) Append(report *models.StructuredReport) {
	h.mu.Lock()
	defer h.mu.Unlock()

	reports := append([]*models.StructuredReport{report}, h.byTenant[report.TenantID]...)
	if len(reports) > h.retention {
		reports = reports[:h.retention]
	}
	h.byTenant[report.TenantID] = reports
}

// Recent returns up to limit reports for a tenant, newest first. limit <= 0
// returns everything retained.
func (h *History) Recent(tenantID string, limit int) []*models.StructuredReport {
	h.mu.RLock()
	defer h.mu.RUnlock()

	reports := h.byTenant[tenantID]
	if limit <= 0 || limit > len(reports) {
		limit = len(reports)
	}
	out := make([]*models.StructuredReport, limit)
	copy(out, reports[:limit])
	return out
}

// Get looks a report up by id for a tenant. Lookups never cross tenants.
func (h *History) Get(tenantID, reportID string) (*models.StructuredReport, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, r := range h.byTenant[tenantID] {
		if r.ReportID == reportID {
			return r, true
		}
	}
	return nil, false
}

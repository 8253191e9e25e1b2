// internal/orchestrator/history_test.go
package orchestrator

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insight-orchestrator/internal/models"
)

func report(tenant, id string) *models.StructuredReport {
	return &models.StructuredReport{ReportID: id, TenantID: tenant}
}

func TestHistory_NewestFirstWithRetentionCap(t *testing.T) {
	h := NewHistory(3)

	for i := 1; i <= 5; i++ {
		h.Append(report("acme", fmt.Sprintf("r%d", i)))
	}

	recent := h.Recent("acme", 0)
	require.Len(t, recent, 3)
	assert.Equal(t, "r5", recent[0].ReportID)
	assert.Equal(t, "r4", recent[1].ReportID)
	assert.Equal(t, "r3", recent[2].ReportID)

	limited := h.Recent("acme", 2)
	require.Len(t, limited, 2)
	assert.Equal(t, "r5", limited[0].ReportID)
}

func TestHistory_TenantScopedLookup(t *testing.T) {
	h := NewHistory(10)
	h.Append(report("acme", "r1"))
	h.Append(report("globex", "r2"))

	got, ok := h.Get("acme", "r1")
	require.True(t, ok)
	assert.Equal(t, "acme", got.TenantID)

	_, ok = h.Get("globex", "r1")
	assert.False(t, ok, "lookups never cross tenants")

	assert.Empty(t, h.Recent("initech", 0))
}

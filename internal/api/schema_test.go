// internal/api/schema_test.go
package api

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stderrors "insight-orchestrator/internal/common/errors"
)

// ==========================
// Body Validation Tests
// ==========================

func TestValidateQueryBody(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{
			name: "minimal valid body",
			body: `{"tenantId":"acme","text":"How are prices trending?"}`,
		},
		{
			name: "all fields",
			body: `{"tenantId":"acme","text":"hi","priority":"high","requestedMode":"deep"}`,
		},
		{
			name:    "missing tenantId",
			body:    `{"text":"hello"}`,
			wantErr: true,
		},
		{
			name:    "missing text",
			body:    `{"tenantId":"acme"}`,
			wantErr: true,
		},
		{
			name:    "tenant with key separator",
			body:    `{"tenantId":"acme:evil","text":"hello"}`,
			wantErr: true,
		},
		{
			name:    "empty text",
			body:    `{"tenantId":"acme","text":""}`,
			wantErr: true,
		},
		{
			name:    "unknown priority",
			body:    `{"tenantId":"acme","text":"hi","priority":"urgent"}`,
			wantErr: true,
		},
		{
			name:    "unknown mode",
			body:    `{"tenantId":"acme","text":"hi","requestedMode":"turbo"}`,
			wantErr: true,
		},
		{
			name:    "unexpected field",
			body:    `{"tenantId":"acme","text":"hi","admin":true}`,
			wantErr: true,
		},
		{
			name:    "not json",
			body:    `tenantId=acme`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateQueryBody([]byte(tt.body))
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			stdErr := stderrors.AsStandardError(err)
			assert.Equal(t, stderrors.ErrCodeMalformedInput, stdErr.Code)
		})
	}
}

func TestValidateQueryBody_ListsEveryViolation(t *testing.T) {
	err := ValidateQueryBody([]byte(`{"tenantId":"","priority":"urgent"}`))
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "text")
	assert.Contains(t, msg, "priority")
}

// ==========================
// Status Mapping Tests
// ==========================

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  *stderrors.StandardError
		want int
	}{
		{name: "query errors are client errors", err: stderrors.NewQueryUnparseableError("?"), want: http.StatusBadRequest},
		{name: "tenant isolation is forbidden", err: stderrors.NewTenantIsolationViolationError("a", "b"), want: http.StatusForbidden},
		{name: "timeout is gateway timeout", err: stderrors.NewTimeoutExceededError("deep", 601*time.Second, 600*time.Second), want: http.StatusGatewayTimeout},
		{name: "agent failure is server error", err: stderrors.NewAgentExecutionFailedError("pricing", errors.New("down")), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

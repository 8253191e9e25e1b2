// internal/agents/sentiment/service_test.go
package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insight-orchestrator/internal/agents"
	"insight-orchestrator/internal/common/logger"
)

// ==========================
// Test Helper Functions
// ==========================

// setupService stands up an httptest server acting as the search backend and
// points a real client at it.
func setupService(t *testing.T, handler http.HandlerFunc) (*Service, *capturedSearch) {
	t.Helper()

	captured := &capturedSearch{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The v8 client rejects responses without the product header.
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		captured.path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&captured.body)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	esClient, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)

	return NewService(LoadConfig(), esClient, logger.NewTestLogger(t)), captured
}

type capturedSearch struct {
	path string
	body map[string]interface{}
}

func searchResult(total int, avg *float64, hits ...reviewDoc) string {
	resp := map[string]interface{}{
		"took": 3,
		"hits": map[string]interface{}{
			"total": map[string]interface{}{"value": total},
			"hits":  hitDocs(hits),
		},
		"aggregations": map[string]interface{}{
			"avg_rating": map[string]interface{}{"value": avg},
		},
	}
	out, _ := json.Marshal(resp)
	return string(out)
}

func hitDocs(docs []reviewDoc) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(docs))
	for _, d := range docs {
		out = append(out, map[string]interface{}{"_source": d})
	}
	return out
}

func avgOf(v float64) *float64 { return &v }

// ==========================
// Aggregation Tests
// ==========================

func TestService_Execute_AggregatesScore(t *testing.T) {
	svc, captured := setupService(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, searchResult(10, avgOf(4.0),
			reviewDoc{ProductID: "SKU-1", Rating: 5, Text: "great"},
			reviewDoc{ProductID: "SKU-2", Rating: 2, Text: "arrived broken"},
			reviewDoc{ProductID: "SKU-2", Rating: 1, Text: "never again"},
		))
	})

	out, err := svc.Execute(context.Background(), agents.Input{TenantID: "acme"})
	require.NoError(t, err)

	assert.InDelta(t, 0.8, out.Data["score"].(float64), 0.001)
	assert.Equal(t, 10, out.Data["sampleSize"])
	assert.Equal(t, 2, out.Data["negativeReviews"])
	assert.Len(t, out.Data["negativeSamples"], 2)
	assert.Empty(t, out.Data["recommendations"], "0.8 sentiment needs no follow-up")
	assert.InDelta(t, 0.6, out.Confidence, 0.001) // 0.4 + 10*0.02

	assert.Equal(t, "/reviews/_search", captured.path)
}

func TestService_Execute_QueryIsTenantScoped(t *testing.T) {
	svc, captured := setupService(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, searchResult(5, avgOf(4.5)))
	})

	_, err := svc.Execute(context.Background(), agents.Input{
		TenantID:   "acme",
		Parameters: map[string]interface{}{"productIds": []string{"SKU-1"}},
	})
	require.NoError(t, err)

	raw, _ := json.Marshal(captured.body)
	assert.Contains(t, string(raw), `"tenant_id":"acme"`)
	assert.Contains(t, string(raw), `"product_id":["SKU-1"]`)
	assert.Contains(t, string(raw), `"avg_rating"`)
}

func TestService_Execute_LowScoreRecommendations(t *testing.T) {
	tests := []struct {
		name      string
		avg       float64
		wantTitle string
		wantLevel string
	}{
		{name: "below 0.4 escalates", avg: 1.5, wantTitle: "Investigate recurring complaints", wantLevel: "high"},
		{name: "below 0.5 follows up", avg: 2.3, wantTitle: "Follow up on negative reviews", wantLevel: "medium"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := setupService(t, func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprint(w, searchResult(6, avgOf(tt.avg)))
			})

			out, err := svc.Execute(context.Background(), agents.Input{TenantID: "acme"})
			require.NoError(t, err)

			recs := out.Data["recommendations"].([]map[string]interface{})
			require.Len(t, recs, 1)
			assert.Equal(t, tt.wantTitle, recs[0]["title"])
			assert.Equal(t, tt.wantLevel, recs[0]["impact"])
		})
	}
}

// ==========================
// Error Handling Tests
// ==========================

func TestService_Execute_TooFewReviews(t *testing.T) {
	svc, _ := setupService(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, searchResult(2, avgOf(4.0)))
	})

	_, err := svc.Execute(context.Background(), agents.Input{TenantID: "acme"})
	assert.ErrorIs(t, err, ErrNoReviewData)
}

func TestService_Execute_MissingAggregation(t *testing.T) {
	svc, _ := setupService(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, searchResult(10, nil))
	})

	_, err := svc.Execute(context.Background(), agents.Input{TenantID: "acme"})
	assert.ErrorIs(t, err, ErrNoReviewData)
}

func TestService_Execute_BackendError(t *testing.T) {
	svc, _ := setupService(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"type":"search_phase_execution_exception"}}`)
	})

	_, err := svc.Execute(context.Background(), agents.Input{TenantID: "acme"})
	assert.ErrorIs(t, err, ErrSentimentQueryFailed)
}

// internal/orchestrator/synthesizer_test.go
package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insight-orchestrator/internal/common/logger"
	"insight-orchestrator/internal/llm"
	"insight-orchestrator/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

type fakeSummarizer struct {
	text string
	err  error
}

func (f *fakeSummarizer) Generate(_ context.Context, _, _ string) (string, llm.Usage, error) {
	return f.text, llm.Usage{}, f.err
}

func newTestSynthesizer(t *testing.T, summarizer Summarizer) *Synthesizer {
	t.Helper()
	return NewSynthesizer(summarizer, logger.NewTestLogger(t),
		WithSynthesizerClock(func() time.Time {
			return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		}))
}

func pricingResult(gaps []float64, avg float64, confidence float64) models.AgentResult {
	return models.AgentResult{
		AgentID: "pricing",
		Success: true,
		Data: map[string]interface{}{
			"gaps":            gaps,
			"averageGap":      avg,
			"overpricedCount": len(gaps),
			"sampleSize":      len(gaps),
			"recommendations": []map[string]interface{}{
				{"title": "Review price list", "impact": "high", "urgency": "medium", "priority": "medium"},
			},
		},
		Confidence: confidence,
	}
}

func sentimentResult(score float64, confidence float64) models.AgentResult {
	return models.AgentResult{
		AgentID: "sentiment",
		Success: true,
		Data: map[string]interface{}{
			"score":           score,
			"sampleSize":      40,
			"negativeReviews": 12,
			"recommendations": []map[string]interface{}{
				{"title": "Respond to negative reviews", "impact": "medium", "urgency": "high", "priority": "high"},
			},
		},
		Confidence: confidence,
	}
}

// ==========================
// Risk Extraction Tests
// ==========================

func TestSynthesizer_ExtractsHighRisks(t *testing.T) {
	s := newTestSynthesizer(t, nil)
	req := newRequest("r1", models.PriorityNormal)

	report := s.Synthesize(context.Background(), req, []models.AgentResult{
		pricingResult([]float64{25, 12}, 18.5, 0.9),
		sentimentResult(0.35, 0.8),
	})

	require.True(t, report.Success)

	var high, medium int
	for _, risk := range report.Risks {
		switch risk.Severity {
		case models.SeverityHigh:
			high++
		case models.SeverityMedium:
			medium++
		}
	}
	assert.Equal(t, 2, high, "25%% gap and 0.35 sentiment are both high risks")
	assert.Equal(t, 1, medium, "12%% gap is a medium risk")

	assert.Len(t, report.KeyMetrics, 2)
	assert.Equal(t, "acme", report.TenantID)
	assert.NotEmpty(t, report.ReportID)
}

func TestSynthesizer_ForecastStockoutRisks(t *testing.T) {
	s := newTestSynthesizer(t, nil)
	req := newRequest("r1", models.PriorityNormal)

	report := s.Synthesize(context.Background(), req, []models.AgentResult{{
		AgentID: "forecast",
		Success: true,
		Data: map[string]interface{}{
			"forecastAverage": 42.0,
			"direction":       "down",
			"stockoutAlerts": []map[string]interface{}{
				{"productId": "SKU-1", "daysOfCover": 2.0, "severity": "critical"},
				{"productId": "SKU-2", "daysOfCover": 5.5, "severity": "high"},
			},
			"recommendations": []map[string]interface{}{
				{"title": "Restock SKU-1", "impact": "high", "urgency": "high", "priority": "high"},
			},
		},
		Confidence: 0.85,
	}})

	require.Len(t, report.Risks, 2)
	assert.Equal(t, models.SeverityCritical, report.Risks[0].Severity)
	assert.Equal(t, models.SeverityHigh, report.Risks[1].Severity)

	require.Len(t, report.KeyMetrics, 1)
	assert.Equal(t, models.TrendDown, report.KeyMetrics[0].Trend)
}

func TestSynthesizer_NegativeReviewCount(t *testing.T) {
	samples := []map[string]interface{}{
		{"productId": "SKU-1", "rating": 1.0, "text": "arrived broken"},
		{"productId": "SKU-2", "rating": 2.0, "text": "slow shipping"},
	}

	tests := []struct {
		name string
		data map[string]interface{}
	}{
		{
			name: "count with separate sample list",
			data: map[string]interface{}{
				"score":           0.7,
				"sampleSize":      10,
				"negativeReviews": 2,
				"negativeSamples": samples,
			},
		},
		{
			name: "legacy envelope carries the sample list in place of the count",
			data: map[string]interface{}{
				"score":           0.7,
				"sampleSize":      10,
				"negativeReviews": samples,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSynthesizer(t, nil)
			report := s.Synthesize(context.Background(), newRequest("r1", models.PriorityNormal), []models.AgentResult{{
				AgentID:    "sentiment",
				Success:    true,
				Data:       tt.data,
				Confidence: 0.8,
			}})

			require.Len(t, report.Insights, 1)
			assert.Contains(t, report.Insights[0].Description, "2 negative review(s)")
		})
	}
}

// ==========================
// Action Ranking Tests
// ==========================

func TestSynthesizer_ActionRanking(t *testing.T) {
	s := newTestSynthesizer(t, nil)
	req := newRequest("r1", models.PriorityNormal)

	result := models.AgentResult{
		AgentID: "pricing",
		Success: true,
		Data: map[string]interface{}{
			"recommendations": []map[string]interface{}{
				{"title": "low everything", "impact": "low", "urgency": "low", "priority": "low"},
				{"title": "high impact", "impact": "high", "urgency": "low", "priority": "low"},
				{"title": "high urgency and priority", "impact": "low", "urgency": "high", "priority": "high"},
			},
		},
		Confidence: 0.8,
	}

	report := s.Synthesize(context.Background(), req, []models.AgentResult{result})

	require.Len(t, report.ActionItems, 3)
	// 2*impact + urgency + priority: high impact = 8, high urgency+priority = 8, low = 4.
	// Ties keep extraction order, so "high impact" stays ahead.
	assert.Equal(t, "high impact", report.ActionItems[0].Title)
	assert.Equal(t, "high urgency and priority", report.ActionItems[1].Title)
	assert.Equal(t, "low everything", report.ActionItems[2].Title)
}

func TestSynthesizer_RankingIsIdempotent(t *testing.T) {
	s := newTestSynthesizer(t, nil)
	req := newRequest("r1", models.PriorityNormal)
	results := []models.AgentResult{
		pricingResult([]float64{25, 12}, 18.5, 0.9),
		sentimentResult(0.35, 0.8),
	}

	first := s.Synthesize(context.Background(), req, results)
	second := s.Synthesize(context.Background(), req, results)

	require.Equal(t, len(first.ActionItems), len(second.ActionItems))
	for i := range first.ActionItems {
		assert.Equal(t, first.ActionItems[i].Title, second.ActionItems[i].Title)
	}
	assert.Equal(t, first.OverallConfidence, second.OverallConfidence)
}

// ==========================
// Confidence Tests
// ==========================

func TestSynthesizer_Confidence(t *testing.T) {
	tests := []struct {
		name    string
		results []models.AgentResult
		want    float64
	}{
		{
			name: "mean of reported confidences times 100",
			results: []models.AgentResult{
				pricingResult(nil, 0, 0.9),
				sentimentResult(0.8, 0.7),
			},
			want: 80,
		},
		{
			name: "unreported confidence defaults to 0.8",
			results: []models.AgentResult{
				{AgentID: "pricing", Success: true, Data: map[string]interface{}{}},
			},
			want: 80,
		},
		{
			name: "failed agents are excluded from the mean",
			results: []models.AgentResult{
				pricingResult(nil, 0, 0.6),
				{AgentID: "sentiment", Success: false, Error: "boom"},
			},
			want: 60,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSynthesizer(t, nil)
			report := s.Synthesize(context.Background(), newRequest("r1", models.PriorityNormal), tt.results)
			assert.InDelta(t, tt.want, report.OverallConfidence, 0.01)
			assert.GreaterOrEqual(t, report.OverallConfidence, 0.0)
			assert.LessOrEqual(t, report.OverallConfidence, 100.0)
		})
	}
}

func TestSynthesizer_AllAgentsFailed(t *testing.T) {
	s := newTestSynthesizer(t, nil)
	report := s.Synthesize(context.Background(), newRequest("r1", models.PriorityNormal), []models.AgentResult{
		{AgentID: "pricing", Success: false, Error: "store down"},
		{AgentID: "sentiment", Success: false, Error: "index down"},
	})

	assert.False(t, report.Success)
	assert.Zero(t, report.OverallConfidence)
	assert.NotEmpty(t, report.ExecutiveSummary)
	assert.NotEmpty(t, report.Warnings)
}

// ==========================
// Warning Tests
// ==========================

func TestSynthesizer_PartialDataWarnings(t *testing.T) {
	s := newTestSynthesizer(t, nil)
	report := s.Synthesize(context.Background(), newRequest("r1", models.PriorityNormal), []models.AgentResult{
		pricingResult(nil, 0, 0.9),
		{AgentID: "forecast", Success: false, Error: "no sales data"},
	})

	require.True(t, report.Success)
	joined := strings.Join(report.Warnings, "\n")
	assert.Contains(t, joined, "forecast")
	assert.Contains(t, joined, "partial data")
}

func TestSynthesizer_CacheServedWarning(t *testing.T) {
	s := newTestSynthesizer(t, nil)
	cached := pricingResult(nil, 0, 0.5)
	cached.FromCache = true

	report := s.Synthesize(context.Background(), newRequest("r1", models.PriorityNormal), []models.AgentResult{cached})

	joined := strings.Join(report.Warnings, "\n")
	assert.Contains(t, joined, "served from cache")
}

// ==========================
// Summary Tests
// ==========================

func TestSynthesizer_RuleBasedSummaryNamesTopActions(t *testing.T) {
	s := newTestSynthesizer(t, nil)
	report := s.Synthesize(context.Background(), newRequest("r1", models.PriorityNormal), []models.AgentResult{
		pricingResult([]float64{25}, 25, 0.9),
	})

	assert.Contains(t, report.ExecutiveSummary, "Review price list")
	assert.Contains(t, report.ExecutiveSummary, "risk")
}

func TestSynthesizer_GeneratedSummaryPreferred(t *testing.T) {
	s := newTestSynthesizer(t, &fakeSummarizer{text: "Generated summary."})
	report := s.Synthesize(context.Background(), newRequest("r1", models.PriorityNormal), []models.AgentResult{
		pricingResult(nil, 0, 0.9),
	})
	assert.Equal(t, "Generated summary.", report.ExecutiveSummary)
}

func TestSynthesizer_SummaryFallsBackOnGenerationFailure(t *testing.T) {
	tests := []struct {
		name       string
		summarizer Summarizer
	}{
		{name: "provider error", summarizer: &fakeSummarizer{err: errors.New("rate limited")}},
		{name: "empty response", summarizer: &fakeSummarizer{text: "   "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSynthesizer(t, tt.summarizer)
			report := s.Synthesize(context.Background(), newRequest("r1", models.PriorityNormal), []models.AgentResult{
				pricingResult([]float64{25}, 25, 0.9),
			})
			assert.Contains(t, report.ExecutiveSummary, "Review price list",
				"rule-based summary must back the generated path")
		})
	}
}

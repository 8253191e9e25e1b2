// internal/orchestrator/synthesizer.go
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"insight-orchestrator/internal/common/logger"
	"insight-orchestrator/internal/llm"
	"insight-orchestrator/internal/models"
)

// defaultAgentConfidence stands in for agents that report no confidence of
// their own.
const defaultAgentConfidence = 0.8

// Summarizer is the optional text-generation hook for executive summaries.
// The rule-based template is always available as the degradation path.
type Summarizer interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, llm.Usage, error)
}

// Synthesizer folds per-agent results into one StructuredReport. Synthesis is
// deterministic for a given result set: identical inputs produce identical
// metric, insight, risk and action orderings.
type Synthesizer struct {
	summarizer Summarizer
	logger     logger.Logger
	now        func() time.Time
}

// SynthesizerOption configures a Synthesizer.
type SynthesizerOption func(*Synthesizer)

// WithSynthesizerClock injects a clock for deterministic timestamps in tests.
func WithSynthesizerClock(now func() time.Time) SynthesizerOption {
	return func(s *Synthesizer) { s.now = now }
}

// NewSynthesizer creates a Synthesizer. summarizer may be nil, in which case
// every summary is rule-based.
func NewSynthesizer(summarizer Summarizer, log logger.Logger, opts ...SynthesizerOption) *Synthesizer {
	s := &Synthesizer{
		summarizer: summarizer,
		logger: log.With(map[string]interface{}{
			"component": "synthesizer",
		}),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Synthesize builds the report for one request from its agent results. The
// report is produced even when every agent failed; it then carries zero
// confidence and Success=false.
func (s *Synthesizer) Synthesize(ctx context.Context, req *models.QueryRequest, results []models.AgentResult) *models.StructuredReport {
	report := &models.StructuredReport{
		ReportID:    uuid.New().String(),
		TenantID:    req.TenantID,
		Query:       req.Text,
		GeneratedAt: s.now().UTC(),
		Warnings:    []string{},
	}

	var succeeded int
	var confidenceSum float64
	var failedAgents []string

	for _, r := range results {
		if !r.Success {
			failedAgents = append(failedAgents, r.AgentID)
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("agent %s unavailable: %s", r.AgentID, r.Error))
			continue
		}
		succeeded++
		conf := r.Confidence
		if conf == 0 {
			conf = defaultAgentConfidence
		}
		confidenceSum += conf

		if r.FromCache {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("agent %s served from cache", r.AgentID))
		}

		s.extract(report, r)
	}

	if len(failedAgents) > 0 {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("report built from partial data, %d agent(s) failed: %s",
				len(failedAgents), strings.Join(failedAgents, ", ")))
	}

	if succeeded == 0 {
		report.Success = false
		report.OverallConfidence = 0
		report.ExecutiveSummary = "No analysis could be completed for this query."
		return report
	}

	report.Success = true
	report.OverallConfidence = clampConfidence(confidenceSum / float64(succeeded) * 100)

	rankActions(report.ActionItems)
	report.ExecutiveSummary = s.summarize(ctx, report)

	return report
}

// rankActions sorts action items by 2*impact + urgency + priority, highest
// first. The sort is stable: ties keep their extraction order, so repeated
// synthesis of the same results yields the same order.
func rankActions(items []models.ActionItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].RankScore() > items[j].RankScore()
	})
}

// extract dispatches on the agent id. Unknown agents still contribute a
// generic insight so their work is never silently dropped.
func (s *Synthesizer) extract(report *models.StructuredReport, r models.AgentResult) {
	switch r.AgentID {
	case "pricing":
		s.extractPricing(report, r)
	case "sentiment":
		s.extractSentiment(report, r)
	case "forecast":
		s.extractForecast(report, r)
	default:
		report.Insights = append(report.Insights, models.Insight{
			Title:       fmt.Sprintf("%s analysis completed", r.AgentID),
			Description: fmt.Sprintf("agent %s returned %d data field(s)", r.AgentID, len(r.Data)),
			Source:      r.AgentID,
			Confidence:  r.Confidence,
		})
	}
	s.extractRecommendations(report, r)
}

func (s *Synthesizer) extractPricing(report *models.StructuredReport, r models.AgentResult) {
	avgGap, _ := toFloat(r.Data["averageGap"])
	gaps := toFloatSlice(r.Data["gaps"])
	overpriced, _ := toInt(r.Data["overpricedCount"])

	trend := models.TrendStable
	if avgGap > 0 {
		trend = models.TrendUp
	} else if avgGap < 0 {
		trend = models.TrendDown
	}
	report.KeyMetrics = append(report.KeyMetrics, models.MetricWithTrend{
		Name:   "Average price gap",
		Value:  avgGap,
		Unit:   "%",
		Trend:  trend,
		Source: r.AgentID,
	})

	if overpriced > 0 {
		report.Insights = append(report.Insights, models.Insight{
			Title:       fmt.Sprintf("%d product(s) priced above competitors", overpriced),
			Description: fmt.Sprintf("average gap %.1f%% across %d compared product(s)", avgGap, len(gaps)),
			Source:      r.AgentID,
			Confidence:  r.Confidence,
		})
	}

	for _, gap := range gaps {
		switch {
		case gap >= 20:
			report.Risks = append(report.Risks, models.RiskAssessment{
				Title:       "Severe pricing gap",
				Description: fmt.Sprintf("a product is priced %.1f%% above competitors", gap),
				Severity:    models.SeverityHigh,
				Source:      r.AgentID,
			})
		case gap >= 10:
			report.Risks = append(report.Risks, models.RiskAssessment{
				Title:       "Pricing gap",
				Description: fmt.Sprintf("a product is priced %.1f%% above competitors", gap),
				Severity:    models.SeverityMedium,
				Source:      r.AgentID,
			})
		}
	}
}

func (s *Synthesizer) extractSentiment(report *models.StructuredReport, r models.AgentResult) {
	score, _ := toFloat(r.Data["score"])
	sample, _ := toInt(r.Data["sampleSize"])
	// Older cached envelopes carry the sample list here instead of a count.
	negative, ok := toInt(r.Data["negativeReviews"])
	if !ok {
		negative = len(toMapSlice(r.Data["negativeReviews"]))
	}

	report.KeyMetrics = append(report.KeyMetrics, models.MetricWithTrend{
		Name:   "Customer sentiment",
		Value:  round2(score * 100),
		Unit:   "%",
		Trend:  models.TrendStable,
		Source: r.AgentID,
	})

	report.Insights = append(report.Insights, models.Insight{
		Title:       fmt.Sprintf("Sentiment score %.0f%% across %d review(s)", score*100, sample),
		Description: fmt.Sprintf("%d negative review(s) in the window", negative),
		Source:      r.AgentID,
		Confidence:  r.Confidence,
	})

	switch {
	case score < 0.4:
		report.Risks = append(report.Risks, models.RiskAssessment{
			Title:       "Negative customer sentiment",
			Description: fmt.Sprintf("sentiment score %.0f%% is below the acceptable floor", score*100),
			Severity:    models.SeverityHigh,
			Source:      r.AgentID,
		})
	case score < 0.6:
		report.Risks = append(report.Risks, models.RiskAssessment{
			Title:       "Weak customer sentiment",
			Description: fmt.Sprintf("sentiment score %.0f%% trails expectations", score*100),
			Severity:    models.SeverityMedium,
			Source:      r.AgentID,
		})
	}
}

func (s *Synthesizer) extractForecast(report *models.StructuredReport, r models.AgentResult) {
	avg, _ := toFloat(r.Data["forecastAverage"])
	direction, _ := r.Data["direction"].(string)

	trend := models.TrendStable
	switch direction {
	case "up":
		trend = models.TrendUp
	case "down":
		trend = models.TrendDown
	}
	report.KeyMetrics = append(report.KeyMetrics, models.MetricWithTrend{
		Name:   "Forecast demand",
		Value:  avg,
		Unit:   "units",
		Trend:  trend,
		Source: r.AgentID,
	})

	if direction != "" {
		report.Insights = append(report.Insights, models.Insight{
			Title:       fmt.Sprintf("Demand trending %s", direction),
			Description: fmt.Sprintf("average forecast %.1f units over the lead time", avg),
			Source:      r.AgentID,
			Confidence:  r.Confidence,
		})
	}

	for _, alert := range toMapSlice(r.Data["stockoutAlerts"]) {
		productID, _ := alert["productId"].(string)
		cover, _ := toFloat(alert["daysOfCover"])
		severity := models.SeverityHigh
		if sv, _ := alert["severity"].(string); sv == "critical" {
			severity = models.SeverityCritical
		}
		report.Risks = append(report.Risks, models.RiskAssessment{
			Title:       fmt.Sprintf("Stockout risk for %s", productID),
			Description: fmt.Sprintf("%.1f days of cover remaining", cover),
			Severity:    severity,
			Source:      r.AgentID,
		})
	}
}

// extractRecommendations converts an agent's recommendation list into ranked
// action items. Missing weights default to medium.
func (s *Synthesizer) extractRecommendations(report *models.StructuredReport, r models.AgentResult) {
	for _, rec := range toMapSlice(r.Data["recommendations"]) {
		title, _ := rec["title"].(string)
		if title == "" {
			continue
		}
		detail, _ := rec["detail"].(string)
		report.ActionItems = append(report.ActionItems, models.ActionItem{
			Title:    title,
			Detail:   detail,
			Impact:   toWeight(rec["impact"]),
			Urgency:  toWeight(rec["urgency"]),
			Priority: toWeight(rec["priority"]),
			Source:   r.AgentID,
		})
	}
}

// summarize produces the executive summary. The generated path is attempted
// first when a summarizer is wired; any failure falls back to the rule-based
// template, never to an empty summary.
func (s *Synthesizer) summarize(ctx context.Context, report *models.StructuredReport) string {
	template := ruleBasedSummary(report)
	if s.summarizer == nil {
		return template
	}

	enhanced, _, err := s.summarizer.Generate(ctx, summarySystemPrompt, summaryUserPrompt(report))
	if err != nil || strings.TrimSpace(enhanced) == "" {
		s.logger.Warn("summary generation failed, using rule-based summary", map[string]interface{}{
			"tenantId": report.TenantID,
			"reportId": report.ReportID,
			"error":    errString(err),
		})
		return template
	}
	return strings.TrimSpace(enhanced)
}

const summarySystemPrompt = "You are a business analyst. Write a concise executive summary " +
	"(2-3 sentences) of the findings below. Mention the most important risks and actions. " +
	"Do not invent numbers."

func summaryUserPrompt(report *models.StructuredReport) string {
	snapshot := struct {
		Query       string                   `json:"query"`
		KeyMetrics  []models.MetricWithTrend `json:"keyMetrics"`
		Risks       []models.RiskAssessment  `json:"risks"`
		ActionItems []models.ActionItem      `json:"actionItems"`
	}{
		Query:       report.Query,
		KeyMetrics:  report.KeyMetrics,
		Risks:       report.Risks,
		ActionItems: report.ActionItems,
	}
	b, _ := json.Marshal(snapshot)
	return string(b)
}

// ruleBasedSummary is the deterministic template summary: headline metrics,
// risk count and the top three ranked actions.
func ruleBasedSummary(report *models.StructuredReport) string {
	var sb strings.Builder

	if len(report.KeyMetrics) > 0 {
		parts := make([]string, 0, len(report.KeyMetrics))
		for _, m := range report.KeyMetrics {
			parts = append(parts, fmt.Sprintf("%s: %.1f%s (%s)", m.Name, m.Value, m.Unit, m.Trend))
		}
		sb.WriteString(strings.Join(parts, "; "))
		sb.WriteString(". ")
	}

	if n := len(report.Risks); n > 0 {
		sb.WriteString(fmt.Sprintf("%d risk(s) identified. ", n))
	}

	if len(report.ActionItems) > 0 {
		top := report.ActionItems
		if len(top) > 3 {
			top = top[:3]
		}
		titles := make([]string, 0, len(top))
		for _, a := range top {
			titles = append(titles, a.Title)
		}
		sb.WriteString("Recommended next steps: ")
		sb.WriteString(strings.Join(titles, "; "))
		sb.WriteString(".")
	}

	if sb.Len() == 0 {
		return "Analysis completed with no notable findings."
	}
	return strings.TrimSpace(sb.String())
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return round2(v)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func errString(err error) string {
	if err == nil {
		return "empty response"
	}
	return err.Error()
}

// Tolerant converters. Agent data crosses a JSON boundary in the cached
// path, so numbers may arrive as float64 and slices as []interface{}.

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func toInt(v interface{}) (int, bool) {
	f, ok := toFloat(v)
	return int(f), ok
}

func toFloatSlice(v interface{}) []float64 {
	switch s := v.(type) {
	case []float64:
		return s
	case []interface{}:
		out := make([]float64, 0, len(s))
		for _, item := range s {
			if f, ok := toFloat(item); ok {
				out = append(out, f)
			}
		}
		return out
	default:
		return nil
	}
}

func toMapSlice(v interface{}) []map[string]interface{} {
	switch s := v.(type) {
	case nil:
		return nil
	case []map[string]interface{}:
		return s
	case []interface{}:
		out := make([]map[string]interface{}, 0, len(s))
		for _, item := range s {
			if m, ok := item.(map[string]interface{}); ok {
				out = append(out, m)
			}
		}
		return out
	default:
		// Typed struct slices from fresh agent runs take the JSON detour.
		b, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		var out []map[string]interface{}
		if err := json.Unmarshal(b, &out); err != nil {
			return nil
		}
		return out
	}
}

func toWeight(v interface{}) models.Weight {
	s, _ := v.(string)
	switch models.Weight(s) {
	case models.WeightHigh:
		return models.WeightHigh
	case models.WeightLow:
		return models.WeightLow
	default:
		return models.WeightMedium
	}
}

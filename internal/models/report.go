// internal/models/report.go
package models

import "time"

// Severity taxonomy for risks.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Weight levels used when ranking action items.
type Weight string

const (
	WeightLow    Weight = "low"
	WeightMedium Weight = "medium"
	WeightHigh   Weight = "high"
)

// Score maps a weight level to its numeric value (low=1, medium=2, high=3).
func (w Weight) Score() int {
	switch w {
	case WeightHigh:
		return 3
	case WeightMedium:
		return 2
	default:
		return 1
	}
}

// TrendDirection for metrics with trend.
type TrendDirection string

const (
	TrendUp     TrendDirection = "up"
	TrendDown   TrendDirection = "down"
	TrendStable TrendDirection = "stable"
)

// MetricWithTrend is a headline number derived from one agent's output.
type MetricWithTrend struct {
	Name   string         `json:"name"`
	Value  float64        `json:"value"`
	Unit   string         `json:"unit,omitempty"`
	Trend  TrendDirection `json:"trend"`
	Source string         `json:"source"`
}

// Insight is a noteworthy finding extracted from an agent result.
type Insight struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Source      string  `json:"source"`
	Confidence  float64 `json:"confidence"`
}

// RiskAssessment is a flagged exposure with a severity from the taxonomy.
type RiskAssessment struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
	Source      string   `json:"source"`
}

// ActionItem is a recommended next step, ranked by
// 2*impact + urgency + priority.
type ActionItem struct {
	Title    string `json:"title"`
	Detail   string `json:"detail,omitempty"`
	Impact   Weight `json:"impact"`
	Urgency  Weight `json:"urgency"`
	Priority Weight `json:"priority"`
	Source   string `json:"source"`
}

// RankScore computes the ranking score for an action item.
func (a ActionItem) RankScore() int {
	return 2*a.Impact.Score() + a.Urgency.Score() + a.Priority.Score()
}

// StructuredReport is the final synthesized answer for one request. It is
// built once, owned by the requesting tenant and never mutated afterwards.
type StructuredReport struct {
	ReportID          string            `json:"reportId"`
	TenantID          string            `json:"tenantId"`
	Query             string            `json:"query"`
	ExecutiveSummary  string            `json:"executiveSummary"`
	KeyMetrics        []MetricWithTrend `json:"keyMetrics"`
	Insights          []Insight         `json:"insights"`
	Risks             []RiskAssessment  `json:"risks"`
	ActionItems       []ActionItem      `json:"actionItems"`
	OverallConfidence float64           `json:"overallConfidence"` // 0-100
	Warnings          []string          `json:"warnings"`
	Success           bool              `json:"success"`
	GeneratedAt       time.Time         `json:"generatedAt"`
}

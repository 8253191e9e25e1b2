// internal/agents/pricing/models.go
package pricing

// ProductGap is the per-product comparison against the competitor price.
// GapPercent is positive when our price is above the competitor's.
type ProductGap struct {
	ProductID       string  `json:"productId"`
	ProductName     string  `json:"productName"`
	OurPrice        float64 `json:"ourPrice"`
	CompetitorPrice float64 `json:"competitorPrice"`
	GapPercent      float64 `json:"gapPercent"`
}

// Recommendation is surfaced to the synthesizer as an action-item source.
type Recommendation struct {
	Title    string `json:"title"`
	Detail   string `json:"detail"`
	Impact   string `json:"impact"`
	Urgency  string `json:"urgency"`
	Priority string `json:"priority"`
}

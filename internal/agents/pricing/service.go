// internal/agents/pricing/service.go
package pricing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/lib/pq"

	"insight-orchestrator/internal/agents"
	"insight-orchestrator/internal/common/logger"
)

const AgentID = "pricing"

var (
	ErrPricingQueryFailed = errors.New("PRICING_QUERY_FAILED")
	ErrNoPricingData      = errors.New("NO_PRICING_DATA")
)

// Service compares a tenant's product prices against tracked competitor
// prices and reports gap statistics.
type Service struct {
	config *Config
	db     *sql.DB
	logger logger.Logger
}

func NewService(config *Config, db *sql.DB, log logger.Logger) *Service {
	return &Service{
		config: config,
		db:     db,
		logger: log.With(map[string]interface{}{
			"agentId": AgentID,
		}),
	}
}

func (s *Service) ID() string { return AgentID }

// Execute runs the price-gap analysis for the tenant. Product ids may be
// narrowed via the "productIds" parameter; otherwise every tracked product
// is considered up to the configured cap.
func (s *Service) Execute(ctx context.Context, input agents.Input) (*agents.Output, error) {
	productIDs := stringSliceParam(input.Parameters, "productIds")

	gaps, err := s.fetchGaps(ctx, input.TenantID, productIDs)
	if err != nil {
		return nil, err
	}
	if len(gaps) == 0 {
		return nil, ErrNoPricingData
	}

	var sum, overpricedSum float64
	overpriced := 0
	gapValues := make([]float64, 0, len(gaps))
	for _, g := range gaps {
		gapValues = append(gapValues, g.GapPercent)
		sum += g.GapPercent
		if g.GapPercent > 0 {
			overpriced++
			overpricedSum += g.GapPercent
		}
	}
	avgGap := sum / float64(len(gaps))

	recommendations := s.buildRecommendations(gaps, avgGap)

	s.logger.Info("price gap analysis completed", map[string]interface{}{
		"tenantId":   input.TenantID,
		"products":   len(gaps),
		"averageGap": avgGap,
		"overpriced": overpriced,
	})

	return &agents.Output{
		Data: map[string]interface{}{
			"gaps":            gapValues,
			"products":        gaps,
			"averageGap":      avgGap,
			"overpricedCount": overpriced,
			"sampleSize":      len(gaps),
			"recommendations": recommendations,
		},
		Confidence: sampleConfidence(len(gaps)),
	}, nil
}

func (s *Service) fetchGaps(ctx context.Context, tenantID string, productIDs []string) ([]ProductGap, error) {
	query := `
		SELECT p.id, p.name, p.price, c.price
		FROM products p
		JOIN competitor_prices c ON c.product_id = p.id AND c.tenant_id = p.tenant_id
		WHERE p.tenant_id = $1`
	args := []interface{}{tenantID}

	if len(productIDs) > 0 {
		query += ` AND p.id = ANY($2) ORDER BY p.id LIMIT $3`
		args = append(args, pq.Array(productIDs), s.config.MaxProducts)
	} else {
		query += ` ORDER BY p.id LIMIT $2`
		args = append(args, s.config.MaxProducts)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPricingQueryFailed, err)
	}
	defer rows.Close()

	var gaps []ProductGap
	for rows.Next() {
		var g ProductGap
		if err := rows.Scan(&g.ProductID, &g.ProductName, &g.OurPrice, &g.CompetitorPrice); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPricingQueryFailed, err)
		}
		if g.CompetitorPrice <= 0 {
			continue
		}
		g.GapPercent = round2((g.OurPrice - g.CompetitorPrice) / g.CompetitorPrice * 100)
		gaps = append(gaps, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPricingQueryFailed, err)
	}

	return gaps, nil
}

func (s *Service) buildRecommendations(gaps []ProductGap, avgGap float64) []Recommendation {
	var recs []Recommendation

	if avgGap >= 20 {
		recs = append(recs, Recommendation{
			Title:    "Review catalog-wide pricing",
			Detail:   fmt.Sprintf("average gap vs competitors is %.1f%%", avgGap),
			Impact:   "high",
			Urgency:  "high",
			Priority: "high",
		})
	}

	for _, g := range gaps {
		if g.GapPercent >= s.config.GapThreshold {
			recs = append(recs, Recommendation{
				Title:    fmt.Sprintf("Reprice %s", g.ProductName),
				Detail:   fmt.Sprintf("%.1f%% above competitor (%.2f vs %.2f)", g.GapPercent, g.OurPrice, g.CompetitorPrice),
				Impact:   "medium",
				Urgency:  "medium",
				Priority: weightForGap(g.GapPercent),
			})
		}
	}

	return recs
}

func weightForGap(gap float64) string {
	switch {
	case gap >= 25:
		return "high"
	case gap >= 15:
		return "medium"
	default:
		return "low"
	}
}

// sampleConfidence grows with sample size and saturates at 0.95.
func sampleConfidence(n int) float64 {
	c := 0.5 + 0.05*float64(n)
	return math.Min(c, 0.95)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func stringSliceParam(params map[string]interface{}, key string) []string {
	raw, ok := params[key]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

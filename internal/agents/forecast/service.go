// internal/agents/forecast/service.go
package forecast

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"insight-orchestrator/internal/agents"
	"insight-orchestrator/internal/common/logger"
)

const AgentID = "forecast"

var (
	ErrForecastQueryFailed = errors.New("FORECAST_QUERY_FAILED")
	ErrNoSalesData         = errors.New("NO_SALES_DATA")
)

// Service derives a moving-average demand forecast per product from recent
// sales and flags products whose inventory will not cover the lead time.
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

func (s *Service) Execute(ctx context.Context, input agents.Input) (*agents.Output, error) {
	points, err := s.fetchSales(ctx, input.TenantID)
	if err != nil {
		return nil, err
	}
	if len(points) < s.config.MinDataPoints {
		return nil, ErrNoSalesData
	}

	forecasts := s.buildForecasts(points)
	alerts := s.buildAlerts(forecasts)

	var sum float64
	direction := overallDirection(points)
	for _, f := range forecasts {
		sum += f.Forecast
	}
	avg := 0.0
	if len(forecasts) > 0 {
		avg = round2(sum / float64(len(forecasts)))
	}

	s.logger.Info("demand forecast completed", map[string]interface{}{
		"tenantId":   input.TenantID,
		"products":   len(forecasts),
		"average":    avg,
		"direction":  direction,
		"stockouts":  len(alerts),
		"dataPoints": len(points),
	})

	return &agents.Output{
		Data: map[string]interface{}{
			"forecastAverage": avg,
			"direction":       direction,
			"products":        forecasts,
			"stockoutAlerts":  alerts,
			"sampleSize":      len(points),
			"recommendations": s.buildRecommendations(alerts),
		},
		Confidence: dataConfidence(len(points)),
	}, nil
}

func (s *Service) fetchSales(ctx context.Context, tenantID string) ([]salesPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.product_id, s.day::text, s.units, i.on_hand
		FROM daily_sales s
		JOIN inventory i ON i.product_id = s.product_id AND i.tenant_id = s.tenant_id
		WHERE s.tenant_id = $1 AND s.day >= CURRENT_DATE - $2::int
		ORDER BY s.product_id, s.day`,
		tenantID, s.config.WindowDays)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrForecastQueryFailed, err)
	}
	defer rows.Close()

	var points []salesPoint
	for rows.Next() {
		var p salesPoint
		if err := rows.Scan(&p.ProductID, &p.Day, &p.Units, &p.Inventory); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrForecastQueryFailed, err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrForecastQueryFailed, err)
	}

	return points, nil
}

func (s *Service) buildForecasts(points []salesPoint) []ProductForecast {
	type acc struct {
		units     float64
		days      int
		inventory float64
		firstHalf float64
		lastHalf  float64
	}

	byProduct := make(map[string]*acc)
	var order []string
	counts := make(map[string]int)
	for _, p := range points {
		counts[p.ProductID]++
	}
	for _, p := range points {
		a, ok := byProduct[p.ProductID]
		if !ok {
			a = &acc{}
			byProduct[p.ProductID] = a
			order = append(order, p.ProductID)
		}
		a.units += p.Units
		a.days++
		a.inventory = p.Inventory
		if a.days <= counts[p.ProductID]/2 {
			a.firstHalf += p.Units
		} else {
			a.lastHalf += p.Units
		}
	}

	forecasts := make([]ProductForecast, 0, len(order))
	for _, id := range order {
		a := byProduct[id]
		velocity := a.units / float64(a.days)
		forecast := velocity * float64(s.config.LeadTimeDays)
		// Capped so the value stays JSON-encodable for zero-velocity products.
		cover := 999.0
		if velocity > 0 {
			cover = math.Min(a.inventory/velocity, 999)
		}
		forecasts = append(forecasts, ProductForecast{
			ProductID:     id,
			DailyVelocity: round2(velocity),
			Forecast:      round2(forecast),
			Inventory:     a.inventory,
			DaysOfCover:   round2(cover),
			Direction:     trendOf(a.firstHalf, a.lastHalf),
		})
	}
	return forecasts
}

func (s *Service) buildAlerts(forecasts []ProductForecast) []StockoutAlert {
	var alerts []StockoutAlert
	for _, f := range forecasts {
		if f.DaysOfCover < float64(s.config.LeadTimeDays) {
			severity := "high"
			if f.DaysOfCover < float64(s.config.LeadTimeDays)/2 {
				severity = "critical"
			}
			alerts = append(alerts, StockoutAlert{
				ProductID:   f.ProductID,
				DaysOfCover: f.DaysOfCover,
				Severity:    severity,
			})
		}
	}
	return alerts
}

func (s *Service) buildRecommendations(alerts []StockoutAlert) []map[string]interface{} {
	var recs []map[string]interface{}
	for _, a := range alerts {
		urgency := "medium"
		if a.Severity == "critical" {
			urgency = "high"
		}
		recs = append(recs, map[string]interface{}{
			"title":    fmt.Sprintf("Restock %s", a.ProductID),
			"detail":   fmt.Sprintf("%.1f days of cover remaining", a.DaysOfCover),
			"impact":   "high",
			"urgency":  urgency,
			"priority": urgency,
		})
	}
	return recs
}

// overallDirection compares total units in the first half of the window
// against the second half across all products.
func overallDirection(points []salesPoint) string {
	half := len(points) / 2
	var first, last float64
	for i, p := range points {
		if i < half {
			first += p.Units
		} else {
			last += p.Units
		}
	}
	return trendOf(first, last)
}

func trendOf(first, last float64) string {
	if first == 0 {
		if last == 0 {
			return "stable"
		}
		return "up"
	}
	change := (last - first) / first
	switch {
	case change > 0.1:
		return "up"
	case change < -0.1:
		return "down"
	default:
		return "stable"
	}
}

func dataConfidence(n int) float64 {
	c := 0.4 + float64(n)*0.01
	return math.Min(c, 0.9)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

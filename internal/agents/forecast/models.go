// internal/agents/forecast/models.go
package forecast

// salesPoint is one aggregated day of unit sales for a product.
type salesPoint struct {
	ProductID string
	Day       string
	Units     float64
	Inventory float64
}

// ProductForecast summarizes demand for one product over the window.
type ProductForecast struct {
	ProductID     string  `json:"productId"`
	DailyVelocity float64 `json:"dailyVelocity"`
	Forecast      float64 `json:"forecast"` // units expected over the lead time
	Inventory     float64 `json:"inventory"`
	DaysOfCover   float64 `json:"daysOfCover"`
	Direction     string  `json:"direction"` // up, down, stable
}

// StockoutAlert flags a product whose inventory will not cover the lead time.
type StockoutAlert struct {
	ProductID   string  `json:"productId"`
	DaysOfCover float64 `json:"daysOfCover"`
	Severity    string  `json:"severity"`
}

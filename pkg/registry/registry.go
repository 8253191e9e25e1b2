// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"os"
)

func Load(path string) (*AgentCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cat AgentCatalog
	err = json.Unmarshal(data, &cat)
	return &cat, err
}

// Get returns the spec for an agent id.
func (c *AgentCatalog) Get(id string) (AgentSpec, bool) {
	for _, a := range c.Agents {
		if a.ID == id {
			return a, true
		}
	}
	return AgentSpec{}, false
}

// IDs returns catalog agent ids in declaration order.
func (c *AgentCatalog) IDs() []string {
	ids := make([]string, 0, len(c.Agents))
	for _, a := range c.Agents {
		ids = append(ids, a.ID)
	}
	return ids
}

// Default returns the built-in catalog used when no catalog file is supplied.
func Default() *AgentCatalog {
	return &AgentCatalog{
		Version: "1.0",
		Agents: []AgentSpec{
			{
				ID:                "pricing",
				DisplayName:       "Pricing Analysis",
				Description:       "Competitor price gap analysis",
				Category:          "market",
				CacheCategory:     "pricing",
				Timeout:           "30s",
				EstimatedDuration: "20s",
				Critical:          true,
			},
			{
				ID:                "sentiment",
				DisplayName:       "Sentiment Analysis",
				Description:       "Customer review sentiment aggregation",
				Category:          "customer",
				CacheCategory:     "sentiment",
				Timeout:           "30s",
				EstimatedDuration: "25s",
				Critical:          true,
			},
			{
				ID:                "forecast",
				DisplayName:       "Demand Forecast",
				Description:       "Moving-average demand forecast and stockout detection",
				Category:          "operations",
				CacheCategory:     "forecast",
				Timeout:           "45s",
				EstimatedDuration: "30s",
			},
		},
	}
}

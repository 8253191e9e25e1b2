// pkg/registry/schema.go
package registry

import "time"

// AgentCatalog describes every agent the orchestrator can schedule.
type AgentCatalog struct {
	Version     string      `json:"version"`
	LastUpdated string      `json:"lastUpdated"`
	Agents      []AgentSpec `json:"agents"`
}

// AgentSpec is the catalog entry for one agent.
type AgentSpec struct {
	ID                string `json:"id"`
	DisplayName       string `json:"displayName"`
	Description       string `json:"description"`
	Category          string `json:"category"`
	CacheCategory     string `json:"cacheCategory"`
	Timeout           string `json:"timeout"`           // e.g. "30s"
	EstimatedDuration string `json:"estimatedDuration"` // e.g. "20s"
	Critical          bool   `json:"critical"`
}

// TimeoutDuration parses the spec's timeout, defaulting to 30s.
func (a AgentSpec) TimeoutDuration() time.Duration {
	return parseDuration(a.Timeout, 30*time.Second)
}

// EstimateDuration parses the spec's estimated duration, defaulting to 20s.
func (a AgentSpec) EstimateDuration() time.Duration {
	return parseDuration(a.EstimatedDuration, 20*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// internal/agents/pricing/config.go
package pricing

import "time"

type Config struct {
	Timeout      time.Duration
	GapThreshold float64 // percent gap considered noteworthy
	MaxProducts  int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:      30 * time.Second,
		GapThreshold: 10.0,
		MaxProducts:  100,
	}
}

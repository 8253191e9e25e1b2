// internal/agents/forecast/config.go
package forecast

import "time"

type Config struct {
	Timeout       time.Duration
	WindowDays    int
	LeadTimeDays  int
	MinDataPoints int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:       30 * time.Second,
		WindowDays:    28,
		LeadTimeDays:  7,
		MinDataPoints: 7,
	}
}

// internal/agents/sentiment/config.go
package sentiment

import "time"

type Config struct {
	Timeout    time.Duration
	Index      string
	MinReviews int
	MaxSamples int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:    30 * time.Second,
		Index:      "reviews",
		MinReviews: 3,
		MaxSamples: 500,
	}
}

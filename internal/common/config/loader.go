// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like LLM_API_KEY
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Environment-specific overrides, e.g. config.production.yaml
	envConfigFile := fmt.Sprintf("config.%s", env)
	viper.SetConfigName(envConfigFile)
	_ = viper.MergeInConfig() // ignore error if not found

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if cfg.Database.Elasticsearch.URL == "" && len(cfg.Database.Elasticsearch.Addresses) > 0 {
		cfg.Database.Elasticsearch.URL = cfg.Database.Elasticsearch.Addresses[0]
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.Get(key)

		if strVal, ok := val.(string); ok {
			if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
				expanded := os.ExpandEnv(strVal)
				if expanded != strVal && expanded != "" {
					v.Set(key, expanded)
				}
			}
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "insight-orchestrator"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 630 // deep-mode responses can take up to the deep budget
	}

	if cfg.Orchestrator.MaxConcurrentDeep == 0 {
		cfg.Orchestrator.MaxConcurrentDeep = 3
	}
	if cfg.Orchestrator.MaxConcurrentAgents == 0 {
		cfg.Orchestrator.MaxConcurrentAgents = 8
	}
	if cfg.Orchestrator.QuickBudget == 0 {
		cfg.Orchestrator.QuickBudget = 120
	}
	if cfg.Orchestrator.DeepBudget == 0 {
		cfg.Orchestrator.DeepBudget = 600
	}
	if cfg.Orchestrator.AvgAgentDuration == 0 {
		cfg.Orchestrator.AvgAgentDuration = 30
	}
	if cfg.Orchestrator.HistoryRetention == 0 {
		cfg.Orchestrator.HistoryRetention = 100
	}

	if cfg.Cache.PricingTTL == 0 {
		cfg.Cache.PricingTTL = 3600
	}
	if cfg.Cache.SentimentTTL == 0 {
		cfg.Cache.SentimentTTL = 86400
	}
	if cfg.Cache.ForecastTTL == 0 {
		cfg.Cache.ForecastTTL = 43200
	}
	if cfg.Cache.QueryResultTTL == 0 {
		cfg.Cache.QueryResultTTL = 3600
	}
	if cfg.Cache.EventChannel == "" {
		cfg.Cache.EventChannel = "data-events"
	}

	if cfg.SLA.QuickTimeout == 0 {
		cfg.SLA.QuickTimeout = 120
	}
	if cfg.SLA.QuickTarget == 0 {
		cfg.SLA.QuickTarget = 90
	}
	if cfg.SLA.DeepTimeout == 0 {
		cfg.SLA.DeepTimeout = 600
	}
	if cfg.SLA.DeepTarget == 0 {
		cfg.SLA.DeepTarget = 480
	}

	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 30000
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 1024
	}
	if cfg.LLM.MaxRetries == 0 {
		cfg.LLM.MaxRetries = 2
	}

	if cfg.Agents == nil {
		cfg.Agents = map[string]AgentConfig{}
	}
	for _, id := range []string{"pricing", "sentiment", "forecast"} {
		ac, ok := cfg.Agents[id]
		if !ok {
			ac = AgentConfig{Enabled: true}
		}
		if ac.Timeout == 0 {
			ac.Timeout = 30000
		}
		cfg.Agents[id] = ac
	}
	// Pricing and sentiment agents are critical: their failure triggers one retry.
	for _, id := range []string{"pricing", "sentiment"} {
		ac := cfg.Agents[id]
		ac.Critical = true
		cfg.Agents[id] = ac
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Orchestrator.MaxConcurrentDeep < 1 {
		return fmt.Errorf("orchestrator.max_concurrent_deep must be >= 1")
	}
	if cfg.Orchestrator.MaxConcurrentAgents < 1 {
		return fmt.Errorf("orchestrator.max_concurrent_agents must be >= 1")
	}
	if cfg.SLA.QuickTarget > cfg.SLA.QuickTimeout {
		return fmt.Errorf("sla.quick_target must not exceed sla.quick_timeout")
	}
	if cfg.SLA.DeepTarget > cfg.SLA.DeepTimeout {
		return fmt.Errorf("sla.deep_target must not exceed sla.deep_timeout")
	}
	return nil
}

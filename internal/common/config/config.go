// internal/common/config/config.go
package config

import (
	"fmt"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App          AppConfig              `mapstructure:"app"`
	Server       ServerConfig           `mapstructure:"server"`
	Database     DatabaseConfig         `mapstructure:"database"`
	LLM          LLMConfig              `mapstructure:"llm"`
	Orchestrator OrchestratorConfig     `mapstructure:"orchestrator"`
	Cache        CacheConfig            `mapstructure:"cache"`
	SLA          SLAConfig              `mapstructure:"sla"`
	Agents       map[string]AgentConfig `mapstructure:"agents"`
	Logging      LoggingConfig          `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`  // seconds
	WriteTimeout int `mapstructure:"write_timeout"` // seconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses  []string `mapstructure:"addresses"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	SSLEnabled bool     `mapstructure:"ssl_enabled"`
	URL        string   `mapstructure:"url"`
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// --- Domain Config ---

// LLMConfig holds settings for the external text-generation provider.
type LLMConfig struct {
	BaseURL         string  `mapstructure:"base_url"`
	APIKey          string  `mapstructure:"api_key"`
	Model           string  `mapstructure:"model"`
	MaxTokens       int     `mapstructure:"max_tokens"`
	Temperature     float64 `mapstructure:"temperature"`
	Timeout         int     `mapstructure:"timeout"`     // milliseconds
	MaxRetries      int     `mapstructure:"max_retries"`
	PromptCostPer1K float64 `mapstructure:"prompt_cost_per_1k"`     // USD
	OutputCostPer1K float64 `mapstructure:"completion_cost_per_1k"` // USD
	EnhancedSummary bool    `mapstructure:"enhanced_summary"`
}

// OrchestratorConfig bounds concurrency and execution budgets.
type OrchestratorConfig struct {
	MaxConcurrentDeep   int `mapstructure:"max_concurrent_deep"`
	MaxConcurrentAgents int `mapstructure:"max_concurrent_agents"`
	QuickBudget         int `mapstructure:"quick_budget"`       // seconds
	DeepBudget          int `mapstructure:"deep_budget"`        // seconds
	AvgAgentDuration    int `mapstructure:"avg_agent_duration"` // seconds, for wait estimation
	HistoryRetention    int `mapstructure:"history_retention"`  // reports kept per tenant
}

func (o OrchestratorConfig) QuickBudgetDuration() time.Duration {
	return time.Duration(o.QuickBudget) * time.Second
}

func (o OrchestratorConfig) DeepBudgetDuration() time.Duration {
	return time.Duration(o.DeepBudget) * time.Second
}

// CacheConfig holds per-category freshness windows in seconds.
type CacheConfig struct {
	PricingTTL     int    `mapstructure:"pricing_ttl"`
	SentimentTTL   int    `mapstructure:"sentiment_ttl"`
	ForecastTTL    int    `mapstructure:"forecast_ttl"`
	QueryResultTTL int    `mapstructure:"query_result_ttl"`
	EventChannel   string `mapstructure:"event_channel"`
	MemoryFallback bool   `mapstructure:"memory_fallback"`
}

// SLAConfig holds per-mode hard timeouts and soft targets.
type SLAConfig struct {
	QuickTimeout  int    `mapstructure:"quick_timeout"` // seconds, hard
	QuickTarget   int    `mapstructure:"quick_target"`  // seconds, soft
	DeepTimeout   int    `mapstructure:"deep_timeout"`
	DeepTarget    int    `mapstructure:"deep_target"`
	AlertTopicARN string `mapstructure:"alert_topic_arn"`
	AlertRegion   string `mapstructure:"alert_region"`
}

// AgentConfig holds the core settings applicable to every agent.
type AgentConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	Timeout    int  `mapstructure:"timeout"` // milliseconds
	MaxRetries int  `mapstructure:"max_retries"`
	Critical   bool `mapstructure:"critical"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// cmd/orchestrator/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"insight-orchestrator/internal/agents"
	"insight-orchestrator/internal/agents/forecast"
	"insight-orchestrator/internal/agents/pricing"
	"insight-orchestrator/internal/agents/sentiment"
	"insight-orchestrator/internal/api"
	"insight-orchestrator/internal/cache"
	"insight-orchestrator/internal/common/alert"
	"insight-orchestrator/internal/common/config"
	"insight-orchestrator/internal/common/database"
	"insight-orchestrator/internal/common/logger"
	"insight-orchestrator/internal/common/observability"
	"insight-orchestrator/internal/llm"
	"insight-orchestrator/internal/orchestrator"
	"insight-orchestrator/pkg/registry"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting orchestrator...",
		zap.String("app", cfg.App.Name),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "PostgreSQL initialization")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis initialization")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init Elasticsearch with retry ---
	var es *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		es, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		return err
	}, 10, 2*time.Second, zapLog, "Elasticsearch initialization")
	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully")

	// --- Cache and event-driven invalidation ---
	ttls := map[string]time.Duration{
		cache.CategoryPricing:     time.Duration(cfg.Cache.PricingTTL) * time.Second,
		cache.CategorySentiment:   time.Duration(cfg.Cache.SentimentTTL) * time.Second,
		cache.CategoryForecast:    time.Duration(cfg.Cache.ForecastTTL) * time.Second,
		cache.CategoryQueryResult: time.Duration(cfg.Cache.QueryResultTTL) * time.Second,
	}
	var cacheOpts []cache.Option
	if cfg.Cache.MemoryFallback {
		cacheOpts = append(cacheOpts, cache.WithMemoryFallback())
	}
	appCache := cache.New(rdb.GetClient(), ttls, log, cacheOpts...)

	invalidator := cache.NewInvalidator(appCache, log)
	subscriber := cache.NewSubscriber(rdb.GetClient(), cfg.Cache.EventChannel, invalidator, log)
	go func() {
		if err := subscriber.Run(ctx); err != nil && ctx.Err() == nil {
			zapLog.Error("event subscriber stopped", zap.Error(err))
		}
	}()

	// --- Agent catalog and registry ---
	catalog := registry.Default()
	if path := os.Getenv("AGENT_CATALOG_PATH"); path != "" {
		loaded, err := registry.Load(path)
		if err != nil {
			zapLog.Fatal("agent catalog load failed", zap.String("path", path), zap.Error(err))
		}
		catalog = loaded
	}

	agentRegistry := agents.NewRegistry()
	registerIfEnabled(cfg, pricing.AgentID, agentRegistry, pricing.NewService(pricing.LoadConfig(), pg.GetDB(), log), zapLog)
	registerIfEnabled(cfg, sentiment.AgentID, agentRegistry, sentiment.NewService(sentiment.LoadConfig(), es.Client, log), zapLog)
	registerIfEnabled(cfg, forecast.AgentID, agentRegistry, forecast.NewService(forecast.LoadConfig(), pg.GetDB(), log), zapLog)

	// --- SLA alerting (optional) ---
	var publisher *alert.Publisher
	if cfg.SLA.AlertTopicARN != "" {
		publisher, err = alert.NewPublisher(ctx, cfg.SLA.AlertRegion, cfg.SLA.AlertTopicARN)
		if err != nil {
			zapLog.Warn("sns publisher unavailable, violations will only be logged", zap.Error(err))
			publisher = nil
		}
	}

	// --- Summary generation (optional) ---
	var summarizer orchestrator.Summarizer
	if cfg.LLM.EnhancedSummary && cfg.LLM.BaseURL != "" {
		summarizer = llm.NewClient(&cfg.LLM, log)
	}

	// --- Pipeline assembly ---
	router := orchestrator.NewRouter(orchestrator.DefaultRules(), catalog)
	queue := orchestrator.NewBackpressureQueue(
		cfg.Orchestrator.MaxConcurrentDeep,
		time.Duration(cfg.Orchestrator.AvgAgentDuration)*time.Second,
	)
	coordinator := orchestrator.NewCoordinator(
		agentRegistry,
		catalog,
		appCache,
		cfg.Orchestrator.MaxConcurrentAgents,
		cfg.Orchestrator.QuickBudgetDuration(),
		cfg.Orchestrator.DeepBudgetDuration(),
		log,
	)
	synthesizer := orchestrator.NewSynthesizer(summarizer, log)
	slaMonitor := orchestrator.NewSLAMonitor(cfg.SLA, publisher, log)
	history := orchestrator.NewHistory(cfg.Orchestrator.HistoryRetention)

	svc := orchestrator.NewService(router, queue, coordinator, synthesizer, appCache, slaMonitor, history, obs, log)
	go svc.Run(ctx)

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				slaMonitor.Prune()
			}
		}
	}()

	// --- HTTP server ---
	server := api.NewServer(cfg.Server, svc, log)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("http server failed", zap.Error(err))
		}
	}()

	zapLog.Info("Orchestrator started",
		zap.Int("port", cfg.Server.Port),
		zap.Strings("agents", agentRegistry.IDs()),
	)

	// --- Graceful shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	zapLog.Info("Shutdown signal received", zap.String("signal", sig.String()))

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Warn("http shutdown incomplete", zap.Error(err))
	}
	zapLog.Info("Orchestrator stopped")
}

func registerIfEnabled(cfg *config.Config, id string, reg *agents.Registry, agent agents.Agent, zapLog *zap.Logger) {
	if ac, ok := cfg.Agents[id]; ok && !ac.Enabled {
		zapLog.Info("agent disabled by configuration", zap.String("agentId", id))
		return
	}
	if err := reg.Register(agent); err != nil {
		zapLog.Fatal("agent registration failed", zap.String("agentId", id), zap.Error(err))
	}
}

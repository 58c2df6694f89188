// Command agent wires every package into a running trading bot: load
// config, stand up logging, venue, market data, screener, trend, context,
// LLM, risk, execution, reconciliation, and persistence, then hand it all
// to the scheduler and (optionally) the read-only dashboard server.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/lancilotto/hl-agent/internal/api"
	"github.com/lancilotto/hl-agent/internal/cache"
	"github.com/lancilotto/hl-agent/internal/config"
	appcontext "github.com/lancilotto/hl-agent/internal/context"
	"github.com/lancilotto/hl-agent/internal/context/forecast"
	"github.com/lancilotto/hl-agent/internal/context/news"
	"github.com/lancilotto/hl-agent/internal/context/sentiment"
	"github.com/lancilotto/hl-agent/internal/context/whale"
	"github.com/lancilotto/hl-agent/internal/domain"
	"github.com/lancilotto/hl-agent/internal/execution"
	"github.com/lancilotto/hl-agent/internal/llm"
	"github.com/lancilotto/hl-agent/internal/logging"
	"github.com/lancilotto/hl-agent/internal/marketdata"
	"github.com/lancilotto/hl-agent/internal/marketdata/providers"
	"github.com/lancilotto/hl-agent/internal/orchestrator"
	"github.com/lancilotto/hl-agent/internal/persistence"
	"github.com/lancilotto/hl-agent/internal/reconcile"
	"github.com/lancilotto/hl-agent/internal/risk"
	"github.com/lancilotto/hl-agent/internal/scheduler"
	"github.com/lancilotto/hl-agent/internal/screener"
	"github.com/lancilotto/hl-agent/internal/trend"
	"github.com/lancilotto/hl-agent/internal/venue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := logging.New(&logging.Config{
		Level:       cfg.Logging.Level,
		Output:      cfg.Logging.Output,
		JSONFormat:  cfg.Logging.JSONFormat,
		IncludeFile: cfg.Logging.IncludeFile,
		Component:   "main",
	})
	logging.SetDefault(logger)
	logger.Info("structured logging initialized")

	ctx := context.Background()

	creds, err := venue.ResolveCredentials(ctx, *cfg)
	if err != nil {
		log.Fatalf("failed to resolve venue credentials: %v", err)
	}

	venueClient, err := venue.New(ctx, venue.Config{
		Testnet:              cfg.Venue.Testnet,
		MasterAccountAddress: creds.MasterAccountAddress,
		WalletAddress:        creds.WalletAddress,
		PrivateKey:           creds.PrivateKey,
		RetryBaseDelay:       cfg.Venue.RetryBaseDelay,
		RetryMaxDelay:        cfg.Venue.RetryMaxDelay,
		RetryMaxAttempts:     cfg.Venue.RetryMaxAttempts,
	})
	if err != nil {
		log.Fatalf("failed to build venue client: %v", err)
	}
	logger.Info("venue client initialized", "testnet", cfg.Venue.Testnet)

	secondaryTickers := buildSecondaryTickers(cfg.Providers.Enabled)
	aggregator := marketdata.New(venueClient, secondaryTickers, providers.NewCoinGecko(cfg.Providers.CoinGeckoAPIKey))
	logger.Info("market data aggregator initialized", "secondaries", len(secondaryTickers))

	cacheSvc := cache.NewService(cfg.Redis)

	weights := domain.DefaultScoringWeights()
	coinScreener, err := screener.New(aggregator, cacheSvc, weights, cfg.Screener)
	if err != nil {
		log.Fatalf("failed to build screener: %v", err)
	}
	logger.Info("screener initialized", "top_n", cfg.Screener.TopNCoins)

	trendEngine := trend.New(cfg.Trend)
	logger.Info("trend engine initialized", "enabled", cfg.Trend.Enabled)

	newsProducer := news.New(cfg.Context.CryptoPanicAPIKey, logging.WithComponent("context-news"))
	sentimentProducer := sentiment.New(cfg.Context.CryptoPanicAPIKey != "", logging.WithComponent("context-sentiment"))
	forecastProducer := forecast.New(logging.WithComponent("context-forecast"))
	whaleProducer := whale.New(cfg.Context.WhaleAlertAPIKey, logging.WithComponent("context-whale"))
	contextAggregator := appcontext.New(newsProducer, sentimentProducer, forecastProducer, whaleProducer, logging.WithComponent("context"))
	logger.Info("context producers initialized")

	db, err := persistence.New(persistence.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Database,
		SSLMode:  cfg.Database.SSLMode,
	}, logging.WithComponent("persistence"))
	if err != nil {
		logger.WithError(err).Warn("database unreachable, running on in-memory fallback buffers")
	} else if err := db.RunMigrations(ctx); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	registry := llm.NewRegistry(llm.DefaultRegistry(), map[string]string{
		"CLAUDE_API_KEY":   cfg.AI.ClaudeAPIKey,
		"OPENAI_API_KEY":   cfg.AI.OpenAIAPIKey,
		"DEEPSEEK_API_KEY": cfg.AI.DeepSeekAPIKey,
	})
	llmClient := llm.NewClient(registry, db, logging.WithComponent("llm"))
	logger.Info("llm client initialized", "default_model", cfg.AI.DefaultModel, "available_models", len(registry.Available()))

	riskManager := risk.NewManager(risk.Config{
		MaxDailyLossUSD:      cfg.Risk.MaxDailyLossUSD,
		MaxDailyLossPct:      cfg.Risk.MaxDailyLossPct,
		MaxPositionPct:       cfg.Risk.MaxPositionPct,
		MaxRiskPerTrade:      cfg.Risk.MaxRiskPerTrade,
		MaxConsecutiveLosses: cfg.Risk.MaxConsecutiveLosses,
		CooldownAfterLosses:  cfg.Risk.CooldownAfterLosses,
	})
	logger.Info("risk manager initialized", "max_daily_loss_usd", cfg.Risk.MaxDailyLossUSD)

	executionAdapter := execution.New(venueClient, riskManager)
	reconciler := reconcile.New(venueClient, db, logging.WithComponent("reconcile"))

	orch := orchestrator.New(
		venueClient, coinScreener, trendEngine, contextAggregator, aggregator,
		llmClient, riskManager, executionAdapter, reconciler, db,
		orchestrator.Config{
			ScoutBatchSize:    cfg.Screener.AnalysisBatchSize,
			MinConfidence:     cfg.Risk.MinConfidence,
			TrendConfirmation: cfg.Trend.Enabled,
			SkipPoorEntry:     cfg.Trend.SkipPoorEntry,
			PrimaryModel:      cfg.AI.DefaultModel,
		},
		logging.WithComponent("orchestrator"),
	)

	printStartupSummary(cfg, registry)

	var apiServer *api.Server
	if cfg.Server.Port > 0 {
		apiServer = api.NewServer(db, api.Config{
			Host:         cfg.Server.Host,
			Port:         cfg.Server.Port,
			AllowOrigins: splitOrigins(cfg.Server.AllowedOrigins),
		}, logging.WithComponent("api"))
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.WithError(err).Error("dashboard server stopped")
			}
		}()
		logger.Info("dashboard server starting", "port", cfg.Server.Port)
	}

	sched := scheduler.New(scheduler.Config{
		CycleInterval:       time.Duration(cfg.Scheduler.CycleIntervalMinutes) * time.Minute,
		HealthCheckInterval: time.Duration(cfg.Scheduler.HealthCheckMinutes) * time.Minute,
		RunImmediately:      true,
	}, orch.RunCycle, orch.HealthCheck, logging.WithComponent("scheduler"))

	sched.Run(ctx)

	if apiServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("dashboard server shutdown error")
		}
	}
	logger.Info("agent stopped")
}

// buildSecondaryTickers filters the pack of cross-exchange tickers down to
// those named in enabled, preserving the fixed Binance/Bybit/OKX order.
func buildSecondaryTickers(enabled []string) []providers.Ticker {
	want := make(map[string]bool, len(enabled))
	for _, name := range enabled {
		want[name] = true
	}

	all := []providers.Ticker{providers.NewBinance(), providers.NewBybit(), providers.NewOKX()}
	if len(want) == 0 {
		return all
	}

	out := make([]providers.Ticker, 0, len(all))
	for _, t := range all {
		if want[t.Name()] {
			out = append(out, t)
		}
	}
	return out
}

func splitOrigins(raw string) []string {
	if raw == "" || raw == "*" {
		return []string{"*"}
	}
	var out []string
	start := 0
	for i := 0; i <= len(raw); i++ {
		if i == len(raw) || raw[i] == ',' {
			if piece := raw[start:i]; piece != "" {
				out = append(out, piece)
			}
			start = i + 1
		}
	}
	return out
}

// printStartupSummary renders the resolved configuration as a table so an
// operator can eyeball what actually took effect across file/env layers
// before the first cycle runs.
func printStartupSummary(cfg *config.Config, registry *llm.Registry) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Setting", "Value"})
	table.Append([]string{"Venue", testnetLabel(cfg.Venue.Testnet)})
	table.Append([]string{"Screener top N", strconv.Itoa(cfg.Screener.TopNCoins)})
	table.Append([]string{"Scout batch size", strconv.Itoa(cfg.Screener.AnalysisBatchSize)})
	table.Append([]string{"Trend confirmation", strconv.FormatBool(cfg.Trend.Enabled)})
	table.Append([]string{"Default model", cfg.AI.DefaultModel})
	table.Append([]string{"Models available", strconv.Itoa(len(registry.Available()))})
	table.Append([]string{"Cycle interval", fmt.Sprintf("%dm", cfg.Scheduler.CycleIntervalMinutes)})
	table.Append([]string{"Dashboard port", strconv.Itoa(cfg.Server.Port)})
	table.Render()
}

func testnetLabel(testnet bool) string {
	if testnet {
		return "testnet"
	}
	return "mainnet"
}

// Package config loads agent configuration from an optional JSON file
// overlaid with environment variables. A set environment variable always
// wins. When it is unset, only the credential fields (addresses, private
// keys, API keys, passwords, the Vault token) and the ticker list keep
// their config.json value; every other field takes its built-in default,
// so its file value is not used.
package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Venue      VenueConfig      `json:"venue"`
	Screener   ScreenerConfig   `json:"screener"`
	Trend      TrendConfig      `json:"trend"`
	Risk       RiskConfig       `json:"risk"`
	AI         AIConfig         `json:"ai"`
	Scheduler  SchedulerConfig  `json:"scheduler"`
	Providers  ProvidersConfig  `json:"providers"`
	Logging    LoggingConfig    `json:"logging"`
	Database   DatabaseConfig   `json:"database"`
	Redis      RedisConfig      `json:"redis"`
	Vault      VaultConfig      `json:"vault"`
	Server     ServerConfig     `json:"server"`
	Context    ContextConfig    `json:"context"`
}

// VenueConfig carries the Hyperliquid credential/endpoint split between the
// read-only master account and the API-wallet signer used for writes.
type VenueConfig struct {
	Testnet              bool   `json:"testnet"`
	MasterAccountAddress string `json:"master_account_address"`
	WalletAddress        string `json:"wallet_address"`
	PrivateKey           string `json:"private_key"`
	TestnetMasterAccount string `json:"testnet_master_account_address"`
	TestnetWalletAddress string `json:"testnet_wallet_address"`
	TestnetPrivateKey    string `json:"testnet_private_key"`
	RetryBaseDelay       time.Duration `json:"retry_base_delay"`
	RetryMaxDelay        time.Duration `json:"retry_max_delay"`
	RetryMaxAttempts     int    `json:"retry_max_attempts"`
}

type ScreenerConfig struct {
	Enabled           bool     `json:"enabled"`
	TopNCoins         int      `json:"top_n_coins"`
	AnalysisBatchSize int      `json:"analysis_batch_size"`
	RebalanceDay      string   `json:"rebalance_day"`
	Tickers           []string `json:"tickers"`
	FallbackTickers   []string `json:"fallback_tickers"`
}

type TrendConfig struct {
	Enabled        bool    `json:"enabled"`
	MinConfidence  float64 `json:"min_confidence"`
	ADXThreshold   float64 `json:"adx_threshold"`
	RSIOverbought  float64 `json:"rsi_overbought"`
	RSIOversold    float64 `json:"rsi_oversold"`
	SkipPoorEntry  bool    `json:"skip_poor_entry"`
	AllowScalping  bool    `json:"allow_scalping"`
}

type RiskConfig struct {
	MaxDailyLossUSD           float64       `json:"max_daily_loss_usd"`
	MaxDailyLossPct           float64       `json:"max_daily_loss_pct"`
	MaxPositionPct            float64       `json:"max_position_pct"`
	DefaultStopLossPct        float64       `json:"default_stop_loss_pct"`
	DefaultTakeProfitPct      float64       `json:"default_take_profit_pct"`
	MaxConsecutiveLosses      int           `json:"max_consecutive_losses"`
	CooldownAfterLosses       time.Duration `json:"cooldown_after_losses"`
	MaxRiskPerTrade           float64       `json:"max_risk_per_trade"`
	MinConfidence             float64       `json:"min_confidence"`
}

type AIConfig struct {
	DefaultModel   string            `json:"default_model"`
	ClaudeAPIKey   string            `json:"-"`
	OpenAIAPIKey   string            `json:"-"`
	DeepSeekAPIKey string            `json:"-"`
	ExtraKeys      map[string]string `json:"-"`
}

type SchedulerConfig struct {
	CycleIntervalMinutes int `json:"cycle_interval_minutes"`
	HealthCheckMinutes   int `json:"health_check_minutes"`
	MisfireGraceSeconds  int `json:"misfire_grace_seconds"`
}

type ProvidersConfig struct {
	Enabled         []string `json:"enabled"`
	CoinGeckoAPIKey string   `json:"-"`
}

// ContextConfig carries optional third-party API keys for the auxiliary
// context producers (news, sentiment, forecast, whale). Every producer is
// best-effort: an empty key disables that producer's live source and it
// falls back to a placeholder rather than failing the cycle.
type ContextConfig struct {
	CryptoPanicAPIKey string `json:"-"`
	WhaleAlertAPIKey  string `json:"-"`
}

type LoggingConfig struct {
	Level       string `json:"level"`
	Output      string `json:"output"`
	JSONFormat  bool   `json:"json_format"`
	IncludeFile bool   `json:"include_file"`
}

type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"-"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"-"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"-"`
	MountPath  string `json:"mount_path"`
	SecretPath string `json:"secret_path"`
}

type ServerConfig struct {
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"`
}

// Load loads config.json if present, then applies environment overrides,
// which always take precedence. Fields outside the credential set and the
// ticker list are reset to their built-in defaults when their variable is
// unset, whatever config.json holds. A .env file in the working directory is
// loaded first (if present) so its values participate as environment
// overrides too.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = &Config{}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(file, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.Venue.Testnet = getEnvOrDefault("TESTNET", "false") == "true"
	cfg.Venue.MasterAccountAddress = getEnvOrDefault("MASTER_ACCOUNT_ADDRESS", cfg.Venue.MasterAccountAddress)
	cfg.Venue.WalletAddress = getEnvOrDefault("WALLET_ADDRESS", cfg.Venue.WalletAddress)
	cfg.Venue.PrivateKey = getEnvOrDefault("PRIVATE_KEY", cfg.Venue.PrivateKey)
	cfg.Venue.TestnetMasterAccount = getEnvOrDefault("TESTNET_MASTER_ACCOUNT_ADDRESS", cfg.Venue.TestnetMasterAccount)
	cfg.Venue.TestnetWalletAddress = getEnvOrDefault("TESTNET_WALLET_ADDRESS", cfg.Venue.TestnetWalletAddress)
	cfg.Venue.TestnetPrivateKey = getEnvOrDefault("TESTNET_PRIVATE_KEY", cfg.Venue.TestnetPrivateKey)
	// Canonicalized per DESIGN.md open-question 1: the most conservative of
	// the source's several near-duplicate retry configs.
	cfg.Venue.RetryBaseDelay = getEnvDurationOrDefault("VENUE_RETRY_BASE_DELAY", 10*time.Second)
	cfg.Venue.RetryMaxDelay = getEnvDurationOrDefault("VENUE_RETRY_MAX_DELAY", 120*time.Second)
	cfg.Venue.RetryMaxAttempts = getEnvIntOrDefault("VENUE_RETRY_MAX_ATTEMPTS", 10)

	cfg.Screener.Enabled = getEnvOrDefault("SCREENING_ENABLED", "true") == "true"
	cfg.Screener.TopNCoins = getEnvIntOrDefault("TOP_N_COINS", 20)
	cfg.Screener.AnalysisBatchSize = getEnvIntOrDefault("ANALYSIS_BATCH_SIZE", 5)
	cfg.Screener.RebalanceDay = getEnvOrDefault("REBALANCE_DAY", "sunday")
	cfg.Screener.Tickers = getEnvListOrDefault("TICKERS", cfg.Screener.Tickers)
	cfg.Screener.FallbackTickers = getEnvListOrDefault("FALLBACK_TICKERS", []string{"BTC", "ETH", "SOL", "AVAX", "ARB"})

	cfg.Trend.Enabled = getEnvOrDefault("TREND_CONFIRMATION_ENABLED", "true") == "true"
	cfg.Trend.MinConfidence = getEnvFloatOrDefault("MIN_TREND_CONFIDENCE", 0.60)
	cfg.Trend.ADXThreshold = getEnvFloatOrDefault("ADX_THRESHOLD", 25)
	cfg.Trend.RSIOverbought = getEnvFloatOrDefault("RSI_OVERBOUGHT", 70)
	cfg.Trend.RSIOversold = getEnvFloatOrDefault("RSI_OVERSOLD", 30)
	cfg.Trend.SkipPoorEntry = getEnvOrDefault("SKIP_POOR_ENTRY", "true") == "true"
	cfg.Trend.AllowScalping = getEnvOrDefault("ALLOW_SCALPING", "false") == "true"

	cfg.Risk.MaxDailyLossUSD = getEnvFloatOrDefault("MAX_DAILY_LOSS_USD", 500.0)
	cfg.Risk.MaxDailyLossPct = getEnvFloatOrDefault("MAX_DAILY_LOSS_PCT", 5.0)
	cfg.Risk.MaxPositionPct = getEnvFloatOrDefault("MAX_POSITION_PCT", 30.0)
	cfg.Risk.DefaultStopLossPct = getEnvFloatOrDefault("DEFAULT_STOP_LOSS_PCT", 2.0)
	cfg.Risk.DefaultTakeProfitPct = getEnvFloatOrDefault("DEFAULT_TAKE_PROFIT_PCT", 5.0)
	cfg.Risk.MaxConsecutiveLosses = getEnvIntOrDefault("MAX_CONSECUTIVE_LOSSES", 3)
	cfg.Risk.CooldownAfterLosses = getEnvDurationOrDefault("COOLDOWN_AFTER_LOSSES", 30*time.Minute)
	cfg.Risk.MaxRiskPerTrade = getEnvFloatOrDefault("MAX_RISK_PER_TRADE", 0.02)
	cfg.Risk.MinConfidence = getEnvFloatOrDefault("MIN_CONFIDENCE", 0.4)

	cfg.AI.DefaultModel = getEnvOrDefault("DEFAULT_AI_MODEL", "claude-3-5-sonnet")
	cfg.AI.ClaudeAPIKey = getEnvOrDefault("CLAUDE_API_KEY", cfg.AI.ClaudeAPIKey)
	cfg.AI.OpenAIAPIKey = getEnvOrDefault("OPENAI_API_KEY", cfg.AI.OpenAIAPIKey)
	cfg.AI.DeepSeekAPIKey = getEnvOrDefault("DEEPSEEK_API_KEY", cfg.AI.DeepSeekAPIKey)

	cfg.Scheduler.CycleIntervalMinutes = getEnvIntOrDefault("CYCLE_INTERVAL_MINUTES", 5)
	cfg.Scheduler.HealthCheckMinutes = getEnvIntOrDefault("HEALTH_CHECK_INTERVAL_MINUTES", 5)
	cfg.Scheduler.MisfireGraceSeconds = getEnvIntOrDefault("MISFIRE_GRACE_SECONDS", 60)

	cfg.Providers.Enabled = getEnvListOrDefault("MARKET_DATA_PROVIDERS", []string{"binance_futures", "bybit_linear", "okx_swap"})
	cfg.Providers.CoinGeckoAPIKey = getEnvOrDefault("COINGECKO_API_KEY", cfg.Providers.CoinGeckoAPIKey)

	cfg.Logging.Level = getEnvOrDefault("LOG_LEVEL", "INFO")
	cfg.Logging.Output = getEnvOrDefault("LOG_OUTPUT", "stdout")
	cfg.Logging.JSONFormat = getEnvOrDefault("LOG_JSON", "true") == "true"
	cfg.Logging.IncludeFile = getEnvOrDefault("LOG_INCLUDE_FILE", "false") == "true"

	cfg.Database.Host = getEnvOrDefault("DB_HOST", "localhost")
	cfg.Database.Port = getEnvIntOrDefault("DB_PORT", 5432)
	cfg.Database.User = getEnvOrDefault("DB_USER", "postgres")
	cfg.Database.Password = getEnvOrDefault("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.Database = getEnvOrDefault("DB_NAME", "hl_agent")
	cfg.Database.SSLMode = getEnvOrDefault("DB_SSLMODE", "disable")

	cfg.Redis.Enabled = getEnvOrDefault("REDIS_ENABLED", "true") == "true"
	cfg.Redis.Address = getEnvOrDefault("REDIS_ADDRESS", "localhost:6379")
	cfg.Redis.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvIntOrDefault("REDIS_DB", 0)
	cfg.Redis.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", 10)

	cfg.Vault.Enabled = getEnvOrDefault("VAULT_ENABLED", "false") == "true"
	cfg.Vault.Address = getEnvOrDefault("VAULT_ADDR", "http://localhost:8200")
	cfg.Vault.Token = getEnvOrDefault("VAULT_TOKEN", cfg.Vault.Token)
	cfg.Vault.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", "secret")
	cfg.Vault.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", "hl-agent/credentials")

	cfg.Server.Port = getEnvIntOrDefault("WEB_PORT", 8080)
	cfg.Server.Host = getEnvOrDefault("WEB_HOST", "0.0.0.0")
	cfg.Server.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", "*")

	cfg.Context.CryptoPanicAPIKey = getEnvOrDefault("CRYPTOPANIC_API_KEY", cfg.Context.CryptoPanicAPIKey)
	cfg.Context.WhaleAlertAPIKey = getEnvOrDefault("WHALE_ALERT_API_KEY", cfg.Context.WhaleAlertAPIKey)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

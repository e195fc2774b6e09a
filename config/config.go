package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"portfolio-riskv1/internal/model"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Market data feed
	FeedURL        string
	FeedAuthURL    string // auth gateway base URL; empty disables login
	FeedAPIKey     string
	FeedClientID   string
	FeedPassword   string
	FeedTOTPSecret string

	// Tracked assets (comma-separated, e.g. "BTC-USD,ETH-USD")
	Assets string

	// Portfolio
	InitialCash float64
	TradeSize   float64 // base notional per strategy entry

	// Risk
	RiskParams    model.RiskParams
	RiskInterval  time.Duration
	SweepInterval time.Duration

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string

	// Notifications
	TelegramBotToken string
	TelegramChatID   string
	WebhookURL       string
}

// Load reads configuration from environment variables with sensible defaults.
// Feed credentials are only required when FEED_AUTH_URL is set.
func Load() *Config {
	authURL := getEnv("FEED_AUTH_URL", "")

	cfg := &Config{
		FeedURL:     getEnv("FEED_URL", "ws://localhost:9001/ws"),
		FeedAuthURL: authURL,

		Assets: getEnv("ASSETS", "BTC-USD,ETH-USD,SOL-USD"),

		InitialCash: getFloat("INITIAL_CASH", 100000),
		TradeSize:   getFloat("TRADE_SIZE", 5000),

		RiskParams:    loadRiskParams(),
		RiskInterval:  getDuration("RISK_INTERVAL", 30*time.Second),
		SweepInterval: getDuration("SWEEP_INTERVAL", 60*time.Second),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/trades.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		WebhookURL:       getEnv("WEBHOOK_URL", ""),
	}

	if authURL != "" {
		cfg.FeedAPIKey = mustEnv("FEED_API_KEY")
		cfg.FeedClientID = mustEnv("FEED_CLIENT_ID")
		cfg.FeedPassword = mustEnv("FEED_PASSWORD")
		cfg.FeedTOTPSecret = mustEnv("FEED_TOTP_SECRET")
	}

	return cfg
}

// loadRiskParams starts from the default limits and applies env overrides.
func loadRiskParams() model.RiskParams {
	p := model.DefaultRiskParams()
	p.MaxDrawdown = getFloat("MAX_DRAWDOWN", p.MaxDrawdown)
	p.MaxDailyLoss = getFloat("MAX_DAILY_LOSS", p.MaxDailyLoss)
	p.MaxPositionSize = getFloat("MAX_POSITION_SIZE", p.MaxPositionSize)
	p.MaxLeverage = getFloat("MAX_LEVERAGE", p.MaxLeverage)
	p.MaxConcentration = getFloat("MAX_CONCENTRATION", p.MaxConcentration)
	p.VaRLimit = getFloat("VAR_LIMIT", p.VaRLimit)
	p.CorrelationLimit = getFloat("CORRELATION_LIMIT", p.CorrelationLimit)
	p.LiquidityThreshold = getFloat("LIQUIDITY_THRESHOLD", p.LiquidityThreshold)
	return p
}

// ParseAssets splits the Assets string into trimmed, non-empty symbols.
func (c *Config) ParseAssets() []string {
	parts := strings.Split(c.Assets, ",")
	assets := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		assets = append(assets, p)
	}
	return assets
}

// FeedAuthEnabled reports whether the feed requires a TOTP login.
func (c *Config) FeedAuthEnabled() bool {
	return c.FeedAuthURL != ""
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return v
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid float for %s: %q, using %v", key, v, fallback)
		return fallback
	}
	return f
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[config] invalid duration for %s: %q, using %v", key, v, fallback)
		return fallback
	}
	return d
}

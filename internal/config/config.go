// Package config loads the process-wide configuration: server/CORS/rate-limit
// settings plus the market-data knobs (default provider/interval,
// mock-provider tuning, per-store caps and throttles), using a plain
// getEnv/getEnvAsInt pattern, layered under cobra/viper in cmd/server for
// flag and .env overrides.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"marketdata-backend/internal/provider/mock"
)

// Config holds every process-wide setting the backend reads, plus the
// ambient HTTP/CORS/rate-limit/cache settings.
type Config struct {
	// Server
	Port        string
	CorsOrigins []string

	// Trading
	DefaultProvider string
	DefaultInterval string
	Symbols         []string

	// Mock provider tuning
	MockTickerMs          int
	MockDefaultVolatility float64
	MockScenario          mock.Scenario
	TickSizes             map[string]string // symbol -> decimal string

	// Exchange provider
	ExchangeBaseURL string
	ExchangeWSURL   string

	// Store caps
	CandleMax     int
	TradeMax      int
	OrderBookMax  int
	BookTickerMax int

	// Throttles
	OrderBookIntervalS   int
	BookTickerIntervalMs int

	// Rate limiting
	RateLimitRPS   int
	RateLimitBurst int

	// Cache
	RedisURL string

	LogLevel string
}

// Load reads a local .env (if present, ignored otherwise) then builds a
// Config from the environment, applying sensible defaults.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:        getEnv("PORT", "8080"),
		CorsOrigins: strings.Split(getEnv("CORS_ORIGINS", "*"), ","),

		DefaultProvider: getEnv("DEFAULT_PROVIDER", "mock"),
		DefaultInterval: getEnv("DEFAULT_INTERVAL", "1m"),
		Symbols:         strings.Split(getEnv("SYMBOLS", "BTCUSDT,ETHUSDT"), ","),

		MockTickerMs:          getEnvAsInt("MOCK_TICKER_MS", mock.DefaultTickerIntervalMillis),
		MockDefaultVolatility: getEnvAsFloat("MOCK_DEFAULT_VOLATILITY", mock.DefaultVolatility),
		MockScenario:          mock.Scenario(getEnv("MOCK_SCENARIO", string(mock.ScenarioNormal))),
		TickSizes:             parseTickSizes(getEnv("TICK_SIZES", "")),

		ExchangeBaseURL: getEnv("EXCHANGE_BASE_URL", "https://fapi.binance.com"),
		ExchangeWSURL:   getEnv("EXCHANGE_WS_URL", "wss://fstream.binance.com"),

		CandleMax:     getEnvAsInt("CANDLE_MAX", 1000),
		TradeMax:      getEnvAsInt("TRADE_MAX", 1_000_000),
		OrderBookMax:  getEnvAsInt("ORDER_BOOK_MAX", 1000),
		BookTickerMax: getEnvAsInt("BOOK_TICKER_MAX", 3600),

		OrderBookIntervalS:   getEnvAsInt("ORDER_BOOK_INTERVAL_S", 10),
		BookTickerIntervalMs: getEnvAsInt("BOOK_TICKER_INTERVAL_MS", 1000),

		RateLimitRPS:   getEnvAsInt("RATE_LIMIT_REQUESTS_PER_SECOND", 10),
		RateLimitBurst: getEnvAsInt("RATE_LIMIT_BURST", 20),

		RedisURL: getEnv("REDIS_URL", ""),
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// parseTickSizes parses a "SYMBOL=tickSize,SYMBOL=tickSize" env value into a
// map; malformed entries are skipped.
func parseTickSizes(raw string) map[string]string {
	out := make(map[string]string)
	if raw == "" {
		return out
	}
	for _, pair := range strings.Split(raw, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		out[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

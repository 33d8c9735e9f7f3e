package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadAppliesSpecDefaults(t *testing.T) {
	for _, k := range []string{
		"PORT", "DEFAULT_PROVIDER", "DEFAULT_INTERVAL", "CANDLE_MAX", "TRADE_MAX",
		"ORDER_BOOK_MAX", "BOOK_TICKER_MAX", "ORDER_BOOK_INTERVAL_S", "BOOK_TICKER_INTERVAL_MS",
	} {
		os.Unsetenv(k)
	}

	cfg := Load()
	assert.Equal(t, "mock", cfg.DefaultProvider)
	assert.Equal(t, "1m", cfg.DefaultInterval)
	assert.Equal(t, 1000, cfg.CandleMax)
	assert.Equal(t, 1_000_000, cfg.TradeMax)
	assert.Equal(t, 1000, cfg.OrderBookMax)
	assert.Equal(t, 3600, cfg.BookTickerMax)
	assert.Equal(t, 10, cfg.OrderBookIntervalS)
	assert.Equal(t, 1000, cfg.BookTickerIntervalMs)
}

func TestLoadHonorsOverrides(t *testing.T) {
	os.Setenv("CANDLE_MAX", "50")
	defer os.Unsetenv("CANDLE_MAX")

	cfg := Load()
	assert.Equal(t, 50, cfg.CandleMax)
}

func TestParseTickSizesSkipsMalformedEntries(t *testing.T) {
	out := parseTickSizes("BTCUSDT=0.5,ETHUSDT=0.01,garbage")
	assert.Equal(t, "0.5", out["BTCUSDT"])
	assert.Equal(t, "0.01", out["ETHUSDT"])
	assert.Len(t, out, 2)
}

func TestParseTickSizesEmptyReturnsEmptyMap(t *testing.T) {
	out := parseTickSizes("")
	assert.Empty(t, out)
}

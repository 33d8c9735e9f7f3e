package exchange

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertKlineRow(t *testing.T) {
	row := []interface{}{
		float64(1_700_000_000_000), "20.00", "20.05", "19.98", "20.02", "100.5",
		float64(1_700_000_059_999), "2010.0", int64(42), "50.0", "1005.0",
	}
	candle, err := convertKlineRow(row, "binance", "BTCUSDT", "1m")
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", candle.Symbol)
	assert.Equal(t, "binance", candle.Provider)
	assert.True(t, candle.Open.Equal(decimal.RequireFromString("20.00")))
	assert.True(t, candle.Close.Equal(decimal.RequireFromString("20.02")))
	assert.Equal(t, int64(42), candle.TradeCount)
	assert.True(t, candle.Closed)
	assert.True(t, candle.Valid())
}

func TestConvertKlineRowRejectsShortRow(t *testing.T) {
	_, err := convertKlineRow([]interface{}{float64(1)}, "binance", "BTCUSDT", "1m")
	assert.Error(t, err)
}

func TestCombinedStreamURL(t *testing.T) {
	url := combinedStreamURL("wss://stream.binance.com:9443", []string{"BTCUSDT", "ETHUSDT"}, []string{"@ticker"})
	assert.Equal(t, "wss://stream.binance.com:9443/stream?streams=btcusdt@ticker/ethusdt@ticker", url)
}

func TestKnownSymbolRejectsUnknown(t *testing.T) {
	c := NewClient("binance", "https://api.binance.com", "wss://stream.binance.com:9443", []string{"BTCUSDT"})
	assert.NoError(t, c.knownSymbol("BTCUSDT"))
	assert.Error(t, c.knownSymbol("DOGEUSDT"))
}

func TestSubscribeBeforeConnectFails(t *testing.T) {
	c := NewClient("binance", "https://api.binance.com", "wss://stream.binance.com:9443", []string{"BTCUSDT"})
	err := c.Subscribe("BTCUSDT")
	assert.Error(t, err)
}

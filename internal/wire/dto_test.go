package wire

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"marketdata-backend/internal/marketdata"
)

func TestNewCandleDTONumericFieldsAreNumbers(t *testing.T) {
	c := marketdata.Candle{
		Symbol: "BTCUSDT", Provider: "mock", Interval: "1m",
		OpenTime: time.Unix(1_700_000_000, 0).UTC(),
		Open:     decimal.NewFromFloat(20.5), High: decimal.NewFromFloat(21),
		Low: decimal.NewFromFloat(20), Close: decimal.NewFromFloat(20.8),
		Volume: decimal.NewFromFloat(100), TradeCount: 42, Closed: true,
	}
	dto := NewCandleDTO(c)
	assert.Equal(t, "BTCUSDT", dto.Symbol)
	assert.Equal(t, int64(1_700_000_000), dto.Time)
	assert.Equal(t, 20.5, dto.Open)
	assert.Equal(t, int64(42), dto.NumberOfTrades)
	assert.True(t, dto.Closed)
}

func TestNewBookTickerDTOCarriesDerivedAnalytics(t *testing.T) {
	bid := marketdata.PriceLevel{Price: decimal.NewFromFloat(100), Quantity: decimal.NewFromFloat(2)}
	ask := marketdata.PriceLevel{Price: decimal.NewFromFloat(101), Quantity: decimal.NewFromFloat(1)}
	snap := marketdata.NewBookTickerSnapshot("BTCUSDT", "mock", time.Now(), bid, ask)

	dto := NewBookTickerDTO(snap)
	assert.Equal(t, 1.0, dto.Spread)
	assert.Equal(t, 2.0, dto.Imbalance)
}

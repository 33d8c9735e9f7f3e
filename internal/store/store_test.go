package store

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketdata-backend/internal/marketdata"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func candleAt(openTime int64, o, h, l, c float64) marketdata.Candle {
	return marketdata.Candle{
		Symbol: "BTCUSDT", Provider: "mock", Interval: "1m",
		OpenTime: time.Unix(openTime, 0).UTC(),
		Open:     d(o), High: d(h), Low: d(l), Close: d(c),
	}
}

// Adding a candle with the same open-time replaces it in place, count stays 1.
func TestCandleStoreReplaceOnSameOpenTime(t *testing.T) {
	s := NewCandleStore(DefaultCandleCap)
	key := marketdata.NewCandleKey("mock", "BTCUSDT", "1m")

	s.Add(candleAt(1_700_000_000, 10, 10, 10, 10))
	s.Add(candleAt(1_700_000_000, 10, 11, 9, 10.5))

	latest, ok := s.Latest(key)
	require.True(t, ok)
	assert.True(t, latest.Close.Equal(d(10.5)))
	assert.Equal(t, 1, s.Count(key))
}

func TestCandleStoreCapMonotonicity(t *testing.T) {
	s := NewCandleStore(5)
	key := marketdata.NewCandleKey("mock", "BTCUSDT", "1m")
	for i := int64(0); i < 50; i++ {
		s.Add(candleAt(1_700_000_000+i*60, 1, 1, 1, 1))
		assert.LessOrEqual(t, s.Count(key), 5)
	}
	assert.Equal(t, 5, s.Count(key))
}

func TestCandleStoreContiguousSequence(t *testing.T) {
	s := NewCandleStore(DefaultCandleCap)
	key := marketdata.NewCandleKey("mock", "BTCUSDT", "1m")
	for i := int64(0); i < 10; i++ {
		s.Add(candleAt(1_700_000_000+i*60, 1, 1, 1, 1))
	}
	candles := s.Get(key)
	for i := 1; i < len(candles); i++ {
		diff := candles[i].OpenTime.Unix() - candles[i-1].OpenTime.Unix()
		assert.Equal(t, int64(60), diff)
	}
}

func tradeAt(ts int64, price, qty float64, buy bool) marketdata.Trade {
	return marketdata.Trade{
		Symbol: "BTCUSDT", Provider: "mock",
		Timestamp: time.Unix(ts, 0).UTC(),
		Price:     d(price), Quantity: d(qty), AggressiveBuy: buy,
	}
}

// Bulk-inserting the same trades twice is idempotent.
func TestTradeStoreBulkDedupIdempotent(t *testing.T) {
	s := NewTradeStore(DefaultTradeCap)
	trades := []marketdata.Trade{
		tradeAt(1, 100, 1, true),
		tradeAt(2, 101, 2, false),
		tradeAt(3, 102, 1, true),
	}
	key := marketdata.NewSeriesKey("mock", "BTCUSDT")

	s.AddBulk("mock", "BTCUSDT", trades)
	firstCount := s.Count(key)
	s.AddBulk("mock", "BTCUSDT", trades)
	assert.Equal(t, firstCount, s.Count(key))
	assert.Equal(t, 3, firstCount)
}

func TestTradeStoreAddDedupSignature(t *testing.T) {
	s := NewTradeStore(DefaultTradeCap)
	key := marketdata.NewSeriesKey("mock", "BTCUSDT")
	tr := tradeAt(5, 100, 1, true)
	assert.True(t, s.Add(tr))
	assert.False(t, s.Add(tr))
	assert.Equal(t, 1, s.Count(key))
}

func bookAt(ts int64) marketdata.OrderBookSnapshot {
	return marketdata.OrderBookSnapshot{
		Symbol: "BTCUSDT", Provider: "mock",
		Timestamp: time.Unix(ts, 0).UTC(),
		Bids:      []marketdata.PriceLevel{{Price: d(100), Quantity: d(1)}},
		Asks:      []marketdata.PriceLevel{{Price: d(101), Quantity: d(1)}},
	}
}

// The throttled order-book store respects the configured interval and
// `At` returns the latest snapshot <= target.
func TestOrderBookStoreThrottleAndAt(t *testing.T) {
	s := NewOrderBookStore(DefaultOrderBookCap, 10)
	key := marketdata.NewSeriesKey("mock", "BTCUSDT")

	for _, ts := range []int64{0, 10, 20, 30} {
		s.Add(bookAt(ts))
	}
	assert.Equal(t, 4, s.Count(key))

	snap, ok := s.At(key, time.Unix(25, 0).UTC())
	require.True(t, ok)
	assert.Equal(t, int64(20), snap.Timestamp.Unix())
}

func TestOrderBookStoreDropsWithinWindow(t *testing.T) {
	s := NewOrderBookStore(DefaultOrderBookCap, 10)
	key := marketdata.NewSeriesKey("mock", "BTCUSDT")

	s.Add(bookAt(0))
	accepted := s.Add(bookAt(5)) // within 10s window of t=0
	assert.False(t, accepted)
	assert.Equal(t, 1, s.Count(key))

	accepted = s.Add(bookAt(11))
	assert.True(t, accepted)
	assert.Equal(t, 2, s.Count(key))
}

func bookTickerAt(ts int64, spread float64) marketdata.BookTickerSnapshot {
	bid := marketdata.PriceLevel{Price: d(100), Quantity: d(1)}
	ask := marketdata.PriceLevel{Price: d(100 + spread), Quantity: d(1)}
	return marketdata.NewBookTickerSnapshot("BTCUSDT", "mock", time.UnixMilli(ts).UTC(), bid, ask)
}

// Snapshots at 0ms, 500ms, 1100ms with a 1000ms throttle interval store
// only the first and third.
func TestBookTickerStoreThrottleMillis(t *testing.T) {
	s := NewBookTickerStore(DefaultBookTickerCap, 1000)
	key := marketdata.NewSeriesKey("mock", "BTCUSDT")

	s.Add(bookTickerAt(0, 1))
	s.Add(bookTickerAt(500, 1))
	s.Add(bookTickerAt(1100, 1))

	assert.Equal(t, 2, s.Count(key))
}

// Spread anomaly detection picks out the single injected outlier.
func TestBookTickerStoreSpreadAnomalies(t *testing.T) {
	s := NewBookTickerStore(2000, 1)
	key := marketdata.NewSeriesKey("mock", "BTCUSDT")

	for i := 0; i < 1000; i++ {
		s.Add(bookTickerAt(int64(i)*2, 1.0))
	}
	s.Add(bookTickerAt(2001, 5.0))

	anomalies := s.DetectSpreadAnomalies(key, 1000, 2.0)
	require.Len(t, anomalies, 1)
	assert.True(t, anomalies[0].Spread.Equal(d(5.0)))
}

func TestBookTickerAverageImbalanceExcludesSentinel(t *testing.T) {
	s := NewBookTickerStore(DefaultBookTickerCap, 1)
	key := marketdata.NewSeriesKey("mock", "BTCUSDT")

	normal := marketdata.NewBookTickerSnapshot("BTCUSDT", "mock", time.UnixMilli(0),
		marketdata.PriceLevel{Price: d(100), Quantity: d(2)},
		marketdata.PriceLevel{Price: d(101), Quantity: d(1)})
	sentinel := marketdata.NewBookTickerSnapshot("BTCUSDT", "mock", time.UnixMilli(10),
		marketdata.PriceLevel{Price: d(100), Quantity: d(2)},
		marketdata.PriceLevel{Price: d(101), Quantity: d(0)})

	s.Add(normal)
	s.Add(sentinel)

	avg := s.AverageImbalance(key, 10)
	assert.True(t, avg.Equal(d(2)), "expected sentinel excluded, got %s", avg)
}

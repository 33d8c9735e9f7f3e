package footprint

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketdata-backend/internal/marketdata"
	"marketdata-backend/internal/timeutil"
)

func trade(ts int64, price, qty float64, buy bool) marketdata.Trade {
	return marketdata.Trade{
		Symbol: "BTCUSDT", Provider: "mock",
		Timestamp:     time.Unix(ts, 0).UTC(),
		Price:         decimal.NewFromFloat(price),
		Quantity:      decimal.NewFromFloat(qty),
		AggressiveBuy: buy,
	}
}

// Four trades across three price levels: totalVolume=360, delta=-40, POC
// lands on 20.02 (the level with the most volume, 210).
func TestFootprintPOCScenario(t *testing.T) {
	b := NewBuilder("mock", "BTCUSDT", timeutil.Interval1m, decimal.NewFromFloat(0.01), nil)

	base := int64(1_700_000_000)
	b.AddTrade(trade(base, 20.00, 100, true))
	b.AddTrade(trade(base+5, 20.01, 50, true))
	b.AddTrade(trade(base+10, 20.02, 200, false))
	b.AddTrade(trade(base+15, 20.02, 10, true))

	fc, ok := b.Current(time.Unix(base+20, 0).UTC())
	require.True(t, ok)

	total := fc.TotalBuyVolume.Add(fc.TotalSellVolume)
	assert.True(t, total.Equal(decimal.NewFromInt(360)), "total=%s", total)

	delta := fc.TotalBuyVolume.Sub(fc.TotalSellVolume)
	assert.True(t, delta.Equal(decimal.NewFromInt(-40)), "delta=%s", delta)

	assert.True(t, fc.PointOfControl.Equal(decimal.NewFromFloat(20.02)), "poc=%s", fc.PointOfControl)
}

// Totals and POC consistency hold generally, not just for the fixed scenario above.
func TestFootprintInvariantTotalsAndPOC(t *testing.T) {
	b := NewBuilder("mock", "ETHUSDT", timeutil.Interval1m, decimal.NewFromFloat(0.01), nil)
	base := int64(1_700_000_000)
	trades := []marketdata.Trade{
		trade(base, 10.00, 5, true),
		trade(base+1, 10.00, 3, false),
		trade(base+2, 10.05, 20, true),
		trade(base+3, 10.10, 1, false),
	}
	for _, tr := range trades {
		b.AddTrade(tr)
	}
	fc, ok := b.Current(time.Unix(base+4, 0).UTC())
	require.True(t, ok)

	var sumLevels decimal.Decimal
	maxTotal := decimal.Zero
	var pocCandidate decimal.Decimal
	for _, lv := range fc.VolumeProfile {
		sumLevels = sumLevels.Add(lv.Total())
		if lv.Total().GreaterThan(maxTotal) {
			maxTotal = lv.Total()
			pocCandidate = lv.Price
		}
	}

	total := fc.TotalBuyVolume.Add(fc.TotalSellVolume)
	assert.True(t, total.Equal(sumLevels), "total=%s sumLevels=%s", total, sumLevels)
	assert.True(t, fc.Delta.Equal(fc.TotalBuyVolume.Sub(fc.TotalSellVolume)))
	assert.True(t, fc.PointOfControl.Equal(pocCandidate))
}

// The value area reaches >=70% of volume, and dropping the last level would not.
func TestFootprintValueAreaThreshold(t *testing.T) {
	b := NewBuilder("mock", "BTCUSDT", timeutil.Interval1m, decimal.NewFromFloat(1), nil)
	base := int64(1_700_000_100)
	// Three price levels with volumes 50, 30, 20 (total 100).
	b.AddTrade(trade(base, 100, 50, true))
	b.AddTrade(trade(base+1, 101, 30, true))
	b.AddTrade(trade(base+2, 102, 20, true))

	fc, ok := b.Current(time.Unix(base+3, 0).UTC())
	require.True(t, ok)

	// Sorted descending by volume: 50 (cum 50, 50% < 70%), +30 (cum 80, >=70%) -> stop.
	// VAH/VAL should span prices 100 and 101 only.
	assert.True(t, fc.ValueAreaLow.Equal(decimal.NewFromInt(100)))
	assert.True(t, fc.ValueAreaHigh.Equal(decimal.NewFromInt(101)))
}

func TestFootprintClosesOnLaterBucketTrade(t *testing.T) {
	var closed []marketdata.FootprintCandle
	b := NewBuilder("mock", "BTCUSDT", timeutil.Interval1m, decimal.NewFromFloat(0.01), func(fc marketdata.FootprintCandle) {
		closed = append(closed, fc)
	})

	base := int64(1_700_000_000)
	b.AddTrade(trade(base, 100, 1, true))
	b.AddTrade(trade(base+120, 101, 1, true)) // two buckets later

	require.Len(t, closed, 1)
	assert.True(t, closed[0].Closed)
	assert.True(t, closed[0].Open.Equal(decimal.NewFromInt(100)))
}

func TestFootprintAutoCloseSweep(t *testing.T) {
	var closed []marketdata.FootprintCandle
	b := NewBuilder("mock", "BTCUSDT", timeutil.Interval1m, decimal.NewFromFloat(0.01), func(fc marketdata.FootprintCandle) {
		closed = append(closed, fc)
	})

	base := time.Now().Add(-2 * time.Minute)
	b.AddTrade(trade(base.Unix(), 100, 1, true))

	b.CloseBefore(time.Now())
	require.Len(t, closed, 1)
}

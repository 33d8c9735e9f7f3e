package mock

import (
	"context"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketdata-backend/internal/timeutil"
)

// Mean-reversion keeps the long-run average bounded near basePrice
// regardless of scenario.
func TestMeanReversionBounded(t *testing.T) {
	for _, scenario := range []Scenario{
		ScenarioBullRun, ScenarioBearMarket, ScenarioVolatile,
		ScenarioSideways, ScenarioPumpAndDump, ScenarioNormal,
	} {
		t.Run(string(scenario), func(t *testing.T) {
			state := NewMarketState("TESTUSDT", 100, scenario, 0)
			eng := newEngine(42)

			var sum float64
			const ticks = 10_000
			for i := 0; i < ticks; i++ {
				state.Tick(eng)
				sum += state.CurrentPrice
			}
			mean := sum / ticks
			assert.Less(t, math.Abs(mean-100), 20.0, "scenario=%s mean=%f", scenario, mean)
		})
	}
}

// Requesting historical candles then ticking once keeps the live candle
// store contiguous with the synthesized history.
func TestHistoricalContinuityIntoLiveTick(t *testing.T) {
	p := New([]string{"BTCUSDT"}, ScenarioNormal, 0.001, 10)
	ctx := context.Background()

	candles, err := p.GetHistoricalKlines(ctx, "BTCUSDT", timeutil.Interval1m, 500)
	require.NoError(t, err)
	require.Len(t, candles, 500)
	lastOpen := candles[len(candles)-1].OpenTime

	require.NoError(t, p.Connect(ctx))
	require.NoError(t, p.SubscribeKline("BTCUSDT", timeutil.Interval1m))
	defer p.Disconnect()

	s, err := p.symbol("BTCUSDT")
	require.NoError(t, err)

	s.mu.Lock()
	price := decimal.NewFromFloat(s.state.CurrentPrice)
	p.foldTickLocked("BTCUSDT", s, timeutil.Interval1m, price, lastOpen)
	latest := s.candles[timeutil.Interval1m][len(s.candles[timeutil.Interval1m])-1]
	s.mu.Unlock()

	assert.True(t, latest.OpenTime.Equal(lastOpen) || latest.OpenTime.After(lastOpen))
	assert.True(t, latest.Close.Equal(price))
}

func TestUnknownSymbolErrors(t *testing.T) {
	p := New([]string{"BTCUSDT"}, ScenarioNormal, 0, 0)
	ctx := context.Background()
	require.NoError(t, p.Connect(ctx))
	defer p.Disconnect()

	_, err := p.GetHistoricalKlines(ctx, "DOGEUSDT", timeutil.Interval1m, 10)
	assert.Error(t, err)
}

func TestSubscribeBeforeConnectFails(t *testing.T) {
	p := New([]string{"BTCUSDT"}, ScenarioNormal, 0, 0)
	err := p.Subscribe("BTCUSDT")
	assert.Error(t, err)
}

func TestTriggerPumpSwitchesScenario(t *testing.T) {
	p := New([]string{"BTCUSDT"}, ScenarioNormal, 0, 0)
	require.NoError(t, p.TriggerPump("BTCUSDT"))
	state, err := p.State("BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, ScenarioPumpAndDump, state.Scenario)
	assert.Equal(t, pumpPumping, state.pumpPhase)
}

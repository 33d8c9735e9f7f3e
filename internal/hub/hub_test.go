package hub

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketdata-backend/internal/marketdata"
	"marketdata-backend/internal/provider"
	"marketdata-backend/internal/provider/mock"
	"marketdata-backend/internal/timeutil"
)

var decimalOne = decimal.NewFromInt(1)

type fakeSymbolSource struct{ symbols []string }

func (f fakeSymbolSource) Symbols() []string { return f.symbols }

func TestBootstrapSubscribesUnionOfSymbols(t *testing.T) {
	h := New(1000, 1_000_000, 1000, 3600, 10, 1000)
	p := mock.New([]string{"BTCUSDT", "ETHUSDT"}, mock.ScenarioNormal, 0.001, 50)
	h.RegisterProvider("mock", p)
	defer p.Disconnect()

	err := h.Bootstrap(context.Background(), "mock",
		timeutil.Interval1m,
		fakeSymbolSource{symbols: []string{"BTCUSDT"}},
		fakeSymbolSource{symbols: []string{"BTCUSDT", "ETHUSDT"}},
	)
	require.NoError(t, err)
	assert.Equal(t, StateSubscribed, h.ProviderState("mock"))
}

func TestHandleEventWritesCandleStore(t *testing.T) {
	h := New(1000, 1_000_000, 1000, 3600, 10, 1000)
	p := mock.New([]string{"BTCUSDT"}, mock.ScenarioNormal, 0.001, 20)
	h.RegisterProvider("mock", p)

	candle := marketdata.Candle{
		Symbol: "BTCUSDT", Provider: "mock", Interval: "1m",
		OpenTime: time.Unix(1_700_000_000, 0).UTC(),
		Open: decimalOne, High: decimalOne, Low: decimalOne, Close: decimalOne,
	}
	h.handleEvent("mock", provider.Event{Type: provider.StreamKline, Symbol: "BTCUSDT", Candle: &candle})

	key := marketdata.NewCandleKey("mock", "BTCUSDT", "1m")
	assert.Equal(t, 1, h.Candles.Count(key))
}

func TestSubscribeAllRespectsConfig(t *testing.T) {
	h := New(1000, 1_000_000, 1000, 3600, 10, 1000)
	p := mock.New([]string{"BTCUSDT"}, mock.ScenarioNormal, 0.001, 50)
	h.RegisterProvider("mock", p)
	require.NoError(t, h.Connect(context.Background(), "mock"))
	defer p.Disconnect()

	errs := h.SubscribeAll("mock", "BTCUSDT", OrderFlowConfig{Trades: true, BookTicker: true, OrderBookDepth: 5})
	assert.Empty(t, errs)
	assert.Equal(t, StateSubscribed, h.ProviderState("mock"))
}

// A live mock Provider ticking through Bootstrap's real ticker+kline
// subscriptions must reach h.Candles via the actual event bus, not just via
// a hand-fed handleEvent call — this is what makes the store's current
// candle reflect intra-period accumulation instead of only the kline close.
func TestLiveTickerFoldsIntoCandleStore(t *testing.T) {
	h := New(1000, 1_000_000, 1000, 3600, 10, 1000)
	p := mock.New([]string{"BTCUSDT"}, mock.ScenarioNormal, 0.01, 5)
	h.RegisterProvider("mock", p)
	defer p.Disconnect()

	err := h.Bootstrap(context.Background(), "mock", timeutil.Interval1m,
		fakeSymbolSource{symbols: []string{"BTCUSDT"}})
	require.NoError(t, err)

	key := marketdata.NewCandleKey("mock", "BTCUSDT", "1m")
	deadline := time.Now().Add(2 * time.Second)
	var candle marketdata.Candle
	var found bool
	for time.Now().Before(deadline) {
		if c, ok := h.Candles.Latest(key); ok && c.TradeCount > 0 {
			candle, found = c, true
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	require.True(t, found, "expected a live-ticked candle to reach the candle store")
	assert.Equal(t, "BTCUSDT", candle.Symbol)
	assert.True(t, candle.TradeCount > 0)
}

func TestUnknownProviderErrors(t *testing.T) {
	h := New(1000, 1_000_000, 1000, 3600, 10, 1000)
	_, err := h.Provider("nope")
	assert.Error(t, err)
}

func TestPushSinkForwardsEvents(t *testing.T) {
	h := New(1000, 1_000_000, 1000, 3600, 10, 1000)

	received := make(chan provider.Event, 8)
	h.SetPush(func(ev provider.Event) { received <- ev })

	h.handleEvent("mock", provider.Event{Type: provider.StreamTicker, Symbol: "BTCUSDT"})

	select {
	case ev := <-received:
		assert.Equal(t, provider.StreamTicker, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for pushed event")
	}
}

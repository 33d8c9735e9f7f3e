package restapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketdata-backend/internal/hub"
	"marketdata-backend/internal/marketdata"
	"marketdata-backend/internal/provider/mock"
)

func newTestRouter(t *testing.T) (*hub.Hub, http.Handler) {
	t.Helper()
	h := hub.New(1000, 1_000_000, 1000, 3600, 10, 1000)
	p := mock.New([]string{"BTCUSDT", "ETHUSDT"}, mock.ScenarioNormal, 0.001, 50)
	h.RegisterProvider("mock", p)
	require.NoError(t, h.Connect(context.Background(), "mock"))
	t.Cleanup(func() { p.Disconnect() })
	return h, NewRouter(h, nil, "mock", []string{"*"}, 0, 0, nil)
}

func doRequest(e http.Handler, method, path string, body ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if len(body) > 0 {
		req = httptest.NewRequest(method, path, strings.NewReader(body[0]))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestTradingProvidersListsRegisteredProviders(t *testing.T) {
	_, e := newTestRouter(t)
	rec := doRequest(e, http.MethodGet, "/api/trading/providers")
	assert.Equal(t, 200, rec.Code)

	var names []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &names))
	assert.Contains(t, names, "mock")
}

func TestTradingSubscribeKlineThenHistoricalReturnsNumericCandle(t *testing.T) {
	h, e := newTestRouter(t)

	rec := doRequest(e, http.MethodPost, "/api/trading/subscribe/klines/mock/BTCUSDT/1m")
	assert.Equal(t, 200, rec.Code)

	h.Candles.Add(marketdata.Candle{
		Symbol: "BTCUSDT", Provider: "mock", Interval: "1m",
		OpenTime: time.Unix(1_700_000_000, 0).UTC(),
	})

	rec = doRequest(e, http.MethodGet, "/api/trading/historical/mock/BTCUSDT/1m?limit=10")
	assert.Equal(t, 200, rec.Code)

	var dtos []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dtos))
	require.Len(t, dtos, 1)
	_, isNumber := dtos[0]["open"].(float64)
	assert.True(t, isNumber, "open should decode as a JSON number, got %T", dtos[0]["open"])
}

func TestTradingHistoricalRejectsUnknownInterval(t *testing.T) {
	_, e := newTestRouter(t)
	rec := doRequest(e, http.MethodGet, "/api/trading/historical/mock/BTCUSDT/bogus")
	assert.Equal(t, 400, rec.Code)
}

func TestFootprintSetTickSizeThenCurrent(t *testing.T) {
	_, e := newTestRouter(t)

	rec := doRequest(e, http.MethodPost, "/api/footprint/tick-size?symbol=BTCUSDT&tickSize=0.5")
	assert.Equal(t, 200, rec.Code)

	rec = doRequest(e, http.MethodGet, "/api/footprint/current?symbol=BTCUSDT&interval=1m")
	assert.Equal(t, 404, rec.Code) // no trades folded yet
}

func TestFootprintCurrentRequiresSymbol(t *testing.T) {
	_, e := newTestRouter(t)
	rec := doRequest(e, http.MethodGet, "/api/footprint/current?interval=1m")
	assert.Equal(t, 400, rec.Code)
}

func TestOrderflowSubscribeAndUnsubscribeTrades(t *testing.T) {
	_, e := newTestRouter(t)

	rec := doRequest(e, http.MethodPost, "/api/orderflow/subscribe/trades?provider=mock&symbol=BTCUSDT")
	assert.Equal(t, 200, rec.Code)
	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, true, result["success"])

	rec = doRequest(e, http.MethodDelete, "/api/orderflow/subscribe/trades?provider=mock&symbol=BTCUSDT")
	assert.Equal(t, 200, rec.Code)
}

func TestOrderflowSubscribeOrderBookRejectsBadDepth(t *testing.T) {
	_, e := newTestRouter(t)
	rec := doRequest(e, http.MethodPost, "/api/orderflow/subscribe/orderbook?provider=mock&symbol=BTCUSDT&depth=7")
	assert.Equal(t, 200, rec.Code) // subscribe errors are surfaced as {success:false}, not HTTP errors
	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, false, result["success"])
}

func TestOrderflowHistoricalTradesReturnsStoredTrades(t *testing.T) {
	h, e := newTestRouter(t)
	h.Trades.Add(marketdata.Trade{Symbol: "BTCUSDT", Provider: "mock", Timestamp: time.Now().UTC()})

	rec := doRequest(e, http.MethodGet, "/api/orderflow/historical/trades/mock/BTCUSDT?count=10")
	assert.Equal(t, 200, rec.Code)
	var dtos []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dtos))
	assert.Len(t, dtos, 1)
}

func TestOrderflowDeleteHistoryClearsStores(t *testing.T) {
	h, e := newTestRouter(t)
	h.Trades.Add(marketdata.Trade{Symbol: "BTCUSDT", Provider: "mock", Timestamp: time.Now().UTC()})

	rec := doRequest(e, http.MethodDelete, "/api/orderflow/historical/mock/BTCUSDT")
	assert.Equal(t, 200, rec.Code)

	key := marketdata.NewSeriesKey("mock", "BTCUSDT")
	assert.Equal(t, 0, h.Trades.Count(key))
}

func TestOrderflowStatsRequiresProviderAndSymbol(t *testing.T) {
	_, e := newTestRouter(t)
	rec := doRequest(e, http.MethodGet, "/api/orderflow/historical/stats")
	assert.Equal(t, 400, rec.Code)
}

func TestOrderflowOrderBookConfigRejectsNonPositiveValue(t *testing.T) {
	_, e := newTestRouter(t)
	rec := doRequest(e, http.MethodPost, "/api/orderflow/historical/orderbook/mock/BTCUSDT/config/interval", `{"value":0}`)
	assert.Equal(t, 400, rec.Code)
}

func TestOrderflowOrderBookConfigAppliesInterval(t *testing.T) {
	_, e := newTestRouter(t)
	rec := doRequest(e, http.MethodPost, "/api/orderflow/historical/orderbook/mock/BTCUSDT/config/interval", `{"value":5}`)
	assert.Equal(t, 200, rec.Code)
}

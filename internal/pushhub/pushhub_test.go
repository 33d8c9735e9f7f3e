package pushhub

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketdata-backend/internal/marketdata"
	"marketdata-backend/internal/provider"
)

func newTestServer(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	h := NewHub()
	done := make(chan struct{})
	go h.Run(done)
	t.Cleanup(func() { close(done) })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		HandleWebSocket(h, w, r)
	}))
	t.Cleanup(srv.Close)
	return h, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestHandleWebSocketSendsConnectedOnRegister(t *testing.T) {
	_, srv := newTestServer(t)
	conn := dial(t, srv)

	msg := readJSON(t, conn)
	assert.Equal(t, "connected", msg["type"])
	assert.NotEmpty(t, msg["clientId"])
}

func TestSubscribeThenDispatchDeliversMatchingTopic(t *testing.T) {
	h, srv := newTestServer(t)
	conn := dial(t, srv)
	readJSON(t, conn) // connected

	require.NoError(t, conn.WriteJSON(ClientMessage{
		Action: "subscribe", Symbol: "BTCUSDT", Types: []string{"KLINE"},
	}))
	ack := readJSON(t, conn)
	assert.Equal(t, "subscribed", ack["type"])

	candle := marketdata.Candle{Symbol: "BTCUSDT", Provider: "mock", Interval: "1m"}
	h.Dispatch(provider.Event{
		Type: provider.StreamKline, Provider: "mock", Symbol: "BTCUSDT", Candle: &candle,
	})

	push := readJSON(t, conn)
	assert.Equal(t, "KLINE", push["type"])
	assert.Equal(t, "BTCUSDT", push["symbol"])
}

func TestDispatchDoesNotDeliverToUnrelatedTopic(t *testing.T) {
	h, srv := newTestServer(t)
	conn := dial(t, srv)
	readJSON(t, conn) // connected

	require.NoError(t, conn.WriteJSON(ClientMessage{
		Action: "subscribe", Symbol: "ETHUSDT", Types: []string{"TRADE"},
	}))
	readJSON(t, conn) // subscribed ack

	candle := marketdata.Candle{Symbol: "BTCUSDT", Provider: "mock", Interval: "1m"}
	h.Dispatch(provider.Event{
		Type: provider.StreamKline, Provider: "mock", Symbol: "BTCUSDT", Candle: &candle,
	})

	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "client subscribed to a different topic should not receive the push")
}

func TestUnsubscribeStopsFurtherDelivery(t *testing.T) {
	h, srv := newTestServer(t)
	conn := dial(t, srv)
	readJSON(t, conn) // connected

	require.NoError(t, conn.WriteJSON(ClientMessage{
		Action: "subscribe", Symbol: "BTCUSDT", Types: []string{"TRADE"},
	}))
	readJSON(t, conn) // subscribed ack

	require.NoError(t, conn.WriteJSON(ClientMessage{
		Action: "unsubscribe", Symbol: "BTCUSDT", Types: []string{"TRADE"},
	}))
	readJSON(t, conn) // unsubscribed ack

	trade := marketdata.Trade{Symbol: "BTCUSDT", Provider: "mock"}
	h.Dispatch(provider.Event{Type: provider.StreamTrade, Provider: "mock", Symbol: "BTCUSDT", Trade: &trade})

	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestGetStatsReportsClientCount(t *testing.T) {
	_, srv := newTestServer(t)
	conn := dial(t, srv)
	readJSON(t, conn) // connected

	require.NoError(t, conn.WriteJSON(ClientMessage{Action: "getStats"}))
	stats := readJSON(t, conn)
	assert.Equal(t, "stats", stats["type"])
	assert.EqualValues(t, 1, stats["clientCount"])
}

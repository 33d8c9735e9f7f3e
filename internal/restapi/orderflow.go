package restapi

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"marketdata-backend/internal/apierr"
	"marketdata-backend/internal/hub"
	"marketdata-backend/internal/marketdata"
	"marketdata-backend/internal/wire"
)

func hubOrderFlowConfig(req subscribeAllRequest) hub.OrderFlowConfig {
	return hub.OrderFlowConfig{
		Trades:          req.Trades,
		AggregateTrades: req.AggregateTrades,
		OrderBook:       req.OrderBook,
		OrderBookDepth:  req.OrderBookDepth,
		BookTicker:      req.BookTicker,
	}
}

// --- subscribe / unsubscribe -------------------------------------------------

func (h *Handler) orderflowSubscribeTrades(c echo.Context) error {
	err := h.Hub.SubscribeTrades(c.QueryParam("provider"), c.QueryParam("symbol"))
	return subscribeResult(c, err)
}

func (h *Handler) orderflowUnsubscribeTrades(c echo.Context) error {
	err := h.Hub.UnsubscribeTrades(c.QueryParam("provider"), c.QueryParam("symbol"))
	return subscribeResult(c, err)
}

func (h *Handler) orderflowSubscribeAggregateTrades(c echo.Context) error {
	err := h.Hub.SubscribeAggregateTrades(c.QueryParam("provider"), c.QueryParam("symbol"))
	return subscribeResult(c, err)
}

func (h *Handler) orderflowUnsubscribeAggregateTrades(c echo.Context) error {
	err := h.Hub.UnsubscribeAggregateTrades(c.QueryParam("provider"), c.QueryParam("symbol"))
	return subscribeResult(c, err)
}

func queryDepth(c echo.Context) int {
	depth, _ := strconv.Atoi(c.QueryParam("depth"))
	return depth
}

func (h *Handler) orderflowSubscribeOrderBook(c echo.Context) error {
	err := h.Hub.SubscribeOrderBook(c.QueryParam("provider"), c.QueryParam("symbol"), queryDepth(c))
	return subscribeResult(c, err)
}

func (h *Handler) orderflowUnsubscribeOrderBook(c echo.Context) error {
	err := h.Hub.UnsubscribeOrderBook(c.QueryParam("provider"), c.QueryParam("symbol"), queryDepth(c))
	return subscribeResult(c, err)
}

func (h *Handler) orderflowSubscribeBookTicker(c echo.Context) error {
	err := h.Hub.SubscribeBookTicker(c.QueryParam("provider"), c.QueryParam("symbol"))
	return subscribeResult(c, err)
}

func (h *Handler) orderflowUnsubscribeBookTicker(c echo.Context) error {
	err := h.Hub.UnsubscribeBookTicker(c.QueryParam("provider"), c.QueryParam("symbol"))
	return subscribeResult(c, err)
}

// subscribeAllRequest is the body for POST /api/orderflow/subscribe/all.
type subscribeAllRequest struct {
	Provider        string `json:"provider"`
	Symbol          string `json:"symbol"`
	Trades          bool   `json:"trades"`
	AggregateTrades bool   `json:"aggregateTrades"`
	OrderBook       bool   `json:"orderBook"`
	OrderBookDepth  int    `json:"orderBookDepth"`
	BookTicker      bool   `json:"bookTicker"`
}

func (h *Handler) orderflowSubscribeAll(c echo.Context) error {
	var req subscribeAllRequest
	if err := c.Bind(&req); err != nil {
		return errJSON(c, apierr.ErrInvalidArgument)
	}
	errs := h.Hub.SubscribeAll(req.Provider, req.Symbol, hubOrderFlowConfig(req))
	if len(errs) == 0 {
		return c.JSON(200, map[string]interface{}{"success": true})
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return c.JSON(200, map[string]interface{}{"success": false, "errors": msgs})
}

// --- historical reads ---------------------------------------------------

func queryCount(c echo.Context, def int) int {
	if raw := c.QueryParam("count"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			return n
		}
	}
	return def
}

func queryTimeRangeNanos(c echo.Context) (int64, int64) {
	t0, t1 := int64(0), int64(1<<62)
	if raw := c.QueryParam("startTime"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			t0 = t.UnixNano()
		}
	}
	if raw := c.QueryParam("endTime"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			t1 = t.UnixNano()
		}
	}
	return t0, t1
}

func (h *Handler) orderflowHistoricalTrades(c echo.Context) error {
	key := marketdata.NewSeriesKey(c.Param("provider"), c.Param("symbol"))
	var trades []marketdata.Trade
	if c.QueryParam("startTime") != "" || c.QueryParam("endTime") != "" {
		t0, t1 := queryTimeRangeNanos(c)
		trades = h.Hub.Trades.Range(key, t0, t1)
	} else {
		trades = h.Hub.Trades.LastN(key, queryCount(c, 100))
	}
	return c.JSON(200, wire.NewTradeDTOs(trades))
}

func (h *Handler) orderflowLatestTrade(c echo.Context) error {
	key := marketdata.NewSeriesKey(c.Param("provider"), c.Param("symbol"))
	latest := h.Hub.Trades.LastN(key, 1)
	if len(latest) == 0 {
		return c.JSON(404, map[string]string{"error": apierr.ErrNotFound.Error()})
	}
	return c.JSON(200, wire.NewTradeDTO(latest[0]))
}

func (h *Handler) orderflowHistoricalOrderBook(c echo.Context) error {
	key := marketdata.NewSeriesKey(c.Param("provider"), c.Param("symbol"))
	snaps := h.Hub.OrderBooks.LastN(key, queryCount(c, 100))
	return c.JSON(200, wire.NewOrderBookDTOs(snaps))
}

func (h *Handler) orderflowLatestOrderBook(c echo.Context) error {
	key := marketdata.NewSeriesKey(c.Param("provider"), c.Param("symbol"))
	latest := h.Hub.OrderBooks.LastN(key, 1)
	if len(latest) == 0 {
		return c.JSON(404, map[string]string{"error": apierr.ErrNotFound.Error()})
	}
	return c.JSON(200, wire.NewOrderBookDTO(latest[0]))
}

func (h *Handler) orderflowOrderBookAt(c echo.Context) error {
	ts, err := time.Parse(time.RFC3339, c.Param("timestamp"))
	if err != nil {
		return errJSON(c, apierr.ErrInvalidArgument)
	}
	key := marketdata.NewSeriesKey(c.Param("provider"), c.Param("symbol"))
	snap, ok := h.Hub.OrderBooks.At(key, ts)
	if !ok {
		return c.JSON(404, map[string]string{"error": apierr.ErrNotFound.Error()})
	}
	return c.JSON(200, wire.NewOrderBookDTO(snap))
}

// configRequest is the body for POST .../orderbook/:provider/:symbol/config/:field.
type configRequest struct {
	Value int `json:"value"`
}

// POST /api/orderflow/historical/orderbook/:provider/:symbol/config/:field
// field is "interval" (seconds) or "max" (retention cap). Reconfigures the
// store process-wide, not per (provider,symbol) — the store has no
// per-key throttle/cap knob, only one configured value for all keys.
func (h *Handler) orderflowOrderBookConfig(c echo.Context) error {
	var req configRequest
	if err := c.Bind(&req); err != nil || req.Value <= 0 {
		return errJSON(c, apierr.ErrInvalidArgument)
	}
	switch c.Param("field") {
	case "interval":
		h.Hub.OrderBooks.SetThrottleInterval(req.Value)
	case "max":
		h.Hub.OrderBooks.SetCap(req.Value)
	default:
		return errJSON(c, apierr.ErrInvalidArgument)
	}
	return c.JSON(200, map[string]string{"status": "ok"})
}

func (h *Handler) orderflowHistoricalBookTicker(c echo.Context) error {
	key := marketdata.NewSeriesKey(c.Param("provider"), c.Param("symbol"))
	snaps := h.Hub.BookTicker.LastN(key, queryCount(c, 100))
	return c.JSON(200, wire.NewBookTickerDTOs(snaps))
}

func (h *Handler) orderflowLatestBookTicker(c echo.Context) error {
	key := marketdata.NewSeriesKey(c.Param("provider"), c.Param("symbol"))
	latest := h.Hub.BookTicker.LastN(key, 1)
	if len(latest) == 0 {
		return c.JSON(404, map[string]string{"error": apierr.ErrNotFound.Error()})
	}
	return c.JSON(200, wire.NewBookTickerDTO(latest[0]))
}

func (h *Handler) orderflowBookTickerAnomalies(c echo.Context) error {
	key := marketdata.NewSeriesKey(c.Param("provider"), c.Param("symbol"))
	lookback := queryCount(c, 1000)
	threshold := 2.0
	if raw := c.QueryParam("threshold"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			threshold = v
		}
	}
	anomalies := h.Hub.BookTicker.DetectSpreadAnomalies(key, lookback, threshold)
	return c.JSON(200, wire.NewBookTickerDTOs(anomalies))
}

// GET /api/orderflow/historical/stats?provider=&symbol=
func (h *Handler) orderflowStats(c echo.Context) error {
	provider := c.QueryParam("provider")
	symbol := c.QueryParam("symbol")
	if provider == "" || symbol == "" {
		return errJSON(c, apierr.ErrInvalidArgument)
	}
	key := marketdata.NewSeriesKey(provider, symbol)
	return c.JSON(200, map[string]interface{}{
		"provider":         provider,
		"symbol":           symbol,
		"tradeCount":       h.Hub.Trades.Count(key),
		"orderBookCount":   h.Hub.OrderBooks.Count(key),
		"bookTickerCount":  h.Hub.BookTicker.Count(key),
		"averageSpread":    h.Hub.BookTicker.AverageSpread(key, 1000).InexactFloat64(),
		"averageSpreadBps": h.Hub.BookTicker.AverageSpreadBps(key, 1000).InexactFloat64(),
		"averageImbalance": h.Hub.BookTicker.AverageImbalance(key, 1000).InexactFloat64(),
	})
}

// DELETE /api/orderflow/historical/:provider/:symbol
func (h *Handler) orderflowDeleteHistory(c echo.Context) error {
	provider := c.Param("provider")
	symbol := c.Param("symbol")
	key := marketdata.NewSeriesKey(provider, symbol)
	h.Hub.Trades.Delete(key)
	h.Hub.OrderBooks.Delete(key)
	h.Hub.BookTicker.Delete(key)
	return c.JSON(200, map[string]string{"status": "deleted"})
}

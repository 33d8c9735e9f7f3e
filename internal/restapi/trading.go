package restapi

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"marketdata-backend/internal/marketdata"
	"marketdata-backend/internal/timeutil"
	"marketdata-backend/internal/wire"
)

// GET /api/trading/providers
func (h *Handler) tradingProviders(c echo.Context) error {
	return c.JSON(200, h.Hub.ProviderNames())
}

// GET /api/trading/intervals/:provider
func (h *Handler) tradingIntervals(c echo.Context) error {
	p, err := h.Hub.Provider(c.Param("provider"))
	if err != nil {
		return errJSON(c, err)
	}
	intervals := p.SupportedIntervals()
	labels := make([]string, len(intervals))
	for i, iv := range intervals {
		labels[i] = string(iv)
	}
	return c.JSON(200, labels)
}

// POST /api/trading/connect/:provider
func (h *Handler) tradingConnect(c echo.Context) error {
	if err := h.Hub.Connect(c.Request().Context(), c.Param("provider")); err != nil {
		return errJSON(c, err)
	}
	return c.JSON(200, map[string]string{"status": "connected"})
}

// POST /api/trading/subscribe/:provider/:symbol
func (h *Handler) tradingSubscribeTicker(c echo.Context) error {
	err := h.Hub.SubscribeTicker(c.Param("provider"), c.Param("symbol"))
	return subscribeResult(c, err)
}

// POST /api/trading/subscribe/klines/:provider/:symbol/:interval
func (h *Handler) tradingSubscribeKline(c echo.Context) error {
	iv, err := timeutil.ParseInterval(c.Param("interval"))
	if err != nil {
		return errJSON(c, err)
	}
	err = h.Hub.SubscribeKline(c.Param("provider"), c.Param("symbol"), iv)
	return subscribeResult(c, err)
}

// DELETE /api/trading/subscribe/klines/:provider/:symbol/:interval
func (h *Handler) tradingUnsubscribeKline(c echo.Context) error {
	iv, err := timeutil.ParseInterval(c.Param("interval"))
	if err != nil {
		return errJSON(c, err)
	}
	err = h.Hub.UnsubscribeKline(c.Param("provider"), c.Param("symbol"), iv)
	return subscribeResult(c, err)
}

// GET /api/trading/historical/:provider/:symbol/:interval?limit=N
//
// limit <= 0 returns the full retained sequence. Reads the in-memory candle
// store (never the exchange), with an optional Redis L2 cache layered in
// front to absorb repeated chart-load requests.
func (h *Handler) tradingHistorical(c echo.Context) error {
	provider := c.Param("provider")
	symbol := c.Param("symbol")
	interval := c.Param("interval")
	if _, err := timeutil.ParseInterval(interval); err != nil {
		return errJSON(c, err)
	}

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	key := marketdata.NewCandleKey(provider, symbol, interval)
	cacheKey := "candles:" + string(key) + ":" + strconv.Itoa(limit)

	dtos := cacheGet(c.Request().Context(), h.Cache, cacheKey, func() []wire.CandleDTO {
		var candles []marketdata.Candle
		if limit <= 0 {
			candles = h.Hub.Candles.Get(key)
		} else {
			candles = h.Hub.Candles.LastN(key, limit)
		}
		return wire.NewCandleDTOs(candles)
	})
	return c.JSON(200, dtos)
}

package restapi

import (
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"marketdata-backend/internal/apierr"
	"marketdata-backend/internal/timeutil"
	"marketdata-backend/internal/wire"
)

func (h *Handler) providerParam(c echo.Context) string {
	if p := c.QueryParam("provider"); p != "" {
		return p
	}
	return h.DefaultProvider
}

// GET /api/footprint/historical?symbol=&interval=&limit=100
func (h *Handler) footprintHistorical(c echo.Context) error {
	symbol := c.QueryParam("symbol")
	if symbol == "" {
		return errJSON(c, apierr.ErrInvalidArgument)
	}
	iv, err := timeutil.ParseInterval(c.QueryParam("interval"))
	if err != nil {
		return errJSON(c, err)
	}
	limit := 100
	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	candles := h.Hub.Footprint.Historical(h.providerParam(c), symbol, iv, limit)
	return c.JSON(200, wire.NewFootprintDTOs(candles))
}

// GET /api/footprint/current?symbol=&interval=
func (h *Handler) footprintCurrent(c echo.Context) error {
	symbol := c.QueryParam("symbol")
	if symbol == "" {
		return errJSON(c, apierr.ErrInvalidArgument)
	}
	iv, err := timeutil.ParseInterval(c.QueryParam("interval"))
	if err != nil {
		return errJSON(c, err)
	}

	current, ok := h.Hub.Footprint.Current(h.providerParam(c), symbol, iv)
	if !ok {
		return c.JSON(404, map[string]string{"error": apierr.ErrNotFound.Error()})
	}
	return c.JSON(200, wire.NewFootprintDTO(current))
}

// POST /api/footprint/tick-size?symbol=&tickSize=
func (h *Handler) footprintSetTickSize(c echo.Context) error {
	symbol := c.QueryParam("symbol")
	raw := c.QueryParam("tickSize")
	if symbol == "" || raw == "" {
		return errJSON(c, apierr.ErrInvalidArgument)
	}
	tickSize, err := decimal.NewFromString(raw)
	if err != nil {
		return errJSON(c, apierr.ErrInvalidArgument)
	}
	h.Hub.Footprint.SetTickSize(symbol, tickSize)
	return c.JSON(200, map[string]string{"status": "ok"})
}

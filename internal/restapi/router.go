// Package restapi implements the Trading, Footprint and Order-flow REST
// surfaces, reading only from the dispatch hub's stores and footprint
// registry, with an optional Redis L2 cache (pkg/cache) in front of the
// trading historical-candle read path only.
package restapi

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"marketdata-backend/internal/hub"
	appmiddleware "marketdata-backend/internal/middleware"
	"marketdata-backend/internal/pushhub"
	"marketdata-backend/pkg/cache"
)

// Handler holds the dependencies every REST handler reads from.
type Handler struct {
	Hub   *hub.Hub
	Cache *cache.RedisCache // optional, may be nil

	// DefaultProvider backs the footprint endpoints when their optional
	// provider query parameter is absent.
	DefaultProvider string
}

// cacheTTL bounds how long a historical read is served from the L2 cache
// before falling back to the in-memory store of record.
const cacheTTL = 2 * time.Second

// NewRouter builds an echo.Echo wired with CORS, recover, a rate limiter and
// the full Trading/Footprint/Order-flow route tree, plus the `/ws` push
// upgrade endpoint when pushHub is non-nil.
func NewRouter(h *hub.Hub, redisCache *cache.RedisCache, defaultProvider string, corsOrigins []string, rps, burst int, pushHub *pushhub.Hub) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Recover())
	e.Use(middleware.Logger())
	e.Use(appmiddleware.CORS(corsOrigins))
	e.Use(appmiddleware.RateLimit(rps, burst))

	hd := &Handler{Hub: h, Cache: redisCache, DefaultProvider: defaultProvider}

	api := e.Group("/api")

	trading := api.Group("/trading")
	trading.GET("/providers", hd.tradingProviders)
	trading.GET("/intervals/:provider", hd.tradingIntervals)
	trading.POST("/connect/:provider", hd.tradingConnect)
	trading.POST("/subscribe/:provider/:symbol", hd.tradingSubscribeTicker)
	trading.POST("/subscribe/klines/:provider/:symbol/:interval", hd.tradingSubscribeKline)
	trading.DELETE("/subscribe/klines/:provider/:symbol/:interval", hd.tradingUnsubscribeKline)
	trading.GET("/historical/:provider/:symbol/:interval", hd.tradingHistorical)

	fp := api.Group("/footprint")
	fp.GET("/historical", hd.footprintHistorical)
	fp.GET("/current", hd.footprintCurrent)
	fp.POST("/tick-size", hd.footprintSetTickSize)

	of := api.Group("/orderflow")
	of.POST("/subscribe/trades", hd.orderflowSubscribeTrades)
	of.DELETE("/subscribe/trades", hd.orderflowUnsubscribeTrades)
	of.POST("/subscribe/aggregate-trades", hd.orderflowSubscribeAggregateTrades)
	of.DELETE("/subscribe/aggregate-trades", hd.orderflowUnsubscribeAggregateTrades)
	of.POST("/subscribe/orderbook", hd.orderflowSubscribeOrderBook)
	of.DELETE("/subscribe/orderbook", hd.orderflowUnsubscribeOrderBook)
	of.POST("/subscribe/book-ticker", hd.orderflowSubscribeBookTicker)
	of.DELETE("/subscribe/book-ticker", hd.orderflowUnsubscribeBookTicker)
	of.POST("/subscribe/all", hd.orderflowSubscribeAll)

	of.GET("/historical/trades/:provider/:symbol", hd.orderflowHistoricalTrades)
	of.GET("/historical/trades/:provider/:symbol/latest", hd.orderflowLatestTrade)
	of.GET("/historical/orderbook/:provider/:symbol", hd.orderflowHistoricalOrderBook)
	of.GET("/historical/orderbook/:provider/:symbol/latest", hd.orderflowLatestOrderBook)
	of.GET("/historical/orderbook/:provider/:symbol/at/:timestamp", hd.orderflowOrderBookAt)
	of.POST("/historical/orderbook/:provider/:symbol/config/:field", hd.orderflowOrderBookConfig)
	of.GET("/historical/bookticker/:provider/:symbol", hd.orderflowHistoricalBookTicker)
	of.GET("/historical/bookticker/:provider/:symbol/latest", hd.orderflowLatestBookTicker)
	of.GET("/historical/bookticker/:provider/:symbol/anomalies", hd.orderflowBookTickerAnomalies)
	of.GET("/historical/stats", hd.orderflowStats)
	of.DELETE("/historical/:provider/:symbol", hd.orderflowDeleteHistory)

	if pushHub != nil {
		e.GET("/ws", func(c echo.Context) error {
			pushhub.HandleWebSocket(pushHub, c.Response(), c.Request())
			return nil
		})
	}

	return e
}

// cacheGet is a best-effort read-through helper: on cache miss or no cache
// configured it calls fetch and (if a cache is present) populates it.
func cacheGet[T any](ctx context.Context, c *cache.RedisCache, key string, fetch func() T) T {
	if c == nil {
		return fetch()
	}
	var out T
	if err := c.Get(ctx, key, &out); err == nil {
		return out
	}
	out = fetch()
	_ = c.Set(ctx, key, out, cacheTTL)
	return out
}

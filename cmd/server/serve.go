package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"marketdata-backend/internal/config"
	"marketdata-backend/internal/hub"
	"marketdata-backend/internal/provider/exchange"
	"marketdata-backend/internal/provider/mock"
	"marketdata-backend/internal/pushhub"
	"marketdata-backend/internal/restapi"
	"marketdata-backend/internal/timeutil"
	"marketdata-backend/pkg/cache"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the market-data backend (REST + WebSocket push surfaces)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg := config.Load()
	applyFlagOverrides(cfg)

	h := hub.New(cfg.CandleMax, cfg.TradeMax, cfg.OrderBookMax, cfg.BookTickerMax, cfg.OrderBookIntervalS, cfg.BookTickerIntervalMs)

	for symbol, rawTickSize := range cfg.TickSizes {
		tickSize, err := decimal.NewFromString(rawTickSize)
		if err != nil {
			log.Printf("ignoring malformed tick size for %s: %v", symbol, err)
			continue
		}
		h.Footprint.SetTickSize(symbol, tickSize)
	}

	registerProviders(h, cfg)

	pushHub := pushhub.NewHub()
	done := make(chan struct{})
	go pushHub.Run(done)
	h.SetPush(pushHub.Dispatch)

	defaultInterval, err := timeutil.ParseInterval(cfg.DefaultInterval)
	if err != nil {
		return err
	}
	bootstrapCtx, bootstrapCancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = h.Bootstrap(bootstrapCtx, cfg.DefaultProvider, defaultInterval, symbolSource(cfg.Symbols))
	bootstrapCancel()
	if err != nil {
		return err
	}

	var redisCache *cache.RedisCache
	if cfg.RedisURL != "" {
		redisCache = cache.NewRedisCache(cfg.RedisURL, "", 0)
	}

	e := restapi.NewRouter(h, redisCache, cfg.DefaultProvider, cfg.CorsOrigins, cfg.RateLimitRPS, cfg.RateLimitBurst, pushHub)

	go func() {
		log.Printf("server starting on port %s", cfg.Port)
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down server...")
	close(done)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return err
	}

	log.Println("server exited")
	return nil
}

// registerProviders always registers the mock provider (useful for local
// development and the push/REST test suites) and additionally registers an
// exchange provider when the configured default names one that isn't "mock".
func registerProviders(h *hub.Hub, cfg *config.Config) {
	mockProvider := mock.New(cfg.Symbols, cfg.MockScenario, cfg.MockDefaultVolatility, cfg.MockTickerMs)
	h.RegisterProvider("mock", mockProvider)

	if cfg.DefaultProvider != "mock" {
		exchangeProvider := exchange.NewClient(cfg.DefaultProvider, cfg.ExchangeBaseURL, cfg.ExchangeWSURL, cfg.Symbols)
		h.RegisterProvider(cfg.DefaultProvider, exchangeProvider)
	}
}

// symbolSource adapts a plain symbol list to hub.SymbolSource so Bootstrap
// can subscribe the configured universe to klines at startup.
type symbolSource []string

func (s symbolSource) Symbols() []string { return s }

// applyFlagOverrides layers cobra/viper-bound flags on top of the
// environment-derived config, so `--port`/`--provider`/`--log-level` win
// when set.
func applyFlagOverrides(cfg *config.Config) {
	if v := viper.GetString("port"); v != "" {
		cfg.Port = v
	}
	if v := viper.GetString("provider"); v != "" {
		cfg.DefaultProvider = v
	}
	if v := viper.GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
}

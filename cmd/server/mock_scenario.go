package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"marketdata-backend/internal/provider/mock"
)

func newMockScenarioCommand() *cobra.Command {
	var symbol string
	var scenario string
	var volatility float64
	var trend float64
	var duration time.Duration
	var tickerMs int

	cmd := &cobra.Command{
		Use:   "mock-scenario",
		Short: "Drive the mock provider's scenario/volatility/trend controls and print ticks",
		Long: "Runs a standalone mock provider for a single symbol, applies the requested " +
			"scenario/volatility/trend, and prints each tick for the given duration. Useful " +
			"for eyeballing the mock market generator without standing up the full server.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMockScenario(symbol, scenario, volatility, trend, duration, tickerMs)
		},
	}

	cmd.Flags().StringVar(&symbol, "symbol", "BTCUSDT", "symbol to drive")
	cmd.Flags().StringVar(&scenario, "scenario", string(mock.ScenarioNormal), "scenario: BULL_RUN|BEAR_MARKET|VOLATILE|SIDEWAYS|PUMP_AND_DUMP|NORMAL")
	cmd.Flags().Float64Var(&volatility, "volatility", mock.DefaultVolatility, "override per-tick volatility (<=0 keeps the provider default of 0.001; VOLATILE, SIDEWAYS and PUMP_AND_DUMP reset it every tick)")
	cmd.Flags().Float64Var(&trend, "trend", 0, "override per-tick trend (0 leaves the scenario default)")
	cmd.Flags().DurationVar(&duration, "duration", 10*time.Second, "how long to run before exiting")
	cmd.Flags().IntVar(&tickerMs, "ticker-ms", mock.DefaultTickerIntervalMillis, "ticker interval in milliseconds")

	return cmd
}

func runMockScenario(symbol, scenario string, volatility, trend float64, duration time.Duration, tickerMs int) error {
	p := mock.New([]string{symbol}, mock.Scenario(scenario), mock.DefaultVolatility, tickerMs)

	ctx, cancel := context.WithTimeout(context.Background(), duration+5*time.Second)
	defer cancel()

	if err := p.Connect(ctx); err != nil {
		return err
	}
	defer p.Disconnect()

	if err := p.SetMarketScenario(symbol, mock.Scenario(scenario)); err != nil {
		return err
	}
	if volatility > 0 {
		if err := p.SetSymbolVolatility(symbol, volatility); err != nil {
			return err
		}
	}
	if trend != 0 {
		if err := p.SetSymbolTrend(symbol, trend); err != nil {
			return err
		}
	}
	if err := p.Subscribe(symbol); err != nil {
		return err
	}

	deadline := time.Now().Add(duration)
	ticker := time.NewTicker(time.Duration(tickerMs) * time.Millisecond)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		<-ticker.C
		state, err := p.State(symbol)
		if err != nil {
			return err
		}
		fmt.Printf("%s price=%.4f trend=%.5f volatility=%.5f scenario=%s\n",
			state.Symbol, state.CurrentPrice, state.Trend, state.Volatility, state.Scenario)
	}

	return nil
}

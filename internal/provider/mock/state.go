// Package mock implements a stochastic market-data Provider: a per-symbol
// random-walk price process with named scenarios (bull run, bear market,
// volatile, sideways, pump-and-dump) driving periodic ticker and kline
// schedulers, with no external dependency. The random walk drives live
// per-tick state rather than a one-shot batch candle generator.
package mock

import (
	"math"
	"math/rand"
	"sync"
)

// Scenario is a tagged variant selecting the trend/volatility policy applied
// to a symbol's per-tick price update.
type Scenario string

const (
	ScenarioBullRun      Scenario = "BULL_RUN"
	ScenarioBearMarket   Scenario = "BEAR_MARKET"
	ScenarioVolatile     Scenario = "VOLATILE"
	ScenarioSideways     Scenario = "SIDEWAYS"
	ScenarioPumpAndDump  Scenario = "PUMP_AND_DUMP"
	ScenarioNormal       Scenario = "NORMAL"
)

// DefaultVolatility is applied to NORMAL-scenario symbols absent explicit
// configuration.
const DefaultVolatility = 0.001

// pumpPhase tracks the PUMP_AND_DUMP scenario's three-phase cycle: dormant,
// pumping, dumping.
type pumpPhase int

const (
	pumpDormant pumpPhase = iota
	pumpPumping
	pumpDumping
)

// MarketState is the full per-symbol random-walk state.
type MarketState struct {
	Symbol     string
	CurrentPrice float64
	BasePrice    float64 // mean-reversion anchor
	Trend        float64
	Volatility   float64
	Momentum     float64
	Scenario     Scenario

	TicksSinceTrendChange int64

	pumpPhase      pumpPhase
	pumpTicksLeft  int
}

// NewMarketState seeds a symbol's state at basePrice under the given
// scenario, with volatility defaulted per-scenario when zero.
func NewMarketState(symbol string, basePrice float64, scenario Scenario, volatility float64) *MarketState {
	if volatility <= 0 {
		volatility = scenarioDefaultVolatility(scenario)
	}
	return &MarketState{
		Symbol: symbol, CurrentPrice: basePrice, BasePrice: basePrice,
		Scenario: scenario, Volatility: volatility,
	}
}

func scenarioDefaultVolatility(s Scenario) float64 {
	switch s {
	case ScenarioBullRun, ScenarioBearMarket:
		return 0.0015
	case ScenarioVolatile:
		return 0.003
	case ScenarioSideways:
		return 0.0005
	default:
		return DefaultVolatility
	}
}

// engine owns the *rand.Rand used for a symbol's tick updates. Not a package
// global: each MockProvider owns one engine per symbol so scenarios are
// reproducible under an explicit seed and independent across symbols.
type engine struct {
	mu   sync.Mutex
	rand *rand.Rand
}

func newEngine(seed int64) *engine {
	return &engine{rand: rand.New(rand.NewSource(seed))}
}

func (e *engine) normFloat64() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rand.NormFloat64()
}

func (e *engine) float64() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rand.Float64()
}

// Tick advances state by one update, applying the scenario's trend/
// volatility policy then the shared price-update formula.
func (s *MarketState) Tick(eng *engine) {
	s.TicksSinceTrendChange++

	switch s.Scenario {
	case ScenarioBullRun:
		s.Trend = 0.0008
		if eng.float64() < 0.05 {
			s.Trend = -0.0005
		}
		s.Momentum += 2e-5
	case ScenarioBearMarket:
		s.Trend = -0.0008
		if eng.float64() < 0.05 {
			s.Trend = 0.0005
		}
		s.Momentum -= 2e-5
	case ScenarioVolatile:
		if s.TicksSinceTrendChange%20 == 0 {
			s.Trend = eng.normFloat64() * 0.001
		}
		s.Volatility = 0.003
	case ScenarioSideways:
		if s.TicksSinceTrendChange%50 == 0 {
			s.Trend = -s.Trend
			if s.Trend == 0 {
				s.Trend = 0.0005
			}
		}
		s.Volatility = 0.0005
	case ScenarioPumpAndDump:
		s.tickPumpAndDump(eng)
	default: // ScenarioNormal
		if s.TicksSinceTrendChange%100 == 0 {
			s.Trend = eng.normFloat64() * 3e-4
		}
		if s.Volatility <= 0 {
			s.Volatility = DefaultVolatility
		}
	}

	if math.Abs(s.Momentum) > 0.01 {
		s.Momentum /= 2
	}

	meanReversion := 0.0
	if s.BasePrice > 0 {
		deviation := (s.CurrentPrice - s.BasePrice) / s.BasePrice
		if math.Abs(deviation) > 0.10 {
			meanReversion = -0.01 * (s.CurrentPrice - s.BasePrice)
		}
	}

	delta := s.CurrentPrice*s.Trend + s.CurrentPrice*s.Momentum +
		s.CurrentPrice*s.Volatility*eng.normFloat64() + meanReversion

	s.CurrentPrice += delta
	if s.CurrentPrice < 0.01 {
		s.CurrentPrice = 0.01
	}
}

// tickPumpAndDump runs the dormant -> pump(100 ticks) -> dump(80 ticks) ->
// reset cycle, with a 0.5%-per-tick chance of starting a pump while dormant.
func (s *MarketState) tickPumpAndDump(eng *engine) {
	switch s.pumpPhase {
	case pumpDormant:
		s.Trend = 0
		s.Volatility = DefaultVolatility
		if eng.float64() < 0.005 {
			s.StartPump()
		}
	case pumpPumping:
		s.Trend = 0.01
		s.Volatility = 0.003
		s.pumpTicksLeft--
		if s.pumpTicksLeft <= 0 {
			s.pumpPhase = pumpDumping
			s.pumpTicksLeft = 80
		}
	case pumpDumping:
		s.Trend = -0.015
		s.Volatility = 0.005
		s.pumpTicksLeft--
		if s.pumpTicksLeft <= 0 {
			s.pumpPhase = pumpDormant
			s.Trend = 0
			s.Volatility = DefaultVolatility
		}
	}
}

// StartPump manually triggers the pump phase (control surface: triggerPump).
func (s *MarketState) StartPump() {
	s.pumpPhase = pumpPumping
	s.pumpTicksLeft = 100
}

// StartDump manually triggers the dump phase directly (control surface:
// triggerDump), skipping the pump phase.
func (s *MarketState) StartDump() {
	s.pumpPhase = pumpDumping
	s.pumpTicksLeft = 80
}

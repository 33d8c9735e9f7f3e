package footprint

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"marketdata-backend/internal/marketdata"
	"marketdata-backend/internal/timeutil"
)

// autoCloseSweep is the fixed cadence of the background closer.
const autoCloseSweep = 10 * time.Second

// Registry owns one Builder per (provider, symbol, interval) and runs the
// 10-second auto-closer sweep across all of them.
type Registry struct {
	mu       sync.RWMutex
	builders map[string]*Builder
	tickSize map[string]decimal.Decimal // per-symbol tick size override

	stopOnce sync.Once
	stopCh   chan struct{}
	onClose  func(marketdata.FootprintCandle)
}

// NewRegistry builds a footprint Registry. onClose, if non-nil, is invoked
// for every bucket closed by any managed Builder (used to fan closed
// footprints out through the dispatch hub).
func NewRegistry(onClose func(marketdata.FootprintCandle)) *Registry {
	return &Registry{
		builders: make(map[string]*Builder),
		tickSize: make(map[string]decimal.Decimal),
		stopCh:   make(chan struct{}),
		onClose:  onClose,
	}
}

func seriesKey(provider, symbol, interval string) string {
	return provider + "_" + symbol + "_" + interval
}

// SetTickSize configures the tick size used for a given symbol across all
// its intervals and providers.
func (r *Registry) SetTickSize(symbol string, tickSize decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tickSize[symbol] = tickSize
	for key, b := range r.builders {
		if hasSymbol(key, symbol) {
			b.SetTickSize(tickSize)
		}
	}
}

func hasSymbol(key, symbol string) bool {
	// key is provider_symbol_interval; symbol never contains '_' in this
	// model so a substring match bounded by underscores is sufficient.
	return len(key) > len(symbol) && containsToken(key, symbol)
}

func containsToken(key, token string) bool {
	for i := 0; i+len(token) <= len(key); i++ {
		if key[i:i+len(token)] == token {
			before := i == 0 || key[i-1] == '_'
			after := i+len(token) == len(key) || key[i+len(token)] == '_'
			if before && after {
				return true
			}
		}
	}
	return false
}

func (r *Registry) builderFor(provider, symbol string, interval timeutil.Interval) *Builder {
	key := seriesKey(provider, symbol, string(interval))

	r.mu.RLock()
	b, ok := r.builders[key]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok = r.builders[key]; ok {
		return b
	}
	tickSize := r.tickSize[symbol]
	b = NewBuilder(provider, symbol, interval, tickSize, r.onClose)
	r.builders[key] = b
	return b
}

// AddTrade routes a trade into the builder for (provider, symbol, interval),
// creating it on first use. Call once per tracked
// interval; the dispatch hub fans a single trade event out across the
// intervals it is configured to aggregate.
func (r *Registry) AddTrade(provider string, interval timeutil.Interval, t marketdata.Trade) {
	r.builderFor(provider, t.Symbol, interval).AddTrade(t)
}

// Current returns the synthesized non-frozen current candle for
// (provider, symbol, interval).
func (r *Registry) Current(provider, symbol string, interval timeutil.Interval) (marketdata.FootprintCandle, bool) {
	return r.builderFor(provider, symbol, interval).Current(time.Now())
}

// Historical returns up to `limit` closed footprint candles for
// (provider, symbol, interval), oldest-first.
func (r *Registry) Historical(provider, symbol string, interval timeutil.Interval, limit int) []marketdata.FootprintCandle {
	return r.builderFor(provider, symbol, interval).Historical(limit)
}

// StartAutoCloser launches the background 10-second sweep that closes any
// builder bucket whose period has strictly ended. Stop via Stop().
func (r *Registry) StartAutoCloser() {
	ticker := time.NewTicker(autoCloseSweep)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.sweep()
			case <-r.stopCh:
				return
			}
		}
	}()
}

func (r *Registry) sweep() {
	now := time.Now()
	r.mu.RLock()
	builders := make([]*Builder, 0, len(r.builders))
	for _, b := range r.builders {
		builders = append(builders, b)
	}
	r.mu.RUnlock()

	for _, b := range builders {
		b.CloseBefore(now)
	}
}

// Stop stops the auto-closer sweep. Idempotent.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

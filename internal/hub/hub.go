// Package hub implements the dispatch hub: the process-wide owner of every
// registered Provider, the store writes each provider's events feed, and the
// single replaceable push callback (SetPush) that feeds the push surface,
// distinct from each provider's own multi-subscriber event bus.
package hub

import (
	"context"
	"fmt"
	"log"
	"sync"

	"marketdata-backend/internal/apierr"
	"marketdata-backend/internal/footprint"
	"marketdata-backend/internal/marketdata"
	"marketdata-backend/internal/provider"
	"marketdata-backend/internal/store"
	"marketdata-backend/internal/timeutil"
)

// SymbolSource is the minimal collaborator contract a strategy component
// exposes so the hub can bootstrap kline subscriptions at startup without
// depending on any strategy package.
type SymbolSource interface {
	Symbols() []string
}

// OrderFlowConfig enumerates the opt-in order-flow stream types the hub
// subscribes on bootstrap, beyond the default kline subscription.
type OrderFlowConfig struct {
	Trades          bool
	AggregateTrades bool
	OrderBook       bool
	OrderBookDepth  int
	BookTicker      bool
}

// PushFunc is the downstream callback the hub forwards every normalized
// event to, after storing it (e.g. the WebSocket push surface).
type PushFunc func(provider.Event)

// Hub is the process-wide dispatch hub: provider registry, per-provider
// state machine, store writes, and push fan-out.
type Hub struct {
	mu        sync.RWMutex
	providers map[string]provider.Provider
	states    map[string]*providerStateMachine

	Candles    *store.CandleStore
	Trades     *store.TradeStore
	OrderBooks *store.OrderBookStore
	BookTicker *store.BookTickerStore
	Footprint  *footprint.Registry

	pushMu sync.Mutex
	push   PushFunc
}

// New constructs a Hub wired to freshly-created stores and footprint
// registry, each configured with the given caps/throttle intervals.
func New(candleCap, tradeCap, orderBookCap, bookTickerCap int, orderBookIntervalS int, bookTickerIntervalMs int) *Hub {
	h := &Hub{
		providers:  make(map[string]provider.Provider),
		states:     make(map[string]*providerStateMachine),
		Candles:    store.NewCandleStore(candleCap),
		Trades:     store.NewTradeStore(tradeCap),
		OrderBooks: store.NewOrderBookStore(orderBookCap, orderBookIntervalS),
		BookTicker: store.NewBookTickerStore(bookTickerCap, bookTickerIntervalMs),
	}
	h.Footprint = footprint.NewRegistry(func(fc marketdata.FootprintCandle) {
		h.dispatchPush(provider.Event{
			Type: provider.StreamKline, Provider: fc.Provider, Symbol: fc.Symbol,
			Interval: fc.Interval, Candle: &fc.Candle,
		})
	})
	h.Footprint.StartAutoCloser()
	return h
}

// SetPush installs the downstream push callback, replacing any prior one.
// Logs a warning on replacement rather than erroring: the push surface
// itself is a single reference, distinct from the per-provider event
// pub-sub which is already multi-subscriber.
func (h *Hub) SetPush(fn PushFunc) {
	h.pushMu.Lock()
	defer h.pushMu.Unlock()
	if h.push != nil {
		log.Printf("[hub] WARNING: replacing existing push sink")
	}
	h.push = fn
}

func (h *Hub) dispatchPush(ev provider.Event) {
	h.pushMu.Lock()
	fn := h.push
	h.pushMu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

// RegisterProvider adds a provider under name, transitioning it to
// REGISTERED, and subscribes the hub's event handler to its bus if it
// implements provider.EventSource.
func (h *Hub) RegisterProvider(name string, p provider.Provider) {
	h.mu.Lock()
	h.providers[name] = p
	h.states[name] = newProviderStateMachine()
	h.mu.Unlock()

	if src, ok := p.(provider.EventSource); ok {
		src.Events().Subscribe(func(ev provider.Event) { h.handleEvent(name, ev) })
	}
}

func (h *Hub) Provider(name string) (provider.Provider, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	p, ok := h.providers[name]
	if !ok {
		return nil, apierr.ErrUnknownProvider
	}
	return p, nil
}

func (h *Hub) ProviderNames() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.providers))
	for name := range h.providers {
		out = append(out, name)
	}
	return out
}

func (h *Hub) state(name string) *providerStateMachine {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.states[name]
}

// Connect connects the named provider and transitions REGISTERED -> CONNECTED.
func (h *Hub) Connect(ctx context.Context, name string) error {
	p, err := h.Provider(name)
	if err != nil {
		return err
	}
	if err := p.Connect(ctx); err != nil {
		return err
	}
	h.state(name).MarkConnected()
	return nil
}

// Disconnect disconnects the named provider and transitions back to
// REGISTERED, clearing its subscription set.
func (h *Hub) Disconnect(name string) error {
	p, err := h.Provider(name)
	if err != nil {
		return err
	}
	if err := p.Disconnect(); err != nil {
		return err
	}
	h.state(name).MarkDisconnected()
	return nil
}

// handleEvent is the hub's single internal sink for every provider's event
// bus: it writes to the appropriate store, then forwards to the push
// callback if registered.
func (h *Hub) handleEvent(providerName string, ev provider.Event) {
	switch ev.Type {
	case provider.StreamKline:
		if ev.Candle != nil {
			h.Candles.Add(*ev.Candle)
		}
	case provider.StreamTrade:
		if ev.Trade != nil {
			h.Trades.Add(*ev.Trade)
			h.foldTradeIntoFootprint(providerName, *ev.Trade)
		}
	case provider.StreamAggregateTrade:
		if ev.Trade != nil {
			h.Trades.Add(*ev.Trade)
		}
	case provider.StreamOrderBook:
		if ev.OrderBook != nil {
			h.OrderBooks.Add(*ev.OrderBook)
		}
	case provider.StreamBookTicker:
		if ev.BookTicker != nil {
			h.BookTicker.Add(*ev.BookTicker)
		}
	}
	h.dispatchPush(ev)
}

// foldTradeIntoFootprint routes a trade into every interval's footprint
// builder the hub is tracking for that symbol. Tracked intervals come from
// the provider's active kline subscriptions.
func (h *Hub) foldTradeIntoFootprint(providerName string, t marketdata.Trade) {
	sm := h.state(providerName)
	if sm == nil {
		return
	}
	for _, key := range sm.Subscriptions() {
		if key.streamType == provider.StreamKline && key.symbol == t.Symbol {
			h.Footprint.AddTrade(providerName, timeutil.Interval(key.interval), t)
		}
	}
}

// Subscribe* wrap the provider's own subscribe calls with hub-side
// subscription-set bookkeeping used by the footprint router and REST stats
// surface.

func (h *Hub) SubscribeKline(providerName, symbol string, interval timeutil.Interval) error {
	p, err := h.Provider(providerName)
	if err != nil {
		return err
	}
	if err := p.SubscribeKline(symbol, interval); err != nil {
		return err
	}
	h.state(providerName).AddSubscription(subscriptionKey{streamType: provider.StreamKline, symbol: symbol, interval: string(interval)})
	return nil
}

func (h *Hub) UnsubscribeKline(providerName, symbol string, interval timeutil.Interval) error {
	p, err := h.Provider(providerName)
	if err != nil {
		return err
	}
	if err := p.UnsubscribeKline(symbol, interval); err != nil {
		return err
	}
	h.state(providerName).RemoveSubscription(subscriptionKey{streamType: provider.StreamKline, symbol: symbol, interval: string(interval)})
	return nil
}

func (h *Hub) SubscribeTicker(providerName, symbol string) error {
	p, err := h.Provider(providerName)
	if err != nil {
		return err
	}
	if err := p.Subscribe(symbol); err != nil {
		return err
	}
	h.state(providerName).AddSubscription(subscriptionKey{streamType: provider.StreamTicker, symbol: symbol})
	return nil
}

func (h *Hub) subscribeOrderFlow(providerName, symbol string, streamType provider.StreamType, depth int) error {
	p, err := h.Provider(providerName)
	if err != nil {
		return err
	}
	switch streamType {
	case provider.StreamTrade:
		err = p.SubscribeTrades(symbol)
	case provider.StreamAggregateTrade:
		err = p.SubscribeAggregateTrades(symbol)
	case provider.StreamOrderBook:
		err = p.SubscribeOrderBook(symbol, depth)
	case provider.StreamBookTicker:
		err = p.SubscribeBookTicker(symbol)
	default:
		return fmt.Errorf("%w: unsupported order-flow stream %s", apierr.ErrInvalidArgument, streamType)
	}
	if err != nil {
		return err
	}
	h.state(providerName).AddSubscription(subscriptionKey{streamType: streamType, symbol: symbol, depth: depth})
	return nil
}

func (h *Hub) SubscribeTrades(providerName, symbol string) error {
	return h.subscribeOrderFlow(providerName, symbol, provider.StreamTrade, 0)
}

func (h *Hub) SubscribeAggregateTrades(providerName, symbol string) error {
	return h.subscribeOrderFlow(providerName, symbol, provider.StreamAggregateTrade, 0)
}

func (h *Hub) SubscribeOrderBook(providerName, symbol string, depth int) error {
	return h.subscribeOrderFlow(providerName, symbol, provider.StreamOrderBook, depth)
}

func (h *Hub) SubscribeBookTicker(providerName, symbol string) error {
	return h.subscribeOrderFlow(providerName, symbol, provider.StreamBookTicker, 0)
}

func (h *Hub) unsubscribeOrderFlow(providerName, symbol string, streamType provider.StreamType, depth int) error {
	p, err := h.Provider(providerName)
	if err != nil {
		return err
	}
	switch streamType {
	case provider.StreamTrade:
		err = p.UnsubscribeTrades(symbol)
	case provider.StreamAggregateTrade:
		err = p.UnsubscribeAggregateTrades(symbol)
	case provider.StreamOrderBook:
		err = p.UnsubscribeOrderBook(symbol)
	case provider.StreamBookTicker:
		err = p.UnsubscribeBookTicker(symbol)
	default:
		return fmt.Errorf("%w: unsupported order-flow stream %s", apierr.ErrInvalidArgument, streamType)
	}
	if err != nil {
		return err
	}
	h.state(providerName).RemoveSubscription(subscriptionKey{streamType: streamType, symbol: symbol, depth: depth})
	return nil
}

func (h *Hub) UnsubscribeTrades(providerName, symbol string) error {
	return h.unsubscribeOrderFlow(providerName, symbol, provider.StreamTrade, 0)
}

func (h *Hub) UnsubscribeAggregateTrades(providerName, symbol string) error {
	return h.unsubscribeOrderFlow(providerName, symbol, provider.StreamAggregateTrade, 0)
}

// UnsubscribeOrderBook removes the order-book subscription for symbol at the
// given depth. depth must match the value used at subscribe time for the
// hub's bookkeeping to clear correctly; the provider call itself is
// depth-independent.
func (h *Hub) UnsubscribeOrderBook(providerName, symbol string, depth int) error {
	return h.unsubscribeOrderFlow(providerName, symbol, provider.StreamOrderBook, depth)
}

func (h *Hub) UnsubscribeBookTicker(providerName, symbol string) error {
	return h.unsubscribeOrderFlow(providerName, symbol, provider.StreamBookTicker, 0)
}

// SubscribeAll issues every order-flow subscription enabled by cfg.
func (h *Hub) SubscribeAll(providerName, symbol string, cfg OrderFlowConfig) []error {
	var errs []error
	if cfg.Trades {
		if err := h.SubscribeTrades(providerName, symbol); err != nil {
			errs = append(errs, err)
		}
	}
	if cfg.AggregateTrades {
		if err := h.SubscribeAggregateTrades(providerName, symbol); err != nil {
			errs = append(errs, err)
		}
	}
	if cfg.OrderBook {
		if err := h.SubscribeOrderBook(providerName, symbol, cfg.OrderBookDepth); err != nil {
			errs = append(errs, err)
		}
	}
	if cfg.BookTicker {
		if err := h.SubscribeBookTicker(providerName, symbol); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Bootstrap connects providerName and subscribes both the ticker and kline
// streams for the union of symbols exposed by every given SymbolSource, at
// the given default interval. The ticker subscription is what drives
// intra-period high/low/volume accumulation into the candle store between
// kline closes; per-symbol subscription failures are logged and skipped —
// the system continues with partial coverage.
func (h *Hub) Bootstrap(ctx context.Context, providerName string, interval timeutil.Interval, sources ...SymbolSource) error {
	if err := h.Connect(ctx, providerName); err != nil {
		return err
	}

	seen := make(map[string]struct{})
	for _, src := range sources {
		for _, sym := range src.Symbols() {
			if _, ok := seen[sym]; ok {
				continue
			}
			seen[sym] = struct{}{}
			if err := h.SubscribeKline(providerName, sym, interval); err != nil {
				log.Printf("[hub] bootstrap subscribe failed for %s/%s: %v", providerName, sym, err)
			}
			if err := h.SubscribeTicker(providerName, sym); err != nil {
				log.Printf("[hub] bootstrap ticker subscribe failed for %s/%s: %v", providerName, sym, err)
			}
		}
	}
	return nil
}

// ProviderState exposes a provider's current lifecycle state, for
// diagnostics endpoints.
func (h *Hub) ProviderState(name string) ProviderState {
	sm := h.state(name)
	if sm == nil {
		return StateUnregistered
	}
	return sm.Current()
}

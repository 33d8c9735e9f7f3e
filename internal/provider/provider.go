// Package provider defines the contract every market-data source (exchange
// WS client, mock simulator) must satisfy, plus the multi-subscriber
// publish-subscribe event bus that stands beside the single overwritable
// data-handler sink.
package provider

import (
	"context"
	"log"
	"sync"

	"marketdata-backend/internal/marketdata"
	"marketdata-backend/internal/timeutil"
)

// StreamType enumerates the kinds of subscriptions a Provider supports.
type StreamType string

const (
	StreamTicker          StreamType = "TICKER"
	StreamKline           StreamType = "KLINE"
	StreamTrade           StreamType = "TRADE"
	StreamAggregateTrade  StreamType = "AGGREGATE_TRADE"
	StreamOrderBook       StreamType = "ORDER_BOOK"
	StreamBookTicker      StreamType = "BOOK_TICKER"
)

// Event is a normalized market-data event emitted by a Provider into the
// event bus. At most one of the Candle/Trade/OrderBook/BookTicker fields is
// populated, matching Type; ticker events carry none of them.
type Event struct {
	Type     StreamType
	Provider string
	Symbol   string
	Interval string // set for StreamKline

	Candle      *marketdata.Candle
	Trade       *marketdata.Trade
	OrderBook   *marketdata.OrderBookSnapshot
	BookTicker  *marketdata.BookTickerSnapshot
}

// EventHandler receives normalized provider events.
type EventHandler func(Event)

// Subscription identifies a provider's (streamType, symbol[, interval|depth])
// subscription for the hub's state machine.
type Subscription struct {
	Type     StreamType
	Symbol   string
	Interval timeutil.Interval // set for StreamKline
	Depth    int               // set for StreamOrderBook
}

// Provider is the contract every market-data source implements.
type Provider interface {
	ProviderName() string
	SupportedSymbols() []string
	SupportedIntervals() []timeutil.Interval

	Connect(ctx context.Context) error
	Disconnect() error
	IsConnected() bool

	Subscribe(symbol string) error
	Unsubscribe(symbol string) error
	SubscribeKline(symbol string, interval timeutil.Interval) error
	UnsubscribeKline(symbol string, interval timeutil.Interval) error
	SubscribeTrades(symbol string) error
	UnsubscribeTrades(symbol string) error
	SubscribeAggregateTrades(symbol string) error
	UnsubscribeAggregateTrades(symbol string) error
	SubscribeOrderBook(symbol string, depth int) error
	UnsubscribeOrderBook(symbol string) error
	SubscribeBookTicker(symbol string) error
	UnsubscribeBookTicker(symbol string) error

	// SetDataHandler installs a single callback sink, replacing any prior
	// one (logged as a warning, not an error). Deprecated: prefer the
	// provider's EventBus via Events() and Subscribe for multiple
	// independent subscribers.
	SetDataHandler(h EventHandler)

	GetHistoricalKlines(ctx context.Context, symbol string, interval timeutil.Interval, limit int) ([]marketdata.Candle, error)
	GetHistoricalTrades(ctx context.Context, symbol string, limit int) ([]marketdata.Trade, error)
	GetHistoricalAggregateTrades(ctx context.Context, symbol string, limit int) ([]marketdata.Trade, error)
	GetHistoricalOrderBookSnapshot(ctx context.Context, symbol string, limit int) ([]marketdata.OrderBookSnapshot, error)
}

// EventSource is implemented by providers that expose their internal
// EventBus directly, letting the dispatch hub subscribe to normalized events
// without going through the deprecated single-sink SetDataHandler path.
type EventSource interface {
	Events() *EventBus
}

// EventBus is a small publish-subscribe registry with explicit
// multi-subscriber subscribe/unsubscribe, alongside a single overwritable
// legacy data-handler sink. It is not keyed by topic: every subscriber
// receives every published event and does its own filtering.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[int]EventHandler
	nextID      int

	legacyMu      sync.Mutex
	legacySink    EventHandler
}

// NewEventBus constructs an empty EventBus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[int]EventHandler)}
}

// Subscribe registers fn and returns an unsubscribe function.
func (b *EventBus) Subscribe(fn EventHandler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subscribers[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subscribers, id)
		b.mu.Unlock()
	}
}

// SetLegacySink installs a single-callback sink, replacing any previous one.
// Kept only for the deprecated Provider.SetDataHandler convenience; logs a
// warning when it overwrites an existing sink.
func (b *EventBus) SetLegacySink(fn EventHandler) {
	b.legacyMu.Lock()
	defer b.legacyMu.Unlock()
	if b.legacySink != nil {
		log.Printf("[EventBus] WARNING: replacing existing data handler sink")
	}
	b.legacySink = fn
}

// Publish delivers ev to every subscriber (including the legacy sink, if
// set) synchronously, in registration order is not guaranteed across a map,
// but per-subscriber delivery order matches publish order since Publish
// itself is called from a single per-provider reader goroutine.
func (b *EventBus) Publish(ev Event) {
	b.mu.RLock()
	handlers := make([]EventHandler, 0, len(b.subscribers))
	for _, fn := range b.subscribers {
		handlers = append(handlers, fn)
	}
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(ev)
	}

	b.legacyMu.Lock()
	sink := b.legacySink
	b.legacyMu.Unlock()
	if sink != nil {
		sink(ev)
	}
}

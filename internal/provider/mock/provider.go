package mock

import (
	"context"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"marketdata-backend/internal/apierr"
	"marketdata-backend/internal/marketdata"
	"marketdata-backend/internal/provider"
	"marketdata-backend/internal/timeutil"
)

// eventQueueCap bounds the ticker/kline-scheduler-to-publisher handoff so a
// slow downstream subscriber cannot stall the random-walk tick goroutines.
const eventQueueCap = 4096

// DefaultTickerIntervalMillis is the default cadence of the ticker scheduler.
const DefaultTickerIntervalMillis = 100

// HistoricalCacheCap bounds the per-(symbol,interval) candle cache used for
// reverse-walked historical synthesis.
const HistoricalCacheCap = 2000

// symbolSeries holds everything the provider tracks for one symbol: its
// random-walk state, per-interval candle caches, and the set of streams it
// is currently subscribed on.
type symbolSeries struct {
	mu     sync.Mutex
	state  *MarketState
	engine *engine

	candles map[timeutil.Interval][]marketdata.Candle // oldest-first, size-bounded

	klineSubs map[timeutil.Interval]*time.Ticker
	tickerSub *time.Ticker
	stopKline map[timeutil.Interval]chan struct{}
	stopTicker chan struct{}
}

// Provider is a stochastic market-data source requiring no external
// connection: a random-walk price process per symbol with named scenarios.
type Provider struct {
	mu       sync.RWMutex
	symbols  map[string]*symbolSeries
	intervals []timeutil.Interval

	connected bool
	seedBase  int64

	tickerIntervalMillis int
	defaultVolatility    float64
	defaultScenario      Scenario

	bus    *provider.EventBus
	events chan provider.Event
	stopCh chan struct{}

	wg sync.WaitGroup
}

// New constructs a mock Provider for the given symbols under defaultScenario,
// each seeded at basePriceFor(symbol): 50000 for BTCUSDT, 3000 for ETHUSDT,
// 100 otherwise.
func New(symbols []string, defaultScenario Scenario, defaultVolatility float64, tickerIntervalMillis int) *Provider {
	if tickerIntervalMillis <= 0 {
		tickerIntervalMillis = DefaultTickerIntervalMillis
	}
	if defaultVolatility <= 0 {
		defaultVolatility = DefaultVolatility
	}
	if defaultScenario == "" {
		defaultScenario = ScenarioNormal
	}

	p := &Provider{
		symbols:              make(map[string]*symbolSeries),
		intervals:             timeutil.AllIntervals,
		tickerIntervalMillis:  tickerIntervalMillis,
		defaultVolatility:     defaultVolatility,
		defaultScenario:       defaultScenario,
		bus:                   provider.NewEventBus(),
		events:                make(chan provider.Event, eventQueueCap),
		seedBase:              1,
	}
	for i, sym := range symbols {
		p.symbols[sym] = &symbolSeries{
			state:     NewMarketState(sym, basePriceFor(sym), defaultScenario, defaultVolatility),
			engine:    newEngine(p.seedBase + int64(i)),
			candles:   make(map[timeutil.Interval][]marketdata.Candle),
			klineSubs: make(map[timeutil.Interval]*time.Ticker),
			stopKline: make(map[timeutil.Interval]chan struct{}),
		}
	}
	return p
}

func basePriceFor(symbol string) float64 {
	switch symbol {
	case "BTCUSDT":
		return 50000
	case "ETHUSDT":
		return 3000
	default:
		return 100
	}
}

func (p *Provider) ProviderName() string { return "mock" }

func (p *Provider) SupportedSymbols() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.symbols))
	for s := range p.symbols {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (p *Provider) SupportedIntervals() []timeutil.Interval { return p.intervals }

func (p *Provider) Connect(ctx context.Context) error {
	p.mu.Lock()
	if p.connected {
		p.mu.Unlock()
		return nil
	}
	p.connected = true
	p.stopCh = make(chan struct{})
	p.mu.Unlock()

	p.wg.Add(1)
	go p.publishLoop()
	return nil
}

// Disconnect stops every running ticker/kline timer and the publish loop,
// then marks the provider disconnected. Idempotent.
func (p *Provider) Disconnect() error {
	p.mu.Lock()
	if !p.connected {
		p.mu.Unlock()
		return nil
	}
	p.connected = false
	for _, s := range p.symbols {
		s.mu.Lock()
		p.stopTickerLocked(s)
		for iv := range s.klineSubs {
			p.stopKlineLocked(s, iv)
		}
		s.mu.Unlock()
	}
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()
	return nil
}

// publish hands ev to the bounded queue rather than calling the bus
// directly, so a slow subscriber cannot stall the tick/kline scheduler
// goroutines that call it.
func (p *Provider) publish(ev provider.Event) {
	select {
	case p.events <- ev:
	default:
		log.Printf("[mock] event queue full, dropping %s event for %s", ev.Type, ev.Symbol)
	}
}

// publishLoop drains the bounded event queue into the EventBus, decoupling
// the random-walk scheduler goroutines from subscriber processing time.
func (p *Provider) publishLoop() {
	defer p.wg.Done()
	for {
		select {
		case ev := <-p.events:
			p.bus.Publish(ev)
		case <-p.stopCh:
			for {
				select {
				case ev := <-p.events:
					p.bus.Publish(ev)
				default:
					return
				}
			}
		}
	}
}

func (p *Provider) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

func (p *Provider) symbol(sym string) (*symbolSeries, error) {
	p.mu.RLock()
	s, ok := p.symbols[sym]
	p.mu.RUnlock()
	if !ok {
		return nil, apierr.ErrUnknownSymbol
	}
	return s, nil
}

func (p *Provider) requireConnected() error {
	if !p.IsConnected() {
		return apierr.ErrNotConnected
	}
	return nil
}

// Subscribe starts the ticker scheduler for symbol.
func (p *Provider) Subscribe(sym string) error {
	if err := p.requireConnected(); err != nil {
		return err
	}
	s, err := p.symbol(sym)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tickerSub != nil {
		return nil // idempotent
	}
	s.stopTicker = make(chan struct{})
	s.tickerSub = time.NewTicker(time.Duration(p.tickerIntervalMillis) * time.Millisecond)
	p.wg.Add(1)
	go p.runTicker(sym, s)
	return nil
}

func (p *Provider) Unsubscribe(sym string) error {
	s, err := p.symbol(sym)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p.stopTickerLocked(s)
	return nil
}

func (p *Provider) stopTickerLocked(s *symbolSeries) {
	if s.tickerSub == nil {
		return
	}
	s.tickerSub.Stop()
	close(s.stopTicker)
	s.tickerSub = nil
}

func (p *Provider) runTicker(sym string, s *symbolSeries) {
	defer p.wg.Done()
	for {
		select {
		case <-s.tickerSub.C:
			p.onTickerFire(sym, s)
		case <-s.stopTicker:
			return
		}
	}
}

// onTickerFire advances the symbol's random walk one tick, folds the new
// price into the open candle of every subscribed interval, and publishes
// both a TICKER event and the just-folded candle (as a KLINE event) for
// each subscribed interval, so the candle store reflects every tick's
// intra-period high/low/volume rather than only the close.
func (p *Provider) onTickerFire(sym string, s *symbolSeries) {
	s.mu.Lock()
	s.state.Tick(s.engine)
	price := decimal.NewFromFloat(s.state.CurrentPrice)
	now := time.Now().UTC()

	folded := make(map[timeutil.Interval]marketdata.Candle, len(s.klineSubs))
	for iv := range s.klineSubs {
		p.foldTickLocked(sym, s, iv, price, now)
		list := s.candles[iv]
		folded[iv] = list[len(list)-1]
	}
	s.mu.Unlock()

	p.publish(provider.Event{Type: provider.StreamTicker, Provider: p.ProviderName(), Symbol: sym})
	for iv, candle := range folded {
		c := candle
		p.publish(provider.Event{
			Type: provider.StreamKline, Provider: p.ProviderName(), Symbol: sym,
			Interval: string(iv), Candle: &c,
		})
	}
}

// foldTickLocked applies a tick's price into the currently-open candle for
// (sym, iv), creating it if absent. Caller must hold s.mu.
func (p *Provider) foldTickLocked(sym string, s *symbolSeries, iv timeutil.Interval, price decimal.Decimal, now time.Time) {
	bucket := timeutil.BucketStart(now, iv)
	list := s.candles[iv]

	if n := len(list); n > 0 && list[n-1].OpenTime.Equal(bucket) {
		c := &list[n-1]
		if price.GreaterThan(c.High) {
			c.High = price
		}
		if price.LessThan(c.Low) {
			c.Low = price
		}
		c.Close = price
		c.Volume = c.Volume.Add(decimal.NewFromFloat(0.01))
		c.TradeCount++
		return
	}

	s.candles[iv] = appendCandleCapped(list, marketdata.Candle{
		Symbol: sym, Provider: p.ProviderName(), Interval: string(iv),
		OpenTime: bucket, CloseTime: timeutil.BucketEnd(bucket, iv),
		Open: price, High: price, Low: price, Close: price,
		Volume: decimal.NewFromFloat(0.01), Closed: false,
	})
}

func appendCandleCapped(list []marketdata.Candle, c marketdata.Candle) []marketdata.Candle {
	list = append(list, c)
	if over := len(list) - HistoricalCacheCap; over > 0 {
		list = append([]marketdata.Candle(nil), list[over:]...)
	}
	return list
}

// SubscribeKline starts the kline scheduler for (symbol, interval).
func (p *Provider) SubscribeKline(sym string, iv timeutil.Interval) error {
	if err := p.requireConnected(); err != nil {
		return err
	}
	if !iv.Valid() {
		return apierr.ErrInvalidInterval
	}
	s, err := p.symbol(sym)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.klineSubs[iv]; ok {
		return nil
	}
	stop := make(chan struct{})
	ticker := time.NewTicker(iv.Duration())
	s.klineSubs[iv] = ticker
	s.stopKline[iv] = stop
	p.wg.Add(1)
	go p.runKline(sym, s, iv, ticker, stop)
	return nil
}

func (p *Provider) UnsubscribeKline(sym string, iv timeutil.Interval) error {
	s, err := p.symbol(sym)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p.stopKlineLocked(s, iv)
	return nil
}

func (p *Provider) stopKlineLocked(s *symbolSeries, iv timeutil.Interval) {
	ticker, ok := s.klineSubs[iv]
	if !ok {
		return
	}
	ticker.Stop()
	close(s.stopKline[iv])
	delete(s.klineSubs, iv)
	delete(s.stopKline, iv)
}

func (p *Provider) runKline(sym string, s *symbolSeries, iv timeutil.Interval, ticker *time.Ticker, stop chan struct{}) {
	defer p.wg.Done()
	for {
		select {
		case <-ticker.C:
			p.onKlineFire(sym, s, iv)
		case <-stop:
			return
		}
	}
}

// onKlineFire freezes the previous period's candle and opens a new
// O=H=L=C=currentPrice candle if the ticker scheduler hasn't already created
// the current period's candle.
func (p *Provider) onKlineFire(sym string, s *symbolSeries, iv timeutil.Interval) {
	s.mu.Lock()
	now := time.Now().UTC()
	bucket := timeutil.BucketStart(now, iv)
	price := decimal.NewFromFloat(s.state.CurrentPrice)

	list := s.candles[iv]
	if n := len(list); n > 0 {
		last := &list[n-1]
		if last.OpenTime.Before(bucket) {
			last.Closed = true
			s.candles[iv] = appendCandleCapped(list, marketdata.Candle{
				Symbol: sym, Provider: p.ProviderName(), Interval: string(iv),
				OpenTime: bucket, CloseTime: timeutil.BucketEnd(bucket, iv),
				Open: price, High: price, Low: price, Close: price,
				Volume: decimal.Zero, Closed: false,
			})
		}
	} else {
		s.candles[iv] = appendCandleCapped(list, marketdata.Candle{
			Symbol: sym, Provider: p.ProviderName(), Interval: string(iv),
			OpenTime: bucket, CloseTime: timeutil.BucketEnd(bucket, iv),
			Open: price, High: price, Low: price, Close: price,
			Volume: decimal.Zero, Closed: false,
		})
	}
	emitted := s.candles[iv][len(s.candles[iv])-1]
	s.mu.Unlock()

	p.publish(provider.Event{
		Type: provider.StreamKline, Provider: p.ProviderName(), Symbol: sym,
		Interval: string(iv), Candle: &emitted,
	})
}

func (p *Provider) SubscribeTrades(sym string) error               { return p.requireKnown(sym) }
func (p *Provider) UnsubscribeTrades(sym string) error             { return p.requireKnown(sym) }
func (p *Provider) SubscribeAggregateTrades(sym string) error      { return p.requireKnown(sym) }
func (p *Provider) UnsubscribeAggregateTrades(sym string) error    { return p.requireKnown(sym) }
func (p *Provider) SubscribeBookTicker(sym string) error           { return p.requireKnown(sym) }
func (p *Provider) UnsubscribeBookTicker(sym string) error         { return p.requireKnown(sym) }

func (p *Provider) SubscribeOrderBook(sym string, depth int) error {
	if depth != 5 && depth != 10 && depth != 20 {
		return apierr.ErrInvalidArgument
	}
	return p.requireKnown(sym)
}
func (p *Provider) UnsubscribeOrderBook(sym string) error { return p.requireKnown(sym) }

func (p *Provider) requireKnown(sym string) error {
	if err := p.requireConnected(); err != nil {
		return err
	}
	_, err := p.symbol(sym)
	return err
}

// SetDataHandler installs the legacy single-sink callback. Deprecated: use
// Events().Subscribe for multiple independent subscribers.
func (p *Provider) SetDataHandler(h provider.EventHandler) {
	p.bus.SetLegacySink(h)
}

// Events exposes the provider's pub-sub bus for direct subscription.
func (p *Provider) Events() *provider.EventBus { return p.bus }

// GetHistoricalKlines synthesizes (or returns cached) candles for (symbol,
// interval). When the cache holds fewer than limit candles, it synthesizes a
// fresh series reverse-walking backward from the current price and replaces
// the cached one.
func (p *Provider) GetHistoricalKlines(ctx context.Context, sym string, iv timeutil.Interval, limit int) ([]marketdata.Candle, error) {
	if !iv.Valid() {
		return nil, apierr.ErrInvalidInterval
	}
	s, err := p.symbol(sym)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing := s.candles[iv]; len(existing) >= limit {
		return copyCandles(existing[len(existing)-limit:]), nil
	}

	generated := p.synthesizeHistoryLocked(sym, s, iv, limit)
	s.candles[iv] = generated
	if n := len(generated); n > 0 {
		last := generated[n-1]
		s.state.CurrentPrice = toFloat(last.Close)
		s.state.BasePrice = s.state.CurrentPrice
	}
	return copyCandles(generated), nil
}

// synthesizeHistoryLocked builds a reverse random walk of `limit` candles
// ending at the symbol's current price, oldest-first. Caller holds s.mu.
func (p *Provider) synthesizeHistoryLocked(sym string, s *symbolSeries, iv timeutil.Interval, limit int) []marketdata.Candle {
	out := make([]marketdata.Candle, limit)
	price := s.state.CurrentPrice
	vol := s.state.Volatility
	if vol <= 0 {
		vol = p.defaultVolatility
	}
	end := timeutil.BucketStart(time.Now().UTC(), iv)

	for i := limit - 1; i >= 0; i-- {
		openTime := end.Add(-time.Duration(limit-1-i) * iv.Duration())
		closePrice := price
		change := price * vol * s.engine.normFloat64()
		openPrice := closePrice - change
		if openPrice < 0.01 {
			openPrice = 0.01
		}
		high := math.Max(openPrice, closePrice) + math.Abs(s.engine.normFloat64())*price*vol*0.5
		low := math.Min(openPrice, closePrice) - math.Abs(s.engine.normFloat64())*price*vol*0.5
		if low < 0.01 {
			low = 0.01
		}
		out[i] = marketdata.Candle{
			Symbol: sym, Provider: p.ProviderName(), Interval: string(iv),
			OpenTime: openTime, CloseTime: openTime.Add(iv.Duration()),
			Open: decimal.NewFromFloat(openPrice), High: decimal.NewFromFloat(high),
			Low: decimal.NewFromFloat(low), Close: decimal.NewFromFloat(closePrice),
			Volume: decimal.NewFromFloat(1 + s.engine.float64()*9),
			Closed: true,
		}
		price = openPrice
	}
	if over := len(out) - HistoricalCacheCap; over > 0 {
		out = out[over:]
	}
	return out
}

func copyCandles(in []marketdata.Candle) []marketdata.Candle {
	return append([]marketdata.Candle(nil), in...)
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// GetHistoricalTrades and GetHistoricalAggregateTrades: the mock provider
// does not back-fill trade history; callers may get an empty slice.
func (p *Provider) GetHistoricalTrades(ctx context.Context, sym string, limit int) ([]marketdata.Trade, error) {
	if _, err := p.symbol(sym); err != nil {
		return nil, err
	}
	return nil, nil
}

func (p *Provider) GetHistoricalAggregateTrades(ctx context.Context, sym string, limit int) ([]marketdata.Trade, error) {
	return p.GetHistoricalTrades(ctx, sym, limit)
}

func (p *Provider) GetHistoricalOrderBookSnapshot(ctx context.Context, sym string, limit int) ([]marketdata.OrderBookSnapshot, error) {
	if _, err := p.symbol(sym); err != nil {
		return nil, err
	}
	return nil, nil
}

// --- control surface ---

func (p *Provider) SetMarketScenario(sym string, scenario Scenario) error {
	s, err := p.symbol(sym)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Scenario = scenario
	s.state.TicksSinceTrendChange = 0
	return nil
}

func (p *Provider) SetSymbolVolatility(sym string, volatility float64) error {
	if volatility <= 0 {
		return apierr.ErrInvalidArgument
	}
	s, err := p.symbol(sym)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Volatility = volatility
	return nil
}

func (p *Provider) SetSymbolTrend(sym string, trend float64) error {
	s, err := p.symbol(sym)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Trend = trend
	return nil
}

func (p *Provider) ResetSymbolPrice(sym string, price float64) error {
	if price <= 0 {
		return apierr.ErrInvalidArgument
	}
	s, err := p.symbol(sym)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.CurrentPrice = price
	s.state.BasePrice = price
	return nil
}

func (p *Provider) TriggerPump(sym string) error {
	s, err := p.symbol(sym)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Scenario = ScenarioPumpAndDump
	s.state.StartPump()
	return nil
}

func (p *Provider) TriggerDump(sym string) error {
	s, err := p.symbol(sym)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Scenario = ScenarioPumpAndDump
	s.state.StartDump()
	return nil
}

// State returns a snapshot of a symbol's current MarketState, for
// diagnostics/tests. Not part of the Provider interface.
func (p *Provider) State(sym string) (MarketState, error) {
	s, err := p.symbol(sym)
	if err != nil {
		return MarketState{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.state, nil
}

func (s Scenario) String() string { return string(s) }

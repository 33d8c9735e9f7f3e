package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"marketdata-backend/internal/apierr"
	"marketdata-backend/internal/marketdata"
	"marketdata-backend/internal/provider"
	"marketdata-backend/internal/timeutil"
)

// eventQueueCap bounds the reader-to-publisher handoff so a slow downstream
// subscriber cannot stall the WebSocket read loop.
const eventQueueCap = 4096

const (
	minBackoff = 1 * time.Second
	maxBackoff = 30 * time.Second
)

// Client implements provider.Provider against a Binance-compatible combined
// WebSocket stream, covering live ticks and historical REST backfill
// under a single Provider contract.
type Client struct {
	providerName string
	baseURL      string // REST base, e.g. https://api.binance.com
	wsURL        string // WS base, e.g. wss://stream.binance.com:9443

	http *http.Client

	mu         sync.RWMutex
	conn       *websocket.Conn
	connected  bool
	stopCh     chan struct{}
	subscribed map[string]bool // stream name -> subscribed
	nextID     int64

	events chan provider.Event
	bus    *provider.EventBus

	symbols   []string
	intervals []timeutil.Interval

	wg sync.WaitGroup
}

// NewClient constructs an exchange Provider for the given REST/WS base URLs
// and the symbol universe it serves.
func NewClient(providerName, baseURL, wsURL string, symbols []string) *Client {
	return &Client{
		providerName: providerName,
		baseURL:      strings.TrimRight(baseURL, "/"),
		wsURL:        strings.TrimRight(wsURL, "/"),
		http:         newHTTPClient(),
		subscribed:   make(map[string]bool),
		events:       make(chan provider.Event, eventQueueCap),
		bus:          provider.NewEventBus(),
		symbols:      symbols,
		intervals:    timeutil.AllIntervals,
	}
}

func (c *Client) ProviderName() string                      { return c.providerName }
func (c *Client) SupportedSymbols() []string                { return c.symbols }
func (c *Client) SupportedIntervals() []timeutil.Interval    { return c.intervals }
func (c *Client) Events() *provider.EventBus                 { return c.bus }

func (c *Client) SetDataHandler(h provider.EventHandler) { c.bus.SetLegacySink(h) }

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Connect dials the combined-stream endpoint and starts the reader and
// publisher goroutines. Idempotent.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL+"/stream", nil)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: %v", apierr.ErrTransportFailure, err)
	}
	c.conn = conn
	c.connected = true
	c.stopCh = make(chan struct{})
	c.mu.Unlock()

	c.wg.Add(2)
	go c.readLoop()
	go c.publishLoop()

	log.Printf("[exchange:%s] connected to %s", c.providerName, c.wsURL)
	return nil
}

// Disconnect stops the reader/publisher goroutines and closes the socket.
// Idempotent.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil
	}
	c.connected = false
	close(c.stopCh)
	if c.conn != nil {
		c.conn.Close()
	}
	c.mu.Unlock()

	c.wg.Wait()
	return nil
}

// readLoop reads frames off the WebSocket and hands normalized events to the
// bounded queue. On a transport error it reconnects with capped jittered
// exponential backoff rather than terminating the provider.
func (c *Client) readLoop() {
	defer c.wg.Done()
	backoff := minBackoff

	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()
		if conn == nil {
			return
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.stopCh:
				return
			default:
			}
			log.Printf("[exchange:%s] read error, reconnecting in %s: %v", c.providerName, backoff, err)
			if !c.sleepOrStop(jitter(backoff)) {
				return
			}
			if err := c.reconnect(); err != nil {
				backoff = nextBackoff(backoff)
				continue
			}
			backoff = minBackoff
			continue
		}
		backoff = minBackoff
		c.handleMessage(msg)
	}
}

func (c *Client) sleepOrStop(d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-c.stopCh:
		return false
	}
}

func nextBackoff(cur time.Duration) time.Duration {
	next := cur * 2
	if next > maxBackoff {
		next = maxBackoff
	}
	return next
}

func jitter(d time.Duration) time.Duration {
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}

func (c *Client) reconnect() error {
	conn, _, err := websocket.DefaultDialer.Dial(c.wsURL+"/stream", nil)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.conn = conn
	streams := make([]string, 0, len(c.subscribed))
	for s := range c.subscribed {
		streams = append(streams, s)
	}
	c.mu.Unlock()
	if len(streams) > 0 {
		return c.sendSubscribe(streams, true)
	}
	return nil
}

// combinedEnvelope is Binance's multiplexed stream wrapper:
// {"stream":"btcusdt@ticker","data":{...}}.
type combinedEnvelope struct {
	Stream string          `json:"stream"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) handleMessage(msg []byte) {
	var env combinedEnvelope
	if err := json.Unmarshal(msg, &env); err != nil || env.Stream == "" {
		return // control-channel ack frames (subscribe/unsubscribe replies) land here; ignored
	}

	parts := strings.SplitN(env.Stream, "@", 2)
	if len(parts) != 2 {
		return
	}
	symbol := strings.ToUpper(parts[0])
	suffix := parts[1]

	var ev *provider.Event
	switch {
	case suffix == "ticker":
		ev = c.parseTicker(symbol, env.Data)
	case strings.HasPrefix(suffix, "kline_"):
		ev = c.parseKline(symbol, env.Data)
	case suffix == "trade":
		ev = c.parseTrade(symbol, env.Data)
	case suffix == "aggTrade":
		ev = c.parseTrade(symbol, env.Data)
		if ev != nil {
			ev.Type = provider.StreamAggregateTrade
		}
	case suffix == "bookTicker":
		ev = c.parseBookTicker(symbol, env.Data)
	case strings.HasPrefix(suffix, "depth"):
		ev = c.parseDepth(symbol, env.Data)
	default:
		return
	}
	if ev == nil {
		return
	}

	select {
	case c.events <- *ev:
	default:
		log.Printf("[exchange:%s] event queue full, dropping %s event for %s", c.providerName, ev.Type, symbol)
	}
}

// publishLoop drains the bounded event queue into the EventBus, decoupling
// the WebSocket read loop from subscriber processing time.
func (c *Client) publishLoop() {
	defer c.wg.Done()
	for {
		select {
		case ev := <-c.events:
			c.bus.Publish(ev)
		case <-c.stopCh:
			// drain remaining buffered events before returning
			for {
				select {
				case ev := <-c.events:
					c.bus.Publish(ev)
				default:
					return
				}
			}
		}
	}
}

type wireTicker struct {
	Symbol    string `json:"s"`
	LastPrice string `json:"c"`
}

func (c *Client) parseTicker(symbol string, data json.RawMessage) *provider.Event {
	var t wireTicker
	if err := json.Unmarshal(data, &t); err != nil {
		return nil
	}
	return &provider.Event{Type: provider.StreamTicker, Provider: c.providerName, Symbol: symbol}
}

type wireKline struct {
	K struct {
		StartTime  int64  `json:"t"`
		EndTime    int64  `json:"T"`
		Interval   string `json:"i"`
		Open       string `json:"o"`
		Close      string `json:"c"`
		High       string `json:"h"`
		Low        string `json:"l"`
		Volume     string `json:"v"`
		QuoteVol   string `json:"q"`
		TradeCount int64  `json:"n"`
		Closed     bool   `json:"x"`
	} `json:"k"`
}

func (c *Client) parseKline(symbol string, data json.RawMessage) *provider.Event {
	var w wireKline
	if err := json.Unmarshal(data, &w); err != nil {
		return nil
	}
	open, _ := decimal.NewFromString(w.K.Open)
	high, _ := decimal.NewFromString(w.K.High)
	low, _ := decimal.NewFromString(w.K.Low)
	closeP, _ := decimal.NewFromString(w.K.Close)
	volume, _ := decimal.NewFromString(w.K.Volume)
	quoteVolume, _ := decimal.NewFromString(w.K.QuoteVol)

	candle := marketdata.Candle{
		Symbol: symbol, Provider: c.providerName, Interval: w.K.Interval,
		OpenTime: time.UnixMilli(w.K.StartTime).UTC(), CloseTime: time.UnixMilli(w.K.EndTime).UTC(),
		Open: open, High: high, Low: low, Close: closeP,
		Volume: volume, QuoteAssetVolume: quoteVolume,
		TradeCount: w.K.TradeCount, Closed: w.K.Closed,
	}
	return &provider.Event{
		Type: provider.StreamKline, Provider: c.providerName, Symbol: symbol,
		Interval: w.K.Interval, Candle: &candle,
	}
}

type wireTrade struct {
	TradeID  int64  `json:"t"`
	Price    string `json:"p"`
	Quantity string `json:"q"`
	TimeMs   int64  `json:"T"`
	IsBuyerMaker bool `json:"m"`
}

func (c *Client) parseTrade(symbol string, data json.RawMessage) *provider.Event {
	var w wireTrade
	if err := json.Unmarshal(data, &w); err != nil {
		return nil
	}
	price, _ := decimal.NewFromString(w.Price)
	qty, _ := decimal.NewFromString(w.Quantity)
	trade := marketdata.Trade{
		Symbol: symbol, Provider: c.providerName,
		Timestamp: time.UnixMilli(w.TimeMs).UTC(),
		Price:     price, Quantity: qty,
		AggressiveBuy: !w.IsBuyerMaker, // m=true means the buyer was the resting maker, so the taker sold
		TradeID:       strconv.FormatInt(w.TradeID, 10),
	}
	return &provider.Event{Type: provider.StreamTrade, Provider: c.providerName, Symbol: symbol, Trade: &trade}
}

type wireBookTicker struct {
	BidPrice string `json:"b"`
	BidQty   string `json:"B"`
	AskPrice string `json:"a"`
	AskQty   string `json:"A"`
}

func (c *Client) parseBookTicker(symbol string, data json.RawMessage) *provider.Event {
	var w wireBookTicker
	if err := json.Unmarshal(data, &w); err != nil {
		return nil
	}
	bidP, _ := decimal.NewFromString(w.BidPrice)
	bidQ, _ := decimal.NewFromString(w.BidQty)
	askP, _ := decimal.NewFromString(w.AskPrice)
	askQ, _ := decimal.NewFromString(w.AskQty)

	snap := marketdata.NewBookTickerSnapshot(symbol, c.providerName, time.Now().UTC(),
		marketdata.PriceLevel{Price: bidP, Quantity: bidQ},
		marketdata.PriceLevel{Price: askP, Quantity: askQ})
	return &provider.Event{Type: provider.StreamBookTicker, Provider: c.providerName, Symbol: symbol, BookTicker: &snap}
}

type wireDepthLevel [2]string

type wireDepth struct {
	Bids []wireDepthLevel `json:"b"`
	Asks []wireDepthLevel `json:"a"`
}

func (c *Client) parseDepth(symbol string, data json.RawMessage) *provider.Event {
	var w wireDepth
	if err := json.Unmarshal(data, &w); err != nil {
		return nil
	}
	snap := marketdata.OrderBookSnapshot{
		Symbol: symbol, Provider: c.providerName, Timestamp: time.Now().UTC(),
		Bids: toPriceLevels(w.Bids), Asks: toPriceLevels(w.Asks),
	}
	return &provider.Event{Type: provider.StreamOrderBook, Provider: c.providerName, Symbol: symbol, OrderBook: &snap}
}

func toPriceLevels(levels []wireDepthLevel) []marketdata.PriceLevel {
	out := make([]marketdata.PriceLevel, 0, len(levels))
	for _, lv := range levels {
		price, _ := decimal.NewFromString(lv[0])
		qty, _ := decimal.NewFromString(lv[1])
		out = append(out, marketdata.PriceLevel{Price: price, Quantity: qty})
	}
	return out
}

// --- subscription management ---

type subscribeMessage struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

func (c *Client) sendSubscribe(streams []string, subscribe bool) error {
	c.mu.Lock()
	conn := c.conn
	c.nextID++
	id := c.nextID
	if subscribe {
		for _, s := range streams {
			c.subscribed[s] = true
		}
	} else {
		for _, s := range streams {
			delete(c.subscribed, s)
		}
	}
	c.mu.Unlock()

	if conn == nil {
		return apierr.ErrNotConnected
	}

	method := "SUBSCRIBE"
	if !subscribe {
		method = "UNSUBSCRIBE"
	}
	return conn.WriteJSON(subscribeMessage{Method: method, Params: streams, ID: id})
}

func (c *Client) requireConnected() error {
	if !c.IsConnected() {
		return apierr.ErrNotConnected
	}
	return nil
}

func (c *Client) knownSymbol(symbol string) error {
	for _, s := range c.symbols {
		if s == symbol {
			return nil
		}
	}
	return apierr.ErrUnknownSymbol
}

func (c *Client) Subscribe(symbol string) error {
	if err := c.requireConnected(); err != nil {
		return err
	}
	if err := c.knownSymbol(symbol); err != nil {
		return err
	}
	return c.sendSubscribe([]string{strings.ToLower(symbol) + "@ticker"}, true)
}

func (c *Client) Unsubscribe(symbol string) error {
	return c.sendSubscribe([]string{strings.ToLower(symbol) + "@ticker"}, false)
}

func (c *Client) SubscribeKline(symbol string, interval timeutil.Interval) error {
	if err := c.requireConnected(); err != nil {
		return err
	}
	if !interval.Valid() {
		return apierr.ErrInvalidInterval
	}
	if err := c.knownSymbol(symbol); err != nil {
		return err
	}
	return c.sendSubscribe([]string{strings.ToLower(symbol) + "@kline_" + string(interval)}, true)
}

func (c *Client) UnsubscribeKline(symbol string, interval timeutil.Interval) error {
	return c.sendSubscribe([]string{strings.ToLower(symbol) + "@kline_" + string(interval)}, false)
}

func (c *Client) SubscribeTrades(symbol string) error {
	if err := c.requireConnected(); err != nil {
		return err
	}
	if err := c.knownSymbol(symbol); err != nil {
		return err
	}
	return c.sendSubscribe([]string{strings.ToLower(symbol) + "@trade"}, true)
}

func (c *Client) UnsubscribeTrades(symbol string) error {
	return c.sendSubscribe([]string{strings.ToLower(symbol) + "@trade"}, false)
}

// SubscribeAggregateTrades uses Binance's aggTrade stream; parsed the same
// shape as trade events (aggregated taker-side trades).
func (c *Client) SubscribeAggregateTrades(symbol string) error {
	if err := c.requireConnected(); err != nil {
		return err
	}
	if err := c.knownSymbol(symbol); err != nil {
		return err
	}
	return c.sendSubscribe([]string{strings.ToLower(symbol) + "@aggTrade"}, true)
}

func (c *Client) UnsubscribeAggregateTrades(symbol string) error {
	return c.sendSubscribe([]string{strings.ToLower(symbol) + "@aggTrade"}, false)
}

func (c *Client) SubscribeOrderBook(symbol string, depth int) error {
	if err := c.requireConnected(); err != nil {
		return err
	}
	if depth != 5 && depth != 10 && depth != 20 {
		return apierr.ErrInvalidArgument
	}
	if err := c.knownSymbol(symbol); err != nil {
		return err
	}
	return c.sendSubscribe([]string{fmt.Sprintf("%s@depth%d", strings.ToLower(symbol), depth)}, true)
}

func (c *Client) UnsubscribeOrderBook(symbol string) error {
	c.mu.RLock()
	var stream string
	for s := range c.subscribed {
		if strings.HasPrefix(s, strings.ToLower(symbol)+"@depth") {
			stream = s
			break
		}
	}
	c.mu.RUnlock()

	if stream == "" {
		return nil
	}
	return c.sendSubscribe([]string{stream}, false)
}

func (c *Client) SubscribeBookTicker(symbol string) error {
	if err := c.requireConnected(); err != nil {
		return err
	}
	if err := c.knownSymbol(symbol); err != nil {
		return err
	}
	return c.sendSubscribe([]string{strings.ToLower(symbol) + "@bookTicker"}, true)
}

func (c *Client) UnsubscribeBookTicker(symbol string) error {
	return c.sendSubscribe([]string{strings.ToLower(symbol) + "@bookTicker"}, false)
}

// --- historical REST fetches ---

func (c *Client) GetHistoricalKlines(ctx context.Context, symbol string, interval timeutil.Interval, limit int) ([]marketdata.Candle, error) {
	if !interval.Valid() {
		return nil, apierr.ErrInvalidInterval
	}
	if err := c.knownSymbol(symbol); err != nil {
		return nil, err
	}
	return c.getHistoricalKlinesREST(ctx, symbol, interval, limit)
}

// GetHistoricalTrades, GetHistoricalAggregateTrades and
// GetHistoricalOrderBookSnapshot are not back-filled by this provider
// providers that do not back-fill history may return an empty slice.
func (c *Client) GetHistoricalTrades(ctx context.Context, symbol string, limit int) ([]marketdata.Trade, error) {
	return nil, nil
}

func (c *Client) GetHistoricalAggregateTrades(ctx context.Context, symbol string, limit int) ([]marketdata.Trade, error) {
	return nil, nil
}

func (c *Client) GetHistoricalOrderBookSnapshot(ctx context.Context, symbol string, limit int) ([]marketdata.OrderBookSnapshot, error) {
	return nil, nil
}

// Package marketdata defines the wire-level value types shared by providers,
// stores and the REST/push surfaces: candles, trades, order-book snapshots,
// book-ticker snapshots and footprint candles.
package marketdata

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// StoreKey is the composite key used by every store: "provider_symbol" for
// trades/order-books/book-tickers, "provider_symbol_interval" for candles and
// footprints.
type StoreKey string

// NewSeriesKey builds the provider_symbol key used by trade/order-book/
// book-ticker stores.
func NewSeriesKey(provider, symbol string) StoreKey {
	return StoreKey(provider + "_" + symbol)
}

// NewCandleKey builds the provider_symbol_interval key used by candle and
// footprint stores.
func NewCandleKey(provider, symbol, interval string) StoreKey {
	return StoreKey(provider + "_" + symbol + "_" + interval)
}

// Candle is an OHLCV bar for (provider, symbol, interval, openTime).
type Candle struct {
	Symbol           string
	Provider         string
	Interval         string
	OpenTime         time.Time
	CloseTime        time.Time
	Open             decimal.Decimal
	High             decimal.Decimal
	Low              decimal.Decimal
	Close            decimal.Decimal
	Volume           decimal.Decimal // base-asset volume
	QuoteAssetVolume decimal.Decimal
	TradeCount       int64
	Closed           bool
}

// Key returns this candle's store key.
func (c Candle) Key() StoreKey {
	return NewCandleKey(c.Provider, c.Symbol, c.Interval)
}

// Valid reports whether the OHLC wick invariant holds:
// low <= min(open,close) <= max(open,close) <= high.
func (c Candle) Valid() bool {
	lo := decimal.Min(c.Open, c.Close)
	hi := decimal.Max(c.Open, c.Close)
	return c.Low.LessThanOrEqual(lo) && hi.LessThanOrEqual(c.High)
}

// Trade is a single executed trade. AggressiveBuy is true when the taker
// bought (a "buy" market order matched a resting ask).
type Trade struct {
	Symbol        string
	Provider      string
	Timestamp     time.Time
	Price         decimal.Decimal
	Quantity      decimal.Decimal
	AggressiveBuy bool
	TradeID       string
}

// Signature is the trade dedup key: (timestamp, price, quantity).
func (t Trade) Signature() string {
	return fmt.Sprintf("%d|%s|%s", t.Timestamp.UnixNano(), t.Price.String(), t.Quantity.String())
}

// PriceLevel is a single side of book depth: a price and the resting quantity there.
type PriceLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// OrderBookSnapshot is a full-depth book sample. Bids are price-descending,
// asks price-ascending.
type OrderBookSnapshot struct {
	Symbol    string
	Provider  string
	Timestamp time.Time
	Bids      []PriceLevel
	Asks      []PriceLevel
}

// BookTickerSnapshot is a best-bid/best-ask sample with derived analytics.
type BookTickerSnapshot struct {
	Symbol      string
	Provider    string
	Timestamp   time.Time
	BestBid     PriceLevel
	BestAsk     PriceLevel
	Spread      decimal.Decimal
	SpreadBps   decimal.Decimal
	Imbalance   decimal.Decimal // bidQty / askQty; sentinel ImbalanceSentinel when askQty == 0
}

// ImbalanceSentinel is returned for BookTickerSnapshot.Imbalance when the ask
// side is empty: kept as a sentinel rather than an "infinite" tagged variant
// to preserve the wire shape.
var ImbalanceSentinel = decimal.NewFromInt(999)

// NewBookTickerSnapshot derives Spread/SpreadBps/Imbalance from the raw best
// bid/ask.
func NewBookTickerSnapshot(symbol, provider string, ts time.Time, bid, ask PriceLevel) BookTickerSnapshot {
	spread := ask.Price.Sub(bid.Price)
	spreadBps := decimal.Zero
	if !bid.Price.IsZero() {
		spreadBps = spread.Div(bid.Price).Mul(decimal.NewFromInt(10000))
	}
	imbalance := ImbalanceSentinel
	if !ask.Quantity.IsZero() {
		imbalance = bid.Quantity.Div(ask.Quantity)
	}
	return BookTickerSnapshot{
		Symbol:    symbol,
		Provider:  provider,
		Timestamp: ts,
		BestBid:   bid,
		BestAsk:   ask,
		Spread:    spread,
		SpreadBps: spreadBps,
		Imbalance: imbalance,
	}
}

// PriceLevelVolume is one tick-aligned price level inside a footprint's
// volume profile.
type PriceLevelVolume struct {
	Price       decimal.Decimal
	BuyVolume   decimal.Decimal
	SellVolume  decimal.Decimal
	TradeCount  int64
}

// Total returns buy+sell volume at this level.
func (p PriceLevelVolume) Total() decimal.Decimal { return p.BuyVolume.Add(p.SellVolume) }

// Delta returns buy-sell volume at this level.
func (p PriceLevelVolume) Delta() decimal.Decimal { return p.BuyVolume.Sub(p.SellVolume) }

// BuyRatio returns buy/(buy+sell), or zero when the level has no volume.
func (p PriceLevelVolume) BuyRatio() decimal.Decimal {
	total := p.Total()
	if total.IsZero() {
		return decimal.Zero
	}
	return p.BuyVolume.Div(total)
}

// FootprintCandle is a Candle augmented with a per-price-level buy/sell
// volume profile.
type FootprintCandle struct {
	Candle
	TotalBuyVolume  decimal.Decimal
	TotalSellVolume decimal.Decimal
	Delta           decimal.Decimal
	CumulativeDelta decimal.Decimal // per-candle only; no cross-candle running total kept
	VolumeProfile   map[string]PriceLevelVolume // keyed by tick-aligned price string
	PointOfControl  decimal.Decimal
	ValueAreaHigh   decimal.Decimal
	ValueAreaLow    decimal.Decimal
}

// Package footprint folds a trade stream into per-bucket volume profiles:
// a price-bucket x side accumulator that closes into a FootprintCandle with
// point-of-control, value area and delta once its period ends.
package footprint

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"marketdata-backend/internal/marketdata"
	"marketdata-backend/internal/timeutil"
)

// DefaultTickSize is used for any symbol without an explicit configured tick
// size.
var DefaultTickSize = decimal.NewFromFloat(0.01)

// DefaultCompletedCap bounds the per-key cache of closed footprint candles.
const DefaultCompletedCap = 500

// valueAreaFraction is the 70% cumulative-volume threshold for VAH/VAL.
var valueAreaFraction = decimal.NewFromFloat(0.70)

// builder accumulates a single (symbol, interval, bucket) footprint in
// progress. Not safe for concurrent use by itself; Builders owns the lock.
type builder struct {
	symbol, provider, interval string
	bucketOpen                 time.Time
	open, high, low, close     decimal.Decimal
	opened                     bool
	totalBuy, totalSell        decimal.Decimal
	tradeCount                 int64
	levels                     map[string]marketdata.PriceLevelVolume
}

func newBuilder(provider, symbol, interval string, bucketOpen time.Time) *builder {
	return &builder{
		symbol: symbol, provider: provider, interval: interval,
		bucketOpen: bucketOpen,
		totalBuy:   decimal.Zero, totalSell: decimal.Zero,
		levels: make(map[string]marketdata.PriceLevelVolume),
	}
}

func (b *builder) applyTrade(t marketdata.Trade, tickSize decimal.Decimal) {
	if !b.opened {
		b.open = t.Price
		b.high = t.Price
		b.low = t.Price
		b.opened = true
	} else {
		if t.Price.GreaterThan(b.high) {
			b.high = t.Price
		}
		if t.Price.LessThan(b.low) {
			b.low = t.Price
		}
	}
	b.close = t.Price
	b.tradeCount++

	tickAligned := roundToTick(t.Price, tickSize)
	key := tickAligned.String()
	level := b.levels[key]
	level.Price = tickAligned
	if t.AggressiveBuy {
		level.BuyVolume = level.BuyVolume.Add(t.Quantity)
		b.totalBuy = b.totalBuy.Add(t.Quantity)
	} else {
		level.SellVolume = level.SellVolume.Add(t.Quantity)
		b.totalSell = b.totalSell.Add(t.Quantity)
	}
	level.TradeCount++
	b.levels[key] = level
}

func roundToTick(price, tickSize decimal.Decimal) decimal.Decimal {
	if tickSize.IsZero() {
		return price
	}
	ratio := price.Div(tickSize)
	rounded := ratio.Round(0)
	return rounded.Mul(tickSize)
}

// snapshot converts the builder's current state into a FootprintCandle,
// marked closed when closed is true.
func (b *builder) snapshot(closed bool) marketdata.FootprintCandle {
	poc, vah, val := computeValueArea(b.levels, b.totalBuy.Add(b.totalSell))

	levels := make(map[string]marketdata.PriceLevelVolume, len(b.levels))
	for k, v := range b.levels {
		levels[k] = v
	}

	delta := b.totalBuy.Sub(b.totalSell)
	return marketdata.FootprintCandle{
		Candle: marketdata.Candle{
			Symbol: b.symbol, Provider: b.provider, Interval: b.interval,
			OpenTime:   b.bucketOpen,
			CloseTime:  b.bucketOpen.Add(timeutil.Interval(b.interval).Duration()),
			Open:       b.open, High: b.high, Low: b.low, Close: b.close,
			Volume:     b.totalBuy.Add(b.totalSell),
			TradeCount: b.tradeCount,
			Closed:     closed,
		},
		TotalBuyVolume:  b.totalBuy,
		TotalSellVolume: b.totalSell,
		Delta:           delta,
		CumulativeDelta: delta, // per-candle only; no cross-candle running total kept
		VolumeProfile:   levels,
		PointOfControl:  poc,
		ValueAreaHigh:   vah,
		ValueAreaLow:    val,
	}
}

// computeValueArea returns (POC, VAH, VAL) for a volume profile: POC is the
// price with the largest total volume (ties broken to any one max); the
// value area is the smallest set of levels, added in descending-volume order,
// whose cumulative volume reaches 70% of total.
func computeValueArea(levels map[string]marketdata.PriceLevelVolume, total decimal.Decimal) (poc, vah, val decimal.Decimal) {
	if len(levels) == 0 {
		return decimal.Zero, decimal.Zero, decimal.Zero
	}

	sorted := make([]marketdata.PriceLevelVolume, 0, len(levels))
	for _, lv := range levels {
		sorted = append(sorted, lv)
	}
	sort.Slice(sorted, func(i, j int) bool {
		ti, tj := sorted[i].Total(), sorted[j].Total()
		if ti.Equal(tj) {
			return sorted[i].Price.LessThan(sorted[j].Price)
		}
		return ti.GreaterThan(tj)
	})

	poc = sorted[0].Price
	threshold := total.Mul(valueAreaFraction)

	cum := decimal.Zero
	vah, val = sorted[0].Price, sorted[0].Price
	for _, lv := range sorted {
		cum = cum.Add(lv.Total())
		if lv.Price.GreaterThan(vah) {
			vah = lv.Price
		}
		if lv.Price.LessThan(val) {
			val = lv.Price
		}
		if cum.GreaterThanOrEqual(threshold) {
			break
		}
	}
	return poc, vah, val
}

// Builder is the per-(symbol,interval) footprint aggregator. A Builder owns
// its own bucket map and completed-candle cache exclusively.
type Builder struct {
	mu         sync.Mutex
	provider   string
	symbol     string
	interval   timeutil.Interval
	tickSize   decimal.Decimal
	inProgress map[int64]*builder // bucketOpen.Unix() -> builder
	completed  []marketdata.FootprintCandle
	completedCap int
	onClose    func(marketdata.FootprintCandle)
}

// NewBuilder constructs a footprint Builder for one (provider, symbol,
// interval). onClose, if non-nil, is invoked synchronously whenever a bucket
// closes (used by the dispatch hub to push closed footprints to subscribers).
func NewBuilder(provider, symbol string, interval timeutil.Interval, tickSize decimal.Decimal, onClose func(marketdata.FootprintCandle)) *Builder {
	if tickSize.IsZero() {
		tickSize = DefaultTickSize
	}
	return &Builder{
		provider: provider, symbol: symbol, interval: interval, tickSize: tickSize,
		inProgress:   make(map[int64]*builder),
		completedCap: DefaultCompletedCap,
		onClose:      onClose,
	}
}

// SetTickSize updates the tick size used for future trades.
func (b *Builder) SetTickSize(tickSize decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !tickSize.IsZero() {
		b.tickSize = tickSize
	}
}

// AddTrade folds a trade into the builder for its bucket. If the trade
// belongs to a later bucket than any in-progress builder, those earlier
// buckets are closed first.
func (b *Builder) AddTrade(t marketdata.Trade) {
	bucket := timeutil.BucketStart(t.Timestamp, b.interval)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.closeStaleLocked(bucket.Unix())

	bld, ok := b.inProgress[bucket.Unix()]
	if !ok {
		bld = newBuilder(b.provider, b.symbol, string(b.interval), bucket)
		b.inProgress[bucket.Unix()] = bld
	}
	bld.applyTrade(t, b.tickSize)
}

// closeStaleLocked closes every in-progress bucket strictly before
// currentBucket. Caller must hold b.mu.
func (b *Builder) closeStaleLocked(currentBucket int64) {
	for bucketUnix, bld := range b.inProgress {
		if bucketUnix < currentBucket {
			b.closeLocked(bucketUnix, bld)
		}
	}
}

func (b *Builder) closeLocked(bucketUnix int64, bld *builder) {
	closed := bld.snapshot(true)
	delete(b.inProgress, bucketUnix)
	b.completed = append(b.completed, closed)
	if over := len(b.completed) - b.completedCap; over > 0 {
		b.completed = append([]marketdata.FootprintCandle(nil), b.completed[over:]...)
	}
	if b.onClose != nil {
		b.onClose(closed)
	}
}

// CloseBefore closes every in-progress bucket strictly before `now`'s bucket.
// Intended to be called by the 10-second auto-closer sweep.
func (b *Builder) CloseBefore(now time.Time) {
	currentBucket := timeutil.BucketStart(now, b.interval).Unix()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeStaleLocked(currentBucket)
}

// Current synthesizes a non-frozen FootprintCandle for the bucket containing
// `now`, or false if no trades have landed in that bucket yet.
func (b *Builder) Current(now time.Time) (marketdata.FootprintCandle, bool) {
	bucket := timeutil.BucketStart(now, b.interval).Unix()
	b.mu.Lock()
	defer b.mu.Unlock()
	bld, ok := b.inProgress[bucket]
	if !ok {
		return marketdata.FootprintCandle{}, false
	}
	return bld.snapshot(false), true
}

// Historical returns up to the last `limit` closed footprint candles,
// oldest-first. limit <= 0 returns all.
func (b *Builder) Historical(limit int) []marketdata.FootprintCandle {
	b.mu.Lock()
	defer b.mu.Unlock()
	if limit <= 0 || limit >= len(b.completed) {
		return append([]marketdata.FootprintCandle(nil), b.completed...)
	}
	return append([]marketdata.FootprintCandle(nil), b.completed[len(b.completed)-limit:]...)
}


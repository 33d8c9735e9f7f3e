package store

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"marketdata-backend/internal/marketdata"
)

// DefaultBookTickerCap and DefaultBookTickerIntervalMillis are the default
// cap/throttle for the book-ticker store.
const (
	DefaultBookTickerCap           = 3600
	DefaultBookTickerIntervalMillis = 1000
)

// sentinelFilterThreshold excludes imbalance sentinels (999.0) from average
// calculations.
var sentinelFilterThreshold = decimal.NewFromInt(100)

type bookTickerSeries struct {
	mu        sync.Mutex
	snapshots []marketdata.BookTickerSnapshot // sorted ascending by Timestamp
}

// BookTickerStore is the throttled-sample store of best-bid/best-ask
// snapshots, with spread/imbalance analytics. cap/
// intervalNanos are atomic so the REST config endpoints can reconfigure them
// without racing the hot Add path.
type BookTickerStore struct {
	cap           atomic.Int64
	intervalNanos atomic.Int64
	mu            sync.RWMutex
	data          map[marketdata.StoreKey]*bookTickerSeries
}

// NewBookTickerStore builds a store with the given cap and throttle interval
// (milliseconds). cap <= 0 and intervalMillis <= 0 fall back to spec defaults.
func NewBookTickerStore(cap int, intervalMillis int) *BookTickerStore {
	if cap <= 0 {
		cap = DefaultBookTickerCap
	}
	if intervalMillis <= 0 {
		intervalMillis = DefaultBookTickerIntervalMillis
	}
	s := &BookTickerStore{data: make(map[marketdata.StoreKey]*bookTickerSeries)}
	s.cap.Store(int64(cap))
	s.intervalNanos.Store(int64(time.Duration(intervalMillis) * time.Millisecond))
	return s
}

func (s *BookTickerStore) series(key marketdata.StoreKey) *bookTickerSeries {
	s.mu.RLock()
	sr, ok := s.data[key]
	s.mu.RUnlock()
	if ok {
		return sr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if sr, ok = s.data[key]; ok {
		return sr
	}
	sr = &bookTickerSeries{}
	s.data[key] = sr
	return sr
}

// Add stores a snapshot if the throttle interval has elapsed since the last
// stored one for this key. Returns false when throttled.
func (s *BookTickerStore) Add(snap marketdata.BookTickerSnapshot) bool {
	key := marketdata.NewSeriesKey(snap.Provider, snap.Symbol)
	sr := s.series(key)
	sr.mu.Lock()
	defer sr.mu.Unlock()

	if n := len(sr.snapshots); n > 0 {
		last := sr.snapshots[n-1]
		if snap.Timestamp.Sub(last.Timestamp) < time.Duration(s.intervalNanos.Load()) {
			return false
		}
	}

	idx := sort.Search(len(sr.snapshots), func(i int) bool {
		return !sr.snapshots[i].Timestamp.Before(snap.Timestamp)
	})
	sr.snapshots = append(sr.snapshots, marketdata.BookTickerSnapshot{})
	copy(sr.snapshots[idx+1:], sr.snapshots[idx:])
	sr.snapshots[idx] = snap

	if over := len(sr.snapshots) - int(s.cap.Load()); over > 0 {
		sr.snapshots = append([]marketdata.BookTickerSnapshot(nil), sr.snapshots[over:]...)
	}
	return true
}

// LastN returns up to the last n snapshots, oldest-first.
func (s *BookTickerStore) LastN(key marketdata.StoreKey, n int) []marketdata.BookTickerSnapshot {
	sr := s.series(key)
	sr.mu.Lock()
	defer sr.mu.Unlock()
	if n <= 0 || n >= len(sr.snapshots) {
		return append([]marketdata.BookTickerSnapshot(nil), sr.snapshots...)
	}
	return append([]marketdata.BookTickerSnapshot(nil), sr.snapshots[len(sr.snapshots)-n:]...)
}

// Count returns the number of stored snapshots for a key.
func (s *BookTickerStore) Count(key marketdata.StoreKey) int {
	sr := s.series(key)
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return len(sr.snapshots)
}

// AverageSpread returns the arithmetic mean spread over the last n snapshots.
func (s *BookTickerStore) AverageSpread(key marketdata.StoreKey, n int) decimal.Decimal {
	return s.average(key, n, func(b marketdata.BookTickerSnapshot) decimal.Decimal { return b.Spread })
}

// AverageSpreadBps returns the arithmetic mean spread-in-bps over the last n
// snapshots.
func (s *BookTickerStore) AverageSpreadBps(key marketdata.StoreKey, n int) decimal.Decimal {
	return s.average(key, n, func(b marketdata.BookTickerSnapshot) decimal.Decimal { return b.SpreadBps })
}

// AverageImbalance returns the mean imbalance over the last n snapshots,
// excluding sentinel (>=100) values.
func (s *BookTickerStore) AverageImbalance(key marketdata.StoreKey, n int) decimal.Decimal {
	snaps := s.LastN(key, n)
	sum := decimal.Zero
	count := 0
	for _, snap := range snaps {
		if snap.Imbalance.GreaterThanOrEqual(sentinelFilterThreshold) {
			continue
		}
		sum = sum.Add(snap.Imbalance)
		count++
	}
	if count == 0 {
		return decimal.Zero
	}
	return sum.Div(decimal.NewFromInt(int64(count)))
}

func (s *BookTickerStore) average(key marketdata.StoreKey, n int, field func(marketdata.BookTickerSnapshot) decimal.Decimal) decimal.Decimal {
	snaps := s.LastN(key, n)
	if len(snaps) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, snap := range snaps {
		sum = sum.Add(field(snap))
	}
	return sum.Div(decimal.NewFromInt(int64(len(snaps))))
}

// DetectSpreadAnomalies returns the subset of the last n snapshots whose
// spread exceeds k * mean(spread) over that same window.
func (s *BookTickerStore) DetectSpreadAnomalies(key marketdata.StoreKey, n int, k float64) []marketdata.BookTickerSnapshot {
	snaps := s.LastN(key, n)
	if len(snaps) == 0 {
		return nil
	}
	sum := decimal.Zero
	for _, snap := range snaps {
		sum = sum.Add(snap.Spread)
	}
	mean := sum.Div(decimal.NewFromInt(int64(len(snaps))))
	threshold := mean.Mul(decimal.NewFromFloat(k))

	var anomalies []marketdata.BookTickerSnapshot
	for _, snap := range snaps {
		if snap.Spread.GreaterThan(threshold) {
			anomalies = append(anomalies, snap)
		}
	}
	return anomalies
}

// Delete drops the entire series for a key. Used by the order-flow REST
// surface's history-delete endpoint.
func (s *BookTickerStore) Delete(key marketdata.StoreKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
}

// SetThrottleInterval reconfigures the store-wide throttle window (ms), for
// the `config/interval` endpoint.
func (s *BookTickerStore) SetThrottleInterval(intervalMillis int) {
	if intervalMillis <= 0 {
		return
	}
	s.intervalNanos.Store(int64(time.Duration(intervalMillis) * time.Millisecond))
}

// SetCap reconfigures the store-wide per-key retention cap, for the
// `config/max` endpoint.
func (s *BookTickerStore) SetCap(max int) {
	if max <= 0 {
		return
	}
	s.cap.Store(int64(max))
}

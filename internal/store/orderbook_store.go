package store

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"marketdata-backend/internal/marketdata"
)

// DefaultOrderBookCap and DefaultOrderBookIntervalSeconds are the default
// cap/throttle for the order-book store.
const (
	DefaultOrderBookCap             = 1000
	DefaultOrderBookIntervalSeconds = 10
)

type orderBookSeries struct {
	mu        sync.Mutex
	snapshots []marketdata.OrderBookSnapshot // sorted ascending by Timestamp
}

// OrderBookStore is the throttled-sample store of full-depth snapshots: it
// accepts at most one snapshot per configured interval per key, silently
// dropping the rest. cap/intervalNanos are atomic so the REST config
// endpoints can reconfigure them without racing the hot Add path.
type OrderBookStore struct {
	cap          atomic.Int64
	intervalNanos atomic.Int64
	mu           sync.RWMutex
	data         map[marketdata.StoreKey]*orderBookSeries
}

// NewOrderBookStore builds a store with the given cap and throttle interval
// (seconds). cap <= 0 and intervalSeconds <= 0 fall back to the package defaults.
func NewOrderBookStore(cap int, intervalSeconds int) *OrderBookStore {
	if cap <= 0 {
		cap = DefaultOrderBookCap
	}
	if intervalSeconds <= 0 {
		intervalSeconds = DefaultOrderBookIntervalSeconds
	}
	s := &OrderBookStore{data: make(map[marketdata.StoreKey]*orderBookSeries)}
	s.cap.Store(int64(cap))
	s.intervalNanos.Store(int64(time.Duration(intervalSeconds) * time.Second))
	return s
}

func (s *OrderBookStore) series(key marketdata.StoreKey) *orderBookSeries {
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
	sr = &orderBookSeries{}
	s.data[key] = sr
	return sr
}

// Add stores a snapshot if at least `interval` has elapsed since the last
// stored snapshot for this key (or none exists yet). Returns false when
// throttled — this is informational only; no "throttled" error is ever
// surfaced to callers.
func (s *OrderBookStore) Add(snap marketdata.OrderBookSnapshot) bool {
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
	sr.snapshots = append(sr.snapshots, marketdata.OrderBookSnapshot{})
	copy(sr.snapshots[idx+1:], sr.snapshots[idx:])
	sr.snapshots[idx] = snap

	if over := len(sr.snapshots) - int(s.cap.Load()); over > 0 {
		sr.snapshots = append([]marketdata.OrderBookSnapshot(nil), sr.snapshots[over:]...)
	}
	return true
}

// AddBulk inserts historical snapshots, deduplicating by exact timestamp
// (the throttle window does not apply retroactively to a bulk backfill).
func (s *OrderBookStore) AddBulk(provider, symbol string, snaps []marketdata.OrderBookSnapshot) {
	key := marketdata.NewSeriesKey(provider, symbol)
	sr := s.series(key)
	sr.mu.Lock()
	defer sr.mu.Unlock()

	existing := make(map[int64]struct{}, len(sr.snapshots))
	for _, sn := range sr.snapshots {
		existing[sn.Timestamp.UnixNano()] = struct{}{}
	}
	merged := append([]marketdata.OrderBookSnapshot(nil), sr.snapshots...)
	for _, sn := range snaps {
		ts := sn.Timestamp.UnixNano()
		if _, dup := existing[ts]; dup {
			continue
		}
		existing[ts] = struct{}{}
		merged = append(merged, sn)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Timestamp.Before(merged[j].Timestamp) })
	if over := len(merged) - int(s.cap.Load()); over > 0 {
		merged = merged[over:]
	}
	sr.snapshots = merged
}

// At returns the latest snapshot with Timestamp <= target, and false if none.
func (s *OrderBookStore) At(key marketdata.StoreKey, target time.Time) (marketdata.OrderBookSnapshot, bool) {
	sr := s.series(key)
	sr.mu.Lock()
	defer sr.mu.Unlock()

	idx := sort.Search(len(sr.snapshots), func(i int) bool {
		return sr.snapshots[i].Timestamp.After(target)
	})
	if idx == 0 {
		return marketdata.OrderBookSnapshot{}, false
	}
	return sr.snapshots[idx-1], true
}

// LastN returns up to the last n snapshots, oldest-first.
func (s *OrderBookStore) LastN(key marketdata.StoreKey, n int) []marketdata.OrderBookSnapshot {
	sr := s.series(key)
	sr.mu.Lock()
	defer sr.mu.Unlock()
	if n <= 0 || n >= len(sr.snapshots) {
		return append([]marketdata.OrderBookSnapshot(nil), sr.snapshots...)
	}
	return append([]marketdata.OrderBookSnapshot(nil), sr.snapshots[len(sr.snapshots)-n:]...)
}

// Count returns the number of stored snapshots for a key.
func (s *OrderBookStore) Count(key marketdata.StoreKey) int {
	sr := s.series(key)
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return len(sr.snapshots)
}

// Delete drops the entire series for a key. Used by the order-flow REST
// surface's history-delete endpoint.
func (s *OrderBookStore) Delete(key marketdata.StoreKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
}

// SetThrottleInterval reconfigures the store-wide throttle window, for the
// `POST /api/orderflow/historical/orderbook/.../config/interval` endpoint.
func (s *OrderBookStore) SetThrottleInterval(intervalSeconds int) {
	if intervalSeconds <= 0 {
		return
	}
	s.intervalNanos.Store(int64(time.Duration(intervalSeconds) * time.Second))
}

// SetCap reconfigures the store-wide per-key retention cap, for the
// `config/max` endpoint. Existing series are trimmed lazily on next write.
func (s *OrderBookStore) SetCap(max int) {
	if max <= 0 {
		return
	}
	s.cap.Store(int64(max))
}

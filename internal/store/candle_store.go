// Package store holds the bounded in-memory time-series stores: candles,
// trades, order-book snapshots and book-ticker snapshots. Every store owns
// its sequence exclusively and guards it with a per-key mutex; reads always
// return copies so callers can never mutate internal state.
package store

import (
	"sort"
	"sync"

	"marketdata-backend/internal/marketdata"
)

// DefaultCandleCap is the default per-key retention cap for CandleStore.
const DefaultCandleCap = 1000

type candleSeries struct {
	mu      sync.Mutex
	candles []marketdata.Candle // sorted ascending by OpenTime, at most one per OpenTime
}

// CandleStore is the dedup-by-open-time candle store.
type CandleStore struct {
	cap  int
	mu   sync.RWMutex
	data map[marketdata.StoreKey]*candleSeries
}

// NewCandleStore builds a CandleStore with the given per-key cap. cap <= 0
// falls back to DefaultCandleCap.
func NewCandleStore(cap int) *CandleStore {
	if cap <= 0 {
		cap = DefaultCandleCap
	}
	return &CandleStore{cap: cap, data: make(map[marketdata.StoreKey]*candleSeries)}
}

func (s *CandleStore) series(key marketdata.StoreKey) *candleSeries {
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
	sr = &candleSeries{}
	s.data[key] = sr
	return sr
}

// Add inserts or replaces a candle. If a candle with the same OpenTime
// already exists for the key it is replaced (this is what makes ticker-driven
// "current candle" progression correct); otherwise it is inserted in sorted
// position. The sequence is capped from the front after insertion.
func (s *CandleStore) Add(c marketdata.Candle) {
	sr := s.series(c.Key())
	sr.mu.Lock()
	defer sr.mu.Unlock()

	idx := sort.Search(len(sr.candles), func(i int) bool {
		return !sr.candles[i].OpenTime.Before(c.OpenTime)
	})
	if idx < len(sr.candles) && sr.candles[idx].OpenTime.Equal(c.OpenTime) {
		sr.candles[idx] = c
	} else {
		sr.candles = append(sr.candles, marketdata.Candle{})
		copy(sr.candles[idx+1:], sr.candles[idx:])
		sr.candles[idx] = c
	}

	if over := len(sr.candles) - s.cap; over > 0 {
		sr.candles = append([]marketdata.Candle(nil), sr.candles[over:]...)
	}
}

// AddBulk inserts historical candles for a key, skipping any open-time
// already present, then sorts and caps.
func (s *CandleStore) AddBulk(provider, symbol, interval string, candles []marketdata.Candle) {
	key := marketdata.NewCandleKey(provider, symbol, interval)
	sr := s.series(key)
	sr.mu.Lock()
	defer sr.mu.Unlock()

	existing := make(map[int64]struct{}, len(sr.candles))
	for _, c := range sr.candles {
		existing[c.OpenTime.Unix()] = struct{}{}
	}

	merged := append([]marketdata.Candle(nil), sr.candles...)
	for _, c := range candles {
		if _, dup := existing[c.OpenTime.Unix()]; dup {
			continue
		}
		existing[c.OpenTime.Unix()] = struct{}{}
		merged = append(merged, c)
	}

	sort.Slice(merged, func(i, j int) bool { return merged[i].OpenTime.Before(merged[j].OpenTime) })

	if over := len(merged) - s.cap; over > 0 {
		merged = merged[over:]
	}
	sr.candles = merged
}

// Get returns the full stored sequence for a key, oldest first.
func (s *CandleStore) Get(key marketdata.StoreKey) []marketdata.Candle {
	sr := s.series(key)
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return append([]marketdata.Candle(nil), sr.candles...)
}

// LastN returns up to the last n candles (oldest-first order preserved).
func (s *CandleStore) LastN(key marketdata.StoreKey, n int) []marketdata.Candle {
	sr := s.series(key)
	sr.mu.Lock()
	defer sr.mu.Unlock()
	if n <= 0 || n >= len(sr.candles) {
		return append([]marketdata.Candle(nil), sr.candles...)
	}
	start := len(sr.candles) - n
	return append([]marketdata.Candle(nil), sr.candles[start:]...)
}

// Range returns candles with t0 <= OpenTime <= t1 inclusive.
func (s *CandleStore) Range(key marketdata.StoreKey, t0, t1 int64) []marketdata.Candle {
	sr := s.series(key)
	sr.mu.Lock()
	defer sr.mu.Unlock()

	var out []marketdata.Candle
	for _, c := range sr.candles {
		ts := c.OpenTime.Unix()
		if ts >= t0 && ts <= t1 {
			out = append(out, c)
		}
	}
	return out
}

// Latest returns the most recent candle for a key, and false if empty.
func (s *CandleStore) Latest(key marketdata.StoreKey) (marketdata.Candle, bool) {
	sr := s.series(key)
	sr.mu.Lock()
	defer sr.mu.Unlock()
	if len(sr.candles) == 0 {
		return marketdata.Candle{}, false
	}
	return sr.candles[len(sr.candles)-1], true
}

// Count returns the number of stored candles for a key.
func (s *CandleStore) Count(key marketdata.StoreKey) int {
	sr := s.series(key)
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return len(sr.candles)
}

package store

import (
	"sort"
	"sync"

	"marketdata-backend/internal/marketdata"
)

// DefaultTradeCap is the default per-key retention cap for TradeStore.
const DefaultTradeCap = 1_000_000

type tradeSeries struct {
	mu     sync.Mutex
	trades []marketdata.Trade // sorted ascending by Timestamp
	seen   map[string]struct{}
}

// TradeStore is the append-only, dedup-by-signature trade history
//. Trades are first-class observations: there is no
// per-event throttling here, unlike the order-book and book-ticker stores.
type TradeStore struct {
	cap  int
	mu   sync.RWMutex
	data map[marketdata.StoreKey]*tradeSeries
}

// NewTradeStore builds a TradeStore with the given per-key cap. cap <= 0
// falls back to DefaultTradeCap.
func NewTradeStore(cap int) *TradeStore {
	if cap <= 0 {
		cap = DefaultTradeCap
	}
	return &TradeStore{cap: cap, data: make(map[marketdata.StoreKey]*tradeSeries)}
}

func (s *TradeStore) series(key marketdata.StoreKey) *tradeSeries {
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
	sr = &tradeSeries{seen: make(map[string]struct{})}
	s.data[key] = sr
	return sr
}

// Add appends a trade for (provider, symbol), deduplicating on signature and
// capping the series from the front. Returns false if the trade was a
// duplicate.
func (s *TradeStore) Add(t marketdata.Trade) bool {
	key := marketdata.NewSeriesKey(t.Provider, t.Symbol)
	sr := s.series(key)
	sr.mu.Lock()
	defer sr.mu.Unlock()

	sig := t.Signature()
	if _, dup := sr.seen[sig]; dup {
		return false
	}
	sr.seen[sig] = struct{}{}

	idx := sort.Search(len(sr.trades), func(i int) bool {
		return !sr.trades[i].Timestamp.Before(t.Timestamp)
	})
	sr.trades = append(sr.trades, marketdata.Trade{})
	copy(sr.trades[idx+1:], sr.trades[idx:])
	sr.trades[idx] = t

	if over := len(sr.trades) - s.cap; over > 0 {
		for _, dropped := range sr.trades[:over] {
			delete(sr.seen, dropped.Signature())
		}
		sr.trades = append([]marketdata.Trade(nil), sr.trades[over:]...)
	}
	return true
}

// AddBulk inserts historical trades, deduplicating on signature against both
// the existing series and within the batch itself. Returns the number of
// trades actually inserted.
func (s *TradeStore) AddBulk(provider, symbol string, trades []marketdata.Trade) int {
	key := marketdata.NewSeriesKey(provider, symbol)
	sr := s.series(key)
	sr.mu.Lock()
	defer sr.mu.Unlock()

	inserted := 0
	merged := append([]marketdata.Trade(nil), sr.trades...)
	for _, t := range trades {
		sig := t.Signature()
		if _, dup := sr.seen[sig]; dup {
			continue
		}
		sr.seen[sig] = struct{}{}
		merged = append(merged, t)
		inserted++
	}

	sort.Slice(merged, func(i, j int) bool { return merged[i].Timestamp.Before(merged[j].Timestamp) })
	if over := len(merged) - s.cap; over > 0 {
		for _, dropped := range merged[:over] {
			delete(sr.seen, dropped.Signature())
		}
		merged = merged[over:]
	}
	sr.trades = merged
	return inserted
}

// Range returns trades with t0 <= Timestamp <= t1 (in Unix-nanosecond terms),
// inclusive on both ends.
func (s *TradeStore) Range(key marketdata.StoreKey, t0, t1 int64) []marketdata.Trade {
	sr := s.series(key)
	sr.mu.Lock()
	defer sr.mu.Unlock()

	var out []marketdata.Trade
	for _, t := range sr.trades {
		ts := t.Timestamp.UnixNano()
		if ts >= t0 && ts <= t1 {
			out = append(out, t)
		}
	}
	return out
}

// LastN returns up to the last n trades, oldest-first.
func (s *TradeStore) LastN(key marketdata.StoreKey, n int) []marketdata.Trade {
	sr := s.series(key)
	sr.mu.Lock()
	defer sr.mu.Unlock()
	if n <= 0 || n >= len(sr.trades) {
		return append([]marketdata.Trade(nil), sr.trades...)
	}
	return append([]marketdata.Trade(nil), sr.trades[len(sr.trades)-n:]...)
}

// Count returns the number of stored trades for a key.
func (s *TradeStore) Count(key marketdata.StoreKey) int {
	sr := s.series(key)
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return len(sr.trades)
}

// Delete drops the entire series for a key, freeing its memory. Used by the
// order-flow REST surface's history-delete endpoint.
func (s *TradeStore) Delete(key marketdata.StoreKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
}

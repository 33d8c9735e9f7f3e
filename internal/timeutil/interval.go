// Package timeutil provides interval parsing and epoch-alignment arithmetic
// shared by every candle-bucketing component (stores, kline builder,
// footprint builder).
package timeutil

import (
	"fmt"
	"time"

	"marketdata-backend/internal/apierr"
)

// Interval is one of the canonical candle interval labels.
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval3m  Interval = "3m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval1h  Interval = "1h"
	Interval2h  Interval = "2h"
	Interval4h  Interval = "4h"
	Interval6h  Interval = "6h"
	Interval8h  Interval = "8h"
	Interval12h Interval = "12h"
	Interval1d  Interval = "1d"
	Interval3d  Interval = "3d"
	Interval1w  Interval = "1w"
	Interval1mo Interval = "1mo"
)

// ErrInvalidInterval is returned by ParseInterval for an unrecognized label.
// It carries the apierr taxonomy code "invalid_interval".
type ErrInvalidInterval struct {
	Label string
}

func (e *ErrInvalidInterval) Error() string {
	return fmt.Sprintf("invalid_interval: %q", e.Label)
}

// Unwrap exposes the apierr.ErrInvalidInterval sentinel so errors.Is matches.
func (e *ErrInvalidInterval) Unwrap() error { return apierr.ErrInvalidInterval }

var intervalSeconds = map[Interval]int64{
	Interval1m:  60,
	Interval3m:  3 * 60,
	Interval5m:  5 * 60,
	Interval15m: 15 * 60,
	Interval30m: 30 * 60,
	Interval1h:  60 * 60,
	Interval2h:  2 * 60 * 60,
	Interval4h:  4 * 60 * 60,
	Interval6h:  6 * 60 * 60,
	Interval8h:  8 * 60 * 60,
	Interval12h: 12 * 60 * 60,
	Interval1d:  24 * 60 * 60,
	Interval3d:  3 * 24 * 60 * 60,
	Interval1w:  7 * 24 * 60 * 60,
	Interval1mo: 30 * 24 * 60 * 60, // modelled as exactly 30 days, see DESIGN.md
}

// AllIntervals lists every supported interval label in ascending duration order.
var AllIntervals = []Interval{
	Interval1m, Interval3m, Interval5m, Interval15m, Interval30m,
	Interval1h, Interval2h, Interval4h, Interval6h, Interval8h, Interval12h,
	Interval1d, Interval3d, Interval1w, Interval1mo,
}

// ParseInterval validates a canonical interval label.
func ParseInterval(label string) (Interval, error) {
	iv := Interval(label)
	if _, ok := intervalSeconds[iv]; !ok {
		return "", &ErrInvalidInterval{Label: label}
	}
	return iv, nil
}

// Seconds returns the interval's fixed length in seconds.
func (iv Interval) Seconds() int64 {
	return intervalSeconds[iv]
}

// Duration returns the interval's fixed length as a time.Duration.
func (iv Interval) Duration() time.Duration {
	return time.Duration(iv.Seconds()) * time.Second
}

// Valid reports whether iv is one of the canonical labels.
func (iv Interval) Valid() bool {
	_, ok := intervalSeconds[iv]
	return ok
}

// BucketStart computes bucketStart(t, I) = floor(epoch/I)*I for the given
// interval, returned as a UTC time truncated to the second.
func BucketStart(t time.Time, iv Interval) time.Time {
	secs := iv.Seconds()
	epoch := t.Unix()
	bucket := (epoch / secs) * secs
	return time.Unix(bucket, 0).UTC()
}

// BucketEnd returns the exclusive end of the bucket containing t, i.e. the
// open-time of the following bucket.
func BucketEnd(t time.Time, iv Interval) time.Time {
	return BucketStart(t, iv).Add(iv.Duration())
}

package timeutil

import (
	"testing"
	"time"
)

func TestParseIntervalKnown(t *testing.T) {
	for _, label := range []string{"1m", "5m", "1h", "1d", "1w", "1mo"} {
		if _, err := ParseInterval(label); err != nil {
			t.Errorf("ParseInterval(%q) returned error: %v", label, err)
		}
	}
}

func TestParseIntervalUnknown(t *testing.T) {
	_, err := ParseInterval("7x")
	if err == nil {
		t.Fatal("expected error for unknown interval label")
	}
	var target *ErrInvalidInterval
	if !asErrInvalidInterval(err, &target) {
		t.Fatalf("expected *ErrInvalidInterval, got %T", err)
	}
}

func asErrInvalidInterval(err error, target **ErrInvalidInterval) bool {
	e, ok := err.(*ErrInvalidInterval)
	if ok {
		*target = e
	}
	return ok
}

func TestBucketStartAlignment(t *testing.T) {
	iv := Interval1m
	ts := time.Unix(1_700_000_037, 0).UTC()
	got := BucketStart(ts, iv)
	want := time.Unix(1_700_000_037/60*60, 0).UTC()
	if !got.Equal(want) {
		t.Fatalf("BucketStart = %v, want %v", got, want)
	}
}

func TestBucketStartIdempotentOnBoundary(t *testing.T) {
	iv := Interval5m
	boundary := time.Unix(1_700_000_000/300*300, 0).UTC()
	if got := BucketStart(boundary, iv); !got.Equal(boundary) {
		t.Fatalf("BucketStart on boundary = %v, want %v", got, boundary)
	}
}

func TestBucketEndIsNextBucketStart(t *testing.T) {
	iv := Interval1h
	ts := time.Unix(1_700_003_601, 0).UTC()
	end := BucketEnd(ts, iv)
	nextStart := BucketStart(end, iv)
	if !end.Equal(nextStart) {
		t.Fatalf("BucketEnd %v is not itself a bucket start (%v)", end, nextStart)
	}
}

func TestOneMonthIsThirtyDays(t *testing.T) {
	if Interval1mo.Seconds() != 30*86400 {
		t.Fatalf("1mo seconds = %d, want %d", Interval1mo.Seconds(), 30*86400)
	}
}

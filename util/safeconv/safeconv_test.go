package safeconv

import (
	"math"
	"testing"
	"time"
)

func TestDurationToU64(t *testing.T) {
	if got := DurationToU64(-time.Second); got != 0 {
		t.Fatalf("negative duration should clamp to 0, got %d", got)
	}
	if got := DurationToU64(3 * time.Second); got != uint64(3*time.Second) {
		t.Fatalf("unexpected conversion: %d", got)
	}
}

func TestU64ToDuration(t *testing.T) {
	if got := U64ToDuration(math.MaxUint64); got != time.Duration(math.MaxInt64) {
		t.Fatalf("overflow should clamp to MaxInt64, got %d", got)
	}
	if got := U64ToDuration(42); got != 42 {
		t.Fatalf("unexpected conversion: %d", got)
	}
}

func TestInt64ToInt(t *testing.T) {
	if got := Int64ToInt(7); got != 7 {
		t.Fatalf("unexpected conversion: %d", got)
	}
	if got := Int64ToInt(math.MinInt64); got != math.MinInt {
		t.Fatalf("underflow should clamp to MinInt, got %d", got)
	}
}

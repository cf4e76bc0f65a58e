package backoffpolicy

import (
	"math"
	"testing"
	"time"
)

func TestComputeWithinBounds(t *testing.T) {
	p := Policy{Base: time.Second, Max: 30 * time.Second}
	for attempt := 0; attempt < 10; attempt++ {
		d := p.Compute(attempt)
		if d < floor {
			t.Fatalf("attempt %d: delay %v below floor %v", attempt, d, floor)
		}
		if d > p.Max {
			t.Fatalf("attempt %d: delay %v above max %v", attempt, d, p.Max)
		}
	}
}

func TestComputeGrowsWithAttempt(t *testing.T) {
	p := Policy{Base: time.Second, Max: time.Hour}
	// Attempt 0 is at most base*(1+jitter) = 1.3s and attempt 3 at least
	// base*2^3*(1-jitter) = 5.6s, so any two draws compare the same way
	// regardless of jitter.
	low := p.Compute(0)
	high := p.Compute(3)
	if high <= low {
		t.Fatalf("expected attempt 3's delay (%v) to exceed attempt 0's (%v)", high, low)
	}
}

func TestComputeNegativeAttemptClampsToZero(t *testing.T) {
	p := Policy{Base: time.Second, Max: 30 * time.Second}
	d := p.Compute(-5)
	if d < floor || d > p.Max {
		t.Fatalf("negative attempt produced out-of-bounds delay %v", d)
	}
}

// TestComputeMatchesSpecJitterBounds asserts the §8 quantified invariant:
// delay in [max(1, base*2^A*(1-jitter)), base*2^A*(1+jitter)], clipped to
// max, for the spec's default jitterFactor of 0.3.
func TestComputeMatchesSpecJitterBounds(t *testing.T) {
	p := Policy{Base: 2 * time.Second, Max: 300 * time.Second}
	for attempt := 0; attempt < 8; attempt++ {
		raw := float64(p.Base) * math.Pow(2, float64(attempt))
		if raw > float64(p.Max) {
			raw = float64(p.Max)
		}
		lower := raw * (1 - DefaultJitter)
		if lower < float64(floor) {
			lower = float64(floor)
		}
		upper := raw * (1 + DefaultJitter)
		if upper > float64(p.Max) {
			upper = float64(p.Max)
		}
		for i := 0; i < 20; i++ {
			d := float64(p.Compute(attempt))
			if d < lower-1 || d > upper+1 {
				t.Fatalf("attempt %d: delay %v outside spec bounds [%v, %v]", attempt, time.Duration(d), time.Duration(lower), time.Duration(upper))
			}
		}
	}
}

// TestComputeRespectsExplicitJitter confirms a non-default Jitter value is
// actually honored rather than always falling back to DefaultJitter.
func TestComputeRespectsExplicitJitter(t *testing.T) {
	p := Policy{Base: 10 * time.Second, Max: time.Hour, Jitter: 0.1}
	for i := 0; i < 20; i++ {
		d := p.Compute(0)
		if d < 9*time.Second || d > 11*time.Second {
			t.Fatalf("expected delay within +/-10%% of base, got %v", d)
		}
	}
}

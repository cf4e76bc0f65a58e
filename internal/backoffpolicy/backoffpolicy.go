// Package backoffpolicy computes reconnect/retry delays shared by the
// ingestion coordinator, the scene controller's reconnect loop, and the
// platform REST client's retry wrapper.
package backoffpolicy

import (
	"math"
	"math/rand"
	"time"
)

// Policy is exponential backoff with jitter: base*2^attempt, capped at max,
// with +/-Jitter fraction applied, floored at 1 second. A zero Jitter
// takes the spec default of 0.3 (+/-30%) rather than disabling jitter, so
// existing struct literals that don't set it still match §4.1.3.
type Policy struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64
}

// DefaultJitter is the spec's default jitterFactor (§4.1.3).
const DefaultJitter = 0.3

// Default is the backoff used where no component overrides it: 1s base,
// growing to the configured reconnect ceiling, with the default jitter.
func Default(max time.Duration) Policy {
	return Policy{Base: time.Second, Max: max}
}

const floor = time.Second

// Compute returns the delay before the given attempt (0-indexed: the delay
// before the first retry is Compute(0)), in
// [max(1, base*2^attempt*(1-jitter)), base*2^attempt*(1+jitter)], clipped
// to max.
func (p Policy) Compute(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	jitter := p.Jitter
	if jitter <= 0 {
		jitter = DefaultJitter
	}
	raw := float64(p.Base) * math.Pow(2, float64(attempt))
	if raw > float64(p.Max) {
		raw = float64(p.Max)
	}
	jitterFrac := (1 - jitter) + rand.Float64()*(2*jitter)
	d := time.Duration(raw * jitterFrac)
	if d < floor {
		d = floor
	}
	if d > p.Max {
		d = p.Max
	}
	return d
}

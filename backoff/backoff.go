// Package backoff provides pluggable delay strategies for poll loops
// and submission retries. All strategies are safe for concurrent use
// (they are stateless).
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before attempt n.
type Strategy interface {
	// Delay returns how long to wait before attempt n (1-indexed).
	// Attempt 1 is the first wait after the initial call.
	Delay(attempt int) time.Duration
}

// ──────────────────────────────────────────────────
// Constant
// ──────────────────────────────────────────────────

// Constant always returns the same delay regardless of attempt number.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant backoff strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// ──────────────────────────────────────────────────
// Exponential
// ──────────────────────────────────────────────────

// Exponential doubles the delay each attempt.
// Delay = min(Initial * 2^(attempt-1), Max).
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponential creates an exponential backoff strategy.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// Delay returns Initial * 2^(attempt-1), capped at Max.
func (e *Exponential) Delay(attempt int) time.Duration {
	d := time.Duration(float64(e.Initial) * math.Pow(2, float64(attempt-1)))
	if e.Max > 0 && d > e.Max {
		return e.Max
	}
	return d
}

// ──────────────────────────────────────────────────
// ExponentialWithJitter (additive jitter)
// ──────────────────────────────────────────────────

// ExponentialWithJitter adds bounded random jitter on top of a capped
// exponential base. Delay = min(Initial * 2^(attempt-1), Max) +
// random value in [0, Fraction * base). The base never shrinks, so
// delays stay monotonically non-decreasing up to the jitter term.
// Jitter prevents thundering herd when many poll loops start together.
type ExponentialWithJitter struct {
	Initial time.Duration
	Max     time.Duration

	// Fraction bounds the jitter relative to the base delay.
	// Values outside (0, 1] fall back to 0.1.
	Fraction float64
}

// NewExponentialWithJitter creates an exponential backoff with
// additive jitter bounded by fraction of the base delay.
func NewExponentialWithJitter(initial, maxDelay time.Duration, fraction float64) *ExponentialWithJitter {
	return &ExponentialWithJitter{Initial: initial, Max: maxDelay, Fraction: fraction}
}

// Delay returns the capped exponential base plus random jitter.
func (e *ExponentialWithJitter) Delay(attempt int) time.Duration {
	base := float64(e.Initial) * math.Pow(2, float64(attempt-1))
	if e.Max > 0 && base > float64(e.Max) {
		base = float64(e.Max)
	}
	fraction := e.Fraction
	if fraction <= 0 || fraction > 1 {
		fraction = 0.1
	}
	jitter := rand.Float64() * fraction * base //nolint:gosec // jitter intentionally uses non-crypto rand
	return time.Duration(base + jitter)
}

// ──────────────────────────────────────────────────
// Default
// ──────────────────────────────────────────────────

// DefaultStrategy returns the default backoff used by the poller:
// ExponentialWithJitter with 1s initial, 30s max, 10% jitter.
func DefaultStrategy() Strategy {
	return NewExponentialWithJitter(1*time.Second, 30*time.Second, 0.1)
}

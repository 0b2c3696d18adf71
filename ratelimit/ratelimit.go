// Package ratelimit provides the token-bucket gate shared by all
// outbound SDK calls. The gate is safe for concurrent use; callers
// block until a slot is available or their context is done.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Gate combines a token-bucket rate limiter with an in-flight
// concurrency cap. Either constraint may be disabled independently.
type Gate struct {
	limiter *rate.Limiter
	sem     chan struct{}
}

// New creates a Gate. limit is the sustained requests per second
// (zero disables rate limiting), burst the bucket size (minimum 1
// when rate limiting is enabled), and maxInFlight the concurrent
// request cap (zero means unlimited).
func New(limit float64, burst, maxInFlight int) *Gate {
	g := &Gate{}
	if limit > 0 {
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(limit), burst)
	}
	if maxInFlight > 0 {
		g.sem = make(chan struct{}, maxInFlight)
	}
	return g
}

// Acquire blocks until both the concurrency cap and the rate limiter
// admit the caller, then returns a release function. The caller MUST
// invoke release when its request completes. Acquire returns the
// context's error if ctx is done first; no slot is held in that case.
func (g *Gate) Acquire(ctx context.Context) (release func(), err error) {
	if g == nil {
		return func() {}, nil
	}

	if g.sem != nil {
		select {
		case g.sem <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if g.limiter != nil {
		if waitErr := g.limiter.Wait(ctx); waitErr != nil {
			if g.sem != nil {
				<-g.sem
			}
			return nil, waitErr
		}
	}

	if g.sem == nil {
		return func() {}, nil
	}
	return func() { <-g.sem }, nil
}

// InFlight returns the number of currently held concurrency slots.
// Always zero when no concurrency cap is configured.
func (g *Gate) InFlight() int {
	if g == nil || g.sem == nil {
		return 0
	}
	return len(g.sem)
}

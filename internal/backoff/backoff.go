// Package backoff implements the bounded, jittered retry policy used around
// the Stripe customer lookup. The policy is a plain value parameterized by
// attempt count, base delay, growth factor, and jitter fraction; the Retrier
// executes an operation under it with an injectable sleep and random source
// so tests never wait on real delays.
package backoff

import (
	"context"
	"math/rand/v2"
	"time"
)

// Policy defines an exponential backoff schedule. The delay before retrying
// after the nth failed attempt (1-based) is BaseDelay * Factor^(n-1), plus a
// random jitter in [0, JitterFrac) of that value. Jitter spreads concurrent
// invocations retrying the same upstream so they do not land in lockstep.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Factor      float64
	JitterFrac  float64
}

// CustomerLookupPolicy is the schedule for resolving a customer that Stripe
// has not made visible yet: 5 attempts with nominal delays of 5, 10, 20 and
// 40 seconds between them, each stretched by up to 10% jitter.
var CustomerLookupPolicy = Policy{
	MaxAttempts: 5,
	BaseDelay:   5 * time.Second,
	Factor:      2.0,
	JitterFrac:  0.1,
}

// Delay returns the un-jittered delay scheduled after the given failed
// attempt (1-based). Attempts below 1 are treated as 1.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		d *= p.Factor
	}

	if d < 0 || time.Duration(d) < 0 {
		// Overflow guard for absurd attempt counts.
		return time.Duration(1<<63 - 1)
	}
	return time.Duration(d)
}

// Retrier executes operations under a Policy.
type Retrier struct {
	policy  Policy
	sleepFn func(time.Duration)
	randFn  func() float64
}

// Option is a functional option for configuring a Retrier.
type Option func(*Retrier)

// WithSleepFunc overrides the sleep function used between attempts.
// Intended for tests.
func WithSleepFunc(fn func(time.Duration)) Option {
	return func(r *Retrier) {
		r.sleepFn = fn
	}
}

// WithRandFunc overrides the random source used for jitter. The function
// must return values in [0, 1). Intended for tests.
func WithRandFunc(fn func() float64) Option {
	return func(r *Retrier) {
		r.randFn = fn
	}
}

// NewRetrier creates a Retrier for the given policy.
func NewRetrier(policy Policy, opts ...Option) *Retrier {
	r := &Retrier{
		policy:  policy,
		sleepFn: time.Sleep,
		randFn:  rand.Float64,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Do runs op up to MaxAttempts times. Between attempts it sleeps for the
// policy delay plus jitter. An error for which retryable returns false is
// returned immediately, unretried. When attempts are exhausted, the last
// error is returned; the caller decides how to wrap it.
//
// Context cancellation is honored between attempts: if the context ends
// while waiting, Do returns the context error without invoking op again.
func (r *Retrier) Do(ctx context.Context, retryable func(error) bool, op func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
		if attempt == r.policy.MaxAttempts {
			break
		}

		r.sleepFn(r.jittered(attempt))

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}

	return lastErr
}

// jittered computes the actual wait after a failed attempt: the scheduled
// delay stretched by a random fraction in [0, JitterFrac). The result always
// lies in [delay, delay*(1+JitterFrac)).
func (r *Retrier) jittered(attempt int) time.Duration {
	delay := r.policy.Delay(attempt)
	if r.policy.JitterFrac <= 0 {
		return delay
	}
	jitter := time.Duration(r.randFn() * r.policy.JitterFrac * float64(delay))
	return delay + jitter
}

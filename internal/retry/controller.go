// Package retry drives calls across a fallback chain.
//
// DESIGN: Explicit state machine per call:
//
//	TryingProvider(i) --ok--------------------------------> Succeeded
//	TryingProvider(i) --transient, attempt < max----------> Backoff(i, attempt+1)
//	TryingProvider(i) --transient at max, or permanent----> TryingProvider(i+1) | ExhaustedFailed
//	Backoff(i, n)     --wait base*2^n (capped)------------> TryingProvider(i)
//
// Hops are tried strictly in order. The caller's context bounds the whole
// call: once it is done no further attempt is issued.
package retry

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/compresr/action-gateway/internal/dispatch"
)

// Policy controls retries per hop.
type Policy struct {
	MaxRetries int           `yaml:"max_retries"` // retries after the first attempt
	BaseDelay  time.Duration `yaml:"base_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`
}

// DefaultPolicy returns two retries per hop with 200ms base backoff capped at 5s.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: 2, BaseDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second}
}

// Delay returns the wait before retry number attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		if d > math.MaxInt64/2 {
			d = math.MaxInt64 // saturate instead of wrapping negative
			break
		}
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// AttemptFunc makes one attempt against hop index hop. It returns the value,
// the attempt latency, and a classified error.
type AttemptFunc[T any] func(ctx context.Context, hop int) (T, time.Duration, error)

// Observer is notified after every attempt, success or failure.
type Observer func(Attempt)

// Result is the outcome of a successful call.
type Result[T any] struct {
	Value    T
	Hop      int
	HopID    string
	Attempts []Attempt
}

// Controller runs the state machine. It holds no per-call state and is safe
// for concurrent use.
type Controller struct {
	policy Policy
}

// NewController creates a controller. Negative MaxRetries is treated as 0.
func NewController(p Policy) *Controller {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	return &Controller{policy: p}
}

// Policy returns the controller's retry policy.
func (c *Controller) Policy() Policy { return c.policy }

type state int

const (
	stateTrying state = iota
	stateBackoff
	stateSucceeded
	stateExhausted
)

// Execute runs fn over hops. It returns the first success, or an
// *AggregateError carrying every hop's error in order.
func Execute[T any](ctx context.Context, c *Controller, hops []string, fn AttemptFunc[T], observe Observer) (Result[T], error) {
	var (
		res      Result[T]
		hopErrs  []HopError
		lastErr  error
		hop      int
		attempt  int
		st       = stateTrying
		maxRetry = c.policy.MaxRetries
	)
	if len(hops) == 0 {
		return res, &AggregateError{}
	}

	timedOut := func() (Result[T], error) {
		agg := &AggregateError{Attempts: res.Attempts, TimedOut: true, Cause: contextCause(ctx)}
		agg.Errors = hopErrs
		next := hop
		if lastErr != nil {
			agg.Errors = append(agg.Errors, HopError{HopID: hops[hop], Attempts: attempt + 1, Err: lastErr})
			next = hop + 1
		}
		if next < len(hops) {
			agg.Skipped = append([]string(nil), hops[next:]...)
		}
		return res, agg
	}

	for {
		switch st {
		case stateTrying:
			if ctx.Err() != nil {
				return timedOut()
			}
			v, latency, err := fn(ctx, hop)
			a := Attempt{Hop: hop, HopID: hops[hop], Number: attempt, Latency: latency, Err: err}
			res.Attempts = append(res.Attempts, a)
			if observe != nil {
				observe(a)
			}
			if err == nil {
				res.Value, res.Hop, res.HopID = v, hop, hops[hop]
				st = stateSucceeded
				continue
			}
			lastErr = err
			if ctx.Err() != nil {
				return timedOut()
			}
			if retryable(err) && attempt < maxRetry {
				attempt++
				st = stateBackoff
				continue
			}
			log.Debug().Str("hop", hops[hop]).Int("attempts", attempt+1).Err(err).Msg("hop exhausted")
			hopErrs = append(hopErrs, HopError{HopID: hops[hop], Attempts: attempt + 1, Err: err})
			lastErr = nil
			hop++
			attempt = 0
			if hop >= len(hops) {
				st = stateExhausted
			}

		case stateBackoff:
			if !wait(ctx, c.policy.Delay(attempt)) {
				return timedOut()
			}
			st = stateTrying

		case stateSucceeded:
			return res, nil

		case stateExhausted:
			return res, &AggregateError{Errors: hopErrs, Attempts: res.Attempts}
		}
	}
}

// retryable reports whether err may be retried on the same hop.
// Only TransientError qualifies; anything unclassified escalates.
func retryable(err error) bool {
	var te *dispatch.TransientError
	return errors.As(err, &te)
}

// wait sleeps for d or until ctx is done. Only the calling goroutine blocks.
func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

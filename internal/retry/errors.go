package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Attempt is one call made by the controller.
type Attempt struct {
	Hop     int
	HopID   string
	Number  int // 0 for the first try on a hop
	Latency time.Duration
	Err     error
}

// Success reports whether the attempt succeeded.
func (a Attempt) Success() bool { return a.Err == nil }

// HopError is the final error of one hop in the chain.
type HopError struct {
	HopID    string
	Attempts int
	Err      error
}

// AggregateError is returned when the chain is exhausted or the caller's
// deadline expired. Errors holds one entry per hop tried, in chain order.
type AggregateError struct {
	Errors   []HopError
	Attempts []Attempt
	Skipped  []string // hops never tried because the deadline expired
	TimedOut bool
	Cause    error // context error when TimedOut
}

func (e *AggregateError) Error() string {
	var sb strings.Builder
	if e.TimedOut {
		fmt.Fprintf(&sb, "deadline exceeded after %d attempt(s)", len(e.Attempts))
	} else {
		fmt.Fprintf(&sb, "all %d target(s) failed", len(e.Errors))
	}
	for i, he := range e.Errors {
		if i == 0 {
			sb.WriteString(": ")
		} else {
			sb.WriteString("; ")
		}
		fmt.Fprintf(&sb, "%s (%d attempt(s)): %v", he.HopID, he.Attempts, he.Err)
	}
	if len(e.Skipped) > 0 {
		fmt.Fprintf(&sb, "; not tried: %s", strings.Join(e.Skipped, ", "))
	}
	return sb.String()
}

// Unwrap exposes every hop error and the context cause to errors.Is/As.
func (e *AggregateError) Unwrap() []error {
	errs := make([]error, 0, len(e.Errors)+1)
	for _, he := range e.Errors {
		errs = append(errs, he.Err)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// Messages returns one line per hop, suitable for ActionResult.Errors.
func (e *AggregateError) Messages() []string {
	out := make([]string, 0, len(e.Errors)+1)
	for _, he := range e.Errors {
		out = append(out, fmt.Sprintf("%s: %v", he.HopID, he.Err))
	}
	if e.TimedOut {
		msg := "deadline exceeded"
		if len(e.Skipped) > 0 {
			msg += "; not tried: " + strings.Join(e.Skipped, ", ")
		}
		out = append(out, msg)
	}
	return out
}

// IsTimeout reports whether err is an AggregateError caused by the deadline.
func IsTimeout(err error) bool {
	var agg *AggregateError
	return errors.As(err, &agg) && agg.TimedOut
}

func contextCause(ctx context.Context) error {
	if err := context.Cause(ctx); err != nil {
		return err
	}
	return ctx.Err()
}

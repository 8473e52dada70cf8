package dispatch

import (
	"errors"
	"fmt"
	"time"
)

// Error codes carried by TransientError and PermanentError.
const (
	CodeTimeout          = "timeout"
	CodeConnection       = "connection"
	CodeCanceled         = "canceled"
	CodeRateLimited      = "rate_limited"
	CodeServerError      = "server_error"
	CodeAuth             = "auth"
	CodeClientError      = "client_error"
	CodeMalformedPayload = "malformed_payload"
	CodeInvalidRequest   = "invalid_request"
)

// TransientError is a failure worth retrying on the same target:
// timeouts, connection failures, 408/425/429 and 5xx responses.
type TransientError struct {
	Target     string
	Code       string
	StatusCode int
	Message    string
	Latency    time.Duration
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: transient %s (status %d): %s", e.Target, e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: transient %s: %s", e.Target, e.Code, e.Message)
}

// PermanentError is never retried on the same target: 4xx other than the
// transient ones, and payloads that cannot be parsed.
type PermanentError struct {
	Target     string
	Code       string
	StatusCode int
	Message    string
	Latency    time.Duration
}

func (e *PermanentError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: permanent %s (status %d): %s", e.Target, e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: permanent %s: %s", e.Target, e.Code, e.Message)
}

// IsTransient reports whether err is a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsPermanent reports whether err is a PermanentError.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// LatencyOf returns the attempt latency recorded on a dispatch error.
func LatencyOf(err error) time.Duration {
	var te *TransientError
	if errors.As(err, &te) {
		return te.Latency
	}
	var pe *PermanentError
	if errors.As(err, &pe) {
		return pe.Latency
	}
	return 0
}

// Permanent wraps a message as a PermanentError for target. Used by callers
// that reject a response after the dispatcher accepted it (e.g. a completion
// body without text).
func Permanent(target, code, message string, latency time.Duration) *PermanentError {
	return &PermanentError{Target: target, Code: code, Message: message, Latency: latency}
}

// Describe returns the status code and error code of a dispatch error.
// Other errors yield (0, "").
func Describe(err error) (status int, code string) {
	var te *TransientError
	if errors.As(err, &te) {
		return te.StatusCode, te.Code
	}
	var pe *PermanentError
	if errors.As(err, &pe) {
		return pe.StatusCode, pe.Code
	}
	return 0, ""
}

// Package monitoring - request_logger.go logs call lifecycle.
//
// DESIGN: Structured logging for request tracing at DEBUG level:
//   - LogIncoming:  Request received from client
//   - LogChain:     Fallback chain chosen for a call
//   - LogOutgoing:  Attempt sent to a downstream
//   - LogResponse:  Response sent to client
package monitoring

import (
	"net/http"
	"time"
)

// RequestLogger logs call lifecycle events.
type RequestLogger struct {
	logger *Logger
}

// NewRequestLogger creates a new request logger.
func NewRequestLogger(logger *Logger) *RequestLogger {
	return &RequestLogger{logger: logger}
}

// RequestInfo contains incoming request information.
type RequestInfo struct {
	RequestID  string
	Method     string
	Path       string
	RemoteAddr string
	BodySize   int
	StartTime  time.Time
}

// NewRequestInfo creates RequestInfo from an HTTP request.
func NewRequestInfo(r *http.Request, requestID string, bodySize int) *RequestInfo {
	return &RequestInfo{
		RequestID:  requestID,
		Method:     r.Method,
		Path:       r.URL.Path,
		RemoteAddr: r.RemoteAddr,
		BodySize:   bodySize,
		StartTime:  time.Now(),
	}
}

// LogIncoming logs an incoming request.
func (rl *RequestLogger) LogIncoming(info *RequestInfo) {
	rl.logger.Debug().
		Str("request_id", info.RequestID).
		Str("method", info.Method).
		Str("path", info.Path).
		Int("body_size", info.BodySize).
		Msg("incoming")
}

// ChainInfo describes the hops chosen for a call.
type ChainInfo struct {
	RequestID string
	Kind      CallKind
	Name      string
	Chain     []string
}

// LogChain logs the fallback chain of a call.
func (rl *RequestLogger) LogChain(info *ChainInfo) {
	rl.logger.Debug().
		Str("request_id", info.RequestID).
		Str("kind", string(info.Kind)).
		Str("name", info.Name).
		Strs("chain", info.Chain).
		Msg("chain")
}

// OutgoingRequestInfo contains outgoing attempt information.
type OutgoingRequestInfo struct {
	RequestID string
	Target    string
	TargetURL string
	Hop       int
	Retry     int
	BodySize  int
}

// LogOutgoing logs an outgoing attempt.
func (rl *RequestLogger) LogOutgoing(info *OutgoingRequestInfo) {
	event := rl.logger.Debug().
		Str("request_id", info.RequestID).
		Str("target", info.Target).
		Int("hop", info.Hop).
		Int("body_size", info.BodySize)
	if info.Retry > 0 {
		event = event.Int("retry", info.Retry)
	}
	event.Msg("outgoing")
}

// ResponseInfo contains response information.
type ResponseInfo struct {
	RequestID  string
	StatusCode int
	Latency    time.Duration
}

// LogResponse logs a response.
func (rl *RequestLogger) LogResponse(info *ResponseInfo) {
	rl.logger.Debug().
		Str("request_id", info.RequestID).
		Int("status", info.StatusCode).
		Dur("latency", info.Latency).
		Msg("response")
}

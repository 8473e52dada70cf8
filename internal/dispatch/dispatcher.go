// Package dispatch performs single network calls to downstream services and
// providers.
//
// DESIGN: The dispatcher is a pure I/O boundary:
//   - One Call() = one HTTP attempt with its own timeout
//   - Failures are classified as TransientError or PermanentError
//   - Latency is measured for every attempt and handed back to the caller
//
// It knows nothing about retries, routing, or telemetry.
package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout applies when a request carries none.
	DefaultTimeout = 60 * time.Second

	// maxResponseSize prevents OOM on unexpectedly large responses (10MB).
	maxResponseSize = 10 * 1024 * 1024

	// maxErrorBodyLen limits error bodies in error messages to avoid log bloat.
	maxErrorBodyLen = 500
)

// Request is one outbound call.
type Request struct {
	Target  string // provider or service id, for errors and limits
	Method  string // defaults to POST
	URL     string
	Payload []byte
	Headers http.Header
	Timeout time.Duration
}

// Response is a successful (2xx, valid JSON) reply.
type Response struct {
	Target     string
	StatusCode int
	Body       []byte
	Latency    time.Duration
}

// Dispatcher executes requests. Safe for concurrent use; its limiter and
// client tables are fixed at construction.
type Dispatcher struct {
	client   *http.Client
	clients  map[string]*http.Client
	limiters map[string]*rate.Limiter
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.client = c }
}

// WithTargetClient uses c for calls to target (e.g. a SigV4 signing client).
func WithTargetClient(target string, c *http.Client) Option {
	return func(d *Dispatcher) { d.clients[target] = c }
}

// WithRateLimit caps outbound calls to target at rps (burst 1 + rps).
func WithRateLimit(target string, rps float64) Option {
	return func(d *Dispatcher) {
		if rps > 0 {
			d.limiters[target] = rate.NewLimiter(rate.Limit(rps), int(rps)+1)
		}
	}
}

// New creates a dispatcher.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		client:   &http.Client{}, // timeout via context, not client
		clients:  make(map[string]*http.Client),
		limiters: make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// CloseIdleConnections closes idle keep-alive connections of every client.
func (d *Dispatcher) CloseIdleConnections() {
	d.client.CloseIdleConnections()
	for _, c := range d.clients {
		c.CloseIdleConnections()
	}
}

// Call performs one attempt.
func (d *Dispatcher) Call(ctx context.Context, req Request) (*Response, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}

	start := time.Now()
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if lim, ok := d.limiters[req.Target]; ok {
		if err := lim.Wait(attemptCtx); err != nil {
			return nil, d.contextError(ctx, attemptCtx, req.Target, "waiting for rate limit", start)
		}
	}

	var body io.Reader
	if req.Payload != nil {
		body = bytes.NewReader(req.Payload)
	}
	httpReq, err := http.NewRequestWithContext(attemptCtx, method, req.URL, body)
	if err != nil {
		return nil, &PermanentError{Target: req.Target, Code: CodeInvalidRequest, Message: err.Error(), Latency: time.Since(start)}
	}
	for k, vs := range req.Headers {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if req.Payload != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	client := d.client
	if c, ok := d.clients[req.Target]; ok {
		client = c
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		if attemptCtx.Err() != nil {
			return nil, d.contextError(ctx, attemptCtx, req.Target, err.Error(), start)
		}
		return nil, &TransientError{Target: req.Target, Code: CodeConnection, Message: err.Error(), Latency: time.Since(start)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	latency := time.Since(start)
	if err != nil {
		if attemptCtx.Err() != nil {
			return nil, d.contextError(ctx, attemptCtx, req.Target, err.Error(), start)
		}
		return nil, &TransientError{Target: req.Target, Code: CodeConnection, Message: fmt.Sprintf("reading body: %v", err), Latency: latency}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, classifyStatus(req.Target, resp.StatusCode, respBody, latency)
	}

	if len(bytes.TrimSpace(respBody)) == 0 || !gjson.ValidBytes(respBody) {
		return nil, &PermanentError{
			Target:     req.Target,
			Code:       CodeMalformedPayload,
			StatusCode: resp.StatusCode,
			Message:    "response is not valid JSON: " + truncate(string(respBody)),
			Latency:    latency,
		}
	}

	log.Debug().
		Str("target", req.Target).
		Int("status", resp.StatusCode).
		Int("bytes", len(respBody)).
		Dur("latency", latency).
		Msg("dispatch ok")

	return &Response{Target: req.Target, StatusCode: resp.StatusCode, Body: respBody, Latency: latency}, nil
}

// contextError classifies a context failure. A per-attempt timeout is a
// TransientError; cancellation of the caller's own context is reported as
// canceled (still transient: the controller checks the parent context).
func (d *Dispatcher) contextError(parent, attempt context.Context, target, msg string, start time.Time) error {
	code := CodeTimeout
	if errors.Is(parent.Err(), context.Canceled) || errors.Is(attempt.Err(), context.Canceled) {
		code = CodeCanceled
	}
	return &TransientError{Target: target, Code: code, Message: msg, Latency: time.Since(start)}
}

func classifyStatus(target string, status int, body []byte, latency time.Duration) error {
	msg := truncate(string(body))
	switch {
	case status == http.StatusRequestTimeout:
		return &TransientError{Target: target, Code: CodeTimeout, StatusCode: status, Message: msg, Latency: latency}
	case status == http.StatusTooManyRequests, status == http.StatusTooEarly:
		return &TransientError{Target: target, Code: CodeRateLimited, StatusCode: status, Message: msg, Latency: latency}
	case status >= 500:
		return &TransientError{Target: target, Code: CodeServerError, StatusCode: status, Message: msg, Latency: latency}
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return &PermanentError{Target: target, Code: CodeAuth, StatusCode: status, Message: msg, Latency: latency}
	default:
		return &PermanentError{Target: target, Code: CodeClientError, StatusCode: status, Message: msg, Latency: latency}
	}
}

func truncate(s string) string {
	if len(s) > maxErrorBodyLen {
		return s[:maxErrorBodyLen] + "... (truncated)"
	}
	return s
}

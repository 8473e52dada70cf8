// HTTP handlers for the gateway API.
//
// DESIGN: Handlers decode JSON, apply the caller deadline from
// X-Request-Timeout, call the service methods and map errors:
//   - schema errors        → 400 (unknown action → 404)
//   - ErrInvalidRequest    → 400
//   - exhausted chain      → 502 (504 when the deadline expired)
//   - anything else        → 500
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/compresr/action-gateway/internal/retry"
	"github.com/compresr/action-gateway/internal/schema"
	"github.com/compresr/action-gateway/internal/store"
)

// handleAction serves POST /v1/actions/{name}.
func (g *Gateway) handleAction(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var params map[string]any
	if err := g.decodeBody(w, r, &params, true); err != nil {
		g.writeErr(w, err)
		return
	}
	ctx, cancel, err := g.requestContext(r)
	if err != nil {
		g.writeErr(w, err)
		return
	}
	defer cancel()

	result, err := g.InvokeAction(ctx, name, params)
	if err != nil && result == nil {
		g.writeErr(w, err)
		return
	}
	status := http.StatusOK
	if err != nil {
		status = http.StatusBadGateway
		if retry.IsTimeout(err) {
			status = http.StatusGatewayTimeout
		}
	}
	g.writeJSON(w, status, result)
}

// handleCompletion serves POST /v1/completions.
func (g *Gateway) handleCompletion(w http.ResponseWriter, r *http.Request) {
	var req CompletionRequest
	if err := g.decodeBody(w, r, &req, false); err != nil {
		g.writeErr(w, err)
		return
	}
	ctx, cancel, err := g.requestContext(r)
	if err != nil {
		g.writeErr(w, err)
		return
	}
	defer cancel()

	out, err := g.InvokeCompletion(ctx, req)
	if err != nil {
		g.writeErr(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, out)
}

func (g *Gateway) handleListActions(w http.ResponseWriter, _ *http.Request) {
	g.writeJSON(w, http.StatusOK, map[string]any{"actions": g.Actions()})
}

func (g *Gateway) handleListProviders(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{"providers": g.Providers()}
	if g.router != nil {
		resp["chainLength"] = g.router.ChainLength()
	}
	g.writeJSON(w, http.StatusOK, resp)
}

func (g *Gateway) handleStats(w http.ResponseWriter, _ *http.Request) {
	g.writeJSON(w, http.StatusOK, g.Stats())
}

// handleAttempts serves GET /v1/attempts?target=&request_id=&limit=.
func (g *Gateway) handleAttempts(w http.ResponseWriter, r *http.Request) {
	q := store.Query{
		Target:    r.URL.Query().Get("target"),
		RequestID: r.URL.Query().Get("request_id"),
	}
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			g.writeErr(w, fmt.Errorf("%w: limit must be a non-negative integer", ErrInvalidRequest))
			return
		}
		q.Limit = n
	}
	recs, err := g.Attempts(r.Context(), q)
	if err != nil {
		g.writeErr(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]any{"attempts": recs})
}

func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	g.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"actions":   g.schemas.Len(),
		"providers": len(g.Providers()),
		"time":      time.Now().UTC(),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

// decodeBody decodes a JSON body into v. An empty body is allowed when
// allowEmpty is set. Numbers are kept as json.Number for exact integer checks.
func (g *Gateway) decodeBody(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) error {
	limit := g.cfg.Server.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) && allowEmpty {
			return nil
		}
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return fmt.Errorf("%w: body exceeds %d bytes", ErrInvalidRequest, mbe.Limit)
		}
		return fmt.Errorf("%w: malformed JSON body: %v", ErrInvalidRequest, err)
	}
	return nil
}

// requestContext derives the call context from X-Request-Timeout.
func (g *Gateway) requestContext(r *http.Request) (context.Context, context.CancelFunc, error) {
	h := r.Header.Get(HeaderRequestTimeout)
	if h == "" {
		ctx, cancel := g.withCallDeadline(r.Context())
		return ctx, cancel, nil
	}
	d, err := time.ParseDuration(h)
	if err != nil || d <= 0 {
		return nil, nil, fmt.Errorf("%w: %s must be a positive duration", ErrInvalidRequest, HeaderRequestTimeout)
	}
	ctx, cancel := context.WithTimeout(r.Context(), d)
	return ctx, cancel, nil
}

// writeErr maps err to a status code and JSON error body.
func (g *Gateway) writeErr(w http.ResponseWriter, err error) {
	var (
		se  *schema.Error
		agg *retry.AggregateError
	)
	switch {
	case errors.As(err, &se):
		status := http.StatusBadRequest
		if se.Kind == schema.KindUnknownAction {
			status = http.StatusNotFound
		}
		g.writeError(w, status, errorDetail{Type: string(se.Kind), Message: se.Error(), Field: se.Field})
	case errors.Is(err, ErrInvalidRequest):
		g.writeError(w, http.StatusBadRequest, errorDetail{Type: "invalid_request", Message: err.Error()})
	case errors.Is(err, ErrNoProviders):
		g.writeError(w, http.StatusServiceUnavailable, errorDetail{Type: "no_providers", Message: err.Error()})
	case errors.As(err, &agg):
		status, typ := http.StatusBadGateway, "all_targets_failed"
		if agg.TimedOut {
			status, typ = http.StatusGatewayTimeout, "timeout"
		}
		g.writeError(w, status, errorDetail{Type: typ, Message: err.Error(), Errors: agg.Messages(), TimedOut: agg.TimedOut})
	default:
		log.Error().Err(err).Msg("unhandled gateway error")
		g.writeError(w, http.StatusInternalServerError, errorDetail{Type: "internal", Message: "internal error"})
	}
}

func (g *Gateway) writeError(w http.ResponseWriter, status int, detail errorDetail) {
	g.writeJSON(w, status, errorBody{Error: detail})
}

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("write response failed")
	}
}

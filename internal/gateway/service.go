package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/compresr/action-gateway/internal/adapters"
	"github.com/compresr/action-gateway/internal/dispatch"
	"github.com/compresr/action-gateway/internal/monitoring"
	"github.com/compresr/action-gateway/internal/normalize"
	"github.com/compresr/action-gateway/internal/providers"
	"github.com/compresr/action-gateway/internal/retry"
	"github.com/compresr/action-gateway/internal/schema"
	"github.com/compresr/action-gateway/internal/store"
)

// =============================================================================
// ACTIONS
// =============================================================================

// InvokeAction validates params against the named schema, calls the action's
// downstream and returns the normalized result.
//
// Schema errors are returned with a nil result. When every attempt fails the
// result is a Failure envelope and the error is the *retry.AggregateError.
func (g *Gateway) InvokeAction(ctx context.Context, name string, params map[string]any) (*normalize.ActionResult, error) {
	start := time.Now()

	s, err := g.schemas.Lookup(name)
	if err != nil {
		return nil, err
	}
	input, err := schema.ValidateAgainst(s, params)
	if err != nil {
		g.alerts.FlagInvalidRequest(requestID(ctx), err.Error())
		return nil, err
	}

	ctx, cancel := g.withCallDeadline(ctx)
	defer cancel()

	if s.Handler.ProviderRouted() {
		return g.invokeProviderAction(ctx, s, input, start)
	}
	return g.invokeServiceAction(ctx, s, input, start)
}

func (g *Gateway) invokeServiceAction(ctx context.Context, s schema.ActionSchema, input schema.ParameterSet, start time.Time) (*normalize.ActionResult, error) {
	svcID := s.Handler.ServiceID
	svc, ok := g.cfg.Services[svcID]
	if !ok {
		return nil, fmt.Errorf("action %q: service %q is not configured", s.Name, svcID)
	}
	payload, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding parameters: %v", ErrInvalidRequest, err)
	}
	headers := make(http.Header, len(svc.Headers)+1)
	for k, v := range svc.Headers {
		headers.Set(k, v)
	}
	headers.Set("Content-Type", "application/json")
	url := svc.URL(s.Handler.Endpoint)

	call := g.newCall(ctx, monitoring.CallAction, s.Name, []string{svcID}, start)
	fn := func(ctx context.Context, hop int) ([]byte, time.Duration, error) {
		call.lastTokens, call.lastCost = 0, 0
		resp, err := g.dispatcher.Call(ctx, dispatch.Request{
			Target:  svcID,
			URL:     url,
			Payload: payload,
			Headers: headers,
			Timeout: s.Handler.Timeout(),
		})
		if err != nil {
			return nil, dispatch.LatencyOf(err), err
		}
		return resp.Body, resp.Latency, nil
	}

	res, err := retry.Execute(ctx, g.retry, call.Chain, fn, g.observer(ctx, call))
	if err != nil {
		return g.failAction(call, input, err), err
	}

	result := g.normalizer.Normalize(s.Name, res.Value, input)
	result.Target = res.HopID
	result.Finalize(start)
	g.finishAction(call, result, len(res.Attempts))
	return result, nil
}

// invokeProviderAction serves actions whose handler is the provider router.
// The handler timeout caps every provider attempt.
func (g *Gateway) invokeProviderAction(ctx context.Context, s schema.ActionSchema, input schema.ParameterSet, start time.Time) (*normalize.ActionResult, error) {
	reqTag := input.String("requirement")
	if reqTag == "" {
		reqTag = s.Handler.Requirement
	}
	tag, err := providers.ParseRequirementTag(reqTag)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	temp, _ := input.Float("temperature")

	req := CompletionRequest{
		Prompt:       input.String("prompt"),
		Requirement:  tag,
		SystemPrompt: input.String("system_prompt"),
		Temperature:  temp,
	}
	call := g.newCall(ctx, monitoring.CallAction, s.Name, nil, start)
	out, err := g.complete(ctx, call, req, s.Handler.Timeout())
	if err != nil {
		var agg *retry.AggregateError
		if !errors.As(err, &agg) {
			return nil, err
		}
		return g.failAction(call, input, err), err
	}

	raw, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encoding completion: %w", err)
	}
	result := g.normalizer.NormalizeWith(normalize.MapChat, s.Name, raw, input)
	result.Target = out.ProviderID
	result.Finalize(start)
	g.finishAction(call, result, out.Attempts)
	return result, nil
}

func (g *Gateway) failAction(call *callContext, input schema.ParameterSet, err error) *normalize.ActionResult {
	var msgs []string
	var agg *retry.AggregateError
	if errors.As(err, &agg) {
		msgs = agg.Messages()
	} else {
		msgs = []string{err.Error()}
	}
	result := normalize.Failure(call.Name, input, msgs, time.Now())
	result.Finalize(call.Start)
	g.finishFailure(call, err, string(result.Status), msgs)
	return result
}

func (g *Gateway) finishAction(call *callContext, result *normalize.ActionResult, attempts int) {
	g.prom.RecordCall(string(call.Kind), string(result.Status))
	g.tracker.RecordCall(&monitoring.CallEvent{
		RequestID: call.RequestID,
		Timestamp: result.Timestamp,
		Kind:      call.Kind,
		Name:      call.Name,
		Status:    string(result.Status),
		Target:    result.Target,
		Chain:     call.Chain,
		Attempts:  attempts,
		Success:   result.Status != normalize.StatusFailure,
		Errors:    result.Errors,
		LatencyMs: result.ExecutionTimeMs,
		ItemCount: len(result.Items),
	})
}

// =============================================================================
// COMPLETIONS
// =============================================================================

// InvokeCompletion routes a prompt across the fallback chain for its
// requirement and returns the first successful completion.
func (g *Gateway) InvokeCompletion(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	start := time.Now()
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("%w: prompt is required", ErrInvalidRequest)
	}
	ctx, cancel := g.withCallDeadline(ctx)
	defer cancel()

	call := g.newCall(ctx, monitoring.CallCompletion, req.Requirement.String(), nil, start)
	out, err := g.complete(ctx, call, req, 0)
	if err != nil {
		var agg *retry.AggregateError
		if errors.As(err, &agg) {
			g.finishFailure(call, err, string(normalize.StatusFailure), agg.Messages())
		}
		return nil, err
	}

	g.prom.RecordCall(string(call.Kind), string(normalize.StatusSuccess))
	g.tracker.RecordCall(&monitoring.CallEvent{
		RequestID: call.RequestID,
		Timestamp: start,
		Kind:      call.Kind,
		Name:      call.Name,
		Status:    string(normalize.StatusSuccess),
		Target:    out.ProviderID,
		Chain:     call.Chain,
		Attempts:  out.Attempts,
		Success:   true,
		Tokens:    out.Tokens,
		Cost:      out.Cost,
		LatencyMs: out.LatencyMs,
	})
	return out, nil
}

// complete runs the fallback chain. attemptCap, when > 0, bounds every
// provider attempt in addition to the provider's own timeout.
func (g *Gateway) complete(ctx context.Context, call *callContext, req CompletionRequest, attemptCap time.Duration) (*CompletionResult, error) {
	if g.router == nil {
		return nil, ErrNoProviders
	}
	chain := g.router.BuildFallbackChain(req.Requirement)
	call.Chain = make([]string, len(chain))
	for i, p := range chain {
		call.Chain[i] = p.ID
	}
	g.requestLogger.LogChain(&monitoring.ChainInfo{
		RequestID: call.RequestID, Kind: call.Kind, Name: call.Name, Chain: call.Chain,
	})

	type completion struct {
		text   string
		tokens int
	}
	fn := func(ctx context.Context, hop int) (completion, time.Duration, error) {
		p := chain[hop]
		call.lastTokens, call.lastCost = 0, p.CostPer1kTokens

		adapter := g.adapters.Get(p.Kind)
		if adapter == nil {
			return completion{}, 0, dispatch.Permanent(p.ID, dispatch.CodeInvalidRequest, "no adapter for kind "+string(p.Kind), 0)
		}
		body, err := adapter.BuildRequest(adapters.CompletionRequest{
			Model:        p.Model,
			SystemPrompt: req.SystemPrompt,
			Prompt:       req.Prompt,
			MaxTokens:    p.MaxTokens,
			Temperature:  req.Temperature,
		})
		if err != nil {
			return completion{}, 0, dispatch.Permanent(p.ID, dispatch.CodeInvalidRequest, err.Error(), 0)
		}
		headers := make(http.Header)
		adapter.SetAuth(headers, p.APIKey())

		timeout := p.Timeout()
		if attemptCap > 0 && (timeout <= 0 || attemptCap < timeout) {
			timeout = attemptCap
		}
		endpoint := adapter.Endpoint(p)
		g.requestLogger.LogOutgoing(&monitoring.OutgoingRequestInfo{
			RequestID: call.RequestID, Target: p.ID, TargetURL: endpoint, Hop: hop, BodySize: len(body),
		})
		resp, err := g.dispatcher.Call(ctx, dispatch.Request{
			Target:  p.ID,
			URL:     endpoint,
			Payload: body,
			Headers: headers,
			Timeout: timeout,
		})
		if err != nil {
			return completion{}, dispatch.LatencyOf(err), err
		}

		text, err := adapter.ExtractContent(resp.Body)
		if err != nil {
			return completion{}, resp.Latency, dispatch.Permanent(p.ID, dispatch.CodeMalformedPayload, err.Error(), resp.Latency)
		}
		if strings.TrimSpace(text) == "" {
			return completion{}, resp.Latency, dispatch.Permanent(p.ID, dispatch.CodeMalformedPayload, "empty completion", resp.Latency)
		}
		tokens := adapter.ExtractUsage(resp.Body).TotalTokens
		if tokens == 0 {
			tokens = adapters.EstimateTokens(req.SystemPrompt, req.Prompt, text)
		}
		call.lastTokens = tokens
		return completion{text: text, tokens: tokens}, resp.Latency, nil
	}

	res, err := retry.Execute(ctx, g.retry, call.Chain, fn, g.observer(ctx, call))
	if err != nil {
		return nil, err
	}
	p := chain[res.Hop]
	return &CompletionResult{
		Response:   res.Value.text,
		ProviderID: p.ID,
		Model:      p.Model,
		LatencyMs:  time.Since(call.Start).Milliseconds(),
		Cost:       p.CostFor(res.Value.tokens),
		Tokens:     res.Value.tokens,
		Attempts:   len(res.Attempts),
	}, nil
}

// =============================================================================
// TELEMETRY
// =============================================================================

func (g *Gateway) newCall(ctx context.Context, kind monitoring.CallKind, name string, chain []string, start time.Time) *callContext {
	c := &callContext{
		RequestID: requestID(ctx),
		Kind:      kind,
		Name:      name,
		Chain:     chain,
		Start:     start,
	}
	if dl, ok := ctx.Deadline(); ok {
		c.Timeout = time.Until(dl)
	}
	if chain != nil {
		g.requestLogger.LogChain(&monitoring.ChainInfo{RequestID: c.RequestID, Kind: kind, Name: name, Chain: chain})
	}
	return c
}

// observer records every attempt in telemetry, the journal and the attempt log.
func (g *Gateway) observer(ctx context.Context, call *callContext) retry.Observer {
	journalCtx := context.WithoutCancel(ctx)
	return func(a retry.Attempt) {
		success := a.Err == nil
		latencyMs := a.Latency.Milliseconds()
		tokens := 0
		if success {
			tokens = call.lastTokens
		}
		g.telemetry.RecordAttempt(a.HopID, success, latencyMs, tokens, call.lastCost)
		cost := float64(tokens) / 1000 * call.lastCost

		status, code := dispatch.Describe(a.Err)
		errMsg := ""
		if a.Err != nil {
			errMsg = a.Err.Error()
			g.alerts.FlagProviderError(call.RequestID, a.HopID, status, code)
		}
		g.alerts.FlagHighLatency(call.RequestID, a.Latency, a.HopID)

		if err := g.journal.Append(journalCtx, store.AttemptRecord{
			RequestID: call.RequestID,
			Kind:      string(call.Kind),
			Name:      call.Name,
			Target:    a.HopID,
			Hop:       a.Hop,
			Retry:     a.Number,
			Success:   success,
			LatencyMs: latencyMs,
			Tokens:    tokens,
			Cost:      cost,
			ErrorCode: code,
			Error:     errMsg,
		}); err != nil {
			g.logger.Warn().Err(err).Msg("journal append failed")
		}
		g.tracker.RecordAttempt(&monitoring.AttemptEvent{
			RequestID:  call.RequestID,
			Timestamp:  time.Now(),
			Target:     a.HopID,
			Hop:        a.Hop,
			Retry:      a.Number,
			Success:    success,
			LatencyMs:  latencyMs,
			Tokens:     tokens,
			Cost:       cost,
			StatusCode: status,
			ErrorCode:  code,
			Error:      errMsg,
		})
	}
}

func (g *Gateway) finishFailure(call *callContext, err error, status string, msgs []string) {
	var agg *retry.AggregateError
	timedOut := false
	attempts := 0
	if errors.As(err, &agg) {
		timedOut = agg.TimedOut
		attempts = len(agg.Attempts)
		if timedOut {
			g.alerts.FlagUpstreamTimeout(call.RequestID, call.Name, agg.Skipped, call.Timeout)
		} else {
			g.alerts.FlagChainExhausted(call.RequestID, call.Name, call.Chain, attempts)
		}
	}
	g.prom.RecordCall(string(call.Kind), status)
	g.tracker.RecordCall(&monitoring.CallEvent{
		RequestID: call.RequestID,
		Timestamp: call.Start,
		Kind:      call.Kind,
		Name:      call.Name,
		Status:    status,
		Chain:     call.Chain,
		Attempts:  attempts,
		TimedOut:  timedOut,
		Errors:    msgs,
		LatencyMs: time.Since(call.Start).Milliseconds(),
	})
}

// withCallDeadline applies the default call timeout when ctx has none.
func (g *Gateway) withCallDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || g.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.callTimeout)
}

func requestID(ctx context.Context) string {
	if id := monitoring.RequestIDFromContext(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}

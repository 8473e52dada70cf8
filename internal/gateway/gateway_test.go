package gateway_test

import (
	"context"
	"io"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compresr/action-gateway/internal/config"
	"github.com/compresr/action-gateway/internal/gateway"
	"github.com/compresr/action-gateway/internal/normalize"
	"github.com/compresr/action-gateway/internal/providers"
	"github.com/compresr/action-gateway/internal/retry"
	"github.com/compresr/action-gateway/internal/schema"
	"github.com/compresr/action-gateway/internal/store"
)

// =============================================================================
// ACTIONS
// =============================================================================

func TestInvokeAction_InjectsDefaultsAndNormalizes(t *testing.T) {
	e := newEnv(t, 2)

	res, err := e.gw.InvokeAction(context.Background(), "research.web", map[string]any{"query": "golang"})
	require.NoError(t, err)

	body := e.search.LastBody()
	assert.Equal(t, "golang", body["query"])
	assert.Equal(t, float64(5), body["maxResultsPerSource"])
	assert.Equal(t, []any{"web"}, body["sources"])
	assert.Equal(t, "svc-token", e.search.LastHeader().Get("X-Service-Token"))

	assert.Equal(t, normalize.StatusSuccess, res.Status)
	assert.Equal(t, "research.web", res.Action)
	assert.Equal(t, "golang", res.Query)
	assert.Equal(t, "search", res.Target)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "https://go.dev", res.Items[0].URL)
	assert.Equal(t, "go.dev", res.Items[0].SourceName)
	assert.InDelta(t, 0.9, res.Items[0].Score, 1e-9)
	require.NotNil(t, res.Summary)
	assert.Equal(t, "Go is a language.", res.Summary.Text)
	assert.True(t, res.Finalized())
	assert.GreaterOrEqual(t, res.ExecutionTimeMs, int64(0))
}

func TestInvokeAction_SchemaErrorsSkipDownstream(t *testing.T) {
	e := newEnv(t, 2)
	ctx := context.Background()

	res, err := e.gw.InvokeAction(ctx, "research.web", map[string]any{})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, schema.ErrMissingParameter)

	res, err = e.gw.InvokeAction(ctx, "research.web", map[string]any{"query": 42})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, schema.ErrTypeMismatch)

	res, err = e.gw.InvokeAction(ctx, "research.nope", map[string]any{"query": "x"})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, schema.ErrUnknownAction)

	assert.Zero(t, e.search.Calls())
	assert.Zero(t, e.gw.Stats().TotalRequests)
}

func TestInvokeAction_ExhaustedReturnsFailureEnvelope(t *testing.T) {
	e := newEnv(t, 2)
	e.search.set(func(f *fakeService) { f.status = http.StatusServiceUnavailable })

	res, err := e.gw.InvokeAction(context.Background(), "research.web", map[string]any{"query": "golang"})
	require.Error(t, err)

	var agg *retry.AggregateError
	require.ErrorAs(t, err, &agg)
	assert.False(t, agg.TimedOut)
	assert.Len(t, agg.Attempts, 3)
	assert.Equal(t, 3, e.search.Calls())

	require.NotNil(t, res)
	assert.Equal(t, normalize.StatusFailure, res.Status)
	assert.Empty(t, res.Items)
	require.NotEmpty(t, res.Errors)
	assert.Contains(t, res.Errors[0], "search")

	stats := e.gw.Stats()
	assert.Equal(t, int64(3), stats.TotalRequests)
	assert.Equal(t, int64(3), stats.PerProvider["search"].Failures)
}

func TestInvokeAction_ProviderRouted(t *testing.T) {
	e := newEnv(t, 1)

	res, err := e.gw.InvokeAction(context.Background(), "chat.ask", map[string]any{"prompt": "hello"})
	require.NoError(t, err)

	assert.Equal(t, normalize.StatusSuccess, res.Status)
	assert.Equal(t, "groq", res.Target)
	assert.Equal(t, "hello", res.Query)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "hi from groq", res.Items[0].Snippet)
	assert.Equal(t, 1, e.groq.Calls())
	assert.Zero(t, e.openai.Calls())
	assert.Contains(t, string(e.groq.LastBody()), `"hello"`)
}

func TestInvokeAction_ProviderRoutedRequirementOverride(t *testing.T) {
	e := newEnv(t, 1, func(c *config.Config) {
		c.Actions[1].Parameters = append(c.Actions[1].Parameters,
			schema.Parameter{Name: "requirement", Type: schema.TypeString})
	})

	res, err := e.gw.InvokeAction(context.Background(), "chat.ask",
		map[string]any{"prompt": "hello", "requirement": "reliable"})
	require.NoError(t, err)
	assert.Equal(t, "openai", res.Target)

	_, err = e.gw.InvokeAction(context.Background(), "chat.ask",
		map[string]any{"prompt": "hello", "requirement": "fastest"})
	assert.ErrorIs(t, err, gateway.ErrInvalidRequest)
}

// =============================================================================
// COMPLETIONS
// =============================================================================

func TestInvokeCompletion_RetriesThenFallsBack(t *testing.T) {
	e := newEnv(t, 1)
	e.groq.set(func(f *fakeProvider) { f.failures = 2 })

	out, err := e.gw.InvokeCompletion(context.Background(), gateway.CompletionRequest{
		Prompt:      "summarize",
		Requirement: providers.TagCheap,
	})
	require.NoError(t, err)

	assert.Equal(t, "openai", out.ProviderID)
	assert.Equal(t, "gpt", out.Model)
	assert.Equal(t, "hi from openai", out.Response)
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, 1500, out.Tokens)
	assert.InDelta(t, 1.5, out.Cost, 1e-9)
	assert.Equal(t, 2, e.groq.Calls())
	assert.Equal(t, 1, e.openai.Calls())

	stats := e.gw.Stats()
	assert.Equal(t, int64(3), stats.TotalRequests)
	assert.InDelta(t, 1.5, stats.TotalCost, 1e-9)
	assert.Equal(t, int64(2), stats.PerProvider["groq"].Failures)
	assert.Zero(t, stats.PerProvider["groq"].Successes)
	assert.Equal(t, int64(1), stats.PerProvider["openai"].Successes)
	assert.InDelta(t, 1.0, stats.PerProvider["openai"].SuccessRate, 1e-9)
}

func TestInvokeCompletion_SendsCredentialFromEnv(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gsk-test")
	e := newEnv(t, 0)

	_, err := e.gw.InvokeCompletion(context.Background(), gateway.CompletionRequest{
		Prompt: "hi", Requirement: providers.TagRealtime,
	})
	require.NoError(t, err)
	assert.Equal(t, "Bearer gsk-test", e.groq.LastAuth())
}

func TestInvokeCompletion_PermanentErrorsExhaustChain(t *testing.T) {
	e := newEnv(t, 3)
	for _, p := range []*fakeProvider{e.groq, e.openai} {
		p.set(func(f *fakeProvider) {
			f.failures = 100
			f.failStatus = http.StatusBadRequest
		})
	}

	out, err := e.gw.InvokeCompletion(context.Background(), gateway.CompletionRequest{
		Prompt: "hi", Requirement: providers.TagReliable,
	})
	assert.Nil(t, out)

	var agg *retry.AggregateError
	require.ErrorAs(t, err, &agg)
	require.Len(t, agg.Errors, 2)
	assert.Equal(t, "openai", agg.Errors[0].HopID)
	assert.Equal(t, "groq", agg.Errors[1].HopID)
	assert.Len(t, agg.Attempts, 2)
	assert.Equal(t, 1, e.openai.Calls())
	assert.Equal(t, 1, e.groq.Calls())
	assert.Zero(t, e.gw.Stats().TotalCost)
}

func TestInvokeCompletion_EmptyTextFallsThrough(t *testing.T) {
	e := newEnv(t, 2)
	e.groq.set(func(f *fakeProvider) { f.reply = "" })

	out, err := e.gw.InvokeCompletion(context.Background(), gateway.CompletionRequest{
		Prompt: "hi", Requirement: providers.TagCheap,
	})
	require.NoError(t, err)
	assert.Equal(t, "openai", out.ProviderID)
	assert.Equal(t, 2, out.Attempts)
	assert.Equal(t, 1, e.groq.Calls())

	recs, err := e.gw.Attempts(context.Background(), store.Query{Target: "groq"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "malformed_payload", recs[0].ErrorCode)
}

func TestInvokeAction_EmptyCompletionIsFailure(t *testing.T) {
	e := newEnv(t, 0)
	for _, p := range []*fakeProvider{e.groq, e.openai} {
		p.set(func(f *fakeProvider) { f.reply = "" })
	}

	res, err := e.gw.InvokeAction(context.Background(), "chat.ask", map[string]any{"prompt": "hello"})
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, normalize.StatusFailure, res.Status)
	assert.Empty(t, res.Items)
}

func TestInvokeCompletion_EmptyPrompt(t *testing.T) {
	e := newEnv(t, 1)
	_, err := e.gw.InvokeCompletion(context.Background(), gateway.CompletionRequest{Prompt: "  "})
	assert.ErrorIs(t, err, gateway.ErrInvalidRequest)
	assert.Zero(t, e.groq.Calls()+e.openai.Calls())
}

func TestInvokeCompletion_NoProviders(t *testing.T) {
	e := newEnv(t, 1, func(c *config.Config) {
		c.Providers = nil
		c.Actions = c.Actions[:1]
	})
	_, err := e.gw.InvokeCompletion(context.Background(), gateway.CompletionRequest{Prompt: "hi"})
	assert.ErrorIs(t, err, gateway.ErrNoProviders)
}

func TestInvokeCompletion_DeadlineStopsChain(t *testing.T) {
	e := newEnv(t, 2)
	e.groq.set(func(f *fakeProvider) { f.hang = true })
	e.openai.set(func(f *fakeProvider) { f.hang = true })

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := e.gw.InvokeCompletion(ctx, gateway.CompletionRequest{Prompt: "hi", Requirement: providers.TagCheap})
	assert.Less(t, time.Since(start), time.Second)

	assert.True(t, retry.IsTimeout(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	var agg *retry.AggregateError
	require.ErrorAs(t, err, &agg)
	assert.Equal(t, []string{"openai"}, agg.Skipped)
	assert.Zero(t, e.openai.Calls())
}

func TestInvokeAction_Concurrent(t *testing.T) {
	e := newEnv(t, 0)
	const n = 40

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			query := "golang"
			if i%2 == 1 {
				query = "bad"
			}
			_, err := e.gw.InvokeAction(context.Background(), "research.web", map[string]any{"query": query})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	failed := 0
	for err := range errs {
		if err != nil {
			failed++
		}
	}
	assert.Equal(t, n/2, failed)

	s := e.gw.Stats().PerProvider["search"]
	assert.Equal(t, int64(n), s.TotalRequests)
	assert.Equal(t, int64(n), s.Successes+s.Failures)
	assert.Equal(t, int64(n/2), s.Successes)
}

// =============================================================================
// JOURNAL
// =============================================================================

func TestAttemptsAreJournaled(t *testing.T) {
	e := newEnv(t, 1)
	e.groq.set(func(f *fakeProvider) { f.failures = 1 })

	_, err := e.gw.InvokeCompletion(context.Background(), gateway.CompletionRequest{
		Prompt: "hi", Requirement: providers.TagCheap,
	})
	require.NoError(t, err)

	recs, err := e.gw.Attempts(context.Background(), store.Query{Target: "groq"})
	require.NoError(t, err)
	require.Len(t, recs, 2)

	// Newest first.
	assert.True(t, recs[0].Success)
	assert.Equal(t, 1, recs[0].Retry)
	assert.Equal(t, 100, recs[0].Tokens)
	assert.False(t, recs[1].Success)
	assert.Equal(t, "server_error", recs[1].ErrorCode)
	assert.Zero(t, recs[1].Tokens)
	assert.Equal(t, recs[0].RequestID, recs[1].RequestID)
}

// =============================================================================
// HTTP
// =============================================================================

func TestHTTP_Action(t *testing.T) {
	e := newEnv(t, 1)

	resp, body := e.post(t, "/v1/actions/research.web", map[string]any{"query": "golang"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "search", body["target"])
	assert.NotEmpty(t, resp.Header.Get(gateway.HeaderRequestID))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
}

func TestHTTP_ActionErrors(t *testing.T) {
	e := newEnv(t, 1)

	tests := []struct {
		name   string
		path   string
		body   any
		status int
		typ    string
	}{
		{"unknown action", "/v1/actions/nope", map[string]any{}, http.StatusNotFound, "unknown_action"},
		{"missing param", "/v1/actions/research.web", map[string]any{}, http.StatusBadRequest, "missing_required_parameter"},
		{"type mismatch", "/v1/actions/research.web", map[string]any{"query": 1}, http.StatusBadRequest, "type_mismatch"},
		{"not an object", "/v1/actions/research.web", []int{1}, http.StatusBadRequest, "invalid_request"},
		{"empty prompt", "/v1/completions", map[string]any{"prompt": ""}, http.StatusBadRequest, "invalid_request"},
		{"unknown requirement", "/v1/completions", map[string]any{"prompt": "x", "requirement": "fastest"}, http.StatusBadRequest, "invalid_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := e.post(t, tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			require.Contains(t, body, "error")
			assert.Equal(t, tt.typ, body["error"].(map[string]any)["type"])
		})
	}
	assert.Zero(t, e.search.Calls())
}

func TestHTTP_ActionExhausted(t *testing.T) {
	e := newEnv(t, 0)
	e.search.set(func(f *fakeService) { f.status = http.StatusInternalServerError })

	resp, body := e.post(t, "/v1/actions/research.web", map[string]any{"query": "golang"})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "failure", body["status"])
	assert.NotEmpty(t, body["errors"])
}

func TestHTTP_CompletionTimeoutHeader(t *testing.T) {
	e := newEnv(t, 2)
	e.groq.set(func(f *fakeProvider) { f.hang = true })
	e.openai.set(func(f *fakeProvider) { f.hang = true })

	resp, body := e.post(t, "/v1/completions", map[string]any{"prompt": "hi", "requirement": "cheap"},
		gateway.HeaderRequestTimeout, "80ms")
	assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
	detail := body["error"].(map[string]any)
	assert.Equal(t, "timeout", detail["type"])
	assert.Equal(t, true, detail["timedOut"])

	resp, _ = e.post(t, "/v1/completions", map[string]any{"prompt": "hi"},
		gateway.HeaderRequestTimeout, "soon")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHTTP_Completion(t *testing.T) {
	e := newEnv(t, 1)

	resp, body := e.post(t, "/v1/completions", map[string]any{"prompt": "hi", "requirement": "cheap"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "groq", body["providerId"])
	assert.Equal(t, "hi from groq", body["response"])
	assert.Equal(t, float64(1), body["attempts"])
}

func TestHTTP_ReadEndpoints(t *testing.T) {
	e := newEnv(t, 1)
	_, err := e.gw.InvokeCompletion(context.Background(), gateway.CompletionRequest{Prompt: "hi"})
	require.NoError(t, err)

	resp, body := e.get(t, "/v1/actions")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["actions"], 2)

	resp, body = e.get(t, "/v1/providers")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["providers"], 2)
	assert.Equal(t, float64(2), body["chainLength"])

	resp, body = e.get(t, "/v1/stats")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["totalRequests"])
	assert.Contains(t, body["perProvider"], "openai")

	resp, body = e.get(t, "/v1/attempts?target=openai&limit=5")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["attempts"], 1)

	resp, _ = e.get(t, "/v1/attempts?limit=-1")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = e.get(t, "/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestHTTP_Metrics(t *testing.T) {
	e := newEnv(t, 1)
	_, err := e.gw.InvokeCompletion(context.Background(), gateway.CompletionRequest{Prompt: "hi"})
	require.NoError(t, err)

	resp, err := http.Get(e.http.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(raw)
	assert.Contains(t, text, `action_gateway_attempts_total{outcome="success",target="openai"} 1`)
	assert.Contains(t, text, `action_gateway_calls_total{kind="completion",status="success"} 1`)
}

func TestHTTP_RateLimit(t *testing.T) {
	e := newEnv(t, 1, func(c *config.Config) {
		c.Server.RateLimit = 1
		c.Server.RateBurst = 1
	})

	resp, _ := e.get(t, "/v1/actions")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, body := e.get(t, "/v1/actions")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "rate_limited", body["error"].(map[string]any)["type"])

	resp, _ = e.get(t, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNew_SQLiteJournal(t *testing.T) {
	path := t.TempDir() + "/attempts.db"
	e := newEnv(t, 0, func(c *config.Config) {
		c.Store = config.StoreConfig{Type: "sqlite", Path: path, TTL: time.Hour}
	})

	_, err := e.gw.InvokeAction(context.Background(), "research.web", map[string]any{"query": "golang"})
	require.NoError(t, err)

	recs, err := e.gw.Attempts(context.Background(), store.Query{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "search", recs[0].Target)
	assert.Equal(t, "research.web", recs[0].Name)
}

func TestNew_JournalErrorReleasesResources(t *testing.T) {
	dir := t.TempDir()
	blocker := dir + "/not-a-dir"
	require.NoError(t, os.WriteFile(blocker, nil, 0600))

	cfg := &config.Config{
		Server: config.ServerConfig{Port: 18090},
		Store:  config.StoreConfig{Type: "sqlite", Path: blocker + "/db/attempts.db"},
		Monitoring: config.MonitoringConfig{
			LogOutput:        dir + "/gateway.log",
			TelemetryEnabled: true,
			TelemetryPath:    dir + "/calls.jsonl",
		},
	}
	gw, err := gateway.New(cfg)
	require.Error(t, err)
	assert.Nil(t, gw)
	assert.Contains(t, err.Error(), "attempt journal")
	assert.FileExists(t, dir+"/gateway.log")
}

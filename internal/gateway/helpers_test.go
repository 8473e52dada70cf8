package gateway_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/compresr/action-gateway/internal/config"
	"github.com/compresr/action-gateway/internal/gateway"
	"github.com/compresr/action-gateway/internal/monitoring"
	"github.com/compresr/action-gateway/internal/providers"
	"github.com/compresr/action-gateway/internal/schema"
)

// fakeProvider is an OpenAI-compatible endpoint that fails the first
// `failures` calls with `failStatus`.
type fakeProvider struct {
	mu         sync.Mutex
	calls      int
	failures   int
	failStatus int
	reply      string
	tokens     int
	hang       bool
	lastAuth   string
	lastBody   []byte
}

func (f *fakeProvider) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.lastAuth = r.Header.Get("Authorization")
	f.lastBody = body
	hang, failures, failStatus := f.hang, f.failures, f.failStatus
	reply, tokens := f.reply, f.tokens
	f.mu.Unlock()

	if hang {
		<-r.Context().Done()
		return
	}
	if n <= failures {
		w.WriteHeader(failStatus)
		w.Write([]byte(`{"error":{"message":"upstream failure"}}`))
		return
	}
	json.NewEncoder(w).Encode(map[string]any{
		"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": reply}}},
		"usage":   map[string]any{"prompt_tokens": tokens / 2, "completion_tokens": tokens - tokens/2, "total_tokens": tokens},
	})
}

func (f *fakeProvider) set(fn func(*fakeProvider)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeProvider) LastBody() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastBody
}

func (f *fakeProvider) LastAuth() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastAuth
}

func (f *fakeProvider) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeService is a research downstream returning the canned shape.
type fakeService struct {
	mu       sync.Mutex
	calls    int
	status   int
	lastBody map[string]any
	lastHdr  http.Header
	respond  func(body map[string]any) any
}

func (f *fakeService) handler(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.mu.Lock()
	f.calls++
	f.lastBody = body
	f.lastHdr = r.Header.Clone()
	status, respond := f.status, f.respond
	f.mu.Unlock()

	if q, _ := body["query"].(string); q == "bad" {
		status = http.StatusBadRequest
	}

	if status != 0 {
		w.WriteHeader(status)
		w.Write([]byte(`{"error":"down"}`))
		return
	}
	var resp any = map[string]any{
		"query": body["query"],
		"sources": []any{
			map[string]any{"title": "Go", "url": "https://go.dev", "snippet": "The Go language", "name": "go.dev", "relevanceScore": 0.9},
		},
		"summary": "Go is a language.",
	}
	if respond != nil {
		resp = respond(body)
	}
	json.NewEncoder(w).Encode(resp)
}

func (f *fakeService) set(fn func(*fakeService)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeService) LastBody() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastBody
}

func (f *fakeService) LastHeader() http.Header {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastHdr
}

func (f *fakeService) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type env struct {
	gw     *gateway.Gateway
	http   *httptest.Server
	groq   *fakeProvider
	openai *fakeProvider
	search *fakeService
	cfg    *config.Config
}

func serve(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

// newEnv builds a gateway with two OpenAI-compatible providers (groq: cheap
// and fast, openai: reliable default) and one research service.
func newEnv(t *testing.T, maxRetries int, mutate ...func(*config.Config)) *env {
	t.Helper()
	e := &env{
		groq:   &fakeProvider{reply: "hi from groq", tokens: 100, failStatus: http.StatusServiceUnavailable},
		openai: &fakeProvider{reply: "hi from openai", tokens: 1500, failStatus: http.StatusServiceUnavailable},
		search: &fakeService{},
	}
	groqSrv := serve(t, e.groq.handler)
	openaiSrv := serve(t, e.openai.handler)
	searchSrv := serve(t, e.search.handler)

	e.cfg = &config.Config{
		Server: config.ServerConfig{Port: 18090, ReadTimeout: time.Second, WriteTimeout: time.Second, CallTimeout: 5 * time.Second},
		Services: map[string]config.ServiceConfig{
			"search": {BaseURL: searchSrv.URL, Headers: map[string]string{"X-Service-Token": "svc-token"}},
		},
		Actions: []schema.ActionSchema{
			{
				Name: "research.web",
				Parameters: []schema.Parameter{
					{Name: "query", Type: schema.TypeString, Required: true},
					{Name: "sources", Type: schema.TypeArray, Default: []any{"web"}},
					{Name: "maxResultsPerSource", Type: schema.TypeInteger, Default: 5},
				},
				Handler: schema.Handler{ServiceID: "search", Endpoint: "/v1/search", TimeoutMs: 2000},
			},
			{
				Name: "chat.ask",
				Parameters: []schema.Parameter{
					{Name: "prompt", Type: schema.TypeString, Required: true},
					{Name: "temperature", Type: schema.TypeNumber, Default: 0.2},
				},
				Handler: schema.Handler{ServiceID: schema.ProviderServiceID, TimeoutMs: 2000, Requirement: "cheap"},
			},
		},
		Providers: []providers.ProviderConfig{
			{ID: "groq", Kind: providers.KindOpenAI, Endpoint: groqSrv.URL, Model: "llama", TimeoutMs: 2000,
				CostPer1kTokens: 0.1, AvgLatencyMs: 100, ReliabilityScore: 0.90, ReasoningScore: 0.5},
			{ID: "openai", Kind: providers.KindOpenAI, Endpoint: openaiSrv.URL, Model: "gpt", TimeoutMs: 2000,
				CostPer1kTokens: 1.0, AvgLatencyMs: 500, ReliabilityScore: 0.99, ReasoningScore: 0.8},
		},
		Routing: config.RoutingConfig{DefaultProvider: "openai", ChainLength: 2},
		Retry:   config.RetryConfig{MaxRetries: &maxRetries, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
		Store:   config.StoreConfig{Type: "memory", TTL: time.Hour},
		Monitoring: config.MonitoringConfig{
			MetricsEnabled:   true,
			TelemetryEnabled: true,
			TelemetryPath:    t.TempDir() + "/calls.jsonl",
			AttemptLogPath:   t.TempDir() + "/attempts.jsonl",
		},
	}
	for _, m := range mutate {
		m(e.cfg)
	}

	gw, err := gateway.New(e.cfg, gateway.WithLogger(monitoring.Nop()))
	require.NoError(t, err)
	e.gw = gw
	e.http = httptest.NewServer(gw.Handler())
	t.Cleanup(func() {
		e.http.Close()
		require.NoError(t, gw.Close())
	})
	return e
}

func (e *env) post(t *testing.T, path string, body any, headers ...string) (*http.Response, map[string]any) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, e.http.URL+path, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	return do(t, req)
}

func (e *env) get(t *testing.T, path string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, e.http.URL+path, nil)
	require.NoError(t, err)
	return do(t, req)
}

func do(t *testing.T, req *http.Request) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp, out
}

// Package gateway is the action dispatch and LLM routing service.
//
// DESIGN: One Gateway per process, built once from config and read-only
// afterwards. Each inbound call flows through:
//
//	Validator (schema) → Router (providers) → retry.Controller → Dispatcher
//	  → Normalizer → Telemetry
//
// Per-call state lives on the caller's goroutine; shared state (telemetry,
// journal, limiters) is safe for concurrent use.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/compresr/action-gateway/internal/adapters"
	"github.com/compresr/action-gateway/internal/config"
	"github.com/compresr/action-gateway/internal/dispatch"
	"github.com/compresr/action-gateway/internal/monitoring"
	"github.com/compresr/action-gateway/internal/normalize"
	"github.com/compresr/action-gateway/internal/providers"
	"github.com/compresr/action-gateway/internal/retry"
	"github.com/compresr/action-gateway/internal/schema"
	"github.com/compresr/action-gateway/internal/store"
)

// Gateway wires the components together.
type Gateway struct {
	cfg *config.Config

	schemas    *schema.Registry
	router     *providers.Router // nil when no providers are configured
	adapters   *adapters.Registry
	dispatcher *dispatch.Dispatcher
	retry      *retry.Controller
	normalizer *normalize.Normalizer

	telemetry     *monitoring.Telemetry
	prom          *monitoring.PromMetrics
	tracker       *monitoring.Tracker
	journal       store.Journal
	logger        *monitoring.Logger
	ownsLogger    bool // built from config, closed by Close
	requestLogger *monitoring.RequestLogger
	alerts        *monitoring.AlertManager

	rateLimiter *rateLimiter
	server      *http.Server
	callTimeout time.Duration
}

// Option customises a Gateway.
type Option func(*Gateway)

// WithDispatcher replaces the dispatcher built from config.
func WithDispatcher(d *dispatch.Dispatcher) Option {
	return func(g *Gateway) { g.dispatcher = d }
}

// WithJournal replaces the journal built from config.
func WithJournal(j store.Journal) Option {
	return func(g *Gateway) { g.journal = j }
}

// WithLogger sets the logger used for request logs and alerts.
func WithLogger(l *monitoring.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// WithNormalizer replaces the default normalizer.
func WithNormalizer(n *normalize.Normalizer) Option {
	return func(g *Gateway) { g.normalizer = n }
}

// New builds a gateway from a validated config.
func New(cfg *config.Config, opts ...Option) (*Gateway, error) {
	g := &Gateway{
		cfg:         cfg,
		adapters:    adapters.NewRegistry(),
		retry:       retry.NewController(cfg.Retry.Policy()),
		callTimeout: cfg.Server.CallTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}

	var err error
	if g.schemas, err = schema.NewRegistryFromConfig(cfg.Actions); err != nil {
		return nil, fmt.Errorf("schema registry: %w", err)
	}
	if len(cfg.Providers) > 0 {
		catalog, err := cfg.Catalog()
		if err != nil {
			return nil, fmt.Errorf("provider catalog: %w", err)
		}
		if g.router, err = providers.NewRouter(catalog, cfg.Routing.ChainLength); err != nil {
			return nil, fmt.Errorf("provider router: %w", err)
		}
	}

	if g.normalizer == nil {
		g.normalizer = normalize.New()
	}
	if g.logger == nil {
		g.logger = monitoring.New(cfg.Monitoring.LoggerConfig())
		g.ownsLogger = true
	}
	g.requestLogger = monitoring.NewRequestLogger(g.logger)
	g.alerts = monitoring.NewAlertManager(g.logger, cfg.Monitoring.AlertConfig())

	if cfg.Monitoring.MetricsEnabled {
		g.prom = monitoring.NewPromMetrics()
		g.telemetry = monitoring.NewTelemetry(monitoring.WithPrometheus(g.prom))
	} else {
		g.telemetry = monitoring.NewTelemetry()
	}
	if g.tracker, err = monitoring.NewTracker(cfg.Monitoring.TelemetryConfig()); err != nil {
		g.closeLogger()
		return nil, fmt.Errorf("telemetry tracker: %w", err)
	}

	if g.journal == nil {
		if g.journal, err = openJournal(cfg.Store); err != nil {
			_ = g.tracker.Close()
			g.closeLogger()
			return nil, err
		}
	}
	if g.dispatcher == nil {
		g.dispatcher = buildDispatcher(cfg)
	}
	if cfg.Server.RateLimit > 0 {
		g.rateLimiter = newRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst)
	}

	g.server = &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      g.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return g, nil
}

func openJournal(cfg config.StoreConfig) (store.Journal, error) {
	switch cfg.Type {
	case "sqlite":
		j, err := store.NewSQLiteJournal(cfg.Path, cfg.TTL)
		if err != nil {
			return nil, fmt.Errorf("attempt journal: %w", err)
		}
		return j, nil
	default:
		return store.NewMemoryJournal(cfg.TTL, cfg.MaxEntries), nil
	}
}

// buildDispatcher applies per-target rate limits and signing clients.
func buildDispatcher(cfg *config.Config) *dispatch.Dispatcher {
	var opts []dispatch.Option
	for id, svc := range cfg.Services {
		opts = append(opts, dispatch.WithRateLimit(id, svc.RequestsPerSecond))
	}
	for _, p := range cfg.Providers {
		opts = append(opts, dispatch.WithRateLimit(p.ID, p.RequestsPerSecond))
		if p.Kind != providers.KindBedrock {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		client, err := dispatch.NewBedrockClient(ctx, p.Region)
		cancel()
		if err != nil {
			// Unsigned calls fail with 403 and the chain moves on.
			log.Warn().Err(err).Str("provider", p.ID).Msg("bedrock credentials unavailable")
			continue
		}
		opts = append(opts, dispatch.WithTargetClient(p.ID, client))
	}
	return dispatch.New(opts...)
}

// Handler returns the HTTP handler with the middleware chain applied.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/actions/{name}", g.handleAction)
	mux.HandleFunc("POST /v1/completions", g.handleCompletion)
	mux.HandleFunc("GET /v1/actions", g.handleListActions)
	mux.HandleFunc("GET /v1/providers", g.handleListProviders)
	mux.HandleFunc("GET /v1/stats", g.handleStats)
	mux.HandleFunc("GET /v1/attempts", g.handleAttempts)
	mux.HandleFunc("GET /health", g.handleHealth)
	if g.prom != nil {
		mux.Handle("GET /metrics", g.prom.Handler())
	}

	var h http.Handler = mux
	h = g.security(h)
	h = g.rateLimit(h)
	h = g.loggingMiddleware(h)
	h = g.panicRecovery(h)
	return h
}

// Start listens on the configured port. It blocks until Shutdown.
func (g *Gateway) Start() error {
	log.Info().Str("addr", g.server.Addr).Int("actions", g.schemas.Len()).Msg("gateway listening")
	err := g.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the HTTP server and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	err := g.server.Shutdown(ctx)
	if cerr := g.Close(); err == nil {
		err = cerr
	}
	return err
}

// Close releases background resources without touching the HTTP server.
func (g *Gateway) Close() error {
	if g.rateLimiter != nil {
		g.rateLimiter.stop()
	}
	g.dispatcher.CloseIdleConnections()
	_ = g.tracker.Close()
	err := g.journal.Close()
	g.closeLogger()
	return err
}

func (g *Gateway) closeLogger() {
	if g.ownsLogger {
		_ = g.logger.Close()
	}
}

// Stats returns a telemetry snapshot.
func (g *Gateway) Stats() monitoring.Stats {
	return g.telemetry.Stats()
}

// Actions returns the registered schemas, sorted by name.
func (g *Gateway) Actions() []schema.ActionSchema {
	names := g.schemas.Names()
	out := make([]schema.ActionSchema, 0, len(names))
	for _, n := range names {
		if s, err := g.schemas.Lookup(n); err == nil {
			out = append(out, s)
		}
	}
	return out
}

// Providers returns the catalog in declaration order.
func (g *Gateway) Providers() []ProviderInfo {
	if g.router == nil {
		return []ProviderInfo{}
	}
	cat := g.router.Catalog()
	def := cat.Default().ID
	all := cat.All()
	out := make([]ProviderInfo, 0, len(all))
	for _, p := range all {
		out = append(out, ProviderInfo{
			ID:               p.ID,
			Kind:             p.Kind,
			Model:            p.Model,
			CostPer1kTokens:  p.CostPer1kTokens,
			AvgLatencyMs:     p.AvgLatencyMs,
			ReliabilityScore: p.ReliabilityScore,
			ReasoningScore:   p.ReasoningScore,
			Default:          p.ID == def,
			Credentials:      p.Kind == providers.KindBedrock || p.Kind == providers.KindOllama || p.APIKey() != "",
		})
	}
	return out
}

// Attempts returns recent journaled attempts.
func (g *Gateway) Attempts(ctx context.Context, q store.Query) ([]store.AttemptRecord, error) {
	return g.journal.Recent(ctx, q)
}

// Package monitoring - prometheus.go mirrors telemetry as Prometheus metrics.
//
// DESIGN: Metrics live on a private registry so several gateways (and tests)
// can coexist in one process. All names are prefixed "action_gateway_".
//
//   - action_gateway_attempts_total{target,outcome}
//   - action_gateway_attempt_latency_seconds{target}
//   - action_gateway_tokens_total{target}
//   - action_gateway_cost_total
//   - action_gateway_calls_total{kind,status}
package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PromMetrics holds the Prometheus collectors.
type PromMetrics struct {
	registry *prometheus.Registry

	AttemptsTotal  *prometheus.CounterVec
	AttemptLatency *prometheus.HistogramVec
	TokensTotal    *prometheus.CounterVec
	CostTotal      prometheus.Counter
	CallsTotal     *prometheus.CounterVec
}

// NewPromMetrics registers the collectors on a new registry.
func NewPromMetrics() *PromMetrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &PromMetrics{
		registry: reg,
		AttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "action_gateway_attempts_total",
				Help: "Downstream attempts by target and outcome",
			},
			[]string{"target", "outcome"}, // "success" or "failure"
		),
		AttemptLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "action_gateway_attempt_latency_seconds",
				Help:    "Latency of downstream attempts in seconds",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
			},
			[]string{"target"},
		),
		TokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "action_gateway_tokens_total",
				Help: "Tokens billed per target",
			},
			[]string{"target"},
		),
		CostTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "action_gateway_cost_total",
				Help: "Accumulated cost of all attempts",
			},
		),
		CallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "action_gateway_calls_total",
				Help: "Inbound calls by kind and final status",
			},
			[]string{"kind", "status"}, // kind: "action" or "completion"
		),
	}
}

func (m *PromMetrics) observe(target string, success bool, latencyMs int64, tokens int, cost float64) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.AttemptsTotal.WithLabelValues(target, outcome).Inc()
	m.AttemptLatency.WithLabelValues(target).Observe(float64(latencyMs) / 1000)
	if tokens > 0 {
		m.TokensTotal.WithLabelValues(target).Add(float64(tokens))
	}
	if cost > 0 {
		m.CostTotal.Add(cost)
	}
}

// RecordCall counts one inbound call.
func (m *PromMetrics) RecordCall(kind, status string) {
	if m == nil {
		return
	}
	m.CallsTotal.WithLabelValues(kind, status).Inc()
}

// Registry returns the underlying registry.
func (m *PromMetrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *PromMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

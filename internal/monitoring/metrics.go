// Package monitoring - metrics.go aggregates per-provider performance and cost.
//
// DESIGN: Telemetry is lock-free on the write path:
//   - providers:  sync.Map of id -> *PerformanceRecord (load-or-store)
//   - counters:   atomic.Int64 per record, so unrelated providers never contend
//   - totalCost:  float64 bits in an atomic.Uint64, updated by CAS
//
// Stats() reads each counter once; it never blocks writers. An optional
// Prometheus mirror exports the same counters.
package monitoring

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
)

// PerformanceRecord holds the counters for one provider or service.
type PerformanceRecord struct {
	successes      atomic.Int64
	failures       atomic.Int64
	totalLatencyMs atomic.Int64
	tokens         atomic.Int64
}

// Telemetry is the process-wide performance and cost aggregator.
type Telemetry struct {
	records       sync.Map // string -> *PerformanceRecord
	totalRequests atomic.Int64
	totalCostBits atomic.Uint64

	prom *PromMetrics
}

// TelemetryOption configures a Telemetry.
type TelemetryOption func(*Telemetry)

// WithPrometheus mirrors every recorded attempt into m.
func WithPrometheus(m *PromMetrics) TelemetryOption {
	return func(t *Telemetry) { t.prom = m }
}

// NewTelemetry creates an empty aggregator.
func NewTelemetry(opts ...TelemetryOption) *Telemetry {
	t := &Telemetry{}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RecordAttempt records one completed attempt against providerID. Cost is
// tokens/1000*costPer1k and is added to the ledger for every attempt.
func (t *Telemetry) RecordAttempt(providerID string, success bool, latencyMs int64, tokens int, costPer1k float64) {
	if latencyMs < 0 {
		latencyMs = 0
	}
	if tokens < 0 {
		tokens = 0
	}
	rec := t.record(providerID)
	if success {
		rec.successes.Add(1)
	} else {
		rec.failures.Add(1)
	}
	rec.totalLatencyMs.Add(latencyMs)
	rec.tokens.Add(int64(tokens))

	cost := float64(tokens) / 1000 * costPer1k
	t.totalRequests.Add(1)
	t.addCost(cost)

	if t.prom != nil {
		t.prom.observe(providerID, success, latencyMs, tokens, cost)
	}
}

func (t *Telemetry) record(id string) *PerformanceRecord {
	if v, ok := t.records.Load(id); ok {
		return v.(*PerformanceRecord)
	}
	v, _ := t.records.LoadOrStore(id, &PerformanceRecord{})
	return v.(*PerformanceRecord)
}

func (t *Telemetry) addCost(delta float64) {
	if delta == 0 {
		return
	}
	for {
		old := t.totalCostBits.Load()
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if t.totalCostBits.CompareAndSwap(old, next) {
			return
		}
	}
}

// ProviderStats is the snapshot of one PerformanceRecord.
type ProviderStats struct {
	SuccessRate    float64 `json:"successRate"`
	AvgLatencyMs   float64 `json:"avgLatencyMs"`
	TotalRequests  int64   `json:"totalRequests"`
	Successes      int64   `json:"successes"`
	Failures       int64   `json:"failures"`
	TotalLatencyMs int64   `json:"totalLatencyMs"`
	Tokens         int64   `json:"tokens"`
}

// Stats is a point-in-time snapshot.
type Stats struct {
	TotalRequests int64                    `json:"totalRequests"`
	TotalCost     float64                  `json:"totalCost"`
	PerProvider   map[string]ProviderStats `json:"perProvider"`
}

// Stats returns a snapshot. Counters are read individually, so a snapshot
// taken during heavy traffic may mix values from adjacent attempts.
func (t *Telemetry) Stats() Stats {
	s := Stats{
		TotalRequests: t.totalRequests.Load(),
		TotalCost:     math.Float64frombits(t.totalCostBits.Load()),
		PerProvider:   make(map[string]ProviderStats),
	}
	t.records.Range(func(k, v any) bool {
		rec := v.(*PerformanceRecord)
		ps := ProviderStats{
			Successes:      rec.successes.Load(),
			Failures:       rec.failures.Load(),
			TotalLatencyMs: rec.totalLatencyMs.Load(),
			Tokens:         rec.tokens.Load(),
		}
		ps.TotalRequests = ps.Successes + ps.Failures
		if ps.TotalRequests > 0 {
			ps.SuccessRate = float64(ps.Successes) / float64(ps.TotalRequests)
			ps.AvgLatencyMs = float64(ps.TotalLatencyMs) / float64(ps.TotalRequests)
		}
		s.PerProvider[k.(string)] = ps
		return true
	})
	return s
}

// ProviderIDs returns the ids with at least one recorded attempt, sorted.
func (s Stats) ProviderIDs() []string {
	ids := make([]string, 0, len(s.PerProvider))
	for id := range s.PerProvider {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

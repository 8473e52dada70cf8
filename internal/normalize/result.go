// Package normalize maps downstream responses into the canonical ActionResult.
//
// DESIGN: Mappers are selected by action-name prefix from a table. Each mapper
// only extracts items, summary and error signals with gjson; status and the
// envelope are decided here so every action family follows the same rules.
package normalize

import (
	"time"

	"github.com/compresr/action-gateway/internal/schema"
)

// Status is the outcome of an action call.
type Status string

const (
	StatusSuccess        Status = "success"
	StatusPartialSuccess Status = "partial_success"
	StatusFailure        Status = "failure"
)

// Item is one canonical result record.
type Item struct {
	Title         string    `json:"title"`
	URL           string    `json:"url"`
	Snippet       string    `json:"snippet"`
	ExtractedText string    `json:"extractedText,omitempty"`
	SourceName    string    `json:"sourceName"`
	FetchedAt     time.Time `json:"fetchedAt"`
	Score         float64   `json:"score"`
}

// Summary is attached when the downstream produced a usable summary.
type Summary struct {
	Text string `json:"text"`
}

// ActionResult is the envelope returned for every action call.
type ActionResult struct {
	Status          Status              `json:"status"`
	Action          string              `json:"action"`
	Query           string              `json:"query"`
	Input           schema.ParameterSet `json:"input"`
	Items           []Item              `json:"items"`
	Summary         *Summary            `json:"summary,omitempty"`
	Timestamp       time.Time           `json:"timestamp"`
	ExecutionTimeMs int64               `json:"executionTimeMs"`
	Errors          []string            `json:"errors"`
	Target          string              `json:"target,omitempty"` // service or provider that answered

	finalized bool
}

// Finalize sets ExecutionTimeMs from start. Only the first call has effect;
// a start in the future yields 0.
func (r *ActionResult) Finalize(start time.Time) *ActionResult {
	if r.finalized {
		return r
	}
	ms := time.Since(start).Milliseconds()
	if ms < 0 {
		ms = 0
	}
	r.ExecutionTimeMs = ms
	r.finalized = true
	return r
}

// Finalized reports whether Finalize has run.
func (r *ActionResult) Finalized() bool { return r.finalized }

// Failure builds the envelope for a call that produced no response at all,
// such as an exhausted fallback chain.
func Failure(action string, input schema.ParameterSet, errs []string, at time.Time) *ActionResult {
	r := newResult(action, input, at)
	r.Status = StatusFailure
	r.Errors = append(r.Errors, errs...)
	return r
}

func newResult(action string, input schema.ParameterSet, at time.Time) *ActionResult {
	return &ActionResult{
		Action:    action,
		Query:     queryOf(input),
		Input:     copyInput(input),
		Items:     []Item{},
		Errors:    []string{},
		Timestamp: at,
	}
}

// queryOf echoes the caller's query, falling back to prompt for llm actions.
func queryOf(input schema.ParameterSet) string {
	if q := input.String("query"); q != "" {
		return q
	}
	return input.String("prompt")
}

func copyInput(in schema.ParameterSet) schema.ParameterSet {
	out := make(schema.ParameterSet, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

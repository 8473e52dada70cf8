// Package store provides the attempt journal.
//
// DESIGN: Every downstream attempt made by the gateway is appended to a
// Journal so operators can inspect recent traffic (GET /v1/attempts):
//   - MemoryJournal: bounded in-memory log with TTL, for single instances
//   - SQLiteJournal: persistent log in a SQLite file (modernc.org/sqlite)
//
// Both expire entries older than the TTL from a background cleanup loop.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Default values
const (
	DefaultTTL        = 24 * time.Hour
	DefaultMaxEntries = 10000
	DefaultQueryLimit = 100
	cleanupInterval   = 5 * time.Minute
)

// AttemptRecord is one journaled downstream attempt.
type AttemptRecord struct {
	ID        string    `json:"id"`
	RequestID string    `json:"requestId"`
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"`   // action or completion
	Name      string    `json:"name"`   // action name or requirement tag
	Target    string    `json:"target"` // service or provider id
	Hop       int       `json:"hop"`
	Retry     int       `json:"retry"`
	Success   bool      `json:"success"`
	LatencyMs int64     `json:"latencyMs"`
	Tokens    int       `json:"tokens"`
	Cost      float64   `json:"cost"`
	ErrorCode string    `json:"errorCode,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Query filters Recent. Zero fields match everything.
type Query struct {
	Target    string
	RequestID string
	Limit     int
}

func (q Query) limit() int {
	if q.Limit <= 0 {
		return DefaultQueryLimit
	}
	return q.Limit
}

func (q Query) matches(r *AttemptRecord) bool {
	if q.Target != "" && r.Target != q.Target {
		return false
	}
	if q.RequestID != "" && r.RequestID != q.RequestID {
		return false
	}
	return true
}

// Journal defines the interface for attempt storage.
type Journal interface {
	// Append stores one record. ID and Timestamp are filled when empty.
	Append(ctx context.Context, rec AttemptRecord) error

	// Recent returns matching records, newest first.
	Recent(ctx context.Context, q Query) ([]AttemptRecord, error)

	// Close stops background cleanup and releases resources.
	Close() error
}

// prepare fills generated fields.
func prepare(rec *AttemptRecord, now time.Time) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = now
	}
}

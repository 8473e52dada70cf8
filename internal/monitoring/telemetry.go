// Package monitoring - telemetry.go records events to JSONL files.
//
// DESIGN: Tracker writes structured events as JSONL (one JSON object per line):
//   - CallEvent:     Every inbound action or completion call
//   - AttemptEvent:  Each downstream attempt (optional separate file)
//
// Events are appended to files immediately after each event for real-time logging.
package monitoring

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// Tracker handles telemetry event recording to file and stdout.
type Tracker struct {
	config         TelemetryConfig
	callLogPath    string
	attemptLogPath string
	callCount      int
	attemptCount   int
	mu             sync.Mutex
}

// NewTracker creates a new telemetry tracker.
func NewTracker(cfg TelemetryConfig) (*Tracker, error) {
	t := &Tracker{
		config: cfg,
	}

	if !cfg.Enabled {
		return t, nil
	}

	var err error
	if t.callLogPath, err = prepareLog(cfg.LogPath); err != nil {
		return nil, err
	}
	if t.attemptLogPath, err = prepareLog(cfg.AttemptLogPath); err != nil {
		return nil, err
	}
	return t, nil
}

// prepareLog ensures the directory exists and creates an empty file.
func prepareLog(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return "", err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if f, err := os.Create(path); err == nil {
			f.Close()
		}
	}
	return path, nil
}

// appendJSONL appends a single JSON object as a line to the file.
func appendJSONL(path string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(data)
	return err
}

// RecordCall records an inbound call event.
func (t *Tracker) RecordCall(event *CallEvent) {
	if t == nil || !t.config.Enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.config.LogToStdout {
		reqID := event.RequestID
		if len(reqID) > 8 {
			reqID = reqID[:8]
		}
		log.Info().
			Str("request_id", reqID).
			Str("kind", string(event.Kind)).
			Str("name", event.Name).
			Str("status", event.Status).
			Str("target", event.Target).
			Int("attempts", event.Attempts).
			Msg("telemetry")
	}

	if t.callLogPath != "" {
		if err := appendJSONL(t.callLogPath, event); err != nil {
			log.Error().Err(err).Str("path", t.callLogPath).Msg("telemetry: failed to write call event")
		} else {
			t.callCount++
		}
	}
}

// AttemptLogEnabled returns true if attempt logging is enabled.
func (t *Tracker) AttemptLogEnabled() bool {
	return t != nil && t.config.Enabled && t.attemptLogPath != ""
}

// RecordAttempt records a downstream attempt event.
func (t *Tracker) RecordAttempt(event *AttemptEvent) {
	if !t.AttemptLogEnabled() {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := appendJSONL(t.attemptLogPath, event); err != nil {
		log.Error().Err(err).Str("path", t.attemptLogPath).Msg("telemetry: failed to write attempt event")
	} else {
		t.attemptCount++
	}
}

// Close logs a session summary.
func (t *Tracker) Close() error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.callLogPath != "" && t.callCount > 0 {
		log.Info().
			Str("path", t.callLogPath).
			Int("calls", t.callCount).
			Int("attempts", t.attemptCount).
			Msg("telemetry: session complete")
	}

	return nil
}

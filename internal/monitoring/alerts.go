// Package monitoring - alerts.go flags anomalies and errors.
//
// DESIGN: AlertManager logs notable events at appropriate levels:
//   - FlagHighLatency:     Warn when an attempt exceeds threshold
//   - FlagProviderError:   Warn on a failed downstream attempt
//   - FlagChainExhausted:  Error when every hop of a fallback chain failed
//   - FlagUpstreamTimeout: Error when the caller's deadline cut a call short
//   - FlagPanic:           Error on recovered panics
package monitoring

import "time"

// AlertManager flags anomalies and errors.
type AlertManager struct {
	logger               *Logger
	highLatencyThreshold time.Duration
}

// NewAlertManager creates a new alert manager.
func NewAlertManager(logger *Logger, cfg AlertConfig) *AlertManager {
	threshold := cfg.HighLatencyThreshold
	if threshold == 0 {
		threshold = 5 * time.Second
	}
	return &AlertManager{logger: logger, highLatencyThreshold: threshold}
}

// FlagHighLatency logs when attempt latency exceeds threshold.
func (am *AlertManager) FlagHighLatency(requestID string, latency time.Duration, target string) {
	if latency < am.highLatencyThreshold {
		return
	}
	am.logger.Warn().
		Str("request_id", requestID).
		Dur("latency", latency).
		Str("target", target).
		Msg("high_latency")
}

// FlagProviderError logs a failed downstream attempt.
func (am *AlertManager) FlagProviderError(requestID, target string, statusCode int, code string) {
	am.logger.Warn().
		Str("request_id", requestID).
		Str("target", target).
		Int("status", statusCode).
		Str("code", code).
		Msg("provider_error")
}

// FlagChainExhausted logs a call whose every hop failed.
func (am *AlertManager) FlagChainExhausted(requestID, name string, chain []string, attempts int) {
	am.logger.Error().
		Str("request_id", requestID).
		Str("name", name).
		Strs("chain", chain).
		Int("attempts", attempts).
		Msg("chain_exhausted")
}

// FlagInvalidRequest logs an invalid request.
func (am *AlertManager) FlagInvalidRequest(requestID, reason string) {
	am.logger.Debug().
		Str("request_id", requestID).
		Str("reason", reason).
		Msg("invalid_request")
}

// FlagPanic logs recovered panic.
func (am *AlertManager) FlagPanic(requestID string, panicValue interface{}, stack string) {
	am.logger.Error().
		Str("request_id", requestID).
		Interface("panic", panicValue).
		Str("stack", stack).
		Msg("panic_recovered")
}

// FlagUpstreamTimeout logs a call cut short by its deadline.
func (am *AlertManager) FlagUpstreamTimeout(requestID, name string, skipped []string, timeout time.Duration) {
	am.logger.Error().
		Str("request_id", requestID).
		Str("name", name).
		Strs("not_tried", skipped).
		Dur("timeout", timeout).
		Msg("upstream_timeout")
}

package connector

import (
	"errors"
	"fmt"
	"net/http"
)

// UpstreamStatusError is a non-2xx answer from the external API
type UpstreamStatusError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the status is worth another attempt
func (e *UpstreamStatusError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// NoResponseError means the request never produced a response
type NoResponseError struct {
	Err error
}

func (e *NoResponseError) Error() string {
	return "no response from server: " + e.Err.Error()
}

func (e *NoResponseError) Unwrap() error { return e.Err }

// ConfigError is a connector misconfiguration; it is never retried
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return "connector configuration error: " + e.Message
}

func configErrorf(format string, args ...any) *ConfigError {
	return &ConfigError{Message: fmt.Sprintf(format, args...)}
}

// StatusCode extracts the upstream status from err, or 0
func StatusCode(err error) int {
	var upstream *UpstreamStatusError
	if errors.As(err, &upstream) {
		return upstream.StatusCode
	}
	return 0
}

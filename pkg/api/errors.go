package api

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// APIError is returned for every non-2xx response from the gateway.
// The specialised errors below embed it.
type APIError struct {
	// HTTP Status Code (e.g., 401, 429, 500)
	StatusCode int
	// Message from the error body, or a fallback naming the status code
	Message string
	// Type is the gateway error type, when the body carried one
	Type string
	// Code is the gateway error code, when the body carried one
	Code string
	// RequestID is the X-Request-Id of the failed call; empty when absent
	RequestID string
}

func (e *APIError) Error() string {
	if e == nil {
		return "<nil>"
	}

	var b strings.Builder
	b.WriteString("prism: ")

	// the fallback message already names the status
	msg := strings.TrimSpace(e.Message)
	switch {
	case msg == fallbackMessage(e.StatusCode):
		b.WriteString(msg)
	case msg == "":
		b.WriteString(fallbackMessage(e.StatusCode))
	default:
		fmt.Fprintf(&b, "http %d: %s", e.StatusCode, msg)
	}
	if e.Type != "" {
		b.WriteString(" (")
		b.WriteString(e.Type)
		b.WriteString(")")
	}
	if e.RequestID != "" {
		b.WriteString(" request_id=")
		b.WriteString(e.RequestID)
	}

	return b.String()
}

// RateLimitError is returned for 429 responses.
type RateLimitError struct {
	APIError
	// RetryAfter is the Retry-After header in seconds; nil when absent
	RetryAfter *int
}

func (e *RateLimitError) Error() string { return e.APIError.Error() }
func (e *RateLimitError) Unwrap() error { return &e.APIError }

// RetryAfterDuration returns the suggested wait, or 0 when the gateway sent none.
func (e *RateLimitError) RetryAfterDuration() time.Duration {
	if e.RetryAfter == nil {
		return 0
	}
	return time.Duration(*e.RetryAfter) * time.Second
}

// InsufficientCreditsError is returned for 402 responses.
type InsufficientCreditsError struct {
	APIError
	CreditsRequired  *float64
	CreditsRemaining *float64
	ResetDate        *string
}

func (e *InsufficientCreditsError) Error() string { return e.APIError.Error() }
func (e *InsufficientCreditsError) Unwrap() error { return &e.APIError }

// BandAccessDeniedError is returned when the caller's tier may not use the
// band the requested model belongs to.
type BandAccessDeniedError struct {
	APIError
	Band         string
	RequiredTier string
	CurrentTier  string
}

func (e *BandAccessDeniedError) Error() string { return e.APIError.Error() }
func (e *BandAccessDeniedError) Unwrap() error { return &e.APIError }

// StreamError is an error object delivered inside an already-open stream.
type StreamError struct {
	Code     interface{}            `json:"code,omitempty"`
	Message  string                 `json:"message"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

func (e *StreamError) Error() string {
	if e.Code != nil {
		return fmt.Sprintf("prism: stream error (%v): %s", e.Code, e.Message)
	}
	return "prism: stream error: " + e.Message
}

// ValidationError reports a request rejected before it reached the network.
// Fields maps the json field path to a readable message.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, e.Fields[k])
	}
	return "prism: invalid request: " + strings.Join(parts, "; ")
}

// AsAPIError reports whether err is, or wraps, an API error of any kind.
func AsAPIError(err error) (*APIError, bool) {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// IsRateLimit reports whether err is a rate-limit rejection.
func IsRateLimit(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// IsAuth reports whether err is an authentication or authorization failure.
func IsAuth(err error) bool {
	ae, ok := AsAPIError(err)
	if !ok {
		return false
	}
	return ae.StatusCode == http.StatusUnauthorized || ae.StatusCode == http.StatusForbidden
}

// IsTemporary reports whether the failure may succeed if the caller tries again.
func IsTemporary(err error) bool {
	ae, ok := AsAPIError(err)
	if !ok {
		return false
	}
	switch ae.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

const (
	HeaderRequestID  = "X-Request-Id"
	HeaderRetryAfter = "Retry-After"

	// ErrorTypeBandAccessDenied marks a 403 caused by model band gating.
	ErrorTypeBandAccessDenied = "band_access_denied"
)

// errorEnvelope mirrors the gateway error shape. The fields of the error
// object are kept raw and decoded one by one, so a field of the wrong type
// reads as absent without losing the others.
type errorEnvelope struct {
	Error map[string]json.RawMessage `json:"error"`
}

// field decodes key from fields. A missing, null or mistyped value yields
// false.
func field[T any](fields map[string]json.RawMessage, key string) (T, bool) {
	var v T
	raw, ok := fields[key]
	if !ok || string(raw) == "null" {
		return v, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		var zero T
		return zero, false
	}
	return v, true
}

func optional[T any](fields map[string]json.RawMessage, key string) *T {
	if v, ok := field[T](fields, key); ok {
		return &v
	}
	return nil
}

// ClassifyError turns a non-2xx response into a typed error. It never fails:
// empty or malformed bodies degrade to an *APIError with a message naming the
// status code.
func ClassifyError(status int, header http.Header, body []byte) error {
	base := APIError{
		StatusCode: status,
		Message:    fallbackMessage(status),
		RequestID:  strings.TrimSpace(header.Get(HeaderRequestID)),
	}

	var env errorEnvelope
	if len(body) > 0 {
		if err := json.Unmarshal(body, &env); err != nil {
			env.Error = nil
		}
	}
	fields := env.Error

	if msg, _ := field[string](fields, "message"); strings.TrimSpace(msg) != "" {
		base.Message = strings.TrimSpace(msg)
	}
	base.Type, _ = field[string](fields, "type")
	if code, ok := field[interface{}](fields, "code"); ok {
		base.Code = codeString(code)
	}

	switch status {
	case http.StatusPaymentRequired:
		return &InsufficientCreditsError{
			APIError:         base,
			CreditsRequired:  optional[float64](fields, "credits_required"),
			CreditsRemaining: optional[float64](fields, "credits_remaining"),
			ResetDate:        optional[string](fields, "reset_date"),
		}

	case http.StatusForbidden:
		if base.Type == ErrorTypeBandAccessDenied {
			e := &BandAccessDeniedError{APIError: base}
			e.Band, _ = field[string](fields, "band")
			e.RequiredTier, _ = field[string](fields, "required_tier")
			e.CurrentTier, _ = field[string](fields, "current_tier")
			return e
		}
		return &base

	case http.StatusTooManyRequests:
		return &RateLimitError{
			APIError:   base,
			RetryAfter: parseRetryAfter(header.Get(HeaderRetryAfter)),
		}

	default:
		return &base
	}
}

func fallbackMessage(status int) string {
	if text := http.StatusText(status); text != "" {
		return fmt.Sprintf("HTTP %d: %s", status, text)
	}
	return fmt.Sprintf("HTTP %d", status)
}

// parseRetryAfter only accepts the delay-seconds form.
func parseRetryAfter(v string) *int {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return nil
	}
	return &secs
}

func codeString(code interface{}) string {
	switch c := code.(type) {
	case nil:
		return ""
	case string:
		return c
	case float64:
		return strconv.FormatFloat(c, 'f', -1, 64)
	default:
		return fmt.Sprint(c)
	}
}

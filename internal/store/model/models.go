package model

import (
	"database/sql"
	"time"
)

// UsageRecord is one chat call as seen by the client.
type UsageRecord struct {
	ID string `db:"id" json:"id"`
	// RequestID is the gateway correlation id
	RequestID string `db:"request_id" json:"request_id"`
	// GenerationID is the completion id the gateway assigned
	GenerationID string `db:"generation_id" json:"generation_id"`
	Model        string `db:"model" json:"model"`
	FinishReason string `db:"finish_reason" json:"finish_reason"`

	PromptTokens     int `db:"prompt_tokens" json:"prompt_tokens"`
	CompletionTokens int `db:"completion_tokens" json:"completion_tokens"`
	CachedTokens     int `db:"cached_tokens" json:"cached_tokens"`
	ReasoningTokens  int `db:"reasoning_tokens" json:"reasoning_tokens"`

	// CostMicros is the gateway-reported cost in millionths of a credit
	CostMicros sql.NullInt64 `db:"cost_micros" json:"cost_micros,omitempty"`

	LatencyMS  int64         `db:"latency_ms" json:"latency_ms"`
	TTFTMS     sql.NullInt64 `db:"ttft_ms" json:"ttft_ms,omitempty"`
	IsStreamed bool          `db:"is_streamed" json:"is_streamed"`

	// StatusCode is 200 for successful calls
	StatusCode int    `db:"status_code" json:"status_code"`
	ErrorType  string `db:"error_type" json:"error_type,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// TotalTokens is prompt plus completion tokens.
func (r *UsageRecord) TotalTokens() int {
	return r.PromptTokens + r.CompletionTokens
}

// DailyStats represents aggregated usage data for a specific day.
type DailyStats struct {
	Date            string  `db:"date" json:"date"`
	TotalRequests   int     `db:"total_requests" json:"total_requests"`
	FailedRequests  int     `db:"failed_requests" json:"failed_requests"`
	TotalTokens     int     `db:"total_tokens" json:"total_tokens"`
	ReasoningTokens int     `db:"reasoning_tokens" json:"reasoning_tokens"`
	TotalCostMicros int64   `db:"total_cost_micros" json:"total_cost_micros"`
	AverageLatency  float64 `db:"avg_latency" json:"avg_latency"`
}

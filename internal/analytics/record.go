package analytics

import (
	"database/sql"
	"errors"
	"math"
	"time"

	"github.com/nulzo/prism-go/internal/store/model"
	"github.com/nulzo/prism-go/pkg/api"
)

// Call describes one finished chat call for the ledger.
type Call struct {
	Model    string
	Streamed bool
	Latency  time.Duration
	// TTFT is the time to the first chunk; zero for buffered calls
	TTFT     time.Duration
	Response *api.ChatResponse
	Err      error
}

// NewRecord maps a finished call onto a ledger row. Failed calls are kept
// with their status code and error type and no token counts.
func NewRecord(c Call) *model.UsageRecord {
	rec := &model.UsageRecord{
		Model:      c.Model,
		IsStreamed: c.Streamed,
		LatencyMS:  c.Latency.Milliseconds(),
		StatusCode: 200,
		CreatedAt:  time.Now(),
	}
	if c.TTFT > 0 {
		rec.TTFTMS = sql.NullInt64{Int64: c.TTFT.Milliseconds(), Valid: true}
	}

	if c.Err != nil {
		rec.StatusCode = 0
		if apiErr, ok := api.AsAPIError(c.Err); ok {
			rec.StatusCode = apiErr.StatusCode
			rec.RequestID = apiErr.RequestID
			rec.ErrorType = apiErr.Type
		}
		var streamErr *api.StreamError
		if errors.As(c.Err, &streamErr) {
			rec.ErrorType = "stream_error"
		}
		if rec.ErrorType == "" {
			rec.ErrorType = "client_error"
		}
		return rec
	}

	resp := c.Response
	if resp == nil {
		return rec
	}
	rec.RequestID = resp.RequestID
	rec.GenerationID = resp.ID
	if resp.Model != "" {
		rec.Model = resp.Model
	}
	if choice := resp.FirstChoice(); choice != nil && choice.FinishReason != nil {
		rec.FinishReason = *choice.FinishReason
	}

	if u := resp.Usage; u != nil {
		rec.PromptTokens = u.PromptTokens
		rec.CompletionTokens = u.CompletionTokens
		if u.PromptTokensDetails != nil {
			rec.CachedTokens = u.PromptTokensDetails.CachedTokens
		}
		if u.CompletionTokensDetails != nil && u.CompletionTokensDetails.ReasoningTokens != nil {
			rec.ReasoningTokens = *u.CompletionTokensDetails.ReasoningTokens
		}
		if u.Cost != nil {
			rec.CostMicros = sql.NullInt64{Int64: int64(math.Round(*u.Cost * 1e6)), Valid: true}
		}
	}

	return rec
}

package mockgateway

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nulzo/prism-go/pkg/api"
	"github.com/nulzo/prism-go/pkg/stream"
	"go.uber.org/zap"
)

// Scenario models. Anything else echoes the last user message.
const (
	ModelEcho            = "mock/echo"
	ModelThinking        = "mock/thinking"
	ModelTools           = "mock/tools"
	ModelError401        = "mock/error-401"
	ModelError402        = "mock/error-402"
	ModelError403        = "mock/error-403"
	ModelBandDenied      = "mock/band-denied"
	ModelError429        = "mock/error-429"
	ModelError500        = "mock/error-500"
	ModelMalformedStream = "mock/malformed-stream"
	ModelStreamError     = "mock/stream-error"
	ModelTruncatedStream = "mock/truncated-stream"
)

// ThinkingAnswer is the content the thinking scenario replies with.
const ThinkingAnswer = "<think>Let me analyze...</think>Based on my analysis, the answer is 42."

// ToolArguments is the complete argument payload of the tools scenario.
const ToolArguments = `{"location": "San Francisco"}`

func (s *Server) createCompletion(c *gin.Context) {
	var req api.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, gin.H{
			"message": err.Error(),
			"type":    "invalid_request_error",
		})
		return
	}

	if s.writeScenarioError(c, req.Model) {
		return
	}

	events := s.script(&req)

	if !req.Stream {
		resp, err := buildResponse(events)
		if err != nil {
			writeError(c, http.StatusInternalServerError, gin.H{"message": err.Error()})
			return
		}
		c.JSON(http.StatusOK, resp)
		return
	}

	s.streamEvents(c, &req, events)
}

// writeScenarioError answers the error scenarios. It reports whether it wrote.
func (s *Server) writeScenarioError(c *gin.Context, model string) bool {
	switch model {
	case ModelError401:
		writeError(c, http.StatusUnauthorized, gin.H{
			"message": "invalid api key",
			"type":    "authentication_error",
		})
	case ModelError402:
		writeError(c, http.StatusPaymentRequired, gin.H{
			"message":           "insufficient credits for this request",
			"type":              "insufficient_credits",
			"credits_required":  10,
			"credits_remaining": 2.5,
			"reset_date":        "2026-11-01",
		})
	case ModelError403:
		writeError(c, http.StatusForbidden, gin.H{
			"message": "this key may not call this endpoint",
			"type":    "permission_error",
		})
	case ModelBandDenied:
		writeError(c, http.StatusForbidden, gin.H{
			"message":       "model band frontier requires tier pro",
			"type":          api.ErrorTypeBandAccessDenied,
			"band":          "frontier",
			"required_tier": "pro",
			"current_tier":  "free",
		})
	case ModelError429:
		c.Header(api.HeaderRetryAfter, "30")
		writeError(c, http.StatusTooManyRequests, gin.H{
			"message": "rate limit exceeded",
			"type":    "rate_limit_error",
		})
	case ModelError500:
		c.Abort()
		c.Data(http.StatusInternalServerError, "text/plain; charset=utf-8", []byte("upstream exploded"))
	default:
		return false
	}
	return true
}

// event is one scripted step of a reply. Raw events are written verbatim.
type event struct {
	chunk *api.ChatChunk
	raw   string
}

func (s *Server) script(req *api.ChatRequest) []event {
	id := "gen-" + uuid.NewString()
	created := time.Now().Unix()

	newChunk := func(delta api.Delta, finish *string) *api.ChatChunk {
		return &api.ChatChunk{
			ID:      id,
			Object:  api.ObjectChatCompletionChunk,
			Created: created,
			Model:   req.Model,
			Choices: []api.ChunkChoice{{Index: 0, Delta: delta, FinishReason: finish}},
		}
	}

	var events []event

	switch req.Model {
	case ModelTools:
		events = append(events,
			event{chunk: newChunk(api.Delta{
				Role: api.Assistant,
				ToolCalls: []api.ToolCallDelta{{
					Index:    api.Int(0),
					ID:       "call_123",
					Type:     "function",
					Function: &api.FunctionDelta{Name: "get_weather"},
				}},
			}, nil)},
		)
		for _, part := range splitArguments(ToolArguments) {
			events = append(events, event{chunk: newChunk(api.Delta{
				ToolCalls: []api.ToolCallDelta{{
					Index:    api.Int(0),
					Function: &api.FunctionDelta{Arguments: part},
				}},
			}, nil)})
		}
		events = append(events, event{chunk: newChunk(api.Delta{}, api.String(api.FinishToolCalls))})

	default:
		reply := ThinkingAnswer
		if req.Model != ModelThinking {
			reply = "Echoing: " + lastUserText(req.Messages)
		}

		pieces := splitWords(reply)
		for i, piece := range pieces {
			delta := api.Delta{Content: api.String(piece)}
			if i == 0 {
				delta.Role = api.Assistant
			}
			events = append(events, event{chunk: newChunk(delta, nil)})

			if i == 0 {
				switch req.Model {
				case ModelMalformedStream:
					return append(events, event{raw: `{"id": "broken", "choices": [`})
				case ModelStreamError:
					return append(events, event{raw: `{"error":{"code":502,"message":"provider disconnected"}}`})
				case ModelTruncatedStream:
					return events
				}
			}
		}
		events = append(events, event{chunk: newChunk(api.Delta{}, api.String(api.FinishStop))})
	}

	usage := &api.ResponseUsage{
		PromptTokens:     countWords(req.Messages),
		CompletionTokens: len(events),
	}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	if req.Model == ModelThinking {
		usage.CompletionTokensDetails = &api.CompletionTokensDetails{ReasoningTokens: api.Int(3)}
	}

	// usage rides on a final chunk with no choices, like include_usage
	events = append(events, event{chunk: &api.ChatChunk{
		ID:      id,
		Object:  api.ObjectChatCompletionChunk,
		Created: created,
		Model:   req.Model,
		Choices: []api.ChunkChoice{},
		Usage:   usage,
	}})

	return append(events, event{raw: "[DONE]"})
}

func (s *Server) streamEvents(c *gin.Context, req *api.ChatRequest, events []event) {
	includeUsage := req.StreamOptions != nil && req.StreamOptions.IncludeUsage

	// set headers for sse
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	c.Writer.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(c.Writer, ": PRISM PROCESSING\n\n")
	c.Writer.Flush()

	ctx := c.Request.Context()
	for _, ev := range events {
		if ev.chunk != nil && len(ev.chunk.Choices) == 0 && !includeUsage {
			continue
		}

		if s.config.ChunkDelay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.config.ChunkDelay):
			}
		}
		if ctx.Err() != nil {
			return
		}

		payload := ev.raw
		if ev.chunk != nil {
			data, err := json.Marshal(ev.chunk)
			if err != nil {
				s.logger.Error("failed to marshal chunk", zap.Error(err))
				return
			}
			payload = string(data)
		}

		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", payload); err != nil {
			return
		}
		c.Writer.Flush()
	}
}

// buildResponse folds the script into the buffered response the gateway
// would have sent.
func buildResponse(events []event) (*api.ChatResponse, error) {
	chunks := make([]api.ChatChunk, 0, len(events))
	for _, ev := range events {
		if ev.chunk != nil {
			chunks = append(chunks, *ev.chunk)
		}
	}
	return stream.Reconstruct(chunks)
}

func lastUserText(messages []api.ChatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == api.User {
			return messages[i].Text()
		}
	}
	return ""
}

func countWords(messages []api.ChatMessage) int {
	n := 0
	for _, m := range messages {
		n += len(strings.Fields(m.Text()))
	}
	return n
}

// splitWords cuts text into pieces that each end after a space, so that
// concatenating them gives the text back.
func splitWords(text string) []string {
	var pieces []string
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] == ' ' {
			pieces = append(pieces, text[start:i+1])
			start = i + 1
		}
	}
	if start < len(text) || len(pieces) == 0 {
		pieces = append(pieces, text[start:])
	}
	return pieces
}

// splitArguments cuts a JSON payload into small fragments, as providers do.
func splitArguments(args string) []string {
	const size = 8
	var parts []string
	for len(args) > size {
		parts = append(parts, args[:size])
		args = args[size:]
	}
	return append(parts, args)
}

package mockgateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/nulzo/prism-go/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func post(t *testing.T, h http.Handler, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func chatRequest(model string, stream bool) *api.ChatRequest {
	return &api.ChatRequest{
		Model:    model,
		Messages: []api.ChatMessage{api.NewMessage(api.User, "ping pong")},
		Stream:   stream,
	}
}

func TestHealth(t *testing.T) {
	h := New(Config{}, zap.NewNop()).Handler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(api.HeaderRequestID))
}

func TestRequestIDIsEchoed(t *testing.T) {
	h := New(Config{}, zap.NewNop()).Handler()

	w := post(t, h, chatRequest(ModelEcho, false), map[string]string{api.HeaderRequestID: "req-fixed"})
	assert.Equal(t, "req-fixed", w.Header().Get(api.HeaderRequestID))
}

func TestCreateCompletion_Buffered(t *testing.T) {
	h := New(Config{}, zap.NewNop()).Handler()

	w := post(t, h, chatRequest(ModelEcho, false), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp api.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Echoing: ping pong", resp.Choices[0].Message.Text())
	assert.Equal(t, api.ObjectChatCompletion, resp.Object)
	assert.True(t, strings.HasPrefix(resp.ID, "gen-"))
}

func TestCreateCompletion_Stream(t *testing.T) {
	h := New(Config{}, zap.NewNop()).Handler()

	w := post(t, h, chatRequest(ModelEcho, true), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	body := w.Body.String()
	assert.True(t, strings.HasPrefix(body, ": PRISM PROCESSING\n\n"))
	assert.True(t, strings.HasSuffix(body, "data: [DONE]\n\n"))
	assert.NotContains(t, body, `"usage"`)
}

func TestCreateCompletion_StreamWithUsage(t *testing.T) {
	h := New(Config{}, zap.NewNop()).Handler()

	req := chatRequest(ModelEcho, true)
	req.StreamOptions = &api.StreamOptions{IncludeUsage: true}

	w := post(t, h, req, nil)
	assert.Contains(t, w.Body.String(), `"usage"`)
}

func TestCreateCompletion_StreamFailures(t *testing.T) {
	h := New(Config{}, zap.NewNop()).Handler()

	malformed := post(t, h, chatRequest(ModelMalformedStream, true), nil).Body.String()
	assert.Contains(t, malformed, `data: {"id": "broken", "choices": [`)
	assert.NotContains(t, malformed, "[DONE]")

	truncated := post(t, h, chatRequest(ModelTruncatedStream, true), nil).Body.String()
	assert.NotContains(t, truncated, "[DONE]")

	streamErr := post(t, h, chatRequest(ModelStreamError, true), nil).Body.String()
	assert.Contains(t, streamErr, "provider disconnected")
}

func TestCreateCompletion_ErrorScenarios(t *testing.T) {
	h := New(Config{}, zap.NewNop()).Handler()

	tests := []struct {
		model  string
		status int
	}{
		{ModelError401, http.StatusUnauthorized},
		{ModelError402, http.StatusPaymentRequired},
		{ModelError403, http.StatusForbidden},
		{ModelBandDenied, http.StatusForbidden},
		{ModelError429, http.StatusTooManyRequests},
		{ModelError500, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			w := post(t, h, chatRequest(tt.model, false), nil)
			assert.Equal(t, tt.status, w.Code)
		})
	}

	w := post(t, h, chatRequest(ModelError429, true), nil)
	assert.Equal(t, "30", w.Header().Get(api.HeaderRetryAfter))
}

func TestCreateCompletion_BadRequest(t *testing.T) {
	h := New(Config{}, zap.NewNop()).Handler()

	w := post(t, h, map[string]string{"model": "mock/echo"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_request_error")
}

func TestAuth(t *testing.T) {
	h := New(Config{APIKey: "sk-mock"}, zap.NewNop()).Handler()

	w := post(t, h, chatRequest(ModelEcho, false), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = post(t, h, chatRequest(ModelEcho, false), map[string]string{"Authorization": "Bearer sk-mock"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSplitHelpers(t *testing.T) {
	assert.Equal(t, []string{"a ", "b ", "c"}, splitWords("a b c"))
	assert.Equal(t, []string{""}, splitWords(""))
	assert.Equal(t, ToolArguments, strings.Join(splitArguments(ToolArguments), ""))
}

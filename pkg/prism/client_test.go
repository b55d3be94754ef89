package prism_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nulzo/prism-go/internal/mockgateway"
	"github.com/nulzo/prism-go/pkg/api"
	"github.com/nulzo/prism-go/pkg/prism"
	"github.com/nulzo/prism-go/pkg/processing"
	"github.com/nulzo/prism-go/pkg/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func setup(t *testing.T, cfg mockgateway.Config, opts ...prism.Option) *prism.Client {
	t.Helper()
	server := httptest.NewServer(mockgateway.New(cfg, zap.NewNop()).Handler())
	t.Cleanup(server.Close)

	opts = append([]prism.Option{prism.WithBaseURL(server.URL + "/v1/")}, opts...)
	return prism.NewClient("sk-test", opts...)
}

func request(model, text string) *api.ChatRequest {
	return &api.ChatRequest{
		Model:    model,
		Messages: []api.ChatMessage{api.NewMessage(api.User, text)},
	}
}

func TestNewClient_Defaults(t *testing.T) {
	c := prism.NewClient("sk")
	assert.Equal(t, prism.DefaultBaseURL, c.BaseURL())

	c = prism.NewClient("sk", prism.WithBaseURL("https://gw.example.com/v1///"))
	assert.Equal(t, "https://gw.example.com/v1", c.BaseURL())
}

func TestChat_Buffered(t *testing.T) {
	client := setup(t, mockgateway.Config{})

	resp, err := client.Chat(context.Background(), request(mockgateway.ModelEcho, "hello world"))
	require.NoError(t, err)

	choice := resp.FirstChoice()
	require.NotNil(t, choice)
	assert.Equal(t, "Echoing: hello world", choice.Message.Text())
	assert.Equal(t, api.Assistant, choice.Message.Role)
	require.NotNil(t, choice.FinishReason)
	assert.Equal(t, api.FinishStop, *choice.FinishReason)

	assert.Equal(t, mockgateway.ModelEcho, resp.Model)
	assert.True(t, strings.HasPrefix(resp.RequestID, "req-"))
	require.NotNil(t, resp.Usage)
	assert.Equal(t, 2, resp.Usage.PromptTokens)
}

func TestChat_StreamFlagReconstructs(t *testing.T) {
	client := setup(t, mockgateway.Config{})

	req := request(mockgateway.ModelEcho, "stream me please")
	req.Stream = true

	resp, err := client.Chat(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "Echoing: stream me please", resp.Choices[0].Message.Text())
	assert.Equal(t, api.ObjectChatCompletion, resp.Object)
	assert.NotEmpty(t, resp.RequestID)
	require.NotNil(t, resp.Usage, "usage is requested by default when streaming")
	assert.Equal(t, 3, resp.Usage.PromptTokens)
}

func TestChat_BufferedAndStreamedAgree(t *testing.T) {
	client := setup(t, mockgateway.Config{})

	buffered, err := client.Chat(context.Background(), request(mockgateway.ModelTools, "weather?"))
	require.NoError(t, err)

	req := request(mockgateway.ModelTools, "weather?")
	req.Stream = true
	streamed, err := client.Chat(context.Background(), req)
	require.NoError(t, err)

	for _, resp := range []*api.ChatResponse{buffered, streamed} {
		choice := resp.FirstChoice()
		require.NotNil(t, choice)
		require.Len(t, choice.Message.ToolCalls, 1)

		call := choice.Message.ToolCalls[0]
		assert.Equal(t, "call_123", call.ID)
		assert.Equal(t, "function", call.Type)
		assert.Equal(t, "get_weather", call.Function.Name)
		assert.Equal(t, mockgateway.ToolArguments, call.Function.Arguments)
		assert.Equal(t, api.FinishToolCalls, *choice.FinishReason)
	}
}

func TestChatStream_Chunks(t *testing.T) {
	client := setup(t, mockgateway.Config{})

	s, err := client.ChatStream(context.Background(), request(mockgateway.ModelEcho, "one two three"))
	require.NoError(t, err)
	defer s.Close()

	assert.NotEmpty(t, s.RequestID())

	var text strings.Builder
	var chunks int
	for chunk, err := range s.Chunks() {
		require.NoError(t, err)
		chunks++
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != nil {
				text.WriteString(*choice.Delta.Content)
			}
		}
	}

	assert.Equal(t, "Echoing: one two three", text.String())
	assert.Greater(t, chunks, 1)

	_, err = s.Recv()
	assert.ErrorIs(t, err, io.EOF)
}

func TestChatStream_CloseEarly(t *testing.T) {
	client := setup(t, mockgateway.Config{ChunkDelay: 10 * time.Millisecond})

	s, err := client.ChatStream(context.Background(), request(mockgateway.ModelEcho, "a b c d e f"))
	require.NoError(t, err)

	_, err = s.Recv()
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.Recv()
	assert.ErrorIs(t, err, stream.ErrClosed)
}

func TestChat_Thinking(t *testing.T) {
	client := setup(t, mockgateway.Config{})

	req := request(mockgateway.ModelThinking, "what is the answer?")
	req.Stream = true
	resp, err := client.Chat(context.Background(), req)
	require.NoError(t, err)

	text := resp.Choices[0].Message.Text()
	assert.Equal(t, mockgateway.ThinkingAnswer, text)

	out := processing.ExtractThinking(text)
	require.NotNil(t, out.Thinking)
	assert.Equal(t, "Let me analyze...", *out.Thinking)
	assert.Equal(t, "Based on my analysis, the answer is 42.", out.Response)

	require.NotNil(t, resp.Usage.CompletionTokensDetails)
	assert.Equal(t, 3, *resp.Usage.CompletionTokensDetails.ReasoningTokens)
}

func TestChat_ValidationFailsBeforeNetwork(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := prism.NewClient("sk", prism.WithBaseURL(server.URL))

	invalid := []*api.ChatRequest{
		nil,
		{Messages: []api.ChatMessage{api.NewMessage(api.User, "hi")}},
		{Model: "m"},
		{Model: "m", Messages: []api.ChatMessage{api.NewMessage("wizard", "hi")}},
	}

	for _, req := range invalid {
		_, err := client.Chat(context.Background(), req)
		var vErr *api.ValidationError
		assert.ErrorAs(t, err, &vErr)

		_, err = client.ChatStream(context.Background(), req)
		assert.ErrorAs(t, err, &vErr)
	}

	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestChat_ClassifiedErrors(t *testing.T) {
	client := setup(t, mockgateway.Config{})
	ctx := context.Background()

	t.Run("unauthorized", func(t *testing.T) {
		_, err := client.Chat(ctx, request(mockgateway.ModelError401, "hi"))
		apiErr, ok := api.AsAPIError(err)
		require.True(t, ok)
		assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
		assert.Equal(t, "invalid api key", apiErr.Message)
		assert.NotEmpty(t, apiErr.RequestID)
		assert.True(t, api.IsAuth(err))
	})

	t.Run("insufficient credits", func(t *testing.T) {
		_, err := client.Chat(ctx, request(mockgateway.ModelError402, "hi"))
		var credits *api.InsufficientCreditsError
		require.ErrorAs(t, err, &credits)
		assert.Equal(t, 10.0, *credits.CreditsRequired)
		assert.Equal(t, 2.5, *credits.CreditsRemaining)
		assert.Equal(t, "2026-11-01", *credits.ResetDate)
	})

	t.Run("band denied", func(t *testing.T) {
		_, err := client.Chat(ctx, request(mockgateway.ModelBandDenied, "hi"))
		var band *api.BandAccessDeniedError
		require.ErrorAs(t, err, &band)
		assert.Equal(t, "frontier", band.Band)
		assert.Equal(t, "pro", band.RequiredTier)
		assert.Equal(t, "free", band.CurrentTier)
	})

	t.Run("plain forbidden", func(t *testing.T) {
		_, err := client.Chat(ctx, request(mockgateway.ModelError403, "hi"))
		var band *api.BandAccessDeniedError
		assert.False(t, errors.As(err, &band))
		apiErr, ok := api.AsAPIError(err)
		require.True(t, ok)
		assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	})

	t.Run("rate limited", func(t *testing.T) {
		_, err := client.Chat(ctx, request(mockgateway.ModelError429, "hi"))
		var rl *api.RateLimitError
		require.ErrorAs(t, err, &rl)
		require.NotNil(t, rl.RetryAfter)
		assert.Equal(t, 30, *rl.RetryAfter)
		assert.True(t, api.IsTemporary(err))
	})

	t.Run("server error with text body", func(t *testing.T) {
		_, err := client.Chat(ctx, request(mockgateway.ModelError500, "hi"))
		apiErr, ok := api.AsAPIError(err)
		require.True(t, ok)
		assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
		assert.Contains(t, apiErr.Message, "500")
	})

	t.Run("stream open fails the same way", func(t *testing.T) {
		s, err := client.ChatStream(ctx, request(mockgateway.ModelError429, "hi"))
		assert.Nil(t, s)
		assert.True(t, api.IsRateLimit(err))
	})
}

func TestChat_WrongAPIKey(t *testing.T) {
	server := httptest.NewServer(mockgateway.New(mockgateway.Config{APIKey: "sk-right"}, zap.NewNop()).Handler())
	defer server.Close()

	client := prism.NewClient("sk-wrong", prism.WithBaseURL(server.URL+"/v1"))
	_, err := client.Chat(context.Background(), request(mockgateway.ModelEcho, "hi"))
	assert.True(t, api.IsAuth(err))

	client = prism.NewClient("sk-right", prism.WithBaseURL(server.URL+"/v1"))
	_, err = client.Chat(context.Background(), request(mockgateway.ModelEcho, "hi"))
	assert.NoError(t, err)
}

func TestChat_StreamFailures(t *testing.T) {
	client := setup(t, mockgateway.Config{})

	streaming := func(model string) *api.ChatRequest {
		req := request(model, "hi there")
		req.Stream = true
		return req
	}

	t.Run("malformed", func(t *testing.T) {
		resp, err := client.Chat(context.Background(), streaming(mockgateway.ModelMalformedStream))
		assert.Nil(t, resp)
		var decodeErr *stream.DecodeError
		assert.ErrorAs(t, err, &decodeErr)
	})

	t.Run("error payload", func(t *testing.T) {
		resp, err := client.Chat(context.Background(), streaming(mockgateway.ModelStreamError))
		assert.Nil(t, resp)
		var streamErr *api.StreamError
		require.ErrorAs(t, err, &streamErr)
		assert.Equal(t, "provider disconnected", streamErr.Message)
	})

	t.Run("truncated", func(t *testing.T) {
		resp, err := client.Chat(context.Background(), streaming(mockgateway.ModelTruncatedStream))
		assert.Nil(t, resp)
		assert.ErrorIs(t, err, stream.ErrTruncated)
	})

	t.Run("chunks before the failure are delivered", func(t *testing.T) {
		s, err := client.ChatStream(context.Background(), request(mockgateway.ModelMalformedStream, "hi"))
		require.NoError(t, err)
		defer s.Close()

		chunk, err := s.Recv()
		require.NoError(t, err)
		assert.Equal(t, "Echoing: ", *chunk.Choices[0].Delta.Content)

		_, err = s.Recv()
		assert.Error(t, err)

		_, again := s.Recv()
		assert.Equal(t, err, again)
	})
}

func TestChat_Headers(t *testing.T) {
	gateway := mockgateway.New(mockgateway.Config{}, zap.NewNop()).Handler()

	var mu sync.Mutex
	var seen http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = r.Header.Clone()
		mu.Unlock()
		gateway.ServeHTTP(w, r)
	}))
	defer server.Close()

	client := prism.NewClient("sk-test",
		prism.WithBaseURL(server.URL+"/v1"),
		prism.WithAppInfo("prism-cli", "https://example.com"),
		prism.WithHeader("X-Custom", "yes"),
		prism.WithRequestIDs(func() string { return "client-id-1" }),
	)

	_, err := client.Chat(context.Background(), request(mockgateway.ModelEcho, "hi"))
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "Bearer sk-test", seen.Get("Authorization"))
	assert.Equal(t, "prism-go/"+prism.Version, seen.Get("User-Agent"))
	assert.Equal(t, "client-id-1", seen.Get(prism.HeaderClientRequestID))
	assert.Equal(t, "prism-cli", seen.Get("X-Title"))
	assert.Equal(t, "https://example.com", seen.Get("HTTP-Referer"))
	assert.Equal(t, "yes", seen.Get("X-Custom"))
	assert.Equal(t, "application/json", seen.Get("Content-Type"))
}

func TestChat_RateLimitPacesCalls(t *testing.T) {
	client := setup(t, mockgateway.Config{}, prism.WithRateLimit(20, 1))

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := client.Chat(context.Background(), request(mockgateway.ModelEcho, "hi"))
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestChat_RateLimitRespectsContext(t *testing.T) {
	client := setup(t, mockgateway.Config{}, prism.WithRateLimit(0.01, 1))

	_, err := client.Chat(context.Background(), request(mockgateway.ModelEcho, "hi"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.Chat(ctx, request(mockgateway.ModelEcho, "hi"))
	assert.Error(t, err)
}

func TestChat_Concurrent(t *testing.T) {
	client := setup(t, mockgateway.Config{})

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := request(mockgateway.ModelEcho, "parallel")
			req.Stream = i%2 == 0
			resp, err := client.Chat(context.Background(), req)
			if err == nil && resp.Choices[0].Message.Text() != "Echoing: parallel" {
				err = errors.New("unexpected text " + resp.Choices[0].Message.Text())
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

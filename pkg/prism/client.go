// Package prism is a client for the Prism chat-completion gateway.
//
// Chat sends a request and returns the complete response, reconstructing it
// from the event stream when the request asks for streaming. ChatStream hands
// back the chunks as they arrive. Non-2xx responses are returned as the typed
// errors of package api.
package prism

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/nulzo/prism-go/internal/httpclient"
	"github.com/nulzo/prism-go/pkg/api"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// Version is reported in the User-Agent header.
	Version = "v0.4.0"

	DefaultBaseURL = "http://localhost:8080/v1"
	DefaultTimeout = 60 * time.Second

	HeaderClientRequestID = "X-Client-Request-Id"

	tracerName = "github.com/nulzo/prism-go/pkg/prism"
)

// Client talks to one gateway. It is safe for concurrent use; calls share
// nothing but the configuration and the optional rate limiter.
type Client struct {
	apiKey  string
	baseURL string
	headers map[string]string
	http    httpclient.HTTPClient
	timeout time.Duration
	logger  *zap.Logger
	limiter *rate.Limiter
	tracer  trace.Tracer
	newID   func() string
}

func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		headers: map[string]string{},
		http:    &http.Client{},
		timeout: DefaultTimeout,
		logger:  zap.NewNop(),
		tracer:  otel.Tracer(tracerName),
		newID:   uuid.NewString,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// BaseURL returns the API root the client sends requests to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Chat sends the request and returns the complete response. When req.Stream
// is set the response is read as an event stream and reconstructed.
func (c *Client) Chat(ctx context.Context, req *api.ChatRequest) (*api.ChatResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if req.Stream {
		s, err := c.ChatStream(ctx, req)
		if err != nil {
			return nil, err
		}
		return s.Collect()
	}

	ctx, span := c.tracer.Start(ctx, "prism.chat", trace.WithAttributes(
		attribute.String("prism.model", req.Model),
		attribute.Bool("prism.stream", false),
	))
	defer span.End()

	resp, err := c.send(ctx, span, req, false)
	if err != nil {
		return nil, err
	}

	body, err := resp.Text(0)
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	var out api.ChatResponse
	if err := json.Unmarshal(body, &out); err != nil {
		err = fmt.Errorf("failed to decode response: %w", err)
		recordError(span, err)
		return nil, err
	}
	out.RequestID = resp.Header.Get(api.HeaderRequestID)

	c.logger.Debug("chat completion finished",
		zap.String("model", req.Model),
		zap.String("request_id", out.RequestID),
		zap.Int("choices", len(out.Choices)),
	)

	return &out, nil
}

// ChatStream opens a streaming completion. The request is validated before
// anything is sent, so an invalid request fails here and never reaches the
// network. The caller must Close the returned stream.
func (c *Client) ChatStream(ctx context.Context, req *api.ChatRequest) (*Stream, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, span := c.tracer.Start(ctx, "prism.chat.stream", trace.WithAttributes(
		attribute.String("prism.model", req.Model),
		attribute.Bool("prism.stream", true),
	))

	resp, err := c.send(ctx, span, req, true)
	if err != nil {
		span.End()
		return nil, err
	}

	return newStream(resp, span, c.logger.With(zap.String("model", req.Model))), nil
}

// send issues the call and classifies non-2xx responses. On success the
// caller owns the response body.
func (c *Client) send(ctx context.Context, span trace.Span, req *api.ChatRequest, stream bool) (*httpclient.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			recordError(span, err)
			return nil, err
		}
	}

	body := *req
	body.Stream = stream
	if stream && body.StreamOptions == nil {
		body.StreamOptions = &api.StreamOptions{IncludeUsage: true}
	}

	clientID := c.newID()
	span.SetAttributes(attribute.String("prism.client_request_id", clientID))

	c.logger.Debug("sending chat completion",
		zap.String("model", req.Model),
		zap.Bool("stream", stream),
		zap.String("client_request_id", clientID),
	)

	resp, err := httpclient.Send(ctx, c.http, httpclient.Request{
		Method:  http.MethodPost,
		URL:     c.baseURL + "/chat/completions",
		Headers: c.requestHeaders(clientID),
		Body:    &body,
		Stream:  stream,
		Timeout: c.timeout,
	})
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("http.response.status_code", resp.StatusCode),
		attribute.String("prism.request_id", resp.Header.Get(api.HeaderRequestID)),
	)

	if resp.OK() {
		return resp, nil
	}

	data, readErr := resp.Text(httpclient.MaxErrorBody)
	if readErr != nil {
		c.logger.Debug("error body read failed", zap.Error(readErr))
	}

	apiErr := api.ClassifyError(resp.StatusCode, resp.Header, data)
	c.logger.Warn("gateway returned an error",
		zap.String("model", req.Model),
		zap.Int("status", resp.StatusCode),
		zap.String("request_id", resp.Header.Get(api.HeaderRequestID)),
		zap.Error(apiErr),
	)
	recordError(span, apiErr)

	return nil, apiErr
}

func (c *Client) requestHeaders(clientID string) map[string]string {
	headers := make(map[string]string, len(c.headers)+3)
	for k, v := range c.headers {
		headers[k] = v
	}
	headers["User-Agent"] = "prism-go/" + Version
	headers[HeaderClientRequestID] = clientID
	if c.apiKey != "" {
		headers["Authorization"] = "Bearer " + c.apiKey
	}
	return headers
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// Package httpclient sends JSON requests to the gateway and hands back the
// raw response for the caller to decode or stream.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// MaxErrorBody caps how much of an error response is read.
const MaxErrorBody = 1 << 20

// HTTPClient defines the interface for an HTTP client
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Request describes one call to the gateway.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    interface{}

	// Stream requests an event stream; the timeout then stops applying once
	// response headers arrive.
	Stream bool

	// Timeout bounds the call; zero means only the context bounds it.
	Timeout time.Duration
}

// Response gives access to the status, headers and body of a call. The body
// must be consumed through exactly one of Text or Body, then closed.
type Response struct {
	StatusCode int
	Header     http.Header

	body io.ReadCloser
}

// OK reports whether the status is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Text reads the whole body, at most limit bytes when limit > 0, and closes it.
func (r *Response) Text(limit int64) ([]byte, error) {
	defer func() {
		_ = r.body.Close()
	}()

	var reader io.Reader = r.body
	if limit > 0 {
		reader = io.LimitReader(r.body, limit)
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return data, fmt.Errorf("failed to read response body: %w", err)
	}
	return data, nil
}

// Body returns the body for incremental reads. The caller closes it.
func (r *Response) Body() io.ReadCloser {
	return r.body
}

// Close releases the body without reading it.
func (r *Response) Close() error {
	return r.body.Close()
}

// Send builds the request, sends it and returns once the response headers
// have arrived. Non-2xx statuses are not errors here; callers inspect them.
func Send(ctx context.Context, client HTTPClient, r Request) (*Response, error) {
	var bodyReader io.Reader
	if r.Body != nil {
		jsonBody, err := json.Marshal(r.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	ctx, cancel := context.WithCancel(ctx)

	var timer *time.Timer
	if r.Timeout > 0 {
		timer = time.AfterFunc(r.Timeout, cancel)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, bodyReader)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if r.Stream {
		req.Header.Set("Accept", "text/event-stream")
	} else {
		req.Header.Set("Accept", "application/json")
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("request failed: %w", err)
	}

	// streams are only bounded by the caller's context once they are open
	if r.Stream && timer != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		timer.Stop()
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		body:       &cancelOnClose{ReadCloser: resp.Body, cancel: cancel, timer: timer},
	}, nil
}

// cancelOnClose releases the request context when the body is closed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
	timer  *time.Timer
	once   sync.Once
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.once.Do(func() {
		if c.timer != nil {
			c.timer.Stop()
		}
		c.cancel()
	})
	return err
}

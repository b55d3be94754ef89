package prism

import (
	"errors"
	"io"
	"iter"

	"github.com/nulzo/prism-go/internal/httpclient"
	"github.com/nulzo/prism-go/pkg/api"
	"github.com/nulzo/prism-go/pkg/stream"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Stream is an open streaming completion. It is forward-only and not safe
// for concurrent use.
type Stream struct {
	dec       *stream.Decoder
	requestID string
	span      trace.Span
	logger    *zap.Logger
	received  int
	ended     bool
}

func newStream(resp *httpclient.Response, span trace.Span, logger *zap.Logger) *Stream {
	requestID := resp.Header.Get(api.HeaderRequestID)
	return &Stream{
		dec:       stream.NewDecoder(resp.Body()),
		requestID: requestID,
		span:      span,
		logger:    logger.With(zap.String("request_id", requestID)),
	}
}

// RequestID returns the gateway correlation id of the stream.
func (s *Stream) RequestID() string {
	return s.requestID
}

// Recv returns the next chunk, io.EOF once the stream is complete, or the
// error that ended it.
func (s *Stream) Recv() (*api.ChatChunk, error) {
	chunk, err := s.dec.Recv()
	if err != nil {
		s.end(err)
		return nil, err
	}
	s.received++
	return chunk, nil
}

// Chunks ranges over the remaining chunks. A failure is yielded once with a
// nil chunk and ends the iteration.
func (s *Stream) Chunks() iter.Seq2[*api.ChatChunk, error] {
	return func(yield func(*api.ChatChunk, error) bool) {
		for {
			chunk, err := s.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

// Collect reads the rest of the stream, closes it and returns the
// reconstructed response. Nothing partial is returned on failure.
func (s *Stream) Collect() (*api.ChatResponse, error) {
	defer func() {
		_ = s.Close()
	}()

	var acc stream.Accumulator
	for {
		chunk, err := s.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		acc.Add(chunk)
	}

	resp, err := acc.Response()
	if err != nil {
		return nil, err
	}
	resp.RequestID = s.requestID
	return resp, nil
}

// Close releases the connection. It is safe to call more than once.
func (s *Stream) Close() error {
	s.end(nil)
	return s.dec.Close()
}

func (s *Stream) end(err error) {
	if s.ended {
		return
	}
	s.ended = true

	s.span.SetAttributes(attribute.Int("prism.chunks", s.received))
	if err != nil && !errors.Is(err, io.EOF) {
		recordError(s.span, err)
		s.logger.Warn("stream failed", zap.Int("chunks", s.received), zap.Error(err))
	} else {
		s.logger.Debug("stream finished", zap.Int("chunks", s.received))
	}
	s.span.End()
}

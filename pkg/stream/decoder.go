// Package stream decodes the gateway's server-sent event stream into chunks
// and folds chunks back into a complete response.
package stream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/nulzo/prism-go/pkg/api"
)

// DoneMarker is the payload of the last event of a stream.
const DoneMarker = "[DONE]"

const maxLineSize = 1 << 20

var (
	// ErrTruncated means the body ended before the [DONE] marker.
	ErrTruncated = fmt.Errorf("stream: body ended before %s: %w", DoneMarker, io.ErrUnexpectedEOF)

	// ErrClosed is returned by Recv after Close.
	ErrClosed = errors.New("stream: decoder closed")

	// ErrNotObject is wrapped by a DecodeError whose payload is not a JSON
	// object, such as null or an array.
	ErrNotObject = errors.New("payload is not a JSON object")
)

// DecodeError is returned when an event payload is not a valid chunk.
type DecodeError struct {
	Line string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("stream: malformed event payload: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

type state int

const (
	streaming state = iota
	done
	failed
)

// Decoder reads chunks from an event stream body. It is forward-only and not
// safe for concurrent use.
type Decoder struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	state   state
	err     error
}

func NewDecoder(body io.ReadCloser) *Decoder {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	return &Decoder{
		body:    body,
		scanner: scanner,
	}
}

// Recv returns the next chunk. It returns io.EOF after the [DONE] marker and
// any other error once the stream has failed. Both outcomes are sticky.
func (d *Decoder) Recv() (*api.ChatChunk, error) {
	switch d.state {
	case done:
		return nil, io.EOF
	case failed:
		return nil, d.err
	}

	for d.scanner.Scan() {
		line := d.scanner.Bytes()

		data, ok := dataField(line)
		if !ok {
			continue
		}

		if string(data) == DoneMarker {
			d.state = done
			return nil, io.EOF
		}

		if trimmed := bytes.TrimSpace(data); len(trimmed) == 0 || trimmed[0] != '{' {
			return nil, d.fail(&DecodeError{Line: string(data), Err: ErrNotObject})
		}

		var chunk api.ChatChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			return nil, d.fail(&DecodeError{Line: string(data), Err: err})
		}

		if chunk.Error != nil {
			return nil, d.fail(chunk.Error)
		}

		return &chunk, nil
	}

	if err := d.scanner.Err(); err != nil {
		return nil, d.fail(err)
	}
	return nil, d.fail(ErrTruncated)
}

// Chunks adapts the decoder to a range-over-func sequence. Iteration stops
// after the first error, which is yielded with a nil chunk.
func (d *Decoder) Chunks() iter.Seq2[*api.ChatChunk, error] {
	return func(yield func(*api.ChatChunk, error) bool) {
		for {
			chunk, err := d.Recv()
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

// Close releases the underlying body. Calling it more than once is safe.
func (d *Decoder) Close() error {
	if d.state == streaming {
		d.state = failed
		d.err = ErrClosed
	}
	if d.body == nil {
		return nil
	}
	body := d.body
	d.body = nil
	return body.Close()
}

func (d *Decoder) fail(err error) error {
	d.state = failed
	d.err = err
	return err
}

// dataField extracts the value of a `data:` line. Comments, blank lines and
// other fields (event, id, retry) report ok == false.
func dataField(line []byte) ([]byte, bool) {
	line = bytes.TrimRight(line, "\r")
	if len(line) == 0 || line[0] == ':' {
		return nil, false
	}

	value, found := bytes.CutPrefix(line, []byte("data:"))
	if !found {
		return nil, false
	}

	// a single leading space is part of the framing, not the payload
	value, _ = bytes.CutPrefix(value, []byte(" "))
	return value, true
}

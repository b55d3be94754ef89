package stream

import (
	"errors"
	"io"
	"sort"

	"github.com/nulzo/prism-go/pkg/api"
)

// ErrNoChunks is returned when asked to reconstruct an empty stream.
var ErrNoChunks = errors.New("stream: no chunks to reconstruct")

// Accumulator folds chunks into a single response. The zero value is ready to
// use. It is local to one reconstruction and not safe for concurrent use.
type Accumulator struct {
	seeded  bool
	header  api.ChatChunk
	usage   *api.ResponseUsage
	choices map[int]*choiceState
}

type choiceState struct {
	role         api.Role
	content      *string
	toolCalls    []api.ToolCall
	toolIndex    map[int]int // delta index -> position in toolCalls
	finishReason *string
}

// Add folds one chunk into the accumulator.
func (a *Accumulator) Add(chunk *api.ChatChunk) {
	if chunk == nil {
		return
	}

	if !a.seeded {
		a.seeded = true
		a.header = api.ChatChunk{
			ID:                chunk.ID,
			Object:            chunk.Object,
			Created:           chunk.Created,
			Model:             chunk.Model,
			SystemFingerprint: chunk.SystemFingerprint,
		}
		a.choices = make(map[int]*choiceState)
	}

	if chunk.Usage != nil {
		u := *chunk.Usage
		a.usage = &u
	}

	for i := range chunk.Choices {
		c := &chunk.Choices[i]
		st, ok := a.choices[c.Index]
		if !ok {
			st = &choiceState{}
			a.choices[c.Index] = st
		}
		st.apply(c)
	}
}

func (s *choiceState) apply(c *api.ChunkChoice) {
	d := c.Delta

	if s.role == "" && d.Role != "" {
		s.role = d.Role
	}

	if d.Content != nil {
		if s.content == nil {
			s.content = new(string)
		}
		*s.content += *d.Content
	}

	for _, tc := range d.ToolCalls {
		s.mergeToolCall(tc)
	}

	if c.FinishReason != nil && *c.FinishReason != "" {
		reason := *c.FinishReason
		s.finishReason = &reason
	}
}

// mergeToolCall matches a fragment to an existing call by index, then by id.
// A fragment with neither continues the most recent call.
func (s *choiceState) mergeToolCall(tc api.ToolCallDelta) {
	pos := -1

	switch {
	case tc.Index != nil:
		if p, ok := s.toolIndex[*tc.Index]; ok {
			pos = p
		}
	case tc.ID != "":
		for i := range s.toolCalls {
			if s.toolCalls[i].ID == tc.ID {
				pos = i
				break
			}
		}
	case len(s.toolCalls) > 0:
		pos = len(s.toolCalls) - 1
	}

	if pos == -1 {
		s.toolCalls = append(s.toolCalls, api.ToolCall{})
		pos = len(s.toolCalls) - 1
		if tc.Index != nil {
			if s.toolIndex == nil {
				s.toolIndex = make(map[int]int)
			}
			s.toolIndex[*tc.Index] = pos
		}
	}

	call := &s.toolCalls[pos]
	if call.ID == "" {
		call.ID = tc.ID
	}
	if call.Type == "" {
		call.Type = tc.Type
	}
	if tc.Function != nil {
		if call.Function.Name == "" {
			call.Function.Name = tc.Function.Name
		}
		call.Function.Arguments += tc.Function.Arguments
	}
}

// Response builds the reconstructed response. It can be called at any point;
// the accumulator keeps accepting chunks afterwards.
func (a *Accumulator) Response() (*api.ChatResponse, error) {
	if !a.seeded {
		return nil, ErrNoChunks
	}

	resp := &api.ChatResponse{
		ID:                a.header.ID,
		Object:            completionObject(a.header.Object),
		Created:           a.header.Created,
		Model:             a.header.Model,
		SystemFingerprint: a.header.SystemFingerprint,
		Choices:           make([]api.Choice, 0, len(a.choices)),
	}
	if a.usage != nil {
		u := *a.usage
		resp.Usage = &u
	}

	indices := make([]int, 0, len(a.choices))
	for idx := range a.choices {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	for _, idx := range indices {
		st := a.choices[idx]

		msg := api.ChatMessage{Role: st.role}
		if msg.Role == "" {
			msg.Role = api.Assistant
		}
		if st.content != nil {
			msg.Content = api.TextContent(*st.content)
		}
		if len(st.toolCalls) > 0 {
			msg.ToolCalls = make([]api.ToolCall, len(st.toolCalls))
			copy(msg.ToolCalls, st.toolCalls)
			for i := range msg.ToolCalls {
				if msg.ToolCalls[i].Type == "" {
					msg.ToolCalls[i].Type = "function"
				}
			}
		}

		choice := api.Choice{Index: idx, Message: msg}
		if st.finishReason != nil {
			reason := *st.finishReason
			choice.FinishReason = &reason
		}
		resp.Choices = append(resp.Choices, choice)
	}

	return resp, nil
}

// Reconstruct folds a buffered chunk sequence into one response.
func Reconstruct(chunks []api.ChatChunk) (*api.ChatResponse, error) {
	var acc Accumulator
	for i := range chunks {
		acc.Add(&chunks[i])
	}
	return acc.Response()
}

// Collect drains the decoder and reconstructs the response. On any decode or
// transport failure the partial state is discarded and the error returned.
func Collect(d *Decoder) (*api.ChatResponse, error) {
	var acc Accumulator
	for {
		chunk, err := d.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		acc.Add(chunk)
	}
	return acc.Response()
}

func completionObject(object string) string {
	if object == api.ObjectChatCompletionChunk || object == "" {
		return api.ObjectChatCompletion
	}
	return object
}

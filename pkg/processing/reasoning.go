// Package processing post-processes completion text.
package processing

import "strings"

// tagPair is one open/close delimiter pair of the thinking vocabulary.
type tagPair struct {
	open  string
	close string
}

// thinkingTags is fixed. An open tag is only closed by its own close tag.
var thinkingTags = []tagPair{
	{open: "<think>", close: "</think>"},
	{open: "<thinking>", close: "</thinking>"},
}

// SegmentSeparator joins multiple thinking segments.
const SegmentSeparator = "\n\n"

// Thinking is the result of splitting a response into reasoning and answer.
type Thinking struct {
	// Thinking holds every segment in document order, or nil when there were none.
	Thinking *string
	// Response is the input with the segments (and their tags) removed.
	Response string
}

// ExtractThinking separates thinking segments from the rest of the text.
// An open tag without a matching close tag is not a segment: it and
// everything after it stay in Response unchanged, including any later pair
// that is itself closed. So "<thinking>x <think>y</think>" has no segments.
func ExtractThinking(text string) Thinking {
	var contentBuilder strings.Builder
	var segments []string

	cursor := 0
	for cursor < len(text) {
		// find the earliest open tag of any pair
		start, pair := nextOpenTag(text[cursor:])
		if start == -1 {
			contentBuilder.WriteString(text[cursor:])
			break
		}

		realStart := cursor + start
		inner := realStart + len(pair.open)

		end := strings.Index(text[inner:], pair.close)
		if end == -1 {
			// unterminated, keep the rest verbatim
			contentBuilder.WriteString(text[cursor:])
			break
		}

		contentBuilder.WriteString(text[cursor:realStart])
		segments = append(segments, text[inner:inner+end])

		// move cursor past the end tag
		cursor = inner + end + len(pair.close)
	}

	out := Thinking{Response: contentBuilder.String()}
	if len(segments) > 0 {
		joined := strings.Join(segments, SegmentSeparator)
		out.Thinking = &joined
	}
	return out
}

func nextOpenTag(text string) (int, tagPair) {
	best := -1
	var bestPair tagPair
	for _, p := range thinkingTags {
		idx := strings.Index(text, p.open)
		if idx != -1 && (best == -1 || idx < best) {
			best = idx
			bestPair = p
		}
	}
	return best, bestPair
}

// StreamParser splits streamed content into answer text and reasoning as it
// arrives, holding back partial tags that straddle chunk boundaries.
//
// Text inside an open block is reported as reasoning as soon as it arrives,
// so an unterminated block is reasoning here, unlike ExtractThinking.
type StreamParser struct {
	active *tagPair // non-nil while inside a block
	buffer string
}

func NewStreamParser() *StreamParser {
	return &StreamParser{}
}

// Process takes a chunk of text and returns the separated content and reasoning parts.
func (p *StreamParser) Process(input string) (content string, reasoning string) {
	text := p.buffer + input
	p.buffer = ""

	var contentBuilder strings.Builder
	var reasoningBuilder strings.Builder

	cursor := 0
	length := len(text)

	for cursor < length {
		if p.active == nil {
			idx, pair := nextOpenTag(text[cursor:])
			if idx != -1 {
				realIdx := cursor + idx
				contentBuilder.WriteString(text[cursor:realIdx])
				cursor = realIdx + len(pair.open)
				p.active = &pair
				continue
			}

			keep := partialSuffix(text[cursor:], openTags()...)
			contentBuilder.WriteString(text[cursor : length-keep])
			p.buffer = text[length-keep:]
			cursor = length
		} else {
			idx := strings.Index(text[cursor:], p.active.close)
			if idx != -1 {
				realIdx := cursor + idx
				reasoningBuilder.WriteString(text[cursor:realIdx])
				cursor = realIdx + len(p.active.close)
				p.active = nil
				continue
			}

			keep := partialSuffix(text[cursor:], p.active.close)
			reasoningBuilder.WriteString(text[cursor : length-keep])
			p.buffer = text[length-keep:]
			cursor = length
		}
	}

	return contentBuilder.String(), reasoningBuilder.String()
}

// Flush returns text held back at the end of the stream.
func (p *StreamParser) Flush() (content string, reasoning string) {
	rest := p.buffer
	p.buffer = ""
	if p.active != nil {
		return "", rest
	}
	return rest, ""
}

// InBlock reports whether the parser is inside a thinking block.
func (p *StreamParser) InBlock() bool {
	return p.active != nil
}

func openTags() []string {
	tags := make([]string, len(thinkingTags))
	for i, p := range thinkingTags {
		tags[i] = p.open
	}
	return tags
}

// partialSuffix returns the length of the longest suffix of text that is a
// proper prefix of one of the tags.
func partialSuffix(text string, tags ...string) int {
	longest := 0
	for _, tag := range tags {
		maxPartial := len(tag) - 1
		if len(text) < maxPartial {
			maxPartial = len(text)
		}
		for i := maxPartial; i > longest; i-- {
			if strings.HasPrefix(tag, text[len(text)-i:]) {
				longest = i
				break
			}
		}
	}
	return longest
}

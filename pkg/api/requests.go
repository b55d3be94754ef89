package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ChatRequest is the body of POST /chat/completions.
//
// Sampling parameters are pointers so that an explicit zero, such as a
// temperature of 0, is still sent.
type ChatRequest struct {
	// Model is usually "<provider>/<model>"
	Model    string        `json:"model" binding:"required"`
	Messages []ChatMessage `json:"messages" binding:"required,min=1,dive"`

	Stream        bool           `json:"stream,omitempty"`
	StreamOptions *StreamOptions `json:"stream_options,omitempty"`

	MaxTokens        *int            `json:"max_tokens,omitempty"`
	Temperature      *float64        `json:"temperature,omitempty"`
	TopP             *float64        `json:"top_p,omitempty"`
	TopK             *int            `json:"top_k,omitempty"`
	FrequencyPenalty *float64        `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64        `json:"presence_penalty,omitempty"`
	Seed             *int            `json:"seed,omitempty"`
	Stop             Stop            `json:"stop,omitempty"`
	LogitBias        map[int]float64 `json:"logit_bias,omitempty"`
	ResponseFormat   *ResponseFormat `json:"response_format,omitempty"`
	Tools            []Tool          `json:"tools,omitempty"`
	ToolChoice       json.RawMessage `json:"tool_choice,omitempty"`
	User             string          `json:"user,omitempty"`

	// Fallback models the gateway may route to, in order.
	Models   []string             `json:"models,omitempty"`
	Provider *ProviderPreferences `json:"provider,omitempty"`
}

// StreamOptions asks the gateway to append a usage chunk to the stream.
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage,omitempty"`
}

type Role string

const (
	System    Role = "system"
	User      Role = "user"
	Assistant Role = "assistant"
	ToolRole  Role = "tool"
)

type ChatMessage struct {
	Role Role `json:"role" binding:"required,oneof=system user assistant tool"`
	// Content is null on assistant messages that only call tools.
	Content    *Content   `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// NewMessage builds a text message for the given role.
func NewMessage(role Role, text string) ChatMessage {
	return ChatMessage{Role: role, Content: TextContent(text)}
}

// Text returns the message text, joining the text parts of multi-part
// content. Null content yields "".
func (m ChatMessage) Text() string {
	return m.Content.String()
}

// Content is either a plain string or a list of parts on the wire.
type Content struct {
	Text  string
	Parts []ContentPart
}

func TextContent(text string) *Content {
	return &Content{Text: text}
}

// PartsContent builds multi-part content, e.g. text plus images.
func PartsContent(parts ...ContentPart) *Content {
	return &Content{Parts: parts}
}

func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0:
		return nil
	case data[0] == '"':
		return json.Unmarshal(data, &c.Text)
	case data[0] == '[':
		return json.Unmarshal(data, &c.Parts)
	default:
		return fmt.Errorf("content must be a string or an array of parts, got %s", data)
	}
}

func (c Content) MarshalJSON() ([]byte, error) {
	if c.Parts != nil {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

func (c *Content) String() string {
	switch {
	case c == nil:
		return ""
	case c.Parts == nil:
		return c.Text
	}

	var b strings.Builder
	for _, p := range c.Parts {
		if p.Type == PartText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

const (
	PartText     = "text"
	PartImageURL = "image_url"
)

type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL carries a remote URL or a base64 data URL.
type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type ResponseFormat struct {
	Type string `json:"type"`
}

// Stop is sent as a string when it holds one sequence, else as an array.
type Stop []string

func (s *Stop) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*s = Stop{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("stop must be a string or an array of strings: %w", err)
	}
	*s = many
	return nil
}

func (s Stop) MarshalJSON() ([]byte, error) {
	if len(s) == 1 {
		return json.Marshal(s[0])
	}
	return json.Marshal([]string(s))
}

type Tool struct {
	Type     string             `json:"type"`
	Function FunctionDefinition `json:"function"`
}

type FunctionDefinition struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	// Parameters is a JSON Schema object.
	Parameters map[string]any `json:"parameters,omitempty"`
}

// ProviderPreferences steers the gateway's choice of upstream.
type ProviderPreferences struct {
	Order          []string `json:"order,omitempty"`
	AllowFallbacks *bool    `json:"allow_fallbacks,omitempty"`
	// DataCollection is "allow" or "deny"
	DataCollection string `json:"data_collection,omitempty"`
}

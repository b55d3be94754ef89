package api

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatMessage_Content(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantNil bool
		want    string
	}{
		{name: "string", input: `{"role":"user","content":"hi"}`, want: "hi"},
		{name: "null", input: `{"role":"assistant","content":null}`, wantNil: true},
		{name: "absent", input: `{"role":"assistant"}`, wantNil: true},
		{
			name:  "parts",
			input: `{"role":"user","content":[{"type":"text","text":"look at "},{"type":"image_url","image_url":{"url":"https://x/y.png"}},{"type":"text","text":"this"}]}`,
			want:  "look at this",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m ChatMessage
			require.NoError(t, json.Unmarshal([]byte(tt.input), &m))
			if tt.wantNil {
				assert.Nil(t, m.Content)
			}
			assert.Equal(t, tt.want, m.Text())
		})
	}
}

func TestChatMessage_ContentRejectsObjects(t *testing.T) {
	var m ChatMessage
	assert.Error(t, json.Unmarshal([]byte(`{"role":"user","content":{"text":"hi"}}`), &m))
}

func TestChatMessage_NullContentIsSent(t *testing.T) {
	data, err := json.Marshal(ChatMessage{Role: Assistant})
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"assistant","content":null}`, string(data))

	data, err = json.Marshal(ChatMessage{Role: User, Content: PartsContent(
		ContentPart{Type: PartText, Text: "what is this"},
		ContentPart{Type: PartImageURL, ImageURL: &ImageURL{URL: "data:image/png;base64,AAAA"}},
	)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"user","content":[{"type":"text","text":"what is this"},{"type":"image_url","image_url":{"url":"data:image/png;base64,AAAA"}}]}`, string(data))
}

func TestChatRequest_ExplicitZeroIsSent(t *testing.T) {
	req := ChatRequest{
		Model:       "m",
		Messages:    []ChatMessage{NewMessage(User, "hi")},
		Temperature: Float(0),
		Stop:        Stop{"END"},
	}

	data, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"model":"m","messages":[{"role":"user","content":"hi"}],"temperature":0,"stop":"END"}`, string(data))
}

func TestStop_Unmarshal(t *testing.T) {
	var s Stop
	require.NoError(t, json.Unmarshal([]byte(`"END"`), &s))
	assert.Equal(t, Stop{"END"}, s)

	require.NoError(t, json.Unmarshal([]byte(`["a","b"]`), &s))
	assert.Equal(t, Stop{"a", "b"}, s)

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `["a","b"]`, string(data))

	assert.Error(t, json.Unmarshal([]byte(`3`), &s))
}

package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func withColor(t *testing.T, on bool) {
	t.Helper()
	prev := Enabled()
	SetEnabled(on)
	t.Cleanup(func() { SetEnabled(prev) })
}

func TestStyle(t *testing.T) {
	withColor(t, true)
	assert.Equal(t, DimCode+"thinking"+ResetCode, Dim("thinking"))
	assert.Equal(t, "", Bold(""))

	withColor(t, false)
	assert.Equal(t, "thinking", Dim("thinking"))
	assert.Equal(t, "abc", Gradient("abc", BrandBlue, BrandPurple))
}

func TestHighlightJSON(t *testing.T) {
	withColor(t, true)
	out := HighlightJSON(`{"model": "mock/echo", "stream": true, "n": 2, "x": null}`)

	assert.Contains(t, out, Blue+`"model"`+ResetCode+":")
	assert.Contains(t, out, Green+`"mock/echo"`+ResetCode)
	assert.Contains(t, out, Yellow+"true"+ResetCode)
	assert.Contains(t, out, Purple+"2"+ResetCode)
	assert.Contains(t, out, DimCode+"null"+ResetCode)

	withColor(t, false)
	assert.Equal(t, `{"a":1}`, HighlightJSON(`{"a":1}`))
}

func TestPrettyFormat(t *testing.T) {
	withColor(t, false)
	out := PrettyFormat(map[string]int{"total_tokens": 10})
	assert.True(t, strings.Contains(out, "\"total_tokens\": 10"))
}

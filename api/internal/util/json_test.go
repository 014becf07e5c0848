package util

import (
	"encoding/json"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-proxy/api/internal/errx"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    map[string]any
		wantErr error
	}{
		{
			name: "bare object",
			text: `{"imei":"356938035643809"}`,
			want: map[string]any{"imei": "356938035643809"},
		},
		{
			name: "object wrapped in prose",
			text: "Sure! Here is the data:\n{\"model\": \"iPhone 12\", \"price\": 199.99}\nLet me know.",
			want: map[string]any{"model": "iPhone 12", "price": json.Number("199.99")},
		},
		{
			name: "markdown fences",
			text: "```json\n{\"phone\": \"555-0100\"}\n```",
			want: map[string]any{"phone": "555-0100"},
		},
		{
			name: "nested braces",
			text: `result: {"client": {"name": "Ann"}, "imei": ""}`,
			want: map[string]any{"client": map[string]any{"name": "Ann"}, "imei": ""},
		},
		{name: "no braces", text: "I could not read the image.", wantErr: errx.ErrNoJSON},
		{name: "only opening brace", text: "{ oops", wantErr: errx.ErrNoJSON},
		{name: "reversed braces", text: "} nothing {", wantErr: errx.ErrMalformedJSON},
		{name: "invalid json", text: "{model: iPhone}", wantErr: errx.ErrMalformedJSON},
		{name: "two objects", text: `{"a":1} and {"b":2}`, wantErr: errx.ErrMalformedJSON},
		{name: "extra closing brace", text: `{"a":1}}`, wantErr: errx.ErrMalformedJSON},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.text)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStripCodeFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripCodeFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripCodeFences("  {\"a\":1} "))
}

func TestDecodeBase64MaybeDataURL(t *testing.T) {
	b, mime, err := DecodeBase64MaybeDataURL("data:image/png;base64,aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))
	assert.Equal(t, "image/png", mime)

	b, mime, err = DecodeBase64MaybeDataURL("aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))
	assert.Empty(t, mime)

	_, _, err = DecodeBase64MaybeDataURL("%%%")
	assert.Error(t, err)
}

func TestPickMIME(t *testing.T) {
	png := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	assert.Equal(t, "image/webp", PickMIME("image/webp", "image/png", png))
	assert.Equal(t, "image/png", PickMIME("", "image/png", nil))
	assert.Equal(t, "image/png", PickMIME("", "", png))
	assert.Equal(t, "image/jpeg", PickMIME("", "", nil))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 3))
	assert.Equal(t, "ab…", Truncate("abc", 2))

	got := Truncate("жжжжжжжжжж", 5)
	assert.Equal(t, "жж…", got)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "…", Truncate("ж", 1))
}

package util

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"ticket-proxy/api/internal/errx"
)

// ExtractJSON recovers the JSON object embedded in a free-text model reply:
// everything from the first '{' to the last '}' inclusive must parse as an object.
func ExtractJSON(text string) (map[string]any, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 {
		return nil, errx.ErrNoJSON
	}
	if end < start {
		return nil, fmt.Errorf("%w: closing brace before opening brace", errx.ErrMalformedJSON)
	}
	var out map[string]any
	dec := json.NewDecoder(strings.NewReader(text[start : end+1]))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", errx.ErrMalformedJSON, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after object", errx.ErrMalformedJSON)
	}
	return out, nil
}

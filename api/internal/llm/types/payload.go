package types

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Payload is a generateContent request as submitted by the caller. Only the
// fields the relay reads are decoded; everything else stays raw in Extra and
// is forwarded unmodified.
type Payload struct {
	Contents          []Content
	SystemInstruction *Content
	Extra             map[string]json.RawMessage
}

type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

type Part struct {
	Text       string
	InlineData *Blob
	Extra      map[string]json.RawMessage
}

type Blob struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"` // base64
}

func (p *Payload) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*p = Payload{}
	if v, ok := raw["contents"]; ok {
		if err := json.Unmarshal(v, &p.Contents); err != nil {
			return fmt.Errorf("contents: %w", err)
		}
		delete(raw, "contents")
	}
	for _, k := range []string{"systemInstruction", "system_instruction"} {
		if v, ok := raw[k]; ok {
			var c Content
			if err := json.Unmarshal(v, &c); err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
			p.SystemInstruction = &c
			delete(raw, k)
		}
	}
	if len(raw) > 0 {
		p.Extra = raw
	}
	return nil
}

func (p Payload) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Extra)+2)
	for k, v := range p.Extra {
		out[k] = v
	}
	contents := p.Contents
	if contents == nil {
		contents = []Content{}
	}
	out["contents"] = contents
	if p.SystemInstruction != nil {
		out["systemInstruction"] = p.SystemInstruction
	}
	return json.Marshal(out)
}

func (p *Part) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*p = Part{}
	if v, ok := raw["text"]; ok {
		if err := json.Unmarshal(v, &p.Text); err != nil {
			return fmt.Errorf("text: %w", err)
		}
		delete(raw, "text")
	}
	for _, k := range []string{"inlineData", "inline_data"} {
		if v, ok := raw[k]; ok {
			var blob Blob
			if err := json.Unmarshal(v, &blob); err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
			p.InlineData = &blob
			delete(raw, k)
		}
	}
	if len(raw) > 0 {
		p.Extra = raw
	}
	return nil
}

func (p Part) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Extra)+2)
	for k, v := range p.Extra {
		out[k] = v
	}
	if p.Text != "" || (p.InlineData == nil && len(p.Extra) == 0) {
		out["text"] = p.Text
	}
	if p.InlineData != nil {
		out["inlineData"] = p.InlineData
	}
	return json.Marshal(out)
}

func (b *Blob) UnmarshalJSON(data []byte) error {
	var raw struct {
		MimeType  string `json:"mimeType"`
		MimeType2 string `json:"mime_type"`
		Data      string `json:"data"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	b.MimeType = raw.MimeType
	if b.MimeType == "" {
		b.MimeType = raw.MimeType2
	}
	b.Data = raw.Data
	return nil
}

// Clone returns a deep copy; raw Extra values are shared since they are never mutated.
func (p Payload) Clone() Payload {
	out := Payload{Extra: p.Extra}
	if p.Contents != nil {
		out.Contents = make([]Content, len(p.Contents))
		for i, c := range p.Contents {
			out.Contents[i] = c.clone()
		}
	}
	if p.SystemInstruction != nil {
		c := p.SystemInstruction.clone()
		out.SystemInstruction = &c
	}
	return out
}

func (c Content) clone() Content {
	out := Content{Role: c.Role}
	if c.Parts != nil {
		out.Parts = make([]Part, len(c.Parts))
		for i, pt := range c.Parts {
			out.Parts[i] = pt
			if pt.InlineData != nil {
				blob := *pt.InlineData
				out.Parts[i].InlineData = &blob
			}
		}
	}
	return out
}

// PromptText returns the first text part of the first content.
func (p Payload) PromptText() string {
	if len(p.Contents) == 0 {
		return ""
	}
	for _, pt := range p.Contents[0].Parts {
		if pt.InlineData == nil && pt.Text != "" {
			return pt.Text
		}
	}
	return ""
}

// WithPrompt returns a copy of p whose first prompt text is replaced by text.
// A text part is prepended when the first content has none.
func (p Payload) WithPrompt(text string) Payload {
	out := p.Clone()
	if len(out.Contents) == 0 {
		out.Contents = []Content{{Role: "user", Parts: []Part{{Text: text}}}}
		return out
	}
	first := &out.Contents[0]
	for i := range first.Parts {
		if first.Parts[i].InlineData == nil && first.Parts[i].Text != "" {
			first.Parts[i].Text = text
			return out
		}
	}
	first.Parts = append([]Part{{Text: text}}, first.Parts...)
	return out
}

// Images returns the inline-data parts of every content, in order.
func (p Payload) Images() []Part {
	var out []Part
	for _, c := range p.Contents {
		for _, pt := range c.Parts {
			if pt.InlineData != nil {
				out = append(out, pt)
			}
		}
	}
	return out
}

// GenerationConfig returns the raw generation config, whichever spelling the caller used.
func (p Payload) GenerationConfig() json.RawMessage {
	if v, ok := p.Extra["generationConfig"]; ok {
		return v
	}
	return p.Extra["generation_config"]
}

// SafetySettings returns the raw safety settings under either spelling.
func (p Payload) SafetySettings() json.RawMessage {
	if v, ok := p.Extra["safetySettings"]; ok {
		return v
	}
	return p.Extra["safety_settings"]
}

// sdkKeys are the top-level keys the SDK transport maps.
var sdkKeys = map[string]bool{
	"generationConfig": true, "generation_config": true,
	"safetySettings": true, "safety_settings": true,
}

// UnsupportedBySDK lists the top-level keys the SDK transport cannot forward.
func (p Payload) UnsupportedBySDK() []string {
	var out []string
	for k := range p.Extra {
		if !sdkKeys[k] {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// ForField builds a narrow follow-up payload: the images of p plus prompt.
// Generation settings are carried over, the system instruction is not.
func (p Payload) ForField(prompt string) Payload {
	parts := []Part{{Text: prompt}}
	for _, img := range p.Images() {
		blob := *img.InlineData
		parts = append(parts, Part{InlineData: &blob})
	}
	out := Payload{Contents: []Content{{Role: "user", Parts: parts}}}
	if gc := p.GenerationConfig(); len(gc) > 0 {
		out.Extra = map[string]json.RawMessage{"generationConfig": gc}
	}
	return out
}

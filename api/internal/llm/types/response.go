package types

type Response struct {
	Candidates []Candidate `json:"candidates"`
}

type Candidate struct {
	Content      *Content `json:"content"`
	FinishReason string   `json:"finishReason,omitempty"`
}

// FirstText returns the first text part of the first candidate.
func (r Response) FirstText() string {
	if len(r.Candidates) == 0 || r.Candidates[0].Content == nil {
		return ""
	}
	for _, pt := range r.Candidates[0].Content.Parts {
		if pt.Text != "" {
			return pt.Text
		}
	}
	return ""
}

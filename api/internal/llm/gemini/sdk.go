package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"ticket-proxy/api/internal/errx"
	"ticket-proxy/api/internal/llm/types"
	"ticket-proxy/api/internal/logx"
	"ticket-proxy/api/internal/util"
)

// SDK serves the same contract as REST through the generative-ai-go client.
type SDK struct {
	APIKey string
	Model  string

	attempts int
	backoff  time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
	opts     []option.ClientOption
}

func NewSDK(apiKey, model string, opts ...option.ClientOption) *SDK {
	return &SDK{
		APIKey:   strings.TrimSpace(apiKey),
		Model:    strings.TrimSpace(model),
		attempts: 3,
		backoff:  300 * time.Millisecond,
		sleep:    sleepCtx,
		opts:     opts,
	}
}

func (e *SDK) Name() string     { return "gemini-sdk" }
func (e *SDK) GetModel() string { return e.Model }

func (e *SDK) Generate(ctx context.Context, in types.Payload) (string, error) {
	if e.APIKey == "" {
		return "", errx.ErrAPIKeyMissing
	}
	history, last, err := toContents(in.Contents)
	if err != nil {
		return "", err
	}

	opts := append([]option.ClientOption{option.WithAPIKey(e.APIKey)}, e.opts...)
	cl, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return "", errx.Redact(err, e.APIKey)
	}
	defer cl.Close()

	m := cl.GenerativeModel(e.Model)
	if m == nil {
		return "", fmt.Errorf("gemini: model is nil")
	}
	gc, err := toGenerationConfig(in.GenerationConfig())
	if err != nil {
		return "", err
	}
	m.GenerationConfig = gc
	m.SafetySettings = toSafetySettings(in.SafetySettings())
	if in.SystemInstruction != nil {
		sys, err := toContent(*in.SystemInstruction)
		if err != nil {
			return "", err
		}
		m.SystemInstruction = sys
	}
	if dropped := in.UnsupportedBySDK(); len(dropped) > 0 {
		logx.Warn().Strs("keys", dropped).Msg("gemini sdk: payload keys not forwarded")
	}

	resp, err := e.send(ctx, func() (*genai.GenerateContentResponse, error) {
		cs := m.StartChat()
		cs.History = history
		return cs.SendMessage(ctx, last.Parts...)
	})
	if err != nil {
		return "", errx.Redact(err, e.APIKey)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", errx.ErrNoCandidates
	}
	return firstText(resp), nil
}

// send runs call up to e.attempts times with linear backoff. Client errors
// and an ended context stop it early; no backoff follows the last attempt.
func (e *SDK) send(ctx context.Context, call func() (*genai.GenerateContentResponse, error)) (*genai.GenerateContentResponse, error) {
	var lastErr error
	for attempt := 1; attempt <= e.attempts; attempt++ {
		resp, err := call()
		if err == nil {
			return resp, nil
		}
		lastErr = statusErr(err)
		logx.Warn().Err(errx.Redact(err, e.APIKey)).Int("attempt", attempt).Msg("gemini sdk: generate failed")
		if ctx.Err() != nil || !retryable(lastErr) || attempt == e.attempts {
			break
		}
		if err := e.sleep(ctx, time.Duration(attempt)*e.backoff); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// statusErr exposes HTTP failures as errx.StatusError so both transports
// report upstream statuses the same way.
func statusErr(err error) error {
	var ge *googleapi.Error
	if errors.As(err, &ge) {
		return fmt.Errorf("%w: %s", &errx.StatusError{Code: ge.Code, Body: ge.Message}, ge.Message)
	}
	return err
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *errx.StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// toContents splits payload contents into chat history and the final user turn.
func toContents(in []types.Content) ([]*genai.Content, *genai.Content, error) {
	if len(in) == 0 {
		return nil, nil, errors.New("gemini: payload has no contents")
	}
	out := make([]*genai.Content, 0, len(in))
	for _, c := range in {
		gc, err := toContent(c)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, gc)
	}
	return out[:len(out)-1], out[len(out)-1], nil
}

func toContent(c types.Content) (*genai.Content, error) {
	out := &genai.Content{Role: c.Role}
	if out.Role == "" {
		out.Role = "user"
	}
	for i, pt := range c.Parts {
		switch {
		case pt.InlineData != nil:
			data, hint, err := util.DecodeBase64MaybeDataURL(pt.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("gemini: part %d: bad base64: %w", i, err)
			}
			out.Parts = append(out.Parts, &genai.Blob{
				MIMEType: util.PickMIME(pt.InlineData.MimeType, hint, data),
				Data:     data,
			})
		case pt.Text != "":
			out.Parts = append(out.Parts, genai.Text(pt.Text))
		}
	}
	return out, nil
}

type generationConfig struct {
	Temperature      *float32 `json:"temperature"`
	TopP             *float32 `json:"topP"`
	TopK             *int32   `json:"topK"`
	MaxOutputTokens  *int32   `json:"maxOutputTokens"`
	CandidateCount   *int32   `json:"candidateCount"`
	StopSequences    []string `json:"stopSequences"`
	ResponseMIMEType string   `json:"responseMimeType"`
}

func toGenerationConfig(raw json.RawMessage) (genai.GenerationConfig, error) {
	if len(raw) == 0 {
		return genai.GenerationConfig{}, nil
	}
	norm, err := camelKeys(raw)
	if err != nil {
		return genai.GenerationConfig{}, fmt.Errorf("gemini: bad generationConfig: %w", err)
	}
	var in generationConfig
	if err := json.Unmarshal(norm, &in); err != nil {
		return genai.GenerationConfig{}, fmt.Errorf("gemini: bad generationConfig: %w", err)
	}
	return genai.GenerationConfig{
		Temperature:      in.Temperature,
		TopP:             in.TopP,
		TopK:             in.TopK,
		MaxOutputTokens:  in.MaxOutputTokens,
		CandidateCount:   in.CandidateCount,
		StopSequences:    in.StopSequences,
		ResponseMIMEType: in.ResponseMIMEType,
	}, nil
}

// camelKeys rewrites the top-level snake_case keys of a JSON object the way
// the REST API reads them (max_output_tokens -> maxOutputTokens).
func camelKeys(raw json.RawMessage) (json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	out := make(map[string]json.RawMessage, len(obj))
	for k, v := range obj {
		ck := snakeToCamel(k)
		if _, taken := out[ck]; taken && ck != k {
			// an explicit camelCase key wins
			continue
		}
		out[ck] = v
	}
	return json.Marshal(out)
}

func snakeToCamel(k string) string {
	if !strings.Contains(k, "_") {
		return k
	}
	parts := strings.Split(k, "_")
	var b strings.Builder
	b.WriteString(parts[0])
	for _, p := range parts[1:] {
		if p == "" {
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]) + p[1:])
	}
	return b.String()
}

var harmCategories = map[string]genai.HarmCategory{
	"HARM_CATEGORY_HARASSMENT":        genai.HarmCategoryHarassment,
	"HARM_CATEGORY_HATE_SPEECH":       genai.HarmCategoryHateSpeech,
	"HARM_CATEGORY_SEXUALLY_EXPLICIT": genai.HarmCategorySexuallyExplicit,
	"HARM_CATEGORY_DANGEROUS_CONTENT": genai.HarmCategoryDangerousContent,
}

var harmThresholds = map[string]genai.HarmBlockThreshold{
	"HARM_BLOCK_THRESHOLD_UNSPECIFIED": genai.HarmBlockUnspecified,
	"BLOCK_LOW_AND_ABOVE":              genai.HarmBlockLowAndAbove,
	"BLOCK_MEDIUM_AND_ABOVE":           genai.HarmBlockMediumAndAbove,
	"BLOCK_ONLY_HIGH":                  genai.HarmBlockOnlyHigh,
	"BLOCK_NONE":                       genai.HarmBlockNone,
}

// toSafetySettings maps the wire safety settings. Entries the SDK cannot
// express are logged and skipped.
func toSafetySettings(raw json.RawMessage) []*genai.SafetySetting {
	if len(raw) == 0 {
		return nil
	}
	var in []json.RawMessage
	if err := json.Unmarshal(raw, &in); err != nil {
		logx.Warn().Err(err).Msg("gemini sdk: bad safetySettings, ignored")
		return nil
	}
	var out []*genai.SafetySetting
	for _, item := range in {
		norm, err := camelKeys(item)
		if err != nil {
			logx.Warn().Err(err).Msg("gemini sdk: bad safety setting, ignored")
			continue
		}
		var s struct {
			Category  string `json:"category"`
			Threshold string `json:"threshold"`
		}
		if err := json.Unmarshal(norm, &s); err != nil {
			logx.Warn().Err(err).Msg("gemini sdk: bad safety setting, ignored")
			continue
		}
		cat, okC := harmCategories[s.Category]
		th, okT := harmThresholds[s.Threshold]
		if !okC || !okT {
			logx.Warn().Str("category", s.Category).Str("threshold", s.Threshold).Msg("gemini sdk: unsupported safety setting, ignored")
			continue
		}
		out = append(out, &genai.SafetySetting{Category: cat, Threshold: th})
	}
	return out
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	c := resp.Candidates[0]
	if c.Content == nil {
		return ""
	}
	for _, p := range c.Content.Parts {
		if t, ok := p.(genai.Text); ok {
			return string(t)
		}
	}
	return ""
}

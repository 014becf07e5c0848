package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ticket-proxy/api/internal/errx"
	"ticket-proxy/api/internal/llm/types"
	"ticket-proxy/api/internal/logx"
	"ticket-proxy/api/internal/util"
)

const DefaultBaseURL = "https://generativelanguage.googleapis.com"

// REST forwards payloads verbatim to the generateContent endpoint.
type REST struct {
	APIKey     string
	Model      string
	BaseURL    string
	APIVersion string
	httpc      *http.Client
	breaker    CircuitBreaker
}

type Option func(*REST)

func WithHTTPClient(c *http.Client) Option { return func(e *REST) { e.httpc = c } }

func WithBreaker(b CircuitBreaker) Option { return func(e *REST) { e.breaker = b } }

func WithBaseURL(u, version string) Option {
	return func(e *REST) {
		if u != "" {
			e.BaseURL = strings.TrimRight(u, "/")
		}
		if version != "" {
			e.APIVersion = version
		}
	}
}

func NewREST(key, model string, opts ...Option) *REST {
	e := &REST{
		APIKey:     strings.TrimSpace(key),
		Model:      strings.TrimSpace(model),
		BaseURL:    DefaultBaseURL,
		APIVersion: "v1beta",
		httpc:      &http.Client{Timeout: 60 * time.Second},
		breaker:    noBreaker{},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *REST) Name() string     { return "gemini-rest" }
func (e *REST) GetModel() string { return e.Model }

// endpoint carries no credential; the key travels in the x-goog-api-key
// header so transport errors, which quote the URL, never expose it.
func (e *REST) endpoint() string {
	return fmt.Sprintf("%s/%s/models/%s:generateContent",
		e.BaseURL, e.APIVersion, url.PathEscape(e.Model))
}

// Generate returns the first candidate's text.
func (e *REST) Generate(ctx context.Context, in types.Payload) (string, error) {
	if e.APIKey == "" {
		return "", errx.ErrAPIKeyMissing
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("gemini: encode payload: %w", err)
	}

	var out types.Response
	err = e.breaker.Execute(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint(), bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-goog-api-key", e.APIKey)
		resp, err := e.httpc.Do(req)
		if err != nil {
			return callerErr(ctx, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			x, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
			logx.Error().Int("status", resp.StatusCode).Str("body", util.Truncate(string(x), 2000)).Msg("gemini: error response")
			return &errx.StatusError{Code: resp.StatusCode, Body: string(x)}
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return callerErr(ctx, fmt.Errorf("gemini: decode response: %w", err))
		}
		if len(out.Candidates) == 0 {
			return errx.ErrNoCandidates
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return out.FirstText(), nil
}

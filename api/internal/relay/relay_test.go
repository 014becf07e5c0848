package relay

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-proxy/api/internal/errx"
	"ticket-proxy/api/internal/llm/types"
	"ticket-proxy/api/internal/ticket"
)

type reply struct {
	text string
	err  error
}

// fakeEngine answers Generate calls from a script, in order.
type fakeEngine struct {
	mu      sync.Mutex
	replies []reply
	seen    []types.Payload
}

func (f *fakeEngine) Name() string     { return "fake" }
func (f *fakeEngine) GetModel() string { return "fake-model" }

func (f *fakeEngine) Generate(_ context.Context, in types.Payload) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, in)
	if len(f.replies) == 0 {
		return "", errors.New("unexpected call")
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r.text, r.err
}

type recorder struct {
	calls     []string
	fallbacks map[string]bool
}

func (r *recorder) UpstreamCall(kind string, _ error) { r.calls = append(r.calls, kind) }
func (r *recorder) Fallback(field string, ok bool) {
	if r.fallbacks == nil {
		r.fallbacks = map[string]bool{}
	}
	r.fallbacks[field] = ok
}

func intake() types.Payload {
	return types.Payload{Contents: []types.Content{{
		Role: "user",
		Parts: []types.Part{
			{Text: "Extract the ticket"},
			{InlineData: &types.Blob{MimeType: "image/jpeg", Data: "aGVsbG8="}},
		},
	}}}
}

const (
	complete   = "Here it is: {\"client_name\":\"Ann\",\"phone\":\"555\",\"price\":\"120\",\"model\":\"S21\",\"imei\":\"356938035643809\"}"
	noIMEI     = `{"client_name":"Ann","phone":"555","price":"120","model":"S21","imei":""}`
	noIMEIPric = `{"client_name":"Ann","phone":"555","model":"S21"}`
)

func TestExtract_RetrySucceedsFirstTime(t *testing.T) {
	eng := &fakeEngine{replies: []reply{{text: complete}}}
	rec := &recorder{}
	svc := New(eng, StrategyRetry, WithRecorder(rec))

	got, out, err := svc.Extract(context.Background(), intake())
	require.NoError(t, err)
	assert.Equal(t, "356938035643809", got["imei"])
	assert.Equal(t, 1, out.Attempts)
	assert.False(t, out.Retried)
	assert.Equal(t, []string{CallPrimary}, rec.calls)
}

func TestExtract_RetryOnMissingIMEI(t *testing.T) {
	eng := &fakeEngine{replies: []reply{{text: noIMEI}, {text: complete}}}
	in := intake()
	svc := New(eng, StrategyRetry)

	got, out, err := svc.Extract(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, out.Retried)
	assert.Equal(t, 2, out.Attempts)
	assert.Equal(t, "356938035643809", got["imei"])

	require.Len(t, eng.seen, 2)
	retryPrompt := eng.seen[1].PromptText()
	assert.Contains(t, retryPrompt, "Your previous response was incomplete or not valid JSON.")
	assert.Contains(t, retryPrompt, `The original request was: "Extract the ticket"`)
	assert.Len(t, eng.seen[1].Images(), 1)
	assert.Equal(t, "Extract the ticket", in.PromptText(), "caller payload must not change")
}

func TestExtract_RetryOnMalformedReply(t *testing.T) {
	eng := &fakeEngine{replies: []reply{{text: "I cannot see an IMEI."}, {text: noIMEI}}}
	svc := New(eng, StrategyRetry)

	got, out, err := svc.Extract(context.Background(), intake())
	require.NoError(t, err)
	assert.True(t, out.Retried)
	// the retry result is returned even without an IMEI
	assert.Equal(t, "", got["imei"])
}

func TestExtract_RetryErrors(t *testing.T) {
	tests := []struct {
		name    string
		replies []reply
		message string
	}{
		{
			name:    "upstream status on first call",
			replies: []reply{{err: &errx.StatusError{Code: 503}}},
			message: "Google API responded with status 503",
		},
		{
			name:    "upstream status on retry",
			replies: []reply{{text: "nope"}, {err: &errx.StatusError{Code: 429}}},
			message: "Google API (retry) responded with status 429",
		},
		{
			name:    "no candidates on first call",
			replies: []reply{{err: errx.ErrNoCandidates}},
			message: errx.NoValidResponseMessage,
		},
		{
			name:    "no candidates on retry",
			replies: []reply{{text: noIMEI}, {err: errx.ErrNoCandidates}},
			message: errx.NoValidResponseMessage,
		},
		{
			name:    "retry still malformed",
			replies: []reply{{text: "nope"}, {text: "still nope"}},
			message: errx.MalformedMessage,
		},
		{
			name:    "missing key",
			replies: []reply{{err: errx.ErrAPIKeyMissing}},
			message: errx.APIKeyMissingMessage,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := New(&fakeEngine{replies: tt.replies}, StrategyRetry)
			_, _, err := svc.Extract(context.Background(), intake())
			require.Error(t, err)
			assert.Equal(t, tt.message, errx.MessageOf(err))
			assert.Equal(t, http.StatusInternalServerError, errx.StatusOf(err))
		})
	}
}

func TestExtract_None(t *testing.T) {
	svc := New(&fakeEngine{replies: []reply{{text: noIMEI}}}, StrategyNone)
	got, out, err := svc.Extract(context.Background(), intake())
	require.NoError(t, err)
	assert.Equal(t, 1, out.Attempts)
	assert.False(t, ticket.Record(got).Has(ticket.IMEI))

	svc = New(&fakeEngine{replies: []reply{{text: "no json here"}}}, StrategyNone)
	_, _, err = svc.Extract(context.Background(), intake())
	assert.Equal(t, errx.MalformedMessage, errx.MessageOf(err))
}

func TestExtract_FieldsFallbacks(t *testing.T) {
	// primary, whole-payload retry, imei fallback, price fallback without JSON
	eng := &fakeEngine{replies: []reply{
		{text: noIMEIPric},
		{text: noIMEIPric},
		{text: "```json\n{\"imei\": \"356938035643809\"}\n```"},
		{text: "The price is 1,250.00 dollars"},
	}}
	rec := &recorder{}
	svc := New(eng, StrategyFields, WithRecorder(rec), WithFallbackFields(ticket.IMEI, ticket.Price))

	got, out, err := svc.Extract(context.Background(), intake())
	require.NoError(t, err)
	assert.Equal(t, "356938035643809", got["imei"])
	assert.Equal(t, "1250.00", got["price"])
	assert.Equal(t, []string{"imei", "price"}, out.Fallbacks)
	assert.Equal(t, 4, out.Attempts)
	assert.Equal(t, []string{CallPrimary, CallRetry, CallFallback, CallFallback}, rec.calls)
	assert.Equal(t, map[string]bool{"imei": true, "price": true}, rec.fallbacks)

	imeiQuery := eng.seen[2]
	assert.Contains(t, imeiQuery.PromptText(), "IMEI#")
	assert.Len(t, imeiQuery.Images(), 1)
}

func TestExtract_FieldsFallbackFailureIsNotFatal(t *testing.T) {
	eng := &fakeEngine{replies: []reply{
		{text: noIMEIPric},
		{text: noIMEIPric},
		{err: &errx.StatusError{Code: 500}},
		{text: `{"price": ""}`},
	}}
	rec := &recorder{}
	svc := New(eng, StrategyFields, WithRecorder(rec))

	got, out, err := svc.Extract(context.Background(), intake())
	require.NoError(t, err)
	assert.Empty(t, out.Fallbacks)
	assert.NotContains(t, got, "imei")
	assert.Equal(t, map[string]bool{"imei": false, "price": false}, rec.fallbacks)
}

func TestExtract_FieldsSkipsWithoutImages(t *testing.T) {
	in := types.Payload{Contents: []types.Content{{Parts: []types.Part{{Text: "no image"}}}}}
	eng := &fakeEngine{replies: []reply{{text: noIMEIPric}, {text: noIMEIPric}}}
	svc := New(eng, StrategyFields)

	_, out, err := svc.Extract(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Attempts)
}

func TestExtract_FieldsCompleteRecordMakesOneCall(t *testing.T) {
	eng := &fakeEngine{replies: []reply{{text: complete}}}
	_, out, err := New(eng, StrategyFields).Extract(context.Background(), intake())
	require.NoError(t, err)
	assert.Equal(t, 1, out.Attempts)
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, StrategyRetry, s)

	s, err = ParseStrategy("fields")
	require.NoError(t, err)
	assert.Equal(t, StrategyFields, s)

	_, err = ParseStrategy("aggressive")
	assert.Error(t, err)
}

func TestExtract_FieldsFallbackProseIsAMiss(t *testing.T) {
	eng := &fakeEngine{replies: []reply{
		{text: noIMEIPric},
		{text: noIMEIPric},
		{text: "I can read a number, 15551234567890, but it is not an IMEI."},
		{text: "I'm sorry, the price is not visible in image 1."},
	}}
	rec := &recorder{}
	svc := New(eng, StrategyFields, WithRecorder(rec))

	got, out, err := svc.Extract(context.Background(), intake())
	require.NoError(t, err)
	assert.Empty(t, out.Fallbacks)
	assert.False(t, ticket.Record(got).Has(ticket.IMEI))
	assert.False(t, ticket.Record(got).Has(ticket.Price))
	assert.Equal(t, map[string]bool{"imei": false, "price": false}, rec.fallbacks)
}

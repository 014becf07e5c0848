package relay

import (
	"context"
	"errors"
	"fmt"

	"ticket-proxy/api/internal/errx"
	"ticket-proxy/api/internal/llm"
	"ticket-proxy/api/internal/llm/types"
	"ticket-proxy/api/internal/logx"
	"ticket-proxy/api/internal/ticket"
	"ticket-proxy/api/internal/util"
)

// Strategy selects how hard the relay works to get a complete record.
type Strategy string

const (
	// StrategyNone parses the first reply and returns whatever it holds.
	StrategyNone Strategy = "none"
	// StrategyRetry resends the whole payload with a reinforced prompt when
	// the first reply is unparsable or lacks an IMEI.
	StrategyRetry Strategy = "retry"
	// StrategyFields behaves like StrategyRetry, then queries each missing
	// fallback field on its own.
	StrategyFields Strategy = "fields"
)

func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyNone, StrategyRetry, StrategyFields:
		return Strategy(s), nil
	case "":
		return StrategyRetry, nil
	}
	return "", fmt.Errorf("unknown strategy %q; use none|retry|fields", s)
}

// Call kinds reported to the Recorder.
const (
	CallPrimary  = "primary"
	CallRetry    = "retry"
	CallFallback = "fallback"
)

// Recorder receives per-call events; metrics.Collector implements it.
type Recorder interface {
	UpstreamCall(kind string, err error)
	Fallback(field string, recovered bool)
}

type nopRecorder struct{}

func (nopRecorder) UpstreamCall(string, error) {}
func (nopRecorder) Fallback(string, bool)      {}

// Outcome describes how a record was obtained.
type Outcome struct {
	Strategy  Strategy `json:"strategy"`
	Attempts  int      `json:"attempts"`
	Retried   bool     `json:"retried"`
	Fallbacks []string `json:"fallbacks,omitempty"`
	Cached    bool     `json:"cached"`
}

type Service struct {
	engine   llm.Engine
	strategy Strategy
	fields   []ticket.Field
	rec      Recorder
}

type Option func(*Service)

func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.rec = r
		}
	}
}

// WithFallbackFields sets the fields StrategyFields queries individually, in order.
func WithFallbackFields(fs ...ticket.Field) Option {
	return func(s *Service) { s.fields = fs }
}

func New(engine llm.Engine, strategy Strategy, opts ...Option) *Service {
	s := &Service{
		engine:   engine,
		strategy: strategy,
		fields:   []ticket.Field{ticket.IMEI, ticket.Price},
		rec:      nopRecorder{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) Strategy() Strategy { return s.strategy }
func (s *Service) Engine() llm.Engine { return s.engine }

// Extract forwards in upstream and recovers the record from the reply.
// in is never modified; all upstream calls are sequential.
func (s *Service) Extract(ctx context.Context, in types.Payload) (ticket.Record, Outcome, error) {
	out := Outcome{Strategy: s.strategy}

	var (
		rec ticket.Record
		err error
	)
	switch s.strategy {
	case StrategyNone:
		rec, err = s.single(ctx, in, &out)
	case StrategyFields:
		rec, err = s.withRetry(ctx, in, &out)
		if err == nil {
			s.fillFields(ctx, in, rec, &out)
		}
	default:
		rec, err = s.withRetry(ctx, in, &out)
	}
	if err != nil {
		return nil, out, err
	}
	return rec, out, nil
}

func (s *Service) single(ctx context.Context, in types.Payload, out *Outcome) (ticket.Record, error) {
	text, err := s.call(ctx, in, CallPrimary, out)
	if err != nil {
		return nil, upstreamError(err, CallPrimary)
	}
	rec, err := parse(text)
	if err != nil {
		logx.Error().Err(err).Str("text", util.Truncate(text, 500)).Msg("relay: JSON extraction failed")
		return nil, errx.Internal(err, errx.MalformedMessage)
	}
	return rec, nil
}

func (s *Service) withRetry(ctx context.Context, in types.Payload, out *Outcome) (ticket.Record, error) {
	text, err := s.call(ctx, in, CallPrimary, out)
	if err != nil {
		return nil, upstreamError(err, CallPrimary)
	}

	rec, perr := parse(text)
	if perr == nil && rec.Has(ticket.IMEI) {
		return rec, nil
	}
	if perr != nil {
		logx.Warn().Err(perr).Str("text", util.Truncate(text, 500)).Msg("relay: first attempt unparsable, retrying with reinforced prompt")
	} else {
		logx.Warn().Msg("relay: IMEI not found on first attempt, retrying with reinforced prompt")
	}

	out.Retried = true
	retry := in.WithPrompt(RetryPrompt(in.PromptText()))
	text, err = s.call(ctx, retry, CallRetry, out)
	if err != nil {
		return nil, upstreamError(err, CallRetry)
	}
	rec, perr = parse(text)
	if perr != nil {
		logx.Error().Err(perr).Str("text", util.Truncate(text, 500)).Msg("relay: retry unparsable")
		return nil, errx.Internal(perr, errx.MalformedMessage)
	}
	return rec, nil
}

// fillFields issues one narrow query per missing fallback field. Failures
// are logged and leave the record as it is.
func (s *Service) fillFields(ctx context.Context, in types.Payload, rec ticket.Record, out *Outcome) {
	missing := rec.Missing(s.fields...)
	if len(missing) == 0 {
		return
	}
	if len(in.Images()) == 0 {
		logx.Warn().Msg("relay: payload has no image parts, skipping field fallbacks")
		return
	}
	for _, f := range missing {
		if ctx.Err() != nil {
			logx.Warn().Err(ctx.Err()).Msg("relay: deadline reached, abandoning field fallbacks")
			return
		}
		text, err := s.call(ctx, in.ForField(FieldPrompt(f)), CallFallback, out)
		if err != nil {
			logx.Warn().Err(err).Str("field", string(f)).Msg("relay: field fallback failed")
			s.rec.Fallback(string(f), false)
			continue
		}
		v, ok := scanField(f, text)
		s.rec.Fallback(string(f), ok)
		if !ok {
			logx.Info().Str("field", string(f)).Msg("relay: field fallback found nothing")
			continue
		}
		rec.Merge(f, v)
		out.Fallbacks = append(out.Fallbacks, string(f))
	}
}

func (s *Service) call(ctx context.Context, in types.Payload, kind string, out *Outcome) (string, error) {
	out.Attempts++
	text, err := s.engine.Generate(ctx, in)
	s.rec.UpstreamCall(kind, err)
	return text, err
}

func parse(text string) (ticket.Record, error) {
	obj, err := util.ExtractJSON(text)
	if err != nil {
		return nil, err
	}
	return ticket.Record(obj), nil
}

// upstreamError maps an engine failure to the message clients see.
func upstreamError(err error, kind string) error {
	var se *errx.StatusError
	switch {
	case errors.Is(err, errx.ErrAPIKeyMissing):
		return errx.Internal(err, errx.APIKeyMissingMessage)
	case errors.As(err, &se):
		if kind == CallRetry {
			return errx.Internal(err, fmt.Sprintf("Google API (retry) responded with status %d", se.Code))
		}
		return errx.Internal(err, fmt.Sprintf("Google API responded with status %d", se.Code))
	case errors.Is(err, errx.ErrNoCandidates):
		return errx.Internal(err, errx.NoValidResponseMessage)
	case errors.Is(err, context.DeadlineExceeded):
		return errx.Internal(err, "Request to Google API timed out.")
	}
	logx.Error().Err(err).Str("call", kind).Msg("relay: upstream call failed")
	return errx.Internal(err, "Google API request failed.")
}

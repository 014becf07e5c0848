package handle

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ticket-proxy/api/internal/errx"
	"ticket-proxy/api/internal/llm/types"
	"ticket-proxy/api/internal/logx"
	"ticket-proxy/api/internal/relay"
	"ticket-proxy/api/internal/store"
	"ticket-proxy/api/internal/ticket"
)

// Proxy handles POST /gemini-proxy: the body is a generateContent payload,
// the reply is the record recovered from the model's answer.
func (h *Handle) Proxy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	started := time.Now()

	in, err := decodePayload(http.MaxBytesReader(w, r.Body, h.limit))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "bad json: "+err.Error())
		return
	}
	if len(in.Contents) == 0 {
		writeError(w, http.StatusBadRequest, "contents is required")
		return
	}

	if strings.TrimSpace(h.apiKey) == "" {
		writeError(w, http.StatusInternalServerError, errx.APIKeyMissingMessage)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestDeadline(r, h.timeout))
	defer cancel()

	strategy := string(h.svc.Strategy())
	engine := h.svc.Engine()
	hash, herr := store.PayloadHash(engine.GetModel(), strategy, in)
	if herr != nil {
		logx.Warn().Err(herr).Msg("proxy: payload hash failed, cache and journal disabled for request")
	}

	if rec, ok := h.lookup(ctx, hash); ok {
		h.observe(strategy, true, nil, started)
		setOutcomeHeaders(w, relay.Outcome{Strategy: h.svc.Strategy(), Cached: true})
		writeJSON(w, http.StatusOK, rec)
		return
	}

	rec, out, err := h.svc.Extract(ctx, in)
	h.observe(strategy, false, err, started)
	if err != nil {
		logx.Error().Err(err).
			Str("strategy", strategy).
			Int("attempts", out.Attempts).
			Dur("elapsed", time.Since(started)).
			Msg("proxy: final error")
		setOutcomeHeaders(w, out)
		writeError(w, errx.StatusOf(err), errx.MessageOf(err))
		return
	}

	logx.Info().
		Str("strategy", strategy).
		Int("attempts", out.Attempts).
		Bool("retried", out.Retried).
		Strs("fallbacks", out.Fallbacks).
		Dur("elapsed", time.Since(started)).
		Msg("proxy: record extracted")

	h.remember(ctx, hash, engine.Name(), engine.GetModel(), out, rec)
	setOutcomeHeaders(w, out)
	writeJSON(w, http.StatusOK, rec)
}

// decodePayload reads exactly one JSON object; trailing data is an error.
func decodePayload(body io.Reader) (types.Payload, error) {
	var in types.Payload
	dec := json.NewDecoder(body)
	if err := dec.Decode(&in); err != nil {
		return in, err
	}
	switch _, err := dec.Token(); {
	case err == io.EOF:
		return in, nil
	case err != nil:
		return in, err
	}
	return in, errors.New("unexpected data after the payload object")
}

// lookup serves a previous result: from the cache when one is configured,
// else from the journal within the replay window.
func (h *Handle) lookup(ctx context.Context, hash string) (ticket.Record, bool) {
	if hash == "" {
		return nil, false
	}
	if h.cache != nil {
		rec, ok, err := h.cache.Get(ctx, hash)
		if err != nil {
			logx.Warn().Err(err).Msg("proxy: cache lookup failed")
			return nil, false
		}
		return rec, ok
	}
	if h.journal == nil || h.replay <= 0 {
		return nil, false
	}
	row, err := h.journal.FindByHash(ctx, hash, h.replay)
	if err != nil {
		if !store.IsNotFound(err) {
			logx.Warn().Err(err).Msg("proxy: journal lookup failed")
		}
		return nil, false
	}
	return row.Record, true
}

// remember writes to the cache and journal; neither may fail the request.
func (h *Handle) remember(ctx context.Context, hash, engine, model string, out relay.Outcome, rec ticket.Record) {
	if hash == "" {
		return
	}
	if h.cache != nil {
		if err := h.cache.Set(ctx, hash, rec); err != nil {
			logx.Warn().Err(err).Msg("proxy: cache store failed")
		}
	}
	if h.journal != nil {
		err := h.journal.Insert(ctx, store.Entry{
			PayloadHash: hash,
			Engine:      engine,
			Model:       model,
			Strategy:    string(out.Strategy),
			Attempts:    out.Attempts,
			Fallbacks:   out.Fallbacks,
			Record:      rec,
		})
		if err != nil {
			logx.Warn().Err(err).Msg("proxy: journal insert failed")
		}
	}
}

func (h *Handle) observe(strategy string, cached bool, err error, started time.Time) {
	if h.rec != nil {
		h.rec.Request(strategy, cached, err, time.Since(started))
	}
}

func setOutcomeHeaders(w http.ResponseWriter, out relay.Outcome) {
	hd := w.Header()
	hd.Set("X-Relay-Strategy", string(out.Strategy))
	hd.Set("X-Relay-Attempts", strconv.Itoa(out.Attempts))
	hd.Set("X-Relay-Retried", strconv.FormatBool(out.Retried))
	if len(out.Fallbacks) > 0 {
		hd.Set("X-Relay-Fallbacks", strings.Join(out.Fallbacks, ","))
	}
	if out.Cached {
		hd.Set("X-Relay-Cache", "hit")
	} else {
		hd.Set("X-Relay-Cache", "miss")
	}
}

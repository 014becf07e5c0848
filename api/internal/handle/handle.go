package handle

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"ticket-proxy/api/internal/relay"
	"ticket-proxy/api/internal/store"
	"ticket-proxy/api/internal/ticket"
)

// Cache is the optional response cache (store.Cache).
type Cache interface {
	Get(ctx context.Context, hash string) (ticket.Record, bool, error)
	Set(ctx context.Context, hash string, rec ticket.Record) error
}

// Journal is the optional extraction log (store.TicketRepo).
type Journal interface {
	Insert(ctx context.Context, e store.Entry) error
	FindByHash(ctx context.Context, hash string, maxAge time.Duration) (*store.TicketRow, error)
}

// Recorder receives one event per handled request (metrics.Collector).
type Recorder interface {
	Request(strategy string, cached bool, err error, elapsed time.Duration)
}

type Handle struct {
	svc     *relay.Service
	apiKey  string
	timeout time.Duration
	limit   int64

	cache   Cache
	journal Journal
	replay  time.Duration
	rec     Recorder
}

type Option func(*Handle)

func WithCache(c Cache) Option { return func(h *Handle) { h.cache = c } }
func WithJournal(j Journal) Option { return func(h *Handle) { h.journal = j } }
func WithRecorder(r Recorder) Option { return func(h *Handle) { h.rec = r } }

// WithReplayWindow lets journaled results younger than d answer repeated
// payloads when no cache is configured.
func WithReplayWindow(d time.Duration) Option { return func(h *Handle) { h.replay = d } }

func WithTimeout(d time.Duration) Option {
	return func(h *Handle) {
		if d > 0 {
			h.timeout = d
		}
	}
}

func WithBodyLimit(n int64) Option {
	return func(h *Handle) {
		if n > 0 {
			h.limit = n
		}
	}
}

// New builds the handler set. apiKey is only checked for presence; the
// engine holds its own copy.
func New(svc *relay.Service, apiKey string, opts ...Option) *Handle {
	h := &Handle{
		svc:     svc,
		apiKey:  apiKey,
		timeout: 180 * time.Second,
		limit:   10 << 20,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *Handle) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// requestDeadline honours X-Request-Timeout, then ?timeoutSec=, both in seconds.
func requestDeadline(r *http.Request, def time.Duration) time.Duration {
	if ts := r.Header.Get("X-Request-Timeout"); ts != "" {
		if v, _ := strconv.Atoi(ts); v > 0 {
			return time.Duration(v) * time.Second
		}
	} else if ts := r.URL.Query().Get("timeoutSec"); ts != "" {
		if v, _ := strconv.Atoi(ts); v > 0 {
			return time.Duration(v) * time.Second
		}
	}
	return def
}

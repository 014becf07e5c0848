package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the relay's Prometheus series on its own registry.
type Collector struct {
	reg *prometheus.Registry

	requests  *prometheus.CounterVec
	upstream  *prometheus.CounterVec
	fallbacks *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

func New() *Collector {
	c := &Collector{
		reg: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ticket_proxy_requests_total",
			Help: "Extraction requests by strategy and result.",
		}, []string{"strategy", "result"}),
		upstream: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ticket_proxy_upstream_calls_total",
			Help: "Calls to the generation endpoint by kind and result.",
		}, []string{"kind", "result"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ticket_proxy_fallbacks_total",
			Help: "Per-field fallback queries by field and result.",
		}, []string{"field", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ticket_proxy_request_duration_seconds",
			Help:    "End-to-end extraction latency.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 180},
		}, []string{"strategy"}),
	}
	c.reg.MustRegister(
		c.requests, c.upstream, c.fallbacks, c.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

// UpstreamCall implements relay.Recorder.
func (c *Collector) UpstreamCall(kind string, err error) {
	c.upstream.WithLabelValues(kind, result(err == nil)).Inc()
}

// Fallback implements relay.Recorder.
func (c *Collector) Fallback(field string, recovered bool) {
	r := "miss"
	if recovered {
		r = "recovered"
	}
	c.fallbacks.WithLabelValues(field, r).Inc()
}

func (c *Collector) Request(strategy string, cached bool, err error, elapsed time.Duration) {
	r := result(err == nil)
	if cached && err == nil {
		r = "cached"
	}
	c.requests.WithLabelValues(strategy, r).Inc()
	c.duration.WithLabelValues(strategy).Observe(elapsed.Seconds())
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{Registry: c.reg})
}

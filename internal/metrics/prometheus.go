package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder exports metrics through a Prometheus registry.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	keysIssued         *prometheus.CounterVec
	keysVerified       *prometheus.CounterVec
	verifyCache        *prometheus.CounterVec
	storeDuration      *prometheus.HistogramVec
	keysSwept          prometheus.Counter
	counterSubscribers prometheus.Gauge
}

// NewPrometheus registers the keygate collectors on a fresh registry,
// alongside the Go runtime and process collectors.
func NewPrometheus() *PrometheusRecorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	p := &PrometheusRecorder{
		registry: reg,
		keysIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "keygate_keys_issued_total",
			Help: "Issuance requests by outcome (minted or reused)",
		}, []string{"outcome"}),
		keysVerified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "keygate_keys_verified_total",
			Help: "Verification requests by result",
		}, []string{"result"}),
		verifyCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "keygate_verify_cache_operations_total",
			Help: "Verify cache hits and misses",
		}, []string{"result"}),
		storeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "keygate_store_duration_seconds",
			Help:    "Key store call duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		keysSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "keygate_keys_swept_total",
			Help: "Expired key rows removed by the sweeper",
		}),
		counterSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "keygate_counter_subscribers",
			Help: "Open live counter streams",
		}),
	}

	reg.MustRegister(
		p.keysIssued,
		p.keysVerified,
		p.verifyCache,
		p.storeDuration,
		p.keysSwept,
		p.counterSubscribers,
	)

	return p
}

// Handler serves the registry in Prometheus exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (p *PrometheusRecorder) Registry() *prometheus.Registry {
	return p.registry
}

// IncKeyIssued increments the issuance counter.
func (p *PrometheusRecorder) IncKeyIssued(outcome string) {
	p.keysIssued.WithLabelValues(outcome).Inc()
}

// IncKeyVerified increments the verification counter.
func (p *PrometheusRecorder) IncKeyVerified(result string) {
	p.keysVerified.WithLabelValues(result).Inc()
}

// IncVerifyCacheHit increments cache hits.
func (p *PrometheusRecorder) IncVerifyCacheHit() {
	p.verifyCache.WithLabelValues("hit").Inc()
}

// IncVerifyCacheMiss increments cache misses.
func (p *PrometheusRecorder) IncVerifyCacheMiss() {
	p.verifyCache.WithLabelValues("miss").Inc()
}

// ObserveStoreDuration records a store call duration.
func (p *PrometheusRecorder) ObserveStoreDuration(op string, duration time.Duration) {
	p.storeDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// AddKeysSwept adds swept rows.
func (p *PrometheusRecorder) AddKeysSwept(n int64) {
	p.keysSwept.Add(float64(n))
}

// SetCounterSubscribers sets the subscriber gauge.
func (p *PrometheusRecorder) SetCounterSubscribers(n int) {
	p.counterSubscribers.Set(float64(n))
}

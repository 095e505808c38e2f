package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rl1809/storefront/internal/core/domain"
)

const namespace = "storefront"

// Metrics owns its registry so tests can build as many as they like.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	CartMutations *prometheus.CounterVec
	Adjustments   *prometheus.CounterVec
	Settlements   *prometheus.CounterVec
	SettleLatency prometheus.Histogram
	Requests      *prometheus.CounterVec
	LatencyMS     *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		CartMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cart",
			Name:      "mutations_total",
			Help:      "Cart mutations by operation and result.",
		}, []string{"op", "result"}),
		Adjustments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inventory",
			Name:      "adjustments_total",
			Help:      "Cart lines changed by reconciliation.",
		}, []string{"kind", "reason"}),
		Settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "settlements_total",
			Help:      "Settlement attempts by result.",
		}, []string{"result"}),
		SettleLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "settlement_duration_seconds",
			Help:      "Settlement latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"handler", "status"}),
		LatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"handler"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.CartMutations, m.Adjustments, m.Settlements, m.SettleLatency, m.Requests, m.LatencyMS,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveCartMutation(op string, err error) {
	if m == nil {
		return
	}
	m.CartMutations.WithLabelValues(op, domain.Code(err)).Inc()
}

func (m *Metrics) ObserveAdjustments(adjustments []domain.Adjustment) {
	if m == nil {
		return
	}
	for _, a := range adjustments {
		reason := string(a.Reason)
		if reason == "" {
			reason = "none"
		}
		m.Adjustments.WithLabelValues(string(a.Kind), reason).Inc()
	}
}

func (m *Metrics) ObserveSettlement(err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Settlements.WithLabelValues(domain.Code(err)).Inc()
	m.SettleLatency.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveRequest(handler string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(handler, strconv.Itoa(status)).Inc()
	m.LatencyMS.WithLabelValues(handler).Observe(float64(elapsed.Milliseconds()))
}

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the service's Prometheus collectors. All methods are safe on
// a nil receiver so tests and tools can run without instrumentation.
type Metrics struct {
	RequestCounter           *prometheus.CounterVec
	RequestDurationHistogram *prometheus.HistogramVec
	StatusCategoryCounter    *prometheus.CounterVec

	LedgerPosted       *prometheus.CounterVec
	LedgerRejected     *prometheus.CounterVec
	LedgerPostDuration prometheus.Histogram
	LowStockProducts   prometheus.Gauge
	EventsPublished    *prometheus.CounterVec
}

// New registers every collector on reg under namespace
func New(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		RequestDurationHistogram: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		StatusCategoryCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_status_category_total",
			Help:      "Total number of responses by status category (2xx, 4xx, 5xx)",
		}, []string{"category", "method", "path"}),
		LedgerPosted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_transactions_posted_total",
			Help:      "Ledger entries committed, by movement type",
		}, []string{"type"}),
		LedgerRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_transactions_rejected_total",
			Help:      "Ledger posts that failed, by error kind",
		}, []string{"type", "kind"}),
		LedgerPostDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ledger_post_duration_seconds",
			Help:      "Time spent posting a ledger entry, lock wait included",
			Buckets:   prometheus.DefBuckets,
		}),
		LowStockProducts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "low_stock_products",
			Help:      "Products below their minimum stock at the last scan",
		}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Domain events handed to a sink, by sink and result",
		}, []string{"sink", "result"}),
	}

	reg.MustRegister(
		m.RequestCounter,
		m.RequestDurationHistogram,
		m.StatusCategoryCounter,
		m.LedgerPosted,
		m.LedgerRejected,
		m.LedgerPostDuration,
		m.LowStockProducts,
		m.EventsPublished,
	)
	return m
}

func (m *Metrics) ObserveHTTP(method, path string, status int, d time.Duration) {
	if m == nil {
		return
	}
	statusStr := strconv.Itoa(status)
	m.RequestCounter.WithLabelValues(method, path, statusStr).Inc()
	m.RequestDurationHistogram.WithLabelValues(method, path, statusStr).Observe(d.Seconds())
	if category := statusCategory(status); category != "" {
		m.StatusCategoryCounter.WithLabelValues(category, method, path).Inc()
	}
}

// ObservePost records one ledger post; kind is empty on success
func (m *Metrics) ObservePost(txType, kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.LedgerPostDuration.Observe(d.Seconds())
	if kind == "" {
		m.LedgerPosted.WithLabelValues(txType).Inc()
		return
	}
	m.LedgerRejected.WithLabelValues(txType, kind).Inc()
}

func (m *Metrics) SetLowStock(n int) {
	if m == nil {
		return
	}
	m.LowStockProducts.Set(float64(n))
}

func (m *Metrics) ObservePublish(sink string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.EventsPublished.WithLabelValues(sink, result).Inc()
}

func statusCategory(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500 && status < 600:
		return "5xx"
	}
	return ""
}

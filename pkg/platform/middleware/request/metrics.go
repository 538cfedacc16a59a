package request

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the HTTP surface instruments shared by every route.
type Metrics struct {
	EndpointLatency *prometheus.HistogramVec
	InFlight        prometheus.Gauge
}

// NewMetrics registers the HTTP instruments on reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EndpointLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "credtrust_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern and status class",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"method", "route", "status"}),
		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "credtrust_http_requests_in_flight",
			Help: "HTTP requests currently being served",
		}),
	}
}

func (m *Metrics) observe(method, route string, status int, elapsed time.Duration) {
	m.EndpointLatency.WithLabelValues(method, route, statusClass(status)).Observe(elapsed.Seconds())
}

// statusClass collapses a status code to "2xx", "4xx" and so on.
func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "unknown"
	}
	return strconv.Itoa(code/100) + "xx"
}

// Package metrics provides Prometheus metrics for the dashboard backend.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultNamespace = "cryptodash"

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	registry *prometheus.Registry

	// Upstream metrics
	UpstreamRequests *prometheus.CounterVec
	UpstreamLatency  *prometheus.HistogramVec

	// Orchestrator metrics
	FetchAttempts  *prometheus.CounterVec
	Cycles         *prometheus.CounterVec
	StaleResults   prometheus.Counter
	CycleDuration  prometheus.Histogram
	UsingMockData  prometheus.Gauge
	SeriesPoints   prometheus.Gauge
	LastLiveUpdate prometheus.Gauge
}

// New creates a Metrics instance registered on its own registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = defaultNamespace
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		UpstreamRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "requests_total",
			Help:      "Total number of CoinGecko requests by endpoint and outcome",
		}, []string{"endpoint", "outcome"}),
		UpstreamLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "request_duration_seconds",
			Help:      "CoinGecko request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),

		FetchAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dashboard",
			Name:      "fetch_attempts_total",
			Help:      "Total number of fan-out fetch attempts by result",
		}, []string{"result"}),
		Cycles: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dashboard",
			Name:      "cycles_total",
			Help:      "Total number of completed fetch cycles by outcome",
		}, []string{"outcome"}),
		StaleResults: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dashboard",
			Name:      "stale_results_total",
			Help:      "Total number of fetch results discarded for a superseded selection",
		}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dashboard",
			Name:      "cycle_duration_seconds",
			Help:      "Fetch cycle duration including retries in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		}),
		UsingMockData: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dashboard",
			Name:      "using_mock_data",
			Help:      "1 when the dashboard currently shows synthetic data",
		}),
		SeriesPoints: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dashboard",
			Name:      "series_points",
			Help:      "Number of points in the current series",
		}),
		LastLiveUpdate: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_live_update_timestamp",
			Help:      "Unix timestamp of the last commit of live data",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one upstream request.
func (m *Metrics) ObserveRequest(endpoint, outcome string, elapsed time.Duration) {
	m.UpstreamRequests.WithLabelValues(endpoint, outcome).Inc()
	m.UpstreamLatency.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

// RecordAttempt records the result of one fan-out attempt.
func (m *Metrics) RecordAttempt(result string) {
	m.FetchAttempts.WithLabelValues(result).Inc()
}

// RecordCycle records a finished cycle.
func (m *Metrics) RecordCycle(outcome string, elapsed time.Duration, usingMock bool, points int) {
	m.Cycles.WithLabelValues(outcome).Inc()
	m.CycleDuration.Observe(elapsed.Seconds())
	m.SeriesPoints.Set(float64(points))
	if usingMock {
		m.UsingMockData.Set(1)
		return
	}
	m.UsingMockData.Set(0)
	m.LastLiveUpdate.SetToCurrentTime()
}

// RecordStale records a discarded stale result.
func (m *Metrics) RecordStale() {
	m.StaleResults.Inc()
}

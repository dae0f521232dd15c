package generator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_generation_runs_total",
		Help: "Generation runs by platform and final status",
	}, []string{"platform", "status"})

	productsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_generation_products_written_total",
		Help: "Products written to feed files by platform",
	}, []string{"platform"})

	productErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_generation_product_errors_total",
		Help: "Products skipped because of mapping, validation or write errors",
	}, []string{"platform"})

	breakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_generation_breaker_trips_total",
		Help: "Runs aborted by the error-rate breaker",
	}, []string{"platform"})

	stuckReset = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_generation_stuck_runs_reset_total",
		Help: "Running logs marked failed after exceeding the stuck timeout",
	})

	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "feed_generation_duration_seconds",
		Help:    "Wall time of generation runs",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	}, []string{"platform"})

	outputBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "feed_output_size_bytes",
		Help: "Size of the last published feed file",
	}, []string{"feed"})

	runsInProgress = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "feed_generation_in_progress",
		Help: "Generation runs currently executing in this process",
	})
)

// MetricsRecorder records generator metrics
type MetricsRecorder struct{}

// NewMetricsRecorder creates a new metrics recorder
func NewMetricsRecorder() *MetricsRecorder {
	return &MetricsRecorder{}
}

func (m *MetricsRecorder) runStarted() {
	runsInProgress.Inc()
}

func (m *MetricsRecorder) runFinished(platform, status string, took time.Duration) {
	runsInProgress.Dec()
	runsTotal.WithLabelValues(platform, status).Inc()
	runDuration.WithLabelValues(platform).Observe(took.Seconds())
}

func (m *MetricsRecorder) productWritten(platform string) {
	productsWritten.WithLabelValues(platform).Inc()
}

func (m *MetricsRecorder) productFailed(platform string) {
	productErrors.WithLabelValues(platform).Inc()
}

func (m *MetricsRecorder) breakerTripped(platform string) {
	breakerTrips.WithLabelValues(platform).Inc()
}

func (m *MetricsRecorder) stuckRunReset() {
	stuckReset.Inc()
}

func (m *MetricsRecorder) published(feed string, size int64) {
	outputBytes.WithLabelValues(feed).Set(float64(size))
}

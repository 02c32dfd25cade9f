package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	messagesSent     *prometheus.CounterVec
	errorsTotal      *prometheus.CounterVec
	lastPrice        *prometheus.GaugeVec
	latency          *prometheus.HistogramVec
	forecastsTotal   *prometheus.CounterVec
	modelFailures    *prometheus.CounterVec
	crpsScores       *prometheus.HistogramVec
	calibRefreshes   *prometheus.CounterVec
	calibStaleReuses *prometheus.CounterVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		messagesSent: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "synthcast_messages_sent_total",
				Help: "Total number of messages sent to backend",
			},
			[]string{"backend", "symbol"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "synthcast_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "synthcast_last_price",
				Help: "Last recorded price for a symbol",
			},
			[]string{"symbol"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "synthcast_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		forecastsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "synthcast_forecasts_total",
				Help: "Total forecast requests by asset and result",
			},
			[]string{"asset", "result"},
		),
		modelFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "synthcast_model_failures_total",
				Help: "Ensemble member failures by model",
			},
			[]string{"model"},
		),
		crpsScores: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "synthcast_crps_score",
				Help:    "Observed CRPS scores",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
			},
			[]string{"model"},
		),
		calibRefreshes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "synthcast_calibration_refreshes_total",
				Help: "Calibration refreshes by asset and result",
			},
			[]string{"asset", "result"},
		),
		calibStaleReuses: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "synthcast_calibration_stale_reuses_total",
				Help: "Times a stale calibration entry was reused after a failed refresh",
			},
			[]string{"asset"},
		),
	}
}

// RecordMessageSent records a message sent to a backend.
func (r *Recorder) RecordMessageSent(backend, symbol string) {
	r.messagesSent.WithLabelValues(backend, symbol).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordForecast records a completed forecast request.
func (r *Recorder) RecordForecast(asset, result string) {
	r.forecastsTotal.WithLabelValues(asset, result).Inc()
}

// RecordModelFailure records an ensemble member failure.
func (r *Recorder) RecordModelFailure(model string) {
	r.modelFailures.WithLabelValues(model).Inc()
}

// RecordCRPS records a computed CRPS score.
func (r *Recorder) RecordCRPS(model string, score float64) {
	r.crpsScores.WithLabelValues(model).Observe(score)
}

// RecordCalibration records a calibration refresh attempt.
func (r *Recorder) RecordCalibration(asset, result string) {
	r.calibRefreshes.WithLabelValues(asset, result).Inc()
}

// RecordCalibrationStaleReuse records reuse of a stale entry after refresh failure.
func (r *Recorder) RecordCalibrationStaleReuse(asset string) {
	r.calibStaleReuses.WithLabelValues(asset).Inc()
}

// Package metrics exposes forecaster metrics through Prometheus.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"hilo-forecaster/internal/models"
)

const namespace = "hilo"

// Recorder records forecaster metrics using Prometheus.
type Recorder struct {
	forecastsTotal     *prometheus.CounterVec
	forecastConfidence prometheus.Histogram
	latency            *prometheus.HistogramVec
	backtestAccuracy   prometheus.Gauge
	backtestROI        prometheus.Gauge
	fetchTotal         *prometheus.CounterVec
	cacheTotal         *prometheus.CounterVec
	errorsTotal        *prometheus.CounterVec
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

// New creates a Recorder whose collectors are registered with reg.
func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		forecastsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "forecasts_total",
				Help:      "Total number of forecasts produced",
			},
			[]string{"predicted", "fallback"},
		),
		forecastConfidence: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "forecast_confidence",
				Help:      "Confidence of produced forecasts",
				Buckets:   []float64{0.5, 0.55, 0.6, 0.65, 0.7, 0.75, 0.8, 0.85, 0.9, 0.95, 0.99},
			},
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of operations in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		backtestAccuracy: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "backtest_accuracy",
				Help:      "Accuracy of the most recent backtest",
			},
		),
		backtestROI: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "backtest_roi",
				Help:      "Return on investment of the most recent backtest",
			},
		),
		fetchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "feed_fetch_total",
				Help:      "Total number of upstream history fetches",
			},
			[]string{"source", "status"},
		),
		cacheTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "forecast_cache_total",
				Help:      "Forecast cache lookups by result",
			},
			[]string{"result"},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors encountered",
			},
			[]string{"type"},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"route", "method", "status"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"route", "method"},
		),
	}
}

// RecordForecast records a produced forecast.
func (r *Recorder) RecordForecast(fc *models.Forecast) {
	r.forecastsTotal.WithLabelValues(string(fc.Predicted), strconv.FormatBool(fc.Fallback)).Inc()
	r.forecastConfidence.Observe(fc.Confidence)
}

// RecordBacktest records the headline numbers of a backtest.
func (r *Recorder) RecordBacktest(report *models.BacktestReport) {
	r.backtestAccuracy.Set(report.Accuracy)
	r.backtestROI.Set(report.ROI)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordFetch records an upstream fetch attempt.
func (r *Recorder) RecordFetch(source string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.fetchTotal.WithLabelValues(source, status).Inc()
}

// RecordCache records a forecast cache lookup.
func (r *Recorder) RecordCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheTotal.WithLabelValues(result).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordHTTP records a served HTTP request.
func (r *Recorder) RecordHTTP(route, method string, status int, seconds float64) {
	r.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	r.httpDuration.WithLabelValues(route, method).Observe(seconds)
}

package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hilo-forecaster/internal/models"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.RecordForecast(&models.Forecast{Predicted: models.High, Confidence: 0.8})
	r.RecordForecast(&models.Forecast{Predicted: models.High, Confidence: 0.5, Fallback: true})
	r.RecordFetch("http", nil)
	r.RecordFetch("http", errors.New("boom"))
	r.RecordCache(true)
	r.RecordBacktest(&models.BacktestReport{Accuracy: 0.6, ROI: 0.1})
	r.RecordHTTP("/api/v1/forecast", "GET", 200, 0.01)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.forecastsTotal.WithLabelValues("HIGH", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.forecastsTotal.WithLabelValues("HIGH", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.fetchTotal.WithLabelValues("http", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.cacheTotal.WithLabelValues("hit")))
	assert.Equal(t, 0.6, testutil.ToFloat64(r.backtestAccuracy))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.httpRequests.WithLabelValues("/api/v1/forecast", "GET", "200")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestSeparateRegistriesDoNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hilo-forecaster/internal/config"
	errs "hilo-forecaster/internal/errors"
	"hilo-forecaster/internal/models"
	"hilo-forecaster/internal/service"
	"hilo-forecaster/internal/store"
)

func writeRounds(t *testing.T, n int) string {
	t.Helper()
	rng := rand.New(rand.NewSource(int64(n)))
	rows := make([]string, n)
	for i := range rows {
		dice := []int{rng.Intn(6) + 1, rng.Intn(6) + 1, rng.Intn(6) + 1}
		rows[i] = fmt.Sprintf(`{"session": %d, "dice": [%d, %d, %d]}`, 5000+i, dice[0], dice[1], dice[2])
	}
	path := filepath.Join(t.TempDir(), "rounds.json")
	require.NoError(t, os.WriteFile(path, []byte("["+strings.Join(rows, ",")+"]"), 0o644))
	return path
}

func newTestServer(t *testing.T, feedFile string) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Store.Path = store.MemoryPath
	cfg.Feed.Source = "file"
	cfg.Feed.File = feedFile

	app, err := service.Bootstrap(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })

	return New(app, cfg.Server, zerolog.Nop())
}

func get(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type forecastBody struct {
	Predicted    models.Outcome        `json:"predicted"`
	Confidence   float64               `json:"confidence"`
	Fallback     bool                  `json:"fallback"`
	BasedOnIndex int64                 `json:"based_on_index"`
	Label        string                `json:"label"`
	Rationale    []string              `json:"rationale"`
	Risk         models.RiskAssessment `json:"risk"`
	Rounds       int                   `json:"rounds"`
}

func TestForecastEndpoint(t *testing.T) {
	s := newTestServer(t, writeRounds(t, 60))

	rec := get(t, s, "/api/v1/forecast")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	body := decode[forecastBody](t, rec)
	assert.False(t, body.Fallback)
	assert.Equal(t, int64(5059), body.BasedOnIndex)
	assert.Equal(t, 60, body.Rounds)
	assert.True(t, body.Predicted.IsValid())
	assert.Contains(t, []string{"High", "Low"}, body.Label)
	assert.NotEmpty(t, body.Rationale)
	assert.NotEmpty(t, body.Risk.Label)

	vi := decode[forecastBody](t, get(t, s, "/api/v1/forecast?lang=vi"))
	assert.Contains(t, []string{"Tài", "Xỉu"}, vi.Label)

	assert.Equal(t, http.StatusBadRequest, get(t, s, "/api/v1/forecast?lang=fr").Code)
}

func TestForecastEndpointShortHistoryFallsBack(t *testing.T) {
	s := newTestServer(t, writeRounds(t, 4))

	rec := get(t, s, "/api/v1/forecast")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[forecastBody](t, rec).Fallback)
}

func TestUpstreamFailureIsBadGateway(t *testing.T) {
	s := newTestServer(t, filepath.Join(t.TempDir(), "missing.json"))

	rec := get(t, s, "/api/v1/forecast")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	body := decode[ErrorResponse](t, rec)
	assert.Equal(t, http.StatusBadGateway, body.Status)
	assert.NotEmpty(t, body.Message)
}

func TestBacktestEndpoint(t *testing.T) {
	s := newTestServer(t, writeRounds(t, 70))

	rec := get(t, s, "/api/v1/backtest?lookback=25")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decode[models.BacktestReport](t, rec)
	assert.Equal(t, 25, report.SampleSize)
	assert.Len(t, report.Steps, 25)

	assert.Equal(t, http.StatusBadRequest, get(t, s, "/api/v1/backtest?lookback=-3").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, s, "/api/v1/backtest?lookback=abc").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, s, "/api/v1/backtest?lookback=1.5").Code)
}

func TestRiskEndpoint(t *testing.T) {
	s := newTestServer(t, writeRounds(t, 40))

	rec := get(t, s, "/api/v1/risk?confidence=0")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.RiskVeryHigh, decode[models.RiskAssessment](t, rec).Label)

	rec = get(t, s, "/api/v1/risk")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode[models.RiskAssessment](t, rec).Label)

	assert.Equal(t, http.StatusBadRequest, get(t, s, "/api/v1/risk?confidence=1.5").Code)
}

func TestMotifEndpoint(t *testing.T) {
	s := newTestServer(t, writeRounds(t, 30))

	rec := get(t, s, "/api/v1/motif?window=12&lang=vi")
	require.Equal(t, http.StatusOK, rec.Code)
	var body MotifResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Rationale)
	assert.Contains(t, []string{"Tài", "Xỉu"}, body.Label)

	assert.Equal(t, http.StatusBadRequest, get(t, s, "/api/v1/motif?window=x").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, s, "/api/v1/motif?window=-1").Code)
}

func TestStatsEndpoint(t *testing.T) {
	s := newTestServer(t, writeRounds(t, 50))

	require.Equal(t, http.StatusOK, get(t, s, "/api/v1/forecast").Code)

	rec := get(t, s, "/api/v1/stats")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.Forecasts)
	assert.Equal(t, 1, body.Forecasts.Total)
	require.NotNil(t, body.Freshness)
	assert.True(t, body.Freshness.IsFresh)

	assert.Equal(t, http.StatusBadRequest, get(t, s, "/api/v1/stats?from=yesterday").Code)
	assert.Equal(t, http.StatusOK, get(t, s, "/api/v1/stats?from=2020-01-01T00:00:00Z").Code)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, writeRounds(t, 20))

	require.Equal(t, http.StatusOK, get(t, s, "/api/v1/motif").Code)

	rec := get(t, s, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"HEALTHY"`)

	rec = get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hilo_http_requests_total")
	assert.Contains(t, rec.Body.String(), `route="/api/v1/motif"`)
}

func TestRequestIDIsEchoed(t *testing.T) {
	s := newTestServer(t, writeRounds(t, 20))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestRequestsAreLoggedWithRequestID(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Path = store.MemoryPath
	cfg.Feed.Source = "file"
	cfg.Feed.File = writeRounds(t, 20)

	app, err := service.Bootstrap(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })

	var buf bytes.Buffer
	s := New(app, cfg.Server, zerolog.New(&buf).Level(zerolog.DebugLevel))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "log-42")
	s.Echo().ServeHTTP(httptest.NewRecorder(), req)

	var served map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		if entry["message"] == "Request served" {
			served = entry
		}
	}
	require.NotNil(t, served, "no request log line in %q", buf.String())
	assert.Equal(t, "log-42", served["request_id"])
	assert.Equal(t, "/healthz", served["uri"])
	assert.EqualValues(t, http.StatusOK, served["status"])
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusFor(fmt.Errorf("boom")))
	assert.Equal(t, http.StatusNotFound, statusFor(echo.ErrNotFound))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(errs.DatabaseError(fmt.Errorf("disk I/O error"), "failed to query rounds")))
}

func TestPanicsBecomeServerErrors(t *testing.T) {
	s := newTestServer(t, writeRounds(t, 20))
	s.Echo().GET("/boom", func(echo.Context) error { panic("kaboom") })

	rec := get(t, s, "/boom")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

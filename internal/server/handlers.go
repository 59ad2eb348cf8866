package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	errs "hilo-forecaster/internal/errors"
	"hilo-forecaster/internal/health"
	"hilo-forecaster/internal/logging"
	"hilo-forecaster/internal/models"
	"hilo-forecaster/internal/rationale"
	"hilo-forecaster/internal/store"
)

// LangRequest carries the optional rationale language.
type LangRequest struct {
	Lang string `query:"lang" validate:"omitempty,oneof=en vi vn"`
}

// BacktestRequest holds /backtest query parameters.
type BacktestRequest struct {
	LangRequest
	Lookback string `query:"lookback" validate:"omitempty,numeric"`
}

// RiskRequest holds /risk query parameters. Without a confidence the current forecast's
// confidence is used.
type RiskRequest struct {
	LangRequest
	Confidence string `query:"confidence" validate:"omitempty,numeric"`
}

// MotifRequest holds /motif query parameters.
type MotifRequest struct {
	LangRequest
	Window int `query:"window" validate:"gte=0,lte=1000"`
}

// StatsRequest holds /stats query parameters.
type StatsRequest struct {
	From string `query:"from" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	To   string `query:"to" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

// ForecastResponse is a forecast with its rationale rendered and its risk scored.
type ForecastResponse struct {
	*models.Forecast
	Label     string                `json:"label"`
	Rationale []string              `json:"rationale"`
	Risk      models.RiskAssessment `json:"risk"`
	Rounds    int                   `json:"rounds"`
}

// MotifResponse is a motif detection with its rationale rendered.
type MotifResponse struct {
	models.MotifDetection
	Label     string   `json:"label"`
	Rationale []string `json:"rationale"`
}

// StatsResponse aggregates live forecast performance.
type StatsResponse struct {
	Forecasts *models.ForecastStats `json:"forecasts"`
	Meta      *models.MetaState     `json:"meta,omitempty"`
	Freshness *store.DataFreshness  `json:"freshness,omitempty"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func (s *Server) bind(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return errs.NewValidationError("query", c.QueryString(), err.Error())
	}
	if err := c.Validate(req); err != nil {
		return errs.NewValidationError("query", c.QueryString(), err.Error())
	}
	return nil
}

func (s *Server) langOf(req LangRequest) rationale.Lang {
	if req.Lang == "" {
		return s.lang
	}
	return rationale.ParseLang(req.Lang)
}

func (s *Server) handleForecast(c echo.Context) error {
	var req LangRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()

	h, err := s.app.History(ctx)
	if err != nil {
		return err
	}
	fc, err := s.app.Forecaster.ForecastNext(ctx, h)
	if err != nil {
		return err
	}

	lang := s.langOf(req)
	return c.JSON(http.StatusOK, ForecastResponse{
		Forecast:  fc,
		Label:     rationale.OutcomeLabel(fc.Predicted, lang),
		Rationale: rationale.RenderAll(fc.Reasons, lang),
		Risk:      s.app.Forecaster.ClassifyRisk(fc.Confidence, h),
		Rounds:    len(h),
	})
}

func (s *Server) handleBacktest(c echo.Context) error {
	var req BacktestRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()

	lookback := s.app.Config.Backtest.Lookback
	if req.Lookback != "" {
		n, err := strconv.Atoi(req.Lookback)
		if err != nil {
			return errs.NewValidationError("lookback", req.Lookback, "must be an integer")
		}
		lookback = n
	}

	h, err := s.app.History(ctx)
	if err != nil {
		return err
	}
	report, err := s.app.Forecaster.RunBacktest(ctx, h, lookback)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

func (s *Server) handleRisk(c echo.Context) error {
	var req RiskRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()

	h, err := s.app.History(ctx)
	if err != nil {
		return err
	}

	var confidence float64
	if req.Confidence != "" {
		v, err := strconv.ParseFloat(req.Confidence, 64)
		if err != nil || v < 0 || v > 1 {
			return errs.NewValidationError("confidence", req.Confidence, "must be between 0 and 1")
		}
		confidence = v
	} else {
		fc, err := s.app.Forecaster.ForecastNext(ctx, h)
		if err != nil {
			return err
		}
		confidence = fc.Confidence
	}
	return c.JSON(http.StatusOK, s.app.Forecaster.ClassifyRisk(confidence, h))
}

func (s *Server) handleMotif(c echo.Context) error {
	var req MotifRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}

	h, err := s.app.History(c.Request().Context())
	if err != nil {
		return err
	}

	lang := s.langOf(req.LangRequest)
	d := s.app.Forecaster.DetectDominantMotif(h, req.Window)
	return c.JSON(http.StatusOK, MotifResponse{
		MotifDetection: d,
		Label:          rationale.OutcomeLabel(d.Predicted, lang),
		Rationale:      rationale.RenderAll(d.Reasons, lang),
	})
}

func (s *Server) handleStats(c echo.Context) error {
	var req StatsRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}

	var dr store.DateRange
	if req.From != "" {
		dr.Start, _ = time.Parse(time.RFC3339, req.From)
	}
	if req.To != "" {
		dr.End, _ = time.Parse(time.RFC3339, req.To)
	}

	st, err := s.app.Forecaster.Stats(c.Request().Context(), dr)
	if err != nil {
		return err
	}
	resp := StatsResponse{Forecasts: st, Meta: s.app.Forecaster.MetaState()}
	if s.app.Sync != nil {
		resp.Freshness = s.app.Sync.GetDataFreshness()
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleHealth(c echo.Context) error {
	h := s.app.Health.Run(c.Request().Context())
	status := http.StatusOK
	if h.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, h)
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he.Code
	case errors.Is(err, errs.ErrUpstreamFetch):
		return http.StatusBadGateway
	case errs.IsContractViolation(err):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrDataNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrDatabaseError):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := statusFor(err)
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if m, ok := he.Message.(string); ok {
			msg = m
		}
	}

	logger := logging.FromContext(c.Request().Context())
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Int("status", status).Str("path", c.Path()).Msg("Request failed")
		s.app.Recorder.RecordError("http")
	} else {
		logger.Debug().Err(err).Int("status", status).Msg("Request rejected")
	}

	var werr error
	if c.Request().Method == http.MethodHead {
		werr = c.NoContent(status)
	} else {
		werr = c.JSON(status, ErrorResponse{Status: status, Message: msg})
	}
	if werr != nil {
		logger.Error().Err(werr).Msg("Failed to write error response")
	}
}

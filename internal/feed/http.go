package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	errs "hilo-forecaster/internal/errors"
	"hilo-forecaster/internal/logging"
	"hilo-forecaster/internal/models"
	"hilo-forecaster/pkg/utils"
)

// HTTPConfig holds upstream HTTP feed settings.
type HTTPConfig struct {
	URL             string
	Token           string
	Limit           int
	Timeout         time.Duration
	RateLimit       float64 // requests per second
	Burst           int
	MaxRetries      int
	BreakerFailures uint32
	BreakerTimeout  time.Duration
	RetryDelay      time.Duration
}

var errUndecodable = errors.New("undecodable body")

// DefaultHTTPConfig returns conservative defaults for url.
func DefaultHTTPConfig(url string) HTTPConfig {
	return HTTPConfig{
		URL:             url,
		Limit:           500,
		Timeout:         10 * time.Second,
		RateLimit:       2,
		Burst:           1,
		MaxRetries:      3,
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
		RetryDelay:      200 * time.Millisecond,
	}
}

// HTTPProvider fetches history over HTTP behind a rate limiter and a circuit breaker.
type HTTPProvider struct {
	cfg        HTTPConfig
	client     *resty.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	normalizer *Normalizer
	logger     zerolog.Logger
}

// NewHTTPProvider creates an HTTP provider.
func NewHTTPProvider(cfg HTTPConfig, logger zerolog.Logger) *HTTPProvider {
	def := DefaultHTTPConfig(cfg.URL)
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = def.RateLimit
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = def.BreakerFailures
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = def.BreakerTimeout
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}

	client := resty.New()
	client.SetTimeout(cfg.Timeout)
	client.SetHeader("Accept", "application/json")
	client.SetHeader("User-Agent", "hilo-forecaster")
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}

	p := &HTTPProvider{
		cfg:        cfg,
		client:     client,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		normalizer: NewNormalizer(),
		logger:     logging.WithComponent(logger, "feed"),
	}

	failures := cfg.BreakerFailures
	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "feed-http",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})

	return p
}

// Name implements HistoryProvider.
func (p *HTTPProvider) Name() string { return "http" }

// BreakerState reports the circuit breaker state.
func (p *HTTPProvider) BreakerState() string {
	return p.breaker.State().String()
}

// Fetch implements HistoryProvider.
func (p *HTTPProvider) Fetch(ctx context.Context) (models.History, error) {
	start := time.Now()

	retry := utils.RetryConfig{
		MaxAttempts:   p.cfg.MaxRetries,
		InitialDelay:  p.cfg.RetryDelay,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2,
		Retryable:     retryable,
	}

	var report NormalizeReport
	h, err := utils.RetryWithResult(ctx, retry, func() (models.History, error) {
		body, err := p.fetchOnce(ctx)
		if err != nil {
			return nil, err
		}
		h, r, err := p.normalizer.Parse(body)
		if err != nil {
			return nil, errs.NewFeedError(p.Name(), http.StatusOK, "unparseable response", fmt.Errorf("%w: %v", errUndecodable, err))
		}
		report = r
		return h, nil
	})
	if err != nil {
		var fe *errs.FeedError
		if !errors.As(err, &fe) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			err = errs.NewFeedError(p.Name(), 0, "fetch failed", err)
		}
		logging.LogFetch(p.logger, p.Name(), 0, 0, time.Since(start), err)
		return nil, err
	}

	for _, e := range report.Errors {
		p.logger.Debug().Err(e).Msg("Dropped upstream row")
	}
	logging.LogFetch(p.logger, p.Name(), report.Accepted, report.Dropped, time.Since(start), nil)
	return h, nil
}

func (p *HTTPProvider) fetchOnce(ctx context.Context) ([]byte, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := p.breaker.Execute(func() (interface{}, error) {
		req := p.client.R().SetContext(ctx)
		if p.cfg.Limit > 0 {
			req.SetQueryParam("limit", strconv.Itoa(p.cfg.Limit))
		}

		resp, err := req.Get(p.cfg.URL)
		if err != nil {
			return nil, errs.NewFeedError(p.Name(), 0, "request failed", err)
		}
		if resp.StatusCode() != http.StatusOK {
			return nil, errs.NewFeedError(p.Name(), resp.StatusCode(), utils.Truncate(resp.String(), 200), nil)
		}
		return resp.Body(), nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, errs.NewFeedError(p.Name(), 0, "circuit open", err)
		}
		return nil, err
	}
	return body.([]byte), nil
}

// retryable rejects client errors, undecodable bodies, open circuits and cancellation.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) || errors.Is(err, errUndecodable) {
		return false
	}
	var fe *errs.FeedError
	if errors.As(err, &fe) && fe.Status >= 400 && fe.Status < 500 && fe.Status != http.StatusTooManyRequests {
		return false
	}
	return true
}

// String describes the provider for logs.
func (p *HTTPProvider) String() string {
	return fmt.Sprintf("http feed %s", p.cfg.URL)
}

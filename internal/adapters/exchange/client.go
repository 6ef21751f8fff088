package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/alejandrodnm/edgebot/internal/ports"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout    = 10 * time.Second
	defaultRatePerSec = 10
	defaultRetryWait  = 500 * time.Millisecond

	maxRetries = 3
)

var (
	_ ports.QuoteSource   = (*Client)(nil)
	_ ports.OrderExecutor = (*Client)(nil)
)

// Options configura el Client. Los campos vacíos toman los defaults.
type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	RatePerSec float64
	RetryWait  time.Duration
}

// Client es el HTTP client del exchange con rate limiting, retries y
// circuit breaker. Implementa ports.QuoteSource y ports.OrderExecutor.
type Client struct {
	http      *http.Client
	baseURL   string
	apiKey    string
	limiter   *rate.Limiter
	breaker   *gobreaker.CircuitBreaker
	retryWait time.Duration
}

// NewClient crea un Client. BaseURL es obligatorio.
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = defaultRatePerSec
	}
	if opts.RetryWait <= 0 {
		opts.RetryWait = defaultRetryWait
	}
	burst := max(1, int(opts.RatePerSec/2))

	return &Client{
		http:      &http.Client{Timeout: opts.Timeout},
		baseURL:   opts.BaseURL,
		apiKey:    opts.APIKey,
		limiter:   rate.NewLimiter(rate.Limit(opts.RatePerSec), burst),
		breaker:   newBreaker("exchange"),
		retryWait: opts.RetryWait,
	}
}

// newBreaker abre el circuito tras 3 fallos consecutivos o más de un 5% de
// fallos con al menos 20 requests en la ventana. Los 4xx no cuentan como fallo:
// son respuestas válidas del exchange.
func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     name,
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= 3 {
				return true
			}
			if counts.Requests < 20 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) > 0.05
		},
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.Status < 500
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

// APIError es una respuesta 4xx/5xx del exchange.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// get hace un GET con rate limiting, retries y breaker.
func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	}, out)
}

// post hace un POST JSON con rate limiting, retries y breaker.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}
	return c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return req, nil
	}, out)
}

func (c *Client) do(ctx context.Context, build func() (*http.Request, error), out any) error {
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.doWithRetry(ctx, build, out)
	})
	return err
}

// doWithRetry ejecuta el request con backoff exponencial. Los 429 y 5xx se
// reintentan; los demás 4xx vuelven inmediatamente como *APIError.
func (c *Client) doWithRetry(ctx context.Context, build func() (*http.Request, error), out any) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, attempt-1); err != nil {
				return err
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		req, err := build()
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			slog.Warn("rate limited by exchange", "attempt", attempt+1)
			lastErr = &APIError{Status: resp.StatusCode, Message: "rate limited"}
			continue
		}

		if resp.StatusCode >= 400 {
			apiErr := readAPIError(resp)
			if resp.StatusCode >= 500 {
				lastErr = apiErr
				continue
			}
			return apiErr
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("request failed after %d retries: %w", maxRetries, lastErr)
}

func readAPIError(resp *http.Response) *APIError {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	apiErr := &APIError{Status: resp.StatusCode, Message: string(body)}

	var payload errorResponse
	if json.Unmarshal(body, &payload) == nil && (payload.Code != "" || payload.Message != "") {
		apiErr.Code = payload.Code
		apiErr.Message = payload.Message
	}
	return apiErr
}

// sleep espera con backoff exponencial, respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int) error {
	wait := time.Duration(math.Pow(2, float64(attempt))) * c.retryWait
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

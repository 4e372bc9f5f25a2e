package jobsource

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ClientConfig configures the record store client
type ClientConfig struct {
	BaseURL          string
	Token            string
	Timeout          time.Duration
	RatePerMinute    int
	Burst            int
	MaxFailures      uint32
	OpenTimeout      time.Duration
	HalfOpenRequests uint32
	MaxRetries       int
	RetryDelay       time.Duration
	MaxResponseBytes int64
}

const defaultMaxResponseBytes = 8 << 20

// client is a rate limited, circuit broken JSON client for the record store
type client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	logger     *logrus.Logger

	maxRetries    int
	retryDelay    time.Duration
	maxRetryDelay time.Duration
	maxBody       int64
}

func discardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newClient(cfg ClientConfig, logger *logrus.Logger) (*client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("record store url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid record store url: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = time.Minute
	}
	if cfg.HalfOpenRequests == 0 {
		cfg.HalfOpenRequests = 1
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = defaultMaxResponseBytes
	}
	if logger == nil {
		logger = discardLogger()
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RatePerMinute > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMinute)), burst)
	}

	maxFailures := cfg.MaxFailures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "record-store",
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !isRetryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Record store circuit breaker changed state")
		},
	})

	return &client{
		baseURL:       strings.TrimSuffix(cfg.BaseURL, "/"),
		token:         cfg.Token,
		httpClient:    &http.Client{Timeout: cfg.Timeout},
		limiter:       limiter,
		breaker:       breaker,
		logger:        logger,
		maxRetries:    cfg.MaxRetries,
		retryDelay:    cfg.RetryDelay,
		maxRetryDelay: 10 * cfg.RetryDelay,
		maxBody:       cfg.MaxResponseBytes,
	}, nil
}

// breakerState returns the circuit breaker state name
func (c *client) breakerState() string {
	return c.breaker.State().String()
}

// do performs a request through the limiter and the circuit breaker
func (c *client) do(ctx context.Context, method, target string, query url.Values, body interface{}) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doWithRetry(ctx, method, target, query, body)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

func (c *client) doWithRetry(ctx context.Context, method, target string, query url.Values, body interface{}) ([]byte, error) {
	endpoint := target
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		endpoint = c.baseURL + target
	}
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, NewSourceError(0, "Failed to marshal request body", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	var lastErr error
	retryDelay := c.retryDelay

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay):
			}

			retryDelay *= 2
			if retryDelay > c.maxRetryDelay {
				retryDelay = c.maxRetryDelay
			}
		}

		data, err := c.send(ctx, method, endpoint, payload, attempt)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !isRetryable(err) || ctx.Err() != nil {
			break
		}
	}

	return nil, lastErr
}

func (c *client) send(ctx context.Context, method, endpoint string, payload []byte, attempt int) ([]byte, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return nil, NewSourceError(http.StatusBadRequest, "Failed to create request", map[string]interface{}{
			"error": err.Error(),
			"url":   endpoint,
		})
	}

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.WithFields(logrus.Fields{
		"method":  method,
		"url":     endpoint,
		"attempt": attempt + 1,
	}).Debug("Making HTTP request to record store")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"error":   err.Error(),
			"attempt": attempt + 1,
		}).Warn("Record store request failed")
		return nil, NewSourceError(0, "HTTP request failed", map[string]interface{}{
			"error": err.Error(),
			"url":   endpoint,
		})
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, NewSourceError(0, "Failed to read response body", map[string]interface{}{
			"error": err.Error(),
		})
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case resp.StatusCode >= 400:
		return nil, NewSourceError(resp.StatusCode, http.StatusText(resp.StatusCode), map[string]interface{}{
			"url":  endpoint,
			"body": truncate(string(data), 256),
		})
	case int64(len(data)) > c.maxBody:
		return nil, NewSourceError(resp.StatusCode, "Response body too large", map[string]interface{}{
			"url":   endpoint,
			"limit": c.maxBody,
		})
	}

	return data, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Package openweather fetches current conditions and the 5 day / 3 hour
// forecast from the OpenWeatherMap 2.5 API.
package openweather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"weather-rain-pipeline/internal/models"
	"weather-rain-pipeline/pkg/logging"
	"weather-rain-pipeline/pkg/metrics"
)

const (
	endpointCurrent  = "weather"
	endpointForecast = "forecast"

	maxErrorBody = 512
)

// Options configures a Client.
type Options struct {
	BaseURL    string
	APIKey     string
	Units      string
	Lang       string
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
}

// Client issues the two GET requests the pipeline needs. Every call is
// retried a fixed number of times with a fixed delay; there is no
// exponential backoff and no circuit breaker.
type Client struct {
	httpClient *http.Client
	opts       Options
	logger     *logging.StructuredLogger
	metrics    *metrics.Collector
}

// StatusError is returned when the API answers with a non-2xx status.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("openweather %s: unexpected status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// IsTransient reports whether the status is worth retrying on a later run.
func (e *StatusError) IsTransient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// NewClient creates a client with its own http.Client bounded by opts.Timeout.
func NewClient(opts Options, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *Client {
	if opts.Retries < 1 {
		opts.Retries = 1
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")

	return &Client{
		httpClient: &http.Client{Timeout: opts.Timeout},
		opts:       opts,
		logger:     logger,
		metrics:    metricsCollector,
	}
}

// Current returns the current-conditions payload for a coordinate.
func (c *Client) Current(ctx context.Context, lat, lon float64) (*models.CurrentPayload, error) {
	return fetchWithRetry[models.CurrentPayload](ctx, c, models.SourceCurrent, endpointCurrent, lat, lon)
}

// Forecast returns the 5 day / 3 hour forecast payload for a coordinate.
func (c *Client) Forecast(ctx context.Context, lat, lon float64) (*models.ForecastPayload, error) {
	return fetchWithRetry[models.ForecastPayload](ctx, c, models.SourceForecast, endpointForecast, lat, lon)
}

func fetchWithRetry[T any](ctx context.Context, c *Client, source models.SourceKind, endpoint string, lat, lon float64) (*T, error) {
	timer := c.metrics.NewTimer(c.metrics.FetchDuration.WithLabelValues(string(source)))
	defer timer.ObserveDuration()

	attempt := 0
	operation := func() (*T, error) {
		attempt++
		var payload T
		if err := c.get(ctx, endpoint, lat, lon, &payload); err != nil {
			c.metrics.RecordFetch(string(source), "error")
			return nil, err
		}
		c.metrics.RecordFetch(string(source), "ok")
		return &payload, nil
	}

	notify := func(err error, next time.Duration) {
		c.metrics.RecordFetchRetry(string(source))
		c.logger.Warn(ctx, "[FETCH_RETRY] Upstream call failed, retrying", logging.Fields{
			"source":   string(source),
			"lat":      lat,
			"lon":      lon,
			"attempt":  attempt,
			"retries":  c.opts.Retries,
			"retry_in": next.String(),
		}, err)
	}

	payload, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(c.opts.RetryDelay)),
		backoff.WithMaxTries(uint(c.opts.Retries)),
		backoff.WithNotify(notify),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s after %d attempts: %w", source, attempt, err)
	}
	return payload, nil
}

func (c *Client) get(ctx context.Context, endpoint string, lat, lon float64, dest interface{}) error {
	values := url.Values{}
	values.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	values.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	values.Set("units", c.opts.Units)
	values.Set("lang", c.opts.Lang)
	values.Set("appid", c.opts.APIKey)

	u := fmt.Sprintf("%s/%s?%s", c.opts.BaseURL, endpoint, values.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// url.Error includes the full URL; keep the API key out of logs
		return fmt.Errorf("openweather %s: request failed: %s", endpoint, redact(err.Error(), c.opts.APIKey))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("openweather %s: failed to decode response: %w", endpoint, err)
	}
	return nil
}

func redact(s, secret string) string {
	if secret == "" {
		return s
	}
	return strings.ReplaceAll(s, secret, "***")
}

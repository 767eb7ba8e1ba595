// Package geocode reverse-geocodes coordinates against a Nominatim-compatible
// API.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"nudge/internal/infra/httpclient"
	"nudge/internal/observability"
	"nudge/internal/shared/config"
	nerrors "nudge/internal/shared/errors"
	"nudge/internal/shared/logging"
)

// ErrNoAddress is returned when the service has no address for a point.
var ErrNoAddress = errors.New("geocode: no address at location")

const maxResponseBytes = 256 << 10

// Client reverse-geocodes through Nominatim. Results are cached per
// ~11 m grid cell and concurrent lookups for the same cell share one request.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      *lru.Cache[string, string]
	group      singleflight.Group
	breaker    *nerrors.Breaker
	retry      nerrors.RetryConfig
	logger     logging.Logger
	metrics    *observability.MetricsCollector
	tracer     *observability.TracerProvider
}

// New builds a Client from cfg.
func New(cfg config.GeocoderConfig, logger logging.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://nominatim.openstreetmap.org"
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 512
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	cache, err := lru.New[string, string](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}
	logger = logging.OrNop(logger)
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpclient.New(cfg.Timeout, cfg.UserAgent),
		cache:      cache,
		breaker:    nerrors.NewBreaker(nerrors.DefaultBreakerConfig("geocoder"), logger),
		retry:      nerrors.DefaultRetryConfig(),
		logger:     logger,
	}, nil
}

// WithObservability attaches metrics and tracing.
func (c *Client) WithObservability(m *observability.MetricsCollector, t *observability.TracerProvider) *Client {
	c.metrics = m
	c.tracer = t
	return c
}

// WithRetry overrides the retry policy.
func (c *Client) WithRetry(cfg nerrors.RetryConfig) *Client {
	c.retry = cfg
	return c
}

// WithHTTPClient replaces the transport client; used by tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

func cacheKey(lat, lng float64) string {
	return strconv.FormatFloat(lat, 'f', 4, 64) + "," + strconv.FormatFloat(lng, 'f', 4, 64)
}

// ReverseGeocode returns a human-readable address for lat/lng.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lng float64) (address string, err error) {
	key := cacheKey(lat, lng)
	if addr, ok := c.cache.Get(key); ok {
		c.metrics.RecordGeocode(ctx, "cache", "ok", 0)
		return addr, nil
	}

	ctx, span := c.tracer.StartSpan(ctx, observability.SpanGeocode, attribute.String("nudge.geocode.cell", key))
	defer func() { observability.EndSpan(span, err) }()

	start := time.Now()
	v, err, _ := c.group.Do(key, func() (any, error) {
		return nerrors.ExecuteFunc(c.breaker, ctx, func(ctx context.Context) (string, error) {
			return nerrors.RetryWithResult(ctx, c.retry, func(ctx context.Context) (string, error) {
				addr, err := c.lookup(ctx, lat, lng)
				if err == nil {
					c.cache.Add(key, addr)
				}
				return addr, err
			}, c.logger)
		})
	})
	latency := time.Since(start)
	if err != nil {
		c.metrics.RecordGeocode(ctx, "remote", "error", latency)
		return "", err
	}
	address = v.(string)
	c.metrics.RecordGeocode(ctx, "remote", "ok", latency)
	return address, nil
}

type reverseResponse struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
}

func (c *Client) lookup(ctx context.Context, lat, lng float64) (string, error) {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(lng, 'f', 6, 64))
	q.Set("zoom", "18")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return "", nerrors.NewPermanentError(err, 0)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", nerrors.FromHTTPStatus(resp.StatusCode, fmt.Errorf("reverse geocode: %s", resp.Status))
	}

	body, err := httpclient.ReadAllWithLimit(resp.Body, maxResponseBytes)
	if err != nil {
		return "", fmt.Errorf("read reverse response: %w", err)
	}
	var out reverseResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", nerrors.NewPermanentError(fmt.Errorf("decode reverse response: %w", err), resp.StatusCode)
	}
	if out.Error != "" {
		return "", nerrors.NewPermanentError(fmt.Errorf("%w: %s", ErrNoAddress, out.Error), resp.StatusCode)
	}

	address := out.DisplayName
	if out.Name != "" && !strings.HasPrefix(address, out.Name) {
		address = out.Name + ", " + address
	}
	if strings.TrimSpace(address) == "" {
		return "", nerrors.NewPermanentError(ErrNoAddress, resp.StatusCode)
	}
	return address, nil
}

// Package coingecko is a client for the CoinGecko v3 REST API.
package coingecko

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/rewired-gh/cryptodash/internal/models"
)

const (
	// OrderGainers sorts /coins/markets by descending 24h change.
	OrderGainers = "price_change_percentage_24h_desc"
	// OrderLosers sorts /coins/markets by ascending 24h change.
	OrderLosers = "price_change_percentage_24h_asc"

	endpointMarketChart = "market_chart"
	endpointMarkets     = "markets"
)

// RequestObserver is notified after every upstream request.
type RequestObserver interface {
	ObserveRequest(endpoint, outcome string, elapsed time.Duration)
}

// Client provides access to the CoinGecko API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	perPage    int
	observer   RequestObserver
	now        func() time.Time
}

// ClientConfig holds tuning for the HTTP client.
type ClientConfig struct {
	Timeout           time.Duration
	RequestsPerMinute int
	PerPage           int
	Observer          RequestObserver
}

// NewClient creates a new CoinGecko client.
func NewClient(baseURL string, cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.PerPage <= 0 {
		cfg.PerPage = 30
	}
	limit := rate.Inf
	burst := 1
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Limit(float64(cfg.RequestsPerMinute) / 60)
		burst = min(cfg.RequestsPerMinute, 3)
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter:  rate.NewLimiter(limit, burst),
		perPage:  cfg.PerPage,
		observer: cfg.Observer,
		now:      time.Now,
	}
}

// MarketChart retrieves the historical price and volume series of a coin.
func (c *Client) MarketChart(ctx context.Context, coinID string, days int) (*models.RawSeries, error) {
	u, err := url.Parse(c.baseURL + "/coins/" + url.PathEscape(coinID) + "/market_chart")
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	interval := "daily"
	if days == 1 {
		interval = "hourly"
	}
	q := u.Query()
	q.Set("vs_currency", "usd")
	q.Set("days", strconv.Itoa(days))
	q.Set("interval", interval)
	u.RawQuery = q.Encode()

	var raw models.RawSeries
	if err := c.getJSON(ctx, endpointMarketChart, u, &raw); err != nil {
		return nil, fmt.Errorf("failed to fetch market chart for %s: %w", coinID, err)
	}
	return &raw, nil
}

// Markets retrieves one page of market snapshots in the given order.
func (c *Client) Markets(ctx context.Context, order string) ([]models.MarketSnapshot, error) {
	u, err := url.Parse(c.baseURL + "/coins/markets")
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	q := u.Query()
	q.Set("vs_currency", "usd")
	q.Set("order", order)
	q.Set("per_page", strconv.Itoa(c.perPage))
	q.Set("page", "1")
	q.Set("sparkline", "false")
	q.Set("price_change_percentage", "24h")
	u.RawQuery = q.Encode()

	var snapshots []models.MarketSnapshot
	if err := c.getJSON(ctx, endpointMarkets, u, &snapshots); err != nil {
		return nil, fmt.Errorf("failed to fetch markets (%s): %w", order, err)
	}
	return snapshots, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, u *url.URL, out any) error {
	start := time.Now()
	err := c.doJSON(ctx, u, out)
	if c.observer != nil {
		c.observer.ObserveRequest(endpoint, outcome(err), time.Since(start))
	}
	return err
}

func (c *Client) doJSON(ctx context.Context, u *url.URL, out any) error {
	resp, err := c.doRequest(ctx, u)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}

// doRequest performs a single rate-limited GET. Retries belong to the caller.
func (c *Client) doRequest(ctx context.Context, u *url.URL) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	// Cache-buster that changes once a minute.
	q := u.Query()
	q.Set("_t", strconv.FormatInt(c.now().Unix()/60, 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrNoResponse, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, newAPIError(resp.StatusCode)
	}

	return resp, nil
}

func outcome(err error) string {
	var apiErr *APIError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &apiErr):
		return strconv.Itoa(apiErr.StatusCode)
	case errors.Is(err, ErrMalformedPayload):
		return "malformed"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	default:
		return "error"
	}
}

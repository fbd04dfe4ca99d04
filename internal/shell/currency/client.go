// Package currency provides spot exchange-rate lookups from a currency
// reference service. This is part of the Imperative Shell - handles I/O.
package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/artpar/rackmarket/internal/core/apierr"
)

// DefaultBaseURL is the public endpoint of the reference service.
const DefaultBaseURL = "https://api.frankfurter.dev"

// RateSource looks up the spot price of one unit of base currency in the
// target currency.
type RateSource interface {
	Rate(ctx context.Context, base, symbol string) (float64, error)
}

// Client implements RateSource against the frankfurter.dev API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// Config holds configuration for the currency client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// NewClient creates a currency reference client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With("component", "currency"),
	}
}

// latestResponse is the service's GET /v1/latest response shape.
type latestResponse struct {
	Base  string             `json:"base"`
	Rates map[string]float64 `json:"rates"`
}

// Rate fetches the spot rate for one unit of base in symbol. All
// failures wrap apierr.ErrCurrencyService so catalog fetches that depend
// on the rate fail closed rather than returning unconverted figures.
func (c *Client) Rate(ctx context.Context, base, symbol string) (float64, error) {
	endpoint := fmt.Sprintf("%s/v1/latest?base=%s&symbols=%s", c.baseURL, url.QueryEscape(base), url.QueryEscape(symbol))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", apierr.ErrCurrencyService, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", apierr.ErrCurrencyService, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return 0, fmt.Errorf("%w: status %d from %s", apierr.ErrCurrencyService, resp.StatusCode, c.baseURL)
	}

	var payload latestResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("%w: %v", apierr.ErrCurrencyService, err)
	}

	rate, ok := payload.Rates[symbol]
	if !ok || rate <= 0 {
		return 0, fmt.Errorf("%w: no %s rate in response", apierr.ErrCurrencyService, symbol)
	}

	c.logger.Debug("exchange rate fetched", "base", base, "symbol", symbol, "rate", rate)
	return rate, nil
}

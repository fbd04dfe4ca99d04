// Package forward is the outbound boundary for provider REST calls: a
// generic request surface of {path, method, body} plus a per-call
// credential. Provider base URLs and credential header names live here
// and nowhere else, so the calling layer never embeds them and
// credentials never need to be stored server-side.
package forward

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/artpar/rackmarket/internal/core/apierr"
)

// Request is one provider API call. Path is relative to the provider's
// base URL, without a leading slash.
type Request struct {
	Path   string
	Method string
	Body   []byte
}

// Config describes how to reach one provider API.
type Config struct {
	// Provider is the canonical provider name, used in classified errors.
	Provider string

	// BaseURL is the provider API root, e.g. "https://core.hivelocity.net/api".
	BaseURL string

	// CredentialHeader is the header carrying the caller's credential,
	// e.g. "X-API-KEY" or "Authorization".
	CredentialHeader string

	// CredentialPrefix is prepended to the credential value, e.g.
	// "Bearer " for Authorization-style headers.
	CredentialPrefix string

	Timeout time.Duration
}

// Client forwards requests to one provider API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a forwarding client for one provider.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Provider returns the provider name this client forwards to.
func (c *Client) Provider() string { return c.cfg.Provider }

// Do executes one forwarded call and returns the raw response body. A
// non-2xx status is returned as *apierr.ProviderError carrying the
// payload for classification; the body is still returned for callers
// that want it.
func (c *Client) Do(ctx context.Context, req Request, credential string) ([]byte, error) {
	endpoint := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/" + strings.TrimPrefix(req.Path, "/")

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", c.cfg.Provider, err)
	}

	httpReq.Header.Set("Accept", "application/json")
	if len(req.Body) > 0 {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if credential != "" && c.cfg.CredentialHeader != "" {
		httpReq.Header.Set(c.cfg.CredentialHeader, c.cfg.CredentialPrefix+credential)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", c.cfg.Provider, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", c.cfg.Provider, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return payload, &apierr.ProviderError{
			Provider: c.cfg.Provider,
			Status:   resp.StatusCode,
			Body:     payload,
		}
	}

	return payload, nil
}

// DoJSON executes a forwarded call with a JSON request body (in, may be
// nil) and decodes the response into out (may be nil).
func (c *Client) DoJSON(ctx context.Context, method, path string, in, out any, credential string) error {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", c.cfg.Provider, err)
		}
	}

	payload, err := c.Do(ctx, Request{Path: path, Method: method, Body: body}, credential)
	if err != nil {
		return err
	}

	if out != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("failed to decode %s response: %w", c.cfg.Provider, err)
		}
	}
	return nil
}

// Package connector talks to tenant-configured external HTTP APIs: it
// authenticates, rate limits and retries requests, maps fields between
// external and Hub shapes, validates records and walks paginated resources.
package connector

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

	"github.com/cenkalti/backoff/v4"
	"github.com/synchub/backend/internal/domain/connector"
	"github.com/synchub/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// maxResponseSize caps how much of a response body is read (10MB)
const maxResponseSize = 10 * 1024 * 1024

// Request describes one call against the connector's base URL
type Request struct {
	Method   string
	Endpoint string
	Query    map[string]string
	Body     any
	Headers  map[string]string
}

// Client executes requests for one connector configuration
type Client struct {
	cfg        *connector.Config
	httpClient *http.Client
	auth       authenticator
	limiter    *rate.Limiter
	mapper     *Mapper
	metrics    *telemetry.Metrics
	logger     *zap.Logger
	pageDelay  time.Duration
}

// ClientOptions carries the collaborators a Client shares with its peers
type ClientOptions struct {
	Limiters   *LimiterRegistry
	HTTPClient *http.Client
	Mapper     *Mapper
	Metrics    *telemetry.Metrics
	Logger     *zap.Logger
	PageDelay  time.Duration
	Defaults   connector.RequestDefaults
}

// NewClient resolves the auth strategy and limiter for cfg. An unknown auth
// type is a *ConfigError.
func NewClient(cfg *connector.Config, opts ClientOptions) (*Client, error) {
	cfg.ApplyDefaultsFrom(opts.Defaults)

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	auth, err := newAuthenticator(cfg, httpClient)
	if err != nil {
		return nil, err
	}
	limiters := opts.Limiters
	if limiters == nil {
		limiters = NewLimiterRegistry()
	}
	mapper := opts.Mapper
	if mapper == nil {
		mapper = NewMapper(NewExpressionEngine(false), opts.Logger)
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		auth:       auth,
		limiter:    limiters.Get(cfg.ID, cfg.RequestsPerMinute),
		mapper:     mapper,
		metrics:    opts.Metrics,
		logger:     log.With(zap.String("connector_id", cfg.ID.String()), zap.String("connector", cfg.Name)),
		pageDelay:  opts.PageDelay,
	}, nil
}

// Config returns the connector configuration the client was built from
func (c *Client) Config() *connector.Config { return c.cfg }

// Mapper returns the field mapper used by the client
func (c *Client) Mapper() *Mapper { return c.mapper }

// Do waits for a rate-limit token and executes the request, retrying
// network errors, 5xx and 429 with exponential backoff. Anything else,
// including every 2xx, ends the loop. A JSON body is returned decoded, any
// other body as a string, and an empty body as nil.
func (c *Client) Do(ctx context.Context, r Request) (any, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	method := strings.ToUpper(r.Method)
	if method == "" {
		method = http.MethodGet
	}
	target, err := c.buildURL(r.Endpoint, r.Query)
	if err != nil {
		return nil, err
	}
	var payload []byte
	if r.Body != nil && hasBody(method) {
		if payload, err = json.Marshal(r.Body); err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
	}

	attempt := 0
	op := func() (any, error) {
		attempt++
		c.logger.Debug("connector request",
			zap.String("method", method),
			zap.String("endpoint", r.Endpoint),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.cfg.MaxRetries))

		result, _, err := c.send(ctx, method, target, payload, r.Headers)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil || !retryable(err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("connector request failed, retrying",
			zap.String("endpoint", r.Endpoint),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	result, err := backoff.RetryNotifyWithData(op, c.backoff(ctx), notify)
	if err != nil {
		c.logger.Error("connector request failed",
			zap.String("method", method),
			zap.String("endpoint", r.Endpoint),
			zap.Int("attempts", attempt),
			zap.Error(err))
		return nil, err
	}
	return result, nil
}

// backoff waits retryDelay, 2*retryDelay, 4*retryDelay... between attempts
// and allows MaxRetries attempts in total.
func (c *Client) backoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.RetryDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = c.cfg.RetryDelay << uint(c.cfg.MaxRetries)
	b.MaxElapsedTime = 0
	b.Reset()

	retries := c.cfg.MaxRetries - 1
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

func (c *Client) send(ctx context.Context, method, target string, payload []byte, headers map[string]string) (any, int, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, 0, configErrorf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if err := c.auth.apply(req); err != nil {
		return nil, 0, err
	}
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordConnectorRequest(ctx, method, 0, time.Since(start))
		return nil, 0, &NoResponseError{Err: err}
	}
	defer resp.Body.Close()
	c.metrics.RecordConnectorRequest(ctx, method, resp.StatusCode, time.Since(start))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, resp.StatusCode, &NoResponseError{Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode, &UpstreamStatusError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, resp.StatusCode, nil
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return string(raw), resp.StatusCode, nil
	}
	return decoded, resp.StatusCode, nil
}

// retryable reports whether a request may be sent again: only when no
// response arrived or the upstream answered 5xx or 429.
func retryable(err error) bool {
	var noResp *NoResponseError
	if errors.As(err, &noResp) {
		return true
	}
	var upstream *UpstreamStatusError
	return errors.As(err, &upstream) && upstream.Retryable()
}

func (c *Client) buildURL(endpoint string, query map[string]string) (string, error) {
	u, err := url.Parse(strings.TrimRight(c.cfg.BaseURL, "/") + endpoint)
	if err != nil {
		return "", configErrorf("invalid url %q: %v", c.cfg.BaseURL+endpoint, err)
	}
	if len(query) > 0 {
		q := u.Query()
		for k, v := range query {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func hasBody(method string) bool {
	return method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch
}

// ConnectionTestResult is the outcome of a single test request
type ConnectionTestResult struct {
	Success    bool   `json:"success"`
	StatusCode int    `json:"statusCode,omitempty"`
	LatencyMs  int64  `json:"latencyMs"`
	Message    string `json:"message"`
}

// TestConnection issues one GET against endpoint (the base URL when empty)
// without retries.
func (c *Client) TestConnection(ctx context.Context, endpoint string) ConnectionTestResult {
	target, err := c.buildURL(endpoint, nil)
	if err != nil {
		return ConnectionTestResult{Message: err.Error()}
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return ConnectionTestResult{Message: err.Error()}
	}

	start := time.Now()
	_, status, err := c.send(ctx, http.MethodGet, target, nil, nil)
	result := ConnectionTestResult{StatusCode: status, LatencyMs: time.Since(start).Milliseconds()}
	if err != nil {
		result.Message = err.Error()
		return result
	}
	result.Success = true
	result.Message = "connection successful"
	return result
}

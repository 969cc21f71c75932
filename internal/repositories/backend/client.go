// Package backend talks to the analysis back-end REST API.
package backend

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

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/kalitka1293/instagram-scan/internal/platform/observability"
	"github.com/kalitka1293/instagram-scan/internal/repositories"
)

const (
	defaultTimeout       = 20 * time.Second
	maxResponseBodyBytes = 4 << 20
	userAgent            = "instagram-scan-console/1"
)

// Client implements the profile, enrichment, tariff, entitlement and purchase repositories
// against the back-end HTTP API.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	logger  *zap.Logger
	metrics *observability.Metrics
	clock   func() time.Time
}

var (
	_ repositories.ProfileRepository     = (*Client)(nil)
	_ repositories.EnrichmentRepository  = (*Client)(nil)
	_ repositories.TariffRepository      = (*Client)(nil)
	_ repositories.EntitlementRepository = (*Client)(nil)
	_ repositories.PurchaseRepository    = (*Client)(nil)
)

// Option customises the Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client, primarily for tests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.http.Timeout = timeout
		}
	}
}

// WithLogger attaches a logger used for call diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records call outcomes on the supplied instruments.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(c *Client) {
		c.metrics = metrics
	}
}

// WithClock injects the clock used to stamp entitlement checks.
func WithClock(clock func() time.Time) Option {
	return func(c *Client) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// New constructs a Client rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("backend client: invalid base url %q", baseURL)
	}
	client := &Client{
		baseURL: parsed,
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  zap.NewNop(),
		clock:   time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// Ping probes the back-end root endpoint for readiness checks.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, "backend.ping", http.MethodGet, "/health", nil)
	return err
}

// do executes one call and returns the response body of a 2xx reply. Non-2xx replies are
// mapped to repositories.Error categories with the remote detail attached.
func (c *Client) do(ctx context.Context, op, method, path string, payload any) (body []byte, err error) {
	ctx, finish := observability.StartClientSpan(ctx, op,
		attribute.String("http.request.method", method),
		attribute.String("url.path", path),
	)
	defer func() {
		finish(err)
		c.metrics.RecordBackendCall(ctx, op, outcome(err))
	}()

	var reader io.Reader
	if payload != nil {
		encoded, encErr := json.Marshal(payload)
		if encErr != nil {
			return nil, fmt.Errorf("%s: encode request: %w", op, encErr)
		}
		reader = bytes.NewReader(encoded)
	}

	endpoint := c.baseURL.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	observability.InjectTraceHeaders(ctx, req.Header)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, repositories.NewUnavailableError(op, "", err)
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if err != nil {
		return nil, repositories.NewUnavailableError(op, "", fmt.Errorf("read response: %w", err))
	}

	c.logger.Debug("backend call",
		zap.String("op", op),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}
	return nil, statusError(op, resp.StatusCode, body)
}

func statusError(op string, status int, body []byte) error {
	detail := errorDetail(body)
	switch {
	case status == http.StatusNotFound:
		return repositories.NewNotFoundError(op, detail)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return repositories.NewInvalidError(op, detail)
	default:
		if detail == "" {
			detail = http.StatusText(status)
		}
		return repositories.NewUnavailableError(op, detail, fmt.Errorf("unexpected status %d", status))
	}
}

// errorDetail pulls the human readable reason out of an error payload. FastAPI style
// validation errors carry a list of {msg} objects under detail.
func errorDetail(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	detail := gjson.GetBytes(body, "detail")
	if detail.IsArray() {
		var msgs []string
		for _, msg := range detail.Get("#.msg").Array() {
			if text := strings.TrimSpace(msg.String()); text != "" {
				msgs = append(msgs, text)
			}
		}
		return strings.Join(msgs, "; ")
	}
	if text := strings.TrimSpace(detail.String()); text != "" {
		return text
	}
	return strings.TrimSpace(gjson.GetBytes(body, "message").String())
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return "not_found"
		case repoErr.IsInvalid():
			return "invalid"
		}
	}
	return "error"
}

func parseJSON(op string, body []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, repositories.NewUnavailableError(op, "", errors.New("malformed json response"))
	}
	return gjson.ParseBytes(body), nil
}

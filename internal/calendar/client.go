// Package calendar talks to the remote calendar service: availability
// lookups, booking submission, conversation summaries and the Q&A relay.
//
// Nothing in this package returns transport failures to the dialogue. Lookups
// degrade to empty results and submissions degrade to a Failure outcome.
package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/wolfman30/convo-widget/internal/observability/metrics"
	"github.com/wolfman30/convo-widget/pkg/logging"
)

const (
	defaultBaseURL = "https://two47convobot.onrender.com"
	defaultTimeout = 15 * time.Second
	maxBodyBytes   = 1 << 20
)

var tracer = otel.Tracer("widget.internal.calendar")

// Account identifies the widget owner on the calendar service.
type Account struct {
	ClientID string
	Token    string
}

// Client wraps the calendar service REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *logging.Logger
	metrics    *metrics.BookingMetrics
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the transport, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithMetrics records call counts and latency.
func WithMetrics(m *metrics.BookingMetrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient constructs a calendar client.
func NewClient(baseURL string, logger *logging.Logger, opts ...Option) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	if logger == nil {
		logger = logging.Default()
	}
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// rawResponse is a completed HTTP exchange. Non-2xx statuses are not errors
// here; callers decide how to read the body.
type rawResponse struct {
	status int
	body   []byte
}

func (r rawResponse) ok() bool {
	return r.status >= 200 && r.status <= 299
}

func (c *Client) do(ctx context.Context, operation, method, path string, body interface{}) (rawResponse, error) {
	start := time.Now()
	resp, err := c.send(ctx, method, path, body)

	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case !resp.ok():
		outcome = fmt.Sprintf("http_%d", resp.status)
	}
	c.metrics.ObserveCalendarCall(operation, outcome, time.Since(start).Seconds())
	return resp, err
}

func (c *Client) send(ctx context.Context, method, path string, body interface{}) (rawResponse, error) {
	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return rawResponse{}, fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return rawResponse{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return rawResponse{}, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return rawResponse{}, fmt.Errorf("read response: %w", err)
	}
	return rawResponse{status: resp.StatusCode, body: respBody}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

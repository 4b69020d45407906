// Package worker implements protocol.ServiceClient against a remote generation worker over HTTP.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/canvasflow/canvasflow/pkg/models"
	"github.com/canvasflow/canvasflow/pkg/protocol"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxErrorBody = 4 << 10

// ErrInvalidBaseURL is returned when the worker base URL is not an absolute http(s) URL.
var ErrInvalidBaseURL = errors.New("invalid worker base URL")

// Client calls POST {base}/v1/{capability} for every request. It never retries.
type Client struct {
	baseURL    *url.URL
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

type Option func(*Client)

// WithToken sends the token as a bearer Authorization header.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithHTTPClient replaces the instrumented default HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func NewClient(baseURL string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBaseURL, err)
	}

	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, baseURL)
	}

	c := &Client{
		baseURL: parsed,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.logger = c.logger.With("module", "worker_client")

	return c, nil
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Invoke sends req to the worker and decodes the returned artifact.
func (c *Client) Invoke(ctx context.Context, req protocol.ServiceRequest) (models.Artifact, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return models.Artifact{}, protocol.NewServiceError(req.Capability, protocol.ErrInvalidInput, "failed to encode request", err)
	}

	endpoint := c.baseURL.JoinPath("v1", string(req.Capability))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return models.Artifact{}, protocol.NewServiceError(req.Capability, protocol.ErrProviderError, "failed to build request", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	if req.RunID != "" {
		httpReq.Header.Set("X-Run-Id", req.RunID)
	}

	start := time.Now()

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return models.Artifact{}, c.transportError(ctx, req.Capability, err)
	}

	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.ErrorContext(ctx, "failed to close response body", "error", closeErr)
		}
	}()

	c.logger.DebugContext(ctx, "Worker responded",
		"capability", req.Capability,
		"node_id", req.NodeID,
		"status", resp.StatusCode,
		"duration", time.Since(start))

	if resp.StatusCode != http.StatusOK {
		return models.Artifact{}, statusError(req.Capability, resp)
	}

	var artifact models.Artifact
	if err := json.NewDecoder(resp.Body).Decode(&artifact); err != nil {
		return models.Artifact{}, protocol.NewServiceError(req.Capability, protocol.ErrProviderError, "malformed worker response", err)
	}

	if artifact.URI == "" && artifact.Text == "" {
		return models.Artifact{}, protocol.NewServiceError(req.Capability, protocol.ErrProviderError, "worker returned an empty artifact", nil)
	}

	return artifact, nil
}

func (c *Client) transportError(ctx context.Context, capability protocol.Capability, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return protocol.NewServiceError(capability, protocol.ErrTimeout, "request deadline exceeded", err)
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return protocol.NewServiceError(capability, protocol.ErrTimeout, "request timed out", err)
	}

	if ctx.Err() != nil {
		return protocol.NewServiceError(capability, protocol.ErrProviderError, "request cancelled", err)
	}

	return protocol.NewServiceError(capability, protocol.ErrProviderError, "request failed", err)
}

func statusError(capability protocol.Capability, resp *http.Response) error {
	message := fmt.Sprintf("worker returned status %d", resp.StatusCode)

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var payload errorResponse
	if json.Unmarshal(raw, &payload) == nil {
		if detail := firstNonEmpty(payload.Message, payload.Error); detail != "" {
			message = fmt.Sprintf("%s: %s", message, detail)
		}
	}

	return protocol.NewServiceError(capability, kindForStatus(resp.StatusCode), message, nil)
}

func kindForStatus(status int) error {
	switch status {
	case http.StatusTooManyRequests:
		return protocol.ErrRateLimited
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return protocol.ErrInvalidInput
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return protocol.ErrTimeout
	default:
		return protocol.ErrProviderError
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}

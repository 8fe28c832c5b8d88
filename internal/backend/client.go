package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"reelrecon/internal/logging"
)

const (
	defaultBaseURL        = "http://127.0.0.1:5000"
	defaultRequestTimeout = 30 * time.Second
	maxErrorBody          = 4 << 10
)

// Client wraps the ReelRecon backend HTTP API. It is stateless apart from
// connection settings and safe for concurrent use.
type Client struct {
	baseURL    string
	token      string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

// Option customizes the backend client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithToken sets the bearer token sent on every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

// WithRequestTimeout bounds each round trip. Callers may still pass a
// shorter deadline through the context.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithLogger attaches a logger for request diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New constructs a backend client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	client := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		timeout:    defaultRequestTimeout,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.baseURL == "" {
		client.baseURL = defaultBaseURL
	}
	client.logger = logging.NewComponentLogger(client.logger, "backend")
	return client
}

// BaseURL returns the configured backend address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) endpoint(path string, query url.Values) (string, error) {
	endpoint, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return "", fmt.Errorf("build url for %s: %w", path, err)
	}
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	return endpoint, nil
}

// do issues one request and decodes a JSON response into out when non-nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	raw, err := c.doRaw(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("backend %s %s: decode response: %w", method, path, err)
	}
	return nil
}

func (c *Client) doRaw(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	endpoint, err := c.endpoint(path, query)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("backend %s %s: encode request: %w", method, path, err)
		}
		reader = bytes.NewReader(encoded)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("backend %s %s: request: %w", method, path, err)
	}
	requestID, ok := logging.RequestIDFromContext(ctx)
	if !ok {
		requestID = uuid.NewString()
	}
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("backend %s %s: read body: %w", method, path, err)
	}
	c.logger.Debug("backend request",
		logging.String("method", method),
		logging.String("path", path),
		logging.Int("status", resp.StatusCode),
		logging.Duration("elapsed", time.Since(started)),
		logging.String(logging.FieldCorrelationID, requestID),
	)
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, decodeAPIError(path, resp.StatusCode, payload)
	}
	return payload, nil
}

func decodeAPIError(path string, status int, payload []byte) error {
	apiErr := &APIError{StatusCode: status, Path: path}
	var body struct {
		Error     string `json:"error"`
		ErrorCode string `json:"error_code"`
		Message   string `json:"message"`
	}
	if json.Unmarshal(payload, &body) == nil {
		apiErr.Code = strings.TrimSpace(body.ErrorCode)
		apiErr.Message = strings.TrimSpace(firstNonEmpty(body.Error, body.Message))
	}
	if apiErr.Message == "" && apiErr.Code == "" {
		text := strings.TrimSpace(string(payload))
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody]
		}
		apiErr.Message = text
	}
	return apiErr
}

// Health probes the backend's liveness endpoint. Any 2xx response is healthy.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.doRaw(ctx, http.MethodGet, "/api/health", nil, nil)
	return err
}

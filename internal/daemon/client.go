package daemon

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// ErrUnauthorized reports a request the API rejected for its token.
var ErrUnauthorized = errors.New("unauthorized")

// Client calls a running watcher's status API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient builds a client for the API bound at addr ("host:port" or a URL).
func NewClient(addr, token string) *Client {
	addr = strings.TrimSpace(addr)
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return &Client{
		baseURL: strings.TrimRight(addr, "/"),
		token:   strings.TrimSpace(token),
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

// Status fetches GET /api/status.
func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var resp StatusResponse
	err := c.do(ctx, http.MethodGet, "/api/status", nil, nil, &resp)
	return resp, err
}

// Events fetches events after since.
func (c *Client) Events(ctx context.Context, since int64, limit int) (EventsResponse, error) {
	query := url.Values{}
	query.Set("since", strconv.FormatInt(since, 10))
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var resp EventsResponse
	err := c.do(ctx, http.MethodGet, "/api/events", query, nil, &resp)
	return resp, err
}

// Track hands a job to the watcher.
func (c *Client) Track(ctx context.Context, req TrackRequest) (TrackResponse, error) {
	var resp TrackResponse
	err := c.do(ctx, http.MethodPost, "/api/track", nil, req, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("watcher api %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("watcher api %s: %w", path, ErrUnauthorized)
	}
	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("watcher api %s: %d %s", path, resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("watcher api %s: status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

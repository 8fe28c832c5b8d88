package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// ListAssets lists assets from the structured store.
func (c *Client) ListAssets(ctx context.Context, query AssetQuery) ([]StructuredAsset, error) {
	values := url.Values{}
	if len(query.Types) > 0 {
		values.Set("type", strings.Join(query.Types, ","))
	}
	if query.Starred {
		values.Set("starred", "true")
	}
	if query.CollectionID != "" {
		values.Set("collection_id", query.CollectionID)
	}
	if query.Limit > 0 {
		values.Set("limit", strconv.Itoa(query.Limit))
	}
	var resp struct {
		Assets []StructuredAsset `json:"assets"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/assets", values, nil, &resp); err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	return resp.Assets, nil
}

// GetAsset fetches one structured asset.
func (c *Client) GetAsset(ctx context.Context, id string) (StructuredAsset, error) {
	if strings.TrimSpace(id) == "" {
		return StructuredAsset{}, errors.New("get asset: id required")
	}
	var asset StructuredAsset
	if err := c.do(ctx, http.MethodGet, "/api/assets/"+url.PathEscape(id), nil, nil, &asset); err != nil {
		return StructuredAsset{}, fmt.Errorf("get asset %s: %w", id, err)
	}
	return asset, nil
}

// GetAssetContent fetches the separately stored body of an asset.
func (c *Client) GetAssetContent(ctx context.Context, id string) (string, error) {
	var resp struct {
		Content string `json:"content"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/assets/"+url.PathEscape(id)+"/content", nil, nil, &resp); err != nil {
		return "", fmt.Errorf("asset %s content: %w", id, err)
	}
	return resp.Content, nil
}

// DeleteAsset removes an asset from the structured store.
func (c *Client) DeleteAsset(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/api/assets/"+url.PathEscape(id), nil, nil, nil); err != nil {
		return fmt.Errorf("delete asset %s: %w", id, err)
	}
	return nil
}

// ToggleAssetStar flips the starred flag in the structured store and returns
// the new value.
func (c *Client) ToggleAssetStar(ctx context.Context, id string) (bool, error) {
	var resp struct {
		Starred bool `json:"starred"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/assets/"+url.PathEscape(id)+"/star", nil, nil, &resp); err != nil {
		return false, fmt.Errorf("star asset %s: %w", id, err)
	}
	return resp.Starred, nil
}

// ListHistory returns the legacy scrape history log.
func (c *Client) ListHistory(ctx context.Context) ([]HistoryEntry, error) {
	var entries []HistoryEntry
	if err := c.do(ctx, http.MethodGet, "/api/history", nil, nil, &entries); err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return entries, nil
}

// DeleteHistory removes a legacy history entry.
func (c *Client) DeleteHistory(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/api/history/"+url.PathEscape(id), nil, nil, nil); err != nil {
		return fmt.Errorf("delete history %s: %w", id, err)
	}
	return nil
}

// ToggleHistoryStar flips the starred flag on a legacy history entry.
func (c *Client) ToggleHistoryStar(ctx context.Context, id string) (bool, error) {
	var resp struct {
		Starred bool `json:"starred"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/history/"+url.PathEscape(id)+"/star", nil, nil, &resp); err != nil {
		return false, fmt.Errorf("star history %s: %w", id, err)
	}
	return resp.Starred, nil
}

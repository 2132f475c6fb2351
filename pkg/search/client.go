package search

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"researchvault/pkg/vault"
)

// Client resolves queries cache-first, falling back to the live
// provider and recording fresh results. Concurrent mission runs racing
// on the same query are deduplicated by the normalized-query hash.
type Client struct {
	Store    *vault.Store
	Provider Provider
	TTL      time.Duration // zero means vault.DefaultCacheTTL
}

// Search returns the result tree and its origin ("cache" or "live").
func (c *Client) Search(ctx context.Context, query string) (map[string]any, string, error) {
	cached, ok, err := c.Store.CachedSearch(ctx, query, c.TTL)
	if err != nil {
		return nil, "", err
	}
	if ok {
		var result map[string]any
		if err := json.Unmarshal([]byte(cached), &result); err == nil {
			return result, "cache", nil
		}
		// Corrupt cache entry: fall through to a live call.
	}

	result, err := c.Provider.Search(ctx, query)
	if err != nil {
		return nil, "", err
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return nil, "", fmt.Errorf("marshal search result: %w", err)
	}
	if err := c.Store.CacheSearch(ctx, query, string(raw)); err != nil {
		return nil, "", err
	}
	return result, "live", nil
}

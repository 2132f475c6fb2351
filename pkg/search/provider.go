// Package search defines the SearchProvider capability consumed by the
// verification runner, a Brave-backed implementation, and a client that
// consults the vault's search cache before going live.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"researchvault/pkg/protocol"
)

// Provider is the capability contract for an external search backend.
// Implementations must return a MissingCredentialsError (not a generic
// failure) when they are unconfigured, so the mission runner can mark
// missions blocked instead of endlessly retrying them.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string) (map[string]any, error)
}

const braveEndpoint = "https://api.search.brave.com/res/v1/web/search"

// Brave queries the Brave web search API.
type Brave struct {
	APIKey  string
	BaseURL string // test override; defaults to the public endpoint
	Client  *http.Client
}

// NewBrave builds a Brave provider keyed from the BRAVE_API_KEY
// environment variable. The key may be empty; Search reports the
// missing credentials at call time.
func NewBrave() *Brave {
	return &Brave{APIKey: os.Getenv("BRAVE_API_KEY")}
}

// Name implements Provider.
func (b *Brave) Name() string { return "brave" }

// Search implements Provider.
func (b *Brave) Search(ctx context.Context, query string) (map[string]any, error) {
	if b.APIKey == "" {
		return nil, &protocol.MissingCredentialsError{Provider: "brave", EnvVar: "BRAVE_API_KEY"}
	}

	base := b.BaseURL
	if base == "" {
		base = braveEndpoint
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?q="+url.QueryEscape(query), nil)
	if err != nil {
		return nil, fmt.Errorf("build brave request: %w", err)
	}
	req.Header.Set("X-Subscription-Token", b.APIKey)
	req.Header.Set("Accept", "application/json")

	client := b.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("brave search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("brave search: status %d: %s", resp.StatusCode, body)
	}

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode brave response: %w", err)
	}
	return result, nil
}

// AnyConfigured reports whether any key-based search backend is
// configured in the environment. The strategy engine uses this to flag
// VERIFY_RUN recommendations that would run without a strong backend.
func AnyConfigured() bool {
	return os.Getenv("BRAVE_API_KEY") != "" ||
		os.Getenv("SERPER_API_KEY") != "" ||
		os.Getenv("SEARXNG_BASE_URL") != ""
}

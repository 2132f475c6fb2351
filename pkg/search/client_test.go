package search

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"researchvault/pkg/protocol"
	"researchvault/pkg/vault"

	_ "modernc.org/sqlite"
)

func setupTestStore(t *testing.T) *vault.Store {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(protocol.SchemaDDL); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return vault.NewStore(db)
}

type fakeProvider struct {
	calls int
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Search(ctx context.Context, query string) (map[string]any, error) {
	p.calls++
	return map[string]any{"query": query, "hits": float64(p.calls)}, nil
}

func TestClientCachesLiveResults(t *testing.T) {
	store := setupTestStore(t)
	provider := &fakeProvider{}
	client := &Client{Store: store, Provider: provider}
	ctx := context.Background()

	result, origin, err := client.Search(ctx, "fusion ignition milestone")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if origin != "live" {
		t.Errorf("origin = %q, want live", origin)
	}
	if result["query"] != "fusion ignition milestone" {
		t.Errorf("result = %v", result)
	}

	// Equivalent queries normalize to the same cache slot.
	result, origin, err = client.Search(ctx, "  Fusion   IGNITION milestone ")
	if err != nil {
		t.Fatalf("Search (cached): %v", err)
	}
	if origin != "cache" {
		t.Errorf("origin = %q, want cache", origin)
	}
	if result["hits"] != float64(1) {
		t.Errorf("cached result = %v, want the first live payload", result)
	}
	if provider.calls != 1 {
		t.Errorf("provider calls = %d, want 1", provider.calls)
	}
}

func TestClientFallsThroughCorruptCache(t *testing.T) {
	store := setupTestStore(t)
	provider := &fakeProvider{}
	client := &Client{Store: store, Provider: provider}
	ctx := context.Background()

	if err := store.CacheSearch(ctx, "broken entry", "{not json"); err != nil {
		t.Fatalf("CacheSearch: %v", err)
	}

	_, origin, err := client.Search(ctx, "broken entry")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if origin != "live" {
		t.Errorf("origin = %q, want live after corrupt cache entry", origin)
	}
	if provider.calls != 1 {
		t.Errorf("provider calls = %d, want 1", provider.calls)
	}

	// The live result replaced the corrupt entry.
	_, origin, err = client.Search(ctx, "broken entry")
	if err != nil {
		t.Fatalf("Search (repaired): %v", err)
	}
	if origin != "cache" {
		t.Errorf("origin = %q, want cache", origin)
	}
}

func TestBraveWithoutKeyReportsMissingCredentials(t *testing.T) {
	b := &Brave{}
	var mc *protocol.MissingCredentialsError
	if _, err := b.Search(context.Background(), "anything"); !errors.As(err, &mc) {
		t.Fatalf("err = %v, want MissingCredentialsError", err)
	}
	if mc.EnvVar != "BRAVE_API_KEY" {
		t.Errorf("env var = %q", mc.EnvVar)
	}
}

func TestBraveSearch(t *testing.T) {
	var gotToken, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Subscription-Token")
		gotQuery = r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"web":{"results":[{"title":"hit","url":"https://example.org"}]}}`))
	}))
	defer srv.Close()

	b := &Brave{APIKey: "test-key", BaseURL: srv.URL, Client: srv.Client()}
	result, err := b.Search(context.Background(), "tokamak q>1")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if gotToken != "test-key" {
		t.Errorf("token header = %q", gotToken)
	}
	if gotQuery != "tokamak q>1" {
		t.Errorf("query param = %q", gotQuery)
	}
	if _, ok := result["web"]; !ok {
		t.Errorf("result = %v", result)
	}
}

func TestBraveSearchNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	b := &Brave{APIKey: "test-key", BaseURL: srv.URL, Client: srv.Client()}
	if _, err := b.Search(context.Background(), "x"); err == nil {
		t.Fatal("expected error on non-200 status")
	}
}

package vault

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultCacheTTL is how long a cached search result stays fresh.
const DefaultCacheTTL = 24 * time.Hour

// NormalizeQuery lower-cases a query and collapses its whitespace, so
// cache keys and dedup hashes agree on trivially-different spellings.
func NormalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// QueryHash is the sha256 hex digest of the normalized query.
func QueryHash(query string) string {
	sum := sha256.Sum256([]byte(NormalizeQuery(query)))
	return hex.EncodeToString(sum[:])
}

// CacheSearch stores a search result (raw JSON) under the normalized
// query hash, replacing any previous entry.
func (s *Store) CacheSearch(ctx context.Context, query, resultJSON string) error {
	err := RetryOnLock(func() error {
		_, err := s.db.ExecContext(ctx,
			"INSERT OR REPLACE INTO search_cache (query_hash, query, result, timestamp) VALUES (?, ?, ?, ?)",
			QueryHash(query), query, resultJSON, NowISO(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("cache search: %w", err)
	}
	return nil
}

// CachedSearch looks up a fresh cached result for the query. The second
// return value is false when there is no entry or it has expired.
func (s *Store) CachedSearch(ctx context.Context, query string, ttl time.Duration) (string, bool, error) {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	var result, timestamp string
	err := s.db.QueryRowContext(ctx,
		"SELECT result, timestamp FROM search_cache WHERE query_hash=?",
		QueryHash(query),
	).Scan(&result, &timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("cached search: %w", err)
	}

	cachedAt := ParseTime(timestamp)
	if cachedAt.IsZero() || time.Since(cachedAt) >= ttl {
		return "", false, nil
	}
	return result, true, nil
}

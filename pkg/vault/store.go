// Package vault implements the shared research store: projects, the
// branch DAG, findings, hypotheses, artifacts, the event log, and the
// search cache. All operations are synchronous and short-lived; writes
// that can race under lock contention go through a bounded retry.
package vault

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"researchvault/pkg/protocol"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// timeLayout is fixed-width so MAX() over timestamp columns orders
// correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// Store manages the research vault tables in SQLite.
type Store struct {
	db            *sql.DB
	artifactRoots []string
}

// NewStore creates a Store backed by the given SQLite database with the
// default artifact sandbox roots.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, artifactRoots: defaultArtifactRoots()}
}

// DB exposes the underlying handle for sibling packages that query the
// same database (verify, watch, strategy, synthesis).
func (s *Store) DB() *sql.DB { return s.db }

// SetArtifactRoots replaces the artifact sandbox roots. Paths outside
// every root are rejected with a SecurityViolationError before any write.
func (s *Store) SetArtifactRoots(roots ...string) {
	abs := make([]string, 0, len(roots))
	for _, r := range roots {
		if a, err := filepath.Abs(r); err == nil {
			abs = append(abs, a)
		}
	}
	s.artifactRoots = abs
}

func defaultArtifactRoots() []string {
	roots := []string{os.TempDir()}
	if home, err := os.UserHomeDir(); err == nil {
		roots = append(roots,
			filepath.Join(home, ".researchvault"),
			filepath.Join(home, ".researchvault", "workspace"),
		)
	}
	return roots
}

// DefaultPath resolves the database path: RESEARCHVAULT_DB env override,
// else ~/.researchvault/research_vault.db.
func DefaultPath() (string, error) {
	if env := os.Getenv("RESEARCHVAULT_DB"); env != "" {
		return env, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".researchvault", "research_vault.db"), nil
}

// Open opens (creating if needed) the SQLite database at path with WAL
// journal mode and a busy timeout, and applies the schema.
func Open(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode on %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout on %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, protocol.SchemaDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema on %s: %w", path, err)
	}

	return db, nil
}

const (
	lockRetries   = 5
	lockBaseDelay = 100 * time.Millisecond
)

// RetryOnLock retries fn with exponential backoff while the database
// reports lock contention. After the retry budget is exhausted the last
// error is surfaced; it is never swallowed.
func RetryOnLock(fn func() error) error {
	var lastErr error
	delay := lockBaseDelay
	for i := 0; i < lockRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !isLockError(err) {
			return err
		}
		lastErr = err
		time.Sleep(delay)
		delay *= 2
	}
	return lastErr
}

func isLockError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "sqlite_busy")
}

// NewID returns a prefixed short id from a fresh random UUID, e.g.
// fnd_1a2b3c4d.
func NewID(prefix string, n int) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	if n > len(hex) {
		n = len(hex)
	}
	return prefix + hex[:n]
}

// NowISO formats the current UTC time in the store's fixed-width layout.
func NowISO() string {
	return time.Now().UTC().Format(timeLayout)
}

// ParseTime parses a stored timestamp. Returns the zero time for empty
// or unparseable input.
func ParseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{timeLayout, time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

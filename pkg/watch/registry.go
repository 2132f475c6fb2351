// Package watch manages recurring external checks (URLs and search
// queries). The registry only stores targets and run bookkeeping; an
// external scheduler decides when a due target actually runs.
package watch

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"researchvault/pkg/protocol"
	"researchvault/pkg/vault"
)

const (
	// DefaultInterval is used when a target is registered without one.
	DefaultInterval = 3600 * time.Second
	minInterval     = 60 * time.Second
	maxInterval     = 7 * 24 * time.Hour
)

// Registry owns the watch_targets table on a vault store.
type Registry struct {
	Store *vault.Store
}

// NewRegistry builds a watch registry.
func NewRegistry(store *vault.Store) *Registry {
	return &Registry{Store: store}
}

// AddParams holds parameters for registering a watch target.
type AddParams struct {
	ProjectID string
	Branch    string
	Type      string // url or query
	Target    string
	Tags      string
	Interval  time.Duration // zero means DefaultInterval
}

// AddResult reports the registered target and whether this call created
// it or matched an existing registration.
type AddResult struct {
	TargetID string `json:"target_id"`
	Created  bool   `json:"created"`
}

// AddTarget registers a recurring check. Registration is idempotent on
// the normalized target: "Foo  Bar" and "foo bar" queries collapse to
// one row, and re-adding returns the existing id with Created=false.
func (r *Registry) AddTarget(ctx context.Context, p AddParams) (*AddResult, error) {
	if p.Type != protocol.WatchTypeURL && p.Type != protocol.WatchTypeQuery {
		return nil, &protocol.ValidationError{Field: "type", Reason: fmt.Sprintf("unknown watch type %q", p.Type)}
	}
	target := strings.TrimSpace(p.Target)
	if target == "" {
		return nil, &protocol.ValidationError{Field: "target", Reason: "must not be empty"}
	}

	interval := p.Interval
	if interval == 0 {
		interval = DefaultInterval
	}
	if interval < minInterval || interval > maxInterval {
		return nil, &protocol.ValidationError{
			Field:  "interval",
			Reason: fmt.Sprintf("%s outside [%s, %s]", interval, minInterval, maxInterval),
		}
	}

	branchID, err := r.Store.ResolveBranchID(ctx, p.ProjectID, p.Branch)
	if err != nil {
		return nil, err
	}

	normalized := normalizeTarget(p.Type, target)
	dedup := targetDedupHash(p.ProjectID, branchID, p.Type, normalized)

	id := vault.NewID("wt_", 10)
	now := vault.NowISO()
	var inserted bool
	err = vault.RetryOnLock(func() error {
		res, err := r.Store.DB().ExecContext(ctx,
			`INSERT OR IGNORE INTO watch_targets
			 (id, project_id, branch_id, target_type, target, tags, interval_s, status, created_at, updated_at, dedup_hash)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, p.ProjectID, branchID, p.Type, target, p.Tags,
			int64(interval/time.Second), protocol.WatchActive, now, now, dedup,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		inserted = n == 1
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("add watch target: %w", err)
	}

	if !inserted {
		var existing string
		err := r.Store.DB().QueryRowContext(ctx,
			"SELECT id FROM watch_targets WHERE dedup_hash=?", dedup,
		).Scan(&existing)
		if err != nil {
			return nil, fmt.Errorf("lookup watch target: %w", err)
		}
		return &AddResult{TargetID: existing, Created: false}, nil
	}

	err = r.Store.LogEvent(ctx, vault.EventParams{
		ProjectID: p.ProjectID,
		Branch:    p.Branch,
		Type:      protocol.EventWatch,
		Step:      "add",
		Payload:   map[string]any{"target_id": id, "type": p.Type, "target": target},
		Source:    "watch",
		Tags:      "watch",
	})
	if err != nil {
		return nil, err
	}
	return &AddResult{TargetID: id, Created: true}, nil
}

// normalizeTarget canonicalizes a target for deduplication: queries
// collapse whitespace and case, URLs just lower-case.
func normalizeTarget(targetType, target string) string {
	if targetType == protocol.WatchTypeQuery {
		return vault.NormalizeQuery(target)
	}
	return strings.ToLower(strings.TrimSpace(target))
}

func targetDedupHash(projectID, branchID, targetType, normalized string) string {
	sum := sha256.Sum256([]byte(projectID + "|" + branchID + "|" + targetType + "|" + normalized))
	return hex.EncodeToString(sum[:])
}

// ListTargets returns watch targets on (project, branch), optionally
// filtered by status, in creation order.
func (r *Registry) ListTargets(ctx context.Context, projectID, branch, status string) ([]protocol.WatchTarget, error) {
	branchID, err := r.Store.ResolveBranchID(ctx, projectID, branch)
	if err != nil {
		return nil, err
	}

	query := `SELECT id, project_id, branch_id, target_type, target, tags, interval_s, status,
	                 COALESCE(last_run_at, ''), last_result_hash, last_error, created_at, updated_at
	          FROM watch_targets WHERE project_id=? AND branch_id=?`
	args := []any{projectID, branchID}
	if status != "" {
		query += " AND status=?"
		args = append(args, status)
	}
	query += " ORDER BY created_at ASC"

	rows, err := r.Store.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list watch targets: %w", err)
	}
	defer rows.Close()

	var targets []protocol.WatchTarget
	for rows.Next() {
		var t protocol.WatchTarget
		if err := rows.Scan(&t.ID, &t.ProjectID, &t.BranchID, &t.Type, &t.Target, &t.Tags,
			&t.IntervalS, &t.Status, &t.LastRunAt, &t.LastResultHash, &t.LastError,
			&t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan watch target: %w", err)
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

// DisableTarget marks a target disabled. Disabling an already-disabled
// target is a no-op; a missing id is a NotFoundError.
func (r *Registry) DisableTarget(ctx context.Context, targetID string) error {
	var res sql.Result
	err := vault.RetryOnLock(func() error {
		var err error
		res, err = r.Store.DB().ExecContext(ctx,
			"UPDATE watch_targets SET status=?, updated_at=? WHERE id=?",
			protocol.WatchDisabled, vault.NowISO(), targetID)
		return err
	})
	if err != nil {
		return fmt.Errorf("disable watch target: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &protocol.NotFoundError{Kind: "watch target", ID: targetID}
	}
	return nil
}

// UpdateRun records the outcome of one external check run.
func (r *Registry) UpdateRun(ctx context.Context, targetID, resultHash, runErr string) error {
	var res sql.Result
	now := vault.NowISO()
	err := vault.RetryOnLock(func() error {
		var err error
		res, err = r.Store.DB().ExecContext(ctx,
			"UPDATE watch_targets SET last_run_at=?, last_result_hash=?, last_error=?, updated_at=? WHERE id=?",
			now, resultHash, runErr, now, targetID)
		return err
	})
	if err != nil {
		return fmt.Errorf("update watch run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &protocol.NotFoundError{Kind: "watch target", ID: targetID}
	}
	return nil
}

// DueTargets returns active targets whose interval has elapsed since
// their last run (or that have never run), for an external scheduler.
func (r *Registry) DueTargets(ctx context.Context, projectID, branch string, now time.Time) ([]protocol.WatchTarget, error) {
	targets, err := r.ListTargets(ctx, projectID, branch, protocol.WatchActive)
	if err != nil {
		return nil, err
	}

	var due []protocol.WatchTarget
	for _, t := range targets {
		if t.LastRunAt == "" {
			due = append(due, t)
			continue
		}
		lastRun := vault.ParseTime(t.LastRunAt)
		if lastRun.IsZero() || now.Sub(lastRun) >= time.Duration(t.IntervalS)*time.Second {
			due = append(due, t)
		}
	}
	return due, nil
}

// GetTarget retrieves one watch target by id.
func (r *Registry) GetTarget(ctx context.Context, targetID string) (*protocol.WatchTarget, error) {
	t := &protocol.WatchTarget{}
	err := r.Store.DB().QueryRowContext(ctx,
		`SELECT id, project_id, branch_id, target_type, target, tags, interval_s, status,
		        COALESCE(last_run_at, ''), last_result_hash, last_error, created_at, updated_at
		 FROM watch_targets WHERE id=?`, targetID,
	).Scan(&t.ID, &t.ProjectID, &t.BranchID, &t.Type, &t.Target, &t.Tags,
		&t.IntervalS, &t.Status, &t.LastRunAt, &t.LastResultHash, &t.LastError,
		&t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &protocol.NotFoundError{Kind: "watch target", ID: targetID}
	}
	if err != nil {
		return nil, fmt.Errorf("get watch target: %w", err)
	}
	return t, nil
}

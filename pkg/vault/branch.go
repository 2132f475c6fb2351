package vault

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"researchvault/pkg/protocol"
)

var unsafeIDCharsRe = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

func safeIDPart(raw string) string {
	return unsafeIDCharsRe.ReplaceAllString(strings.TrimSpace(raw), "_")
}

// BranchID is the deterministic branch id for (project, name). Two
// calls with the same inputs always agree, which makes branch creation
// idempotent and lets callers derive ids without a lookup.
func BranchID(projectID, name string) string {
	return fmt.Sprintf("br_%s_%s", safeIDPart(projectID), safeIDPart(name))
}

func normalizeBranchName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return protocol.DefaultBranch
	}
	return name
}

// EnsureBranch creates a branch if missing and returns its id. The
// parent, when given, must already exist: that insertion-order rule is
// what keeps the branch graph acyclic, so no cycle check is performed.
func (s *Store) EnsureBranch(ctx context.Context, projectID, name, parent, hypothesis string) (string, error) {
	name = normalizeBranchName(name)

	var parentID sql.NullString
	if parent != "" {
		var pid string
		err := s.db.QueryRowContext(ctx,
			"SELECT id FROM branches WHERE project_id=? AND name=?",
			projectID, parent,
		).Scan(&pid)
		if errors.Is(err, sql.ErrNoRows) {
			return "", &protocol.NotFoundError{Kind: "branch", ID: parent}
		}
		if err != nil {
			return "", fmt.Errorf("lookup parent branch: %w", err)
		}
		parentID = sql.NullString{String: pid, Valid: true}
	}

	branchID := BranchID(projectID, name)
	err := RetryOnLock(func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO branches (id, project_id, name, parent_id, hypothesis, status, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			branchID, projectID, name, parentID, hypothesis, protocol.BranchActive, NowISO(),
		)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("ensure branch %s: %w", branchID, err)
	}
	return branchID, nil
}

// CreateBranch creates a new branch as an explicit user action.
func (s *Store) CreateBranch(ctx context.Context, projectID, name, parent, hypothesis string) (string, error) {
	return s.EnsureBranch(ctx, projectID, name, parent, hypothesis)
}

// ResolveBranchID maps a branch name (or "" for the default) to its id.
// The main branch is self-healed if absent; any other missing name is a
// NotFoundError. The function is pure with respect to (project, name):
// repeated calls return identical results.
func (s *Store) ResolveBranchID(ctx context.Context, projectID, branch string) (string, error) {
	name := normalizeBranchName(branch)

	var id string
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM branches WHERE project_id=? AND name=?",
		projectID, name,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("resolve branch %s/%s: %w", projectID, name, err)
	}

	if name == protocol.DefaultBranch {
		return s.EnsureBranch(ctx, projectID, protocol.DefaultBranch, "", "")
	}
	return "", &protocol.NotFoundError{Kind: "branch", ID: name}
}

// ListBranches returns the project's branches in creation order.
func (s *Store) ListBranches(ctx context.Context, projectID string) ([]protocol.Branch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, name, COALESCE(parent_id, ''), hypothesis, status, created_at
		 FROM branches WHERE project_id=? ORDER BY created_at ASC`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	defer rows.Close()

	var branches []protocol.Branch
	for rows.Next() {
		var b protocol.Branch
		if err := rows.Scan(&b.ID, &b.ProjectID, &b.Name, &b.ParentID, &b.Hypothesis, &b.Status, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan branch: %w", err)
		}
		branches = append(branches, b)
	}
	return branches, rows.Err()
}

package vault

import (
	"context"
	"encoding/json"
	"fmt"

	"researchvault/pkg/protocol"
	"researchvault/pkg/redact"
)

// FindingParams holds parameters for inserting a new finding. Branch ""
// targets the project's main branch.
type FindingParams struct {
	ProjectID  string
	Branch     string
	Title      string
	Content    string
	SourceURL  string
	Tags       string
	Confidence float64
}

// AddFinding scrubs the free-text fields, clamps confidence to [0,1],
// and writes an immutable finding row. Returns the new finding id.
func (s *Store) AddFinding(ctx context.Context, p FindingParams) (string, error) {
	branchID, err := s.ResolveBranchID(ctx, p.ProjectID, p.Branch)
	if err != nil {
		return "", err
	}

	evidence, err := json.Marshal(map[string]string{"source_url": redact.String(p.SourceURL)})
	if err != nil {
		return "", fmt.Errorf("marshal evidence: %w", err)
	}

	id := NewID("fnd_", 8)
	err = RetryOnLock(func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO findings (id, project_id, branch_id, title, content, evidence, confidence, tags, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, p.ProjectID, branchID,
			redact.String(p.Title), redact.String(p.Content), string(evidence),
			clamp01(p.Confidence), p.Tags, NowISO(),
		)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("add finding: %w", err)
	}
	return id, nil
}

// ListOpts configures a scoped list query.
type ListOpts struct {
	Tag   string
	Limit int
}

// ListFindings returns findings on (project, branch), newest first.
// An empty result is a nil slice, not an error.
func (s *Store) ListFindings(ctx context.Context, projectID, branch string, opts ListOpts) ([]protocol.Finding, error) {
	branchID, err := s.ResolveBranchID(ctx, projectID, branch)
	if err != nil {
		return nil, err
	}

	query := `SELECT id, project_id, branch_id, title, content, evidence, confidence, tags, created_at
	          FROM findings WHERE project_id=? AND branch_id=?`
	args := []any{projectID, branchID}
	if opts.Tag != "" {
		query += " AND tags LIKE ?"
		args = append(args, "%"+opts.Tag+"%")
	}
	query += " ORDER BY created_at DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list findings: %w", err)
	}
	defer rows.Close()

	var findings []protocol.Finding
	for rows.Next() {
		var f protocol.Finding
		if err := rows.Scan(&f.ID, &f.ProjectID, &f.BranchID, &f.Title, &f.Content, &f.Evidence, &f.Confidence, &f.Tags, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan finding: %w", err)
		}
		findings = append(findings, f)
	}
	return findings, rows.Err()
}

// SourceURL extracts the source_url from a finding's evidence JSON.
// Returns "" when the evidence is empty or malformed.
func SourceURL(evidence string) string {
	if evidence == "" {
		return ""
	}
	var ev struct {
		SourceURL string `json:"source_url"`
	}
	if err := json.Unmarshal([]byte(evidence), &ev); err != nil {
		return ""
	}
	return ev.SourceURL
}

package vault

import (
	"context"
	"database/sql"
	"fmt"

	"researchvault/pkg/protocol"
	"researchvault/pkg/redact"
)

// HypothesisParams holds parameters for inserting a new hypothesis.
type HypothesisParams struct {
	ProjectID  string
	Branch     string
	Statement  string
	Rationale  string
	Confidence float64
	Status     string // defaults to open
}

// AddHypothesis writes a scrubbed hypothesis row on the resolved branch
// and returns its id.
func (s *Store) AddHypothesis(ctx context.Context, p HypothesisParams) (string, error) {
	branchID, err := s.ResolveBranchID(ctx, p.ProjectID, p.Branch)
	if err != nil {
		return "", err
	}

	status := p.Status
	if status == "" {
		status = protocol.HypothesisOpen
	}
	if err := validHypothesisStatus(status); err != nil {
		return "", err
	}

	id := NewID("hyp_", 10)
	now := NowISO()
	err = RetryOnLock(func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO hypotheses (id, branch_id, statement, rationale, confidence, status, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id, branchID, redact.String(p.Statement), redact.String(p.Rationale),
			clamp01(p.Confidence), status, now, now,
		)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("add hypothesis: %w", err)
	}
	return id, nil
}

// SetHypothesisStatus moves a hypothesis through its lifecycle.
func (s *Store) SetHypothesisStatus(ctx context.Context, id, status string) error {
	if err := validHypothesisStatus(status); err != nil {
		return err
	}

	var res sql.Result
	err := RetryOnLock(func() error {
		var err error
		res, err = s.db.ExecContext(ctx,
			"UPDATE hypotheses SET status=?, updated_at=? WHERE id=?",
			status, NowISO(), id,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("set hypothesis status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &protocol.NotFoundError{Kind: "hypothesis", ID: id}
	}
	return nil
}

func validHypothesisStatus(status string) error {
	switch status {
	case protocol.HypothesisOpen, protocol.HypothesisAccepted, protocol.HypothesisRejected, protocol.HypothesisArchived:
		return nil
	}
	return &protocol.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown hypothesis status %q", status)}
}

// ListHypotheses returns hypotheses for the project, newest first,
// optionally scoped to one branch (branch "" means all branches).
func (s *Store) ListHypotheses(ctx context.Context, projectID, branch string) ([]protocol.Hypothesis, error) {
	query := `SELECT h.id, h.branch_id, h.statement, h.rationale, h.confidence, h.status, h.created_at, h.updated_at
	          FROM hypotheses h
	          JOIN branches b ON b.id = h.branch_id
	          WHERE b.project_id=?`
	args := []any{projectID}
	if branch != "" {
		branchID, err := s.ResolveBranchID(ctx, projectID, branch)
		if err != nil {
			return nil, err
		}
		query += " AND h.branch_id=?"
		args = append(args, branchID)
	}
	query += " ORDER BY h.created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list hypotheses: %w", err)
	}
	defer rows.Close()

	var hyps []protocol.Hypothesis
	for rows.Next() {
		var h protocol.Hypothesis
		if err := rows.Scan(&h.ID, &h.BranchID, &h.Statement, &h.Rationale, &h.Confidence, &h.Status, &h.CreatedAt, &h.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan hypothesis: %w", err)
		}
		hyps = append(hyps, h)
	}
	return hyps, rows.Err()
}

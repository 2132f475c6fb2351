package verify

import (
	"context"
	"database/sql"
	"fmt"

	"researchvault/pkg/protocol"
	"researchvault/pkg/vault"
)

// MissionSummary is a mission row joined with its finding, for listing.
type MissionSummary struct {
	ID                string  `json:"id"`
	FindingID         string  `json:"finding_id"`
	FindingTitle      string  `json:"finding_title"`
	FindingConfidence float64 `json:"finding_confidence"`
	Query             string  `json:"query"`
	Status            string  `json:"status"`
	Priority          int     `json:"priority"`
	LastError         string  `json:"last_error,omitempty"`
	CreatedAt         string  `json:"created_at"`
	CompletedAt       string  `json:"completed_at,omitempty"`
}

// ListMissions returns missions on (project, branch), optionally
// filtered by status, highest priority first.
func (s *Service) ListMissions(ctx context.Context, projectID, branch, status string, limit int) ([]MissionSummary, error) {
	branchID, err := s.Store.ResolveBranchID(ctx, projectID, branch)
	if err != nil {
		return nil, err
	}

	query := `SELECT m.id, m.finding_id, COALESCE(f.title, ''), COALESCE(f.confidence, 0),
	                 m.query, m.status, m.priority, m.last_error, m.created_at, COALESCE(m.completed_at, '')
	          FROM verification_missions m
	          LEFT JOIN findings f ON f.id = m.finding_id
	          WHERE m.project_id=? AND m.branch_id=?`
	args := []any{projectID, branchID}
	if status != "" {
		query += " AND m.status=?"
		args = append(args, status)
	}
	query += " ORDER BY m.priority DESC, m.created_at ASC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.Store.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list missions: %w", err)
	}
	defer rows.Close()

	var missions []MissionSummary
	for rows.Next() {
		var m MissionSummary
		if err := rows.Scan(&m.ID, &m.FindingID, &m.FindingTitle, &m.FindingConfidence,
			&m.Query, &m.Status, &m.Priority, &m.LastError, &m.CreatedAt, &m.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan mission summary: %w", err)
		}
		missions = append(missions, m)
	}
	return missions, rows.Err()
}

// SetMissionStatus moves a mission to an explicit status, recording an
// optional note as last_error. Terminal transitions stamp completed_at
// once; an already-stamped mission keeps its original completion time.
func (s *Service) SetMissionStatus(ctx context.Context, missionID, status, note string) error {
	switch status {
	case protocol.MissionOpen, protocol.MissionInProgress, protocol.MissionDone,
		protocol.MissionBlocked, protocol.MissionCancelled:
	default:
		return &protocol.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown mission status %q", status)}
	}

	now := vault.NowISO()
	var res sql.Result
	err := vault.RetryOnLock(func() error {
		var err error
		if status == protocol.MissionDone || status == protocol.MissionCancelled {
			res, err = s.Store.DB().ExecContext(ctx,
				`UPDATE verification_missions
				 SET status=?, last_error=?, updated_at=?, completed_at=COALESCE(NULLIF(completed_at, ''), ?)
				 WHERE id=?`,
				status, note, now, now, missionID)
		} else {
			res, err = s.Store.DB().ExecContext(ctx,
				"UPDATE verification_missions SET status=?, last_error=?, updated_at=? WHERE id=?",
				status, note, now, missionID)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("set mission status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &protocol.NotFoundError{Kind: "mission", ID: missionID}
	}
	return nil
}

package vault

import (
	"context"
	"encoding/json"
	"fmt"

	"researchvault/pkg/protocol"
	"researchvault/pkg/redact"
)

// EventParams holds parameters for recording an operation event.
// Payload may be any JSON-serializable value tree; it is scrubbed
// before persistence.
type EventParams struct {
	ProjectID  string
	Branch     string
	Type       string
	Step       string
	Payload    any
	Confidence float64 // defaults to 1.0
	Source     string  // defaults to "unknown"
	Tags       string
}

// LogEvent records an event on the resolved branch.
func (s *Store) LogEvent(ctx context.Context, p EventParams) error {
	branchID, err := s.ResolveBranchID(ctx, p.ProjectID, p.Branch)
	if err != nil {
		return err
	}

	payloadJSON, err := json.Marshal(redact.Value(p.Payload))
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	confidence := p.Confidence
	if confidence == 0 {
		confidence = 1.0
	}
	source := p.Source
	if source == "" {
		source = "unknown"
	}

	err = RetryOnLock(func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO events (project_id, branch_id, event_type, step, payload, confidence, source, tags, timestamp)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ProjectID, branchID, p.Type, p.Step, string(payloadJSON),
			confidence, redact.String(source), p.Tags, NowISO(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("log event: %w", err)
	}
	return nil
}

// ListEvents returns events on (project, branch), newest first,
// optionally filtered by event type.
func (s *Store) ListEvents(ctx context.Context, projectID, branch, eventType string, limit int) ([]protocol.Event, error) {
	branchID, err := s.ResolveBranchID(ctx, projectID, branch)
	if err != nil {
		return nil, err
	}

	query := `SELECT id, project_id, COALESCE(branch_id, ''), event_type, step, payload, confidence, source, tags, timestamp
	          FROM events WHERE project_id=? AND branch_id=?`
	args := []any{projectID, branchID}
	if eventType != "" {
		query += " AND event_type=?"
		args = append(args, eventType)
	}
	query += " ORDER BY id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []protocol.Event
	for rows.Next() {
		var e protocol.Event
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.BranchID, &e.Type, &e.Step, &e.Payload, &e.Confidence, &e.Source, &e.Tags, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

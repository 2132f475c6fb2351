package vault

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"researchvault/pkg/protocol"
)

// StartProject inserts a project if it does not exist and guarantees
// its main branch afterward. On conflict the existing row wins: name
// and objective are not updated (first-write-wins). Returns the
// project id, generated when the caller passes "".
func (s *Store) StartProject(ctx context.Context, id, name, objective string, priority int) (string, error) {
	if id == "" {
		id = NewID("prj_", 10)
	}

	err := RetryOnLock(func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO projects (id, name, objective, status, created_at, priority)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			id, name, objective, protocol.ProjectActive, NowISO(), priority,
		)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("start project %s: %w", id, err)
	}

	if _, err := s.EnsureBranch(ctx, id, protocol.DefaultBranch, "", ""); err != nil {
		return "", err
	}
	return id, nil
}

// GetProject retrieves a project by id.
func (s *Store) GetProject(ctx context.Context, id string) (*protocol.Project, error) {
	p := &protocol.Project{}
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, objective, status, created_at, priority FROM projects WHERE id=?",
		id,
	).Scan(&p.ID, &p.Name, &p.Objective, &p.Status, &p.CreatedAt, &p.Priority)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &protocol.NotFoundError{Kind: "project", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

// ListProjects returns all projects, highest priority first.
func (s *Store) ListProjects(ctx context.Context) ([]protocol.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, objective, status, created_at, priority FROM projects ORDER BY priority DESC, created_at DESC",
	)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []protocol.Project
	for rows.Next() {
		var p protocol.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Objective, &p.Status, &p.CreatedAt, &p.Priority); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// SetProjectStatus updates the lifecycle status of a project.
func (s *Store) SetProjectStatus(ctx context.Context, id, status string) error {
	switch status {
	case protocol.ProjectActive, protocol.ProjectPaused, protocol.ProjectCompleted, protocol.ProjectFailed:
	default:
		return &protocol.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown project status %q", status)}
	}
	return s.updateProject(ctx, id, "status", status)
}

// SetProjectPriority updates the scheduling priority of a project.
func (s *Store) SetProjectPriority(ctx context.Context, id string, priority int) error {
	return s.updateProject(ctx, id, "priority", priority)
}

func (s *Store) updateProject(ctx context.Context, id, column string, value any) error {
	var res sql.Result
	err := RetryOnLock(func() error {
		var err error
		res, err = s.db.ExecContext(ctx,
			fmt.Sprintf("UPDATE projects SET %s=? WHERE id=?", column), value, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("update project %s: %w", column, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &protocol.NotFoundError{Kind: "project", ID: id}
	}
	return nil
}

// GetStatus returns a project snapshot with its most recent events on
// the given branch, optionally filtered by tag.
func (s *Store) GetStatus(ctx context.Context, projectID, branch, tagFilter string) (*protocol.Project, []protocol.Event, error) {
	project, err := s.GetProject(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}

	branchID, err := s.ResolveBranchID(ctx, projectID, branch)
	if err != nil {
		return nil, nil, err
	}

	query := `SELECT id, project_id, COALESCE(branch_id, ''), event_type, step, payload, confidence, source, tags, timestamp
	          FROM events WHERE project_id=? AND branch_id=?`
	args := []any{projectID, branchID}
	if tagFilter != "" {
		query += " AND tags LIKE ?"
		args = append(args, "%"+tagFilter+"%")
	}
	query += " ORDER BY id DESC LIMIT 10"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("status events: %w", err)
	}
	defer rows.Close()

	var events []protocol.Event
	for rows.Next() {
		var e protocol.Event
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.BranchID, &e.Type, &e.Step, &e.Payload, &e.Confidence, &e.Source, &e.Tags, &e.Timestamp); err != nil {
			return nil, nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return project, events, rows.Err()
}

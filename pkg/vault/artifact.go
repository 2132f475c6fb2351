package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"researchvault/pkg/protocol"
	"researchvault/pkg/redact"
)

// ArtifactParams holds parameters for registering a local artifact.
type ArtifactParams struct {
	ProjectID string
	Branch    string
	Path      string
	Type      string // defaults to FILE
	Metadata  map[string]any
}

// AddArtifact validates the path against the sandbox roots, scrubs the
// metadata, and writes the artifact row plus an ARTIFACT event. On a
// sandbox violation a SecurityViolationError is returned and nothing is
// written.
func (s *Store) AddArtifact(ctx context.Context, p ArtifactParams) (string, error) {
	absPath, err := filepath.Abs(expandHome(p.Path))
	if err != nil {
		return "", &protocol.ValidationError{Field: "path", Reason: err.Error()}
	}
	if !s.pathInSandbox(absPath) {
		return "", &protocol.SecurityViolationError{Path: p.Path, Roots: s.artifactRoots}
	}

	branchID, err := s.ResolveBranchID(ctx, p.ProjectID, p.Branch)
	if err != nil {
		return "", err
	}

	artifactType := p.Type
	if artifactType == "" {
		artifactType = "FILE"
	}

	meta := redact.Value(p.Metadata)
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("marshal artifact metadata: %w", err)
	}

	id := NewID("art_", 10)
	path := redact.String(p.Path)
	err = RetryOnLock(func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO artifacts (id, project_id, branch_id, type, path, metadata, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, p.ProjectID, branchID, artifactType, path, string(metaJSON), NowISO(),
		)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("add artifact: %w", err)
	}

	err = s.LogEvent(ctx, EventParams{
		ProjectID: p.ProjectID,
		Branch:    p.Branch,
		Type:      protocol.EventArtifact,
		Step:      "add",
		Payload:   map[string]any{"artifact_id": id, "path": path, "type": artifactType},
		Source:    "vault",
		Tags:      "artifact",
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) pathInSandbox(absPath string) bool {
	for _, root := range s.artifactRoots {
		if absPath == root || strings.HasPrefix(absPath, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// ListArtifacts returns artifacts on (project, branch), newest first.
func (s *Store) ListArtifacts(ctx context.Context, projectID, branch string) ([]protocol.Artifact, error) {
	branchID, err := s.ResolveBranchID(ctx, projectID, branch)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, branch_id, type, path, metadata, created_at
		 FROM artifacts WHERE project_id=? AND branch_id=? ORDER BY created_at DESC`,
		projectID, branchID,
	)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []protocol.Artifact
	for rows.Next() {
		var a protocol.Artifact
		if err := rows.Scan(&a.ID, &a.ProjectID, &a.BranchID, &a.Type, &a.Path, &a.Metadata, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}

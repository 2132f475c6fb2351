package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"researchvault/pkg/protocol"
	"researchvault/pkg/vault"
)

// RunOpts configures a mission run batch.
type RunOpts struct {
	Limit  int    // missions per batch; default 5
	Status string // which missions to pick up; default open
}

// RunResult reports the outcome of one executed mission.
type RunResult struct {
	MissionID string         `json:"mission_id"`
	Query     string         `json:"query"`
	Status    string         `json:"status"`
	Origin    string         `json:"origin,omitempty"` // cache or live
	Meta      map[string]any `json:"meta,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// RunMissions executes missions on (project, branch), highest priority
// first, oldest first within a priority. By default it picks up open
// missions; opts.Status can target blocked ones after a search provider
// is configured. Each mission moves to in_progress, then done on
// success; a missing-credentials failure parks it blocked, any other
// failure returns it to open with the error recorded. One failing
// mission does not stop the batch.
func (s *Service) RunMissions(ctx context.Context, projectID, branch string, opts RunOpts) ([]RunResult, error) {
	if s.Search == nil {
		return nil, &protocol.ValidationError{Field: "search", Reason: "no search client configured"}
	}

	branchID, err := s.Store.ResolveBranchID(ctx, projectID, branch)
	if err != nil {
		return nil, err
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 5
	}
	status := opts.Status
	if status == "" {
		status = protocol.MissionOpen
	}
	if status != protocol.MissionOpen && status != protocol.MissionBlocked {
		return nil, &protocol.ValidationError{Field: "status", Reason: fmt.Sprintf("cannot run %s missions", status)}
	}

	rows, err := s.Store.DB().QueryContext(ctx,
		`SELECT id, query FROM verification_missions
		 WHERE project_id=? AND branch_id=? AND status=?
		 ORDER BY priority DESC, created_at ASC LIMIT ?`,
		projectID, branchID, status, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select %s missions: %w", status, err)
	}
	type mission struct{ id, query string }
	var batch []mission
	for rows.Next() {
		var m mission
		if err := rows.Scan(&m.id, &m.query); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan mission: %w", err)
		}
		batch = append(batch, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var results []RunResult
	for _, m := range batch {
		if err := s.setMissionColumns(ctx, m.id,
			"status=?, updated_at=?", protocol.MissionInProgress, vault.NowISO()); err != nil {
			return results, err
		}

		result, origin, searchErr := s.Search.Search(ctx, m.query)
		if searchErr != nil {
			status := protocol.MissionOpen
			var creds *protocol.MissingCredentialsError
			if errors.As(searchErr, &creds) {
				status = protocol.MissionBlocked
			}
			if err := s.setMissionColumns(ctx, m.id,
				"status=?, last_error=?, updated_at=?",
				status, searchErr.Error(), vault.NowISO()); err != nil {
				return results, err
			}
			results = append(results, RunResult{
				MissionID: m.id, Query: m.query, Status: status, Error: searchErr.Error(),
			})
			continue
		}

		meta := resultMeta(m.query, result)
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			return results, fmt.Errorf("marshal result meta: %w", err)
		}
		now := vault.NowISO()
		if err := s.setMissionColumns(ctx, m.id,
			"status=?, result_meta=?, last_error='', completed_at=?, updated_at=?",
			protocol.MissionDone, string(metaJSON), now, now); err != nil {
			return results, err
		}

		err = s.Store.LogEvent(ctx, vault.EventParams{
			ProjectID: projectID,
			Branch:    branch,
			Type:      protocol.EventVerify,
			Step:      "run",
			Payload:   map[string]any{"mission_id": m.id, "origin": origin, "meta": meta},
			Source:    "verify",
		})
		if err != nil {
			return results, err
		}
		results = append(results, RunResult{
			MissionID: m.id, Query: m.query, Status: protocol.MissionDone, Origin: origin, Meta: meta,
		})
	}
	return results, nil
}

// resultMeta distills a provider result tree into the compact summary
// stored on the mission row.
func resultMeta(query string, result map[string]any) map[string]any {
	meta := map[string]any{
		"query_hash":   vault.QueryHash(query),
		"result_count": 0,
	}
	web, _ := result["web"].(map[string]any)
	items, _ := web["results"].([]any)
	meta["result_count"] = len(items)
	if len(items) > 0 {
		if top, ok := items[0].(map[string]any); ok {
			if u, ok := top["url"].(string); ok {
				meta["top_url"] = u
			}
			if t, ok := top["title"].(string); ok {
				meta["top_title"] = t
			}
		}
	}
	return meta
}

func (s *Service) setMissionColumns(ctx context.Context, id, assignments string, args ...any) error {
	args = append(args, id)
	err := vault.RetryOnLock(func() error {
		_, err := s.Store.DB().ExecContext(ctx,
			"UPDATE verification_missions SET "+assignments+" WHERE id=?", args...)
		return err
	})
	if err != nil {
		return fmt.Errorf("update mission %s: %w", id, err)
	}
	return nil
}

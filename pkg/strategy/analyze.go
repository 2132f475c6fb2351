package strategy

import (
	"context"
	"fmt"

	"researchvault/pkg/protocol"
	"researchvault/pkg/verify"
)

// FindingExample is a truncated low-confidence finding cited in
// recommendations.
type FindingExample struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Confidence float64 `json:"confidence"`
	Tags       string  `json:"tags"`
}

// ProjectState is the aggregate snapshot the recommender reads.
type ProjectState struct {
	ProjectID string `json:"project_id"`
	Branch    string `json:"branch"`
	BranchID  string `json:"branch_id"`
	Objective string `json:"objective"`

	FindingsCount         int              `json:"findings_count"`
	AvgConfidence         float64          `json:"avg_confidence"`
	LowConfidenceCount    int              `json:"low_confidence_count"`
	LowConfidenceExamples []FindingExample `json:"low_confidence_examples,omitempty"`
	ArtifactsCount        int              `json:"artifacts_count"`
	BranchesCount         int              `json:"branches_count"`
	HypothesesByStatus    map[string]int   `json:"hypotheses_by_status"`
	MissionsByStatus      map[string]int   `json:"missions_by_status"`
	WatchActiveCount      int              `json:"watch_active_count"`
	SynthesisLinks        int              `json:"synthesis_links"`

	LastEventAt     string `json:"last_event_at,omitempty"`
	LastFindingAt   string `json:"last_finding_at,omitempty"`
	LastArtifactAt  string `json:"last_artifact_at,omitempty"`
	LastSynthesisAt string `json:"last_synthesis_at,omitempty"`

	Density  int     `json:"density"` // findings + artifacts
	Coverage float64 `json:"coverage"`
	Progress float64 `json:"progress"`
}

// QueuedMissions counts missions that are waiting, currently running,
// or parked blocked. Blocked counts: a keyless run parks every mission
// blocked, and the next action is still to run them once a provider is
// configured, not to re-plan.
func (s *ProjectState) QueuedMissions() int {
	return s.MissionsByStatus[protocol.MissionOpen] +
		s.MissionsByStatus[protocol.MissionInProgress] +
		s.MissionsByStatus[protocol.MissionBlocked]
}

// ToMap flattens the state for JSON CLI output.
func (s *ProjectState) ToMap() map[string]any {
	examples := make([]map[string]any, 0, len(s.LowConfidenceExamples))
	for _, ex := range s.LowConfidenceExamples {
		examples = append(examples, map[string]any{
			"id": ex.ID, "title": ex.Title, "confidence": ex.Confidence, "tags": ex.Tags,
		})
	}
	return map[string]any{
		"project_id":              s.ProjectID,
		"branch":                  s.Branch,
		"branch_id":               s.BranchID,
		"objective":               s.Objective,
		"findings_count":          s.FindingsCount,
		"avg_confidence":          s.AvgConfidence,
		"low_confidence_count":    s.LowConfidenceCount,
		"low_confidence_examples": examples,
		"artifacts_count":         s.ArtifactsCount,
		"branches_count":          s.BranchesCount,
		"hypotheses_by_status":    s.HypothesesByStatus,
		"missions_by_status":      s.MissionsByStatus,
		"watch_active_count":      s.WatchActiveCount,
		"synthesis_links":         s.SynthesisLinks,
		"last_event_at":           s.LastEventAt,
		"last_finding_at":         s.LastFindingAt,
		"last_artifact_at":        s.LastArtifactAt,
		"last_synthesis_at":       s.LastSynthesisAt,
		"density":                 s.Density,
		"coverage":                s.Coverage,
		"progress":                s.Progress,
	}
}

// AnalyzeState aggregates (project, branch) into a ProjectState.
func (e *Engine) AnalyzeState(ctx context.Context, projectID, branch string, cfg Config) (*ProjectState, error) {
	cfg = cfg.withDefaults()

	project, err := e.Store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	branchID, err := e.Store.ResolveBranchID(ctx, projectID, branch)
	if err != nil {
		return nil, err
	}

	state := &ProjectState{
		ProjectID:          projectID,
		Branch:             branch,
		BranchID:           branchID,
		Objective:          project.Objective,
		HypothesesByStatus: map[string]int{},
		MissionsByStatus:   map[string]int{},
	}
	db := e.Store.DB()

	err = db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(AVG(confidence), 0) FROM findings WHERE project_id=? AND branch_id=?",
		projectID, branchID,
	).Scan(&state.FindingsCount, &state.AvgConfidence)
	if err != nil {
		return nil, fmt.Errorf("aggregate findings: %w", err)
	}

	err = db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM findings
		 WHERE project_id=? AND branch_id=? AND (confidence < ? OR tags LIKE '%unverified%')`,
		projectID, branchID, cfg.VerifyThreshold,
	).Scan(&state.LowConfidenceCount)
	if err != nil {
		return nil, fmt.Errorf("count low-confidence findings: %w", err)
	}

	if state.LowConfidenceCount > 0 {
		rows, err := db.QueryContext(ctx,
			`SELECT id, title, confidence, tags FROM findings
			 WHERE project_id=? AND branch_id=? AND (confidence < ? OR tags LIKE '%unverified%')
			 ORDER BY confidence ASC, created_at DESC LIMIT 5`,
			projectID, branchID, cfg.VerifyThreshold)
		if err != nil {
			return nil, fmt.Errorf("sample low-confidence findings: %w", err)
		}
		for rows.Next() {
			var ex FindingExample
			if err := rows.Scan(&ex.ID, &ex.Title, &ex.Confidence, &ex.Tags); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan example: %w", err)
			}
			ex.Title = truncate(ex.Title, 120)
			ex.Tags = truncate(ex.Tags, 200)
			state.LowConfidenceExamples = append(state.LowConfidenceExamples, ex)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	err = db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM artifacts WHERE project_id=? AND branch_id=?",
		projectID, branchID,
	).Scan(&state.ArtifactsCount)
	if err != nil {
		return nil, fmt.Errorf("count artifacts: %w", err)
	}

	err = db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM branches WHERE project_id=?", projectID,
	).Scan(&state.BranchesCount)
	if err != nil {
		return nil, fmt.Errorf("count branches: %w", err)
	}

	if err := e.countByStatus(ctx, state.HypothesesByStatus,
		`SELECT h.status, COUNT(*) FROM hypotheses h
		 JOIN branches b ON b.id = h.branch_id
		 WHERE b.project_id=? AND h.branch_id=? GROUP BY h.status`,
		projectID, branchID); err != nil {
		return nil, fmt.Errorf("count hypotheses: %w", err)
	}
	if err := e.countByStatus(ctx, state.MissionsByStatus,
		"SELECT status, COUNT(*) FROM verification_missions WHERE project_id=? AND branch_id=? GROUP BY status",
		projectID, branchID); err != nil {
		return nil, fmt.Errorf("count missions: %w", err)
	}

	err = db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM watch_targets WHERE project_id=? AND branch_id=? AND status=?",
		projectID, branchID, protocol.WatchActive,
	).Scan(&state.WatchActiveCount)
	if err != nil {
		return nil, fmt.Errorf("count watch targets: %w", err)
	}

	// Links carry no branch column; the branch id recorded in their
	// metadata JSON makes this an approximate but stable count.
	err = db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM links WHERE link_type=? AND metadata LIKE ?",
		protocol.SynthesisLinkType, `%"branch_id":"`+branchID+`"%`,
	).Scan(&state.SynthesisLinks)
	if err != nil {
		return nil, fmt.Errorf("count synthesis links: %w", err)
	}

	if err := db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(timestamp), '') FROM events WHERE project_id=? AND branch_id=?",
		projectID, branchID).Scan(&state.LastEventAt); err != nil {
		return nil, fmt.Errorf("last event: %w", err)
	}
	if err := db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(created_at), '') FROM findings WHERE project_id=? AND branch_id=?",
		projectID, branchID).Scan(&state.LastFindingAt); err != nil {
		return nil, fmt.Errorf("last finding: %w", err)
	}
	if err := db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(created_at), '') FROM artifacts WHERE project_id=? AND branch_id=?",
		projectID, branchID).Scan(&state.LastArtifactAt); err != nil {
		return nil, fmt.Errorf("last artifact: %w", err)
	}
	if err := db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(timestamp), '') FROM events WHERE project_id=? AND branch_id=? AND event_type=?",
		projectID, branchID, protocol.EventSynthesis).Scan(&state.LastSynthesisAt); err != nil {
		return nil, fmt.Errorf("last synthesis: %w", err)
	}

	coverage, err := e.coverage(ctx, projectID, branchID, project.Objective, cfg.MaxFindingsForCoverage)
	if err != nil {
		return nil, err
	}
	state.Coverage = coverage
	state.Density = state.FindingsCount + state.ArtifactsCount
	state.Progress = progressScore(state)
	return state, nil
}

func (e *Engine) countByStatus(ctx context.Context, into map[string]int, query string, args ...any) error {
	rows, err := e.Store.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return err
		}
		into[status] = count
	}
	return rows.Err()
}

// coverage is the fraction of objective tokens echoed anywhere in the
// most recent findings. An objective with no extractable tokens is
// vacuously covered: 1.0, never 0.
func (e *Engine) coverage(ctx context.Context, projectID, branchID, objective string, maxFindings int) (float64, error) {
	objTokens := verify.Tokenize(objective)
	if len(objTokens) == 0 {
		return 1.0, nil
	}

	rows, err := e.Store.DB().QueryContext(ctx,
		`SELECT title, content FROM findings WHERE project_id=? AND branch_id=?
		 ORDER BY created_at DESC LIMIT ?`,
		projectID, branchID, maxFindings)
	if err != nil {
		return 0, fmt.Errorf("coverage findings: %w", err)
	}
	defer rows.Close()

	evidence := map[string]struct{}{}
	for rows.Next() {
		var title, content string
		if err := rows.Scan(&title, &content); err != nil {
			return 0, fmt.Errorf("scan coverage finding: %w", err)
		}
		for _, t := range verify.Tokenize(title + "\n" + content) {
			evidence[t] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	objSet := map[string]struct{}{}
	for _, t := range objTokens {
		objSet[t] = struct{}{}
	}
	covered := 0
	for t := range objSet {
		if _, ok := evidence[t]; ok {
			covered++
		}
	}
	return float64(covered) / float64(len(objSet)), nil
}

// progressScore blends coverage, evidence density, confidence, and an
// open-queue penalty with fixed weights. The formula is intentionally
// asymmetric for a zero-evidence branch; downstream consumers depend on
// the exact numbers, so do not retune it.
func progressScore(s *ProjectState) float64 {
	density := float64(s.Density) / 20
	if density > 1 {
		density = 1
	}
	penalty := float64(s.MissionsByStatus[protocol.MissionOpen]+s.MissionsByStatus[protocol.MissionBlocked]) / 40
	if penalty > 0.25 {
		penalty = 0.25
	}

	score := 0.45*s.Coverage + 0.35*density + 0.20*s.AvgConfidence - penalty
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Package verify plans and runs verification missions: scoped web
// searches that re-check low-confidence findings. Planning is
// idempotent; running consults the search cache before going live.
package verify

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"math"
	"net/url"
	"strings"

	"researchvault/pkg/protocol"
	"researchvault/pkg/search"
	"researchvault/pkg/vault"
)

// Service owns the mission lifecycle against a vault store.
type Service struct {
	Store  *vault.Store
	Search *search.Client
}

// NewService builds a mission service. The search client may be nil for
// plan-only use; Run requires it.
func NewService(store *vault.Store, client *search.Client) *Service {
	return &Service{Store: store, Search: client}
}

// PlanOpts configures mission planning. Zero values take the defaults.
type PlanOpts struct {
	Threshold   float64 // findings below this confidence are candidates; default 0.7
	MaxMissions int     // cap on new missions per planning pass; default 20
}

// PlannedMission describes one mission created by a planning pass.
type PlannedMission struct {
	MissionID string `json:"mission_id"`
	FindingID string `json:"finding_id"`
	Query     string `json:"query"`
}

// PlanMissions scans (project, branch) for findings below the
// confidence threshold or tagged unverified and enqueues search
// missions for them. Replanning is a no-op for queries already
// enqueued: the per-(project, branch, finding, query) dedup hash
// absorbs duplicates, and only genuinely new missions are returned.
func (s *Service) PlanMissions(ctx context.Context, projectID, branch string, opts PlanOpts) ([]PlannedMission, error) {
	branchID, err := s.Store.ResolveBranchID(ctx, projectID, branch)
	if err != nil {
		return nil, err
	}

	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = 0.7
	}
	maxMissions := opts.MaxMissions
	if maxMissions <= 0 {
		maxMissions = 20
	}

	rows, err := s.Store.DB().QueryContext(ctx,
		`SELECT id, title, content, evidence, confidence
		 FROM findings
		 WHERE project_id=? AND branch_id=? AND (confidence < ? OR tags LIKE '%unverified%')
		 ORDER BY confidence ASC, created_at DESC`,
		projectID, branchID, threshold,
	)
	if err != nil {
		return nil, fmt.Errorf("plan missions: %w", err)
	}
	defer rows.Close()

	type candidate struct {
		id         string
		title      string
		content    string
		evidence   string
		confidence float64
	}
	var candidates []candidate
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.id, &c.title, &c.content, &c.evidence, &c.confidence); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var planned []PlannedMission
	for _, c := range candidates {
		if len(planned) >= maxMissions {
			break
		}
		for _, query := range candidateQueries(c.title, c.content, vault.SourceURL(c.evidence)) {
			if len(planned) >= maxMissions {
				break
			}
			id, inserted, err := s.insertMission(ctx, projectID, branchID, c.id, query, c.confidence)
			if err != nil {
				return nil, err
			}
			if inserted {
				planned = append(planned, PlannedMission{MissionID: id, FindingID: c.id, Query: query})
			}
		}
	}

	if len(planned) > 0 {
		err := s.Store.LogEvent(ctx, vault.EventParams{
			ProjectID: projectID,
			Branch:    branch,
			Type:      protocol.EventVerify,
			Step:      "plan",
			Payload: map[string]any{
				"planned":   len(planned),
				"threshold": threshold,
			},
			Source: "verify",
		})
		if err != nil {
			return nil, err
		}
	}
	return planned, nil
}

func (s *Service) insertMission(ctx context.Context, projectID, branchID, findingID, query string, confidence float64) (string, bool, error) {
	dedup := missionDedupHash(projectID, branchID, findingID, query)

	var existing string
	err := s.Store.DB().QueryRowContext(ctx,
		"SELECT id FROM verification_missions WHERE dedup_hash=?", dedup,
	).Scan(&existing)
	if err == nil {
		return existing, false, nil
	}
	if err != sql.ErrNoRows {
		return "", false, fmt.Errorf("lookup mission: %w", err)
	}

	id := vault.NewID("mis_", 10)
	now := vault.NowISO()
	var inserted bool
	err = vault.RetryOnLock(func() error {
		res, err := s.Store.DB().ExecContext(ctx,
			`INSERT OR IGNORE INTO verification_missions
			 (id, project_id, branch_id, finding_id, mission_type, query, query_hash,
			  status, priority, created_at, updated_at, dedup_hash)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, projectID, branchID, findingID, protocol.MissionTypeSearch,
			query, vault.QueryHash(query),
			protocol.MissionOpen, missionPriority(confidence), now, now, dedup,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		inserted = n == 1
		return err
	})
	if err != nil {
		return "", false, fmt.Errorf("insert mission: %w", err)
	}
	if !inserted {
		// Raced with a concurrent planner; surface the winner's id.
		if err := s.Store.DB().QueryRowContext(ctx,
			"SELECT id FROM verification_missions WHERE dedup_hash=?", dedup,
		).Scan(&existing); err == nil {
			return existing, false, nil
		}
	}
	return id, inserted, nil
}

// candidateQueries derives between one and five search queries from a
// finding, best first, deduplicated on the normalized form.
func candidateQueries(title, content, sourceURL string) []string {
	keywords := ExtractKeywords(title+"\n"+content, 6)
	base := strings.TrimSpace(title)

	topKw := keywords
	if len(topKw) > 4 {
		topKw = topKw[:4]
	}
	kw := strings.Join(topKw, " ")

	var raw []string
	raw = append(raw, base)
	if base != "" && kw != "" && !strings.Contains(strings.ToLower(base), kw) {
		raw = append(raw, base+" "+kw)
	}
	if host := hostOf(sourceURL); host != "" {
		subject := base
		if subject == "" {
			subject = kw
		}
		if subject != "" {
			raw = append(raw, "site:"+host+" "+subject)
		}
	}
	raw = append(raw, kw)
	if base != "" {
		raw = append(raw, base+" evidence")
	}

	seen := map[string]struct{}{}
	var queries []string
	for _, q := range raw {
		norm := vault.NormalizeQuery(q)
		if norm == "" {
			continue
		}
		if _, dup := seen[norm]; dup {
			continue
		}
		seen[norm] = struct{}{}
		queries = append(queries, strings.TrimSpace(q))
	}
	return queries
}

func hostOf(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// missionPriority maps confidence to an integer urgency: the shakier
// the finding, the higher the priority.
func missionPriority(confidence float64) int {
	p := int(math.Round((1 - confidence) * 100))
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	return p
}

func missionDedupHash(projectID, branchID, findingID, query string) string {
	sum := sha256.Sum256([]byte(projectID + "|" + branchID + "|" + findingID + "|" + vault.QueryHash(query)))
	return hex.EncodeToString(sum[:])
}

package strategy

import (
	"context"
	"fmt"
	"strings"

	"researchvault/pkg/search"
	"researchvault/pkg/synthesis"
	"researchvault/pkg/vault"
	"researchvault/pkg/verify"
)

// Recommended actions.
const (
	ActionVerifyPlan = "VERIFY_PLAN"
	ActionVerifyRun  = "VERIFY_RUN"
	ActionSynthesize = "SYNTHESIZE"
	ActionScuttle    = "SCUTTLE"
)

// Recommendation is one suggested next action with its evidence.
type Recommendation struct {
	Action    string         `json:"action"`
	Title     string         `json:"title"`
	Rationale []string       `json:"rationale"`
	Commands  []string       `json:"commands"`
	Params    map[string]any `json:"params"`
}

// ToMap flattens the recommendation for JSON CLI output.
func (r *Recommendation) ToMap() map[string]any {
	return map[string]any{
		"action":    r.Action,
		"title":     r.Title,
		"rationale": r.Rationale,
		"commands":  r.Commands,
		"params":    r.Params,
	}
}

// Engine wires the analyzer/recommender/executor to its collaborators.
// SearchConfigured defaults to probing the provider env vars; tests
// override it.
type Engine struct {
	Store            *vault.Store
	Verify           *verify.Service
	Synthesis        Synthesizer
	SearchConfigured func() bool
}

// Synthesizer is the slice of the synthesis engine the executor needs.
// *synthesis.Engine satisfies it.
type Synthesizer interface {
	Synthesize(ctx context.Context, projectID, branch string, opts synthesis.Options) (*synthesis.Result, error)
}

// Recommend applies the fixed priority ladder to a project state. The
// ladder's exact ordering is load-bearing: first match wins, always.
func (e *Engine) Recommend(state *ProjectState, cfg Config) *Recommendation {
	cfg = cfg.withDefaults()
	scope := fmt.Sprintf("--project %s --branch %s", state.ProjectID, branchOrMain(state.Branch))

	// Rung 1: weak evidence outranks everything else.
	if state.LowConfidenceCount > 0 {
		if state.QueuedMissions() == 0 {
			return &Recommendation{
				Action: ActionVerifyPlan,
				Title:  "Queue verification missions for weak evidence",
				Rationale: []string{
					fmt.Sprintf("%d findings are below confidence %.2f or tagged unverified", state.LowConfidenceCount, cfg.VerifyThreshold),
					"no verification missions are queued yet",
				},
				Commands: []string{fmt.Sprintf("vault verify plan %s", scope)},
				Params: map[string]any{
					"threshold":    cfg.VerifyThreshold,
					"max_missions": cfg.MaxMissions,
				},
			}
		}

		rationale := []string{
			fmt.Sprintf("%d findings are below confidence %.2f or tagged unverified", state.LowConfidenceCount, cfg.VerifyThreshold),
			fmt.Sprintf("%d missions already queued", state.QueuedMissions()),
		}
		if !e.searchConfigured() {
			rationale = append(rationale, "no search backend configured; runs will park missions blocked until a key is set")
		}
		return &Recommendation{
			Action:    ActionVerifyRun,
			Title:     "Run queued verification missions",
			Rationale: rationale,
			Commands:  []string{fmt.Sprintf("vault verify run %s --limit %d", scope, cfg.RunLimit)},
			Params:    map[string]any{"limit": cfg.RunLimit},
		}
	}

	// Rung 2: enough material, and something new since the last pass.
	if state.Density >= cfg.DensityThreshold && newMaterialSinceSynthesis(state) {
		return &Recommendation{
			Action: ActionSynthesize,
			Title:  "Link related evidence",
			Rationale: []string{
				fmt.Sprintf("evidence density %d meets threshold %d", state.Density, cfg.DensityThreshold),
				synthesisRecencyNote(state),
			},
			Commands: []string{fmt.Sprintf("vault synthesize %s", scope)},
			Params: map[string]any{
				"threshold": cfg.SynthThreshold,
				"top_k":     cfg.TopK,
				"max_links": cfg.MaxLinks,
			},
		}
	}

	// Rung 3: too little material to do anything clever with.
	if state.FindingsCount < cfg.FindingsLow || state.Coverage < cfg.CoverageLow {
		keywords := verify.ExtractKeywords(state.Objective, 6)
		return &Recommendation{
			Action: ActionScuttle,
			Title:  "Gather more source material",
			Rationale: []string{
				fmt.Sprintf("%d findings (minimum %d) with coverage %.2f (minimum %.2f)",
					state.FindingsCount, cfg.FindingsLow, state.Coverage, cfg.CoverageLow),
				"objective keywords are not yet reflected in the evidence",
			},
			Commands: []string{
				fmt.Sprintf("vault finding add %s --title ... --url ...", scope),
				fmt.Sprintf("vault watch add %s --type query --target %q", scope, strings.Join(keywords, " ")),
			},
			Params: map[string]any{
				"urgent":             true,
				"suggested_keywords": keywords,
			},
		}
	}

	// Rung 4: nothing urgent. Bootstrap synthesis once, else keep gathering.
	if state.Density > 0 && state.LastSynthesisAt == "" {
		return &Recommendation{
			Action: ActionSynthesize,
			Title:  "Bootstrap the link graph",
			Rationale: []string{
				fmt.Sprintf("%d entities present and synthesis has never run", state.Density),
			},
			Commands: []string{fmt.Sprintf("vault synthesize %s", scope)},
			Params: map[string]any{
				"threshold": cfg.SynthThreshold,
				"top_k":     cfg.TopK,
				"max_links": cfg.MaxLinks,
			},
		}
	}
	return &Recommendation{
		Action: ActionScuttle,
		Title:  "Continue gathering source material",
		Rationale: []string{
			fmt.Sprintf("coverage %.2f and %d findings; no verification or synthesis work pending",
				state.Coverage, state.FindingsCount),
		},
		Commands: []string{fmt.Sprintf("vault finding add %s --title ... --url ...", scope)},
		Params: map[string]any{
			"urgent":             false,
			"suggested_keywords": verify.ExtractKeywords(state.Objective, 6),
		},
	}
}

func (e *Engine) searchConfigured() bool {
	if e.SearchConfigured != nil {
		return e.SearchConfigured()
	}
	return search.AnyConfigured()
}

// newMaterialSinceSynthesis reports whether a finding or artifact
// landed after the last synthesis pass, or synthesis has never run.
func newMaterialSinceSynthesis(s *ProjectState) bool {
	if s.LastSynthesisAt == "" {
		return true
	}
	lastMaterial := vault.ParseTime(s.LastFindingAt)
	if lastArtifact := vault.ParseTime(s.LastArtifactAt); lastArtifact.After(lastMaterial) {
		lastMaterial = lastArtifact
	}
	if lastMaterial.IsZero() {
		return false
	}
	return lastMaterial.After(vault.ParseTime(s.LastSynthesisAt))
}

func synthesisRecencyNote(s *ProjectState) string {
	if s.LastSynthesisAt == "" {
		return "synthesis has never run on this branch"
	}
	return fmt.Sprintf("evidence newer than the last synthesis pass at %s", s.LastSynthesisAt)
}

func branchOrMain(branch string) string {
	if branch == "" {
		return "main"
	}
	return branch
}

package main

import (
	"context"

	"researchvault/pkg/strategy"
	"researchvault/pkg/vault"
	"researchvault/pkg/verify"
)

// Snapshot is one refresh of everything the dashboard renders.
type Snapshot struct {
	State          *strategy.ProjectState
	Recommendation *strategy.Recommendation
	Missions       []verify.MissionSummary
	Err            error
}

// fetchSnapshot reads the current project state, recommendation, and
// mission queue. The dashboard never writes; the strategy engine is
// used for analysis only.
func fetchSnapshot(store *vault.Store, project, branch string) Snapshot {
	ctx := context.Background()
	engine := &strategy.Engine{Store: store}
	cfg := strategy.DefaultConfig()

	state, err := engine.AnalyzeState(ctx, project, branch, cfg)
	if err != nil {
		return Snapshot{Err: err}
	}
	rec := engine.Recommend(state, cfg)

	missions, err := verify.NewService(store, nil).ListMissions(ctx, project, branch, "", 50)
	if err != nil {
		return Snapshot{Err: err}
	}
	return Snapshot{State: state, Recommendation: rec, Missions: missions}
}

package strategy

import (
	"context"

	"researchvault/pkg/protocol"
	"researchvault/pkg/synthesis"
	"researchvault/pkg/verify"
)

// Execution is the outcome of acting on a recommendation. Failures are
// data, not errors: a SCUTTLE recommendation always "fails" because it
// needs human-supplied material.
type Execution struct {
	Action string         `json:"action"`
	OK     bool           `json:"ok"`
	Detail map[string]any `json:"detail,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// ToMap flattens the execution for JSON CLI output.
func (x *Execution) ToMap() map[string]any {
	return map[string]any{
		"action": x.Action,
		"ok":     x.OK,
		"detail": x.Detail,
		"error":  x.Error,
	}
}

// Execute carries out a recommendation. VERIFY_RUN succeeds only when
// at least one mission ran and every one of them ended done; a mixed
// batch is not success. SYNTHESIZE succeeds whenever the pass completes,
// even with zero links. SCUTTLE always reports failure.
func (e *Engine) Execute(ctx context.Context, projectID, branch string, rec *Recommendation, cfg Config) *Execution {
	cfg = cfg.withDefaults()
	out := &Execution{Action: rec.Action, Detail: map[string]any{}}

	switch rec.Action {
	case ActionVerifyPlan:
		planned, err := e.Verify.PlanMissions(ctx, projectID, branch, verify.PlanOpts{
			Threshold:   cfg.VerifyThreshold,
			MaxMissions: cfg.MaxMissions,
		})
		if err != nil {
			out.Error = err.Error()
			return out
		}
		out.OK = true
		out.Detail["planned"] = len(planned)

	case ActionVerifyRun:
		results, err := e.Verify.RunMissions(ctx, projectID, branch, verify.RunOpts{Limit: cfg.RunLimit})
		if err != nil {
			out.Error = err.Error()
			return out
		}
		done := 0
		for _, r := range results {
			if r.Status == protocol.MissionDone {
				done++
			}
		}
		out.Detail["ran"] = len(results)
		out.Detail["done"] = done
		out.OK = len(results) > 0 && done == len(results)
		if !out.OK {
			out.Error = "not every mission completed"
		}

	case ActionSynthesize:
		result, err := e.Synthesis.Synthesize(ctx, projectID, branch, synthesis.Options{
			Threshold: cfg.SynthThreshold,
			TopK:      cfg.TopK,
			MaxLinks:  cfg.MaxLinks,
			Persist:   true,
		})
		if err != nil {
			out.Error = err.Error()
			return out
		}
		out.OK = true
		out.Detail["entities"] = result.Entities
		out.Detail["links"] = len(result.Links)
		out.Detail["persisted"] = result.Persisted

	case ActionScuttle:
		out.Error = "requires new source material; add findings or register a watch target"

	default:
		out.Error = "unknown action " + rec.Action
	}
	return out
}

// Strategize is the one-shot analyze -> recommend -> optionally execute
// wrapper, returning a flat map tree for callers that serialize it.
func (e *Engine) Strategize(ctx context.Context, projectID, branch string, cfg Config, execute bool) (map[string]any, error) {
	state, err := e.AnalyzeState(ctx, projectID, branch, cfg)
	if err != nil {
		return nil, err
	}
	rec := e.Recommend(state, cfg)

	out := map[string]any{
		"state":          state.ToMap(),
		"recommendation": rec.ToMap(),
	}
	if execute {
		out["execution"] = e.Execute(ctx, projectID, branch, rec, cfg).ToMap()
	}
	return out, nil
}

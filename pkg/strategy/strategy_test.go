package strategy

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"researchvault/pkg/protocol"
	"researchvault/pkg/synthesis"
	"researchvault/pkg/vault"
	"researchvault/pkg/verify"

	_ "modernc.org/sqlite"
)

func setupTestEngine(t *testing.T) (*Engine, string) {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(protocol.SchemaDDL); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	store := vault.NewStore(db)
	projectID, err := store.StartProject(context.Background(),
		"prj_strategy", "fusion survey", "map recent fusion energy milestones", 0)
	if err != nil {
		t.Fatalf("StartProject: %v", err)
	}
	engine := &Engine{
		Store:            store,
		Verify:           verify.NewService(store, nil),
		SearchConfigured: func() bool { return true },
	}
	return engine, projectID
}

func addFinding(t *testing.T, e *Engine, projectID, title, content string, confidence float64) {
	t.Helper()
	_, err := e.Store.AddFinding(context.Background(), vault.FindingParams{
		ProjectID: projectID, Title: title, Content: content, Confidence: confidence,
	})
	if err != nil {
		t.Fatalf("AddFinding: %v", err)
	}
}

type fakeSynthesizer struct {
	result synthesis.Result
	calls  int
}

func (f *fakeSynthesizer) Synthesize(ctx context.Context, projectID, branch string, opts synthesis.Options) (*synthesis.Result, error) {
	f.calls++
	r := f.result
	return &r, nil
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg != DefaultConfig() {
		t.Errorf("empty path cfg = %+v, want defaults", cfg)
	}

	cfg, err = LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("LoadConfig missing file: %v", err)
	}
	if cfg != DefaultConfig() {
		t.Errorf("missing file cfg = %+v, want defaults", cfg)
	}
}

func TestLoadConfigPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strategy.toml")
	raw := "verify_threshold = 0.5\nmax_missions = 3\n"
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.VerifyThreshold != 0.5 || cfg.MaxMissions != 3 {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.RunLimit != 5 || cfg.SynthThreshold != 0.78 || cfg.DensityThreshold != 8 {
		t.Errorf("unset fields should keep defaults: %+v", cfg)
	}
}

func TestRecommendWeakEvidenceNoQueue(t *testing.T) {
	e := &Engine{SearchConfigured: func() bool { return true }}
	state := &ProjectState{
		ProjectID:          "prj_x",
		Objective:          "map fusion milestones",
		FindingsCount:      6,
		LowConfidenceCount: 3,
		MissionsByStatus:   map[string]int{},
	}

	rec := e.Recommend(state, Config{})
	if rec.Action != ActionVerifyPlan {
		t.Fatalf("action = %q, want %q", rec.Action, ActionVerifyPlan)
	}
	if len(rec.Commands) == 0 || !strings.Contains(rec.Commands[0], "vault verify plan") {
		t.Errorf("commands = %v", rec.Commands)
	}
	if !strings.Contains(rec.Commands[0], "--branch main") {
		t.Errorf("empty branch should render as main: %v", rec.Commands)
	}
}

func TestRecommendWeakEvidenceWithQueue(t *testing.T) {
	e := &Engine{SearchConfigured: func() bool { return false }}
	state := &ProjectState{
		ProjectID:          "prj_x",
		Branch:             "alt",
		LowConfidenceCount: 2,
		MissionsByStatus:   map[string]int{protocol.MissionOpen: 2},
	}

	rec := e.Recommend(state, Config{})
	if rec.Action != ActionVerifyRun {
		t.Fatalf("action = %q, want %q", rec.Action, ActionVerifyRun)
	}
	warned := false
	for _, line := range rec.Rationale {
		if strings.Contains(line, "no search backend configured") {
			warned = true
		}
	}
	if !warned {
		t.Errorf("missing credentials warning absent: %v", rec.Rationale)
	}
	if !strings.Contains(rec.Commands[0], "--branch alt") {
		t.Errorf("commands = %v", rec.Commands)
	}
}

func TestRecommendBlockedQueueStillRuns(t *testing.T) {
	// Every mission parked blocked after a keyless run is still a
	// queue: the answer is to run them once a provider is configured,
	// not to re-plan (which would be a no-op reporting success).
	e := &Engine{SearchConfigured: func() bool { return false }}
	state := &ProjectState{
		ProjectID:          "prj_x",
		LowConfidenceCount: 2,
		MissionsByStatus:   map[string]int{protocol.MissionBlocked: 2},
	}

	rec := e.Recommend(state, Config{})
	if rec.Action != ActionVerifyRun {
		t.Fatalf("action = %q, want %q for a blocked-only queue", rec.Action, ActionVerifyRun)
	}
}

func TestRecommendSynthesizeOnDensity(t *testing.T) {
	e := &Engine{SearchConfigured: func() bool { return true }}
	state := &ProjectState{
		ProjectID:        "prj_x",
		FindingsCount:    8,
		Density:          9,
		Coverage:         0.6,
		MissionsByStatus: map[string]int{},
		LastFindingAt:    "2026-02-02T00:00:00+00:00",
		LastSynthesisAt:  "2026-02-01T00:00:00+00:00",
	}

	rec := e.Recommend(state, Config{})
	if rec.Action != ActionSynthesize {
		t.Fatalf("action = %q, want %q", rec.Action, ActionSynthesize)
	}
	if rec.Params["threshold"] != 0.78 {
		t.Errorf("params = %v", rec.Params)
	}
}

func TestRecommendSynthesizeSkippedWithoutNewMaterial(t *testing.T) {
	e := &Engine{SearchConfigured: func() bool { return true }}
	state := &ProjectState{
		ProjectID:        "prj_x",
		FindingsCount:    9,
		Density:          9,
		Coverage:         0.6,
		MissionsByStatus: map[string]int{},
		LastFindingAt:    "2026-02-01T00:00:00+00:00",
		LastSynthesisAt:  "2026-02-02T00:00:00+00:00",
	}

	rec := e.Recommend(state, Config{})
	if rec.Action == ActionSynthesize {
		t.Fatalf("synthesize recommended with no material newer than the last pass")
	}
}

func TestRecommendSynthesizeOnNewArtifacts(t *testing.T) {
	e := &Engine{SearchConfigured: func() bool { return true }}
	state := &ProjectState{
		ProjectID:        "prj_x",
		FindingsCount:    4,
		Density:          9,
		Coverage:         0.6,
		MissionsByStatus: map[string]int{},
		LastFindingAt:    "2026-02-01T00:00:00+00:00",
		LastArtifactAt:   "2026-02-03T00:00:00+00:00",
		LastSynthesisAt:  "2026-02-02T00:00:00+00:00",
	}

	rec := e.Recommend(state, Config{})
	if rec.Action != ActionSynthesize {
		t.Fatalf("action = %q, want %q when an artifact postdates synthesis", rec.Action, ActionSynthesize)
	}
}

func TestRecommendScuttleOnThinEvidence(t *testing.T) {
	e := &Engine{SearchConfigured: func() bool { return true }}
	state := &ProjectState{
		ProjectID:        "prj_x",
		Objective:        "track perovskite solar efficiency records",
		FindingsCount:    1,
		Density:          1,
		Coverage:         0.1,
		MissionsByStatus: map[string]int{},
	}

	rec := e.Recommend(state, Config{})
	if rec.Action != ActionScuttle {
		t.Fatalf("action = %q, want %q", rec.Action, ActionScuttle)
	}
	if rec.Params["urgent"] != true {
		t.Errorf("thin evidence should be urgent: %v", rec.Params)
	}
	keywords, ok := rec.Params["suggested_keywords"].([]string)
	if !ok || len(keywords) == 0 {
		t.Fatalf("suggested_keywords = %v", rec.Params["suggested_keywords"])
	}
	joined := strings.Join(keywords, " ")
	if !strings.Contains(joined, "perovskite") {
		t.Errorf("keywords %v should come from the objective", keywords)
	}
}

func TestRecommendBootstrapSynthesis(t *testing.T) {
	e := &Engine{SearchConfigured: func() bool { return true }}
	state := &ProjectState{
		ProjectID:        "prj_x",
		FindingsCount:    5,
		Density:          5,
		Coverage:         0.5,
		MissionsByStatus: map[string]int{},
		LastSynthesisAt:  "",
	}

	rec := e.Recommend(state, Config{})
	if rec.Action != ActionSynthesize {
		t.Fatalf("action = %q, want %q (bootstrap)", rec.Action, ActionSynthesize)
	}
}

func TestRecommendIdleFallback(t *testing.T) {
	e := &Engine{SearchConfigured: func() bool { return true }}
	state := &ProjectState{
		ProjectID:        "prj_x",
		FindingsCount:    5,
		Density:          5,
		Coverage:         0.5,
		MissionsByStatus: map[string]int{},
		LastFindingAt:    "2026-02-01T00:00:00+00:00",
		LastSynthesisAt:  "2026-02-02T00:00:00+00:00",
	}

	rec := e.Recommend(state, Config{})
	if rec.Action != ActionScuttle {
		t.Fatalf("action = %q, want %q", rec.Action, ActionScuttle)
	}
	if rec.Params["urgent"] != false {
		t.Errorf("idle fallback should not be urgent: %v", rec.Params)
	}
}

func TestAnalyzeStateAggregates(t *testing.T) {
	e, projectID := setupTestEngine(t)
	ctx := context.Background()

	addFinding(t, e, projectID, "fusion energy milestones overview",
		"recent fusion energy milestones at several labs", 0.9)
	addFinding(t, e, projectID, "rumor", "unsourced claim", 0.3)

	state, err := e.AnalyzeState(ctx, projectID, "", Config{})
	if err != nil {
		t.Fatalf("AnalyzeState: %v", err)
	}
	if state.FindingsCount != 2 {
		t.Errorf("findings = %d, want 2", state.FindingsCount)
	}
	if state.LowConfidenceCount != 1 {
		t.Errorf("low confidence = %d, want 1", state.LowConfidenceCount)
	}
	if len(state.LowConfidenceExamples) != 1 || state.LowConfidenceExamples[0].Title != "rumor" {
		t.Errorf("examples = %+v", state.LowConfidenceExamples)
	}
	if state.Density != 2 {
		t.Errorf("density = %d, want 2", state.Density)
	}
	// Objective tokens: map, recent, fusion, energy, milestones.
	// The first finding echoes four of the five.
	if state.Coverage < 0.79 || state.Coverage > 0.81 {
		t.Errorf("coverage = %v, want 0.8", state.Coverage)
	}
	if state.Progress <= 0 || state.Progress > 1 {
		t.Errorf("progress = %v out of range", state.Progress)
	}
}

func TestAnalyzeStateExamplesNewestFirstOnTies(t *testing.T) {
	e, projectID := setupTestEngine(t)
	ctx := context.Background()

	var last string
	for i := 0; i < 3; i++ {
		id, err := e.Store.AddFinding(ctx, vault.FindingParams{
			ProjectID: projectID, Title: fmt.Sprintf("equally shaky claim %d", i), Confidence: 0.3,
		})
		if err != nil {
			t.Fatalf("AddFinding: %v", err)
		}
		last = id
	}

	state, err := e.AnalyzeState(ctx, projectID, "", Config{})
	if err != nil {
		t.Fatalf("AnalyzeState: %v", err)
	}
	if len(state.LowConfidenceExamples) != 3 {
		t.Fatalf("examples = %d, want 3", len(state.LowConfidenceExamples))
	}
	if state.LowConfidenceExamples[0].ID != last {
		t.Errorf("first example = %s, want the newest finding %s on equal confidence",
			state.LowConfidenceExamples[0].ID, last)
	}
}

func TestAnalyzeStateTracksArtifacts(t *testing.T) {
	e, projectID := setupTestEngine(t)
	ctx := context.Background()

	root := t.TempDir()
	e.Store.SetArtifactRoots(root)
	if _, err := e.Store.AddArtifact(ctx, vault.ArtifactParams{
		ProjectID: projectID, Path: filepath.Join(root, "notes.md"),
	}); err != nil {
		t.Fatalf("AddArtifact: %v", err)
	}

	state, err := e.AnalyzeState(ctx, projectID, "", Config{})
	if err != nil {
		t.Fatalf("AnalyzeState: %v", err)
	}
	if state.ArtifactsCount != 1 || state.Density != 1 {
		t.Errorf("artifacts = %d, density = %d, want 1 and 1", state.ArtifactsCount, state.Density)
	}
	if state.LastArtifactAt == "" {
		t.Error("LastArtifactAt not aggregated")
	}
}

func TestAnalyzeStateVacuousCoverage(t *testing.T) {
	e, _ := setupTestEngine(t)
	ctx := context.Background()

	// An objective made only of stopwords and short words yields no
	// tokens, so coverage is vacuously complete even with no findings.
	projectID, err := e.Store.StartProject(ctx, "prj_vacuous", "tbd", "to be of it", 0)
	if err != nil {
		t.Fatalf("StartProject: %v", err)
	}

	state, err := e.AnalyzeState(ctx, projectID, "", Config{})
	if err != nil {
		t.Fatalf("AnalyzeState: %v", err)
	}
	if state.Coverage != 1.0 {
		t.Errorf("coverage = %v, want 1.0", state.Coverage)
	}
}

func TestExecuteScuttleAlwaysFails(t *testing.T) {
	e, projectID := setupTestEngine(t)

	out := e.Execute(context.Background(), projectID, "",
		&Recommendation{Action: ActionScuttle}, Config{})
	if out.OK {
		t.Error("scuttle should never report success")
	}
	if !strings.Contains(out.Error, "source material") {
		t.Errorf("error = %q", out.Error)
	}
}

func TestExecuteVerifyPlan(t *testing.T) {
	e, projectID := setupTestEngine(t)

	addFinding(t, e, projectID, "shaky measurement of plasma confinement", "needs a second source", 0.3)

	out := e.Execute(context.Background(), projectID, "",
		&Recommendation{Action: ActionVerifyPlan}, Config{})
	if !out.OK {
		t.Fatalf("plan failed: %q", out.Error)
	}
	if planned, _ := out.Detail["planned"].(int); planned < 1 {
		t.Errorf("planned = %v, want >= 1", out.Detail["planned"])
	}
}

func TestExecuteVerifyRunEmptyBatchFails(t *testing.T) {
	e, projectID := setupTestEngine(t)

	out := e.Execute(context.Background(), projectID, "",
		&Recommendation{Action: ActionVerifyRun}, Config{})
	if out.OK {
		t.Error("a run with zero missions is not success")
	}
	if out.Error != "not every mission completed" {
		t.Errorf("error = %q", out.Error)
	}
}

func TestExecuteSynthesize(t *testing.T) {
	e, projectID := setupTestEngine(t)
	fake := &fakeSynthesizer{result: synthesis.Result{
		Entities:  4,
		Links:     []synthesis.LinkScore{{SourceID: "a", TargetID: "b", Score: 0.9}},
		Persisted: 1,
	}}
	e.Synthesis = fake

	out := e.Execute(context.Background(), projectID, "",
		&Recommendation{Action: ActionSynthesize}, Config{})
	if !out.OK {
		t.Fatalf("synthesize failed: %q", out.Error)
	}
	if fake.calls != 1 {
		t.Errorf("synthesizer calls = %d, want 1", fake.calls)
	}
	if out.Detail["entities"] != 4 || out.Detail["links"] != 1 || out.Detail["persisted"] != 1 {
		t.Errorf("detail = %v", out.Detail)
	}
}

func TestExecuteUnknownAction(t *testing.T) {
	e, projectID := setupTestEngine(t)

	out := e.Execute(context.Background(), projectID, "",
		&Recommendation{Action: "REBOOT"}, Config{})
	if out.OK || !strings.Contains(out.Error, "unknown action") {
		t.Errorf("execution = %+v", out)
	}
}

func TestStrategizeEndToEnd(t *testing.T) {
	e, projectID := setupTestEngine(t)
	ctx := context.Background()

	addFinding(t, e, projectID, "weak source on tokamak output", "single blog post", 0.2)

	out, err := e.Strategize(ctx, projectID, "", Config{}, true)
	if err != nil {
		t.Fatalf("Strategize: %v", err)
	}
	rec, ok := out["recommendation"].(map[string]any)
	if !ok {
		t.Fatalf("recommendation missing: %v", out)
	}
	if rec["action"] != ActionVerifyPlan {
		t.Errorf("action = %v, want %s", rec["action"], ActionVerifyPlan)
	}
	exec, ok := out["execution"].(map[string]any)
	if !ok {
		t.Fatalf("execution missing: %v", out)
	}
	if exec["ok"] != true {
		t.Errorf("execution = %v", exec)
	}

	// Re-analyze: the planned missions now show up in the queue.
	state, err := e.AnalyzeState(ctx, projectID, "", Config{})
	if err != nil {
		t.Fatalf("AnalyzeState: %v", err)
	}
	if state.QueuedMissions() == 0 {
		t.Error("plan execution queued no missions")
	}
}

func TestProgressScoreBounds(t *testing.T) {
	zero := &ProjectState{MissionsByStatus: map[string]int{protocol.MissionOpen: 100}}
	if got := progressScore(zero); got != 0 {
		t.Errorf("all-penalty score = %v, want 0", got)
	}

	full := &ProjectState{
		Coverage:         1.0,
		Density:          40,
		AvgConfidence:    1.0,
		MissionsByStatus: map[string]int{},
	}
	if got := progressScore(full); got < 0.999 || got > 1 {
		t.Errorf("saturated score = %v, want 1", got)
	}
}

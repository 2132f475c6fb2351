package verify

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"testing"

	"researchvault/pkg/protocol"
	"researchvault/pkg/search"
	"researchvault/pkg/vault"

	_ "modernc.org/sqlite"
)

func setupTestStore(t *testing.T) *vault.Store {
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

	return vault.NewStore(db)
}

// fakeProvider returns canned results or a scripted error.
type fakeProvider struct {
	err   error
	calls int
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Search(_ context.Context, query string) (map[string]any, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return map[string]any{
		"web": map[string]any{
			"results": []any{
				map[string]any{"url": "https://example.com/a", "title": "Result for " + query},
			},
		},
	}, nil
}

func newTestService(t *testing.T, provider search.Provider) (*Service, string) {
	t.Helper()
	store := setupTestStore(t)
	projectID, err := store.StartProject(context.Background(), "prj_verify", "p", "test objective", 0)
	if err != nil {
		t.Fatalf("StartProject: %v", err)
	}
	client := &search.Client{Store: store, Provider: provider}
	return NewService(store, client), projectID
}

func addFinding(t *testing.T, s *Service, projectID, title string, confidence float64) string {
	t.Helper()
	id, err := s.Store.AddFinding(context.Background(), vault.FindingParams{
		ProjectID:  projectID,
		Title:      title,
		Content:    "some supporting content about " + title,
		SourceURL:  "https://src.example.org/doc",
		Confidence: confidence,
	})
	if err != nil {
		t.Fatalf("AddFinding: %v", err)
	}
	return id
}

func TestPlanMissionsTargetsWeakFindingsOnly(t *testing.T) {
	svc, projectID := newTestService(t, &fakeProvider{})
	ctx := context.Background()

	weak := map[string]float64{}
	for i := 0; i < 10; i++ {
		conf := 0.9
		if i < 2 {
			conf = 0.3 + float64(i)*0.1 // 0.3 and 0.4
		}
		id := addFinding(t, svc, projectID, fmt.Sprintf("topic number %d detail", i), conf)
		if conf < 0.7 {
			weak[id] = conf
		}
	}

	planned, err := svc.PlanMissions(ctx, projectID, "", PlanOpts{Threshold: 0.7})
	if err != nil {
		t.Fatalf("PlanMissions: %v", err)
	}
	if len(planned) == 0 {
		t.Fatal("expected missions for the two weak findings")
	}

	perFinding := map[string]int{}
	for _, m := range planned {
		if _, ok := weak[m.FindingID]; !ok {
			t.Errorf("mission planned for strong finding %s", m.FindingID)
		}
		if !strings.HasPrefix(m.MissionID, "mis_") {
			t.Errorf("mission id %q, want mis_ prefix", m.MissionID)
		}
		perFinding[m.FindingID]++
	}
	if len(perFinding) != 2 {
		t.Errorf("missions span %d findings, want 2", len(perFinding))
	}
	for id, n := range perFinding {
		if n < 1 || n > 5 {
			t.Errorf("finding %s got %d queries, want 1..5", id, n)
		}
	}

	// Priority tracks uncertainty.
	for _, m := range planned {
		var priority int
		if err := svc.Store.DB().QueryRow(
			"SELECT priority FROM verification_missions WHERE id=?", m.MissionID).Scan(&priority); err != nil {
			t.Fatalf("read priority: %v", err)
		}
		want := int(math.Round((1 - weak[m.FindingID]) * 100))
		if priority != want {
			t.Errorf("mission %s priority = %d, want %d", m.MissionID, priority, want)
		}
	}
}

func TestPlanMissionsIsIdempotent(t *testing.T) {
	svc, projectID := newTestService(t, &fakeProvider{})
	ctx := context.Background()
	addFinding(t, svc, projectID, "shaky claim about turbines", 0.2)

	first, err := svc.PlanMissions(ctx, projectID, "", PlanOpts{})
	if err != nil {
		t.Fatalf("PlanMissions: %v", err)
	}
	if len(first) == 0 {
		t.Fatal("first plan created nothing")
	}

	second, err := svc.PlanMissions(ctx, projectID, "", PlanOpts{})
	if err != nil {
		t.Fatalf("PlanMissions (replan): %v", err)
	}
	if len(second) != 0 {
		t.Errorf("replan created %d missions, want 0", len(second))
	}

	var count int
	if err := svc.Store.DB().QueryRow("SELECT COUNT(*) FROM verification_missions").Scan(&count); err != nil {
		t.Fatalf("count missions: %v", err)
	}
	if count != len(first) {
		t.Errorf("rows = %d, want %d", count, len(first))
	}
}

func TestPlanMissionsUnverifiedTag(t *testing.T) {
	svc, projectID := newTestService(t, &fakeProvider{})
	ctx := context.Background()

	_, err := svc.Store.AddFinding(ctx, vault.FindingParams{
		ProjectID: projectID, Title: "confident but unchecked", Tags: "unverified", Confidence: 0.95,
	})
	if err != nil {
		t.Fatalf("AddFinding: %v", err)
	}

	planned, err := svc.PlanMissions(ctx, projectID, "", PlanOpts{})
	if err != nil {
		t.Fatalf("PlanMissions: %v", err)
	}
	if len(planned) == 0 {
		t.Error("unverified tag should queue missions regardless of confidence")
	}
}

func TestRunMissionsSuccess(t *testing.T) {
	provider := &fakeProvider{}
	svc, projectID := newTestService(t, provider)
	ctx := context.Background()
	addFinding(t, svc, projectID, "weak lead on superconductors", 0.4)

	if _, err := svc.PlanMissions(ctx, projectID, "", PlanOpts{}); err != nil {
		t.Fatalf("PlanMissions: %v", err)
	}

	results, err := svc.RunMissions(ctx, projectID, "", RunOpts{Limit: 10})
	if err != nil {
		t.Fatalf("RunMissions: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("no missions ran")
	}

	for _, r := range results {
		if r.Status != protocol.MissionDone {
			t.Errorf("mission %s status = %s, want done", r.MissionID, r.Status)
		}
		var completedAt, lastError string
		if err := svc.Store.DB().QueryRow(
			"SELECT COALESCE(completed_at, ''), last_error FROM verification_missions WHERE id=?",
			r.MissionID).Scan(&completedAt, &lastError); err != nil {
			t.Fatalf("read mission: %v", err)
		}
		if completedAt == "" {
			t.Errorf("mission %s done without completed_at", r.MissionID)
		}
		if lastError != "" {
			t.Errorf("mission %s done with last_error %q", r.MissionID, lastError)
		}
	}

	// Identical queries hit the cache on a second batch, not the provider.
	callsAfterFirst := provider.calls
	if err := svc.SetMissionStatus(ctx, results[0].MissionID, protocol.MissionOpen, ""); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if _, err := svc.RunMissions(ctx, projectID, "", RunOpts{Limit: 1}); err != nil {
		t.Fatalf("RunMissions (rerun): %v", err)
	}
	if provider.calls != callsAfterFirst {
		t.Errorf("provider called %d times on rerun, want cache hit", provider.calls-callsAfterFirst)
	}
}

func TestRunMissionsMissingCredentialsBlocks(t *testing.T) {
	provider := &fakeProvider{err: &protocol.MissingCredentialsError{Provider: "brave", EnvVar: "BRAVE_API_KEY"}}
	svc, projectID := newTestService(t, provider)
	ctx := context.Background()
	addFinding(t, svc, projectID, "needs checking", 0.3)

	if _, err := svc.PlanMissions(ctx, projectID, "", PlanOpts{}); err != nil {
		t.Fatalf("PlanMissions: %v", err)
	}
	results, err := svc.RunMissions(ctx, projectID, "", RunOpts{Limit: 1})
	if err != nil {
		t.Fatalf("RunMissions: %v", err)
	}
	if len(results) != 1 || results[0].Status != protocol.MissionBlocked {
		t.Fatalf("results = %+v, want one blocked mission", results)
	}

	var lastError string
	if err := svc.Store.DB().QueryRow(
		"SELECT last_error FROM verification_missions WHERE id=?", results[0].MissionID).Scan(&lastError); err != nil {
		t.Fatalf("read mission: %v", err)
	}
	if lastError == "" {
		t.Error("blocked mission must record a non-empty last_error")
	}
}

func TestRunMissionsBlockedStatusRetries(t *testing.T) {
	provider := &fakeProvider{err: &protocol.MissingCredentialsError{Provider: "brave", EnvVar: "BRAVE_API_KEY"}}
	svc, projectID := newTestService(t, provider)
	ctx := context.Background()
	addFinding(t, svc, projectID, "parked behind missing key", 0.3)

	if _, err := svc.PlanMissions(ctx, projectID, "", PlanOpts{MaxMissions: 1}); err != nil {
		t.Fatalf("PlanMissions: %v", err)
	}
	if _, err := svc.RunMissions(ctx, projectID, "", RunOpts{Limit: 1}); err != nil {
		t.Fatalf("RunMissions: %v", err)
	}

	// A default run never picks parked missions back up.
	results, err := svc.RunMissions(ctx, projectID, "", RunOpts{Limit: 10})
	if err != nil {
		t.Fatalf("RunMissions (open): %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("default run picked up %d blocked missions, want 0", len(results))
	}

	// Once credentials exist, a blocked-targeted run completes them.
	provider.err = nil
	results, err = svc.RunMissions(ctx, projectID, "", RunOpts{Limit: 10, Status: protocol.MissionBlocked})
	if err != nil {
		t.Fatalf("RunMissions (blocked): %v", err)
	}
	if len(results) != 1 || results[0].Status != protocol.MissionDone {
		t.Fatalf("results = %+v, want the parked mission done", results)
	}

	var ve *protocol.ValidationError
	if _, err := svc.RunMissions(ctx, projectID, "", RunOpts{Status: protocol.MissionDone}); !errors.As(err, &ve) {
		t.Errorf("running done missions err = %v, want ValidationError", err)
	}
}

func TestRunMissionsTransientFailureReopens(t *testing.T) {
	provider := &fakeProvider{err: errors.New("connection reset")}
	svc, projectID := newTestService(t, provider)
	ctx := context.Background()
	addFinding(t, svc, projectID, "flaky network case", 0.3)

	if _, err := svc.PlanMissions(ctx, projectID, "", PlanOpts{}); err != nil {
		t.Fatalf("PlanMissions: %v", err)
	}
	results, err := svc.RunMissions(ctx, projectID, "", RunOpts{Limit: 1})
	if err != nil {
		t.Fatalf("RunMissions: %v", err)
	}
	if len(results) != 1 || results[0].Status != protocol.MissionOpen {
		t.Fatalf("results = %+v, want the mission back open for retry", results)
	}
	if results[0].Error == "" {
		t.Error("reopened mission should surface the error")
	}
}

func TestSetMissionStatusStampsCompletionOnce(t *testing.T) {
	svc, projectID := newTestService(t, &fakeProvider{})
	ctx := context.Background()
	addFinding(t, svc, projectID, "to cancel", 0.2)

	planned, err := svc.PlanMissions(ctx, projectID, "", PlanOpts{MaxMissions: 1})
	if err != nil || len(planned) != 1 {
		t.Fatalf("PlanMissions = (%v, %v)", planned, err)
	}
	id := planned[0].MissionID

	if err := svc.SetMissionStatus(ctx, id, protocol.MissionDone, ""); err != nil {
		t.Fatalf("SetMissionStatus: %v", err)
	}
	var first string
	if err := svc.Store.DB().QueryRow(
		"SELECT completed_at FROM verification_missions WHERE id=?", id).Scan(&first); err != nil {
		t.Fatalf("read completed_at: %v", err)
	}
	if first == "" {
		t.Fatal("done must stamp completed_at")
	}

	if err := svc.SetMissionStatus(ctx, id, protocol.MissionCancelled, "superseded"); err != nil {
		t.Fatalf("SetMissionStatus (cancel): %v", err)
	}
	var second string
	if err := svc.Store.DB().QueryRow(
		"SELECT completed_at FROM verification_missions WHERE id=?", id).Scan(&second); err != nil {
		t.Fatalf("read completed_at: %v", err)
	}
	if second != first {
		t.Errorf("completed_at restamped: %q -> %q", first, second)
	}

	var ve *protocol.ValidationError
	if err := svc.SetMissionStatus(ctx, id, "lost", ""); !errors.As(err, &ve) {
		t.Errorf("bad status err = %v, want ValidationError", err)
	}
	var nf *protocol.NotFoundError
	if err := svc.SetMissionStatus(ctx, "mis_ghost", protocol.MissionDone, ""); !errors.As(err, &nf) {
		t.Errorf("missing mission err = %v, want NotFoundError", err)
	}
}

func TestCandidateQueries(t *testing.T) {
	queries := candidateQueries(
		"Fusion breakthrough at NIF",
		"laser ignition produced net energy gain during the december experiment",
		"https://news.example.org/science/fusion",
	)
	if len(queries) < 1 || len(queries) > 5 {
		t.Fatalf("got %d queries, want 1..5: %v", len(queries), queries)
	}
	if queries[0] != "Fusion breakthrough at NIF" {
		t.Errorf("first query = %q, want the raw title", queries[0])
	}

	seen := map[string]bool{}
	for _, q := range queries {
		norm := vault.NormalizeQuery(q)
		if seen[norm] {
			t.Errorf("duplicate normalized query %q", norm)
		}
		seen[norm] = true
	}

	foundSite := false
	for _, q := range queries {
		if len(q) > 5 && q[:5] == "site:" {
			foundSite = true
			if q != "site:news.example.org Fusion breakthrough at NIF" {
				t.Errorf("site query = %q", q)
			}
		}
	}
	if !foundSite {
		t.Error("expected a site-scoped query from the evidence host")
	}
}

func TestCandidateQueriesEmptyInputs(t *testing.T) {
	if got := candidateQueries("", "", ""); got != nil {
		t.Errorf("no inputs should yield no queries, got %v", got)
	}
}

func TestExtractKeywords(t *testing.T) {
	text := "grid grid grid battery battery solar the of and a an"
	got := ExtractKeywords(text, 3)
	want := []string{"grid", "battery", "solar"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractKeywords = %v, want %v", got, want)
	}
}

func TestExtractKeywordsTieBreaksAlphabetically(t *testing.T) {
	got := ExtractKeywords("zebra apple zebra apple mango", 10)
	want := []string{"apple", "zebra", "mango"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractKeywords = %v, want %v", got, want)
	}
}

func TestMissionPriorityClamped(t *testing.T) {
	for _, tc := range []struct {
		conf float64
		want int
	}{
		{0.0, 100},
		{1.0, 0},
		{0.3, 70},
		{-2.0, 100}, // clamped
	} {
		if got := missionPriority(tc.conf); got != tc.want {
			t.Errorf("missionPriority(%v) = %d, want %d", tc.conf, got, tc.want)
		}
	}
}

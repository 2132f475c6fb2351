package watch

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"researchvault/pkg/protocol"
	"researchvault/pkg/vault"

	_ "modernc.org/sqlite"
)

func setupTestRegistry(t *testing.T) (*Registry, string) {
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
	projectID, err := store.StartProject(context.Background(), "prj_watch", "p", "o", 0)
	if err != nil {
		t.Fatalf("StartProject: %v", err)
	}
	return NewRegistry(store), projectID
}

func TestAddTargetDeduplicatesEquivalentQueries(t *testing.T) {
	r, projectID := setupTestRegistry(t)
	ctx := context.Background()

	first, err := r.AddTarget(ctx, AddParams{
		ProjectID: projectID, Type: protocol.WatchTypeQuery, Target: "Foo  Bar",
	})
	if err != nil {
		t.Fatalf("AddTarget: %v", err)
	}
	if !first.Created {
		t.Fatal("first registration should create")
	}

	second, err := r.AddTarget(ctx, AddParams{
		ProjectID: projectID, Type: protocol.WatchTypeQuery, Target: "foo bar",
	})
	if err != nil {
		t.Fatalf("AddTarget (equivalent): %v", err)
	}
	if second.Created {
		t.Error("equivalent target should not create a second row")
	}
	if second.TargetID != first.TargetID {
		t.Errorf("ids differ: %q vs %q", first.TargetID, second.TargetID)
	}

	targets, err := r.ListTargets(ctx, projectID, "", "")
	if err != nil {
		t.Fatalf("ListTargets: %v", err)
	}
	if len(targets) != 1 {
		t.Errorf("rows = %d, want 1", len(targets))
	}
}

func TestAddTargetValidation(t *testing.T) {
	r, projectID := setupTestRegistry(t)
	ctx := context.Background()

	var ve *protocol.ValidationError
	if _, err := r.AddTarget(ctx, AddParams{ProjectID: projectID, Type: "rss", Target: "x"}); !errors.As(err, &ve) {
		t.Errorf("bad type err = %v, want ValidationError", err)
	}
	if _, err := r.AddTarget(ctx, AddParams{ProjectID: projectID, Type: protocol.WatchTypeURL, Target: "  "}); !errors.As(err, &ve) {
		t.Errorf("empty target err = %v, want ValidationError", err)
	}
	if _, err := r.AddTarget(ctx, AddParams{
		ProjectID: projectID, Type: protocol.WatchTypeQuery, Target: "x", Interval: 10 * time.Second,
	}); !errors.As(err, &ve) {
		t.Errorf("short interval err = %v, want ValidationError", err)
	}
	if _, err := r.AddTarget(ctx, AddParams{
		ProjectID: projectID, Type: protocol.WatchTypeQuery, Target: "x", Interval: 8 * 24 * time.Hour,
	}); !errors.As(err, &ve) {
		t.Errorf("long interval err = %v, want ValidationError", err)
	}
}

func TestDisableTargetIsIdempotent(t *testing.T) {
	r, projectID := setupTestRegistry(t)
	ctx := context.Background()

	result, err := r.AddTarget(ctx, AddParams{
		ProjectID: projectID, Type: protocol.WatchTypeURL, Target: "https://example.org/feed",
	})
	if err != nil {
		t.Fatalf("AddTarget: %v", err)
	}

	if err := r.DisableTarget(ctx, result.TargetID); err != nil {
		t.Fatalf("DisableTarget: %v", err)
	}
	if err := r.DisableTarget(ctx, result.TargetID); err != nil {
		t.Fatalf("DisableTarget (repeat): %v", err)
	}

	target, err := r.GetTarget(ctx, result.TargetID)
	if err != nil {
		t.Fatalf("GetTarget: %v", err)
	}
	if target.Status != protocol.WatchDisabled {
		t.Errorf("status = %q, want disabled", target.Status)
	}

	var nf *protocol.NotFoundError
	if err := r.DisableTarget(ctx, "wt_ghost"); !errors.As(err, &nf) {
		t.Errorf("missing target err = %v, want NotFoundError", err)
	}
}

func TestUpdateRunAndDueTargets(t *testing.T) {
	r, projectID := setupTestRegistry(t)
	ctx := context.Background()

	result, err := r.AddTarget(ctx, AddParams{
		ProjectID: projectID, Type: protocol.WatchTypeQuery, Target: "fusion milestones",
		Interval: time.Hour,
	})
	if err != nil {
		t.Fatalf("AddTarget: %v", err)
	}

	// Never run: always due.
	due, err := r.DueTargets(ctx, projectID, "", time.Now())
	if err != nil {
		t.Fatalf("DueTargets: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("due = %d, want 1 before first run", len(due))
	}

	if err := r.UpdateRun(ctx, result.TargetID, "abc123", ""); err != nil {
		t.Fatalf("UpdateRun: %v", err)
	}

	due, err = r.DueTargets(ctx, projectID, "", time.Now())
	if err != nil {
		t.Fatalf("DueTargets: %v", err)
	}
	if len(due) != 0 {
		t.Errorf("due = %d right after a run, want 0", len(due))
	}

	due, err = r.DueTargets(ctx, projectID, "", time.Now().Add(2*time.Hour))
	if err != nil {
		t.Fatalf("DueTargets: %v", err)
	}
	if len(due) != 1 {
		t.Errorf("due = %d after the interval elapsed, want 1", len(due))
	}

	// Disabled targets are never due.
	if err := r.DisableTarget(ctx, result.TargetID); err != nil {
		t.Fatalf("DisableTarget: %v", err)
	}
	due, err = r.DueTargets(ctx, projectID, "", time.Now().Add(48*time.Hour))
	if err != nil {
		t.Fatalf("DueTargets: %v", err)
	}
	if len(due) != 0 {
		t.Errorf("due = %d for a disabled target, want 0", len(due))
	}
}

func TestAddTargetRecordsEvent(t *testing.T) {
	r, projectID := setupTestRegistry(t)
	ctx := context.Background()

	if _, err := r.AddTarget(ctx, AddParams{
		ProjectID: projectID, Type: protocol.WatchTypeQuery, Target: "solid state batteries",
	}); err != nil {
		t.Fatalf("AddTarget: %v", err)
	}

	events, err := r.Store.ListEvents(ctx, projectID, "", protocol.EventWatch, 10)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("events = %d, want 1", len(events))
	}
}

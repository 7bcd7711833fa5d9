package ledger_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"platebatch/internal/ledger"
	"platebatch/internal/testsupport"
)

func TestRunLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	ctx := context.Background()

	started := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	if err := store.BeginRun(ctx, ledger.Run{ID: "run-1", Source: "jobs.csv", Records: 11, StartedAt: started}); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	for i, ids := range [][]string{{"001", "002", "003"}, {"004"}} {
		batch := ledger.Batch{RunID: "run-1", Index: i + 1, Archive: fmt.Sprintf("/out/batch_%d.3mf", i+1), SpecimenIDs: ids}
		if i == 1 {
			batch.RemoteID = "s3://plates/batch_2.3mf"
		}
		if err := store.RecordBatch(ctx, batch); err != nil {
			t.Fatalf("RecordBatch %d: %v", i+1, err)
		}
	}
	if err := store.FinishRun(ctx, "run-1", ledger.RunSucceeded, 2, nil); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	run, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run == nil {
		t.Fatal("expected run to exist")
	}
	if run.Status != ledger.RunSucceeded || run.Batches != 2 || run.Records != 11 || run.Source != "jobs.csv" {
		t.Fatalf("unexpected run: %#v", run)
	}
	if !run.StartedAt.Equal(started) {
		t.Fatalf("started_at = %v, want %v", run.StartedAt, started)
	}
	if run.FinishedAt.IsZero() {
		t.Fatal("expected finished_at to be recorded")
	}

	batches, err := store.Batches(ctx, "run-1")
	if err != nil {
		t.Fatalf("Batches: %v", err)
	}
	if len(batches) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(batches))
	}
	if got := batches[0].SpecimenIDs; len(got) != 3 || got[0] != "001" || got[2] != "003" {
		t.Fatalf("unexpected specimen ids %v", got)
	}
	if batches[0].RemoteID != "" || batches[1].RemoteID != "s3://plates/batch_2.3mf" {
		t.Fatalf("unexpected remote ids %q %q", batches[0].RemoteID, batches[1].RemoteID)
	}
}

func TestFinishRunRecordsFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	ctx := context.Background()

	if err := store.BeginRun(ctx, ledger.Run{ID: "run-f"}); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	if err := store.FinishRun(ctx, "run-f", ledger.RunFailed, 0, errors.New("object 7 not found")); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	run, err := store.GetRun(ctx, "run-f")
	if err != nil || run == nil {
		t.Fatalf("GetRun: %v %v", run, err)
	}
	if run.Status != ledger.RunFailed || run.Error != "object 7 not found" {
		t.Fatalf("unexpected run: %#v", run)
	}
}

func TestFinishUnknownRun(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	if err := store.FinishRun(context.Background(), "missing", ledger.RunSucceeded, 0, nil); err == nil {
		t.Fatal("expected error for unknown run")
	}
}

func TestBeginRunRequiresID(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	if err := store.BeginRun(context.Background(), ledger.Run{}); err == nil {
		t.Fatal("expected error for empty run id")
	}
}

func TestRunsNewestFirstWithLimit(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		if err := store.BeginRun(ctx, ledger.Run{ID: id, StartedAt: base.Add(time.Duration(i) * time.Hour)}); err != nil {
			t.Fatalf("BeginRun %s: %v", id, err)
		}
	}
	runs, err := store.Runs(ctx, 2)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "c" || runs[1].ID != "b" {
		t.Fatalf("unexpected runs %+v", runs)
	}
	all, err := store.Runs(ctx, 0)
	if err != nil {
		t.Fatalf("Runs all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(all))
	}
	if all[0].Status != ledger.RunRunning || all[0].Duration() != 0 {
		t.Fatalf("expected running run without duration, got %+v", all[0])
	}
}

func TestGetRunMissingReturnsNil(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	run, err := store.GetRun(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run != nil {
		t.Fatalf("expected nil run, got %#v", run)
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	path := store.Path()
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	_ = db.Close()

	_, err = ledger.OpenPath(path)
	if !errors.Is(err, ledger.ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}

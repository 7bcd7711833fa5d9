package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"platebatch/internal/ledger"
	"platebatch/internal/testsupport"
)

const eightRecordsCSV = `specimen_id,fill_density,fill_pattern,perimeters
1,20,grid,2
2,25,grid,2
3,30,gyroid,3
4,35,gyroid,3
5,40,honeycomb,
1,45,honeycomb,
2,50,grid,
3,55,grid,4
`

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t, 0)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, "Max objects per package: 6")

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected init to refuse overwriting an existing file")
	}
}

func TestConfigValidateRejectsUnknownKeys(t *testing.T) {
	env := setupCLITestEnv(t, 0)
	f, err := os.OpenFile(env.configPath, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open config: %v", err)
	}
	_, _ = f.WriteString("\n[extra]\nunknown = 1\n")
	_ = f.Close()

	if _, _, err := runCLI(t, []string{"config", "validate"}, env.configPath); err == nil {
		t.Fatal("expected unknown keys to be rejected")
	}
}

func TestComposeFromCSV(t *testing.T) {
	env := setupCLITestEnv(t, 5)
	list := writeBatchList(t, env.baseDir, "jobs.csv", eightRecordsCSV)

	out, _, err := runCLI(t, []string{"compose", list}, env.configPath)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	requireContains(t, out, "Composed 8 records into 2 packages")
	for _, name := range []string{"batch_1.3mf", "batch_2.3mf"} {
		if _, err := os.Stat(filepath.Join(env.cfg.Paths.OutputDir, name)); err != nil {
			t.Fatalf("expected %s: %v", name, err)
		}
	}
}

func TestComposePlanWritesNothing(t *testing.T) {
	env := setupCLITestEnv(t, 5)
	list := writeBatchList(t, env.baseDir, "jobs.csv", eightRecordsCSV)

	out, _, err := runCLI(t, []string{"compose", "--plan", "--max-objects", "3", list}, env.configPath)
	if err != nil {
		t.Fatalf("compose --plan: %v", err)
	}
	requireContains(t, out, "8 records in 3 packages")
	entries, err := os.ReadDir(env.cfg.Paths.OutputDir)
	if err != nil {
		t.Fatalf("read output dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("plan should not write outputs, found %d", len(entries))
	}
}

func TestComposeRequiresSource(t *testing.T) {
	env := setupCLITestEnv(t, 0)
	if _, _, err := runCLI(t, []string{"compose"}, env.configPath); err == nil {
		t.Fatal("expected error without a batch list")
	}
	if _, _, err := runCLI(t, []string{"compose", "--sheet"}, env.configPath); err == nil {
		t.Fatal("expected error for --sheet without sheet.url")
	}
}

func TestComposeRejectsBadNaming(t *testing.T) {
	env := setupCLITestEnv(t, 1)
	list := writeBatchList(t, env.baseDir, "jobs.json", `[{"specimen_id": "1", "fill_density": "20", "fill_pattern": "grid"}]`)
	_, _, err := runCLI(t, []string{"compose", "--naming", "random", list}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "--naming") {
		t.Fatalf("expected naming error, got %v", err)
	}
}

func TestComposeFromRemoteSheet(t *testing.T) {
	env := setupCLITestEnv(t, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte("specimen_id,fill_density,fill_pattern\n1,20,grid\n2,30,grid\n"))
	}))
	t.Cleanup(srv.Close)

	out, _, err := runCLI(t, []string{"compose", "--naming", "range", srv.URL + "/export?format=csv"}, env.configPath)
	if err != nil {
		t.Fatalf("compose from sheet: %v", err)
	}
	requireContains(t, out, "Composed 2 records into 1 packages")
	matches, err := filepath.Glob(filepath.Join(env.cfg.Paths.OutputDir, "batch_001-002_*.3mf"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("expected one range-named archive, got %v (%v)", matches, err)
	}
}

func TestComposeUploadsToFilesystem(t *testing.T) {
	env := setupCLITestEnv(t, 2, testsupport.WithUploadRoot("lab"))
	list := writeBatchList(t, env.baseDir, "jobs.yaml", "- specimen_id: 1\n  fill_density: 20\n  fill_pattern: grid\n- specimen_id: 2\n  fill_density: 30\n  fill_pattern: grid\n")

	if _, _, err := runCLI(t, []string{"compose", list}, env.configPath); err != nil {
		t.Fatalf("compose: %v", err)
	}
	if _, err := os.Stat(filepath.Join(env.cfg.Upload.FSRoot, "lab", "batch_1.3mf")); err != nil {
		t.Fatalf("expected uploaded archive: %v", err)
	}
}

func TestInspectReportsObjects(t *testing.T) {
	env := setupCLITestEnv(t, 5)
	list := writeBatchList(t, env.baseDir, "jobs.csv", eightRecordsCSV)
	if _, _, err := runCLI(t, []string{"compose", list}, env.configPath); err != nil {
		t.Fatalf("compose: %v", err)
	}

	archive := filepath.Join(env.cfg.Paths.OutputDir, "batch_1.3mf")
	out, _, err := runCLI(t, []string{"inspect", "--json", archive}, "")
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	var report inspectReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode inspect output: %v\n%s", err, out)
	}
	if len(report.Objects) != 6 {
		t.Fatalf("expected 6 objects, got %d", len(report.Objects))
	}
	first := report.Objects[0]
	if first.Primitives != 2 || first.LastIndex != "1" || first.FillDensity != "20%" || first.FillPattern != "grid" {
		t.Fatalf("unexpected first object %+v", first)
	}

	table, _, err := runCLI(t, []string{"inspect", archive}, "")
	if err != nil {
		t.Fatalf("inspect table: %v", err)
	}
	requireContains(t, table, "3D/3dmodel.model")
	requireContains(t, table, "Dogbone1")
}

func TestInspectMissingArchive(t *testing.T) {
	if _, _, err := runCLI(t, []string{"inspect", filepath.Join(t.TempDir(), "nope.3mf")}, ""); err == nil {
		t.Fatal("expected error for missing archive")
	}
}

func TestHistoryListsRuns(t *testing.T) {
	env := setupCLITestEnv(t, 5)
	list := writeBatchList(t, env.baseDir, "jobs.csv", eightRecordsCSV)
	if _, _, err := runCLI(t, []string{"compose", list}, env.configPath); err != nil {
		t.Fatalf("compose: %v", err)
	}

	out, _, err := runCLI(t, []string{"history", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	var runs []ledger.Run
	if err := json.Unmarshal([]byte(out), &runs); err != nil {
		t.Fatalf("decode history: %v\n%s", err, out)
	}
	if len(runs) != 1 || runs[0].Status != ledger.RunSucceeded || runs[0].Batches != 2 {
		t.Fatalf("unexpected runs %+v", runs)
	}

	detail, _, err := runCLI(t, []string{"history", runs[0].ID}, env.configPath)
	if err != nil {
		t.Fatalf("history detail: %v", err)
	}
	requireContains(t, detail, "batch_2.3mf")
	requireContains(t, detail, "1,2,3,4,5,1")

	if _, _, err := runCLI(t, []string{"history", "missing-run"}, env.configPath); err == nil {
		t.Fatal("expected error for unknown run")
	}
}

func TestStatusPassesWithTemplate(t *testing.T) {
	env := setupCLITestEnv(t, 1)
	out, _, err := runCLI(t, []string{"status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v\n%s", err, out)
	}
	requireContains(t, out, "[OK]")
}

func TestStatusFailsWithoutTemplate(t *testing.T) {
	env := setupCLITestEnv(t, 1)
	if err := os.Remove(env.cfg.Paths.Template); err != nil {
		t.Fatalf("remove template: %v", err)
	}
	out, _, err := runCLI(t, []string{"status"}, env.configPath)
	if err == nil {
		t.Fatal("expected status to fail")
	}
	requireContains(t, out, "[FAIL]")
}

func TestSliceRunsConfiguredBinary(t *testing.T) {
	env := setupCLITestEnv(t, 1)
	stub := filepath.Join(env.baseDir, "fake-slicer")
	script := "#!/bin/sh\nwhile [ $# -gt 0 ]; do\n  if [ \"$1\" = \"-o\" ]; then shift; echo G28 > \"$1\"; fi\n  shift\ndone\n"
	if err := os.WriteFile(stub, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	env.cfg.Slicer.Binary = stub
	writeTestConfig(t, env.configPath, env.cfg)

	list := writeBatchList(t, env.baseDir, "jobs.csv", "specimen_id,fill_density,fill_pattern\n1,20,grid\n")
	if _, _, err := runCLI(t, []string{"compose", list}, env.configPath); err != nil {
		t.Fatalf("compose: %v", err)
	}
	archive := filepath.Join(env.cfg.Paths.OutputDir, "batch_1.3mf")
	out, _, err := runCLI(t, []string{"slice", archive}, env.configPath)
	if err != nil {
		t.Fatalf("slice: %v", err)
	}
	requireContains(t, out, "batch_1.gcode")
	if _, err := os.Stat(filepath.Join(env.cfg.Paths.OutputDir, "batch_1.gcode")); err != nil {
		t.Fatalf("expected gcode: %v", err)
	}
}

func TestUploadCommand(t *testing.T) {
	env := setupCLITestEnv(t, 0, testsupport.WithUploadRoot("drops"))
	file := writeBatchList(t, env.baseDir, "note.gcode", "G28\n")

	out, _, err := runCLI(t, []string{"upload", "--destination", "manual", file}, env.configPath)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	want := filepath.Join(env.cfg.Upload.FSRoot, "manual", "note.gcode")
	requireContains(t, out, want)
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("expected uploaded file: %v", err)
	}
}

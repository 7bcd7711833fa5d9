package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"platebatch/internal/testsupport"
)

func TestCheckDirectoryAccess(t *testing.T) {
	dir := t.TempDir()
	if r := CheckDirectoryAccess("Out", dir); !r.Passed {
		t.Fatalf("expected pass, got %+v", r)
	}
	if r := CheckDirectoryAccess("Out", filepath.Join(dir, "missing")); r.Passed || !strings.Contains(r.Detail, "does not exist") {
		t.Fatalf("expected missing failure, got %+v", r)
	}
	file := filepath.Join(dir, "file")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if r := CheckReadableDirectory("Specimens", file); r.Passed || !strings.Contains(r.Detail, "not a directory") {
		t.Fatalf("expected not-a-directory failure, got %+v", r)
	}
}

func TestCheckTemplate(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "template.3mf")
	testsupport.WriteTemplate(t, good, 6)
	if r := CheckTemplate(good); !r.Passed {
		t.Fatalf("expected template to pass, got %+v", r)
	}

	noMeta := filepath.Join(dir, "bare.3mf")
	testsupport.WritePackage(t, noMeta, map[string]string{
		testsupport.GeometryEntry: testsupport.GeometryDocument(testsupport.MeshBlock("x", 1)),
	})
	if r := CheckTemplate(noMeta); r.Passed || !strings.Contains(r.Detail, testsupport.MetadataEntry) {
		t.Fatalf("expected missing metadata failure, got %+v", r)
	}

	if r := CheckTemplate(filepath.Join(dir, "absent.3mf")); r.Passed {
		t.Fatalf("expected absent template to fail, got %+v", r)
	}
}

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()
	if r := CheckFreeSpace("Space", dir, 1); !r.Passed || !strings.Contains(r.Detail, "free") {
		t.Fatalf("expected pass, got %+v", r)
	}
	if r := CheckFreeSpace("Space", dir, ^uint64(0)); r.Passed {
		t.Fatalf("expected failure with impossible minimum, got %+v", r)
	}
}

func TestFormatBytes(t *testing.T) {
	cases := map[uint64]string{
		512:     "512 B",
		2048:    "2.0 KiB",
		5 << 20: "5.0 MiB",
	}
	for n, want := range cases {
		if got := formatBytes(n); got != want {
			t.Errorf("formatBytes(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestCheckSheet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/private") {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte("specimen_id\n1\n"))
	}))
	t.Cleanup(srv.Close)

	if r := CheckSheet(context.Background(), srv.Client(), srv.URL+"/export"); !r.Passed {
		t.Fatalf("expected reachable sheet, got %+v", r)
	}
	if r := CheckSheet(context.Background(), srv.Client(), srv.URL+"/private"); r.Passed || !strings.Contains(r.Detail, "access denied") {
		t.Fatalf("expected access denied, got %+v", r)
	}
	if r := CheckSheet(context.Background(), nil, " "); r.Passed {
		t.Fatalf("expected empty url to fail, got %+v", r)
	}
}

func TestRunAllAddsSlicerWhenEnabled(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	testsupport.WriteTemplate(t, cfg.Paths.Template, 6)
	cfg.Slicer.Enabled = true

	results := RunAll(context.Background(), cfg)
	var found bool
	for _, r := range results {
		if r.Name == "PrusaSlicer" {
			found = true
			if !r.Passed {
				t.Fatalf("expected stubbed slicer to pass, got %+v", r)
			}
		}
	}
	if !found {
		t.Fatalf("expected slicer check in %+v", results)
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures %+v", failed)
	}
}

func TestRunAllSkipsDisabledFeatures(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteTemplate(t, cfg.Paths.Template, 6)
	cfg.Sheet.URL = ""

	for _, r := range RunAll(context.Background(), cfg) {
		if r.Name == "PrusaSlicer" || r.Name == "Upload root" || r.Name == "Batch sheet" {
			t.Fatalf("unexpected check %q for disabled feature", r.Name)
		}
	}
}

func TestRunAllIncludesUploadRoot(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithUploadRoot("lab"))
	testsupport.WriteTemplate(t, cfg.Paths.Template, 6)

	var found bool
	for _, r := range RunAll(context.Background(), cfg) {
		if r.Name == "Upload root" {
			found = true
			if !r.Passed {
				t.Fatalf("expected upload root to pass, got %+v", r)
			}
		}
	}
	if !found {
		t.Fatal("expected upload root check")
	}
}

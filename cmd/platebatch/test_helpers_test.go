package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"platebatch/internal/config"
	"platebatch/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
}

// setupCLITestEnv writes a config pointing at temp directories, a six-slot
// template, and specimens 001..specimens.
func setupCLITestEnv(t *testing.T, specimens int, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	base := testsupport.BaseDir(cfg)
	t.Setenv("HOME", filepath.Join(base, "home"))
	t.Setenv("PLATEBATCH_SHEET_URL", "")

	testsupport.WriteTemplate(t, cfg.Paths.Template, 6)
	for k := 1; k <= specimens; k++ {
		testsupport.WriteSpecimen(t, cfg.Paths.SpecimenDir, fmt.Sprintf("%03d", k), k+1)
	}

	configPath := filepath.Join(base, "platebatch.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath, baseDir: base}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	var b strings.Builder
	fmt.Fprintf(&b, "[paths]\nspecimen_dir = %q\ntemplate = %q\noutput_dir = %q\nwork_dir = %q\nstate_dir = %q\nlog_dir = %q\n\n",
		cfg.Paths.SpecimenDir, cfg.Paths.Template, cfg.Paths.OutputDir, cfg.Paths.WorkDir, cfg.Paths.StateDir, cfg.Paths.LogDir)
	fmt.Fprintf(&b, "[batch]\nmax_objects = %d\nid_width = %d\nbase_name = %q\nnaming = %q\n\n",
		cfg.Batch.MaxObjects, cfg.Batch.IDWidth, cfg.Batch.BaseName, cfg.Batch.Naming)
	fmt.Fprintf(&b, "[slicer]\nenabled = %t\nbinary = %q\ntimeout_seconds = %d\n\n",
		cfg.Slicer.Enabled, cfg.Slicer.Binary, cfg.Slicer.TimeoutSeconds)
	fmt.Fprintf(&b, "[upload]\nenabled = %t\ndriver = %q\ndestination = %q\nfs_root = %q\n\n",
		cfg.Upload.Enabled, cfg.Upload.Driver, cfg.Upload.Destination, cfg.Upload.FSRoot)
	fmt.Fprintf(&b, "[logging]\nformat = \"json\"\nlevel = \"warn\"\n")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func writeBatchList(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write batch list: %v", err)
	}
	return path
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

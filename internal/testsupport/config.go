package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"platebatch/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Every directory exists on return; the template path is not written.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.SpecimenDir = filepath.Join(base, "specimens")
	cfgVal.Paths.Template = filepath.Join(base, "template.3mf")
	cfgVal.Paths.OutputDir = filepath.Join(base, "output")
	cfgVal.Paths.WorkDir = filepath.Join(base, "work")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	for _, dir := range []string{
		cfgVal.Paths.SpecimenDir,
		cfgVal.Paths.OutputDir,
		cfgVal.Paths.WorkDir,
		cfgVal.Paths.StateDir,
		cfgVal.Paths.LogDir,
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}

	return builder.cfg
}

// WithMaxObjects overrides the per-package object cap.
func WithMaxObjects(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Batch.MaxObjects = n
	}
}

// WithNaming overrides the output naming mode.
func WithNaming(mode string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Batch.Naming = mode
	}
}

// WithUploadRoot enables the filesystem upload driver rooted under the test
// base directory.
func WithUploadRoot(destination string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Upload.Enabled = true
		b.cfg.Upload.Driver = config.UploadDriverFS
		b.cfg.Upload.FSRoot = filepath.Join(b.baseDir, "uploads")
		b.cfg.Upload.Destination = destination
		if err := os.MkdirAll(b.cfg.Upload.FSRoot, 0o755); err != nil {
			b.t.Fatalf("mkdir upload root: %v", err)
		}
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the configured slicer binary is
// stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{b.cfg.Slicer.Binary}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.OutputDir)
}

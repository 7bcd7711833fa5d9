package preflight

import (
	"context"

	"platebatch/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// Checks are only run when the corresponding feature is enabled.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckReadableDirectory("Specimen directory", cfg.Paths.SpecimenDir),
		CheckTemplate(cfg.Paths.Template),
		CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir),
		CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
	}
	if last := results[len(results)-1]; last.Passed {
		results = append(results, CheckFreeSpace("Work directory space", cfg.Paths.WorkDir, minFreeBytes))
	}

	if cfg.Slicer.Enabled {
		for _, status := range CheckSystemDeps(cfg) {
			r := Result{Name: status.Name, Passed: status.Available, Detail: status.Detail}
			if status.Available {
				r.Detail = status.Path
			}
			results = append(results, r)
		}
	}

	if cfg.Upload.Enabled && cfg.Upload.Driver == config.UploadDriverFS {
		results = append(results, CheckDirectoryAccess("Upload root", cfg.Upload.FSRoot))
	}

	if cfg.Sheet.URL != "" {
		results = append(results, CheckSheet(ctx, nil, cfg.Sheet.URL))
	}

	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}

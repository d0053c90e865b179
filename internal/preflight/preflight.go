package preflight

import (
	"context"
	"os"

	"loom/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the filesystem readiness checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	_ = ctx

	// Workspace root is created on demand, but a root we cannot create or
	// write to dooms every job before its first phase.
	if err := os.MkdirAll(cfg.Paths.WorkspaceRootPath, 0o755); err != nil {
		return []Result{{
			Name:   "Workspace root",
			Detail: cfg.Paths.WorkspaceRootPath + " (error: " + err.Error() + ")",
		}}
	}

	results := []Result{
		CheckDirectoryAccess("Workspace root", cfg.Paths.WorkspaceRootPath),
		CheckFreeSpace("Workspace free space", cfg.Paths.WorkspaceRootPath),
		CheckRecordStoreParent(cfg.Paths.RecordStorePath),
	}
	return results
}

// AllPassed reports whether every result passed.
func AllPassed(results []Result) bool {
	for _, result := range results {
		if !result.Passed {
			return false
		}
	}
	return true
}

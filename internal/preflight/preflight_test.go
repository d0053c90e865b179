package preflight_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"loom/internal/preflight"
	"loom/internal/testsupport"
)

func TestCheckDirectoryAccess(t *testing.T) {
	dir := t.TempDir()

	result := preflight.CheckDirectoryAccess("Workspace root", dir)
	if !result.Passed {
		t.Fatalf("expected pass for writable directory: %s", result.Detail)
	}

	result = preflight.CheckDirectoryAccess("Workspace root", filepath.Join(dir, "missing"))
	if result.Passed {
		t.Fatal("expected failure for missing directory")
	}

	file := filepath.Join(dir, "file")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	result = preflight.CheckDirectoryAccess("Workspace root", file)
	if result.Passed {
		t.Fatal("expected failure for non-directory path")
	}
}

func TestRunAllPassesOnFreshConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	results := preflight.RunAll(context.Background(), cfg)
	if len(results) == 0 {
		t.Fatal("expected preflight results")
	}
	if !preflight.AllPassed(results) {
		for _, result := range results {
			t.Logf("%s: passed=%v detail=%s", result.Name, result.Passed, result.Detail)
		}
		t.Fatal("expected all checks to pass against temp directories")
	}
}

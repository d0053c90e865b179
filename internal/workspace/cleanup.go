package workspace

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"loom/internal/logging"
)

// CleanStaleResult contains the outcome of a stale workspace cleanup pass.
type CleanStaleResult struct {
	Removed []string
	Skipped []string
	Errors  []CleanupError
}

// CleanupError pairs a workspace path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// CleanStale removes completed workspaces older than maxAge. Only
// directories carrying a manifest are touched, and only when their state
// document reports the pipeline finished; anything in flight or unreadable
// is skipped.
func CleanStale(ctx context.Context, root string, maxAge time.Duration, logger *slog.Logger) CleanStaleResult {
	result := CleanStaleResult{}

	root = strings.TrimSpace(root)
	if root == "" {
		return result
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: root, Error: err})
		}
		return result
	}

	cutoff := time.Now().Add(-maxAge)

	for _, entry := range entries {
		if ctx.Err() != nil {
			return result
		}
		if !entry.IsDir() {
			continue
		}

		dirPath := filepath.Join(root, entry.Name())
		if _, err := os.Stat(filepath.Join(dirPath, ManifestFilename)); err != nil {
			result.Skipped = append(result.Skipped, dirPath)
			continue
		}

		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		ws := &Workspace{Dir: dirPath}
		state, err := ws.LoadState()
		if err != nil || !state.Done() {
			result.Skipped = append(result.Skipped, dirPath)
			continue
		}

		if err := os.RemoveAll(dirPath); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
			logger.Warn("failed to remove stale workspace",
				logging.String("path", dirPath),
				logging.Error(err),
				logging.String(logging.FieldEventType, "workspace_cleanup_failed"),
				logging.String(logging.FieldErrorHint, "check workspace_root_path permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, dirPath)
		logger.Info("removed stale workspace",
			logging.String("path", dirPath),
			logging.String(logging.FieldEventType, "workspace_cleanup"),
		)
	}

	return result
}

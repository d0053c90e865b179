package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"loom/internal/workspace"
)

func newCleanCommand(ctx *commandContext) *cobra.Command {
	var olderThanDays int

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove old completed workspaces",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			days := olderThanDays
			if days <= 0 {
				days = cfg.Worker.StaleWorkspaceDays
			}
			maxAge := time.Duration(days) * 24 * time.Hour

			result := workspace.CleanStale(cmd.Context(), cfg.Paths.WorkspaceRootPath, maxAge, nil)

			out := cmd.OutOrStdout()
			for _, removed := range result.Removed {
				fmt.Fprintf(out, "Removed %s\n", removed)
			}
			if len(result.Removed) == 0 {
				fmt.Fprintln(out, "Nothing to clean")
			}
			for _, cleanupErr := range result.Errors {
				fmt.Fprintf(cmd.ErrOrStderr(), "Failed to remove %s: %v\n", cleanupErr.Path, cleanupErr.Error)
			}
			if len(result.Errors) > 0 {
				return fmt.Errorf("%d workspace(s) could not be removed", len(result.Errors))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Minimum age in days (defaults to worker.stale_workspace_days)")
	return cmd
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"loom/internal/preflight"
	"loom/internal/queue"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration, readiness, and queue summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			fmt.Fprintln(out, "Configuration")
			fmt.Fprintln(out, renderStatusLine("Config file", statusInfo, ctx.configPath, colorize))
			fmt.Fprintln(out, renderStatusLine("Record store", statusInfo, cfg.Paths.RecordStorePath, colorize))
			fmt.Fprintln(out, renderStatusLine("Backend", statusInfo, cfg.Store.Backend, colorize))
			fmt.Fprintln(out, renderStatusLine("Workspace root", statusInfo, cfg.Paths.WorkspaceRootPath, colorize))

			fmt.Fprintln(out)
			fmt.Fprintln(out, "Readiness")
			for _, result := range preflight.RunAll(cmd.Context(), cfg) {
				kind := statusOK
				if !result.Passed {
					kind = statusError
				}
				fmt.Fprintln(out, renderStatusLine(result.Name, kind, result.Detail, colorize))
			}

			fmt.Fprintln(out)
			fmt.Fprintln(out, "Queue")
			return ctx.withStore(func(store queue.Store) error {
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				for _, status := range queue.AllStatuses() {
					fmt.Fprintln(out, renderStatusLine(string(status), statusInfo,
						fmt.Sprintf("%d", stats[status]), colorize))
				}
				return nil
			})
		},
	}
}

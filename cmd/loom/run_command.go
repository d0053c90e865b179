package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"loom/internal/logging"
	"loom/internal/phase"
	"loom/internal/preflight"
	"loom/internal/queue"
	"loom/internal/worker"
	"loom/internal/workspace"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var once bool
	var maxIterations int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Claim and process queued topics",
		Long: "Run starts a worker that claims pending topics and drives each through\n" +
			"the research pipeline. Multiple workers may run against the same queue;\n" +
			"the claim protocol keeps them from processing the same topic twice.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("max-iterations") {
				if maxIterations < 0 {
					return fmt.Errorf("--max-iterations must not be negative")
				}
				cfg.Worker.MaxIterations = maxIterations
			}

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("initialize logging: %w", err)
			}

			results := preflight.RunAll(cmd.Context(), cfg)
			colorize := shouldColorize(cmd.OutOrStdout())
			for _, result := range results {
				kind := statusOK
				if !result.Passed {
					kind = statusError
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderStatusLine(result.Name, kind, result.Detail, colorize))
			}
			if !preflight.AllPassed(results) {
				return fmt.Errorf("preflight checks failed; not claiming any topics")
			}

			store, err := queue.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			registry := phase.PlaceholderRegistry(logger)
			manager := workspace.NewManager(cfg.Paths.WorkspaceRootPath, logger)
			w, err := worker.New(cfg, store, manager, registry, logger)
			if err != nil {
				return err
			}
			w.ExitWhenIdle = once

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return w.Run(runCtx)
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Exit when the queue drains instead of polling for new topics")
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "Stop after processing this many topics (0 = unbounded)")
	return cmd
}

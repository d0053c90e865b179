package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"loom/internal/queue"
	"loom/internal/textutil"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the topic queue",
	}

	queueCmd.AddCommand(newQueueAddCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueResetCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))

	return queueCmd
}

func newQueueAddCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "add <topic>...",
		Short: "Add research topics to the queue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store queue.Store) error {
				out := cmd.OutOrStdout()
				for _, topic := range args {
					topic = strings.TrimSpace(topic)
					if topic == "" {
						continue
					}
					if _, err := store.Add(cmd.Context(), topic); err != nil {
						if errors.Is(err, queue.ErrDuplicateTopic) {
							fmt.Fprintf(out, "Skipped %q: already queued\n", topic)
							continue
						}
						return err
					}
					fmt.Fprintf(out, "Queued %q\n", topic)
				}
				return nil
			})
		},
	}
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued topics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store queue.Store) error {
				statuses, err := parseStatusArgs(listStatuses)
				if err != nil {
					return err
				}
				records, err := store.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if len(records) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}

				rows := make([][]string, 0, len(records))
				for _, record := range records {
					rows = append(rows, []string{
						textutil.DisplayTitle(record.Topic),
						string(record.Status),
						formatTimestamp(record.StartedAt),
						formatDuration(record.DurationSeconds),
						formatQuality(record.QualityScore),
						orDash(record.OutputPath),
					})
				}
				table := renderTable(
					[]string{"Topic", "Status", "Started", "Duration", "Quality", "Workspace"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&listStatuses, "status", nil, "Filter by status (Pending, In_Progress, Completed, Failed)")
	return cmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue status summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store queue.Store) error {
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if len(stats) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}

				rows := make([][]string, 0, len(stats))
				total := 0
				for _, status := range queue.AllStatuses() {
					count, ok := stats[status]
					if !ok {
						continue
					}
					total += count
					rows = append(rows, []string{string(status), fmt.Sprintf("%d", count)})
				}
				rows = append(rows, []string{"Total", fmt.Sprintf("%d", total)})
				table := renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}
}

func newQueueResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <topic>...",
		Short: "Return topics to Pending so they run again",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store queue.Store) error {
				out := cmd.OutOrStdout()
				for _, topic := range args {
					if _, err := store.Reset(cmd.Context(), topic); err != nil {
						switch {
						case errors.Is(err, queue.ErrNotFound):
							fmt.Fprintf(out, "Skipped %q: not queued\n", topic)
						case errors.Is(err, queue.ErrInvalidTransition):
							fmt.Fprintf(out, "Skipped %q: already Pending\n", topic)
						default:
							return err
						}
						continue
					}
					fmt.Fprintf(out, "Reset %q\n", topic)
				}
				return nil
			})
		},
	}
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	var clearFailed bool
	var clearCompleted bool

	cmd := &cobra.Command{
		Use:   "remove [topic]...",
		Short: "Remove topics from the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !clearFailed && !clearCompleted {
				return fmt.Errorf("name at least one topic, or pass --failed or --completed")
			}
			return ctx.withStore(func(store queue.Store) error {
				out := cmd.OutOrStdout()
				for _, topic := range args {
					removed, err := store.Remove(cmd.Context(), topic)
					if err != nil {
						return err
					}
					if removed {
						fmt.Fprintf(out, "Removed %q\n", topic)
					} else {
						fmt.Fprintf(out, "Skipped %q: not queued\n", topic)
					}
				}

				var clearStatuses []queue.Status
				if clearFailed {
					clearStatuses = append(clearStatuses, queue.StatusFailed)
				}
				if clearCompleted {
					clearStatuses = append(clearStatuses, queue.StatusCompleted)
				}
				if len(clearStatuses) == 0 {
					return nil
				}
				records, err := store.List(cmd.Context(), clearStatuses...)
				if err != nil {
					return err
				}
				for _, record := range records {
					if _, err := store.Remove(cmd.Context(), record.Topic); err != nil {
						return err
					}
					fmt.Fprintf(out, "Removed %q\n", record.Topic)
				}
				if len(records) == 0 {
					fmt.Fprintln(out, "Nothing to clear")
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&clearFailed, "failed", false, "Also remove every Failed record")
	cmd.Flags().BoolVar(&clearCompleted, "completed", false, "Also remove every Completed record")
	return cmd
}

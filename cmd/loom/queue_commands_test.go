package main

import (
	"context"
	"strings"
	"testing"

	"loom/internal/queue"
	"loom/internal/testsupport"
)

func TestQueueAddListAndStatus(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"queue", "add", "quantum error correction"}, env.configPath)
	if err != nil {
		t.Fatalf("queue add: %v", err)
	}
	requireContains(t, out, "Queued")

	// Re-adding the same topic is reported, not fatal.
	out, _, err = runCLI(t, []string{"queue", "add", "quantum error correction"}, env.configPath)
	if err != nil {
		t.Fatalf("queue add duplicate: %v", err)
	}
	requireContains(t, out, "already queued")

	out, _, err = runCLI(t, []string{"queue", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "Quantum Error Correction")
	requireContains(t, out, "Pending")

	out, _, err = runCLI(t, []string{"queue", "status"}, env.configPath)
	if err != nil {
		t.Fatalf("queue status: %v", err)
	}
	requireContains(t, out, "Pending")
	requireContains(t, out, "Total")
}

func TestQueueListEmpty(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"queue", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "Queue is empty")
}

func TestQueueListStatusFilter(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, []string{"queue", "add", "alpha", "beta"}, env.configPath); err != nil {
		t.Fatalf("queue add: %v", err)
	}

	out, _, err := runCLI(t, []string{"queue", "list", "--status", "Completed"}, env.configPath)
	if err != nil {
		t.Fatalf("queue list --status: %v", err)
	}
	requireContains(t, out, "Queue is empty")

	if _, _, err := runCLI(t, []string{"queue", "list", "--status", "nonsense"}, env.configPath); err == nil {
		t.Fatal("expected error for unknown status filter")
	}
}

func TestQueueRemoveAndReset(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, []string{"queue", "add", "ephemeral topic"}, env.configPath); err != nil {
		t.Fatalf("queue add: %v", err)
	}

	out, _, err := runCLI(t, []string{"queue", "reset", "ephemeral topic"}, env.configPath)
	if err != nil {
		t.Fatalf("queue reset: %v", err)
	}
	requireContains(t, out, "already Pending")

	out, _, err = runCLI(t, []string{"queue", "remove", "ephemeral topic"}, env.configPath)
	if err != nil {
		t.Fatalf("queue remove: %v", err)
	}
	requireContains(t, out, "Removed")

	out, _, err = runCLI(t, []string{"queue", "remove", "ephemeral topic"}, env.configPath)
	if err != nil {
		t.Fatalf("queue remove absent: %v", err)
	}
	requireContains(t, out, "not queued")
}

// run --once drains the queue with the placeholder pipeline end to end.
func TestRunOnceProcessesQueue(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, []string{"queue", "add", "end to end topic"}, env.configPath); err != nil {
		t.Fatalf("queue add: %v", err)
	}
	if _, _, err := runCLI(t, []string{"run", "--once"}, env.configPath); err != nil {
		t.Fatalf("run --once: %v", err)
	}

	out, _, err := runCLI(t, []string{"queue", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "Completed")
}

func TestQueueRemoveBulkClear(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, []string{"queue", "add", "keeper", "doomed"}, env.configPath); err != nil {
		t.Fatalf("queue add: %v", err)
	}

	store := testsupport.MustOpenStore(t, env.cfg)
	ctx := context.Background()
	if _, err := store.Claim(ctx, "doomed"); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if _, err := store.Finalize(ctx, "doomed", queue.OutcomeFailed, queue.FinalizeResult{
		ErrorMessage: "phase Phase_2_Research: upstream timeout",
	}); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	out, _, err := runCLI(t, []string{"queue", "remove", "--failed"}, env.configPath)
	if err != nil {
		t.Fatalf("queue remove --failed: %v", err)
	}
	requireContains(t, out, `Removed "doomed"`)

	out, _, err = runCLI(t, []string{"queue", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "Keeper")
	if strings.Contains(out, "Doomed") {
		t.Fatalf("expected failed record gone, got:\n%s", out)
	}

	if _, _, err := runCLI(t, []string{"queue", "remove"}, env.configPath); err == nil {
		t.Fatal("expected error when no topics and no clear flags given")
	}
}

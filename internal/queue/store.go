package queue

import (
	"context"
	"fmt"
	"time"

	"loom/internal/config"
)

// Store is the record store contract shared by the claim protocol and the
// CLI. Implementations guarantee at most one record per topic and preserve
// insertion order in listings.
type Store interface {
	// Add inserts a Pending record for topic. ErrDuplicateTopic when one exists.
	Add(ctx context.Context, topic string) (*Record, error)

	// Get fetches the record for topic. ErrNotFound when absent.
	Get(ctx context.Context, topic string) (*Record, error)

	// List returns records in insertion order, filtered to the given
	// statuses (all records when none are supplied).
	List(ctx context.Context, statuses ...Status) ([]*Record, error)

	// ListPending returns Pending records in insertion order.
	ListPending(ctx context.Context) ([]*Record, error)

	// Claim transitions topic from Pending to In_Progress, recording the
	// claim timestamp. ErrClaimConflict when the record is no longer
	// Pending; ErrNotFound when absent.
	Claim(ctx context.Context, topic string) (*Record, error)

	// ReleaseStale resets In_Progress records whose claim is older than
	// olderThan back to Pending, clearing the claim timestamp. Returns the
	// number of records reset.
	ReleaseStale(ctx context.Context, olderThan time.Duration) (int64, error)

	// AttachWorkspace records the workspace directory on an In_Progress
	// record so a later reclaim can resume it.
	AttachWorkspace(ctx context.Context, topic, outputPath string) error

	// Finalize transitions an In_Progress record to Completed or Failed,
	// stamping the finish time and derived duration. ErrInvalidTransition
	// when the record is not currently In_Progress.
	Finalize(ctx context.Context, topic string, outcome Outcome, result FinalizeResult) (*Record, error)

	// Reset returns a terminal or In_Progress record to Pending, clearing
	// timestamps and the error message. Operator tool; never called by the
	// orchestrator.
	Reset(ctx context.Context, topic string) (*Record, error)

	// Remove deletes the record for topic, reporting whether one existed.
	// Operator tool; the core itself never deletes records.
	Remove(ctx context.Context, topic string) (bool, error)

	// Stats returns a count of records grouped by status.
	Stats(ctx context.Context) (map[Status]int, error)

	Close() error
}

// Open constructs the record store selected by store.backend.
func Open(cfg *config.Config) (Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	retry := retryPolicy{
		attempts: cfg.Store.RetryCount,
		delay:    time.Duration(cfg.Store.RetryDelaySeconds) * time.Second,
	}
	switch cfg.Store.Backend {
	case config.BackendFile:
		return NewFileStore(cfg.Paths.RecordStorePath, retry)
	case config.BackendSQLite:
		return NewSQLiteStore(sqlitePathFor(cfg.Paths.RecordStorePath), retry)
	default:
		return nil, fmt.Errorf("unknown record store backend %q", cfg.Store.Backend)
	}
}

// retryPolicy bounds retries against transient store contention. The delay
// doubles per attempt up to maxDelay (fixed delay when maxDelay is unset).
type retryPolicy struct {
	attempts int
	delay    time.Duration
	maxDelay time.Duration
}

func (p retryPolicy) normalized() retryPolicy {
	if p.attempts <= 0 {
		p.attempts = 1
	}
	if p.delay <= 0 {
		p.delay = 100 * time.Millisecond
	}
	if p.maxDelay <= 0 {
		p.maxDelay = p.delay * 8
	}
	return p
}

// budget is the total time the policy allows for acquiring store access.
func (p retryPolicy) budget() time.Duration {
	p = p.normalized()
	total := time.Duration(0)
	delay := p.delay
	for i := 0; i < p.attempts; i++ {
		total += delay
		if next := delay * 2; next <= p.maxDelay {
			delay = next
		}
	}
	return total
}

// run invokes op up to attempts times, backing off between transient
// failures as reported by transient. The last error is returned untouched so
// sentinel checks keep working.
func (p retryPolicy) run(ctx context.Context, transient func(error) bool, op func() error) error {
	p = p.normalized()
	delay := p.delay
	var lastErr error
	for attempt := 0; attempt < p.attempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if transient == nil || !transient(lastErr) || attempt == p.attempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= p.maxDelay {
			delay = next
		}
	}
	return lastErr
}

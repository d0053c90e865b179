package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// FileStore persists job records in a single CSV file, rewritten whole on
// every mutation. Every operation, read or write, runs under an exclusive
// file lock beside the store file; because writes are serialized by that
// lock, the re-read inside Claim is authoritative and the second writer of a
// racing claim always observes the committed In_Progress.
type FileStore struct {
	path  string
	lock  *flock.Flock
	retry retryPolicy
}

// NewFileStore opens (creating if necessary) the CSV record store at path.
func NewFileStore(path string, retry retryPolicy) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create record store directory: %w", err)
	}
	store := &FileStore{
		path:  path,
		lock:  flock.New(path + ".lock"),
		retry: retry.normalized(),
	}
	if err := store.withLock(context.Background(), func() error {
		if _, err := os.Stat(path); err == nil {
			return nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("stat record store: %w", err)
		}
		return store.writeRows(nil)
	}); err != nil {
		return nil, err
	}
	return store, nil
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Close releases nothing; the lock is only held per-operation.
func (s *FileStore) Close() error {
	return nil
}

// withLock runs fn while holding the store's exclusive lock. Lock
// acquisition waits at most the retry budget, polling at the configured
// delay; exhaustion surfaces as ErrStoreUnavailable.
func (s *FileStore) withLock(ctx context.Context, fn func() error) error {
	lockCtx, cancel := context.WithTimeout(ctx, s.retry.budget())
	defer cancel()

	locked, err := s.lock.TryLockContext(lockCtx, s.retry.delay)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: lock wait exceeded %s", ErrStoreUnavailable, s.retry.budget())
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: acquire lock: %v", ErrStoreUnavailable, err)
	}
	if !locked {
		return fmt.Errorf("%w: lock busy", ErrStoreUnavailable)
	}
	defer func() { _ = s.lock.Unlock() }()

	return fn()
}

func (s *FileStore) Add(ctx context.Context, topic string) (*Record, error) {
	record := &Record{Topic: topic, Status: StatusPending}
	err := s.withLock(ctx, func() error {
		rows, err := s.readRows()
		if err != nil {
			return err
		}
		if indexOf(rows, topic) >= 0 {
			return fmt.Errorf("%w: %s", ErrDuplicateTopic, topic)
		}
		rows = append(rows, record.Clone())
		return s.writeRows(rows)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *FileStore) Get(ctx context.Context, topic string) (*Record, error) {
	var found *Record
	err := s.withLock(ctx, func() error {
		rows, err := s.readRows()
		if err != nil {
			return err
		}
		idx := indexOf(rows, topic)
		if idx < 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, topic)
		}
		found = rows[idx].Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

func (s *FileStore) List(ctx context.Context, statuses ...Status) ([]*Record, error) {
	var listed []*Record
	err := s.withLock(ctx, func() error {
		rows, err := s.readRows()
		if err != nil {
			return err
		}
		for _, row := range rows {
			if len(statuses) > 0 && !containsStatus(statuses, row.Status) {
				continue
			}
			listed = append(listed, row.Clone())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return listed, nil
}

func (s *FileStore) ListPending(ctx context.Context) ([]*Record, error) {
	return s.List(ctx, StatusPending)
}

func (s *FileStore) Claim(ctx context.Context, topic string) (*Record, error) {
	var claimed *Record
	err := s.withLock(ctx, func() error {
		rows, err := s.readRows()
		if err != nil {
			return err
		}
		idx := indexOf(rows, topic)
		if idx < 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, topic)
		}
		if rows[idx].Status != StatusPending {
			return fmt.Errorf("%w: %s is %s", ErrClaimConflict, topic, rows[idx].Status)
		}

		// Re-read immediately before commit. With the exclusive lock held
		// this cannot observe a different value, but the claim contract is
		// read-verify-write regardless of backend guarantees.
		rows, err = s.readRows()
		if err != nil {
			return err
		}
		idx = indexOf(rows, topic)
		if idx < 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, topic)
		}
		if rows[idx].Status != StatusPending {
			return fmt.Errorf("%w: %s changed to %s during claim", ErrClaimConflict, topic, rows[idx].Status)
		}

		now := time.Now().UTC()
		rows[idx].Status = StatusInProgress
		rows[idx].StartedAt = &now
		rows[idx].FinishedAt = nil
		rows[idx].ErrorMessage = ""
		if err := s.writeRows(rows); err != nil {
			return err
		}
		claimed = rows[idx].Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (s *FileStore) ReleaseStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	var released int64
	err := s.withLock(ctx, func() error {
		rows, err := s.readRows()
		if err != nil {
			return err
		}
		cutoff := time.Now().UTC().Add(-olderThan)
		for _, row := range rows {
			if row.Status != StatusInProgress || row.StartedAt == nil {
				continue
			}
			if row.StartedAt.After(cutoff) {
				continue
			}
			row.Status = StatusPending
			row.StartedAt = nil
			released++
		}
		if released == 0 {
			return nil
		}
		return s.writeRows(rows)
	})
	if err != nil {
		return 0, err
	}
	return released, nil
}

func (s *FileStore) AttachWorkspace(ctx context.Context, topic, outputPath string) error {
	return s.withLock(ctx, func() error {
		rows, err := s.readRows()
		if err != nil {
			return err
		}
		idx := indexOf(rows, topic)
		if idx < 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, topic)
		}
		if rows[idx].Status != StatusInProgress {
			return fmt.Errorf("%w: attach workspace to %s record %s", ErrInvalidTransition, rows[idx].Status, topic)
		}
		rows[idx].OutputPath = outputPath
		return s.writeRows(rows)
	})
}

func (s *FileStore) Finalize(ctx context.Context, topic string, outcome Outcome, result FinalizeResult) (*Record, error) {
	target, ok := outcome.status()
	if !ok {
		return nil, fmt.Errorf("unknown outcome %q", outcome)
	}
	var finalized *Record
	err := s.withLock(ctx, func() error {
		rows, err := s.readRows()
		if err != nil {
			return err
		}
		idx := indexOf(rows, topic)
		if idx < 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, topic)
		}
		if rows[idx].Status != StatusInProgress {
			return fmt.Errorf("%w: finalize %s record %s", ErrInvalidTransition, rows[idx].Status, topic)
		}
		now := time.Now().UTC()
		rows[idx].Status = target
		rows[idx].FinishedAt = &now
		if rows[idx].StartedAt != nil {
			rows[idx].DurationSeconds = now.Sub(*rows[idx].StartedAt).Seconds()
		}
		rows[idx].ErrorMessage = result.ErrorMessage
		if result.QualityScore != nil {
			q := *result.QualityScore
			rows[idx].QualityScore = &q
		}
		if result.OutputPath != "" {
			rows[idx].OutputPath = result.OutputPath
		}
		if err := s.writeRows(rows); err != nil {
			return err
		}
		finalized = rows[idx].Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return finalized, nil
}

func (s *FileStore) Reset(ctx context.Context, topic string) (*Record, error) {
	var reset *Record
	err := s.withLock(ctx, func() error {
		rows, err := s.readRows()
		if err != nil {
			return err
		}
		idx := indexOf(rows, topic)
		if idx < 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, topic)
		}
		if rows[idx].Status == StatusPending {
			return fmt.Errorf("%w: %s is already Pending", ErrInvalidTransition, topic)
		}
		rows[idx].Status = StatusPending
		rows[idx].StartedAt = nil
		rows[idx].FinishedAt = nil
		rows[idx].DurationSeconds = 0
		rows[idx].QualityScore = nil
		rows[idx].ErrorMessage = ""
		if err := s.writeRows(rows); err != nil {
			return err
		}
		reset = rows[idx].Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reset, nil
}

func (s *FileStore) Remove(ctx context.Context, topic string) (bool, error) {
	removed := false
	err := s.withLock(ctx, func() error {
		rows, err := s.readRows()
		if err != nil {
			return err
		}
		idx := indexOf(rows, topic)
		if idx < 0 {
			return nil
		}
		rows = append(rows[:idx], rows[idx+1:]...)
		if err := s.writeRows(rows); err != nil {
			return err
		}
		removed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

func (s *FileStore) Stats(ctx context.Context) (map[Status]int, error) {
	stats := make(map[Status]int)
	err := s.withLock(ctx, func() error {
		rows, err := s.readRows()
		if err != nil {
			return err
		}
		for _, row := range rows {
			stats[row.Status]++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func indexOf(rows []*Record, topic string) int {
	for i, row := range rows {
		if row.Topic == topic {
			return i
		}
	}
	return -1
}

func containsStatus(statuses []Status, status Status) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

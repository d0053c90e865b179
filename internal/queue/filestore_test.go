package queue

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"
)

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(filepath.Join(t.TempDir(), "topics.csv"), retryPolicy{
		attempts: 2,
		delay:    10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return store
}

func TestFileStoreCreatesHeaderOnlyFile(t *testing.T) {
	store := newTestFileStore(t)

	data, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatalf("read store file: %v", err)
	}
	want := "Topic,Status,Timestamp_Start,Timestamp_End,Duration_Seconds,Quality_Score,Error_Message,Output_Path\n"
	if string(data) != want {
		t.Fatalf("unexpected initial file contents: %q", string(data))
	}
}

// Columns are resolved by header name, so files written with a different
// column order still load.
func TestFileStoreReadsReorderedColumns(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "topics.csv")
	contents := "Status,Topic,Quality_Score,Timestamp_Start\n" +
		"Completed,reordered topic,0.9,2026-01-02T03:04:05Z\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("seed store file: %v", err)
	}

	store, err := NewFileStore(path, retryPolicy{})
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	record, err := store.Get(context.Background(), "reordered topic")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if record.Status != StatusCompleted {
		t.Fatalf("expected Completed, got %s", record.Status)
	}
	if record.QualityScore == nil || *record.QualityScore != 0.9 {
		t.Fatalf("unexpected quality score: %#v", record.QualityScore)
	}
	if record.StartedAt == nil || record.StartedAt.Year() != 2026 {
		t.Fatalf("unexpected start timestamp: %#v", record.StartedAt)
	}
}

func TestFileStoreAcceptsSecondPrecisionTimestamps(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "topics.csv")
	contents := "Topic,Status,Timestamp_Start,Timestamp_End,Duration_Seconds,Quality_Score,Error_Message,Output_Path\n" +
		"legacy topic,In_Progress,2026-01-02 03:04:05,,,,,\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("seed store file: %v", err)
	}

	store, err := NewFileStore(path, retryPolicy{})
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	record, err := store.Get(context.Background(), "legacy topic")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if record.StartedAt == nil || record.StartedAt.Minute() != 4 {
		t.Fatalf("unexpected start timestamp: %#v", record.StartedAt)
	}
}

func TestFileStoreRejectsMissingStatusColumn(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "topics.csv")
	if err := os.WriteFile(path, []byte("Topic,Output_Path\nsome topic,\n"), 0o644); err != nil {
		t.Fatalf("seed store file: %v", err)
	}

	store, err := NewFileStore(path, retryPolicy{})
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if _, err := store.Get(context.Background(), "some topic"); err == nil {
		t.Fatal("expected error for missing Status column")
	}
}

// When another holder keeps the lock past the retry budget, operations fail
// with ErrStoreUnavailable instead of blocking forever.
func TestFileStoreLockExhaustion(t *testing.T) {
	store := newTestFileStore(t)

	blocker := flock.New(store.Path() + ".lock")
	locked, err := blocker.TryLock()
	if err != nil || !locked {
		t.Fatalf("acquire blocking lock: locked=%v err=%v", locked, err)
	}
	defer blocker.Unlock()

	_, err = store.Get(context.Background(), "anything")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestFileStoreSurvivesRewrite(t *testing.T) {
	store := newTestFileStore(t)
	ctx := context.Background()

	if _, err := store.Add(ctx, "first"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if _, err := store.Add(ctx, "second"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if _, err := store.Claim(ctx, "first"); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}

	// A second handle opened on the same path sees the committed state.
	reopened, err := NewFileStore(store.Path(), retryPolicy{})
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	record, err := reopened.Get(ctx, "first")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if record.Status != StatusInProgress {
		t.Fatalf("expected In_Progress, got %s", record.Status)
	}
}

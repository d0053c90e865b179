package queue_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"loom/internal/queue"
	"loom/internal/testsupport"
)

// Racing workers must settle on exactly one claimant per topic; every loser
// sees ErrClaimConflict, never a partial write.
func TestConcurrentClaimSingleWinner(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store queue.Store) {
		ctx := context.Background()
		testsupport.AddTopic(t, store, "contested topic")

		const workers = 8
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			wins      int
			conflicts int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.Claim(ctx, "contested topic")
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					wins++
				case errors.Is(err, queue.ErrClaimConflict):
					conflicts++
				default:
					t.Errorf("unexpected claim error: %v", err)
				}
			}()
		}
		wg.Wait()

		if wins != 1 {
			t.Fatalf("expected exactly one winner, got %d", wins)
		}
		if conflicts != workers-1 {
			t.Fatalf("expected %d conflicts, got %d", workers-1, conflicts)
		}

		record, err := store.Get(ctx, "contested topic")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if record.Status != queue.StatusInProgress {
			t.Fatalf("expected In_Progress after race, got %s", record.Status)
		}
	})
}

// Distinct topics claimed concurrently must not interfere with each other.
func TestConcurrentClaimDistinctTopics(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store queue.Store) {
		ctx := context.Background()
		const topics = 6
		for i := 0; i < topics; i++ {
			testsupport.AddTopic(t, store, fmt.Sprintf("topic-%d", i))
		}

		var wg sync.WaitGroup
		errs := make([]error, topics)
		for i := 0; i < topics; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = store.Claim(ctx, fmt.Sprintf("topic-%d", i))
			}(i)
		}
		wg.Wait()

		for i, err := range errs {
			if err != nil {
				t.Fatalf("claim of topic-%d failed: %v", i, err)
			}
		}

		stats, err := store.Stats(ctx)
		if err != nil {
			t.Fatalf("Stats failed: %v", err)
		}
		if stats[queue.StatusInProgress] != topics {
			t.Fatalf("expected %d In_Progress records, got %d", topics, stats[queue.StatusInProgress])
		}
	})
}

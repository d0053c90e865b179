package testsupport

import (
	"context"
	"testing"

	"loom/internal/config"
	"loom/internal/queue"
)

// MustOpenStore opens a record store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// AddTopic inserts a Pending record for tests using the provided store.
func AddTopic(t testing.TB, store queue.Store, topic string) *queue.Record {
	t.Helper()

	record, err := store.Add(context.Background(), topic)
	if err != nil {
		t.Fatalf("store.Add: %v", err)
	}
	return record
}

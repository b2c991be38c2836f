package retention

import (
	"context"
	"testing"
	"time"
)

func TestSweepNowRemovesOnlyRecordsPastWindow(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	store.MarkTerminal("old", now.Add(-2*time.Hour))
	store.MarkTerminal("recent", now.Add(-5*time.Minute))

	sweeper := NewSweeper(store, time.Hour, nil)
	sweeper.nowFunc = func() time.Time { return now }

	removed := sweeper.SweepNow(context.Background())
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}

	remaining := store.ListTerminal()
	if len(remaining) != 1 || remaining[0].NegotiationID != "recent" {
		t.Fatalf("remaining = %+v, want only 'recent'", remaining)
	}
}

func TestSweepNowNoOpOnEmptyStore(t *testing.T) {
	store := NewMemoryStore()
	sweeper := NewSweeper(store, time.Hour, nil)
	if removed := sweeper.SweepNow(context.Background()); removed != 0 {
		t.Fatalf("removed = %d, want 0", removed)
	}
}

func TestMemoryStoreDeleteIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	store.MarkTerminal("a", time.Now())
	store.Delete("a")
	store.Delete("a") // should not panic
	if len(store.ListTerminal()) != 0 {
		t.Fatal("expected empty store after delete")
	}
}

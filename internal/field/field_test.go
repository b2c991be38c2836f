package field

import (
	"context"
	"strings"
	"testing"

	"github.com/towow/negotiation/pkg/vector"
)

// hashingEncoder is a deterministic stand-in for a real embedding model: it
// maps text to a fixed-width vector keyed by simple token overlap, enough to
// make similar strings land close together without a network call.
type hashingEncoder struct{ dim int }

func (h hashingEncoder) Encode(_ context.Context, text string) (vector.Vector, error) {
	v := make(vector.Vector, h.dim)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		var sum int
		for _, r := range tok {
			sum += int(r)
		}
		v[sum%h.dim] += 1
	}
	return v, nil
}

func newTestField() *MemoryField {
	encoder := hashingEncoder{dim: 32}
	projector := vector.NewSimHashProjector(32, 256, 7)
	return NewMemoryField(encoder, projector)
}

func TestDepositIsIdempotentPerOwnerAndText(t *testing.T) {
	f := newTestField()
	ctx := context.Background()

	id1, err := f.Deposit(ctx, "needs a ride to the airport", "agent-a", nil)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	id2, err := f.Deposit(ctx, "needs a ride to the airport", "agent-a", nil)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("duplicate deposit should return same id, got %s and %s", id1, id2)
	}
	if f.Count() != 1 {
		t.Fatalf("count = %d, want 1", f.Count())
	}
}

func TestDepositRejectsEmptyTextOrOwner(t *testing.T) {
	f := newTestField()
	ctx := context.Background()

	if _, err := f.Deposit(ctx, "  ", "agent-a", nil); err == nil {
		t.Fatal("expected error for empty text")
	}
	if _, err := f.Deposit(ctx, "valid text", "  ", nil); err == nil {
		t.Fatal("expected error for empty owner")
	}
}

func TestMatchRanksBySimilarity(t *testing.T) {
	f := newTestField()
	ctx := context.Background()

	if _, err := f.Deposit(ctx, "ride to the airport", "agent-a", nil); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := f.Deposit(ctx, "looking for a used bicycle", "agent-b", nil); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	results, err := f.Match(ctx, "need a ride to the airport", 2)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len = %d, want 2", len(results))
	}
	if results[0].Owner != "agent-a" {
		t.Fatalf("top match owner = %s, want agent-a", results[0].Owner)
	}
}

func TestMatchEmptyFieldReturnsNil(t *testing.T) {
	f := newTestField()
	results, err := f.Match(context.Background(), "anything", 5)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if results != nil {
		t.Fatalf("expected nil results on empty field, got %v", results)
	}
}

func TestRemoveThenDepositAgainReassignsID(t *testing.T) {
	f := newTestField()
	ctx := context.Background()

	id, err := f.Deposit(ctx, "needs a plumber", "agent-a", nil)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	f.Remove(id)
	if f.Count() != 0 {
		t.Fatalf("count after remove = %d, want 0", f.Count())
	}

	newID, err := f.Deposit(ctx, "needs a plumber", "agent-a", nil)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if newID == id {
		t.Fatalf("expected a fresh id after remove, got the same one")
	}
}

func TestRemoveOwnerClearsAllOfOwnersIntents(t *testing.T) {
	f := newTestField()
	ctx := context.Background()

	if _, err := f.Deposit(ctx, "first intent", "agent-a", nil); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := f.Deposit(ctx, "second intent", "agent-a", nil); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := f.Deposit(ctx, "unrelated intent", "agent-b", nil); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	removed := f.RemoveOwner("agent-a")
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	if f.Count() != 1 {
		t.Fatalf("count after remove-owner = %d, want 1", f.Count())
	}
	if f.CountOwners() != 1 {
		t.Fatalf("count-owners after remove-owner = %d, want 1", f.CountOwners())
	}
}

func TestMatchOwnersAggregatesByBestIntent(t *testing.T) {
	f := newTestField()
	ctx := context.Background()

	if _, err := f.Deposit(ctx, "ride to the airport", "agent-a", nil); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := f.Deposit(ctx, "ride to the airport early morning", "agent-a", nil); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := f.Deposit(ctx, "selling a couch", "agent-b", nil); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	matches, err := f.MatchOwners(ctx, "need a ride to the airport", 2, 3)
	if err != nil {
		t.Fatalf("match-owners: %v", err)
	}
	if len(matches) == 0 {
		t.Fatal("expected at least one owner match")
	}
	if matches[0].Owner != "agent-a" {
		t.Fatalf("top owner = %s, want agent-a", matches[0].Owner)
	}
	if len(matches[0].Intents) != 2 {
		t.Fatalf("agent-a intents = %d, want 2", len(matches[0].Intents))
	}
}

// Package field implements a persistent, owner-indexed intent field — a
// longer-lived vector index distinct from the per-negotiation resonance
// detector, so intents survive past the negotiation that deposited them.
package field

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/towow/negotiation/pkg/vector"
)

// Intent is one deposited statement of interest, owned by a single agent.
type Intent struct {
	ID       string
	Owner    string
	Text     string
	Metadata map[string]interface{}
}

// Result is one intent-level match against a query.
type Result struct {
	IntentID string
	Score    float64
	Owner    string
	Text     string
	Metadata map[string]interface{}
}

// OwnerMatch aggregates the top intent-level results per owner.
type OwnerMatch struct {
	Owner   string
	Score   float64
	Intents []Result
}

// Projector is the subset of *vector.SimHashProjector the field depends on,
// declared locally so field doesn't require a concrete projector type.
type Projector interface {
	Project(dense vector.Vector) *vector.BitVector
}

// TextEncoder turns raw text into a dense vector the Projector can bundle
// down to a packed binary representation.
type TextEncoder interface {
	Encode(ctx context.Context, text string) (vector.Vector, error)
}

// MemoryField is an in-process, mutex-guarded persistent intent field. It
// keeps a growable packed-binary vector buffer with O(1) swap-remove,
// mirroring the reference field's capacity-doubling buffer.
type MemoryField struct {
	encoder   TextEncoder
	projector Projector

	mu         sync.RWMutex
	intents    map[string]Intent
	dedup      map[string]struct{}
	ownerIndex map[string]map[string]struct{}

	vectors  []*vector.BitVector // active view, len == len(idIndex)
	idIndex  []string            // row -> intent id
	posIndex map[string]int      // intent id -> row
}

// NewMemoryField constructs an empty field backed by encoder and projector.
func NewMemoryField(encoder TextEncoder, projector Projector) *MemoryField {
	return &MemoryField{
		encoder:    encoder,
		projector:  projector,
		intents:    make(map[string]Intent),
		dedup:      make(map[string]struct{}),
		ownerIndex: make(map[string]map[string]struct{}),
		posIndex:   make(map[string]int),
	}
}

func dedupKey(owner, text string) string {
	sum := sha256.Sum256([]byte(owner + "|" + text))
	return hex.EncodeToString(sum[:])
}

// Deposit stores text under owner, returning its intent id. Idempotent: a
// repeated (owner, text) pair returns the existing id rather than storing a
// duplicate.
func (f *MemoryField) Deposit(ctx context.Context, text, owner string, metadata map[string]interface{}) (string, error) {
	text = strings.TrimSpace(text)
	owner = strings.TrimSpace(owner)
	if text == "" {
		return "", fmt.Errorf("field: cannot deposit empty text")
	}
	if owner == "" {
		return "", fmt.Errorf("field: cannot deposit without owner")
	}

	key := dedupKey(owner, text)

	f.mu.RLock()
	if _, exists := f.dedup[key]; exists {
		for id, intent := range f.intents {
			if intent.Owner == owner && intent.Text == text {
				f.mu.RUnlock()
				return id, nil
			}
		}
	}
	f.mu.RUnlock()

	dense, err := f.encoder.Encode(ctx, text)
	if err != nil {
		return "", fmt.Errorf("field: encode intent text: %w", err)
	}
	packed := f.projector.Project(dense)

	f.mu.Lock()
	defer f.mu.Unlock()

	id := uuid.NewString()
	f.intents[id] = Intent{ID: id, Owner: owner, Text: text, Metadata: metadata}
	f.dedup[key] = struct{}{}
	if f.ownerIndex[owner] == nil {
		f.ownerIndex[owner] = make(map[string]struct{})
	}
	f.ownerIndex[owner][id] = struct{}{}

	f.posIndex[id] = len(f.idIndex)
	f.idIndex = append(f.idIndex, id)
	f.vectors = append(f.vectors, packed)

	return id, nil
}

// Match returns the k intents whose packed vectors are most similar to
// text's projection, ranked by descending Hamming similarity.
func (f *MemoryField) Match(ctx context.Context, text string, k int) ([]Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	dense, err := f.encoder.Encode(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("field: encode query text: %w", err)
	}
	query := f.projector.Project(dense)

	f.mu.RLock()
	defer f.mu.RUnlock()

	if len(f.idIndex) == 0 {
		return nil, nil
	}

	type scored struct {
		idx   int
		score float64
	}
	scores := make([]scored, len(f.idIndex))
	for i, v := range f.vectors {
		scores[i] = scored{idx: i, score: query.Similarity(v)}
	}
	sort.Slice(scores, func(a, b int) bool { return scores[a].score > scores[b].score })

	if k <= 0 || k > len(scores) {
		k = len(scores)
	}
	results := make([]Result, 0, k)
	for _, s := range scores[:k] {
		id := f.idIndex[s.idx]
		intent := f.intents[id]
		results = append(results, Result{
			IntentID: id,
			Score:    s.score,
			Owner:    intent.Owner,
			Text:     intent.Text,
			Metadata: intent.Metadata,
		})
	}
	return results, nil
}

// MatchOwners aggregates intent-level results by owner, keeping up to
// maxIntents per owner, ranked by each owner's best-scoring intent.
func (f *MemoryField) MatchOwners(ctx context.Context, text string, k, maxIntents int) ([]OwnerMatch, error) {
	if maxIntents <= 0 {
		maxIntents = 3
	}
	rawK := k * maxIntents * 2
	intentResults, err := f.Match(ctx, text, rawK)
	if err != nil {
		return nil, err
	}

	grouped := make(map[string][]Result)
	var ownerOrder []string
	for _, r := range intentResults {
		if _, seen := grouped[r.Owner]; !seen {
			ownerOrder = append(ownerOrder, r.Owner)
		}
		grouped[r.Owner] = append(grouped[r.Owner], r)
	}

	matches := make([]OwnerMatch, 0, len(ownerOrder))
	for _, owner := range ownerOrder {
		intents := grouped[owner]
		if len(intents) > maxIntents {
			intents = intents[:maxIntents]
		}
		matches = append(matches, OwnerMatch{Owner: owner, Score: intents[0].Score, Intents: intents})
	}
	sort.Slice(matches, func(a, b int) bool { return matches[a].Score > matches[b].Score })

	if k > 0 && k < len(matches) {
		matches = matches[:k]
	}
	return matches, nil
}

// Remove deletes one intent. Silent if the id is unknown.
func (f *MemoryField) Remove(intentID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeLocked(intentID)
}

// RemoveOwner deletes every intent belonging to owner and returns the count
// removed.
func (f *MemoryField) RemoveOwner(owner string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := f.ownerIndex[owner]
	n := len(ids)
	for id := range ids {
		f.removeLocked(id)
	}
	return n
}

// removeLocked swaps the target row with the last active row so removal
// stays O(1) regardless of field size. Caller must hold f.mu.
func (f *MemoryField) removeLocked(intentID string) {
	intent, ok := f.intents[intentID]
	if !ok {
		return
	}
	delete(f.intents, intentID)
	delete(f.dedup, dedupKey(intent.Owner, intent.Text))

	if owners := f.ownerIndex[intent.Owner]; owners != nil {
		delete(owners, intentID)
		if len(owners) == 0 {
			delete(f.ownerIndex, intent.Owner)
		}
	}

	idx, ok := f.posIndex[intentID]
	if !ok {
		return
	}
	delete(f.posIndex, intentID)

	last := len(f.idIndex) - 1
	if idx != last {
		movedID := f.idIndex[last]
		f.idIndex[idx] = movedID
		f.vectors[idx] = f.vectors[last]
		f.posIndex[movedID] = idx
	}
	f.idIndex = f.idIndex[:last]
	f.vectors = f.vectors[:last]
}

// Count returns the number of active intents.
func (f *MemoryField) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.idIndex)
}

// CountOwners returns the number of distinct owners with at least one
// active intent.
func (f *MemoryField) CountOwners() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.ownerIndex)
}

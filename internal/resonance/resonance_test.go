package resonance

import (
	"testing"

	"github.com/towow/negotiation/pkg/vector"
)

func TestDetectRanksAndTieBreaks(t *testing.T) {
	demand := vector.Vector{1, 0}
	agents := map[string]vector.Vector{
		"b": {1, 0},
		"a": {1, 0},
		"c": {0, 1},
	}
	got := CosineDetector{}.Detect(demand, agents, 3)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].AgentID != "a" || got[1].AgentID != "b" {
		t.Fatalf("tie-break order = %+v, want a before b", got[:2])
	}
	if got[2].AgentID != "c" || got[2].Score != 0 {
		t.Fatalf("orthogonal agent should score 0, got %+v", got[2])
	}
}

func TestDetectKStarZero(t *testing.T) {
	got := CosineDetector{}.Detect(vector.Vector{1}, map[string]vector.Vector{"a": {1}}, 0)
	if got != nil {
		t.Fatalf("k_star=0 should return empty, got %v", got)
	}
}

func TestDetectEmptyAgents(t *testing.T) {
	got := CosineDetector{}.Detect(vector.Vector{1}, map[string]vector.Vector{}, 5)
	if got != nil {
		t.Fatalf("no agents should return empty, got %v", got)
	}
}

func TestDetectZeroNormDemand(t *testing.T) {
	got := CosineDetector{}.Detect(vector.Vector{0, 0}, map[string]vector.Vector{"a": {1, 1}}, 5)
	if got != nil {
		t.Fatalf("zero-norm demand should return empty, got %v", got)
	}
}

func TestDetectCapsAtKStar(t *testing.T) {
	agents := map[string]vector.Vector{"a": {1, 0}, "b": {0.9, 0.1}, "c": {0, 1}}
	got := CosineDetector{}.Detect(vector.Vector{1, 0}, agents, 2)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
}

// Package resonance ranks candidate agents against a demand vector.
package resonance

import (
	"sort"

	"github.com/towow/negotiation/pkg/vector"
)

// Match pairs an agent id with its resonance score.
type Match struct {
	AgentID string
	Score   float64
}

// Detector ranks candidate agent vectors against a demand vector.
// Implementations must be pure and idempotent.
type Detector interface {
	// Detect returns the top min(kStar, len(agentVectors)) agents by cosine
	// score, descending, tie-broken by ascending agent id.
	Detect(demand vector.Vector, agentVectors map[string]vector.Vector, kStar int) []Match
}

// CosineDetector is the default Detector: cosine similarity ranking.
type CosineDetector struct{}

// Detect implements Detector.
func (CosineDetector) Detect(demand vector.Vector, agentVectors map[string]vector.Vector, kStar int) []Match {
	if kStar <= 0 || len(agentVectors) == 0 {
		return nil
	}
	if vector.Norm(demand) < vector.ZeroNormEpsilon {
		return nil
	}

	matches := make([]Match, 0, len(agentVectors))
	for id, v := range agentVectors {
		score := vector.Cosine(demand, v)
		matches = append(matches, Match{AgentID: id, Score: score})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].AgentID < matches[j].AgentID
	})

	if kStar > len(matches) {
		kStar = len(matches)
	}
	return matches[:kStar]
}

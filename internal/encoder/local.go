package encoder

import (
	"context"
	"hash/fnv"
	"strings"

	"github.com/towow/negotiation/pkg/vector"
)

// LocalEncoder is a dependency-free, deterministic Encoder used for tests
// and for deployments that have no embedding service available. It hashes
// shingles of the input into a fixed-width vector — not semantically
// meaningful, but stable, normalized, and safe for concurrent use, which is
// all the engine's contract (§4.2) requires of an Encoder.
type LocalEncoder struct {
	dim int
}

// NewLocalEncoder returns a LocalEncoder producing vectors of dimension dim.
func NewLocalEncoder(dim int) *LocalEncoder {
	if dim <= 0 {
		dim = 128
	}
	return &LocalEncoder{dim: dim}
}

func (e *LocalEncoder) Name() string    { return "local-hash" }
func (e *LocalEncoder) Dimension() int  { return e.dim }

func (e *LocalEncoder) Encode(_ context.Context, text string) (vector.Vector, error) {
	if err := checkNonEmpty(text); err != nil {
		return nil, err
	}
	raw := make(vector.Vector, e.dim)
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		words = []string{strings.ToLower(text)}
	}
	for _, w := range words {
		h := fnv.New64a()
		_, _ = h.Write([]byte(w))
		sum := h.Sum64()
		idx := int(sum % uint64(e.dim))
		sign := float32(1)
		if (sum>>63)&1 == 1 {
			sign = -1
		}
		raw[idx] += sign
	}
	norm, err := vector.Normalize(raw)
	if err != nil {
		return nil, wrapZeroNorm(err)
	}
	return norm, nil
}

func (e *LocalEncoder) EncodeBatch(ctx context.Context, texts []string) ([]vector.Vector, error) {
	out := make([]vector.Vector, len(texts))
	for i, t := range texts {
		v, err := e.Encode(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *LocalEncoder) Bundle(_ context.Context, vectors []vector.Vector) (vector.Vector, error) {
	v, err := vector.Bundle(vectors)
	if err != nil {
		if err == vector.ErrEmptyBundle {
			return nil, err
		}
		return nil, wrapZeroNorm(err)
	}
	return v, nil
}

package vector

import (
	"math/rand"

	"github.com/bits-and-blooms/bitset"
)

// DefaultProjectionBits is the bit-width used by SimHashProjector when none
// is specified, matching the dimensionality locked in during the source
// project's phase-1 experiments.
const DefaultProjectionBits = 10000

// DefaultProjectionSeed seeds the random hyperplane matrix so every process
// produces identical projections.
const DefaultProjectionSeed = 42

// SimHashProjector maps a dense float vector to a packed binary vector via
// the sign of its dot product against D random hyperplanes. Hyperplanes are
// generated deterministically from a seed so distinct processes agree.
type SimHashProjector struct {
	inputDim int
	bits     int
	planes   [][]float32
}

// NewSimHashProjector builds a projector for vectors of dimension inputDim,
// producing bits-wide packed binary projections, deterministic under seed.
func NewSimHashProjector(inputDim, bits int, seed int64) *SimHashProjector {
	if inputDim <= 0 {
		panic("vector: inputDim must be positive")
	}
	if bits <= 0 {
		bits = DefaultProjectionBits
	}
	r := rand.New(rand.NewSource(seed))
	planes := make([][]float32, bits)
	for i := range planes {
		row := make([]float32, inputDim)
		for j := range row {
			row[j] = float32(r.NormFloat64())
		}
		planes[i] = row
	}
	return &SimHashProjector{inputDim: inputDim, bits: bits, planes: planes}
}

// Bits returns the projection's bit-width D.
func (p *SimHashProjector) Bits() int { return p.bits }

// Project maps a dense vector into a packed binary BitVector of width
// p.Bits().
func (p *SimHashProjector) Project(dense Vector) *BitVector {
	if len(dense) != p.inputDim {
		panic("vector: input dimension mismatch")
	}
	bs := bitset.New(uint(p.bits))
	for i, plane := range p.planes {
		var dot float64
		for j, x := range plane {
			dot += float64(x) * float64(dense[j])
		}
		if dot >= 0 {
			bs.Set(uint(i))
		}
	}
	return &BitVector{bits: bs, dim: p.bits}
}

// BitVector is a packed binary vector produced by SimHashProjector.
type BitVector struct {
	bits *bitset.BitSet
	dim  int
}

// Dim returns the bit-width D of v.
func (v *BitVector) Dim() int { return v.dim }

// Similarity returns the Hamming similarity 1 - popcount(a^b)/D between v
// and other. Both must share the same dimension.
func (v *BitVector) Similarity(other *BitVector) float64 {
	if v.dim != other.dim {
		panic("vector: bit-vector dimension mismatch")
	}
	xor := v.bits.SymmetricDifference(other.bits)
	return 1 - float64(xor.Count())/float64(v.dim)
}

// BundleBinary applies bitwise majority vote across the given binary
// vectors. Ties at even counts are broken by a seeded pseudo-random bit,
// matching the reference projector's tie-breaking rule.
func BundleBinary(vectors []*BitVector, seed int64) (*BitVector, error) {
	if len(vectors) == 0 {
		return nil, ErrEmptyBundle
	}
	if len(vectors) == 1 {
		clone := vectors[0].bits.Clone()
		return &BitVector{bits: clone, dim: vectors[0].dim}, nil
	}
	dim := vectors[0].dim
	counts := make([]int, dim)
	for _, v := range vectors {
		if v.dim != dim {
			panic("vector: bit-vector dimension mismatch")
		}
		for i := 0; i < dim; i++ {
			if v.bits.Test(uint(i)) {
				counts[i]++
			}
		}
	}
	n := len(vectors)
	threshold := float64(n) / 2.0
	r := rand.New(rand.NewSource(seed))
	out := bitset.New(uint(dim))
	for i, c := range counts {
		switch {
		case float64(c) > threshold:
			out.Set(uint(i))
		case float64(c) == threshold:
			if r.Intn(2) == 1 {
				out.Set(uint(i))
			}
		}
	}
	return &BitVector{bits: out, dim: dim}, nil
}

// Package encoder turns text into vectors for the resonance layer.
package encoder

import (
	"context"
	"strings"

	"github.com/towow/negotiation/internal/negotiation/negerr"
	"github.com/towow/negotiation/pkg/vector"
)

// Encoder turns text into Vectors. Implementations must be safe for
// concurrent invocation — one encoder is shared by the engine and the
// intent field.
type Encoder interface {
	// Encode returns the vector for a single text. Fails with EncodingError
	// on empty/whitespace input or a zero-norm result.
	Encode(ctx context.Context, text string) (vector.Vector, error)

	// EncodeBatch applies Encode's preconditions element-wise.
	EncodeBatch(ctx context.Context, texts []string) ([]vector.Vector, error)

	// Bundle takes the mean of vectors and L2-normalizes it. Fails if the
	// average vector has near-zero norm.
	Bundle(ctx context.Context, vectors []vector.Vector) (vector.Vector, error)

	// Dimension returns the fixed output dimension.
	Dimension() int

	// Name identifies the encoder implementation for logging/metrics.
	Name() string
}

func checkNonEmpty(text string) error {
	if strings.TrimSpace(text) == "" {
		return negerr.NewEncodingError("cannot encode empty text", nil)
	}
	return nil
}

func wrapZeroNorm(err error) error {
	if err == vector.ErrZeroNorm {
		return negerr.NewEncodingError("encoding resulted in zero-norm vector", err)
	}
	return err
}

package vector

import "errors"

// ErrZeroNorm is returned whenever an operation would produce or consume a
// vector whose norm is below ZeroNormEpsilon.
var ErrZeroNorm = errors.New("vector: zero-norm result")

// ErrEmptyBundle is returned by Bundle and BundleBinary when called with no
// input vectors.
var ErrEmptyBundle = errors.New("vector: cannot bundle empty vector list")

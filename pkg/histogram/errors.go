package histogram

import "errors"

var (
	ErrInvalidConfig        = errors.New("histogram: invalid configuration")
	ErrOutOfSupport         = errors.New("histogram: target outside supported range")
	ErrNumericalInstability = errors.New("histogram: truncated mass too small")
	ErrShapeMismatch        = errors.New("histogram: shape mismatch")
)

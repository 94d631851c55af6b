package quality

import "errors"

var (
	ErrEmptyVector       = errors.New("quality: empty vector")
	ErrDimensionMismatch = errors.New("quality: vector dimension mismatch")
	ErrEmptyInput        = errors.New("quality: original and summary text are required")
	ErrInvalidThreshold  = errors.New("quality: threshold must be in (0, 1]")
)

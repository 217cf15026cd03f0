package series

import "errors"

var (
	// ErrArgument marks a precondition violation on caller-supplied values.
	ErrArgument = errors.New("invalid argument")

	// ErrInvariant marks a broken container invariant. It signals a bug in
	// the caller or in this package, not bad user input.
	ErrInvariant = errors.New("series invariant violated")

	// ErrCodecMismatch is returned when a stored cell's type tag disagrees
	// with the value type the series expects.
	ErrCodecMismatch = errors.New("cell type mismatch")
)

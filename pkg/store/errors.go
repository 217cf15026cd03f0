package store

import (
	"errors"
	"fmt"

	"github.com/grazelabs/corral/pkg/series"
)

var (
	// ErrReadOnly is returned by every mutating operation when the
	// connection was opened read-only.
	ErrReadOnly = errors.New("connection is read-only")

	// ErrUnknownMetric is returned when a metric name has no registered
	// definition.
	ErrUnknownMetric = errors.New("unknown metric")

	// ErrDeleteForbidden is returned when a metric's definition does not
	// allow deletes.
	ErrDeleteForbidden = errors.New("delete not possible on metric")

	// ErrNotFound marks a missing row.
	ErrNotFound = errors.New("not found")

	// ErrArgument aliases the container package's argument error so callers
	// can match both layers with one sentinel.
	ErrArgument = series.ErrArgument
)

// BackendError wraps a storage failure with the operation that hit it.
// Context cancellation stays visible through errors.Is on the wrapped error.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

func backendErr(op string, err error) error {
	return &BackendError{Op: op, Err: err}
}

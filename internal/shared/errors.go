package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested entity or status record does not exist.
	// Callers branch on it; it is not a failure by itself.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition indicates the target status is not part of the
	// entity kind's vocabulary. Rejected before any write.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrConsistency indicates recomputed child counts do not sum to the total.
	ErrConsistency = errors.New("consistency violation")
)

// PersistenceError wraps a backing-store failure so callers can distinguish
// infrastructure faults from domain rejections.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// NewPersistenceError wraps err with the failing operation name.
func NewPersistenceError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}

// IsPersistence reports whether err is a persistence failure.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

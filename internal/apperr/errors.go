// Package apperr defines application-level sentinel errors and the
// persistence failure wrapper.
package apperr

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced to API consumers.
var (
	// ErrCycle is returned when a move would place a node inside its own
	// subtree.
	ErrCycle = errors.New("move would create a cycle")

	// ErrNotFound marks lookups that callers chose to treat as hard failures.
	// Most store operations treat unknown ids as benign no-ops instead.
	ErrNotFound = errors.New("not found")
)

// PersistenceError wraps a storage-layer failure with the operation that hit
// it. The store propagates these to its caller rather than retrying.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Persistence wraps err as a PersistenceError, or returns nil when err is nil
// so it can wrap call results directly.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}

// IsPersistence reports whether err is (or wraps) a PersistenceError.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrServiceClosed is returned by a model service after Close.
	ErrServiceClosed = errors.New("modelkit: service closed")
	// ErrInvalidRecord marks records that cannot be persisted as supplied.
	ErrInvalidRecord = errors.New("modelkit: invalid record")
	// ErrInvalidQuery marks queries missing the information needed to run.
	ErrInvalidQuery = errors.New("modelkit: invalid query")
)

// ErrNotFound indicates a record identity unknown to the persistence context.
type ErrNotFound struct {
	ID RecordID
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found", e.ID)
}

// PersistenceError wraps a failure reported by the persistence engine. The
// transaction that observed it has already been rolled back.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ProgrammingError reports a violated invariant such as a nested transaction
// or a tracker touched off its owner goroutine. It is raised with panic and is
// not meant to be recovered and continued from.
type ProgrammingError struct {
	Msg string
}

func (e *ProgrammingError) Error() string {
	return "modelkit: programming error: " + e.Msg
}

// Fatalf panics with a ProgrammingError built from the format.
func Fatalf(format string, args ...any) {
	panic(&ProgrammingError{Msg: fmt.Sprintf(format, args...)})
}

package memory

import (
	"errors"
	"fmt"
)

var (
	errNotFound = errors.New("not found")
	errConflict = errors.New("conflict")
)

// Error implements repositories.RepositoryError.
type Error struct {
	op  string
	err error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("memory %s: %v", e.op, e.err)
}

func (e *Error) Unwrap() error { return e.err }

func (e *Error) IsNotFound() bool { return e != nil && errors.Is(e.err, errNotFound) }

func (e *Error) IsConflict() bool { return e != nil && errors.Is(e.err, errConflict) }

func (e *Error) IsUnavailable() bool { return false }

func notFound(op, format string, args ...any) error {
	return &Error{op: op, err: fmt.Errorf("%w: %s", errNotFound, fmt.Sprintf(format, args...))}
}

func conflict(op, format string, args ...any) error {
	return &Error{op: op, err: fmt.Errorf("%w: %s", errConflict, fmt.Sprintf(format, args...))}
}

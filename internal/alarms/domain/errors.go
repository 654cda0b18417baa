package alarms

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an alarm id resolves to no rows.
	ErrNotFound = errors.New("alarm: not found")
	// ErrDefinitionNotFound is returned when the alarm definition is gone.
	ErrDefinitionNotFound = errors.New("alarm: definition not found")
)

// ValidationError reports a malformed or missing request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("alarm: field %q %s", e.Field, e.Reason)
}

// RepositoryError wraps an underlying storage failure. Not retried at this
// layer.
type RepositoryError struct {
	Op  string
	Err error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("alarm repository: %s: %v", e.Op, e.Err)
}

func (e *RepositoryError) Unwrap() error { return e.Err }

// WrapRepository wraps err as a RepositoryError unless it is a domain
// sentinel callers match on.
func WrapRepository(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrDefinitionNotFound) {
		return err
	}
	return &RepositoryError{Op: op, Err: err}
}

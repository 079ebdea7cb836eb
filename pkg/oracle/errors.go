// Package oracle classifies failures of external collaborators (LLM,
// embeddings, vector index, web search, tabular QA).
package oracle

import (
	"errors"
	"fmt"
)

// ErrUnavailable matches every error produced by an external oracle call.
var ErrUnavailable = errors.New("oracle unavailable")

// Error wraps a failed oracle call with the oracle and operation names.
type Error struct {
	Oracle string
	Op     string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Oracle, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports true for ErrUnavailable so callers can classify with errors.Is.
func (e *Error) Is(target error) bool {
	return target == ErrUnavailable
}

// Wrap returns nil for a nil err, otherwise an *Error.
func Wrap(oracleName, op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	return &Error{Oracle: oracleName, Op: op, Err: err}
}

// IsUnavailable reports whether err came from an oracle.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

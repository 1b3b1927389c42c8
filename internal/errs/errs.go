// Package errs defines the failure taxonomy shared by the domain workflows.
// Callers classify failures with errors.Is against the sentinels; the exact
// message is wrapped context, not contract.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed or missing input, rejected before any write.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks a referenced entity id that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks an advisory uniqueness violation.
	ErrConflict = errors.New("conflict")
)

// Validationf wraps ErrValidation with a formatted message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

// NotFoundf wraps ErrNotFound with a formatted message.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrNotFound}, args...)...)
}

// Conflictf wraps ErrConflict with a formatted message.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrConflict}, args...)...)
}

// Step annotates a workflow failure with the step that produced it, so a
// rolled-back multi-statement transaction reports where it stopped.
func Step(step string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", step, err)
}

package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every error returned by the services wraps exactly one of these,
// so callers can branch with errors.Is.
var (
	ErrValidation      = errors.New("validation error")
	ErrNotFound        = errors.New("not found")
	ErrExternalCommand = errors.New("external command failed")
	ErrStorage         = errors.New("storage error")
	// ErrConflict is a validation failure that an operator can override by confirming.
	ErrConflict = fmt.Errorf("%w: conflict", ErrValidation)
)

// Validation returns an error wrapping ErrValidation.
func Validation(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFound returns an error wrapping ErrNotFound for the named resource.
func NotFound(kind, name string) error {
	return fmt.Errorf("%w: %s %q", ErrNotFound, kind, name)
}

// Conflict returns an error wrapping ErrConflict.
func Conflict(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// Storage wraps err as a storage failure. A nil err yields nil.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %v", ErrStorage, op, err)
}

// CommandError describes a failed invocation of the enforcement engine or the
// service manager.
type CommandError struct {
	Args   []string
	Output string
	Err    error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s: %v", strings.Join(e.Args, " "), e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + out
	}
	return msg
}

// Unwrap exposes both the kind and the underlying cause.
func (e *CommandError) Unwrap() []error {
	return []error{ErrExternalCommand, e.Err}
}

package storyboard

import (
	"errors"
	"fmt"
)

// Precondition failures. They are always wrapped in a *ValidationError and
// never cause any I/O.
var (
	ErrEmptyPrompt          = errors.New("prompt is empty")
	ErrFrameCountOutOfRange = errors.New("frame count out of range")
	ErrInvalidPhase         = errors.New("operation not allowed in current phase")
	ErrIndexOutOfRange      = errors.New("frame index out of range")
	ErrFrameBusy            = errors.New("frame is already animating or animated")
	ErrInvalidFrames        = errors.New("frames must be indexed 0..n-1 without gaps")
	ErrClosed               = errors.New("orchestrator is closed")
)

// ErrStaleResult marks a completion whose generation token no longer matches
// the active session. It is discarded internally and never reaches callers.
var ErrStaleResult = errors.New("stale result")

// ValidationError is a synchronous rejection of a user intent
type ValidationError struct {
	Op  string
	err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.err)
}

func (e *ValidationError) Unwrap() error {
	return e.err
}

func invalid(op string, err error) error {
	return &ValidationError{Op: op, err: err}
}

// IsValidationError returns true if err is a rejected precondition
func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

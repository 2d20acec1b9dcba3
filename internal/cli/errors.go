package cli

import (
	"errors"
	"fmt"
)

// ExitError carries a process exit code out of a RunE function, so commands
// can fail without calling os.Exit and tests can assert on the code.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// NewExitError creates an ExitError with the given code
func NewExitError(code int) *ExitError {
	return &ExitError{Code: code}
}

// IsExitError extracts the exit code from err, if it is an ExitError
func IsExitError(err error) (int, bool) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code, true
	}
	return 0, false
}

// Exit codes
const (
	ExitFailed  = 1 // a backend call failed
	ExitInvalid = 2 // the request was rejected before any call was made
)

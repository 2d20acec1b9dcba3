package client

import (
	"errors"
	"fmt"
)

// Error types for classifying story backend failures.

// NetworkError is a transport failure: the request never produced an HTTP response.
type NetworkError struct {
	Op  string
	err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.err)
}

func (e *NetworkError) Unwrap() error {
	return e.err
}

// NewNetworkError wraps err as a transport failure of op
func NewNetworkError(op string, err error) error {
	return &NetworkError{Op: op, err: err}
}

// ServerError is a response the backend marked as failed. Body is surfaced verbatim.
type ServerError struct {
	Op     string
	Status int
	Body   string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s: server error (status %d): %s", e.Op, e.Status, e.Body)
}

// IsNetworkError returns true if err is, or wraps, a NetworkError.
func IsNetworkError(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// IsServerError returns true if err is, or wraps, a ServerError.
func IsServerError(err error) bool {
	var srvErr *ServerError
	return errors.As(err, &srvErr)
}

package client

import "errors"

// ErrorKind classifies a failed backend call
type ErrorKind string

const (
	KindNone    ErrorKind = ""
	KindNetwork ErrorKind = "network"
	KindServer  ErrorKind = "server"
	KindUnknown ErrorKind = "unknown"
)

// Classify maps an error returned by a backend call to its kind.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case IsNetworkError(err):
		return KindNetwork
	case IsServerError(err):
		return KindServer
	default:
		return KindUnknown
	}
}

// Result is the tagged outcome of a backend call: either Value is set and Err
// is nil, or Err is set with its Kind.
type Result[T any] struct {
	Value T
	Kind  ErrorKind
	Err   error
}

// Ok wraps a successful value
func Ok[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

// Err wraps a failure
func Err[T any](err error) Result[T] {
	return Result[T]{Kind: Classify(err), Err: err}
}

// Call runs fn and tags its outcome.
func Call[T any](fn func() (T, error)) Result[T] {
	v, err := fn()
	if err != nil {
		return Err[T](err)
	}
	return Ok(v)
}

// IsOk reports whether the call succeeded
func (r Result[T]) IsOk() bool {
	return r.Err == nil
}

// Detail returns the display message of a failure
func (r Result[T]) Detail() string {
	return Detail(r.Err)
}

// Detail returns the display message for err: the verbatim body for server
// errors, the error text otherwise.
func Detail(err error) string {
	if err == nil {
		return ""
	}
	var srvErr *ServerError
	if errors.As(err, &srvErr) && srvErr.Body != "" {
		return srvErr.Body
	}
	return err.Error()
}

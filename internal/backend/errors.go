package backend

import (
	"errors"
	"fmt"
)

// ErrMissingToken is returned when a request is attempted without a credential
var ErrMissingToken = errors.New("missing bearer token")

// NetworkError is a transport-level failure: no HTTP response was received
type NetworkError struct {
	Op        string
	RequestID string
	Err       error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error (request %s): %v", e.Op, e.RequestID, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServerError is a non-success HTTP response
type ServerError struct {
	Op         string
	RequestID  string
	StatusCode int
	Message    string
	// Field names the offending input field when the server reports one
	Field string
}

func (e *ServerError) Error() string {
	msg := fmt.Sprintf("%s: server returned %d (request %s)", e.Op, e.StatusCode, e.RequestID)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Field != "" {
		msg += " (field " + e.Field + ")"
	}
	return msg
}

// Unauthorized reports whether the server rejected the credential
func (e *ServerError) Unauthorized() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}

// ParseError is a success response whose body could not be decoded
type ParseError struct {
	Op        string
	RequestID string
	Err       error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: malformed response (request %s): %v", e.Op, e.RequestID, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsUnauthorized reports whether err carries a 401 or 403 from the backend
func IsUnauthorized(err error) bool {
	var se *ServerError
	return errors.As(err, &se) && se.Unauthorized()
}

package transport

import (
	"errors"
	"fmt"
)

// ErrNotConnected indicates a send was attempted while the session is not
// ready.
var ErrNotConnected = errors.New("transport not connected")

// InitError wraps a failure during session initialization with the stage
// that failed.
type InitError struct {
	Stage string
	Err   error
}

// Error implements the error interface.
func (e *InitError) Error() string {
	return fmt.Sprintf("transport init: %s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *InitError) Unwrap() error {
	return e.Err
}

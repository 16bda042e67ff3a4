package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the harness error taxonomy. Orchestration code
// distinguishes run-fatal errors (launch, handshake) from per-case errors
// (remote, timeout, unknown tool) using errors.Is against these values.
var (
	// ErrInvalidCommand indicates a malformed launch string. Caller-fixable,
	// never retried.
	ErrInvalidCommand = errors.New("invalid command")

	// ErrNotReady indicates an operation was attempted before the session
	// completed its handshake.
	ErrNotReady = errors.New("session not ready")

	// ErrTimeout indicates no reply arrived within the per-call bound.
	ErrTimeout = errors.New("request timed out")

	// ErrSessionClosed indicates an operation was issued after teardown, or
	// that teardown rejected a call that was still in flight.
	ErrSessionClosed = errors.New("session closed")

	// ErrUnknownTool indicates a referenced tool is absent from discovery.
	ErrUnknownTool = errors.New("unknown tool")
)

// LaunchError indicates the target process failed to start. Fatal to the run.
type LaunchError struct {
	Command string
	Err     error
}

// Error implements the error interface
func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch target %q: %v", e.Command, e.Err)
}

// Unwrap exposes the underlying launch failure.
func (e *LaunchError) Unwrap() error { return e.Err }

// ProtocolError indicates a malformed or unexpected message shape from the
// target. Fatal when raised during handshake, per-call otherwise.
type ProtocolError struct {
	Method  string
	Message string
}

// Error implements the error interface
func (e *ProtocolError) Error() string {
	if e.Method != "" {
		return fmt.Sprintf("protocol error in %s: %s", e.Method, e.Message)
	}
	return fmt.Sprintf("protocol error: %s", e.Message)
}

// RemoteError indicates the target explicitly reported an application-level
// error in a JSON-RPC error object.
type RemoteError struct {
	Code    int
	Message string
	Data    interface{}
}

// Error implements the error interface
func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error %d: %s", e.Code, e.Message)
}

// IsRunFatal reports whether an error should abort the whole test run rather
// than be recorded as a failed case.
func IsRunFatal(err error) bool {
	var launchErr *LaunchError
	return errors.As(err, &launchErr)
}

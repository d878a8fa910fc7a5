package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure surfaced by the transmitter or prober matches
// exactly one of these through errors.Is.
var (
	// ErrInput marks bad or missing session parameters. No resources
	// have been acquired when it is returned.
	ErrInput = errors.New("input error")

	// ErrIO marks a failure reading or counting the program file.
	ErrIO = errors.New("io error")

	// ErrConnection marks a serial endpoint that could not be opened.
	ErrConnection = errors.New("connection error")

	// ErrWrite marks a write that was rejected, failed, or was not
	// acknowledged, and out-of-band channel failures during streaming.
	ErrWrite = errors.New("write error")

	// ErrCancelled marks a session stopped by external cancellation.
	ErrCancelled = errors.New("cancelled")
)

// Error is a classified session failure. Message is the text reported to
// observers; Err is the underlying cause, if any.
type Error struct {
	Kind    error
	Message string
	Err     error
}

// NewError builds an Error of the given kind.
func NewError(kind error, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// Errorf builds an Error with a formatted message and no cause.
func Errorf(kind error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message != e.Err.Error() {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is this error's kind.
func (e *Error) Is(target error) bool { return target == e.Kind }

// MessageOf returns the observer-facing message for err.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// KindOf returns the kind of err, or nil when err is not classified.
func KindOf(err error) error {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return nil
}

// Operational errors of the session runtime.
var (
	// ErrInvalidTransition is returned for a session state change the
	// state machine does not allow.
	ErrInvalidTransition = errors.New("invalid session state transition")

	// ErrSessionNotFound is returned when a session ID is unknown.
	ErrSessionNotFound = errors.New("session not found")

	// ErrShutdownTimeout is returned when running sessions do not finish
	// within the shutdown timeout.
	ErrShutdownTimeout = errors.New("shutdown timeout exceeded")
)

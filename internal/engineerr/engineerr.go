// Package engineerr defines the engine's tagged error kinds (spec.md §7).
// Every layer wraps the error it receives from below with its own Error,
// carrying the event.Details needed for precise attribution, the same way
// the teacher's controller wraps apiserver errors and checks them with
// errors.IsNotFound rather than a type switch.
package engineerr

import (
	"errors"
	"fmt"

	"github.com/deployforge/engine/internal/event"
)

// Kind tags an Error so callers can branch on it without a type switch.
type Kind string

const (
	// KindUser: invalid payload, user-code build failure, DNS not
	// resolving, quota exceeded. Surfaced verbatim to the user channel.
	KindUser Kind = "User"
	// KindInfrastructure: cloud API 5xx, terraform apply failure,
	// cluster unreachable. Retried where the operation is idempotent.
	KindInfrastructure Kind = "Infrastructure"
	// KindCancelled: set by the cancel flag. Never retried.
	KindCancelled Kind = "Cancelled"
	// KindInternal: assertion failures, unexpected deserialization,
	// panics rewrapped.
	KindInternal Kind = "Internal"
)

// Error is the engine's wrapped error type.
type Error struct {
	Kind    Kind
	Details event.Details
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a new Error of the given kind, wrapping cause (which may be nil).
func New(kind Kind, details event.Details, message string, cause error) *Error {
	return &Error{Kind: kind, Details: details, Message: message, Cause: cause}
}

// Wrap attaches details/kind to an existing error, preserving it as Cause.
// The new Error always takes kind, even when err is already an *Error.
func Wrap(kind Kind, details event.Details, message string, err error) *Error {
	return New(kind, details, message, err)
}

// Is reports whether err is (or wraps) an *Error of the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsCancelled is shorthand for Is(err, KindCancelled).
func IsCancelled(err error) bool { return Is(err, KindCancelled) }

// KindOf returns the Kind of err, or KindInternal if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if err == nil {
		return ""
	}
	return KindInternal
}

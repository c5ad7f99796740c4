// Package apperr defines the error taxonomy shared across the core: every
// dependency failure is classified into one of a small set of kinds so
// callers can decide whether to retry, degrade, or surface the error as-is.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is a machine-readable error classification. It is never used for
// string matching by callers outside this package; use errors.As/Is with
// *Error and the Is* helpers instead.
type Kind string

const (
	InvalidInput          Kind = "invalid_input"
	DependencyUnavailable Kind = "dependency_unavailable"
	DependencyTimeout     Kind = "dependency_timeout"
	NotFound              Kind = "not_found"
	Corrupt               Kind = "corrupt"
	Internal              Kind = "internal"
)

// Error is the concrete error type carried through the core. Message is
// human-readable; Suggestion, when non-empty, is remediation advice shown to
// callers (e.g. "parse the repository into the graph first").
type Error struct {
	Kind       Kind
	Message    string
	Suggestion string
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with no cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches kind and message to an existing error.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithSuggestion returns a copy of e with Suggestion set.
func (e *Error) WithSuggestion(s string) *Error {
	cp := *e
	cp.Suggestion = s
	return &cp
}

// KindOf extracts the Kind of err, defaulting to Internal when err does not
// wrap an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err (or something it wraps) carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

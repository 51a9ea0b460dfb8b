// Package kerr classifies coordinator errors into the kinds described by
// the kernel's error handling design, rather than letting raw strings or
// ad-hoc sentinel errors leak across the tool boundary.
package kerr

import (
	"errors"
	"fmt"
)

// Kind enumerates the error classes the coordinator ever returns.
type Kind string

const (
	NotFound    Kind = "not_found"
	InvalidInput Kind = "invalid_input"
	Conflict    Kind = "conflict"
	Timeout     Kind = "timeout"
	ProcessExit Kind = "process_exit"
	IoFault     Kind = "io_fault"
)

// Error is a classified error. Cause may be nil.
type Error struct {
	Kind    Kind
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

// Matches reports whether e is non-nil and of kind k. For an arbitrary
// (possibly wrapped) error, use the package-level Is.
func (e *Error) Matches(k Kind) bool { return e != nil && e.Kind == k }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind of err if it is (or wraps) a *Error. For nil
// and unclassified errors it returns ("", false); callers choose their own
// default kind.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if err == nil {
		return "", false
	}
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

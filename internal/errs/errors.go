// Package errs defines the error taxonomy shared by every core component.
//
// Collaborator failures and policy violations are both represented as *Error
// values carrying a Kind. The HTTP layer (out of scope here) maps a Kind to a
// status code; the core never recovers from a Kind locally except where a
// component explicitly documents a bounded retry.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies why an operation failed.
type Kind string

const (
	// NotAuthenticated means the caller's credential is absent or invalid.
	NotAuthenticated Kind = "NOT_AUTHENTICATED"
	// AccessDenied means the caller lacks permission for the operation.
	AccessDenied Kind = "ACCESS_DENIED"
	// ResourceNotFound means the target entity does not exist.
	ResourceNotFound Kind = "RESOURCE_NOT_FOUND"
	// QuotaExceeded means a collaborator's quota was exhausted; retriable.
	QuotaExceeded Kind = "QUOTA_EXCEEDED"
	// ResourceExhausted means a local resource bound (e.g. the fan-out worker
	// pool) was exceeded; retriable.
	ResourceExhausted Kind = "RESOURCE_EXHAUSTED"
	// InvalidArgument means the caller supplied malformed or policy-violating
	// input.
	InvalidArgument Kind = "INVALID_ARGUMENT"
	// InvalidToken means signature, audience, or expiry validation failed.
	InvalidToken Kind = "INVALID_TOKEN"
	// AlreadyExists means a FAIL_IF_BINDING_EXISTS check tripped.
	AlreadyExists Kind = "ALREADY_EXISTS"
	// FeatureNotAvailable means MPA was requested but no notification sink
	// could accept the event.
	FeatureNotAvailable Kind = "FEATURE_NOT_AVAILABLE"
	// ConflictRetryExhausted means the mutator's etag-conflict retry budget
	// ran out.
	ConflictRetryExhausted Kind = "CONFLICT_RETRY_EXHAUSTED"
	// IncompleteOperation means a long-running platform operation did not
	// finish before the caller gave up; the caller may retry.
	IncompleteOperation Kind = "INCOMPLETE_OPERATION"
	// NotSupported means the collaborator variant does not implement the
	// requested operation (e.g. asset-inventory's findProjectsWithEntitlements).
	NotSupported Kind = "NOT_SUPPORTED"
)

// Error is the error type returned by every core operation that can fail in
// a way the caller needs to branch on.
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

func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an *Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf builds an *Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error that carries cause as its unwrap target.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Wrapf builds an *Error with a formatted message and wrapped cause.
func Wrapf(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Is reports whether err is an *Error of the given kind, unwrapping as
// needed.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the Kind of err, or "" if err is not (or does not wrap) an
// *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

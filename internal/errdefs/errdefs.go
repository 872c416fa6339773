// Package errdefs defines the closed set of error kinds the service
// returns. Every error crossing a package boundary above the repository
// layer is an *Error tagged with one Kind and a machine-readable code,
// so callers branch on kind instead of matching message strings.
package errdefs

import (
	"errors"
	"fmt"
)

// Kind categorizes an error for handling and transport mapping.
type Kind string

// Kinds, ordered roughly by who is at fault: the caller, the content,
// the collaborators, or us.
const (
	InvalidArgument    Kind = "invalid_argument"
	Unauthorized       Kind = "unauthorized"
	Forbidden          Kind = "forbidden"
	NotFound           Kind = "not_found"
	FailedPrecondition Kind = "failed_precondition"
	PolicyViolation    Kind = "policy_violation"
	RateLimited        Kind = "rate_limited"
	Unavailable        Kind = "unavailable"
	Internal           Kind = "internal"
)

// Stable machine-readable codes carried alongside the kind.
const (
	CodeInvalidParameter   = "INVALID_PARAMETER"
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeNotFound           = "NOT_FOUND"
	CodeAlreadyExists      = "ALREADY_EXISTS"
	CodeCollectionNotReady = "COLLECTION_NOT_READY"
	CodePolicyViolation    = "POLICY_VIOLATION"
	CodeRateLimited        = "RATE_LIMITED"
	CodeProcessingError    = "PROCESSING_ERROR"
	CodeInternal           = "INTERNAL"
)

// Error is the structured error type for the service.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
	Details map[string]any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches two *Error values by kind, so errors.Is(err, &Error{Kind: k})
// style checks work without comparing messages.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// WithDetail attaches structured context and returns the same error.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// E builds a new tagged error.
func E(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap builds a tagged error around an underlying cause.
func Wrap(err error, kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

// KindOf returns the kind of err, or Internal when err carries no tag.
// A nil err has no kind and returns "".
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// CodeOf returns the machine code of err, or CodeInternal for untagged
// errors and "" for nil.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// DetailsOf returns the structured details of err, or nil.
func DetailsOf(err error) map[string]any {
	var e *Error
	if errors.As(err, &e) {
		return e.Details
	}
	return nil
}

func isKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsInvalidArgument reports whether err is a caller input error.
func IsInvalidArgument(err error) bool { return isKind(err, InvalidArgument) }

// IsUnauthorized reports whether err is an authentication failure.
func IsUnauthorized(err error) bool { return isKind(err, Unauthorized) }

// IsForbidden reports whether err is an ownership/permission failure.
func IsForbidden(err error) bool { return isKind(err, Forbidden) }

// IsNotFound reports whether err is a missing-entity failure.
func IsNotFound(err error) bool { return isKind(err, NotFound) }

// IsFailedPrecondition reports whether err is a state precondition failure.
func IsFailedPrecondition(err error) bool { return isKind(err, FailedPrecondition) }

// IsPolicyViolation reports whether err is a content policy violation.
func IsPolicyViolation(err error) bool { return isKind(err, PolicyViolation) }

// IsRateLimited reports whether err is a rate limit rejection.
func IsRateLimited(err error) bool { return isKind(err, RateLimited) }

// IsUnavailable reports whether err is a collaborator failure.
func IsUnavailable(err error) bool { return isKind(err, Unavailable) }

// IsInternal reports whether err is an unexpected internal failure.
func IsInternal(err error) bool { return isKind(err, Internal) }

// Package shared contains common error types and utilities.
package shared

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Common domain errors that can be used across the application
var (
	// ErrNotFound indicates that a requested user or subscription was not found
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates that input validation failed
	ErrValidation = errors.New("validation failed")

	// ErrTransport indicates that delivery to a push endpoint failed
	ErrTransport = errors.New("transport failure")

	// ErrUpstream indicates that a third-party collaborator returned an error
	ErrUpstream = errors.New("upstream failure")

	// ErrInternal indicates an internal server error
	ErrInternal = errors.New("internal error")

	// ErrTimeout indicates that an operation timed out
	ErrTimeout = errors.New("operation timed out")
)

// Kind represents a category of error for easier classification and handling.
type Kind int

const (
	// KindUnknown represents an unclassified error
	KindUnknown Kind = iota
	// KindNotFound represents resource not found errors
	KindNotFound
	// KindValidation represents input validation errors
	KindValidation
	// KindTransport represents push delivery failures
	KindTransport
	// KindUpstream represents third-party collaborator failures
	KindUpstream
	// KindInternal represents internal server errors
	KindInternal
	// KindTimeout represents timeout errors
	KindTimeout
	// KindCanceled represents context cancellation
	KindCanceled
)

// String returns the string representation of the Kind.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindValidation:
		return "Validation"
	case KindTransport:
		return "Transport"
	case KindUpstream:
		return "Upstream"
	case KindInternal:
		return "Internal"
	case KindTimeout:
		return "Timeout"
	case KindCanceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

// kindToSentinel maps error kinds to their corresponding sentinel errors.
var kindToSentinel = map[Kind]error{
	KindNotFound:   ErrNotFound,
	KindValidation: ErrValidation,
	KindTransport:  ErrTransport,
	KindUpstream:   ErrUpstream,
	KindInternal:   ErrInternal,
	KindTimeout:    ErrTimeout,
}

// kindPriorities defines the deterministic order for error classification.
// Higher priority (lower index) kinds are checked first in KindOf.
var kindPriorities = []struct {
	kind Kind
	err  error
}{
	{KindCanceled, nil},       // context.Canceled (special case)
	{KindTimeout, ErrTimeout}, // timeout errors have high priority
	{KindNotFound, ErrNotFound},
	{KindValidation, ErrValidation},
	{KindTransport, ErrTransport},
	{KindUpstream, ErrUpstream},
	{KindInternal, ErrInternal},
}

// KindOf returns the Kind of the given error by checking against known
// sentinel errors. It traverses the error chain using a deterministic
// priority order; for errors created with errors.Join, the first matching
// kind in priority order wins. Returns KindUnknown for unrecognized errors.
//
// Example:
//
//	switch shared.KindOf(err) {
//	case shared.KindNotFound:
//	    return http.StatusNotFound
//	case shared.KindValidation:
//	    return http.StatusBadRequest
//	default:
//	    return http.StatusInternalServerError
//	}
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	for _, priority := range kindPriorities {
		switch priority.kind {
		case KindCanceled:
			if IsCanceled(err) {
				return KindCanceled
			}
		case KindTimeout:
			if IsTimeout(err) {
				return KindTimeout
			}
		default:
			if priority.err != nil && errors.Is(err, priority.err) {
				return priority.kind
			}
		}
	}

	return KindUnknown
}

// HasKind reports whether the given error has the specified kind.
func HasKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// SentinelOf returns the sentinel error for the given Kind.
// For KindUnknown and KindCanceled, it returns nil.
func SentinelOf(kind Kind) error {
	if sentinel, exists := kindToSentinel[kind]; exists {
		return sentinel
	}
	return nil
}

// MarkKind wraps an error with the appropriate sentinel error for the given
// kind, preserving the original error through error wrapping. Both
// KindOf(MarkKind(err, kind)) == kind and errors.Is(MarkKind(err, kind), err)
// hold afterwards. Idempotent: marking an error with a kind it already has
// returns the error unchanged.
//
// Example usage for adapting third-party errors:
//
//	resp, err := webpush.SendNotification(payload, sub, opts)
//	if err != nil {
//	    return shared.MarkKind(err, shared.KindTransport)
//	}
func MarkKind(err error, kind Kind) error {
	if err == nil {
		return SentinelOf(kind)
	}

	switch kind {
	case KindUnknown, KindCanceled:
		return err
	}

	sentinel := SentinelOf(kind)
	if sentinel == nil {
		return err
	}

	if KindOf(err) == kind {
		return err
	}

	return fmt.Errorf("%w: %w", sentinel, err)
}

// Wrap wraps an error with additional context.
// It returns a new error that formats as "context: err".
// If err is nil, Wrap returns nil.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	if context == "" {
		return err
	}
	return fmt.Errorf("%s: %w", context, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	context := fmt.Sprintf(format, args...)
	if context == "" {
		return err
	}
	return fmt.Errorf("%s: %w", context, err)
}

// IsCanceled reports whether the error indicates a canceled context.
func IsCanceled(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled)
}

// IsTimeout reports whether the error indicates a timeout.
// It checks for context.DeadlineExceeded, net.Error timeouts, and ErrTimeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTimeout) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return false
}

// IsNotFound reports whether the error indicates a resource not found condition.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports whether the error indicates input validation failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsTransport reports whether the error indicates a push delivery failure.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}

// IsUpstream reports whether the error indicates a third-party collaborator failure.
func IsUpstream(err error) bool {
	return errors.Is(err, ErrUpstream)
}

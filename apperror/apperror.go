// Package apperror defines the error kinds shared by the enrollment engine
// and their HTTP mapping.
package apperror

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
)

// Kind classifies an error for propagation and HTTP mapping.
type Kind string

const (
	KindNotFound            Kind = "NOT_FOUND"
	KindForbidden           Kind = "FORBIDDEN"
	KindConflict            Kind = "CONFLICT"
	KindInvalidTransition   Kind = "INVALID_TRANSITION"
	KindInvalidRequest      Kind = "INVALID_REQUEST"
	KindUpstreamUnavailable Kind = "UPSTREAM_UNAVAILABLE"
	// KindUnavailable is a retryable storage failure on the core write path.
	KindUnavailable Kind = "UNAVAILABLE"
)

// Sentinels for errors.Is matching.
var (
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrForbidden           = &Error{Kind: KindForbidden}
	ErrConflict            = &Error{Kind: KindConflict}
	ErrInvalidTransition   = &Error{Kind: KindInvalidTransition}
	ErrInvalidRequest      = &Error{Kind: KindInvalidRequest}
	ErrUpstreamUnavailable = &Error{Kind: KindUpstreamUnavailable}
	ErrUnavailable         = &Error{Kind: KindUnavailable}
)

// Error carries a Kind plus a user-facing message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so that any *Error compares equal to the sentinel of
// the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) error  { return newf(KindNotFound, format, args...) }
func Forbidden(format string, args ...any) error { return newf(KindForbidden, format, args...) }
func Conflict(format string, args ...any) error  { return newf(KindConflict, format, args...) }
func InvalidTransition(format string, args ...any) error {
	return newf(KindInvalidTransition, format, args...)
}
func InvalidRequest(format string, args ...any) error {
	return newf(KindInvalidRequest, format, args...)
}

func Unavailable(format string, args ...any) error {
	return newf(KindUnavailable, format, args...)
}

// Upstream wraps a failed collaborator call.
func Upstream(err error, format string, args ...any) error {
	return &Error{Kind: KindUpstreamUnavailable, Message: fmt.Sprintf(format, args...), Err: err}
}

// StorageMessage is what clients see for a failed database operation.
const StorageMessage = "Service temporarily unavailable, please retry!"

// Storage wraps a database failure as retryable. op stays in the cause for
// logs. Errors that already carry a Kind are returned unchanged.
func Storage(err error, op string) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: KindUnavailable, Message: StorageMessage, Err: errors.Wrap(err, op)}
}

// KindOf returns the Kind of err, or "" when err carries none.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// HTTPStatus maps an error to the response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return fiber.StatusNotFound
	case KindForbidden:
		return fiber.StatusForbidden
	case KindConflict, KindInvalidTransition:
		return fiber.StatusConflict
	case KindInvalidRequest:
		return fiber.StatusBadRequest
	case KindUpstreamUnavailable:
		return fiber.StatusBadGateway
	case KindUnavailable:
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}

// Message returns the user-facing text of err.
func Message(err error) string {
	var ae *Error
	if errors.As(err, &ae) && ae.Message != "" {
		return ae.Message
	}
	return "Something went wrong, please retry!"
}

// Package apierr defines the gateway error taxonomy. Every synchronous
// failure maps to exactly one Kind, and every Kind maps to one HTTP status.
// Delivery errors are asynchronous-only and never reach an HTTP caller.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a gateway error.
type Kind int

const (
	KindUnknown      Kind = iota
	KindValidation        // bad input, 400, never retried
	KindNotFound          // instrument/order/quote missing, 404
	KindUnauthorized      // missing or expired broker session, 401
	KindBroker            // upstream broker failure, 502
	KindDelivery          // webhook delivery failure, retried by the dispatcher
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindBroker:
		return "broker"
	case KindDelivery:
		return "delivery"
	default:
		return "unknown"
	}
}

// HTTPStatus returns the status code a synchronous endpoint responds with.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindBroker:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified gateway error.
type Error struct {
	Kind Kind
	Msg  string
	Err  error // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// E creates a classified error.
func E(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Ef creates a classified error with a formatted message.
func Ef(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the Kind from an error chain. Unclassified errors
// report KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Detail returns the operator-facing message for an error chain.
func Detail(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return err.Error()
}

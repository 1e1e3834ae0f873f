// Package errs defines the closed error taxonomy shared by every subsystem.
// Kinds are distinct from transport-layer HTTP codes: each kind carries its
// own mapping to a status code, and the dispatcher uses Transient to decide
// whether a delivery failure is worth retrying.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind enumerates the failure classes of the service.
type Kind int

const (
	// KindInternal is a bug or an unclassified external failure.
	KindInternal Kind = iota
	// KindNetwork is an upstream or delivery-endpoint HTTP failure.
	KindNetwork
	// KindPoolTimeout means a database pool checkout timed out.
	KindPoolTimeout
	// KindStore is a database statement failure.
	KindStore
	// KindJwt means a token is invalid or expired.
	KindJwt
	// KindInvalidParameter is bad caller input.
	KindInvalidParameter
	// KindUnauthorized means no such user, or the token is missing.
	KindUnauthorized
)

// String returns the lowercase name of the kind, used in logs and metrics labels.
func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindPoolTimeout:
		return "pool_timeout"
	case KindStore:
		return "store"
	case KindJwt:
		return "jwt"
	case KindInvalidParameter:
		return "invalid_parameter"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "internal"
	}
}

// Error is the concrete error type of the taxonomy. Use the constructors
// below rather than building values directly.
type Error struct {
	kind Kind
	// notFound marks a store error caused by a query returning no rows,
	// which surfaces as 400 rather than 500.
	notFound bool
	// param and value are set for KindInvalidParameter only.
	param string
	value string
	err   error
}

func (e *Error) Error() string {
	switch {
	case e.kind == KindInvalidParameter:
		return fmt.Sprintf("invalid parameter %q: %q", e.param, e.value)
	case e.err != nil:
		return fmt.Sprintf("%s: %v", e.kind, e.err)
	default:
		return e.kind.String()
	}
}

// Unwrap exposes the wrapped cause to errors.Is / errors.As.
func (e *Error) Unwrap() error { return e.err }

// Kind reports the taxonomy kind of e.
func (e *Error) Kind() Kind { return e.kind }

// Param returns the offending parameter name for KindInvalidParameter errors.
func (e *Error) Param() string { return e.param }

// Internal wraps a bug or unclassified failure.
func Internal(err error) error { return &Error{kind: KindInternal, err: err} }

// Network wraps an HTTP failure against the upstream or a delivery endpoint.
func Network(err error) error { return &Error{kind: KindNetwork, err: err} }

// PoolTimeout wraps a database pool checkout timeout.
func PoolTimeout(err error) error { return &Error{kind: KindPoolTimeout, err: err} }

// Store wraps a database statement failure.
func Store(err error) error { return &Error{kind: KindStore, err: err} }

// NotFound wraps a query that returned no rows. It is a store error that
// surfaces as 400 at the HTTP boundary.
func NotFound(err error) error { return &Error{kind: KindStore, notFound: true, err: err} }

// Jwt wraps a token validation failure.
func Jwt(err error) error { return &Error{kind: KindJwt, err: err} }

// InvalidParameter reports bad caller input, naming the parameter and the
// rejected value.
func InvalidParameter(param, value string) error {
	return &Error{kind: KindInvalidParameter, param: param, value: value}
}

// Unauthorized reports a missing user or token.
func Unauthorized() error { return &Error{kind: KindUnauthorized} }

// KindOf extracts the taxonomy kind from any error. Errors outside the
// taxonomy classify as KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindInternal
}

// IsNotFound reports whether err is a no-rows store error.
func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.notFound
}

// Transient reports whether a delivery failure is worth retrying.
// Network failures, pool timeouts, and store errors (the sqlite driver
// surfaces lock contention as plain statement errors) retry; everything
// else is permanent for that delivery.
func Transient(err error) bool {
	switch KindOf(err) {
	case KindNetwork, KindPoolTimeout, KindStore:
		return !IsNotFound(err)
	default:
		return false
	}
}

// HTTPStatus maps an error to the bare status code written at the HTTP
// boundary. Bodies never carry error details.
func HTTPStatus(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.kind {
	case KindNetwork:
		return http.StatusInternalServerError
	case KindPoolTimeout:
		return http.StatusRequestTimeout
	case KindStore:
		if e.notFound {
			return http.StatusBadRequest
		}
		return http.StatusInternalServerError
	case KindJwt, KindUnauthorized:
		return http.StatusUnauthorized
	case KindInvalidParameter:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

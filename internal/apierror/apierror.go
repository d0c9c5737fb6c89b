// Package apierror defines the error type that every layer of the registry
// uses to report failures to clients.
//
// An APIError carries the HTTP status class, a stable message for that class,
// and an optional details string that narrows the failure down for the caller.
// Backend errors are never attached implicitly; callers opt in with
// FromBackend or WithCause so that internal error text does not leak into
// responses by accident.
package apierror

import "fmt"

// APIError is a client-facing error with an HTTP status class.
// The wrapped cause, if any, is kept out of the serialized form.
type APIError struct {
	HTTP    int    `json:"http"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	cause   error
}

func New(http int, message string, details string) *APIError {
	return &APIError{HTTP: http, Message: message, Details: details}
}

// BackendFailure reports an operation that failed inside the registry itself.
func BackendFailure() *APIError {
	return New(500, "The operation failed in the backend.", "")
}

// InvalidRequest reports a request that is malformed or violates validation rules.
func InvalidRequest() *APIError {
	return New(400, "The request could not be understood by the server.", "")
}

// Unauthorized reports a request with missing or unusable credentials.
func Unauthorized() *APIError {
	return New(401, "User is not authenticated.", "")
}

// Forbidden reports a request by an authenticated caller that lacks the
// required capability.
func Forbidden() *APIError {
	return New(403, "This action is forbidden to the user.", "")
}

// NotFound reports a request for a resource that does not exist.
func NotFound() *APIError {
	return New(404, "The requested resource cannot be found.", "")
}

// Conflict reports a request that cannot proceed because of the current state
// of the resource, such as a duplicate name.
func Conflict() *APIError {
	return New(409, "The request could not be processed because of conflict in the current state of the resource.", "")
}

// Specialize returns a copy of err with the given details attached.
// The original error is left untouched so that the class constructors can be
// reused freely.
func Specialize(err *APIError, details string) *APIError {
	c := *err
	c.Details = details
	return &c
}

// FromBackend wraps an internal error into a backend failure, keeping the
// original as the cause. If err already is an *APIError it is returned as is,
// so service code can pass any error through this without flattening an
// already classified failure.
func FromBackend(err error) *APIError {
	if e, ok := err.(*APIError); ok {
		return e
	}
	e := BackendFailure()
	e.cause = err
	return e
}

// WithCause returns a copy of err with cause attached for logs and Unwrap.
func (e *APIError) WithCause(cause error) *APIError {
	c := *e
	c.cause = cause
	return &c
}

func (e *APIError) Error() string {
	msg := e.Message
	if e.Details != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Details)
	}
	if e.cause != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.cause.Error())
	}
	return msg
}

func (e *APIError) Unwrap() error {
	return e.cause
}

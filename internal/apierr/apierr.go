// Package apierr models the client-facing error taxonomy: BadRequest maps to
// 400, NotFound to 404, and Internal to 500, each rendered as the error
// envelope the HTTP layer writes back to callers.
package apierr

import "fmt"

// Error is the common shape every handler-facing error takes. Kind drives
// the HTTP status and response "type"/"code" fields; Param, when set, names
// the offending request field.
type Error struct {
	Kind    Kind
	Message string
	Param   string
}

// Kind enumerates the three client-facing error categories from spec.md §7.
type Kind int

const (
	KindBadRequest Kind = iota
	KindNotFound
	KindInternal
)

func (e *Error) Error() string { return e.Message }

// BadRequest builds a 400 invalid_request_error with no associated param.
func BadRequest(format string, args ...interface{}) *Error {
	return &Error{Kind: KindBadRequest, Message: fmt.Sprintf(format, args...)}
}

// BadRequestParam builds a 400 invalid_request_error naming the bad field.
func BadRequestParam(param, format string, args ...interface{}) *Error {
	return &Error{Kind: KindBadRequest, Message: fmt.Sprintf(format, args...), Param: param}
}

// NotFound builds a 404 resource_missing error.
func NotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Internal builds a 500 api_error.
func Internal(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInternal, Message: fmt.Sprintf(format, args...)}
}

// Status returns the HTTP status code for e.
func (e *Error) Status() int {
	switch e.Kind {
	case KindBadRequest:
		return 400
	case KindNotFound:
		return 404
	default:
		return 500
	}
}

// Type returns the error envelope's "type" field.
func (e *Error) Type() string {
	if e.Kind == KindInternal {
		return "api_error"
	}
	return "invalid_request_error"
}

// Code returns the error envelope's "code" field, or "" if none applies.
func (e *Error) Code() string {
	switch e.Kind {
	case KindBadRequest:
		return "invalid_parameter"
	case KindNotFound:
		return "resource_missing"
	default:
		return ""
	}
}

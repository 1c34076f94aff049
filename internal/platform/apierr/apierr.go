package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Codes shared by more than one layer.
const (
	CodeBackendUnavailable = "backend_unavailable"
	CodeInvalidRequest     = "invalid_request"
	CodeNotComputable      = "not_computable"
	CodeUnknownFeature     = "unknown_feature"
)

// Error is a failure tagged with the HTTP status and code it is reported
// with: {"error":{"message": Err, "code": Code}}.
type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Err != nil:
		return e.Err.Error()
	case e.Code != "":
		return e.Code
	default:
		return fmt.Sprintf("%d %s", e.Status, http.StatusText(e.Status))
	}
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

func BadRequest(code string, err error) *Error {
	return New(http.StatusBadRequest, code, err)
}

func NotFound(code string, err error) *Error {
	return New(http.StatusNotFound, code, err)
}

func Conflict(code string, err error) *Error {
	return New(http.StatusConflict, code, err)
}

// Unprocessable reports a well-formed request whose statistic cannot be
// computed.
func Unprocessable(err error) *Error {
	return New(http.StatusUnprocessableEntity, CodeNotComputable, err)
}

// Unavailable reports a failing record store or cache.
func Unavailable(err error) *Error {
	return New(http.StatusInternalServerError, CodeBackendUnavailable, err)
}

// As extracts an *Error from err. Anything else is a 500 with fallbackCode.
func As(err error, fallbackCode string) *Error {
	var ae *Error
	if errors.As(err, &ae) && ae != nil {
		return ae
	}
	return New(http.StatusInternalServerError, fallbackCode, err)
}

// IsServerError reports whether err would be answered with a 5xx.
func IsServerError(err error) bool {
	return err != nil && As(err, CodeBackendUnavailable).Status >= http.StatusInternalServerError
}

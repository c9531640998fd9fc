package coolfhir

import (
	"fmt"
	"net/http"
)

// ErrorWithCode is a wrapped error struct that can take an error message as well as an HTTP status code
type ErrorWithCode struct {
	Message    string
	StatusCode int
	// Cause is the wrapped error, if any.
	Cause error
}

func (e ErrorWithCode) Error() string {
	return e.Message
}

func (e ErrorWithCode) Unwrap() error {
	return e.Cause
}

// NewErrorWithCode constructs a new ErrorWithCode custom wrapped error
func NewErrorWithCode(message string, statusCode int) error {
	return &ErrorWithCode{
		Message:    message,
		StatusCode: statusCode,
	}
}

// BadRequestError wraps an error with a status code of 400
func BadRequestError(err error) error {
	return &ErrorWithCode{
		Message:    err.Error(),
		StatusCode: http.StatusBadRequest,
		Cause:      err,
	}
}

// BadRequest creates an error with a status code of 400
func BadRequest(msg string, args ...any) error {
	return BadRequestError(fmt.Errorf(msg, args...))
}

package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Type classifies an application error.
type Type string

const (
	TypeValidation Type = "VALIDATION"
	TypeNotFound   Type = "NOT_FOUND"
	TypeConflict   Type = "CONFLICT"
	TypeStorage    Type = "STORAGE"
)

// Error is the error type returned by services and repositories. Handlers map
// it to an HTTP status with HTTPStatus.
type Error struct {
	Type    Type
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Validation(format string, args ...interface{}) *Error {
	return &Error{Type: TypeValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...interface{}) *Error {
	return &Error{Type: TypeNotFound, Message: fmt.Sprintf(format, args...)}
}

func Conflict(message string, err error) *Error {
	return &Error{Type: TypeConflict, Message: message, Err: err}
}

func Storage(message string, err error) *Error {
	return &Error{Type: TypeStorage, Message: message, Err: err}
}

// TypeOf returns the Type of the first *Error in err's chain. Errors that are
// not *Error are reported as TypeStorage.
func TypeOf(err error) Type {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Type
	}
	return TypeStorage
}

func IsNotFound(err error) bool {
	return err != nil && TypeOf(err) == TypeNotFound
}

func IsValidation(err error) bool {
	return err != nil && TypeOf(err) == TypeValidation
}

// HTTPStatus maps err to the status code the API returns for it.
func HTTPStatus(err error) int {
	switch TypeOf(err) {
	case TypeValidation:
		return http.StatusBadRequest
	case TypeNotFound:
		return http.StatusNotFound
	case TypeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the message safe to show to API callers. Storage failures
// never leak driver details.
func PublicMessage(err error) string {
	var ae *Error
	if errors.As(err, &ae) && ae.Type != TypeStorage {
		return ae.Message
	}
	return "internal server error"
}

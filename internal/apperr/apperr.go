// Package apperr defines the structured errors surfaced to API callers.
package apperr

import (
	"errors"
	"fmt"
)

// Code is the machine-readable kind of an AppError.
type Code string

const (
	CodeValidation        Code = "validation"
	CodeMissingCredential Code = "missing_credential"
	CodeNotFound          Code = "not_found"
	CodeProvider          Code = "provider"
	CodePersistence       Code = "persistence"
	CodeConflict          Code = "conflict"
	CodeUnauthorized      Code = "unauthorized"
	CodeInternal          Code = "internal"
)

// AppError carries a public message; Cause is for logs only.
type AppError struct {
	Code    Code
	Message string
	Field   string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func Validation(message string) *AppError {
	return &AppError{Code: CodeValidation, Message: message}
}

func ValidationField(field, message string) *AppError {
	return &AppError{Code: CodeValidation, Message: message, Field: field}
}

func MissingCredential() *AppError {
	return &AppError{Code: CodeMissingCredential, Message: "no provider credential configured for caller"}
}

func NotFound(message string) *AppError {
	return &AppError{Code: CodeNotFound, Message: message}
}

func Conflict(message string) *AppError {
	return &AppError{Code: CodeConflict, Message: message}
}

func Unauthorized(message string) *AppError {
	return &AppError{Code: CodeUnauthorized, Message: message}
}

func Provider(message string, cause error) *AppError {
	return &AppError{Code: CodeProvider, Message: message, Cause: cause}
}

func Persistence(message string, cause error) *AppError {
	return &AppError{Code: CodePersistence, Message: message, Cause: cause}
}

func Internal(message string, cause error) *AppError {
	return &AppError{Code: CodeInternal, Message: message, Cause: cause}
}

// CodeOf returns the code of the first AppError in err's chain, or
// CodeInternal when there is none.
func CodeOf(err error) Code {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}

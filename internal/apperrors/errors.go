// Package apperrors defines coded application errors shared across the
// bridge. Codes, not messages, are the contract: the HTTP layer maps them
// to status codes and decides which messages may leak to callers.
package apperrors

import (
	"errors"
	"fmt"
)

// AppError represents an application-level error with a code and optional cause
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// HasCode reports whether err is (or wraps) an AppError with the given code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	for errors.As(err, &appErr) {
		if appErr.Code == code {
			return true
		}
		err = appErr.Cause
		if err == nil {
			return false
		}
	}
	return false
}

// Error codes
const (
	ErrCodeAuthMissing       = "AUTH_MISSING"
	ErrCodeAuthFailed        = "AUTH_FAILED"
	ErrCodeConnectFailure    = "CONNECT_FAILED"
	ErrCodeSessionNotFound   = "SESSION_NOT_FOUND"
	ErrCodeSessionTerminated = "SESSION_TERMINATED_BY_SERVER"
	ErrCodeProviderFailure   = "PROVIDER_CALL_FAILED"
	ErrCodeToolExecution     = "TOOL_EXECUTION_FAILED"
	ErrCodeInvalidInput      = "INVALID_INPUT"
)

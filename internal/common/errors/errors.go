// Package errors provides the application error taxonomy shared by the
// client, the reconciler and the reference server.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Error codes carried on the wire in the "code" field.
const (
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeValidationError    = "VALIDATION_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

var statusByCode = map[string]int{
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeUnauthorized:       http.StatusUnauthorized,
	ErrCodeForbidden:          http.StatusForbidden,
	ErrCodeInternalError:      http.StatusInternalServerError,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeValidationError:    http.StatusBadRequest,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
}

// AppError is a classified failure. Code drives both the HTTP status the
// server answers with and the handling the client picks.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"http_status"`
	Err        error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Code + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func newError(code, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: statusByCode[code], Err: cause}
}

// NotFound reports a missing resource by id.
func NotFound(resource string, id int64) *AppError {
	return newError(ErrCodeNotFound, fmt.Sprintf("%s with id '%d' not found", resource, id), nil)
}

func NotFoundf(format string, args ...any) *AppError {
	return newError(ErrCodeNotFound, fmt.Sprintf(format, args...), nil)
}

func BadRequest(message string) *AppError {
	return newError(ErrCodeBadRequest, message, nil)
}

func Unauthorized(message string) *AppError {
	return newError(ErrCodeUnauthorized, message, nil)
}

func Forbidden(message string) *AppError {
	return newError(ErrCodeForbidden, message, nil)
}

// InternalError wraps an unexpected failure.
func InternalError(message string, err error) *AppError {
	return newError(ErrCodeInternalError, message, err)
}

func Conflict(message string) *AppError {
	return newError(ErrCodeConflict, message, nil)
}

// ValidationError rejects a single field. The reconciler raises these
// before any local state changes.
func ValidationError(field, message string) *AppError {
	return newError(ErrCodeValidationError, fmt.Sprintf("validation failed for field '%s': %s", field, message), nil)
}

// ServiceUnavailable marks a transport failure towards service.
func ServiceUnavailable(service string, err error) *AppError {
	return newError(ErrCodeServiceUnavailable, fmt.Sprintf("service '%s' is currently unavailable", service), err)
}

// FromHTTPStatus maps a non-2xx backend response onto the taxonomy.
// message is typically the response body or the backend's own error message.
func FromHTTPStatus(status int, message string) *AppError {
	var code string
	switch status {
	case http.StatusUnauthorized:
		code = ErrCodeUnauthorized
	case http.StatusForbidden:
		code = ErrCodeForbidden
	case http.StatusNotFound:
		code = ErrCodeNotFound
	case http.StatusConflict:
		code = ErrCodeConflict
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		code = ErrCodeBadRequest
	case http.StatusServiceUnavailable, http.StatusGatewayTimeout, http.StatusBadGateway:
		code = ErrCodeServiceUnavailable
	default:
		return newError(ErrCodeInternalError, fmt.Sprintf("unexpected status %d: %s", status, message), nil)
	}
	return &AppError{Code: code, Message: message, HTTPStatus: status}
}

// Wrap adds context to err. An AppError keeps its classification and a
// deadline becomes ServiceUnavailable; anything else is internal.
func Wrap(err error, message string) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	switch {
	case errors.As(err, &appErr):
		return &AppError{
			Code:       appErr.Code,
			Message:    message + ": " + appErr.Message,
			HTTPStatus: appErr.HTTPStatus,
			Err:        err,
		}
	case errors.Is(err, context.DeadlineExceeded):
		return newError(ErrCodeServiceUnavailable, message+": request timed out", err)
	default:
		return newError(ErrCodeInternalError, message, err)
	}
}

// Code returns the AppError code carried by err, or "" if there is none.
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

func IsNotFound(err error) bool { return Code(err) == ErrCodeNotFound }

func IsConflict(err error) bool { return Code(err) == ErrCodeConflict }

// IsValidation reports a local validation failure.
func IsValidation(err error) bool { return Code(err) == ErrCodeValidationError }

// IsUnavailable reports transport failures and timeouts.
func IsUnavailable(err error) bool { return Code(err) == ErrCodeServiceUnavailable }

// IsBadRequest also matches validation failures.
func IsBadRequest(err error) bool {
	code := Code(err)
	return code == ErrCodeBadRequest || code == ErrCodeValidationError
}

// IsAuth reports whether err signals an expired, missing or insufficient
// credential. Callers redirect to login on these.
func IsAuth(err error) bool {
	code := Code(err)
	return code == ErrCodeUnauthorized || code == ErrCodeForbidden
}

// GetHTTPStatus returns the status the server answers err with, 500 when
// err is not classified.
func GetHTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.HTTPStatus != 0 {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

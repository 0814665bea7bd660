package utils

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dl-alexandre/gdrv-gateway/internal/types"
)

// Error codes (gateway-owned, stable)
const (
	ErrCodeAuthRequired     = "AUTH_REQUIRED"
	ErrCodeAuthExpired      = "AUTH_EXPIRED"
	ErrCodeFileNotFound     = "FILE_NOT_FOUND"
	ErrCodePermissionDenied = "PERMISSION_DENIED"
	ErrCodeQuotaExceeded    = "QUOTA_EXCEEDED"
	ErrCodeRateLimited      = "RATE_LIMITED"
	ErrCodeNetworkError     = "NETWORK_ERROR"
	ErrCodeTimeout          = "TIMEOUT"
	ErrCodeCancelled        = "CANCELLED"
	ErrCodeInvalidArgument  = "INVALID_ARGUMENT"
	ErrCodeUpstreamError    = "UPSTREAM_ERROR"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeUnknown          = "UNKNOWN"
)

// GatewayErrorBuilder helps construct GatewayError instances
type GatewayErrorBuilder struct {
	err types.GatewayError
}

// NewGatewayError creates a new error builder
func NewGatewayError(code, message string) *GatewayErrorBuilder {
	return &GatewayErrorBuilder{
		err: types.GatewayError{
			Code:    code,
			Message: message,
		},
	}
}

func (b *GatewayErrorBuilder) WithHTTPStatus(status int) *GatewayErrorBuilder {
	b.err.HTTPStatus = status
	return b
}

func (b *GatewayErrorBuilder) WithReason(reason string) *GatewayErrorBuilder {
	b.err.Reason = reason
	return b
}

func (b *GatewayErrorBuilder) WithRetryable(retryable bool) *GatewayErrorBuilder {
	b.err.Retryable = retryable
	return b
}

func (b *GatewayErrorBuilder) WithContext(key string, value interface{}) *GatewayErrorBuilder {
	if b.err.Context == nil {
		b.err.Context = make(map[string]interface{})
	}
	b.err.Context[key] = value
	return b
}

func (b *GatewayErrorBuilder) Build() types.GatewayError {
	return b.err
}

// StatusForCode returns the HTTP status used when an error carries no
// backend-reported status of its own.
func StatusForCode(code string) int {
	mapping := map[string]int{
		ErrCodeAuthRequired:     http.StatusUnauthorized,
		ErrCodeAuthExpired:      http.StatusUnauthorized,
		ErrCodeFileNotFound:     http.StatusNotFound,
		ErrCodePermissionDenied: http.StatusForbidden,
		ErrCodeQuotaExceeded:    http.StatusForbidden,
		ErrCodeRateLimited:      http.StatusTooManyRequests,
		ErrCodeNetworkError:     http.StatusBadGateway,
		ErrCodeTimeout:          http.StatusGatewayTimeout,
		ErrCodeCancelled:        499,
		ErrCodeInvalidArgument:  http.StatusBadRequest,
		ErrCodeUpstreamError:    http.StatusBadGateway,
	}
	if status, ok := mapping[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// AppError is a custom error type that carries gateway error info
type AppError struct {
	Err   types.GatewayError
	Cause error
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Code, e.Err.Message)
}

// Unwrap exposes the underlying cause to errors.Is / errors.As
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Status returns the HTTP status to report for this error. A status
// reported by the backend always wins.
func (e *AppError) Status() int {
	if e.Err.HTTPStatus != 0 {
		return e.Err.HTTPStatus
	}
	return StatusForCode(e.Err.Code)
}

// NewAppError creates an AppError from a GatewayError
func NewAppError(gwErr types.GatewayError) *AppError {
	return &AppError{Err: gwErr}
}

// WrapAppError creates an AppError that keeps the original cause
func WrapAppError(gwErr types.GatewayError, cause error) *AppError {
	return &AppError{Err: gwErr, Cause: cause}
}

// AsAppError extracts an *AppError from err's chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// InternalError wraps any unexpected failure as a generic internal error
func InternalError(err error) *AppError {
	if appErr, ok := AsAppError(err); ok {
		return appErr
	}
	return WrapAppError(NewGatewayError(ErrCodeInternalError, err.Error()).
		WithHTTPStatus(http.StatusInternalServerError).
		Build(), err)
}

// InvalidArgument builds a 400 error for bad caller input
func InvalidArgument(message string) *AppError {
	return NewAppError(NewGatewayError(ErrCodeInvalidArgument, message).
		WithHTTPStatus(http.StatusBadRequest).
		Build())
}

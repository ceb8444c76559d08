package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrAuthentication ErrorType = "authentication_error"
	ErrInvalidRequest ErrorType = "invalid_request"
	ErrRateLimited    ErrorType = "rate_limited"
	ErrConflict       ErrorType = "conflict"
	ErrProcessing     ErrorType = "processing_error"
	ErrNotFound       ErrorType = "not_found"
	ErrUnauthorized   ErrorType = "unauthorized"
	ErrAPI            ErrorType = "api_error"
)

// AppError is the standard error struct for the application. It renders as the
// inner object of the canonical {"error": {...}} envelope.
type AppError struct {
	Type            ErrorType `json:"type"`
	Code            string    `json:"code"`
	Message         string    `json:"message"`
	RequestID       string    `json:"request_id,omitempty"`
	Param           string    `json:"param,omitempty"`
	AcquirerCode    string    `json:"acquirer_code,omitempty"`
	AcquirerMessage string    `json:"acquirer_message,omitempty"`
	HTTPStatus      int       `json:"-"`
	Cause           error     `json:"-"`
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

func New(errType ErrorType, code, msg string, cause error) *AppError {
	return &AppError{
		Type:       errType,
		Code:       code,
		Message:    msg,
		Cause:      cause,
		HTTPStatus: mapTypeToStatus(errType),
	}
}

// NewAuthentication carries a single generic message so callers cannot
// distinguish missing, malformed, revoked, or unknown credentials.
func NewAuthentication() *AppError {
	return New(ErrAuthentication, "invalid_api_key", "invalid or inactive API key", nil)
}

func NewInvalidRequest(msg, param string) *AppError {
	e := New(ErrInvalidRequest, "parameter_invalid", msg, nil)
	e.Param = param
	return e
}

func NewRateLimited(msg string) *AppError {
	return New(ErrRateLimited, "rate_limit_exceeded", msg, nil)
}

func NewConflict(code, msg string) *AppError {
	return New(ErrConflict, code, msg, nil)
}

func NewProcessing(msg, acquirerCode, acquirerMessage string) *AppError {
	e := New(ErrProcessing, "acquirer_declined", msg, nil)
	e.AcquirerCode = acquirerCode
	e.AcquirerMessage = acquirerMessage
	return e
}

func NewNotFound(resource string) *AppError {
	return New(ErrNotFound, "resource_missing", fmt.Sprintf("no such %s", resource), nil)
}

func NewUnauthorized(msg string) *AppError {
	return New(ErrUnauthorized, "permission_denied", msg, nil)
}

// Wrap converts an unexpected error into an opaque api_error. op names the
// failed operation for the logs; the client-facing message stays generic.
func Wrap(err error, op string) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return New(ErrAPI, "internal_error", "an internal error occurred", fmt.Errorf("%s: %w", op, err))
}

func mapTypeToStatus(t ErrorType) int {
	switch t {
	case ErrInvalidRequest:
		return http.StatusBadRequest
	case ErrAuthentication:
		return http.StatusUnauthorized
	case ErrUnauthorized:
		return http.StatusForbidden
	case ErrNotFound:
		return http.StatusNotFound
	case ErrConflict:
		return http.StatusConflict
	case ErrRateLimited:
		return http.StatusTooManyRequests
	case ErrProcessing:
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

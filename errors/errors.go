package errors

import (
	"fmt"
	"net/http"

	"github.com/ShepherdHQ/shepherd-backend/logger"
)

type ErrorType string

const (
	ValidationError           ErrorType = "VALIDATION_ERROR"
	NotFoundError             ErrorType = "NOT_FOUND"
	AuthError                 ErrorType = "AUTHENTICATION_ERROR"
	DatabaseError             ErrorType = "DATABASE_ERROR"
	ServerError               ErrorType = "SERVER_ERROR"
	ForbiddenError            ErrorType = "FORBIDDEN"
	ConversationNotFoundError ErrorType = "CONVERSATION_NOT_FOUND"
	RateLimitError            ErrorType = "RATE_LIMIT_EXCEEDED"
	GatewayError              ErrorType = "PUSH_GATEWAY_UNAVAILABLE"
	PermissionError           ErrorType = "NOTIFICATION_PERMISSION_DENIED"
	ErrorTypeConflict         ErrorType = "CONFLICT"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType `json:"type"`
	Code       string    `json:"code"`
	Message    string    `json:"message"`
	Detail     string    `json:"detail,omitempty"`
	HTTPStatus int       `json:"-"`
	Raw        error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As chains.
func (e *AppError) Unwrap() error {
	return e.Raw
}

// New creates a new AppError
func New(errType ErrorType, message string, detail string) *AppError {
	httpStatus := getHTTPStatus(errType)
	return &AppError{
		Type:       errType,
		Message:    message,
		Detail:     detail,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps a raw error with AppError context
func Wrap(err error, errType ErrorType, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Type:       errType,
		Message:    message,
		Detail:     err.Error(),
		HTTPStatus: getHTTPStatus(errType),
		Raw:        err,
	}
}

// Helper functions for common errors
func NotFound(entity string, id interface{}) *AppError {
	return &AppError{
		Type:       NotFoundError,
		Message:    fmt.Sprintf("%s not found", entity),
		Detail:     fmt.Sprintf("ID: %v", id),
		HTTPStatus: http.StatusNotFound,
	}
}

func ValidationFailed(message string, details string) *AppError {
	return &AppError{
		Type:       ValidationError,
		Message:    message,
		Detail:     details,
		HTTPStatus: http.StatusBadRequest,
	}
}

func AuthenticationFailed(message string) *AppError {
	return &AppError{
		Type:       AuthError,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

func NewDatabaseError(err error) *AppError {
	// Log original error but return sanitized message
	logger.GetLogger().Errorw("Database error", "error", err)
	return &AppError{
		Type:       DatabaseError,
		Message:    "Database operation failed",
		Detail:     "Please try again later",
		HTTPStatus: 500,
		Raw:        err,
	}
}

func InternalServerError(message string) *AppError {
	return &AppError{
		Type:       ServerError,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
	}
}

func Forbidden(message string, details string) *AppError {
	return &AppError{
		Type:       ForbiddenError,
		Message:    message,
		Detail:     details,
		HTTPStatus: http.StatusForbidden,
	}
}

func ConversationNotFound(id string) *AppError {
	return &AppError{
		Type:       ConversationNotFoundError,
		Message:    "Conversation not found",
		Detail:     fmt.Sprintf("Conversation ID: %s", id),
		HTTPStatus: http.StatusNotFound,
	}
}

// RateLimitExceeded signals that a tenant's dispatch budget for the current
// window is spent. Callers drop the batch rather than queueing it.
func RateLimitExceeded(tenantID string) *AppError {
	return &AppError{
		Type:       RateLimitError,
		Message:    "Push dispatch rate limit exceeded",
		Detail:     fmt.Sprintf("Tenant %s exhausted its per-minute budget", tenantID),
		HTTPStatus: http.StatusTooManyRequests,
	}
}

// GatewayUnavailable reports that every chunk of a dispatch failed at the
// transport level, i.e. the push gateway itself could not be reached.
func GatewayUnavailable(err error) *AppError {
	return &AppError{
		Type:       GatewayError,
		Message:    "Push gateway unavailable",
		Detail:     "All delivery attempts failed at transport level",
		HTTPStatus: http.StatusBadGateway,
		Raw:        err,
	}
}

// PermissionDenied marks a platform-level notification permission refusal.
// This outcome is terminal for the registration attempt and is never retried.
func PermissionDenied(platform string) *AppError {
	return &AppError{
		Type:       PermissionError,
		Message:    "Notification permission denied",
		Detail:     fmt.Sprintf("Platform: %s", platform),
		HTTPStatus: http.StatusForbidden,
	}
}

func NewConflictError(message string, detail string) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Message:    message,
		Detail:     detail,
		HTTPStatus: http.StatusConflict,
	}
}

func Unauthorized(code, message string) error {
	return NewError(
		"unauthorized",
		code,
		message,
		http.StatusUnauthorized,
	)
}

func getHTTPStatus(errType ErrorType) int {
	switch errType {
	case ValidationError:
		return http.StatusBadRequest
	case NotFoundError:
		return http.StatusNotFound
	case AuthError:
		return http.StatusUnauthorized
	case DatabaseError:
		return http.StatusInternalServerError
	case ForbiddenError:
		return http.StatusForbidden
	case ConversationNotFoundError:
		return http.StatusNotFound
	case RateLimitError:
		return http.StatusTooManyRequests
	case GatewayError:
		return http.StatusBadGateway
	case PermissionError:
		return http.StatusForbidden
	case ErrorTypeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func NewError(errType ErrorType, code string, message string, status int) error {
	return &AppError{
		Type:       errType,
		Code:       code,
		Message:    message,
		HTTPStatus: status,
	}
}

// IsType reports whether err is an *AppError of the given type.
func IsType(err error, errType ErrorType) bool {
	appErr, ok := err.(*AppError)
	if !ok {
		return false
	}
	return appErr.Type == errType
}

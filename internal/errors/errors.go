package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Validation
	ErrCodeValidation      ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeMissingRequired ErrorCode = "MISSING_REQUIRED"
	ErrCodeInvalidRecord   ErrorCode = "INVALID_RECORD"

	// Resource
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"
	ErrCodeAlreadyExists ErrorCode = "ALREADY_EXISTS"

	// Remote pressure
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrCodeThrottled         ErrorCode = "THROTTLED"
	ErrCodeTransientNetwork  ErrorCode = "TRANSIENT_NETWORK"

	// Steam session
	ErrCodeLoginFailed         ErrorCode = "LOGIN_FAILED"
	ErrCodeCommentLimitReached ErrorCode = "COMMENT_LIMIT_REACHED"

	// Internal
	ErrCodeInternal          ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabase          ErrorCode = "DATABASE_ERROR"
	ErrCodeExternal          ErrorCode = "EXTERNAL_SERVICE_ERROR"
	ErrCodeMalformedResponse ErrorCode = "MALFORMED_RESPONSE"
)

// AppError is a structured error carrying a kind tag set once at the
// boundary where a raw failure is translated.
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Common error constructors

func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

func AlreadyExists(resource string) *AppError {
	return New(ErrCodeAlreadyExists, fmt.Sprintf("%s already exists", resource))
}

func ValidationError(message string) *AppError {
	return New(ErrCodeValidation, message)
}

func InvalidInput(field string, reason string) *AppError {
	return New(ErrCodeInvalidInput, fmt.Sprintf("Invalid %s: %s", field, reason))
}

func MissingRequired(field string) *AppError {
	return New(ErrCodeMissingRequired, fmt.Sprintf("%s is required", field))
}

func InvalidRecord(reason string) *AppError {
	return New(ErrCodeInvalidRecord, reason)
}

func RateLimitExceeded(cause error) *AppError {
	return Wrap(ErrCodeRateLimitExceeded, "Rate limit exceeded", cause)
}

func Throttled(message string) *AppError {
	return New(ErrCodeThrottled, message)
}

func TransientNetwork(cause error) *AppError {
	return Wrap(ErrCodeTransientNetwork, "Transient network error", cause)
}

func CommentLimitReached(cause error) *AppError {
	return Wrap(ErrCodeCommentLimitReached, "Comment limit reached", cause)
}

// LoginFailed reports that every login attempt for an account was used up.
func LoginFailed(username string, attempts int) *AppError {
	return New(ErrCodeLoginFailed, fmt.Sprintf("[%s] login failed after %d attempts", username, attempts)).
		WithDetails(map[string]any{"account": username, "attempts": attempts})
}

func MalformedResponse(body string) *AppError {
	return New(ErrCodeMalformedResponse, "Failed to parse JSON response").
		WithDetails(map[string]any{"body": truncate(body, 256)})
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

func Database(cause error) *AppError {
	return Wrap(ErrCodeDatabase, "Database error", cause)
}

func External(service string, cause error) *AppError {
	return Wrap(ErrCodeExternal, fmt.Sprintf("External service error: %s", service), cause)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetCode returns the error code if the error is an AppError, otherwise returns ErrCodeInternal
func GetCode(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether any AppError in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		var appErr *AppError
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.cause
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

package admin

import (
	"fmt"
	"net/http"

	"throttler/internal/models"
)

// ServiceError represents errors from the admin service with HTTP context
type ServiceError struct {
	Code       string
	Message    string
	StatusCode int
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Error constructors for common service errors

func NewInvalidLimitError(err error) *ServiceError {
	message := "invalid rate limit"
	if err != nil {
		message = fmt.Sprintf("invalid rate limit: %v", err)
	}
	return &ServiceError{
		Code:       models.ErrorCodeInvalidLimit,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Err:        err,
	}
}

func NewInvalidRequestError(message string, err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeInvalidRequest,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Err:        err,
	}
}

func NewInternalError(message string, err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeInternalError,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

func NewUnavailableError(message string, err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeServiceUnavailable,
		Message:    message,
		StatusCode: http.StatusServiceUnavailable,
		Err:        err,
	}
}

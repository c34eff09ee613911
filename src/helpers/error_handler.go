package helpers

import (
	"errors"
	"fmt"
	"net/http"

	"tw-tick-api/src/logger"
)

// -----------------------------------------------------------------------------
// Custom Error Types
// -----------------------------------------------------------------------------

type TickAPIError struct {
	Message string
	Cause   error
}

// Error reads "message: cause"; an empty message shows the cause alone.
func (e *TickAPIError) Error() string {
	if e.Message == "" && e.Cause != nil {
		return e.Cause.Error()
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *TickAPIError) Unwrap() error {
	return e.Cause
}

// Distinct error types for errors.As at the boundary
type ValidationError struct{ TickAPIError }
type NotFoundError struct{ TickAPIError }
type DataSourceError struct{ TickAPIError }
type RateLimitError struct{ TickAPIError }
type ConnectionLimitError struct{ TickAPIError }
type ConfigurationError struct{ TickAPIError }

// -----------------------------------------------------------------------------

func NewValidationError(message string, cause error) error {
	return &ValidationError{TickAPIError{Message: message, Cause: cause}}
}

func NewNotFoundError(message string, cause error) error {
	return &NotFoundError{TickAPIError{Message: message, Cause: cause}}
}

func NewDataSourceError(message string, cause error) error {
	return &DataSourceError{TickAPIError{Message: message, Cause: cause}}
}

func NewRateLimitError(message string, cause error) error {
	return &RateLimitError{TickAPIError{Message: message, Cause: cause}}
}

func NewConnectionLimitError(message string, cause error) error {
	return &ConnectionLimitError{TickAPIError{Message: message, Cause: cause}}
}

func NewConfigurationError(message string, cause error) error {
	return &ConfigurationError{TickAPIError{Message: message, Cause: cause}}
}

// -----------------------------------------------------------------------------

// IsDataSourceUnavailable reports whether err means the backend could not answer.
func IsDataSourceUnavailable(err error) bool {
	var dsErr *DataSourceError
	return errors.As(err, &dsErr)
}

// -----------------------------------------------------------------------------
// Error Handler
// -----------------------------------------------------------------------------

type ErrorHandler struct {
	Logger *logger.Logger
}

func NewErrorHandler(log *logger.Logger) *ErrorHandler {
	if log == nil {
		log = logger.NewLogger(nil, "ErrorHandler")
	}
	return &ErrorHandler{Logger: log}
}

// -----------------------------------------------------------------------------

// Translate maps an error to an HTTP status and the message shown to the client.
// Server-side faults are logged here once; client faults are not.
func (e *ErrorHandler) Translate(err error) (int, string) {
	var (
		validationErr *ValidationError
		notFoundErr   *NotFoundError
		rateErr       *RateLimitError
		connErr       *ConnectionLimitError
		dsErr         *DataSourceError
	)

	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, validationErr.Error()
	case errors.As(err, &notFoundErr):
		return http.StatusNotFound, notFoundErr.Error()
	case errors.As(err, &rateErr):
		return http.StatusTooManyRequests, rateErr.Error()
	case errors.As(err, &connErr):
		return http.StatusTooManyRequests, connErr.Error()
	case errors.As(err, &dsErr):
		e.Logger.Error("data source failure: %v", err)
		return http.StatusInternalServerError, dsErr.Message
	}

	e.Logger.Error("unhandled error: %v", err)
	return http.StatusInternalServerError, "internal server error"
}

package errors

import (
	"errors"
	"net/http"
	"strings"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized is returned when a request carries no usable identity.
	ErrUnauthorized = errors.New("unauthorized request")
	// ErrForbidden is returned when the identity lacks the required role.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict is returned when a unique value already exists.
	ErrConflict = errors.New("conflict")
	// ErrBadRequest is returned for malformed input that is not a field error.
	ErrBadRequest = errors.New("bad request")
	// ErrUnavailable is returned when an optional collaborator is not configured.
	ErrUnavailable = errors.New("service unavailable")
)

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ErrorResponse represents a standardized error response.
type ErrorResponse struct {
	Success bool         `json:"success"`
	Error   string       `json:"error"`
	Errors  []FieldError `json:"errors,omitempty"`
}

// ValidationError collects field-level problems with an input document.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// Add records a problem with field.
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// OrNil returns e when it holds at least one field, nil otherwise.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// HTTPError represents an HTTP error with status code.
type HTTPError struct {
	StatusCode int
	Message    string
	Fields     []FieldError
	cause      error
}

func (e *HTTPError) Error() string {
	return e.Message
}

func (e *HTTPError) Unwrap() error {
	return e.cause
}

// NewHTTPError creates a new HTTP error.
func NewHTTPError(statusCode int, message string) *HTTPError {
	return &HTTPError{StatusCode: statusCode, Message: message}
}

// Wrap attaches status and message to an underlying cause.
func Wrap(statusCode int, message string, cause error) *HTTPError {
	return &HTTPError{StatusCode: statusCode, Message: message, cause: cause}
}

// ToErrorResponse converts an HTTPError to ErrorResponse.
func (e *HTTPError) ToErrorResponse() ErrorResponse {
	return ErrorResponse{Success: false, Error: e.Message, Errors: e.Fields}
}

// MapErrorToHTTP maps domain errors to HTTP errors.
func MapErrorToHTTP(err error) *HTTPError {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return &HTTPError{StatusCode: http.StatusBadRequest, Message: "Validation failed", Fields: validationErr.Fields, cause: err}
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return Wrap(http.StatusNotFound, "Resource not found", err)
	case errors.Is(err, ErrUnauthorized):
		return Wrap(http.StatusUnauthorized, "Unauthorized request", err)
	case errors.Is(err, ErrForbidden):
		return Wrap(http.StatusForbidden, "Forbidden", err)
	case errors.Is(err, ErrConflict):
		return Wrap(http.StatusConflict, "Duplicate value", err)
	case errors.Is(err, ErrBadRequest):
		return Wrap(http.StatusBadRequest, err.Error(), err)
	case errors.Is(err, ErrUnavailable):
		return Wrap(http.StatusServiceUnavailable, err.Error(), err)
	default:
		return Wrap(http.StatusInternalServerError, "Internal server error", err)
	}
}

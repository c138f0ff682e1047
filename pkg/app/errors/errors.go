// Package errors contains helper functions and types to work with errors
package errors

import (
	"errors"
	"net/http"
)

// Category defines error category
type Category int

const (
	// CategoryDataError The client sent invalid data in the request,
	// for example a malformed address or window parameter.
	CategoryDataError Category = iota + 1
	// CategoryUnauthorized The client presented no or invalid credentials
	CategoryUnauthorized
	// CategoryForbidden The client is authenticated but lacks permission
	CategoryForbidden
	// CategoryResourceNotFound The requested resource does not exist
	CategoryResourceNotFound
	// CategoryDataConflict The request conflicts with existing data
	CategoryDataConflict
	// CategoryRateLimited The client exceeded its request ceiling
	CategoryRateLimited
	// CategoryGeneralError The service failed in an unexpected way
	CategoryGeneralError
)

// ServiceError is the error type surfaced at the HTTP boundary.
type ServiceError struct {
	Category Category
	Message  string
	Err      error
}

// Error method to comply with error interface
func (err ServiceError) Error() string {
	if err.Err != nil {
		return err.Err.Error()
	}
	return err.Message
}

// Unwrap returns the underlying error
func (err ServiceError) Unwrap() error {
	return err.Err
}

// StatusCode maps the category to an HTTP status code
func (err ServiceError) StatusCode() int {
	switch err.Category {
	case CategoryDataError:
		return http.StatusBadRequest
	case CategoryUnauthorized:
		return http.StatusUnauthorized
	case CategoryForbidden:
		return http.StatusForbidden
	case CategoryResourceNotFound:
		return http.StatusNotFound
	case CategoryDataConflict:
		return http.StatusConflict
	case CategoryRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Is checks that provided error is a ServiceError with desired Category
func Is(err error, cat Category) bool {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) && svcErr.Category == cat {
		return true
	}
	return false
}

// DataError returns a client data error with the given message
func DataError(message string) error {
	return &ServiceError{Category: CategoryDataError, Message: message}
}

// Unauthorized returns an authorization failure error
func Unauthorized(message string) error {
	return &ServiceError{Category: CategoryUnauthorized, Message: message}
}

// Forbidden returns a permission failure error
func Forbidden(message string) error {
	return &ServiceError{Category: CategoryForbidden, Message: message}
}

// NotFound returns a resource-not-found error
func NotFound(message string) error {
	return &ServiceError{Category: CategoryResourceNotFound, Message: message}
}

// RateLimited returns a rate-limit rejection error
func RateLimited(message string) error {
	return &ServiceError{Category: CategoryRateLimited, Message: message}
}

// GeneralError wraps an unexpected failure. The message shown to the user
// is generic; the wrapped error is for logs only.
func GeneralError(err error) error {
	if err == nil {
		err = errors.New("internal server error")
	}
	return &ServiceError{
		Category: CategoryGeneralError,
		Message:  "Internal Server Error",
		Err:      err,
	}
}

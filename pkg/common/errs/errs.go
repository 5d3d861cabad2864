// Package errs holds the error taxonomy shared by the workflow engine and its
// HTTP surface.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound is returned when a party, pair, session or record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write would violate a uniqueness rule.
	ErrConflict = errors.New("conflict")
	// ErrUnavailable wraps failures of the backing record store.
	ErrUnavailable = errors.New("store unavailable")
	// ErrExternal wraps failures of best-effort external services.
	ErrExternal = errors.New("external service failure")
)

type ValidationError struct {
	reason string
}

func (e ValidationError) Error() string {
	return e.reason
}

func Validation(format string, args ...interface{}) error {
	return ValidationError{reason: fmt.Sprintf(format, args...)}
}

func IsValidationError(err error) bool {
	var target ValidationError
	return errors.As(err, &target)
}

// HTTPStatus maps an error onto the response code the API returns for it.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsValidationError(err):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrExternal):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

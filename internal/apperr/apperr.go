package apperr

import (
	"errors"
	"net/http"
)

var (
	// ErrNotFound is returned when an element, participant, filter or session id does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState is returned when an operation is not allowed in the current state.
	// No state is mutated when it is returned.
	ErrInvalidState = errors.New("invalid state")

	// ErrClassificationFailure marks a moderation pass that errored, panicked or timed out.
	// The element is left Pending.
	ErrClassificationFailure = errors.New("classification failure")

	// ErrConflict marks an automatic moderation verdict that lost against a newer write.
	// It is never returned to callers of the public operations.
	ErrConflict = errors.New("concurrent modification conflict")

	ErrForbidden = errors.New("forbidden")

	ErrValidation = errors.New("validation failed")
)

// HTTPStatus maps an error from the taxonomy onto a response code.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

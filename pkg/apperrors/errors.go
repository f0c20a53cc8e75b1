package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrRateLimited     = errors.New("rate limit exceeded")

	// ErrNotParticipant is internal; it never leaves the service layer unconcealed.
	ErrNotParticipant = errors.New("not a participant")

	// ErrAccessDenied is what callers see for both a missing conversation and
	// a conversation they are not part of.
	ErrAccessDenied = errors.New("conversation not accessible")
)

func InvalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

func Forbidden(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}

func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Conceal collapses "does not exist" and "not yours" into ErrAccessDenied.
// Every other error passes through untouched.
func Conceal(err error) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrNotParticipant) {
		return ErrAccessDenied
	}
	return err
}

// IsMembershipFailure reports whether err came from a membership check.
func IsMembershipFailure(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrNotParticipant) || errors.Is(err, ErrAccessDenied)
}

func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, ErrAccessDenied), errors.Is(err, ErrForbidden), errors.Is(err, ErrNotParticipant):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the text safe to put in a response body.
func PublicMessage(err error) string {
	if HTTPStatus(err) == http.StatusInternalServerError {
		return "internal server error"
	}
	if errors.Is(err, ErrAccessDenied) {
		return ErrAccessDenied.Error()
	}
	return err.Error()
}

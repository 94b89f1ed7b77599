package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrValidation     = errors.New("Validation Error")
	ErrConflict       = errors.New("conflict")
	ErrAuthentication = errors.New("authentication failed")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrUnavailable    = errors.New("unavailable")
)

// Flags carried on auth errors. Clients of the original API branch on them.
const (
	FlagAlreadyRegistered = 0
	FlagUnknownEmail      = 1
	FlagWrongPassword     = 2
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Flag    *int   // Optional: numeric discriminator for auth errors
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithFlag attaches a numeric flag and returns the same error for chaining.
func (e *AppError) WithFlag(flag int) *AppError {
	e.Flag = &flag
	return e
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

// NotFoundMessage is NotFound with a caller-supplied message, for lookups
// that are not keyed by an id (e.g. a filtered count).
func NotFoundMessage(message string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: message,
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// AlreadyRegistered is the conflict returned when an email is taken.
func AlreadyRegistered() *AppError {
	return (&AppError{
		Err:     ErrConflict,
		Message: "Your account has already been registered. Kindly login.",
	}).WithFlag(FlagAlreadyRegistered)
}

// AuthenticationFailed is returned by the login and refresh flows.
// HTTP handlers map it to 400, matching the original API contract.
func AuthenticationFailed(message string) *AppError {
	return &AppError{
		Err:     ErrAuthentication,
		Message: message,
	}
}

// Unauthorized is returned when a bearer token is missing or unusable.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// Unavailable signals temporary back-pressure, e.g. a full ingest queue.
func Unavailable(message string) *AppError {
	return &AppError{
		Err:     ErrUnavailable,
		Message: message,
	}
}

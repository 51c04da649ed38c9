package chaterrors

import (
	"errors"
	"net/http"

	"social-realtime/internal/models"
)

var (
	ErrValidationFailed  = errors.New("validation failed")
	ErrForbidden         = errors.New("forbidden")
	ErrPersistenceFailed = errors.New("persistence failed")
	ErrDirectoryFailed   = errors.New("user directory unavailable")
	ErrRateLimited       = errors.New("rate limit exceeded")
)

// OperationError is a failure while handling one client operation.
// Message is shown to the client; Err, when set, is reported as the detail.
type OperationError struct {
	Kind    error
	Message string
	Err     error
}

func (e *OperationError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *OperationError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func New(kind error, message string, err error) *OperationError {
	return &OperationError{Kind: kind, Message: message, Err: err}
}

func Validation(message string) *OperationError {
	return New(ErrValidationFailed, message, nil)
}

// Payload converts err into the body of an error event.
func Payload(err error) models.ErrorPayload {
	var opErr *OperationError
	if errors.As(err, &opErr) {
		payload := models.ErrorPayload{Message: opErr.Message}
		if opErr.Err != nil {
			payload.Details = opErr.Err.Error()
		}
		return payload
	}
	return models.ErrorPayload{Message: "internal error", Details: err.Error()}
}

func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidationFailed):
		return http.StatusBadRequest
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrDirectoryFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

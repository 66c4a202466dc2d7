package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/samcharles93/tgstep/internal/generation"
	"github.com/samcharles93/tgstep/internal/logits"
)

var ErrInvalidRequest = errors.New("invalid_request")

type invalidRequestError struct {
	msg string
}

func (e invalidRequestError) Error() string {
	return e.msg
}

func (e invalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}

func newInvalidRequest(msg string) error {
	return invalidRequestError{msg: msg}
}

// classify maps a generation error to an HTTP status and error type.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, generation.ErrInvalidRequest),
		errors.Is(err, logits.ErrConfigurationConflict),
		errors.Is(err, logits.ErrInvalidParameter):
		return http.StatusUnprocessableEntity, "validation"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "cancelled"
	case errors.Is(err, generation.ErrCollaboratorFailure):
		return http.StatusInternalServerError, "generation"
	default:
		return http.StatusInternalServerError, "server_error"
	}
}

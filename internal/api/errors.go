package api

import (
	"errors"
	"net/http"

	"github.com/samcharles93/dngstage/internal/pipeline"
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

// errorType names the failure class reported in error bodies.
func errorType(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request_error"
	case errors.Is(err, pipeline.ErrNotEligible):
		return "not_eligible"
	case errors.Is(err, pipeline.ErrBackendFault):
		return "backend_fault"
	case errors.Is(err, pipeline.ErrNoBackend):
		return "configuration_error"
	case pipeline.CodeOf(err) == pipeline.DataError:
		return "data_error"
	default:
		return "server_error"
	}
}

// statusOf maps an extraction error to the HTTP status of its response.
func statusOf(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrNotEligible):
		return http.StatusOK
	case pipeline.CodeOf(err) == pipeline.DataError:
		return http.StatusUnprocessableEntity
	case errors.Is(err, pipeline.ErrNoBackend):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

package pipeline

import (
	"errors"
	"fmt"

	"github.com/samcharles93/dngstage/internal/reconcile"
)

var (
	ErrNoBackend        = errors.New("pipeline: no staged backend attached")
	ErrContainerInvalid = errors.New("pipeline: container is not a valid DNG")
	ErrNotLocated       = errors.New("pipeline: no sub-image matches the request")
	ErrBackendFault     = errors.New("pipeline: backend fault")
	ErrNotEligible      = errors.New("pipeline: file is not eligible for staged decoding")
)

// Code is the result code reported to callers.
type Code int

const (
	Success Code = iota
	DataError
	UnspecifiedError
)

func (c Code) String() string {
	switch c {
	case Success:
		return "success"
	case DataError:
		return "data_error"
	default:
		return "unspecified_error"
	}
}

// CodeOf maps an error returned by the pipeline to its result code.
func CodeOf(err error) Code {
	switch {
	case err == nil:
		return Success
	case errors.Is(err, ErrContainerInvalid),
		errors.Is(err, ErrNotLocated),
		errors.Is(err, reconcile.ErrGeometryMismatch):
		return DataError
	default:
		return UnspecifiedError
	}
}

// faultError is a backend failure caught at the pipeline boundary. It
// matches both ErrBackendFault and the underlying cause.
type faultError struct {
	step string
	err  error
}

func (e *faultError) Error() string {
	return fmt.Sprintf("pipeline: backend fault in %s: %v", e.step, e.err)
}

func (e *faultError) Unwrap() []error {
	return []error{ErrBackendFault, e.err}
}

func fault(step string, err error) error {
	return &faultError{step: step, err: err}
}

// StepOf returns the failing step of a backend fault, or "".
func StepOf(err error) string {
	var fe *faultError
	if errors.As(err, &fe) {
		return fe.step
	}
	return ""
}

// guard runs fn and converts a panic into a backend fault for step.
func guard(step string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fault(step, fmt.Errorf("panic: %v", r))
		}
	}()
	return fn()
}

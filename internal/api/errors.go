package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/samcharles93/qview/internal/quantized"
	"github.com/samcharles93/qview/internal/tensor"
	"github.com/samcharles93/qview/pkg/dtype"
)

var (
	ErrInvalidRequest = errors.New("invalid_request")
	ErrNotFound       = errors.New("not_found")
)

type invalidRequestError struct {
	msg   string
	param string
}

func (e invalidRequestError) Error() string {
	return e.msg
}

func (e invalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}

func newInvalidRequest(param, msg string) error {
	return invalidRequestError{msg: msg, param: param}
}

// classify maps an operation error to an HTTP status and error type.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, dtype.ErrUnsupportedType):
		return http.StatusBadRequest, "unsupported_dtype_error"
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "not_found_error"
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, quantized.ErrInvalidScale),
		errors.Is(err, quantized.ErrZeroPointOutOfRange),
		errors.Is(err, quantized.ErrNotFloating),
		errors.Is(err, tensor.ErrNotQuantized),
		errors.Is(err, tensor.ErrNegativeDim),
		errors.Is(err, tensor.ErrTooLarge),
		errors.Is(err, tensor.ErrRawSizeMismatch),
		errors.Is(err, tensor.ErrShapeMismatch):
		return http.StatusBadRequest, "invalid_request_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "timeout_error"
	default:
		return http.StatusInternalServerError, "server_error"
	}
}

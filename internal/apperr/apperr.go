// Package apperr defines the error taxonomy shared by services and
// handlers, and the mapping from errors to HTTP status codes.
package apperr

import (
	"context"
	"errors"
	"net/http"
)

var (
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("not found")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrInvalidState     = errors.New("invalid state")
	ErrGatewayAuth      = errors.New("gateway authentication failed")
	ErrGatewayRequest   = errors.New("gateway request failed")
)

func Kind(err error) string {
	switch {
	case err == nil:
		return ""

	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"

	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"

	case errors.Is(err, ErrNotFound):
		return "not_found"

	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"

	case errors.Is(err, ErrInvalidState):
		return "invalid_state"

	case errors.Is(err, ErrGatewayAuth), errors.Is(err, ErrGatewayRequest):
		return "gateway_error"

	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"

	case errors.Is(err, context.Canceled):
		return "canceled"

	default:
		return "internal"
	}
}

func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK

	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized

	case errors.Is(err, ErrPermissionDenied):
		return http.StatusForbidden

	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrInvalidState):
		return http.StatusBadRequest

	case errors.Is(err, ErrGatewayAuth), errors.Is(err, ErrGatewayRequest):
		return http.StatusBadGateway

	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout

	default:
		return http.StatusInternalServerError
	}
}

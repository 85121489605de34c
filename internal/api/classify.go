package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/tidemq/broker-core/internal/auth"
	"github.com/tidemq/broker-core/internal/authz"
	"github.com/tidemq/broker-core/internal/policy"
)

// Class is the externally visible failure classification.
type Class string

const (
	ClassSuccess      Class = "success"
	ClassUnauthorized Class = "unauthorized"
	ClassForbidden    Class = "forbidden"
	ClassNotFound     Class = "not_found"
	ClassConflict     Class = "conflict"
	ClassBadRequest   Class = "bad_request"
	ClassCancelled    Class = "cancelled"
	ClassInternal     Class = "internal_error"
)

// errBadBody tags a request-body decode failure so it classifies as a bad
// request rather than an internal error.
func errBadBody(err error) error {
	return fmt.Errorf("%w: malformed request body: %v", policy.ErrInvalidRecord, err)
}

// Classify maps an outcome to its class and HTTP status. Only failures from
// the authentication/authorization taxonomy become 401/403. Anything else,
// including a backend outage surfacing inside an authorization check, is an
// internal error and must never be coerced into unauthorized or forbidden.
func Classify(err error) (Class, int) {
	switch {
	case err == nil:
		return ClassSuccess, http.StatusOK
	case auth.IsAuthenticationError(err):
		return ClassUnauthorized, http.StatusUnauthorized
	case errors.Is(err, authz.ErrDenied):
		return ClassForbidden, http.StatusForbidden
	case errors.Is(err, policy.ErrNotFound):
		return ClassNotFound, http.StatusNotFound
	case errors.Is(err, policy.ErrAlreadyExists):
		return ClassConflict, http.StatusConflict
	case errors.Is(err, policy.ErrInvalidRecord):
		return ClassBadRequest, http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// The caller abandoned the request. Backend trust is intact, so this
		// must not land in the internal class and trigger invalidation.
		return ClassCancelled, http.StatusRequestTimeout
	default:
		return ClassInternal, http.StatusInternalServerError
	}
}

// message returns the stable, generic body for a class. Internal detail
// stays in the logs.
func (c Class) message() string {
	switch c {
	case ClassUnauthorized:
		return "Authentication required"
	case ClassForbidden:
		return "Don't have permission to access this resource"
	case ClassNotFound:
		return "Resource not found"
	case ClassConflict:
		return "Resource already exists"
	case ClassBadRequest:
		return "Invalid request"
	case ClassCancelled:
		return "Request cancelled"
	case ClassInternal:
		return "Internal server error"
	default:
		return ""
	}
}

// Package errors provides coded application errors shared by every layer.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Caller errors
	CodeInvalidInput    Code = "INVALID_INPUT"
	CodeInvalidRole     Code = "INVALID_ROLE"
	CodeUnauthenticated Code = "UNAUTHENTICATED"
	CodeForbidden       Code = "FORBIDDEN"

	// Tenancy errors
	CodeDuplicateUser     Code = "DUPLICATE_USER"
	CodeInvitationExists  Code = "INVITATION_EXISTS"
	CodeIdentityInUse     Code = "IDENTITY_IN_USE"
	CodePropagationFailed Code = "ROLE_PROPAGATION_FAILED"
	CodeAttributionFailed Code = "ACTIVITY_ATTRIBUTION_FAILED"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)

// HTTPStatus maps a code to the HTTP status used by the API surface.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeInvalidInput, CodeInvalidRole:
		return http.StatusBadRequest
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeDuplicateUser, CodeInvitationExists, CodeIdentityInUse:
		return http.StatusConflict
	// The directory is upstream; the tenant write already happened.
	case CodePropagationFailed:
		return http.StatusBadGateway
	case CodeAttributionFailed:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

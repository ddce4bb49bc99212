package domain

import (
	"errors"

	apperrors "github.com/louisbranch/agencyhub/internal/platform/errors"
)

// Sentinels compare by code, so errors.Is matches any coded error carrying
// the same code, including ones with metadata.
var (
	// ErrInput indicates the caller omitted required input.
	ErrInput = apperrors.New(apperrors.CodeInvalidInput, "invalid input")
	// ErrInvalidRole indicates a role that does not exist or cannot be granted.
	ErrInvalidRole = apperrors.New(apperrors.CodeInvalidRole, "invalid role")
	// ErrUnauthenticated indicates no identity is attached to the request.
	ErrUnauthenticated = apperrors.New(apperrors.CodeUnauthenticated, "identity required")
	// ErrForbidden indicates the identity lacks authority over the agency.
	ErrForbidden = apperrors.New(apperrors.CodeForbidden, "forbidden")
	// ErrNotFound indicates a referenced tenant record is missing.
	ErrNotFound = apperrors.New(apperrors.CodeNotFound, "not found")
	// ErrDuplicateUser indicates a team member already exists for the email.
	ErrDuplicateUser = apperrors.New(apperrors.CodeDuplicateUser, "user already exists")
	// ErrInvitationExists indicates the email already has a pending invitation.
	ErrInvitationExists = apperrors.New(apperrors.CodeInvitationExists, "invitation already pending")
	// ErrIdentityInUse indicates the signed-in identity already backs a team
	// member stored under a different email.
	ErrIdentityInUse = apperrors.New(apperrors.CodeIdentityInUse, "identity already in use")
	// ErrPropagation indicates the directory role update failed after the
	// tenant write succeeded.
	ErrPropagation = apperrors.New(apperrors.CodePropagationFailed, "role propagation failed")
	// ErrAttribution indicates no team member could be credited with an activity.
	ErrAttribution = apperrors.New(apperrors.CodeAttributionFailed, "no attributable user")

	// ErrStoreNotConfigured indicates the service is missing persistence wiring.
	ErrStoreNotConfigured = errors.New("tenant store is not configured")
	// ErrDirectoryNotConfigured indicates the service is missing directory wiring.
	ErrDirectoryNotConfigured = errors.New("identity directory is not configured")
	// ErrIDGeneratorExhausted indicates a fixed test ID sequence was exhausted.
	ErrIDGeneratorExhausted = errors.New("id generator exhausted")
)

func inputError(message, field string) error {
	return apperrors.WithMetadata(apperrors.CodeInvalidInput, message, map[string]string{"field": field})
}

func duplicateUserError(email string, cause error) error {
	return apperrors.WrapWithMetadata(apperrors.CodeDuplicateUser, "user already exists", map[string]string{"email": email}, cause)
}

func identityInUseError(externalID string, cause error) error {
	return apperrors.WrapWithMetadata(apperrors.CodeIdentityInUse, "identity already in use", map[string]string{"external_id": externalID}, cause)
}

func propagationError(userID, agencyID, role string, cause error) error {
	return apperrors.WrapWithMetadata(apperrors.CodePropagationFailed, "role propagation failed", map[string]string{
		"user_id":   userID,
		"agency_id": agencyID,
		"role":      role,
	}, cause)
}

func notFoundError(message string, cause error) error {
	return apperrors.Wrap(apperrors.CodeNotFound, message, cause)
}

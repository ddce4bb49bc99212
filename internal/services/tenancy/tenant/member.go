package tenant

import (
	"errors"
	"time"
)

// ErrOwnerInvitation is returned when an invitation would grant ownership.
var ErrOwnerInvitation = errors.New("agency ownership cannot be granted by invitation")

// Member is the subset of an authenticated identity needed to materialize a user.
type Member struct {
	ExternalID string
	GivenName  string
	FamilyName string
}

// NewUserFromInvitation builds the team member that accepting inv creates for m.
// Role and agency come from the invitation; the name is taken from the identity.
func NewUserFromInvitation(inv Invitation, m Member, now time.Time) (User, error) {
	if !inv.Role.Invitable() {
		return User{}, ErrOwnerInvitation
	}
	createdAt := now.UTC()
	return User{
		ID:        m.ExternalID,
		Email:     NormalizeEmail(inv.Email),
		Name:      DisplayName(m.GivenName, m.FamilyName),
		Role:      inv.Role,
		AgencyID:  inv.AgencyID,
		AvatarURL: inv.AvatarURL,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}, nil
}

// NewAgencyOwner builds the owner created together with agency. Ownership is
// never granted any other way.
func NewAgencyOwner(agency Agency, email string, m Member, avatarURL string, now time.Time) User {
	createdAt := now.UTC()
	return User{
		ID:        m.ExternalID,
		Email:     NormalizeEmail(email),
		Name:      DisplayName(m.GivenName, m.FamilyName),
		Role:      RoleAgencyOwner,
		AgencyID:  agency.ID,
		AvatarURL: avatarURL,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

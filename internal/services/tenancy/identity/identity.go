// Package identity describes the external identity directory: who the caller
// is and the role metadata mirrored onto their directory account.
package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/louisbranch/agencyhub/internal/services/tenancy/tenant"
)

// ErrInvalidToken is returned when a bearer token cannot be verified.
var ErrInvalidToken = errors.New("invalid identity token")

// Identity is an authenticated directory account.
type Identity struct {
	ExternalID string
	Email      string
	GivenName  string
	FamilyName string
	AvatarURL  string
}

// Member returns the fields needed to materialize a team member.
func (i Identity) Member() tenant.Member {
	return tenant.Member{
		ExternalID: i.ExternalID,
		GivenName:  i.GivenName,
		FamilyName: i.FamilyName,
	}
}

// Authenticator verifies bearer tokens issued by the directory.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (Identity, error)
}

// RoleWriter mirrors a tenant role onto a directory account. Writing the same
// role twice must succeed.
type RoleWriter interface {
	SetRole(ctx context.Context, externalID string, role tenant.Role) error
}

// Directory is the full identity directory surface.
type Directory interface {
	Authenticator
	RoleWriter
}

type contextKey struct{}

// WithIdentity stores the authenticated identity in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the authenticated identity, if any.
func FromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(contextKey{}).(Identity)
	if !ok || strings.TrimSpace(id.ExternalID) == "" {
		return Identity{}, false
	}
	return id, true
}

// SplitDisplayName splits a single display name into given and family parts
// at the first space. A one-word name has an empty family part.
func SplitDisplayName(displayName string) (string, string) {
	displayName = strings.TrimSpace(displayName)
	given, family, _ := strings.Cut(displayName, " ")
	return given, strings.TrimSpace(family)
}

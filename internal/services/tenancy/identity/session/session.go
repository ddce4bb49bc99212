// Package session is a self-hosted identity directory. Identities travel in
// HS256 session tokens and role metadata lives in the tenant database.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/louisbranch/agencyhub/internal/services/tenancy/identity"
	"github.com/louisbranch/agencyhub/internal/services/tenancy/storage"
	"github.com/louisbranch/agencyhub/internal/services/tenancy/tenant"
)

const (
	defaultIssuer = "agencyhub"
	defaultTTL    = 24 * time.Hour
	minSecretLen  = 32
)

// Config configures token signing and verification.
type Config struct {
	Secret string
	Issuer string
	TTL    time.Duration
	Now    func() time.Time
}

type sessionClaims struct {
	jwt.RegisteredClaims
	Email      string `json:"email"`
	GivenName  string `json:"given_name,omitempty"`
	FamilyName string `json:"family_name,omitempty"`
	Picture    string `json:"picture,omitempty"`
	Role       string `json:"role,omitempty"`
}

// Directory issues and verifies session tokens and stores role metadata.
type Directory struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
	roles  storage.IdentityRoleStore
}

var _ identity.Directory = (*Directory)(nil)

// New validates cfg and builds a directory backed by roles.
func New(cfg Config, roles storage.IdentityRoleStore) (*Directory, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if len(secret) < minSecretLen {
		return nil, fmt.Errorf("session secret must be at least %d bytes", minSecretLen)
	}
	if roles == nil {
		return nil, errors.New("identity role store is required")
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = defaultIssuer
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Directory{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    now,
		roles:  roles,
	}, nil
}

// Issue signs a session token for id. The current role, if any, is embedded
// so clients can read it without another round trip.
func (d *Directory) Issue(ctx context.Context, id identity.Identity) (string, error) {
	if strings.TrimSpace(id.ExternalID) == "" {
		return "", errors.New("external id is required")
	}
	role, err := d.roles.GetIdentityRole(ctx, id.ExternalID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return "", fmt.Errorf("load identity role: %w", err)
	}
	now := d.now().UTC()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    d.issuer,
			Subject:   id.ExternalID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d.ttl)),
		},
		Email:      tenant.NormalizeEmail(id.Email),
		GivenName:  id.GivenName,
		FamilyName: id.FamilyName,
		Picture:    id.AvatarURL,
		Role:       role.String(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(d.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Authenticate verifies a session token.
func (d *Directory) Authenticate(_ context.Context, token string) (identity.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return identity.Identity{}, identity.ErrInvalidToken
	}
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return d.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(d.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(d.now),
	)
	if err != nil {
		return identity.Identity{}, fmt.Errorf("%w: %v", identity.ErrInvalidToken, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return identity.Identity{}, fmt.Errorf("%w: missing subject", identity.ErrInvalidToken)
	}
	return identity.Identity{
		ExternalID: claims.Subject,
		Email:      tenant.NormalizeEmail(claims.Email),
		GivenName:  claims.GivenName,
		FamilyName: claims.FamilyName,
		AvatarURL:  claims.Picture,
	}, nil
}

// SetRole records role as the identity's metadata.
func (d *Directory) SetRole(ctx context.Context, externalID string, role tenant.Role) error {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return errors.New("external id is required")
	}
	if !role.Valid() {
		return fmt.Errorf("unknown role %q", role)
	}
	if err := d.roles.PutIdentityRole(ctx, externalID, role, d.now()); err != nil {
		return fmt.Errorf("store identity role: %w", err)
	}
	return nil
}

// Role returns the role metadata recorded for externalID.
func (d *Directory) Role(ctx context.Context, externalID string) (tenant.Role, error) {
	return d.roles.GetIdentityRole(ctx, externalID)
}

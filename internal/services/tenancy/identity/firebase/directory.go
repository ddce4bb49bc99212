// Package firebase adapts Firebase Authentication as the identity directory.
package firebase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/louisbranch/agencyhub/internal/platform/timeouts"
	"github.com/louisbranch/agencyhub/internal/services/tenancy/identity"
	"github.com/louisbranch/agencyhub/internal/services/tenancy/tenant"
)

// RoleClaim is the custom claim holding the mirrored tenant role.
const RoleClaim = "role"

// AuthClient is the subset of *auth.Client the directory uses.
type AuthClient interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
	GetUser(ctx context.Context, uid string) (*auth.UserRecord, error)
	SetCustomUserClaims(ctx context.Context, uid string, customClaims map[string]interface{}) error
}

// Config selects the Firebase project and credentials.
type Config struct {
	ProjectID       string
	CredentialsFile string
}

// Directory verifies Firebase ID tokens and stores roles as custom claims.
type Directory struct {
	client AuthClient
}

var _ identity.Directory = (*Directory)(nil)

// New initializes a Firebase app and its auth client. Without a credentials
// file the application default credentials are used.
func New(ctx context.Context, cfg Config) (*Directory, error) {
	var opts []option.ClientOption
	if file := strings.TrimSpace(cfg.CredentialsFile); file != "" {
		opts = append(opts, option.WithCredentialsFile(file))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: strings.TrimSpace(cfg.ProjectID)}, opts...)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase auth: %w", err)
	}
	return NewWithClient(client), nil
}

// NewWithClient wraps an existing auth client.
func NewWithClient(client AuthClient) *Directory {
	return &Directory{client: client}
}

// Authenticate verifies idToken and reads the profile from its claims.
func (d *Directory) Authenticate(ctx context.Context, idToken string) (identity.Identity, error) {
	idToken = strings.TrimSpace(idToken)
	if idToken == "" {
		return identity.Identity{}, identity.ErrInvalidToken
	}
	if d == nil || d.client == nil {
		return identity.Identity{}, errors.New("firebase directory is not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeouts.IdentityCall)
	defer cancel()

	token, err := d.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return identity.Identity{}, fmt.Errorf("%w: %v", identity.ErrInvalidToken, err)
	}
	uid := strings.TrimSpace(token.UID)
	if uid == "" {
		return identity.Identity{}, fmt.Errorf("%w: missing uid", identity.ErrInvalidToken)
	}

	given := stringClaim(token.Claims, "given_name")
	family := stringClaim(token.Claims, "family_name")
	if given == "" && family == "" {
		given, family = identity.SplitDisplayName(stringClaim(token.Claims, "name"))
	}
	return identity.Identity{
		ExternalID: uid,
		Email:      tenant.NormalizeEmail(stringClaim(token.Claims, "email")),
		GivenName:  given,
		FamilyName: family,
		AvatarURL:  stringClaim(token.Claims, "picture"),
	}, nil
}

// SetRole merges the role claim into the account's existing custom claims.
// An unchanged role skips the write.
func (d *Directory) SetRole(ctx context.Context, externalID string, role tenant.Role) error {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return errors.New("external id is required")
	}
	if d == nil || d.client == nil {
		return errors.New("firebase directory is not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeouts.IdentityCall)
	defer cancel()

	record, err := d.client.GetUser(ctx, externalID)
	if err != nil {
		return fmt.Errorf("get firebase user: %w", err)
	}
	claims := make(map[string]interface{}, len(record.CustomClaims)+1)
	for key, value := range record.CustomClaims {
		claims[key] = value
	}
	if current, ok := claims[RoleClaim].(string); ok && current == role.String() {
		return nil
	}
	claims[RoleClaim] = role.String()
	if err := d.client.SetCustomUserClaims(ctx, externalID, claims); err != nil {
		return fmt.Errorf("set firebase custom claims: %w", err)
	}
	return nil
}

func stringClaim(claims map[string]interface{}, key string) string {
	value, ok := claims[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/agencyhub/internal/services/tenancy/storage"
	"github.com/louisbranch/agencyhub/internal/services/tenancy/tenant"
)

// PutIdentityRole records the role metadata mirrored onto a directory identity.
// Writing the same role again only bumps updated_at.
func (s *Store) PutIdentityRole(ctx context.Context, externalID string, role tenant.Role, updatedAt time.Time) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return fmt.Errorf("external id is required")
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO identity_roles (external_id, role, updated_at)
VALUES (?, ?, ?)
ON CONFLICT(external_id) DO UPDATE SET
	role = excluded.role,
	updated_at = excluded.updated_at
`, externalID, string(role), toMillis(updatedAt))
	if err != nil {
		return fmt.Errorf("put identity role: %w", err)
	}
	return nil
}

// GetIdentityRole loads the role metadata of a directory identity.
func (s *Store) GetIdentityRole(ctx context.Context, externalID string) (tenant.Role, error) {
	if err := s.ready(ctx); err != nil {
		return "", err
	}
	var role string
	err := s.sqlDB.QueryRowContext(ctx, `SELECT role FROM identity_roles WHERE external_id = ?`, strings.TrimSpace(externalID)).Scan(&role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", storage.ErrNotFound
		}
		return "", fmt.Errorf("get identity role: %w", err)
	}
	return tenant.Role(role), nil
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/agencyhub/internal/services/tenancy/storage"
	"github.com/louisbranch/agencyhub/internal/services/tenancy/tenant"
)

const userColumns = `u.id, u.email, u.name, u.role, u.agency_id, u.avatar_url, u.created_at, u.updated_at`

// CreateUser inserts a team member. A second insert for the same email or id
// returns storage.ErrConflict.
func (s *Store) CreateUser(ctx context.Context, user tenant.User) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(user.ID) == "" {
		return fmt.Errorf("user id is required")
	}
	if tenant.NormalizeEmail(user.Email) == "" {
		return fmt.Errorf("email is required")
	}
	return insertUser(ctx, s.sqlDB, user)
}

func insertUser(ctx context.Context, execer execContexter, user tenant.User) error {
	_, err := execer.ExecContext(ctx, `
INSERT INTO users (id, email, name, role, agency_id, avatar_url, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`,
		user.ID,
		tenant.NormalizeEmail(user.Email),
		user.Name,
		string(user.Role),
		user.AgencyID,
		user.AvatarURL,
		toMillis(user.CreatedAt),
		toMillis(user.UpdatedAt),
	)
	if err != nil {
		switch {
		case isUniqueConstraintError(err):
			return storage.ErrConflict
		case isForeignKeyConstraintError(err):
			return fmt.Errorf("user agency %q: %w", user.AgencyID, storage.ErrNotFound)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetUser loads a team member by id.
func (s *Store) GetUser(ctx context.Context, userID string) (tenant.User, error) {
	if err := s.ready(ctx); err != nil {
		return tenant.User{}, err
	}
	return s.queryUser(ctx, `SELECT `+userColumns+` FROM users u WHERE u.id = ?`, strings.TrimSpace(userID))
}

// GetUserByEmail loads a team member by email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (tenant.User, error) {
	if err := s.ready(ctx); err != nil {
		return tenant.User{}, err
	}
	return s.queryUser(ctx, `SELECT `+userColumns+` FROM users u WHERE u.email = ?`, tenant.NormalizeEmail(email))
}

// FindAgencyUser returns the earliest member of agencyID.
func (s *Store) FindAgencyUser(ctx context.Context, agencyID string) (tenant.User, error) {
	if err := s.ready(ctx); err != nil {
		return tenant.User{}, err
	}
	return s.queryUser(ctx, `
SELECT `+userColumns+`
FROM users u
WHERE u.agency_id = ?
ORDER BY u.created_at, u.id
LIMIT 1
`, strings.TrimSpace(agencyID))
}

// FindSubAccountAgencyUser returns the earliest member of the agency that owns subAccountID.
func (s *Store) FindSubAccountAgencyUser(ctx context.Context, subAccountID string) (tenant.User, error) {
	if err := s.ready(ctx); err != nil {
		return tenant.User{}, err
	}
	return s.queryUser(ctx, `
SELECT `+userColumns+`
FROM users u
JOIN sub_accounts sa ON sa.agency_id = u.agency_id
WHERE sa.id = ?
ORDER BY u.created_at, u.id
LIMIT 1
`, strings.TrimSpace(subAccountID))
}

func (s *Store) queryUser(ctx context.Context, query string, args ...any) (tenant.User, error) {
	var (
		user      tenant.User
		role      string
		createdAt int64
		updatedAt int64
	)
	err := s.sqlDB.QueryRowContext(ctx, query, args...).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&role,
		&user.AgencyID,
		&user.AvatarURL,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return tenant.User{}, storage.ErrNotFound
		}
		return tenant.User{}, fmt.Errorf("get user: %w", err)
	}
	user.Role = tenant.Role(role)
	user.CreatedAt = fromMillis(createdAt)
	user.UpdatedAt = fromMillis(updatedAt)
	return user, nil
}

// PutPermission upserts a user's access to one sub-account.
func (s *Store) PutPermission(ctx context.Context, permission tenant.Permission) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(permission.ID) == "" {
		return fmt.Errorf("permission id is required")
	}
	access := 0
	if permission.Access {
		access = 1
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO permissions (id, email, sub_account_id, access)
VALUES (?, ?, ?, ?)
ON CONFLICT(email, sub_account_id) DO UPDATE SET access = excluded.access
`,
		permission.ID,
		tenant.NormalizeEmail(permission.Email),
		strings.TrimSpace(permission.SubAccountID),
		access,
	)
	if err != nil {
		if isForeignKeyConstraintError(err) {
			return fmt.Errorf("permission references: %w", storage.ErrNotFound)
		}
		return fmt.Errorf("put permission: %w", err)
	}
	return nil
}

// ListPermissionsByEmail lists a user's sub-account permissions.
func (s *Store) ListPermissionsByEmail(ctx context.Context, email string) ([]tenant.Permission, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, email, sub_account_id, access
FROM permissions
WHERE email = ?
ORDER BY sub_account_id
`, tenant.NormalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	defer rows.Close()

	var permissions []tenant.Permission
	for rows.Next() {
		var (
			permission tenant.Permission
			access     int
		)
		if err := rows.Scan(&permission.ID, &permission.Email, &permission.SubAccountID, &access); err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		permission.Access = access == 1
		permissions = append(permissions, permission)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate permissions: %w", err)
	}
	return permissions, nil
}

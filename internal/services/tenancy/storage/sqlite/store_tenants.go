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

// PutAgency upserts an agency.
func (s *Store) PutAgency(ctx context.Context, agency tenant.Agency) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(agency.ID) == "" {
		return fmt.Errorf("agency id is required")
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO agencies (id, name, company_email, logo_url, goal, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	name = excluded.name,
	company_email = excluded.company_email,
	logo_url = excluded.logo_url,
	goal = excluded.goal,
	updated_at = excluded.updated_at
`, agencyArgs(agency)...)
	if err != nil {
		return fmt.Errorf("put agency: %w", err)
	}
	return nil
}

// CreateAgency inserts agency together with its owner in one transaction.
// ErrConflict when the agency id, the owner's id or the owner's email is
// already taken; nothing is written in that case.
func (s *Store) CreateAgency(ctx context.Context, agency tenant.Agency, owner tenant.User) (err error) {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(agency.ID) == "" {
		return fmt.Errorf("agency id is required")
	}
	if strings.TrimSpace(owner.ID) == "" {
		return fmt.Errorf("owner id is required")
	}
	if owner.AgencyID != agency.ID {
		return fmt.Errorf("owner agency %q does not match agency %q", owner.AgencyID, agency.ID)
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create agency: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = errors.Join(err, fmt.Errorf("rollback create agency: %w", rbErr))
			}
		}
	}()

	if _, err = tx.ExecContext(ctx, `
INSERT INTO agencies (id, name, company_email, logo_url, goal, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, agencyArgs(agency)...); err != nil {
		if isUniqueConstraintError(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("insert agency: %w", err)
	}
	if err = insertUser(ctx, tx, owner); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create agency: %w", err)
	}
	return nil
}

// DeleteAgency removes an agency. Sub-accounts, members, permissions,
// invitations and notifications go with it.
func (s *Store) DeleteAgency(ctx context.Context, agencyID string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	result, err := s.sqlDB.ExecContext(ctx, `DELETE FROM agencies WHERE id = ?`, strings.TrimSpace(agencyID))
	if err != nil {
		return fmt.Errorf("delete agency: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete agency rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func agencyArgs(agency tenant.Agency) []any {
	return []any{
		strings.TrimSpace(agency.ID),
		agency.Name,
		tenant.NormalizeEmail(agency.CompanyEmail),
		agency.LogoURL,
		agency.Goal,
		toMillis(agency.CreatedAt),
		toMillis(agency.UpdatedAt),
	}
}

// GetAgency loads an agency by id.
func (s *Store) GetAgency(ctx context.Context, agencyID string) (tenant.Agency, error) {
	if err := s.ready(ctx); err != nil {
		return tenant.Agency{}, err
	}
	var (
		agency    tenant.Agency
		createdAt int64
		updatedAt int64
	)
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT id, name, company_email, logo_url, goal, created_at, updated_at
FROM agencies
WHERE id = ?
`, strings.TrimSpace(agencyID)).Scan(&agency.ID, &agency.Name, &agency.CompanyEmail, &agency.LogoURL, &agency.Goal, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return tenant.Agency{}, storage.ErrNotFound
		}
		return tenant.Agency{}, fmt.Errorf("get agency: %w", err)
	}
	agency.CreatedAt = fromMillis(createdAt)
	agency.UpdatedAt = fromMillis(updatedAt)
	return agency, nil
}

// PutSubAccount upserts a sub-account under its agency.
func (s *Store) PutSubAccount(ctx context.Context, subAccount tenant.SubAccount) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(subAccount.ID) == "" {
		return fmt.Errorf("sub-account id is required")
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO sub_accounts (id, agency_id, name, company_email, goal, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	name = excluded.name,
	company_email = excluded.company_email,
	goal = excluded.goal,
	updated_at = excluded.updated_at
`,
		strings.TrimSpace(subAccount.ID),
		strings.TrimSpace(subAccount.AgencyID),
		subAccount.Name,
		tenant.NormalizeEmail(subAccount.CompanyEmail),
		subAccount.Goal,
		toMillis(subAccount.CreatedAt),
		toMillis(subAccount.UpdatedAt),
	)
	if err != nil {
		if isForeignKeyConstraintError(err) {
			return fmt.Errorf("sub-account agency %q: %w", subAccount.AgencyID, storage.ErrNotFound)
		}
		return fmt.Errorf("put sub-account: %w", err)
	}
	return nil
}

// GetSubAccount loads a sub-account by id.
func (s *Store) GetSubAccount(ctx context.Context, subAccountID string) (tenant.SubAccount, error) {
	if err := s.ready(ctx); err != nil {
		return tenant.SubAccount{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, agency_id, name, company_email, goal, created_at, updated_at
FROM sub_accounts
WHERE id = ?
`, strings.TrimSpace(subAccountID))
	subAccount, err := scanSubAccount(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return tenant.SubAccount{}, storage.ErrNotFound
		}
		return tenant.SubAccount{}, fmt.Errorf("get sub-account: %w", err)
	}
	return subAccount, nil
}

// ListSubAccounts lists an agency's sub-accounts by name.
func (s *Store) ListSubAccounts(ctx context.Context, agencyID string) ([]tenant.SubAccount, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, agency_id, name, company_email, goal, created_at, updated_at
FROM sub_accounts
WHERE agency_id = ?
ORDER BY name, id
`, strings.TrimSpace(agencyID))
	if err != nil {
		return nil, fmt.Errorf("list sub-accounts: %w", err)
	}
	defer rows.Close()

	var subAccounts []tenant.SubAccount
	for rows.Next() {
		subAccount, err := scanSubAccount(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan sub-account: %w", err)
		}
		subAccounts = append(subAccounts, subAccount)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sub-accounts: %w", err)
	}
	return subAccounts, nil
}

func scanSubAccount(scan func(dest ...any) error) (tenant.SubAccount, error) {
	var (
		subAccount tenant.SubAccount
		createdAt  int64
		updatedAt  int64
	)
	if err := scan(&subAccount.ID, &subAccount.AgencyID, &subAccount.Name, &subAccount.CompanyEmail, &subAccount.Goal, &createdAt, &updatedAt); err != nil {
		return tenant.SubAccount{}, err
	}
	subAccount.CreatedAt = fromMillis(createdAt)
	subAccount.UpdatedAt = fromMillis(updatedAt)
	return subAccount, nil
}

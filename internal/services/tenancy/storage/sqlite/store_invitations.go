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

// PutInvitation inserts a pending invitation for its email.
func (s *Store) PutInvitation(ctx context.Context, invitation tenant.Invitation) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	email := tenant.NormalizeEmail(invitation.Email)
	if email == "" {
		return fmt.Errorf("invitation email is required")
	}
	if strings.TrimSpace(invitation.AgencyID) == "" {
		return fmt.Errorf("invitation agency id is required")
	}
	status := invitation.Status
	if status == "" {
		status = tenant.InvitationPending
	}
	createdAt := invitation.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO invitations (email, agency_id, role, status, avatar_url, created_at)
VALUES (?, ?, ?, ?, ?, ?)
`,
		email,
		strings.TrimSpace(invitation.AgencyID),
		string(invitation.Role),
		string(status),
		invitation.AvatarURL,
		toMillis(createdAt),
	)
	if err != nil {
		switch {
		case isUniqueConstraintError(err):
			return storage.ErrConflict
		case isForeignKeyConstraintError(err):
			return fmt.Errorf("invitation agency %q: %w", invitation.AgencyID, storage.ErrNotFound)
		}
		return fmt.Errorf("put invitation: %w", err)
	}
	return nil
}

// GetPendingInvitation loads the PENDING invitation for email.
func (s *Store) GetPendingInvitation(ctx context.Context, email string) (tenant.Invitation, error) {
	if err := s.ready(ctx); err != nil {
		return tenant.Invitation{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT email, agency_id, role, status, avatar_url, created_at
FROM invitations
WHERE email = ? AND status = ?
`, tenant.NormalizeEmail(email), string(tenant.InvitationPending))

	var (
		invitation tenant.Invitation
		role       string
		status     string
		createdAt  int64
	)
	if err := row.Scan(&invitation.Email, &invitation.AgencyID, &role, &status, &invitation.AvatarURL, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return tenant.Invitation{}, storage.ErrNotFound
		}
		return tenant.Invitation{}, fmt.Errorf("get pending invitation: %w", err)
	}
	invitation.Role = tenant.Role(role)
	invitation.Status = tenant.InvitationStatus(status)
	invitation.CreatedAt = fromMillis(createdAt)
	return invitation, nil
}

// DeleteInvitation removes the invitation for email.
func (s *Store) DeleteInvitation(ctx context.Context, email string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	result, err := s.sqlDB.ExecContext(ctx, `DELETE FROM invitations WHERE email = ?`, tenant.NormalizeEmail(email))
	if err != nil {
		return fmt.Errorf("delete invitation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete invitation rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

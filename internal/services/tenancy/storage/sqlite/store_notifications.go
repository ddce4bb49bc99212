package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/louisbranch/agencyhub/internal/services/tenancy/storage"
	"github.com/louisbranch/agencyhub/internal/services/tenancy/tenant"
)

const defaultFeedLimit = 50

// AppendNotification inserts one activity feed entry. Entries are never updated.
func (s *Store) AppendNotification(ctx context.Context, notification tenant.Notification) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(notification.ID) == "" {
		return fmt.Errorf("notification id is required")
	}
	if strings.TrimSpace(notification.AgencyID) == "" {
		return fmt.Errorf("notification agency id is required")
	}
	if strings.TrimSpace(notification.UserID) == "" {
		return fmt.Errorf("notification user id is required")
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO notifications (id, text, agency_id, sub_account_id, user_id, created_at)
VALUES (?, ?, ?, ?, ?, ?)
`,
		notification.ID,
		notification.Text,
		strings.TrimSpace(notification.AgencyID),
		nullString(notification.SubAccountID),
		strings.TrimSpace(notification.UserID),
		toMillis(notification.CreatedAt),
	)
	if err != nil {
		switch {
		case isUniqueConstraintError(err):
			return storage.ErrConflict
		case isForeignKeyConstraintError(err):
			return fmt.Errorf("notification references: %w", storage.ErrNotFound)
		}
		return fmt.Errorf("append notification: %w", err)
	}
	return nil
}

// ListAgencyFeed lists agencyID's notifications newest first with their authors.
func (s *Store) ListAgencyFeed(ctx context.Context, agencyID string, limit int) ([]tenant.FeedEntry, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultFeedLimit
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT n.id, n.text, n.agency_id, n.sub_account_id, n.user_id, n.created_at, u.name, u.avatar_url
FROM notifications n
JOIN users u ON u.id = n.user_id
WHERE n.agency_id = ?
ORDER BY n.created_at DESC, n.id DESC
LIMIT ?
`, strings.TrimSpace(agencyID), limit)
	if err != nil {
		return nil, fmt.Errorf("list agency feed: %w", err)
	}
	defer rows.Close()

	var entries []tenant.FeedEntry
	for rows.Next() {
		var (
			entry        tenant.FeedEntry
			subAccountID sql.NullString
			createdAt    int64
		)
		if err := rows.Scan(
			&entry.Notification.ID,
			&entry.Notification.Text,
			&entry.Notification.AgencyID,
			&subAccountID,
			&entry.Notification.UserID,
			&createdAt,
			&entry.UserName,
			&entry.UserAvatarURL,
		); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		entry.Notification.SubAccountID = subAccountID.String
		entry.Notification.CreatedAt = fromMillis(createdAt)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return entries, nil
}

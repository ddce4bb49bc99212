// Package storage defines the tenancy persistence contracts.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/louisbranch/agencyhub/internal/services/tenancy/tenant"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a write violated a uniqueness constraint.
	ErrConflict = errors.New("record conflict")
)

// InvitationStore persists pending invitations keyed by email.
type InvitationStore interface {
	// PutInvitation inserts a pending invitation. ErrConflict when the email
	// already has one.
	PutInvitation(ctx context.Context, invitation tenant.Invitation) error
	GetPendingInvitation(ctx context.Context, email string) (tenant.Invitation, error)
	DeleteInvitation(ctx context.Context, email string) error
}

// UserStore persists agency team members. Email is unique; a second
// CreateUser for the same email returns ErrConflict.
type UserStore interface {
	CreateUser(ctx context.Context, user tenant.User) error
	GetUser(ctx context.Context, userID string) (tenant.User, error)
	GetUserByEmail(ctx context.Context, email string) (tenant.User, error)
	// FindAgencyUser returns the earliest member of agencyID.
	FindAgencyUser(ctx context.Context, agencyID string) (tenant.User, error)
	// FindSubAccountAgencyUser returns the earliest member of the agency that
	// owns subAccountID.
	FindSubAccountAgencyUser(ctx context.Context, subAccountID string) (tenant.User, error)
	PutPermission(ctx context.Context, permission tenant.Permission) error
	ListPermissionsByEmail(ctx context.Context, email string) ([]tenant.Permission, error)
}

// TenantStore persists agencies and their sub-accounts.
type TenantStore interface {
	PutAgency(ctx context.Context, agency tenant.Agency) error
	// CreateAgency inserts agency and its owner atomically. ErrConflict when
	// the agency or the owner already exists.
	CreateAgency(ctx context.Context, agency tenant.Agency, owner tenant.User) error
	GetAgency(ctx context.Context, agencyID string) (tenant.Agency, error)
	// DeleteAgency removes the agency and everything scoped to it.
	DeleteAgency(ctx context.Context, agencyID string) error
	PutSubAccount(ctx context.Context, subAccount tenant.SubAccount) error
	GetSubAccount(ctx context.Context, subAccountID string) (tenant.SubAccount, error)
	ListSubAccounts(ctx context.Context, agencyID string) ([]tenant.SubAccount, error)
}

// NotificationStore appends to and reads the agency activity feed.
type NotificationStore interface {
	AppendNotification(ctx context.Context, notification tenant.Notification) error
	// ListAgencyFeed lists agencyID's notifications newest first.
	ListAgencyFeed(ctx context.Context, agencyID string, limit int) ([]tenant.FeedEntry, error)
}

// IdentityRoleStore mirrors role metadata for the self-hosted identity directory.
type IdentityRoleStore interface {
	PutIdentityRole(ctx context.Context, externalID string, role tenant.Role, updatedAt time.Time) error
	GetIdentityRole(ctx context.Context, externalID string) (tenant.Role, error)
}

// Store is the full tenancy persistence surface.
type Store interface {
	InvitationStore
	UserStore
	TenantStore
	NotificationStore
	IdentityRoleStore
}

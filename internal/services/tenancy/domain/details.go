package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/louisbranch/agencyhub/internal/services/tenancy/storage"
	"github.com/louisbranch/agencyhub/internal/services/tenancy/tenant"
)

// UserDetails is the authenticated member with their agency context.
type UserDetails struct {
	User        tenant.User
	Agency      tenant.Agency
	SubAccounts []tenant.SubAccount
	Permissions []tenant.Permission
}

// UserDetails loads the authenticated identity's team member, agency,
// sub-accounts and sub-account permissions.
func (s *Service) UserDetails(ctx context.Context) (UserDetails, error) {
	if err := s.ready(); err != nil {
		return UserDetails{}, err
	}
	ctx, span := s.tracer.Start(ctx, "tenancy.UserDetails")
	defer span.End()

	who, err := currentIdentity(ctx)
	if err != nil {
		return UserDetails{}, err
	}
	user, err := s.store.GetUserByEmail(ctx, who.Email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return UserDetails{}, notFoundError("team member not found", err)
		}
		return UserDetails{}, recordSpanError(span, fmt.Errorf("load team member: %w", err))
	}
	agency, err := s.store.GetAgency(ctx, user.AgencyID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return UserDetails{}, notFoundError("agency not found", err)
		}
		return UserDetails{}, recordSpanError(span, fmt.Errorf("load agency: %w", err))
	}
	subAccounts, err := s.store.ListSubAccounts(ctx, agency.ID)
	if err != nil {
		return UserDetails{}, recordSpanError(span, fmt.Errorf("list sub-accounts: %w", err))
	}
	permissions, err := s.store.ListPermissionsByEmail(ctx, user.Email)
	if err != nil {
		return UserDetails{}, recordSpanError(span, fmt.Errorf("list permissions: %w", err))
	}
	return UserDetails{
		User:        user,
		Agency:      agency,
		SubAccounts: subAccounts,
		Permissions: permissions,
	}, nil
}

package domain

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/louisbranch/agencyhub/internal/services/tenancy/storage"
	"github.com/louisbranch/agencyhub/internal/services/tenancy/tenant"
)

// CreateAgencyInput describes a new agency owned by the caller.
type CreateAgencyInput struct {
	Name         string
	CompanyEmail string
	LogoURL      string
}

// CreateAgency creates an agency with the authenticated identity as its
// owner and propagates the owner role. An identity that already belongs to
// an agency cannot create another one.
func (s *Service) CreateAgency(ctx context.Context, input CreateAgencyInput) (tenant.Agency, error) {
	if err := s.ready(); err != nil {
		return tenant.Agency{}, err
	}
	ctx, span := s.tracer.Start(ctx, "tenancy.CreateAgency")
	defer span.End()

	who, err := currentIdentity(ctx)
	if err != nil {
		return tenant.Agency{}, err
	}
	email := tenant.NormalizeEmail(who.Email)
	if email == "" {
		return tenant.Agency{}, inputError("identity email is required", "email")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return tenant.Agency{}, inputError("agency name is required", "name")
	}
	companyEmail := tenant.NormalizeEmail(input.CompanyEmail)
	if companyEmail == "" {
		companyEmail = email
	}

	agencyID, err := s.newID()
	if err != nil {
		return tenant.Agency{}, recordSpanError(span, fmt.Errorf("generate agency id: %w", err))
	}
	now := s.now()
	agency := tenant.Agency{
		ID:           agencyID,
		Name:         name,
		CompanyEmail: companyEmail,
		LogoURL:      strings.TrimSpace(input.LogoURL),
		Goal:         tenant.DefaultAgencyGoal,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	owner := tenant.NewAgencyOwner(agency, email, who.Member(), who.AvatarURL, now)
	span.SetAttributes(attribute.String("agency.id", agency.ID), attribute.String("identity.id", owner.ID))

	if err := s.store.CreateAgency(ctx, agency, owner); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return tenant.Agency{}, recordSpanError(span, s.classifyUserConflict(ctx, owner, err))
		}
		return tenant.Agency{}, recordSpanError(span, fmt.Errorf("create agency: %w", err))
	}
	s.logger.Info("agency created", zap.String("agency_id", agency.ID), zap.String("owner_id", owner.ID))

	if err := s.propagate(ctx, owner); err != nil {
		s.logger.Error("agency created but owner role propagation failed",
			zap.String("user_id", owner.ID),
			zap.String("agency_id", agency.ID),
			zap.Error(err),
		)
		return tenant.Agency{}, recordSpanError(span, err)
	}
	return agency, nil
}

// UpdateAgencyInput changes agency details. Nil fields are left unchanged.
type UpdateAgencyInput struct {
	AgencyID     string
	Name         *string
	CompanyEmail *string
	LogoURL      *string
	Goal         *int
}

// UpdateAgency lets an owner or admin edit the agency. A goal change is
// announced on the agency feed.
func (s *Service) UpdateAgency(ctx context.Context, input UpdateAgencyInput) (tenant.Agency, error) {
	if err := s.ready(); err != nil {
		return tenant.Agency{}, err
	}
	ctx, span := s.tracer.Start(ctx, "tenancy.UpdateAgency")
	defer span.End()

	agencyID := strings.TrimSpace(input.AgencyID)
	if agencyID == "" {
		return tenant.Agency{}, inputError("agency id is required", "agency_id")
	}
	if _, err := s.requireManager(ctx, agencyID); err != nil {
		return tenant.Agency{}, err
	}
	agency, err := s.store.GetAgency(ctx, agencyID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return tenant.Agency{}, notFoundError("agency not found", err)
		}
		return tenant.Agency{}, recordSpanError(span, fmt.Errorf("load agency: %w", err))
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return tenant.Agency{}, inputError("agency name is required", "name")
		}
		agency.Name = name
	}
	if input.CompanyEmail != nil {
		agency.CompanyEmail = tenant.NormalizeEmail(*input.CompanyEmail)
	}
	if input.LogoURL != nil {
		agency.LogoURL = strings.TrimSpace(*input.LogoURL)
	}
	goalChanged := false
	if input.Goal != nil {
		if *input.Goal < 1 {
			return tenant.Agency{}, inputError("goal must be positive", "goal")
		}
		goalChanged = *input.Goal != agency.Goal
		agency.Goal = *input.Goal
	}
	agency.UpdatedAt = s.now()

	if err := s.store.PutAgency(ctx, agency); err != nil {
		return tenant.Agency{}, recordSpanError(span, fmt.Errorf("put agency: %w", err))
	}
	if goalChanged {
		result, err := s.RecordActivity(ctx, ActivityInput{AgencyID: agency.ID, Description: "Updated their goal to " + strconv.Itoa(agency.Goal)})
		if err != nil {
			s.logger.Warn("goal activity not recorded", zap.String("agency_id", agency.ID), zap.Error(err))
		} else if !result.Recorded() {
			s.logger.Warn("goal activity dropped", zap.String("agency_id", agency.ID), zap.Error(result.Dropped))
		}
	}
	return agency, nil
}

// DeleteAgency removes the agency with its sub-accounts, members,
// invitations and feed. Only the owner may delete it.
func (s *Service) DeleteAgency(ctx context.Context, agencyID string) error {
	if err := s.ready(); err != nil {
		return err
	}
	ctx, span := s.tracer.Start(ctx, "tenancy.DeleteAgency")
	defer span.End()

	agencyID = strings.TrimSpace(agencyID)
	if agencyID == "" {
		return inputError("agency id is required", "agency_id")
	}
	caller, err := s.requireManager(ctx, agencyID)
	if err != nil {
		return err
	}
	if caller.Role != tenant.RoleAgencyOwner {
		return ErrForbidden
	}
	if err := s.store.DeleteAgency(ctx, agencyID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return notFoundError("agency not found", err)
		}
		return recordSpanError(span, fmt.Errorf("delete agency: %w", err))
	}
	s.logger.Info("agency deleted", zap.String("agency_id", agencyID), zap.String("user_id", caller.ID))
	return nil
}

// SubAccountInput creates or updates a sub-account. An empty ID creates a
// new one; a nil Goal keeps the stored goal or applies the default.
type SubAccountInput struct {
	ID           string
	AgencyID     string
	Name         string
	CompanyEmail string
	Goal         *int
}

// UpsertSubAccount lets an owner or admin save a sub-account of their
// agency. A new sub-account grants the caller access to it.
func (s *Service) UpsertSubAccount(ctx context.Context, input SubAccountInput) (tenant.SubAccount, error) {
	if err := s.ready(); err != nil {
		return tenant.SubAccount{}, err
	}
	ctx, span := s.tracer.Start(ctx, "tenancy.UpsertSubAccount")
	defer span.End()

	agencyID := strings.TrimSpace(input.AgencyID)
	if agencyID == "" {
		return tenant.SubAccount{}, inputError("agency id is required", "agency_id")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return tenant.SubAccount{}, inputError("sub-account name is required", "name")
	}
	if input.Goal != nil && *input.Goal < 1 {
		return tenant.SubAccount{}, inputError("goal must be positive", "goal")
	}
	caller, err := s.requireManager(ctx, agencyID)
	if err != nil {
		return tenant.SubAccount{}, err
	}

	now := s.now()
	subAccount := tenant.SubAccount{
		ID:        strings.TrimSpace(input.ID),
		AgencyID:  agencyID,
		Goal:      tenant.DefaultSubAccountGoal,
		CreatedAt: now,
	}
	created := true
	if subAccount.ID == "" {
		if subAccount.ID, err = s.newID(); err != nil {
			return tenant.SubAccount{}, recordSpanError(span, fmt.Errorf("generate sub-account id: %w", err))
		}
	} else {
		existing, err := s.store.GetSubAccount(ctx, subAccount.ID)
		switch {
		case err == nil:
			if existing.AgencyID != agencyID {
				return tenant.SubAccount{}, notFoundError("sub-account not found", storage.ErrNotFound)
			}
			subAccount = existing
			created = false
		case !errors.Is(err, storage.ErrNotFound):
			return tenant.SubAccount{}, recordSpanError(span, fmt.Errorf("load sub-account: %w", err))
		}
	}
	subAccount.Name = name
	subAccount.CompanyEmail = tenant.NormalizeEmail(input.CompanyEmail)
	if input.Goal != nil {
		subAccount.Goal = *input.Goal
	}
	subAccount.UpdatedAt = now
	span.SetAttributes(attribute.String("agency.id", agencyID), attribute.String("sub_account.id", subAccount.ID))

	if err := s.store.PutSubAccount(ctx, subAccount); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return tenant.SubAccount{}, notFoundError("agency not found", err)
		}
		return tenant.SubAccount{}, recordSpanError(span, fmt.Errorf("put sub-account: %w", err))
	}

	if created {
		permissionID, err := s.newID()
		if err != nil {
			return tenant.SubAccount{}, recordSpanError(span, fmt.Errorf("generate permission id: %w", err))
		}
		if err := s.store.PutPermission(ctx, tenant.Permission{
			ID:           permissionID,
			Email:        caller.Email,
			SubAccountID: subAccount.ID,
			Access:       true,
		}); err != nil {
			return tenant.SubAccount{}, recordSpanError(span, fmt.Errorf("grant sub-account access: %w", err))
		}
	}

	result, err := s.RecordActivity(ctx, ActivityInput{SubAccountID: subAccount.ID, Description: "Saved sub-account " + subAccount.Name})
	if err != nil {
		s.logger.Warn("sub-account activity not recorded", zap.String("sub_account_id", subAccount.ID), zap.Error(err))
	} else if !result.Recorded() {
		s.logger.Warn("sub-account activity dropped", zap.String("sub_account_id", subAccount.ID), zap.Error(result.Dropped))
	}
	return subAccount, nil
}

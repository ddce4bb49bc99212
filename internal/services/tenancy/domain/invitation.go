package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	apperrors "github.com/louisbranch/agencyhub/internal/platform/errors"
	"github.com/louisbranch/agencyhub/internal/services/tenancy/identity"
	"github.com/louisbranch/agencyhub/internal/services/tenancy/storage"
	"github.com/louisbranch/agencyhub/internal/services/tenancy/tenant"
)

// JoinedDescription is the activity recorded when an invitation is accepted.
const JoinedDescription = "Joined"

// Outcome tells callers which resolution path produced a Resolution.
type Outcome string

const (
	// OutcomeNone means no invitation and no team member exist for the identity.
	OutcomeNone Outcome = "none"
	// OutcomeExistingMember means the identity already belongs to an agency.
	OutcomeExistingMember Outcome = "existing_member"
	// OutcomeAccepted means a pending invitation was accepted by this call.
	OutcomeAccepted Outcome = "accepted"
	// OutcomeAlreadyAccepted means another acceptance of the same invitation
	// won, or an earlier one stopped before retiring the invitation.
	OutcomeAlreadyAccepted Outcome = "already_accepted"
	// OutcomeOwnerInvitationSkipped means the pending invitation would have
	// granted ownership and was left untouched.
	OutcomeOwnerInvitationSkipped Outcome = "owner_invitation_skipped"
)

// Resolution is the agency an identity resolves to, if any.
type Resolution struct {
	AgencyID string
	Outcome  Outcome
}

// HasAgency reports whether the identity resolved to an agency.
func (r Resolution) HasAgency() bool {
	return r.AgencyID != ""
}

// ResolveOrAccept resolves the agency of the authenticated identity, accepting
// its pending invitation first when one exists.
func (s *Service) ResolveOrAccept(ctx context.Context) (Resolution, error) {
	if err := s.ready(); err != nil {
		return Resolution{}, err
	}
	ctx, span := s.tracer.Start(ctx, "tenancy.ResolveOrAccept")
	defer span.End()

	who, err := currentIdentity(ctx)
	if err != nil {
		return Resolution{}, err
	}
	email := tenant.NormalizeEmail(who.Email)
	if email == "" {
		return Resolution{}, inputError("identity email is required", "email")
	}
	span.SetAttributes(attribute.String("identity.id", who.ExternalID))

	invitation, err := s.store.GetPendingInvitation(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		return s.resolveMember(ctx, email)
	}
	if err != nil {
		return Resolution{}, recordSpanError(span, fmt.Errorf("load pending invitation: %w", err))
	}
	span.SetAttributes(attribute.String("agency.id", invitation.AgencyID), attribute.String("invitation.role", invitation.Role.String()))

	if !invitation.Role.Invitable() {
		s.logger.Warn("pending invitation cannot be accepted",
			zap.String("email", email),
			zap.String("agency_id", invitation.AgencyID),
			zap.String("role", invitation.Role.String()),
		)
		resolution, err := s.resolveMember(ctx, email)
		if err != nil {
			return Resolution{}, recordSpanError(span, err)
		}
		if resolution.HasAgency() {
			return resolution, nil
		}
		return Resolution{Outcome: OutcomeOwnerInvitationSkipped}, nil
	}

	user, err := s.materialize(ctx, invitation, who)
	if errors.Is(err, ErrDuplicateUser) {
		return s.resolveAccepted(ctx, invitation)
	}
	if errors.Is(err, ErrIdentityInUse) {
		s.logger.Warn("identity already backs a team member under another email",
			zap.String("external_id", who.ExternalID),
			zap.String("email", email),
			zap.String("agency_id", invitation.AgencyID),
		)
		return Resolution{}, recordSpanError(span, err)
	}
	if err != nil {
		return Resolution{}, recordSpanError(span, err)
	}

	if err := s.propagate(ctx, user); err != nil {
		s.logger.Error("team member created but role propagation failed",
			zap.String("user_id", user.ID),
			zap.String("agency_id", user.AgencyID),
			zap.String("role", user.Role.String()),
			zap.Error(err),
		)
		return Resolution{}, recordSpanError(span, err)
	}

	s.notifyJoined(ctx, user)
	s.retire(ctx, email)

	return Resolution{AgencyID: user.AgencyID, Outcome: OutcomeAccepted}, nil
}

// resolveMember is the steady-state path for identities without a pending invitation.
func (s *Service) resolveMember(ctx context.Context, email string) (Resolution, error) {
	user, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		return Resolution{Outcome: OutcomeNone}, nil
	}
	if err != nil {
		return Resolution{}, fmt.Errorf("load team member: %w", err)
	}
	return Resolution{AgencyID: user.AgencyID, Outcome: OutcomeExistingMember}, nil
}

// resolveAccepted handles a pending invitation whose email already has a team
// member. The member's stored role is re-propagated before the invitation is
// retired, which repairs an acceptance that stopped after materializing.
func (s *Service) resolveAccepted(ctx context.Context, invitation tenant.Invitation) (Resolution, error) {
	ctx, span := s.tracer.Start(ctx, "tenancy.ResolveAccepted")
	defer span.End()

	user, err := s.store.GetUserByEmail(ctx, invitation.Email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Resolution{}, recordSpanError(span, notFoundError("existing team member not found", err))
		}
		return Resolution{}, recordSpanError(span, fmt.Errorf("load existing team member: %w", err))
	}
	if user.AgencyID != invitation.AgencyID {
		s.logger.Warn("invitation email already belongs to another agency",
			zap.String("email", invitation.Email),
			zap.String("invitation_agency_id", invitation.AgencyID),
			zap.String("member_agency_id", user.AgencyID),
		)
		return Resolution{AgencyID: user.AgencyID, Outcome: OutcomeExistingMember}, nil
	}
	if err := s.propagate(ctx, user); err != nil {
		s.logger.Error("role re-propagation failed", zap.String("user_id", user.ID), zap.Error(err))
		return Resolution{}, recordSpanError(span, err)
	}
	s.retire(ctx, invitation.Email)
	return Resolution{AgencyID: user.AgencyID, Outcome: OutcomeAlreadyAccepted}, nil
}

// materialize creates the team member for an accepted invitation.
func (s *Service) materialize(ctx context.Context, invitation tenant.Invitation, who identity.Identity) (tenant.User, error) {
	ctx, span := s.tracer.Start(ctx, "tenancy.Materialize")
	defer span.End()

	user, err := tenant.NewUserFromInvitation(invitation, who.Member(), s.now())
	if err != nil {
		return tenant.User{}, apperrors.WrapWithMetadata(apperrors.CodeInvalidRole, "invitation role cannot be accepted",
			map[string]string{"role": invitation.Role.String()}, err)
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		switch {
		case errors.Is(err, storage.ErrConflict):
			return tenant.User{}, s.classifyUserConflict(ctx, user, err)
		case errors.Is(err, storage.ErrNotFound):
			return tenant.User{}, notFoundError("invitation agency not found", err)
		}
		return tenant.User{}, recordSpanError(span, fmt.Errorf("create team member: %w", err))
	}
	return user, nil
}

// classifyUserConflict tells an existing member for the email apart from an
// identity already stored under another email. Both violate a users
// constraint, and the store does not say which one fired first.
func (s *Service) classifyUserConflict(ctx context.Context, user tenant.User, cause error) error {
	_, err := s.store.GetUserByEmail(ctx, user.Email)
	if err == nil {
		return duplicateUserError(user.Email, cause)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("load team member by email: %w", err)
	}
	existing, err := s.store.GetUser(ctx, user.ID)
	if err == nil && existing.Email != user.Email {
		return identityInUseError(user.ID, cause)
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("load team member by id: %w", err)
	}
	return fmt.Errorf("unattributed conflict: %w", cause)
}

// propagate mirrors the member's stored role onto the directory account.
func (s *Service) propagate(ctx context.Context, user tenant.User) error {
	ctx, span := s.tracer.Start(ctx, "tenancy.PropagateRole", trace.WithAttributes(
		attribute.String("user.id", user.ID),
		attribute.String("user.role", user.Role.String()),
	))
	defer span.End()

	if s.directory == nil {
		return propagationError(user.ID, user.AgencyID, user.Role.String(), ErrDirectoryNotConfigured)
	}
	if err := s.directory.SetRole(ctx, user.ID, user.Role); err != nil {
		return recordSpanError(span, propagationError(user.ID, user.AgencyID, user.Role.String(), err))
	}
	return nil
}

// notifyJoined records the join activity. Failures never block access.
func (s *Service) notifyJoined(ctx context.Context, user tenant.User) {
	result, err := s.RecordActivity(ctx, ActivityInput{AgencyID: user.AgencyID, Description: JoinedDescription})
	if err != nil {
		s.logger.Warn("join activity not recorded", zap.String("user_id", user.ID), zap.Error(err))
		return
	}
	if !result.Recorded() {
		s.logger.Warn("join activity dropped", zap.String("user_id", user.ID), zap.Error(result.Dropped))
	}
}

// retire deletes the accepted invitation. A concurrent acceptance may have
// retired it already.
func (s *Service) retire(ctx context.Context, email string) {
	ctx, span := s.tracer.Start(ctx, "tenancy.RetireInvitation")
	defer span.End()

	err := s.store.DeleteInvitation(ctx, email)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrNotFound):
		s.logger.Debug("invitation already retired", zap.String("email", email))
	default:
		recordSpanError(span, err)
		s.logger.Warn("invitation not retired", zap.String("email", email), zap.Error(err))
	}
}

// SendInvitationInput describes a new invitation.
type SendInvitationInput struct {
	AgencyID  string
	Email     string
	Role      string
	AvatarURL string
}

// SendInvitation lets an agency owner or admin invite an email address.
func (s *Service) SendInvitation(ctx context.Context, input SendInvitationInput) (tenant.Invitation, error) {
	if err := s.ready(); err != nil {
		return tenant.Invitation{}, err
	}
	ctx, span := s.tracer.Start(ctx, "tenancy.SendInvitation")
	defer span.End()

	agencyID := strings.TrimSpace(input.AgencyID)
	if agencyID == "" {
		return tenant.Invitation{}, inputError("agency id is required", "agency_id")
	}
	email := tenant.NormalizeEmail(input.Email)
	if email == "" || !strings.Contains(email, "@") {
		return tenant.Invitation{}, inputError("a valid email is required", "email")
	}
	role, ok := tenant.ParseRole(input.Role)
	if !ok || !role.Invitable() {
		return tenant.Invitation{}, apperrors.WithMetadata(apperrors.CodeInvalidRole, "role cannot be invited", map[string]string{"role": input.Role})
	}
	if _, err := s.requireManager(ctx, agencyID); err != nil {
		return tenant.Invitation{}, err
	}

	invitation := tenant.Invitation{
		Email:     email,
		AgencyID:  agencyID,
		Role:      role,
		Status:    tenant.InvitationPending,
		AvatarURL: strings.TrimSpace(input.AvatarURL),
		CreatedAt: s.now(),
	}
	if err := s.store.PutInvitation(ctx, invitation); err != nil {
		switch {
		case errors.Is(err, storage.ErrConflict):
			return tenant.Invitation{}, apperrors.WrapWithMetadata(apperrors.CodeInvitationExists, "invitation already pending", map[string]string{"email": email}, err)
		case errors.Is(err, storage.ErrNotFound):
			return tenant.Invitation{}, notFoundError("agency not found", err)
		}
		return tenant.Invitation{}, recordSpanError(span, fmt.Errorf("put invitation: %w", err))
	}

	result, err := s.RecordActivity(ctx, ActivityInput{AgencyID: agencyID, Description: "Invited " + email})
	if err != nil {
		s.logger.Warn("invitation activity not recorded", zap.String("email", email), zap.Error(err))
	} else if !result.Recorded() {
		s.logger.Warn("invitation activity dropped", zap.String("email", email), zap.Error(result.Dropped))
	}
	s.mailInvitation(ctx, invitation)
	return invitation, nil
}

// mailInvitation emails the invitee. The stored invitation stays valid when
// delivery fails, so failures are only logged.
func (s *Service) mailInvitation(ctx context.Context, invitation tenant.Invitation) {
	if s.mailer == nil {
		return
	}
	ctx, span := s.tracer.Start(ctx, "tenancy.MailInvitation")
	defer span.End()

	agency, err := s.store.GetAgency(ctx, invitation.AgencyID)
	if err == nil {
		err = s.mailer.SendInvitation(ctx, invitation, agency)
	}
	if err != nil {
		recordSpanError(span, err)
		s.logger.Warn("invitation email not sent",
			zap.String("email", invitation.Email),
			zap.String("agency_id", invitation.AgencyID),
			zap.Error(err),
		)
	}
}

// ReconcileRole re-issues the stored role of the member with email to the
// directory. It repairs a failed propagation and is safe to repeat.
func (s *Service) ReconcileRole(ctx context.Context, email string) (tenant.User, error) {
	if err := s.ready(); err != nil {
		return tenant.User{}, err
	}
	ctx, span := s.tracer.Start(ctx, "tenancy.ReconcileRole")
	defer span.End()

	email = tenant.NormalizeEmail(email)
	if email == "" {
		return tenant.User{}, inputError("email is required", "email")
	}
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return tenant.User{}, notFoundError("team member not found", err)
		}
		return tenant.User{}, recordSpanError(span, fmt.Errorf("load team member: %w", err))
	}
	if _, err := s.requireManager(ctx, user.AgencyID); err != nil {
		return tenant.User{}, err
	}
	if err := s.propagate(ctx, user); err != nil {
		return tenant.User{}, err
	}
	s.logger.Info("role reconciled", zap.String("user_id", user.ID), zap.String("role", user.Role.String()))
	return user, nil
}

// requireManager returns the caller's team member when it owns or
// administers agencyID.
func (s *Service) requireManager(ctx context.Context, agencyID string) (tenant.User, error) {
	who, err := currentIdentity(ctx)
	if err != nil {
		return tenant.User{}, err
	}
	caller, err := s.store.GetUserByEmail(ctx, tenant.NormalizeEmail(who.Email))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return tenant.User{}, ErrForbidden
		}
		return tenant.User{}, fmt.Errorf("load caller: %w", err)
	}
	if caller.AgencyID != agencyID || !caller.Role.ManagesAgency() {
		return tenant.User{}, ErrForbidden
	}
	return caller, nil
}

func recordSpanError(span trace.Span, err error) error {
	if err == nil {
		return nil
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

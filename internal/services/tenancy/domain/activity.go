package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/louisbranch/agencyhub/internal/platform/pagination"
	"github.com/louisbranch/agencyhub/internal/services/tenancy/identity"
	"github.com/louisbranch/agencyhub/internal/services/tenancy/storage"
	"github.com/louisbranch/agencyhub/internal/services/tenancy/tenant"
)

var feedLimit = pagination.LimitConfig{Default: 50, Max: 200}

// ActivityInput describes one activity feed entry. At least one of AgencyID
// and SubAccountID is required.
type ActivityInput struct {
	AgencyID     string
	SubAccountID string
	Description  string
}

// ActivityResult reports whether an activity reached the feed. A dropped
// activity carries the reason and is not an error for the caller.
type ActivityResult struct {
	Notification tenant.Notification
	Dropped      error
}

// Recorded reports whether the notification was appended.
func (r ActivityResult) Recorded() bool {
	return r.Dropped == nil && r.Notification.ID != ""
}

// RecordActivity appends "{userName} | {description}" to the agency feed.
//
// The entry is credited to the team member of the authenticated identity.
// Without an identity it is credited to the earliest member of the agency
// owning the sub-account, or of the agency itself when no sub-account is
// given. When nobody can be credited the entry is dropped and logged.
func (s *Service) RecordActivity(ctx context.Context, input ActivityInput) (ActivityResult, error) {
	if err := s.ready(); err != nil {
		return ActivityResult{}, err
	}
	ctx, span := s.tracer.Start(ctx, "tenancy.RecordActivity")
	defer span.End()

	agencyID := strings.TrimSpace(input.AgencyID)
	subAccountID := strings.TrimSpace(input.SubAccountID)
	if agencyID == "" && subAccountID == "" {
		return ActivityResult{}, inputError("agency id or sub-account id is required", "agency_id")
	}
	if agencyID == "" {
		subAccount, err := s.store.GetSubAccount(ctx, subAccountID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return ActivityResult{}, notFoundError("sub-account not found", err)
			}
			return ActivityResult{}, recordSpanError(span, fmt.Errorf("load sub-account: %w", err))
		}
		agencyID = subAccount.AgencyID
	}
	span.SetAttributes(attribute.String("agency.id", agencyID))

	user, err := s.attribute(ctx, agencyID, subAccountID)
	if err != nil {
		if !errors.Is(err, ErrAttribution) {
			return ActivityResult{}, recordSpanError(span, err)
		}
		s.logger.Warn("activity dropped",
			zap.String("agency_id", agencyID),
			zap.String("sub_account_id", subAccountID),
			zap.String("description", input.Description),
			zap.Error(err),
		)
		return ActivityResult{Dropped: err}, nil
	}

	notificationID, err := s.newID()
	if err != nil {
		return ActivityResult{}, fmt.Errorf("generate notification id: %w", err)
	}
	notification := tenant.Notification{
		ID:           notificationID,
		Text:         tenant.ActivityText(user.Name, input.Description),
		AgencyID:     agencyID,
		SubAccountID: subAccountID,
		UserID:       user.ID,
		CreatedAt:    s.now(),
	}
	if err := s.store.AppendNotification(ctx, notification); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ActivityResult{}, notFoundError("notification references a missing tenant", err)
		}
		return ActivityResult{}, recordSpanError(span, fmt.Errorf("append notification: %w", err))
	}
	return ActivityResult{Notification: notification}, nil
}

func (s *Service) attribute(ctx context.Context, agencyID, subAccountID string) (tenant.User, error) {
	var (
		user tenant.User
		err  error
	)
	who, authenticated := identity.FromContext(ctx)
	switch {
	case authenticated:
		user, err = s.store.GetUserByEmail(ctx, who.Email)
	case subAccountID != "":
		user, err = s.store.FindSubAccountAgencyUser(ctx, subAccountID)
	default:
		user, err = s.store.FindAgencyUser(ctx, agencyID)
	}
	if errors.Is(err, storage.ErrNotFound) {
		return tenant.User{}, ErrAttribution
	}
	if err != nil {
		return tenant.User{}, fmt.Errorf("load attributed user: %w", err)
	}
	return user, nil
}

// ListAgencyNotifications returns the agency feed newest first. The caller
// must be a member of the agency.
func (s *Service) ListAgencyNotifications(ctx context.Context, agencyID string, limit int) ([]tenant.FeedEntry, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	ctx, span := s.tracer.Start(ctx, "tenancy.ListAgencyNotifications")
	defer span.End()

	agencyID = strings.TrimSpace(agencyID)
	if agencyID == "" {
		return nil, inputError("agency id is required", "agency_id")
	}
	if _, err := s.requireMember(ctx, agencyID); err != nil {
		return nil, err
	}
	entries, err := s.store.ListAgencyFeed(ctx, agencyID, pagination.ClampLimit(limit, feedLimit))
	if err != nil {
		return nil, recordSpanError(span, fmt.Errorf("list agency feed: %w", err))
	}
	return entries, nil
}

func (s *Service) requireMember(ctx context.Context, agencyID string) (tenant.User, error) {
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
	if caller.AgencyID != agencyID {
		return tenant.User{}, ErrForbidden
	}
	return caller, nil
}

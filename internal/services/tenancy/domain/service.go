package domain

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/louisbranch/agencyhub/internal/platform/id"
	"github.com/louisbranch/agencyhub/internal/services/tenancy/identity"
	"github.com/louisbranch/agencyhub/internal/services/tenancy/storage"
	"github.com/louisbranch/agencyhub/internal/services/tenancy/tenant"
)

const tracerName = "github.com/louisbranch/agencyhub/internal/services/tenancy/domain"

// Store is the persistence boundary the workflows transact against.
type Store interface {
	storage.InvitationStore
	storage.UserStore
	storage.TenantStore
	storage.NotificationStore
}

// InvitationMailer delivers the invitation email for a new invitation.
type InvitationMailer interface {
	SendInvitation(ctx context.Context, invitation tenant.Invitation, agency tenant.Agency) error
}

// Options carries optional collaborators. Zero values get production defaults.
type Options struct {
	Clock  func() time.Time
	NewID  func() (string, error)
	Logger *zap.Logger
	Tracer trace.Tracer
	// Mailer is optional; without one invitations are only stored.
	Mailer InvitationMailer
}

// Service orchestrates tenant membership use-cases.
type Service struct {
	store     Store
	directory identity.RoleWriter
	clock     func() time.Time
	newID     func() (string, error)
	logger    *zap.Logger
	tracer    trace.Tracer
	mailer    InvitationMailer
}

// NewService constructs the tenancy workflows over store and directory.
func NewService(store Store, directory identity.RoleWriter, opts Options) *Service {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := opts.NewID
	if newID == nil {
		newID = id.NewID
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &Service{
		store:     store,
		directory: directory,
		clock:     clock,
		newID:     newID,
		logger:    logger,
		tracer:    tracer,
		mailer:    opts.Mailer,
	}
}

func (s *Service) ready() error {
	if s == nil || s.store == nil {
		return ErrStoreNotConfigured
	}
	return nil
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

// currentIdentity returns the authenticated identity attached to ctx.
func currentIdentity(ctx context.Context) (identity.Identity, error) {
	who, ok := identity.FromContext(ctx)
	if !ok {
		return identity.Identity{}, ErrUnauthenticated
	}
	return who, nil
}

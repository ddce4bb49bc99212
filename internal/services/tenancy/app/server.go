// Package server wires the tenancy runtime, its HTTP API and the gRPC health
// lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/louisbranch/agencyhub/internal/platform/timeouts"
	httpapi "github.com/louisbranch/agencyhub/internal/services/tenancy/api/http"
	"github.com/louisbranch/agencyhub/internal/services/tenancy/domain"
	"github.com/louisbranch/agencyhub/internal/services/tenancy/identity"
	firebasedirectory "github.com/louisbranch/agencyhub/internal/services/tenancy/identity/firebase"
	"github.com/louisbranch/agencyhub/internal/services/tenancy/identity/session"
	"github.com/louisbranch/agencyhub/internal/services/tenancy/mailer"
	tenancysqlite "github.com/louisbranch/agencyhub/internal/services/tenancy/storage/sqlite"
)

const (
	// ProviderSession verifies self-issued HS256 session tokens.
	ProviderSession = "session"
	// ProviderFirebase verifies Firebase ID tokens and writes custom claims.
	ProviderFirebase = "firebase"

	healthServiceName = "agencyhub.v1.Tenancy"
)

// Config holds everything the server needs to start.
type Config struct {
	HTTPAddr string
	GRPCAddr string
	DBPath   string
	// IdentityProvider selects the directory: ProviderSession or ProviderFirebase.
	IdentityProvider string
	Session          session.Config
	Firebase         firebasedirectory.Config
	Mail             MailConfig
}

// MailConfig enables invitation emails when SendGridAPIKey is set.
type MailConfig struct {
	SendGridAPIKey string
	From           string
	FromName       string
	PublicBaseURL  string
}

// Server hosts the tenancy HTTP API, the gRPC health service and storage.
type Server struct {
	httpListener net.Listener
	grpcListener net.Listener
	httpServer   *http.Server
	grpcServer   *grpc.Server
	health       *health.Server
	store        *tenancysqlite.Store
	logger       *zap.Logger
}

// New opens storage, builds the configured identity directory and binds both
// listeners. A nil logger discards logs.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Server, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	store, err := openTenancyStore(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	directory, err := newDirectory(ctx, cfg, store)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	invitationMailer, err := newInvitationMailer(cfg.Mail)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	httpListener, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("listen on %s: %w", cfg.HTTPAddr, err)
	}
	grpcListener, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		_ = httpListener.Close()
		_ = store.Close()
		return nil, fmt.Errorf("listen on %s: %w", cfg.GRPCAddr, err)
	}

	opts := domain.Options{Logger: logger.Named("tenancy")}
	if invitationMailer != nil {
		opts.Mailer = invitationMailer
	}
	service := domain.NewService(store, directory, opts)
	handler := httpapi.NewHandler(service, directory, logger.Named("http"))

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(healthServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	return &Server{
		httpListener: httpListener,
		grpcListener: grpcListener,
		httpServer: &http.Server{
			Handler:           handler.Routes(),
			ReadHeaderTimeout: timeouts.ReadHeader,
		},
		grpcServer: grpcServer,
		health:     healthServer,
		store:      store,
		logger:     logger,
	}, nil
}

// HTTPAddr returns the bound HTTP listener address.
func (s *Server) HTTPAddr() string {
	if s == nil || s.httpListener == nil {
		return ""
	}
	return s.httpListener.Addr().String()
}

// GRPCAddr returns the bound gRPC listener address.
func (s *Server) GRPCAddr() string {
	if s == nil || s.grpcListener == nil {
		return ""
	}
	return s.grpcListener.Addr().String()
}

// Run creates and serves a tenancy server until context cancellation.
func Run(ctx context.Context, cfg Config, logger *zap.Logger) error {
	server, err := New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve runs both listeners until context cancellation or the first serve
// failure, then shuts both down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.Close()

	s.logger.Info("agencyhub listening",
		zap.String("http_addr", s.HTTPAddr()),
		zap.String("grpc_addr", s.GRPCAddr()),
	)
	httpErr := make(chan error, 1)
	grpcErr := make(chan error, 1)
	go func() {
		httpErr <- s.httpServer.Serve(s.httpListener)
	}()
	go func() {
		grpcErr <- s.grpcServer.Serve(s.grpcListener)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case err := <-httpErr:
		httpErr <- err
		serveErr = httpServeError(err)
	case err := <-grpcErr:
		grpcErr <- err
		serveErr = grpcServeError(err)
	}

	if s.health != nil {
		s.health.Shutdown()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http shutdown", zap.Error(err))
	}
	s.grpcServer.GracefulStop()

	return errors.Join(serveErr, httpServeError(<-httpErr), grpcServeError(<-grpcErr))
}

func httpServeError(err error) error {
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("serve HTTP: %w", err)
}

func grpcServeError(err error) error {
	if err == nil || errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return fmt.Errorf("serve gRPC: %w", err)
}

// Close releases server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.health != nil {
		s.health.Shutdown()
	}
	if s.httpServer != nil {
		_ = s.httpServer.Close()
	}
	if s.grpcServer != nil {
		s.grpcServer.Stop()
	}
	if s.httpListener != nil {
		_ = s.httpListener.Close()
	}
	if s.grpcListener != nil {
		_ = s.grpcListener.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn("close tenancy store", zap.Error(err))
		}
	}
}

func newDirectory(ctx context.Context, cfg Config, store *tenancysqlite.Store) (identity.Directory, error) {
	switch provider := strings.ToLower(strings.TrimSpace(cfg.IdentityProvider)); provider {
	case "", ProviderSession:
		directory, err := session.New(cfg.Session, store)
		if err != nil {
			return nil, fmt.Errorf("init session directory: %w", err)
		}
		return directory, nil
	case ProviderFirebase:
		directory, err := firebasedirectory.New(ctx, cfg.Firebase)
		if err != nil {
			return nil, fmt.Errorf("init firebase directory: %w", err)
		}
		return directory, nil
	default:
		return nil, fmt.Errorf("unknown identity provider %q", cfg.IdentityProvider)
	}
}

// newInvitationMailer returns nil when mail is not configured.
func newInvitationMailer(cfg MailConfig) (*mailer.InvitationMailer, error) {
	if strings.TrimSpace(cfg.SendGridAPIKey) == "" {
		return nil, nil
	}
	sender, err := mailer.NewSendGrid(cfg.SendGridAPIKey, cfg.FromName)
	if err != nil {
		return nil, fmt.Errorf("init sendgrid: %w", err)
	}
	invitationMailer, err := mailer.NewInvitationMailer(sender, cfg.From, cfg.PublicBaseURL)
	if err != nil {
		return nil, fmt.Errorf("init invitation mailer: %w", err)
	}
	return invitationMailer, nil
}

func openTenancyStore(path string) (*tenancysqlite.Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = filepath.Join("data", "agencyhub.db")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := tenancysqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open tenancy sqlite store: %w", err)
	}
	return store, nil
}

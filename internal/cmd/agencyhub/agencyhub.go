// Package agencyhub parses agencyhub service flags and launches the service.
package agencyhub

import (
	"context"
	"flag"
	"fmt"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"

	entrypoint "github.com/louisbranch/agencyhub/internal/platform/cmd"
	"github.com/louisbranch/agencyhub/internal/platform/healthprobe"
	"github.com/louisbranch/agencyhub/internal/platform/logging"
	"github.com/louisbranch/agencyhub/internal/platform/otel"
	server "github.com/louisbranch/agencyhub/internal/services/tenancy/app"
	firebasedirectory "github.com/louisbranch/agencyhub/internal/services/tenancy/identity/firebase"
	"github.com/louisbranch/agencyhub/internal/services/tenancy/identity/session"
)

// Config holds agencyhub command configuration.
type Config struct {
	HTTPAddr         string        `env:"AGENCYHUB_HTTP_ADDR" envDefault:"localhost:8080"`
	GRPCPort         int           `env:"AGENCYHUB_GRPC_PORT" envDefault:"8081"`
	DBPath           string        `env:"AGENCYHUB_DB_PATH" envDefault:"data/agencyhub.db"`
	IdentityProvider string        `env:"AGENCYHUB_IDENTITY_PROVIDER" envDefault:"session"`
	SessionSecret    string        `env:"AGENCYHUB_SESSION_SECRET"`
	SessionIssuer    string        `env:"AGENCYHUB_SESSION_ISSUER" envDefault:"agencyhub"`
	SessionTTL       time.Duration `env:"AGENCYHUB_SESSION_TTL" envDefault:"24h"`
	FirebaseProject  string        `env:"AGENCYHUB_FIREBASE_PROJECT_ID"`
	FirebaseCredFile string        `env:"AGENCYHUB_FIREBASE_CREDENTIALS_FILE"`
	SendGridAPIKey   string        `env:"AGENCYHUB_SENDGRID_API_KEY"`
	MailFrom         string        `env:"AGENCYHUB_MAIL_FROM"`
	MailFromName     string        `env:"AGENCYHUB_MAIL_FROM_NAME" envDefault:"Agencyhub"`
	PublicBaseURL    string        `env:"AGENCYHUB_PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`

	Log       logging.Config
	Telemetry otel.Config

	// HealthCheck probes a running instance instead of starting one.
	HealthCheck bool
}

const healthCheckTimeout = 5 * time.Second

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg, nil); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP listen address")
	fs.IntVar(&cfg.GRPCPort, "grpc-port", cfg.GRPCPort, "The gRPC health server port")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "SQLite database path")
	fs.StringVar(&cfg.IdentityProvider, "identity-provider", cfg.IdentityProvider, "Identity directory: session or firebase")
	fs.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "Log level")
	fs.BoolVar(&cfg.HealthCheck, "healthcheck", false, "Probe the local gRPC health service and exit")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg Config) serverConfig() server.Config {
	return server.Config{
		HTTPAddr:         cfg.HTTPAddr,
		GRPCAddr:         fmt.Sprintf(":%d", cfg.GRPCPort),
		DBPath:           cfg.DBPath,
		IdentityProvider: cfg.IdentityProvider,
		Session: session.Config{
			Secret: cfg.SessionSecret,
			Issuer: cfg.SessionIssuer,
			TTL:    cfg.SessionTTL,
		},
		Firebase: firebasedirectory.Config{
			ProjectID:       cfg.FirebaseProject,
			CredentialsFile: cfg.FirebaseCredFile,
		},
		Mail: server.MailConfig{
			SendGridAPIKey: cfg.SendGridAPIKey,
			From:           cfg.MailFrom,
			FromName:       cfg.MailFromName,
			PublicBaseURL:  cfg.PublicBaseURL,
		},
	}
}

// Run starts the agencyhub HTTP API and gRPC health service.
func Run(ctx context.Context, cfg Config) error {
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.HealthCheck {
		return checkHealth(ctx, cfg, logger)
	}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceAgencyHub, entrypoint.RunOptions{
		Telemetry: cfg.Telemetry,
		Logger:    logger,
	}, func(ctx context.Context) error {
		return server.Run(ctx, cfg.serverConfig(), logger)
	})
}

func checkHealth(ctx context.Context, cfg Config, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(cfg.GRPCPort))
	if err := healthprobe.Check(ctx, addr, "", logger); err != nil {
		return fmt.Errorf("health check %s: %w", addr, err)
	}
	return nil
}

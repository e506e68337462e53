package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/openhumans/loggather/auth"
	"github.com/openhumans/loggather/config"
	"github.com/openhumans/loggather/internal/observability"
	"github.com/openhumans/loggather/middleware"
	"github.com/openhumans/loggather/repositories"
	"github.com/openhumans/loggather/repositories/postgres"
	"github.com/openhumans/loggather/services/datalogs"
	"github.com/openhumans/loggather/services/members"
	"github.com/openhumans/loggather/services/openhumans"
	"github.com/openhumans/loggather/services/retrieval"
	"github.com/openhumans/loggather/services/storage/s3"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	DB      *postgres.DB
	Logger  *zap.Logger
	Metrics observability.Metrics

	// Registry backing /metrics; nil when metrics are disabled
	MetricsRegistry *prometheus.Registry

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Members   repositories.MemberRepository
	Jobs      repositories.RetrievalJobQueue
	TxManager repositories.TransactionManager

	// Open Humans
	OpenHumans *openhumans.Client

	// Services
	MemberService    *members.Service
	RetrievalService *retrieval.Service
	Runner           *retrieval.Runner

	// Auth
	Sessions       *auth.SessionManager
	authHandler    *auth.Handler
	AuthMiddleware *middleware.AuthMiddleware
}

// AuthHandler returns the auth handler for route wiring (implements handlers.AuthDeps)
func (d *Dependencies) AuthHandler() *auth.Handler {
	return d.authHandler
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := deps.initRepositories(); err != nil {
		return nil, fmt.Errorf("failed to initialize repositories: %w", err)
	}

	deps.initMetrics(cfg)

	uploaders, err := deps.initStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	deps.initServices(cfg, uploaders)
	deps.initAuth(cfg)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase initializes the PostgreSQL database connection and factory
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	factory, err := postgres.NewRepositoryFactory(cfg, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	d.RepoFactory = factory
	d.DB = factory.GetDB()

	if err := factory.Prepare(ctx); err != nil {
		return err
	}

	d.Logger.Info("database connection established",
		zap.String("connection", cfg.Database.LogString()))

	return nil
}

// initRepositories initializes all repository instances
func (d *Dependencies) initRepositories() error {
	repos := d.RepoFactory.NewRepositories()

	d.Members = repos.Members
	d.Jobs = repos.Jobs
	d.TxManager = d.RepoFactory.GetTransactionManager()

	d.Logger.Info("repositories initialized")
	return nil
}

func (d *Dependencies) initMetrics(cfg *config.Config) {
	if !cfg.Observability.MetricsEnabled {
		d.Metrics = observability.NopMetrics{}
		return
	}
	m := observability.NewPrometheusMetrics()
	d.Metrics = m
	d.MetricsRegistry = m.Registry()
}

// initStorage picks where exports are delivered
func (d *Dependencies) initStorage(ctx context.Context, cfg *config.Config) (retrieval.UploaderFactory, error) {
	d.OpenHumans = openhumans.New(cfg.OpenHumans, d.Logger)

	switch cfg.Storage.Backend {
	case config.StorageBackendS3:
		store, err := s3.New(ctx, cfg.Storage.S3, d.Logger)
		if err != nil {
			return nil, err
		}
		d.Logger.Info("exports will be stored in s3", zap.String("bucket", cfg.Storage.S3.Bucket))
		return func(memberID uuid.UUID) datalogs.Uploader {
			return store.ForMember(memberID.String())
		}, nil
	default:
		return retrieval.StaticUploader(openhumans.NewUploader(d.OpenHumans)), nil
	}
}

func (d *Dependencies) initServices(cfg *config.Config, uploaders retrieval.UploaderFactory) {
	d.MemberService = members.NewService(d.Members, d.TxManager, d.OpenHumans, d.Logger)
	d.RetrievalService = retrieval.NewService(d.Jobs, d.Logger)
	d.Runner = retrieval.NewRunner(d.MemberService, d.OpenHumans, uploaders, d.Logger,
		datalogs.WithMetrics(d.Metrics),
		datalogs.WithRenderer(datalogs.RendererFor(cfg.Export.EscapeNewlines)),
	)
}

func (d *Dependencies) initAuth(cfg *config.Config) {
	d.Sessions = auth.NewSessionManager(cfg.Session.Secret, cfg.Session.TTL)
	d.AuthMiddleware = middleware.NewAuthMiddleware(&sessionValidatorAdapter{sessions: d.Sessions}, d.Logger)

	if cfg.OpenHumans.ClientID == "" {
		d.Logger.Warn("open humans client not configured, auth endpoints disabled")
		return
	}
	d.authHandler = auth.NewHandler(cfg, d.OpenHumans, d.MemberService, d.Sessions, d.Logger)
	d.Logger.Info("auth handler initialized")
}

// NewPool creates the retrieval worker pool from the worker configuration
func (d *Dependencies) NewPool() *retrieval.Pool {
	return retrieval.NewPool(d.Jobs, d.Runner, d.Metrics, d.Logger, retrieval.PoolConfig{
		Concurrency:  d.Config.Worker.Concurrency,
		PollInterval: d.Config.Worker.PollInterval,
		MaxAttempts:  d.Config.Worker.MaxAttempts,
		StaleAfter:   d.Config.Worker.StaleAfter,
	})
}

// sessionValidatorAdapter adapts auth.SessionManager to middleware.TokenValidator
type sessionValidatorAdapter struct {
	sessions *auth.SessionManager
}

func (a *sessionValidatorAdapter) ValidateToken(_ context.Context, token string) (*middleware.Claims, error) {
	claims, err := a.sessions.Validate(token)
	if err != nil {
		return nil, err
	}
	return &middleware.Claims{
		Sub:      claims.MemberID.String(),
		Username: claims.Username,
		Exp:      claims.ExpiresAt.Unix(),
	}, nil
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/odonto/odonto/internal/config"
	"github.com/odonto/odonto/internal/domain/cds"
	"github.com/odonto/odonto/internal/domain/consent"
	"github.com/odonto/odonto/internal/domain/patient"
	"github.com/odonto/odonto/internal/platform/auth"
	"github.com/odonto/odonto/internal/platform/db"
	"github.com/odonto/odonto/internal/platform/hipaa"
	"github.com/odonto/odonto/internal/platform/metrics"
	"github.com/odonto/odonto/internal/platform/middleware"
)

// app holds the stores and services shared by the server and CLI commands.
type app struct {
	cfg       *config.Config
	logger    zerolog.Logger
	pool      *pgxpool.Pool
	patients  patient.PatientRepository
	consents  consent.Repository
	auditLog  hipaa.AuditLog
	retention *hipaa.RetentionService
	gate      *auth.Gate
	sessions  *auth.SessionRevocations
}

// newApp wires Postgres-backed stores when DATABASE_URL is set and in-memory
// stores otherwise. close releases the pool.
func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (a *app, closeFn func(), err error) {
	a = &app{cfg: cfg, logger: logger}
	closeFn = func() {}

	if cfg.UsesDatabase() {
		a.pool, err = db.NewPool(ctx, cfg)
		if err != nil {
			return nil, closeFn, err
		}
		closeFn = a.pool.Close
		a.patients = patient.NewPatientRepoPG(a.pool)
		a.consents = consent.NewConsentRepoPG(a.pool)
		a.auditLog = hipaa.NewPGAuditLog(a.pool)
		logger.Info().Msg("connected to database")
	} else {
		a.patients = patient.NewMemoryRepository()
		a.consents = consent.NewMemoryRepository()
		a.auditLog = hipaa.NewMemoryAuditLog()
		logger.Warn().Msg("DATABASE_URL not set, using in-memory stores")
	}

	a.retention = hipaa.NewRetentionService(hipaa.DefaultRetentionPolicies(), logger)
	a.retention.SetPurgeAfter(hipaa.ResourceAuditLog, cfg.AuditRetentionDays)
	a.gate = auth.NewGate(a.auditLog, logger)
	a.sessions = auth.NewSessionRevocations()
	return a, closeFn, nil
}

func (a *app) jwtConfig() auth.JWTConfig {
	return auth.JWTConfig{
		Issuer:      a.cfg.AuthIssuer,
		Audience:    a.cfg.AuthAudience,
		SigningKey:  []byte(a.cfg.AuthSigningKey),
		Revocations: a.sessions,
	}
}

// buildServer assembles the echo instance. The returned limiter is swept by
// the caller.
func buildServer(a *app) (*echo.Echo, *middleware.IPRateLimiter) {
	cfg, logger := a.cfg, a.logger

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(metrics.Middleware())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout()))

	e.GET("/health", db.HealthHandler(a.pool, version))
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	limiter := middleware.NewIPRateLimiter(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	})
	apiV1 := e.Group("/api/v1", limiter.Middleware())
	if cfg.IsDev() {
		logger.Warn().Msg("development auth active: unauthenticated requests act as admin")
		apiV1.Use(auth.DevAuthMiddleware(a.jwtConfig()))
	} else {
		apiV1.Use(auth.JWTMiddleware(a.jwtConfig()))
	}

	patientSvc := patient.NewService(a.patients, a.gate, cds.ComputeRiskScoreAt, logger)
	patient.NewHandler(patientSvc).RegisterRoutes(apiV1)

	cdsSvc := cds.NewService(a.patients, a.gate, logger)
	cds.NewHandler(cdsSvc).RegisterRoutes(apiV1)

	consentMgr := consent.NewManager(a.consents, a.patients, a.gate, logger).
		WithExpiryWindow(cfg.ConsentExpiryWindow())
	consent.NewHandler(consentMgr).RegisterRoutes(apiV1)

	hipaa.NewHandler(a.auditLog, a.retention).RegisterRoutes(apiV1, auth.RequireRole(auth.RoleAdmin))
	auth.RegisterRevocationRoutes(apiV1, a.sessions, logger)

	return e, limiter
}

func runServer(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, closeApp, err := newApp(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer closeApp()

	e, limiter := buildServer(a)

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := limiter.Sweep(); n > 0 {
					logger.Debug().Int("dropped", n).Msg("rate limiter sweep")
				}
				if n := a.sessions.Sweep(); n > 0 {
					logger.Debug().Int("dropped", n).Msg("session revocation sweep")
				}
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Str("version", version).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

// stdinOrFile opens path, or stdin for "-".
func stdinOrFile(path string) (*os.File, error) {
	if path == "-" {
		return os.Stdin, nil
	}
	return os.Open(path)
}

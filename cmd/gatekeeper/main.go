package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/carepoint/gatekeeper/pkg/audit"
	"github.com/carepoint/gatekeeper/pkg/auth"
	"github.com/carepoint/gatekeeper/pkg/clinics"
	"github.com/carepoint/gatekeeper/pkg/config"
	"github.com/carepoint/gatekeeper/pkg/httputil"
	"github.com/carepoint/gatekeeper/pkg/lockout"
	"github.com/carepoint/gatekeeper/pkg/middleware"
	"github.com/carepoint/gatekeeper/pkg/observability"
	"github.com/carepoint/gatekeeper/pkg/policy"
	"github.com/carepoint/gatekeeper/pkg/rbac"
	"github.com/carepoint/gatekeeper/pkg/session"
	"github.com/carepoint/gatekeeper/pkg/storage"
	"github.com/gorilla/mux"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	logger, err := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Format, os.Stdout)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to create logger")
	}

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("Gatekeeper exited with error")
	}
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	ctx := context.Background()

	tp, err := observability.InitTracing(ctx, cfg.Tracing, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	store, err := storage.NewRedisStore(cfg.Redis)
	if err != nil {
		return err
	}
	logger.Info("Connected to Redis")

	db, err := storage.OpenPostgres(cfg.Postgres)
	if err != nil {
		store.Close()
		return err
	}
	logger.Info("Connected to PostgreSQL")

	metrics := observability.NewMetrics(nil)

	events := audit.NewAsyncLogger(
		audit.NewMultiLogger(
			audit.NewRedisLogger(store, cfg.Events.MaxEntries, cfg.Events.TTL),
			audit.NewLogrusLogger(logger),
		),
		cfg.Events.AsyncBuffer,
		logger,
	)
	events.OnDrop(metrics.RecordAuditDrop)

	verifier, err := buildVerifier(ctx, cfg.Auth, store, logger)
	if err != nil {
		return err
	}

	roles := rbac.DefaultRoles()
	if cfg.RBAC.RolesFile != "" {
		if roles, err = rbac.LoadRoles(cfg.RBAC.RolesFile); err != nil {
			return err
		}
	}

	policies := defaultPolicies()
	if cfg.PolicyFile != "" {
		if policies, err = policy.Load(cfg.PolicyFile); err != nil {
			return err
		}
	}
	if err := policies.Validate(roles); err != nil {
		return fmt.Errorf("invalid route policies: %w", err)
	}

	hours, err := cfg.RBAC.BusinessHours()
	if err != nil {
		return err
	}

	origin, err := middleware.NewOriginFilter(cfg.OriginAllowList, cfg.IsProduction(), events, logger)
	if err != nil {
		return fmt.Errorf("invalid origin allow-list: %w", err)
	}

	evaluator := rbac.NewEvaluator(rbac.EvaluatorConfig{
		Roles:           roles,
		BusinessHours:   hours,
		CacheTTL:        cfg.RBAC.CacheTTL,
		CacheSize:       cfg.RBAC.CacheSize,
		EmergencyExpiry: cfg.RBAC.EmergencyExpiry,
		Events:          events,
		Logger:          logger,
		OnCacheLookup:   metrics.RecordCacheLookup,
	})

	pipeline, err := middleware.NewPipeline(middleware.PipelineConfig{
		Policies:  policies,
		Origin:    origin,
		Lockouts:  lockout.NewTracker(store, events, cfg.Lockout, logger),
		Verifier:  verifier,
		Sessions:  session.NewValidator(session.NewRepository(store), events, cfg.Session.TTL, logger),
		Limiter:   session.NewLimiter(store, events, cfg.Session.MaxConcurrent, cfg.Session.SetTTL, logger),
		Tenants:   clinics.NewResolver(clinics.NewPostgresDirectory(db), events, logger, cfg.Clinics.ExemptRoles...),
		Evaluator: evaluator,
		Owners:    rbac.SelfOwnedResolver(),
		Events:    events,
		Metrics:   metrics,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	checker := observability.NewHealthChecker(version, 2*time.Second).
		AddCheck("redis", true, observability.PingCheck(store)).
		AddCheck("postgres", true, observability.SQLCheck(db))

	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteNotFoundError(w, "route not found")
	})
	observability.RegisterHealthRoutes(router, checker)
	router.Handle("/metrics", origin.Middleware(metrics.Handler())).Methods(http.MethodGet).Name("metrics")

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(pipeline.Middleware)
	registerDemoRoutes(api, rbac.NewPermissionMiddleware(evaluator))

	handler := httputil.Chain(
		httputil.RequestIDMiddleware(logger),
		httputil.RecoveryMiddleware(logger),
		httputil.LoggingMiddleware(logger),
		httputil.MaxBytesMiddleware(cfg.Server.MaxBodyBytes),
	)(router)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      otelhttp.NewHandler(handler, "gatekeeper"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	reaper := session.NewReaper(store, logger)
	reaper.OnReaped(metrics.RecordReaped)
	scheduler := cron.New()
	if _, err := reaper.Schedule(scheduler, cfg.Session.ReapSchedule); err != nil {
		return fmt.Errorf("invalid reap schedule: %w", err)
	}
	scheduler.Start()

	shutdown := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
	shutdown.Register("redis", func(ctx context.Context) error { return store.Close() })
	shutdown.Register("postgres", func(ctx context.Context) error { return db.Close() })
	shutdown.Register("security events", func(ctx context.Context) error { return events.Close() })
	shutdown.Register("tracing", func(ctx context.Context) error { return observability.ShutdownTracing(ctx, tp) })
	shutdown.Register("reaper", func(ctx context.Context) error {
		select {
		case <-scheduler.Stop().Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	serverErr := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{
			"addr":        cfg.Server.Addr,
			"environment": cfg.Environment,
			"version":     version,
			"routes":      len(policies.Names()),
		}).Info("Gatekeeper listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	signalCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := <-serverErr; err != nil {
			logger.WithError(err).Error("HTTP server failed")
			cancel()
		}
	}()

	return shutdown.WaitForSignal(signalCtx)
}

func buildVerifier(ctx context.Context, cfg config.AuthConfig, store storage.Store, logger logrus.FieldLogger) (*auth.Verifier, error) {
	var strategies []auth.Strategy
	if cfg.JWTSecret != "" {
		strategies = append(strategies, auth.NewHMACStrategy([]byte(cfg.JWTSecret), cfg.Issuer, cfg.Leeway))
	}
	if cfg.OIDCIssuerURL != "" {
		oidcStrategy, err := auth.NewOIDCStrategy(ctx, auth.OIDCConfig{
			IssuerURL:   cfg.OIDCIssuerURL,
			ClientID:    cfg.OIDCClientID,
			JWKSURL:     cfg.OIDCJWKSURL,
			SigningAlgs: cfg.OIDCSigningAlgs,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to configure OIDC verification: %w", err)
		}
		strategies = append(strategies, oidcStrategy)
	}
	logger.WithField("strategies", len(strategies)).Info("Token verifier configured")
	return auth.NewVerifier(auth.NewRevocationList(store), logger, strategies...), nil
}

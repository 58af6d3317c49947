// Package app assembles the application: configuration, logging,
// metrics, the license manager and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"golang.org/x/sync/errgroup"

	"profileapi/internal/config"
	"profileapi/internal/infrastructure"
	"profileapi/internal/license"
	appmiddleware "profileapi/internal/middleware"
	"profileapi/internal/security"
	"profileapi/internal/services"
	transporthttp "profileapi/internal/transport/http"
)

// Application holds the assembled components of the service
type Application struct {
	cfg    *config.Config
	logger *slog.Logger
	otel   *infrastructure.OTelProviders
	server *http.Server

	manager    *license.Manager
	licenseSvc services.LicenseService
	audit      license.AuditStore
}

// New builds the application from configuration. All dependencies are
// constructed here and injected; no package holds global state besides
// the logger.
func New(cfg *config.Config) (*Application, error) {
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	otelProviders, err := infrastructure.InitializeOTel(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	fingerprints := security.NewFingerprinter()
	binding := security.NewBindingStore(cfg.License.BindingFile, fingerprints, logger)
	repo := license.NewFileRepository(cfg.License.LicenseFile)

	audit, err := buildAuditStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	metrics, err := license.NewMetrics(otelProviders.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create license metrics: %w", err)
	}

	manager := license.NewManager(license.ManagerConfig{
		Repository:   repo,
		Binding:      binding,
		Fingerprints: fingerprints,
		Audit:        audit,
		Logger:       logger,
		Metrics:      metrics,
	})

	licenseSvc := services.NewLicenseService(manager, cfg.License.CompanySecret, logger)

	app := &Application{
		cfg:        cfg,
		logger:     logger,
		otel:       otelProviders,
		manager:    manager,
		licenseSvc: licenseSvc,
		audit:      audit,
	}

	router, err := app.buildRouter()
	if err != nil {
		return nil, err
	}

	app.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return app, nil
}

// buildAuditStore picks the audit backend: MongoDB when configured,
// otherwise an in-process store so validation history still works.
func buildAuditStore(cfg *config.Config, logger *slog.Logger) (license.AuditStore, error) {
	if cfg.License.MongoURI == "" {
		logger.Info("no mongodb configured, using in-memory audit store")
		return license.NewMemoryAuditStore(), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	store, err := license.Connect(ctx, cfg.License.MongoURI, cfg.License.MongoDatabase)
	if err != nil {
		return nil, fmt.Errorf("failed to connect audit store: %w", err)
	}
	logger.Info("mongodb audit store connected",
		slog.String("database", cfg.License.MongoDatabase))
	return store, nil
}

// buildRouter assembles the chi router with the license gate wired in
func (a *Application) buildRouter() (chi.Router, error) {
	token, err := appmiddleware.NewEnforcementToken()
	if err != nil {
		return nil, err
	}

	enforcer := appmiddleware.NewEnforcer(
		a.manager,
		a.cfg.License.CompanySecret,
		a.cfg.License.Enforcement,
		token,
		a.logger,
	)
	if enforcerMetrics, merr := appmiddleware.NewEnforcerMetrics(a.otel.Meter); merr == nil {
		enforcer.SetMetrics(enforcerMetrics)
	} else {
		a.logger.Warn("enforcer metrics unavailable", slog.String("error", merr.Error()))
	}
	guard := appmiddleware.NewGuard(token, a.logger)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(traceMiddleware)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/healthz", a.handleHealth)
	r.Method(http.MethodGet, "/metrics", a.otel.PrometheusHTTP)

	licenseHandler := transporthttp.NewLicenseHandler(a.licenseSvc, a.logger)

	// License management stays outside the gate: an unlicensed machine
	// must still be able to check status and install a license.
	r.Route("/api/license", func(r chi.Router) {
		if a.cfg.Security.RateLimit.Enabled {
			limiter := appmiddleware.NewRateLimiter(
				a.cfg.Security.RateLimit.RPS,
				a.cfg.Security.RateLimit.Burst,
				a.logger,
			)
			r.Use(limiter.Handler)
		}
		r.Mount("/", licenseHandler.Routes())
	})

	// Everything else under /api requires a valid license. The guard
	// runs after the enforcer and rejects any route wired around it.
	r.Route("/api/profile", func(r chi.Router) {
		r.Use(enforcer.Handler)
		r.Use(guard.Handler)
		r.Get("/me", a.handleProfileMe)
	})

	return r, nil
}

// traceMiddleware stamps every request with a trace ID so log entries
// emitted under that context carry it.
func traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := infrastructure.WithTraceID(r.Context(), infrastructure.NewTraceID())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// handleHealth reports process liveness. Deliberately outside the
// license gate so orchestrators can probe an unlicensed instance.
func (a *Application) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleProfileMe returns the licensed employee for the request
func (a *Application) handleProfileMe(w http.ResponseWriter, r *http.Request) {
	employee, ok := appmiddleware.EmployeeFromContext(r.Context())
	if !ok {
		// Enforcement disabled: there is no employee identity to report.
		render.JSON(w, r, map[string]any{"enforcement": false})
		return
	}
	render.JSON(w, r, employee)
}

// Run starts the HTTP server and blocks until the context is canceled
// or the server fails.
func (a *Application) Run(ctx context.Context) error {
	if a.cfg.License.Enforcement {
		if !a.licenseSvc.ValidateStartup(ctx) {
			a.logger.Warn("starting without a valid license; protected routes will reject requests")
		}
	} else {
		a.logger.Warn("license enforcement is disabled")
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("http server listening",
			slog.String("addr", a.server.Addr),
			slog.Bool("enforcement", a.cfg.License.Enforcement))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		return a.shutdown()
	})

	return g.Wait()
}

// shutdown stops the server and releases resources in order
func (a *Application) shutdown() error {
	a.logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown: %w", err))
	}
	if closer, ok := a.audit.(interface{ Close(context.Context) error }); ok {
		if err := closer.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("audit store close: %w", err))
		}
	}
	if err := a.otel.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
	}
	if err := infrastructure.CloseLogFile(); err != nil {
		errs = append(errs, fmt.Errorf("log file close: %w", err))
	}
	return errors.Join(errs...)
}

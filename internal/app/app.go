package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/cooper437/commodities-research/internal/config"
	apierrors "github.com/cooper437/commodities-research/internal/errors"
	"github.com/cooper437/commodities-research/internal/infrastructure"
	customMiddleware "github.com/cooper437/commodities-research/internal/middleware"
	"github.com/cooper437/commodities-research/internal/operations"
	"github.com/cooper437/commodities-research/internal/scheduler"
	"github.com/cooper437/commodities-research/internal/services"
	handlers "github.com/cooper437/commodities-research/internal/transport/http"
	ws "github.com/cooper437/commodities-research/internal/websocket"
)

// BuildTime is stamped by the release build; the default marks a dev build
var BuildTime = time.Now().Format(time.RFC3339)

// Application is the research API server container
type Application struct {
	Config           *config.Config
	Paths            *config.Paths
	Router           *chi.Mux
	Server           *http.Server
	WebSocketHub     *ws.Hub
	Registry         *operations.Registry
	Manager          *operations.Manager
	DataService      *services.DataService
	OperationService *services.OperationService
	HealthService    *services.HealthService
	Scheduler        *scheduler.Scheduler
	Logger           *slog.Logger
	OTelProviders    *infrastructure.OTelProviders
	BusinessMetrics  *infrastructure.BusinessMetrics
	SystemMetrics    *infrastructure.SystemMetricsCollector
}

// NewApplication creates a new application instance with dependency injection
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("Application starting",
		slog.String("name", config.AppName),
		slog.String("version", config.AppVersion))

	paths, err := cfg.ResolvePaths()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve paths: %w", err)
	}
	if err := paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to ensure directories: %w", err)
	}
	paths.LogPathResolution()

	// Missing raw data is not fatal: the API still serves whatever is
	// built and readiness reports the gap.
	if err := paths.ValidateRawDirectories(); err != nil {
		logger.Warn("Raw datasets not found",
			slog.String("error", err.Error()),
			slog.String("action", "place exports under data/raw before running the pipeline"))
	}

	otelProviders, err := infrastructure.InitializeOTel(infrastructure.DefaultOTelConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	if err := ws.InitOTelMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize WebSocket metrics: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Paths:         paths,
		Logger:        logger,
		OTelProviders: otelProviders,
	}

	if err := app.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.setupRouter()
	app.createServer()

	return app, nil
}

// initializeServices initializes all application services
func (a *Application) initializeServices() error {
	hub := ws.NewHub(a.Logger)
	hub.Start()
	a.WebSocketHub = hub

	businessMetrics, err := infrastructure.CreateBusinessMetrics(a.OTelProviders.Meter)
	if err != nil {
		return fmt.Errorf("failed to create business metrics: %w", err)
	}
	a.BusinessMetrics = businessMetrics

	if a.OTelProviders.Meter != nil {
		collector, err := infrastructure.NewSystemMetricsCollector(a.OTelProviders.Meter, 30*time.Second)
		if err != nil {
			a.Logger.Warn("System metrics collection disabled",
				slog.String("error", err.Error()))
		} else {
			a.SystemMetrics = collector
		}
	}

	registry := operations.NewRegistry()
	manager := operations.NewManager(hub, registry, operations.NewConfig(), businessMetrics, a.Logger)
	if err := operations.RegisterResearchSteps(registry, a.Config, a.Paths, a.Logger, operations.StepOptions{
		StatusBroadcaster: manager.Broadcaster(),
	}); err != nil {
		return fmt.Errorf("failed to register pipeline steps: %w", err)
	}
	a.Registry = registry
	a.Manager = manager

	dataService, err := services.NewDataServiceWithLogger(a.Config, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize data service: %w", err)
	}
	a.DataService = dataService

	operationService, err := services.NewOperationService(manager, registry, a.Paths, hub, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize operation service: %w", err)
	}
	a.OperationService = operationService

	a.HealthService = services.NewHealthService(config.AppVersion, BuildTime, a.Paths, manager, hub, a.Logger)

	if a.Config.Schedule.Enabled {
		refresh, err := scheduler.New(operationService, a.Config.Schedule.Every, a.Logger)
		if err != nil {
			return fmt.Errorf("failed to create refresh scheduler: %w", err)
		}
		a.Scheduler = refresh
	}

	return nil
}

// setupRouter configures the HTTP router with all routes
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	// Only middleware that leaves the ResponseWriter unwrapped may run
	// before the WebSocket route, or the upgrade hijack fails
	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)

	wsHandler := handlers.NewWebSocketHandler(
		a.WebSocketHub,
		a.Config.Security.AllowedOrigins,
		a.Config.Logging.Development,
		a.Logger,
	)
	r.With(customMiddleware.WebSocketTraceMiddleware(a.Logger)).HandleFunc("/ws", wsHandler.ServeHTTP)

	errorHandler := apierrors.NewErrorHandler(a.Logger, a.Config.Logging.Development)
	r.NotFound(errorHandler.NotFound)
	r.MethodNotAllowed(errorHandler.MethodNotAllowed)

	// Everything else gets the full middleware chain
	r.Group(func(r chi.Router) {
		otelMiddleware, err := customMiddleware.NewOTelMiddleware(a.OTelProviders)
		if err != nil {
			a.Logger.Error("Failed to create OpenTelemetry middleware", slog.String("error", err.Error()))
		} else {
			r.Use(otelMiddleware.Handler)
		}

		r.Use(customMiddleware.BusinessMetricsMiddleware(a.BusinessMetrics))
		r.Use(customMiddleware.StructuredLogger(a.Logger))
		r.Use(customMiddleware.Recoverer(a.Logger))
		r.Use(customMiddleware.SecurityHeaders)
		r.Use(customMiddleware.Compress(5))
		r.Use(customMiddleware.CORS(a.corsConfig()))

		if a.Config.Security.RateLimit.Enabled {
			r.Use(customMiddleware.NewRateLimiter(
				a.Config.Security.RateLimit.RPS,
				a.Config.Security.RateLimit.Burst,
				a.Logger,
			).Handler)
		}

		a.setupAPIRoutes(r, errorHandler, wsHandler)
	})

	// Prometheus endpoint stays outside the middleware chain so scrapes
	// are never rate limited or logged per request
	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
	}

	a.Router = r
}

// setupAPIRoutes configures API endpoints
func (a *Application) setupAPIRoutes(r chi.Router, errorHandler *apierrors.ErrorHandler, wsHandler *handlers.WebSocketHandler) {
	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		// Standard timeout for read endpoints
		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.Timeout(a.Config.Server.ReadTimeout, a.Logger))

			healthHandler := handlers.NewHealthHandler(a.HealthService, a.Logger)
			r.Mount("/health", healthHandler.Routes())
			r.Get("/version", healthHandler.Version)

			dataHandler := handlers.NewDataHandler(a.DataService, a.Logger, errorHandler)
			r.Mount("/datasets", dataHandler.Routes())
			r.Get("/workbook", dataHandler.DownloadWorkbook)

			r.Get("/websocket/stats", wsHandler.Stats)
		})

		// Operations get the long operation timeout; a full pipeline run
		// over years of minute bars outlives any request timeout
		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.Timeout(a.Config.Server.OperationTimeout, a.Logger))

			operationsHandler := handlers.NewOperationsHandler(a.OperationService, a.Logger)
			r.Mount("/operations", operationsHandler.Routes())
		})
	})
}

// corsConfig returns the CORS configuration for the API routes
func (a *Application) corsConfig() customMiddleware.CORSConfig {
	allowed := []string{
		fmt.Sprintf("http://localhost:%d", a.Config.Server.Port),
		fmt.Sprintf("http://127.0.0.1:%d", a.Config.Server.Port),
	}
	if a.Config.Security.EnableCORS {
		allowed = append(allowed, a.Config.Security.AllowedOrigins...)
	}
	if a.Config.Logging.Development {
		// Local notebook and dashboard dev servers
		allowed = append(allowed, "http://localhost:3000", "http://127.0.0.1:3000")
	}

	return customMiddleware.CORSConfig{
		AllowedOrigins: allowed,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept",
			"Content-Type",
			"X-Request-ID",
			"X-Requested-With",
		},
		ExposedHeaders: []string{
			"X-Request-ID",
		},
		AllowCredentials: true,
		MaxAge:           300,
		Logger:           a.Logger,
	}
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
}

// Start starts the HTTP server and the refresh scheduler. The cancel func
// is invoked when the server fails, so Run can unwind.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.Logger.InfoContext(ctx, "Starting application",
		slog.String("name", config.AppName),
		slog.String("version", config.AppVersion),
		slog.Int("port", a.Config.Server.Port),
		slog.String("level", a.Config.Logging.Level))

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.ErrorContext(ctx, "Server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	if a.Scheduler != nil {
		a.Scheduler.Start()
	}

	if a.SystemMetrics != nil {
		go a.SystemMetrics.Start(ctx)
	}

	if err := a.performStartupHealthCheck(ctx); err != nil {
		a.Logger.WarnContext(ctx, "Startup health check warnings", slog.String("warnings", err.Error()))
	}

	a.Logger.InfoContext(ctx, "Application started",
		slog.String("address", fmt.Sprintf("http://localhost:%d", a.Config.Server.Port)),
		slog.Bool("schedule_enabled", a.Scheduler != nil))

	return nil
}

// Stop gracefully stops the application
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	if a.Scheduler != nil {
		if err := a.Scheduler.Stop(); err != nil {
			a.Logger.ErrorContext(ctx, "Error stopping scheduler", slog.String("error", err.Error()))
		}
	}

	if a.SystemMetrics != nil {
		a.SystemMetrics.Stop()
	}

	// Cancel operations still running so their contexts unwind before the
	// broadcaster goes away
	for _, state := range a.Manager.ListOperations() {
		if err := a.Manager.CancelOperation(state.ID); err != nil {
			a.Logger.ErrorContext(ctx, "Error cancelling operation",
				slog.String("operation_id", state.ID),
				slog.String("error", err.Error()))
		}
	}

	a.WebSocketHub.Stop()
	a.Manager.Stop()

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
		}
	}

	a.Logger.InfoContext(ctx, "Application shutdown complete")
	return nil
}

// Run runs the application until interrupted or the server fails
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	select {
	case <-sigChan:
		a.Logger.InfoContext(ctx, "Received interrupt signal")
	case <-ctx.Done():
		a.Logger.InfoContext(ctx, "Server stopped, shutting down")
	}

	// ctx may already be cancelled, so shutdown runs on a fresh context
	return a.Stop(context.Background())
}

// performStartupHealthCheck verifies the workspace directories are writable
func (a *Application) performStartupHealthCheck(ctx context.Context) error {
	var warnings []string

	directories := map[string]string{
		"data":      a.Paths.DataDir,
		"processed": a.Paths.ProcessedDir,
		"reports":   a.Paths.ReportsDir,
		"logs":      a.Paths.LogsDir,
	}

	for name, dir := range directories {
		testFile := filepath.Join(dir, ".write_test")
		if err := os.WriteFile(testFile, []byte("test"), 0644); err != nil {
			warnings = append(warnings, fmt.Sprintf("%s directory not writable: %s", name, dir))
		} else {
			os.Remove(testFile)
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("startup health check warnings: %s", strings.Join(warnings, "; "))
	}

	a.Logger.InfoContext(ctx, "Startup health check passed")
	return nil
}

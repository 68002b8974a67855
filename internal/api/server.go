package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/mingafix/mingafix/internal/config"
	"github.com/mingafix/mingafix/internal/database"
	"github.com/mingafix/mingafix/internal/middleware"
	"github.com/mingafix/mingafix/internal/observability"
	"github.com/mingafix/mingafix/internal/ratelimit"
	"github.com/mingafix/mingafix/internal/reports"
	"github.com/mingafix/mingafix/internal/storage"
)

// Server is the HTTP server hosting the report API.
type Server struct {
	app     *fiber.App
	config  *config.Config
	db      *database.Connection
	tracer  *observability.Tracer
	metrics *observability.Metrics
	limiter *ratelimit.Limiter
	storage *storage.Service

	reportHandler  *ReportHandler
	graphqlHandler *GraphQLHandler

	startTime time.Time
}

// NewServer wires the full API over a PostgreSQL-backed store.
func NewServer(cfg *config.Config, db *database.Connection) (*Server, error) {
	metrics := observability.NewMetrics()
	db.SetMetrics(metrics)
	return newServer(cfg, db, reports.NewPostgresStore(db), metrics)
}

// newServer finishes construction over any store. Tests use it with a
// memory store and nil metrics.
func newServer(cfg *config.Config, db *database.Connection, store reports.Store, metrics *observability.Metrics) (*Server, error) {
	app := fiber.New(fiber.Config{
		ServerHeader:          "Mingafix",
		AppName:               "Mingafix API",
		BodyLimit:             cfg.Server.BodyLimit,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		DisableStartupMessage: !cfg.Debug,
		ErrorHandler:          errorHandler,
	})

	tracer, err := observability.NewTracer(context.Background(), observability.TracerConfig{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
		Insecure:    cfg.Tracing.Insecure,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, tracing disabled")
	}

	storageService, err := storage.NewService(&cfg.Storage, cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	if err := storageService.EnsureBucket(context.Background()); err != nil {
		log.Warn().Err(err).Msg("Failed to ensure photo bucket")
	}

	limitStore, err := ratelimit.NewStore(&cfg.RateLimit, poolOf(db))
	if err != nil {
		return nil, err
	}
	limiter := ratelimit.NewLimiter(limitStore)
	if metrics != nil {
		limiter.OnStoreError(metrics.RecordRateLimitStoreError)
	}

	policy := ratelimit.Policy{
		Max:    cfg.RateLimit.CreateMax,
		Window: cfg.RateLimit.CreateWindow,
	}

	graphqlHandler, err := NewGraphQLHandler(store, limiter, policy, metrics)
	if err != nil {
		return nil, err
	}

	s := &Server{
		app:            app,
		config:         cfg,
		db:             db,
		tracer:         tracer,
		metrics:        metrics,
		limiter:        limiter,
		storage:        storageService,
		reportHandler:  NewReportHandler(store, storageService, metrics),
		graphqlHandler: graphqlHandler,
		startTime:      time.Now(),
	}

	s.setupMiddlewares()
	s.setupRoutes(policy)

	return s, nil
}

// setupMiddlewares sets up global middlewares
func (s *Server) setupMiddlewares() {
	s.app.Use(requestid.New())

	if s.config.Tracing.Enabled && s.tracer != nil && s.tracer.IsEnabled() {
		s.app.Use(middleware.TracingMiddleware(middleware.DefaultTracingConfig()))
	}

	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: s.config.Debug,
	}))

	s.app.Use(middleware.StructuredLogger())

	if s.metrics != nil {
		s.app.Use(s.metrics.MetricsMiddleware())
	}

	s.app.Use(cors.New())

	s.app.Use(compress.New(compress.Config{
		Level: compress.LevelDefault,
	}))
}

// setupRoutes sets up all routes
func (s *Server) setupRoutes(policy ratelimit.Policy) {
	s.app.Get("/", s.handleIndex)
	s.app.Get("/health", s.handleHealth)

	if s.metrics != nil {
		s.app.Get("/metrics", s.metrics.Handler())
	}

	createLimit := middleware.RateLimitByUser(middleware.RateLimiterConfig{
		Limiter:  s.limiter,
		Policy:   policy,
		Endpoint: "create_report",
		Metrics:  s.metrics,
	})

	s.app.Post("/reports", createLimit, s.reportHandler.HandleCreate)
	s.app.Get("/reports", s.reportHandler.HandleList)
	s.app.Get("/reports/nearby", s.reportHandler.HandleNearby)
	s.app.Get("/reports/mine", s.reportHandler.HandleMyReports)
	s.app.Get("/reports/:id", s.reportHandler.HandleGet)
	s.app.Patch("/reports/:id/status", s.reportHandler.HandleUpdateStatus)

	s.app.Get("/statistics", s.reportHandler.HandleStatistics)

	s.app.Post("/graphql", s.graphqlHandler.HandleGraphQL)
	s.app.Get("/graphql", s.graphqlHandler.HandlePlayground)

	// Locally stored photos are served straight from disk
	if local, ok := s.storage.Provider.(*storage.LocalStorage); ok {
		s.app.Static("/storage", local.BasePath())
	}

	// Deletion is a development escape hatch, never exposed in production
	if s.config.Debug {
		s.app.Post("/reports/test", s.reportHandler.HandleTestCreate)
		s.app.Delete("/reports/:id", s.reportHandler.HandleDelete)
	}
}

// handleIndex describes the service
func (s *Server) handleIndex(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service": "Mingafix API",
		"version": "1.0.0",
		"endpoints": fiber.Map{
			"reports":    "/reports",
			"nearby":     "/reports/nearby",
			"statistics": "/statistics",
			"graphql":    "/graphql",
			"health":     "/health",
		},
	})
}

// handleHealth reports service and database health
func (s *Server) handleHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	dbHealthy := true
	if s.db != nil {
		if err := s.db.Health(ctx); err != nil {
			dbHealthy = false
			log.Error().Err(err).Msg("Database health check failed")
		}
	}

	storageHealthy := s.storage.Provider.Health(ctx) == nil

	status := "ok"
	httpStatus := fiber.StatusOK
	if !dbHealthy {
		status = "degraded"
		httpStatus = fiber.StatusServiceUnavailable
	}

	if s.metrics != nil {
		s.metrics.UpdateUptime(s.startTime)
		if s.db != nil {
			stat := s.db.Stats()
			s.metrics.UpdateDBStats(stat.TotalConns(), stat.IdleConns(), stat.MaxConns())
		}
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"services": fiber.Map{
			"database": dbHealthy,
			"storage":  storageHealthy,
		},
		"timestamp": time.Now().UTC(),
	})
}

// Start starts listening on the configured address
func (s *Server) Start() error {
	return s.app.Listen(s.config.Server.Address)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.limiter.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close rate limit store")
	}

	if s.tracer != nil {
		if err := s.tracer.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to shut down tracer")
		}
	}

	return s.app.ShutdownWithContext(ctx)
}

// App exposes the underlying Fiber app, used by tests
func (s *Server) App() *fiber.App {
	return s.app
}

// errorHandler renders uncaught errors in the response envelope
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	if code >= 500 {
		log.Error().Err(err).Str("path", c.Path()).Msg("Server error")
	}

	return c.Status(code).JSON(fiber.Map{
		"success": false,
		"code":    CodeInternalError,
		"message": message,
	})
}

// poolOf returns the connection pool, nil for database-less test servers
func poolOf(db *database.Connection) *pgxpool.Pool {
	if db == nil {
		return nil
	}
	return db.Pool()
}

// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It connects handlers, middleware, and routes.
// It decides:
// - Which URL patterns map to which handler functions
// - What middleware runs on which routes
// - In what order things start and stop
//
// DEPENDENCY INJECTION FLOW:
// main.go loads *config.Config and a logger, then:
//
//	Server.New() creates: sqldb.DB → stores → services → handlers
//	                      ingest.Store + Pipeline + Janitor
//
// This is the "composition root" pattern: all dependencies are wired
// in one place (New/setupRoutes), rather than scattered across the codebase.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/sakif/company-ingest/internal/auth"
	"github.com/sakif/company-ingest/internal/config"
	"github.com/sakif/company-ingest/internal/handler"
	"github.com/sakif/company-ingest/internal/ingest"
	"github.com/sakif/company-ingest/internal/middleware"
	"github.com/sakif/company-ingest/internal/repository/sqldb"
	"github.com/sakif/company-ingest/internal/service"
)

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database pool, the ingest workers and the janitor.
// Start releases them in reverse order of use once HTTP has drained.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger

	db       *sqldb.DB
	pipeline *ingest.Pipeline
	janitor  *ingest.Janitor

	authService    *service.AuthService
	ingestService  *service.IngestService
	companyService *service.CompanyService
}

// New opens the database and wires every layer. Nothing is started yet:
// no workers, no janitor, no listener.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	// === DATABASE ===
	db, err := sqldb.Open(ctx, cfg.Database.Driver, cfg.Database.DSN(), sqldb.Options{
		MaxOpenConns: cfg.Database.MaxOpenConns,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s, err := build(cfg, logger, db)
	if err != nil {
		db.Close() // Clean up DB if wiring fails
		return nil, err
	}
	return s, nil
}

func build(cfg *config.Config, logger *slog.Logger, db *sqldb.DB) (*Server, error) {
	// === AUTH ===
	tokens, err := auth.NewTokenService(auth.TokenConfig{
		Secret:     cfg.Auth.JWTSecret,
		Algorithm:  cfg.Auth.JWTAlgorithm,
		Issuer:     cfg.Auth.JWTIssuer,
		AccessTTL:  cfg.Auth.AccessTokenTTL,
		RefreshTTL: cfg.Auth.RefreshTokenTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}
	passwords := auth.NewPasswordService(cfg.Auth.PasswordIterations)

	// === INGEST ===
	store, err := ingest.NewStore(cfg.Ingest.UploadDir)
	if err != nil {
		return nil, fmt.Errorf("creating upload store: %w", err)
	}

	ingestLog := logger.With(slog.String("component", "ingest"))
	pipeline := ingest.NewPipeline(ingest.PipelineConfig{
		Workers:   cfg.Ingest.Workers,
		QueueSize: cfg.Ingest.QueueSize,
		BatchSize: cfg.Ingest.BatchSize,
	}, db.Jobs(), db.Companies(), ingestLog)

	janitor, err := ingest.NewJanitor(cfg.Ingest.JanitorSchedule, cfg.Ingest.Retention, db.Jobs(), store, ingestLog)
	if err != nil {
		return nil, fmt.Errorf("creating upload janitor: %w", err)
	}

	s := &Server{
		router:   chi.NewRouter(),
		config:   cfg,
		logger:   logger,
		db:       db,
		pipeline: pipeline,
		janitor:  janitor,

		authService:    service.NewAuthService(db.Users(), tokens, passwords, cfg.Auth.LoginErrorFlags, logger),
		ingestService:  service.NewIngestService(db.Jobs(), store, pipeline, logger),
		companyService: service.NewCompanyService(db.Companies(), logger),
	}
	s.setupRoutes()
	return s, nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET    /healthz                          → DB ping
// POST   /auth/register/                   → create account
// POST   /auth/login/                      → access + refresh tokens
// POST   /auth/refresh_token/              → new access token
// GET    /auth/me                          → current user         [bearer]
// POST   /upload_csv/upload-csv/           → upload a CSV         [bearer]
// GET    /upload_csv/jobs                  → caller's jobs        [bearer]
// GET    /upload_csv/jobs/{id}             → one job              [bearer]
// POST   /upload_csv/jobs/{id}/cancel      → cancel a job         [bearer]
// GET    /query/company-profiles/          → filtered count       [bearer]
//
// MIDDLEWARE ORDER MATTERS:
// 1. RequestID: assigns unique ID to each request (for tracing)
// 2. RealIP: extracts real client IP from proxy headers
// 3. Logger: logs each request with timing info and the request ID
// 4. Recoverer: catches panics and returns 500 instead of crashing
// CORS wraps the whole router in Handler() so preflights never reach chi.
func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	healthHandler := handler.NewHealthHandler(s.db, s.logger)
	authHandler := handler.NewAuthHandler(s.authService)
	uploadHandler := handler.NewUploadHandler(s.ingestService, s.config.Ingest.MaxUploadBytes, s.logger)
	queryHandler := handler.NewQueryHandler(s.companyService)

	requireAuth := auth.RequireAuth(s.authService, s.logger)

	s.router.Get("/healthz", healthHandler.HandleHealth)

	s.router.Route("/auth", func(r chi.Router) {
		r.Post("/register/", authHandler.HandleRegister)
		r.Post("/login/", authHandler.HandleLogin)
		r.Post("/refresh_token/", authHandler.HandleRefresh)
		r.With(requireAuth).Get("/me", authHandler.HandleMe)
	})

	s.router.Route("/upload_csv", func(r chi.Router) {
		r.Use(requireAuth)
		r.Post("/upload-csv/", uploadHandler.HandleUpload)
		r.Get("/jobs", uploadHandler.HandleListJobs)
		r.Get("/jobs/{id}", uploadHandler.HandleGetJob)
		r.Post("/jobs/{id}/cancel", uploadHandler.HandleCancelJob)
	})

	s.router.Route("/query", func(r chi.Router) {
		r.Use(requireAuth)
		r.Get("/company-profiles/", queryHandler.HandleCount)
	})
}

// Handler returns the full HTTP handler: router plus CORS.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: s.config.CORS.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         600,
	})
	return c.Handler(s.router)
}

// startBackground launches the ingest workers, requeues work left by a
// previous process and starts the janitor.
func (s *Server) startBackground(ctx context.Context) error {
	s.pipeline.Start()
	if err := s.pipeline.Recover(ctx); err != nil {
		return fmt.Errorf("recovering ingest jobs: %w", err)
	}
	s.janitor.Start()
	return nil
}

// stopBackground stops the workers, then the janitor, then closes the DB.
// Running jobs are canceled if ctx expires first.
func (s *Server) stopBackground(ctx context.Context) {
	s.pipeline.Stop(ctx)
	s.janitor.Stop(ctx)
	if err := s.db.Close(); err != nil {
		s.logger.Error("closing database", slog.String("error", err.Error()))
	}
}

// Start starts background work and the HTTP server, and blocks until a
// signal or a server error.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections and drain in-flight requests
// 2. Stop the ingest pipeline (running jobs canceled at the deadline)
// 3. Stop the janitor
// 4. Close the database
//
// All four share one SHUTDOWN_TIMEOUT budget.
func (s *Server) Start() error {
	if err := s.startBackground(context.Background()); err != nil {
		s.stopBackground(context.Background())
		return err
	}

	// No Read/WriteTimeout: a large upload legitimately takes minutes.
	// ReadHeaderTimeout still guards against slow-loris clients.
	srv := &http.Server{
		Addr:              s.config.Addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.String("addr", srv.Addr),
			slog.String("env", s.config.Server.Env),
			slog.String("database", s.db.Driver()),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	var runErr error
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil && runErr == nil {
		runErr = fmt.Errorf("graceful shutdown failed: %w", err)
	}
	s.stopBackground(ctx)

	if runErr == nil {
		s.logger.Info("server stopped gracefully")
	}
	return runErr
}

// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It is the only place that knows every
// concrete type:
//
//	sqlite.DB ──► ledger.Ledger ──► feed.Feed
//	    │              │  OnChange(feed) │
//	    ▼              ▼                 ▼
//	services (auth, project, badge, admin, user)   leaderboard handler
//	    ▼
//	handlers ──► chi routes
//
// This is the "composition root" pattern: all dependencies are wired in one
// place (New/setupRoutes), rather than scattered across the codebase.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sakif/skillboard/internal/auth"
	"github.com/sakif/skillboard/internal/feed"
	"github.com/sakif/skillboard/internal/handler"
	"github.com/sakif/skillboard/internal/ledger"
	"github.com/sakif/skillboard/internal/metrics"
	"github.com/sakif/skillboard/internal/middleware"
	"github.com/sakif/skillboard/internal/model"
	sqliteRepo "github.com/sakif/skillboard/internal/repository/sqlite"
	"github.com/sakif/skillboard/internal/service"
)

// Config holds server configuration. cmd/skillboard fills it from
// internal/config.
type Config struct {
	Port   int
	DBPath string

	JWTSecret          string // empty disables every authenticated route
	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string

	LeaderboardCeiling int
	SubscriberBuffer   int
	RequireKnownUser   bool
	StoreTimeout       time.Duration

	RateLimitRPS   float64
	RateLimitBurst int
}

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database connection and the leaderboard feed. On
// shutdown the feed is closed first (ending live streams and its refresh
// goroutines), then the database.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger

	db       *sqliteRepo.DB
	ledger   *ledger.Ledger
	feed     *feed.Feed
	registry *prometheus.Registry
}

// New opens the database and wires every layer.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s, err := newWithDB(cfg, db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func newWithDB(cfg Config, db *sqliteRepo.DB, logger *slog.Logger) (*Server, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	// The ledger checks users against the users table and stamps each new
	// score record with the user's profile category.
	l := ledger.New(db, db, ledger.Config{
		RequireKnownUser: cfg.RequireKnownUser,
		StoreTimeout:     cfg.StoreTimeout,
	}, m, logger)

	f := feed.New(l, db, feed.Config{
		Ceiling:          cfg.LeaderboardCeiling,
		SubscriberBuffer: cfg.SubscriberBuffer,
	}, m, logger)
	l.OnChange(f)

	s := &Server{
		router:   chi.NewRouter(),
		config:   cfg,
		logger:   logger,
		db:       db,
		ledger:   l,
		feed:     f,
		registry: registry,
	}
	if err := s.setupRoutes(); err != nil {
		f.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// Handler returns the root HTTP handler. Tests drive it with httptest.
func (s *Server) Handler() http.Handler { return s.router }

// setupRoutes configures all middleware and route handlers.
//
// MIDDLEWARE ORDER MATTERS:
//  1. RequestID: assigns unique ID to each request (for tracing)
//  2. RealIP: extracts real client IP from proxy headers (the rate limiter keys on it)
//  3. otelhttp opens one server span per request, the parent of ledger and
//     feed spans; it runs before Logger so log lines carry the trace ID
//  4. Logger: logs each request with timing info
//  5. Recoverer: catches panics and returns 500 instead of crashing
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(otelhttp.NewMiddleware("skillboard",
		// The stream needs the raw ResponseWriter to lift its write deadline.
		otelhttp.WithFilter(func(r *http.Request) bool {
			return !strings.HasSuffix(r.URL.Path, "/leaderboard/stream")
		}),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	))
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))

	// === Services ===
	projectService := service.NewProjectService(s.db, s.db, s.ledger, s.logger)
	badgeService := service.NewBadgeService(s.db, s.db, s.ledger, s.logger)
	adminService := service.NewAdminService(s.ledger, s.db, s.logger)
	problemService := service.NewProblemService(s.db, s.db, s.db, s.logger)
	userService := service.NewUserService(s.db, s.ledger)

	// === Handlers ===
	leaderboardHandler := handler.NewLeaderboardHandler(s.feed, s.logger)
	projectHandler := handler.NewProjectHandler(projectService, s.logger)
	badgeHandler := handler.NewBadgeHandler(badgeService, s.logger)
	adminHandler := handler.NewAdminHandler(adminService, s.logger)
	problemHandler := handler.NewProblemHandler(problemService, s.logger)
	userHandler := handler.NewUserHandler(userService, s.logger)

	writes := middleware.RateLimit(middleware.NewIPRateLimiter(s.config.RateLimitRPS, s.config.RateLimitBurst))

	// === Auth (optional) ===
	// Without JWT_SECRET the read-only API still works; every route that
	// needs a caller identity is left unregistered.
	var tokens *auth.TokenService
	var authHandler *handler.AuthHandler
	if s.config.JWTSecret != "" {
		var err error
		tokens, err = auth.NewTokenService(s.config.JWTSecret)
		if err != nil {
			return fmt.Errorf("creating token service: %w", err)
		}

		var github handler.GitHubAuthenticator
		if s.config.GitHubClientID != "" {
			github = auth.NewGitHubProvider(s.config.GitHubClientID, s.config.GitHubClientSecret, s.config.GitHubCallbackURL)
		}

		authService := service.NewAuthService(s.db, tokens, auth.NewPasswordService(), s.ledger, s.logger)
		authHandler = handler.NewAuthHandler(authService, github, s.logger)

		s.router.Route("/auth", func(r chi.Router) {
			r.With(writes).Post("/signup", authHandler.HandleSignup)
			r.With(writes).Post("/login", authHandler.HandleLogin)
			r.Post("/logout", authHandler.HandleLogout)
			if github != nil {
				r.Get("/github/login", authHandler.HandleGitHubLogin)
				r.Get("/github/callback", authHandler.HandleGitHubCallback)
			}
		})
	} else {
		s.logger.Warn("JWT_SECRET not set, serving the read-only API")
	}

	// === API ===
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/leaderboard", leaderboardHandler.HandleTop)
		r.Get("/leaderboard/stream", leaderboardHandler.HandleStream)

		r.Get("/users/search", userHandler.HandleSearch)
		r.Get("/users/{id}/score", userHandler.HandleScore)
		r.Get("/users/{id}/badges", badgeHandler.HandleUserBadges)

		r.Get("/projects", projectHandler.HandleList)
		r.Get("/projects/search", projectHandler.HandleSearch)
		r.Get("/projects/{id}", projectHandler.HandleGet)

		r.Get("/problems", problemHandler.HandleList)
		r.Get("/problems/{id}", problemHandler.HandleGet)

		r.Get("/badges", badgeHandler.HandleCatalog)

		if tokens == nil {
			r.With(writes).Post("/projects/{id}/view", projectHandler.HandleView)
			return
		}
		// Views count for anonymous visitors too; a logged-in owner is skipped.
		r.With(writes, auth.OptionalAuth(tokens)).Post("/projects/{id}/view", projectHandler.HandleView)

		// === Protected routes ===
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))
			r.Get("/me", authHandler.HandleMe)
			r.Put("/me", authHandler.HandleUpdateMe)
			r.Get("/leaderboard/me", leaderboardHandler.HandleMyRank)
			r.With(writes).Post("/projects", projectHandler.HandleUpload)
			r.With(writes).Post("/projects/{id}/like", projectHandler.HandleLike)

			r.With(writes, auth.RequireRole(model.RoleProfessional, model.RoleAdmin)).
				Post("/problems", problemHandler.HandleCreate)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(model.RoleAdmin))
				r.Post("/badges", badgeHandler.HandleAward)
				r.Post("/admin/adjustments", adminHandler.HandleAdjust)
				r.Get("/admin/activities", adminHandler.HandleActivities)
			})
		})
	})

	return nil
}

// handleHealth reports whether the database answers.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	if err := s.db.Ping(ctx); err != nil {
		s.logger.Warn("health check failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	w.Write([]byte(`{"status":"ok"}`))
}

// Close releases the feed and the database. Start calls it on shutdown;
// tests call it directly.
func (s *Server) Close() error {
	s.feed.Close()
	return s.db.Close()
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new HTTP connections
//  2. Close the feed, which ends every live leaderboard stream
//  3. Wait for in-flight requests to finish (30s timeout)
//  4. Close the database connection (flushes WAL, releases file lock)
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second, // the SSE handler lifts this per response
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		s.Close()
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	}

	// Streams block Shutdown until they return, so end them first.
	s.feed.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	if cerr := s.db.Close(); cerr != nil {
		s.logger.Error("closing database", slog.String("error", cerr.Error()))
	}
	if err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	s.logger.Info("server stopped gracefully")
	return nil
}

// Package server wires the router, middleware and handlers and runs the
// HTTP server.
//
// DEPENDENCY FLOW:
//
//	main: config → repository.Store + auth.Hasher → server.New
//	server.New: store → services → handlers → routes
//
// Handlers never see the store; services never see HTTP.
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
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sakif/daily-diet/internal/auth"
	"github.com/sakif/daily-diet/internal/handler"
	"github.com/sakif/daily-diet/internal/middleware"
	"github.com/sakif/daily-diet/internal/repository"
	"github.com/sakif/daily-diet/internal/service"
)

// Config holds what the server needs beyond its dependencies.
type Config struct {
	Addr                 string
	ServiceName          string
	SessionSweepInterval time.Duration
	LoginRatePerMinute   int
	LoginRateBurst       int
}

// Server owns the store from New until Start returns.
type Server struct {
	router  *chi.Mux
	config  Config
	logger  *slog.Logger
	store   repository.Store
	sweeper *service.SessionSweeper
}

func New(cfg Config, store repository.Store, hasher auth.Hasher, logger *slog.Logger) *Server {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "daily-diet"
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		store:   store,
		sweeper: service.NewSessionSweeper(store, cfg.SessionSweepInterval, logger),
	}
	s.setupRoutes(hasher)
	return s
}

// setupRoutes registers every endpoint.
//
// ROUTES:
// POST   /meals                             → create (mints an anonymous session if needed)
// GET    /meals                             → list with filters        [session]
// GET    /meals/total                       → count                    [session]
// GET    /meals/total/compliant             → count compliant          [session]
// GET    /meals/total/noncompliant          → count non-compliant      [session]
// GET    /meals/highest-compliant-streak    → longest day streak       [session]
// GET    /meals/{id}                        → one meal                 [session]
// PATCH  /meals/{id}                        → partial update           [session]
// DELETE /meals/{id}                        → delete                   [session]
// POST   /users                             → register                 [rate limited]
// DELETE /users/{id}                        → delete own account       [session of that user]
// POST   /services/login                    → login                    [rate limited]
// GET    /healthz                           → store ping
//
// Static segments win over {id} in chi's tree, so /meals/total never
// reaches HandleGet.
func (s *Server) setupRoutes(hasher auth.Hasher) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	authService := service.NewAuthService(s.store, s.store, hasher, s.logger)
	userService := service.NewUserService(s.store, hasher, s.logger)
	mealService := service.NewMealService(s.store, s.logger)

	mealHandler := handler.NewMealHandler(mealService, authService, s.logger)
	userHandler := handler.NewUserHandler(userService, s.logger)
	authHandler := handler.NewAuthHandler(authService, s.logger)
	healthHandler := handler.NewHealthHandler(s.store, s.logger)

	requireSession := auth.RequireSession(authService)
	optionalSession := auth.OptionalSession(authService)
	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		PerMinute: s.config.LoginRatePerMinute,
		Burst:     s.config.LoginRateBurst,
	})

	s.router.Get("/healthz", healthHandler.HandleHealth)

	s.router.With(optionalSession).Post("/meals", mealHandler.HandleCreate)
	s.router.Group(func(r chi.Router) {
		r.Use(requireSession)

		r.Get("/meals", mealHandler.HandleList)
		r.Get("/meals/total", mealHandler.HandleTotal)
		r.Get("/meals/total/compliant", mealHandler.HandleTotalCompliant)
		r.Get("/meals/total/noncompliant", mealHandler.HandleTotalNoncompliant)
		r.Get("/meals/highest-compliant-streak", mealHandler.HandleHighestStreak)
		r.Get("/meals/{id}", mealHandler.HandleGet)
		r.Patch("/meals/{id}", mealHandler.HandleUpdate)
		r.Delete("/meals/{id}", mealHandler.HandleDelete)
	})

	s.router.With(limiter.Middleware).Post("/users", userHandler.HandleCreate)
	s.router.With(optionalSession).Delete("/users/{id}", userHandler.HandleDelete)
	s.router.With(limiter.Middleware).Post("/services/login", authHandler.HandleLogin)
}

// Handler is the full middleware chain, including tracing.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, s.config.ServiceName,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

// Start serves until SIGINT or SIGTERM, then drains in-flight requests,
// stops the sweeper and closes the store.
func (s *Server) Start() error {
	defer s.store.Close()

	srv := &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.sweeper.Start()
	defer s.sweeper.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", slog.String("addr", s.config.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

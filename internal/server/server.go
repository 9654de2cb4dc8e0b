package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/palaver-chat/apiserver/config"
	"github.com/palaver-chat/apiserver/internal/handlers"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	app        *App
}

// New opens the configured backends and builds the HTTP server.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	app, err := OpenApp(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	router := NewRouter(app)

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		app:        app,
	}, nil
}

// NewRouter mounts every route over app.
func NewRouter(app *App) *chi.Mux {
	authMiddleware := handlers.RequireAuth(app.Evaluator)
	moderation := handlers.NewModerationHandler(app.Suspensions, app.Audit, app.Detector)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Handle("/metrics", promhttp.Handler())
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, app.Users, app.Sessions, authMiddleware)
	})
	router.Route("/authz", func(r chi.Router) {
		handlers.AuthzRouter(r, app.Evaluator, authMiddleware)
	})
	router.Route("/channels", func(r chi.Router) {
		handlers.ChannelRouter(r, app.Locks, app.AccessCodes, authMiddleware)
	})
	router.Route("/access-codes", func(r chi.Router) {
		handlers.AccessCodeRouter(r, app.AccessCodes, authMiddleware)
	})
	router.Route("/users", func(r chi.Router) {
		handlers.UserRouter(r, moderation, authMiddleware)
	})
	router.Route("/moderation", func(r chi.Router) {
		handlers.ModerationRouter(r, moderation, authMiddleware)
	})
	return router
}

func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	slog.Info("listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and then closes the backends.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if cerr := s.app.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

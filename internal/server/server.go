// Package server sets up the HTTP server, router, and all route definitions.
//
// This is the composition root: New assembles
//
//	repository.Store → services → Gate → handlers → routes
//
// Storage and the activity publisher are passed in so the same wiring runs
// over SQLite in production and the in-memory store in tests. Whoever
// opens the store closes it.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/microblog/internal/activity"
	"github.com/sakif/microblog/internal/auth"
	"github.com/sakif/microblog/internal/handler"
	"github.com/sakif/microblog/internal/middleware"
	"github.com/sakif/microblog/internal/repository"
	"github.com/sakif/microblog/internal/service"
)

// shutdownTimeout is how long in-flight requests get once Run's context ends.
const shutdownTimeout = 30 * time.Second

// Config holds server configuration.
type Config struct {
	Port          int
	SessionSecret string
	SessionTTL    time.Duration
	APITokenTTL   time.Duration
	BcryptCost    int
	// SecureCookie marks the session cookie HTTPS-only.
	SecureCookie bool
}

// Pinger is implemented by stores that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP server and all its dependencies.
type Server struct {
	router   *chi.Mux
	config   Config
	logger   *slog.Logger
	store    repository.Store
	identity *service.IdentityService
}

// New wires every service over store. events receives domain events; pass
// activity.Discard{} to drop them.
func New(cfg Config, store repository.Store, events activity.Publisher, logger *slog.Logger) (*Server, error) {
	if events == nil {
		events = activity.Discard{}
	}

	sessions, err := auth.NewSessionService(cfg.SessionSecret, cfg.SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("server: creating session service: %w", err)
	}
	passwords := auth.NewPasswordServiceWithCost(cfg.BcryptCost)

	identity := service.NewIdentityService(store, passwords, events, cfg.APITokenTTL, logger)
	graph := service.NewGraphService(store, store, events, logger)
	content := service.NewContentService(store, events, logger)
	messaging := service.NewMessagingService(store, store, events, logger)
	gate := service.NewGate(identity, sessions)

	s := &Server{
		router:   chi.NewRouter(),
		config:   cfg,
		logger:   logger,
		store:    store,
		identity: identity,
	}
	s.setupRoutes(
		handler.NewAuthHandler(identity, gate, cfg.SecureCookie, logger),
		handler.NewSocialHandler(identity, graph, content, messaging, logger),
		handler.NewAPIHandler(identity, gate, graph, content, logger),
		gate,
	)
	return s, nil
}

// Identity exposes the identity service for background jobs.
func (s *Server) Identity() *service.IdentityService {
	return s.identity
}

// Handler returns the router; tests drive it with httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET    /healthz                      → store health
//	POST   /auth/register|login|logout   → accounts and session cookie
//	GET    /, /index, /explore           → timelines          (session)
//	POST   /index                        → new post           (session)
//	GET    /user/{username}              → profile            (session)
//	POST   /edit_profile                 → profile update     (session)
//	POST   /follow|unfollow/{username}   → social graph       (session)
//	POST   /send_message/{username}      → private message    (session)
//	GET    /messages                     → inbox, marks read  (session)
//	POST   /api/tokens                   → API token          (basic)
//	DELETE /api/tokens                   → revoke token       (bearer)
//	GET    /api/users[/{id}[/followers|/following]]           (bearer)
//
// Middleware order: RequestID must precede Logger so the id is logged.
func (s *Server) setupRoutes(
	authH *handler.AuthHandler,
	socialH *handler.SocialHandler,
	apiH *handler.APIHandler,
	gate *service.Gate,
) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/auth", func(r chi.Router) {
		r.Post("/register", authH.HandleRegister)
		r.Post("/login", authH.HandleLogin)
		r.Post("/logout", authH.HandleLogout)
	})

	s.router.Group(func(r chi.Router) {
		r.Use(middleware.RequireLogin(gate, s.identity, s.logger))

		r.Get("/", socialH.HandleHome)
		r.Get("/index", socialH.HandleHome)
		r.Post("/index", socialH.HandlePost)
		r.Get("/explore", socialH.HandleExplore)
		r.Get("/user/{username}", socialH.HandleProfile)
		r.Post("/edit_profile", socialH.HandleEditProfile)
		r.Post("/follow/{username}", socialH.HandleFollow)
		r.Post("/unfollow/{username}", socialH.HandleUnfollow)
		r.Post("/send_message/{username}", socialH.HandleSendMessage)
		r.Get("/messages", socialH.HandleMessages)
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/tokens", apiH.HandleGetToken)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireToken(gate, s.logger))

			r.Delete("/tokens", apiH.HandleRevokeToken)
			r.Get("/users", apiH.HandleListUsers)
			r.Get("/users/{id}", apiH.HandleGetUser)
			r.Get("/users/{id}/followers", apiH.HandleFollowers)
			r.Get("/users/{id}/following", apiH.HandleFollowing)
		})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.store.(Pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			s.logger.Error("health check failed", slog.String("error", err.Error()))
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.Write([]byte("ok"))
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully,
// giving in-flight requests shutdownTimeout to finish.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: listening: %w", err)
		}
		return nil

	case <-ctx.Done():
		s.logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown: %w", err)
		}
		s.logger.Info("server stopped gracefully")
		return nil
	}
}

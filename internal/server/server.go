// Package server is the composition root: it opens the configured
// backend, builds the services and handlers, and mounts the routes.
package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/clinic-links/internal/auth"
	"github.com/sakif/clinic-links/internal/backend"
	"github.com/sakif/clinic-links/internal/config"
	"github.com/sakif/clinic-links/internal/handler"
	"github.com/sakif/clinic-links/internal/middleware"
	"github.com/sakif/clinic-links/internal/repository/filestore"
	sqliteRepo "github.com/sakif/clinic-links/internal/repository/sqlite"
	"github.com/sakif/clinic-links/internal/service"
)

// Server owns the router and every long-lived dependency.
type Server struct {
	router  *chi.Mux
	config  *config.Config
	logger  *slog.Logger
	backend backend.Backend
	closer  io.Closer // database pool, nil for the local backend
}

// New opens the backend named by cfg.Backend and wires the server.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	b, closer, err := openBackend(cfg, logger)
	if err != nil {
		return nil, err
	}

	s, err := newServer(cfg, b, logger)
	if err != nil {
		if closer != nil {
			closer.Close()
		}
		return nil, err
	}
	s.closer = closer
	return s, nil
}

// openBackend builds the configured backend. The returned closer, when
// non-nil, must be closed on shutdown.
func openBackend(cfg *config.Config, logger *slog.Logger) (backend.Backend, io.Closer, error) {
	passwords := auth.NewPasswordService()

	switch cfg.Backend {
	case backend.NameLocal:
		store, err := filestore.New(cfg.DataDir, cfg.StorePrefix)
		if err != nil {
			return nil, nil, fmt.Errorf("opening file store: %w", err)
		}
		logger.Info("file store opened", slog.String("dir", cfg.DataDir))
		return backend.NewLocal(store, passwords, cfg.SessionTTL), nil, nil

	case backend.NameHybrid, backend.NameHosted:
		db, err := sqliteRepo.New(cfg.DatabaseDSN())
		if err != nil {
			return nil, nil, fmt.Errorf("opening database: %w", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = db.Ready(ctx)
		cancel()
		if err != nil {
			// Not fatal: the page serves defaults with the connection
			// banner and every query retries the setup.
			logger.Warn("database unreachable at startup",
				slog.String("driver", db.Driver()),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("database opened", slog.String("driver", db.Driver()))
		}

		if cfg.Backend == backend.NameHybrid {
			return backend.NewHybrid(db, passwords, cfg.SessionTTL), db, nil
		}
		identity := auth.NewIdentityProvider(cfg.IdentityURL, cfg.IdentityClientID, cfg.IdentityClientSecret)
		return backend.NewHosted(db, identity, cfg.SessionTTL), db, nil
	}

	return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

// newServer wires services, handlers and routes around b and loads the
// content once.
func newServer(cfg *config.Config, b backend.Backend, logger *slog.Logger) (*Server, error) {
	defaults, err := cfg.Defaults()
	if err != nil {
		return nil, err
	}

	tokens, err := auth.NewTokenService(cfg.JWTSecret)
	if err != nil {
		return nil, err
	}

	content := service.NewContentService(b, defaults, logger)
	content.Load(context.Background())

	authService := service.NewAuthService(b, tokens, logger)

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		backend: b,
	}

	if err := s.setupRoutes(content, authService, tokens); err != nil {
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// Handler exposes the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes mounts:
//
//	GET    /                      page            optional session
//	GET    /static/*              assets
//	GET    /api/content           content
//	GET    /api/session           gate state      optional session
//	POST   /api/auth/setup
//	POST   /api/auth/login
//	POST   /api/auth/logout                       optional session
//	PUT    /api/auth/credentials                  admin
//	POST   /api/links                             admin
//	PUT    /api/links/{id}                        admin
//	DELETE /api/links/{id}                        admin
//	PUT    /api/videos/{slot}                     admin
//	PUT    /api/profile                           admin
//	PUT    /api/footer                            admin
func (s *Server) setupRoutes(content *service.ContentService, authService *service.AuthService, tokens *auth.TokenService) error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	fileServer := http.FileServer(http.Dir(s.config.StaticDir))
	s.router.Handle("/static/*", http.StripPrefix("/static/", fileServer))

	pageHandler, err := handler.NewPageHandler(s.config.TemplateDir, content, authService, s.logger)
	if err != nil {
		return fmt.Errorf("creating page handler: %w", err)
	}
	contentHandler := handler.NewContentHandler(content, s.logger)
	authHandler := handler.NewAuthHandler(authService, s.config.CookieSecure, s.logger)

	optional := auth.OptionalAuth(tokens, authService)
	admin := auth.RequireAdmin(tokens, authService)

	s.router.With(optional).Get("/", pageHandler.HandlePage)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/content", contentHandler.HandleGet)
		r.With(optional).Get("/session", authHandler.HandleSession)

		r.Post("/auth/setup", authHandler.HandleSetup)
		r.Post("/auth/login", authHandler.HandleLogin)
		r.With(optional).Post("/auth/logout", authHandler.HandleLogout)

		r.Group(func(r chi.Router) {
			r.Use(admin)

			r.Put("/auth/credentials", authHandler.HandleRotate)

			r.Post("/links", contentHandler.HandleAddLink)
			r.Put("/links/{id}", contentHandler.HandleUpdateLink)
			r.Delete("/links/{id}", contentHandler.HandleDeleteLink)

			r.Put("/videos/{slot}", contentHandler.HandleUpdateVideo)
			r.Put("/profile", contentHandler.HandleUpdateProfile)
			r.Put("/footer", contentHandler.HandleUpdateFooter)
		})
	})

	return nil
}

// Start serves until SIGINT or SIGTERM, then drains in-flight requests for
// up to 30 seconds and closes the backend.
func (s *Server) Start() error {
	if s.closer != nil {
		defer s.closer.Close()
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("backend", s.backend.Name()),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
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

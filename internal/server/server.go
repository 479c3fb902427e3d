package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/agronect/apiserver/config"
	"github.com/agronect/apiserver/internal/auth"
	"github.com/agronect/apiserver/internal/db"
	"github.com/agronect/apiserver/internal/events"
	"github.com/agronect/apiserver/internal/handlers"
	"github.com/agronect/apiserver/internal/logging"
	"github.com/agronect/apiserver/internal/mq"
	"github.com/agronect/apiserver/internal/services"
	"github.com/agronect/apiserver/internal/storage"
	"github.com/agronect/apiserver/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	mq         *mq.MQ
	logger     *slog.Logger
}

// New wires the database, optional photo storage and event broker, and the routes.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	tokens, err := auth.NewTokenIssuer(cfg.JWTSecret, auth.WithTTL(cfg.JWTTTL))
	if err != nil {
		return nil, fmt.Errorf("JWT_SECRET: %w", err)
	}

	dbConn, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	var photos services.PhotoStore
	st, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if st != nil {
		if err := st.EnsureBucket(ctx); err != nil {
			_ = dbConn.Close()
			return nil, fmt.Errorf("ensure bucket %s: %w", st.Bucket(), err)
		}
		photos = st
	} else {
		logger.Warn("photo storage disabled, profile photo uploads will fail")
	}

	broker, err := mq.Open(ctx, cfg.MQ)
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("open mq: %w", err)
	}
	var publisher services.EventPublisher = events.Discard
	if broker != nil {
		publisher = events.NewPublisher(broker, cfg.MQ.Channel)
	}

	userRepo := store.NewUserRepository(dbConn, store.WithStrictUniqueEmail(cfg.StrictUniqueEmail))
	hasher := auth.NewBcryptHasher()

	authService := services.NewAuthService(userRepo, hasher, tokens,
		services.WithEventPublisher(publisher),
		services.WithAuthLogger(logger),
	)
	userService := services.NewUserService(userRepo, hasher, photos, logger)

	router := newRouter(logger, authService, userService, tokens, cfg.PhotoMaxBytes)

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
		db:         dbConn,
		mq:         broker,
		logger:     logger,
	}, nil
}

func newRouter(
	logger *slog.Logger,
	authService *services.AuthService,
	userService *services.UserService,
	tokens handlers.TokenVerifier,
	photoMaxBytes int64,
) *chi.Mux {
	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		logging.RequestLogger(logger),
		middleware.Recoverer,
		middleware.Timeout(60*time.Second),
	)
	router.NotFound(handlers.NotFound)
	router.MethodNotAllowed(handlers.MethodNotAllowed)

	router.Get("/", handlers.Banner)
	router.Get("/healthz", handlers.Healthz)
	handlers.AuthRouter(router, authService)
	handlers.UserRouter(router, userService, handlers.RequireAuth(tokens), photoMaxBytes)

	return router
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("server listening", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then closes the broker and database.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.mq != nil {
		if cerr := s.mq.Close(); cerr != nil {
			s.logger.Warn("close mq failed", slog.Any("error", cerr))
		}
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return err
}

package app

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

	"token-auth-server/internal/cache"
	"token-auth-server/internal/config"
	"token-auth-server/internal/database"
	"token-auth-server/internal/handler"
	"token-auth-server/internal/logger"
	"token-auth-server/internal/metrics"
	"token-auth-server/internal/middleware"
	"token-auth-server/internal/repository"
	"token-auth-server/internal/router"
	"token-auth-server/internal/service"
	"token-auth-server/internal/token"
)

type App struct {
	server       *http.Server
	cleanupFuncs []func()
}

// stores is the result of backend selection.
type stores struct {
	users   service.UserDirectory
	tokens  service.RefreshTokenStore
	purger  service.ExpiredTokenPurger
	health  func(ctx context.Context) error
	closers []func()
}

func New(level *slog.LevelVar) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if level != nil {
		level.Set(logger.ParseLevel(cfg.LogLevel))
	}

	return build(context.Background(), cfg)
}

// build wires an already validated configuration into a ready-to-run App.
func build(ctx context.Context, cfg *config.Config) (*App, error) {
	backends, err := openStores(ctx, cfg)
	if err != nil {
		return nil, err
	}

	codec := token.NewCodec()
	accessIssuer := token.NewAccessIssuer(codec, cfg.Auth)
	refreshIssuer := token.NewRefreshIssuer(codec, cfg.Auth)
	refreshValidator := token.NewRefreshValidator(codec, cfg.Auth)

	appMetrics := metrics.New()
	authenticator := service.NewAuthenticator(backends.tokens, accessIssuer, refreshIssuer)
	authService := service.NewAuthService(backends.users, backends.tokens, authenticator, refreshValidator, accessIssuer,
		service.WithObserver(appMetrics))
	authMiddleware := middleware.NewAuthMiddleware(authService)
	authHandler := handler.NewAuthHandler(authService)

	appRouter := router.New(cfg, authMiddleware, authHandler, func(r *http.Request) error {
		return backends.health(r.Context())
	}, appMetrics)

	cleanupCtx, cleanupCancel := context.WithCancel(ctx)
	if backends.purger != nil {
		go service.NewCleanupService(backends.purger).StartCleanupTicker(cleanupCtx, cfg.CleanupInterval)
	}

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appRouter,
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	slog.Info("auth service ready",
		"backend", cfg.StoreBackend,
		"issuer", cfg.Auth.Issuer,
		"audience", cfg.Auth.Audience,
		"access_ttl", cfg.Auth.AccessTokenExpiration,
		"refresh_ttl", cfg.Auth.RefreshTokenExpiration,
	)

	return &App{
		server:       server,
		cleanupFuncs: append([]func(){cleanupCancel}, backends.closers...),
	}, nil
}

// openStores connects the refresh token store selected by STORE_BACKEND. Users live in
// PostgreSQL whenever DATABASE_URL is set and in memory otherwise.
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	s := &stores{health: func(context.Context) error { return nil }}

	var db *database.DB
	if cfg.DatabaseURL != "" {
		slog.Info("connecting to PostgreSQL")
		var err error
		db, err = database.New(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		s.closers = append(s.closers, db.Close)

		if err := db.EnsureSchema(ctx); err != nil {
			s.close()
			return nil, fmt.Errorf("failed to ensure database schema: %w", err)
		}
		s.users = repository.NewUserRepository(db.Pool, repository.DefaultBcryptCost)
		s.health = db.Health
	} else {
		slog.Warn("DATABASE_URL not set, users are kept in memory")
		s.users = repository.NewMemoryUserRepository(repository.DefaultBcryptCost)
	}

	switch cfg.StoreBackend {
	case config.BackendPostgres:
		if db == nil {
			return nil, fmt.Errorf("the postgres backend requires DATABASE_URL")
		}
		tokens := repository.NewRefreshTokenRepository(db.Pool)
		s.tokens, s.purger = tokens, tokens
	case config.BackendRedis:
		rdb, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		s.closers = append(s.closers, rdb.Close)
		s.tokens = repository.NewRedisRefreshTokenRepository(rdb.Client, "")
		dbHealth := s.health
		s.health = func(ctx context.Context) error {
			if err := rdb.Health(ctx); err != nil {
				return err
			}
			return dbHealth(ctx)
		}
	case config.BackendMemory:
		slog.Warn("refresh tokens are kept in memory and lost on restart")
		tokens := repository.NewMemoryRefreshTokenRepository()
		s.tokens, s.purger = tokens, tokens
	default:
		s.close()
		return nil, fmt.Errorf("unsupported store backend %q", cfg.StoreBackend)
	}

	return s, nil
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func (a *App) close() {
	for _, cleanup := range a.cleanupFuncs {
		cleanup()
	}
}

func (a *App) Run() error {
	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if serveErr := a.server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("server failed", "error", serveErr)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	shutdownErr := a.server.Shutdown(ctx)

	// stores close after in-flight requests have drained
	a.close()

	if shutdownErr != nil {
		return fmt.Errorf("graceful shutdown failed: %w", shutdownErr)
	}

	slog.Info("server stopped")
	return nil
}

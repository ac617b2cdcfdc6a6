package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"go-saas-auth/internal/config"
	"go-saas-auth/internal/database"
	"go-saas-auth/internal/event"
	"go-saas-auth/internal/handler"
	"go-saas-auth/internal/mail"
	"go-saas-auth/internal/middleware"
	"go-saas-auth/internal/repository"
	"go-saas-auth/internal/router"
	"go-saas-auth/internal/security"
	"go-saas-auth/internal/service"
)

type App struct {
	server       *http.Server
	sessions     *service.SessionService
	cleanupFuncs []func()
}

func New(cfg *config.Config) (*App, error) {
	ctx := context.Background()
	a := &App{}

	store, health, err := a.openStore(ctx, cfg)
	if err != nil {
		a.cleanup()
		return nil, err
	}

	hasher, err := security.NewBcryptHasher(cfg.BcryptCost)
	if err != nil {
		a.cleanup()
		return nil, fmt.Errorf("failed to initialize password hasher: %w", err)
	}

	signer, err := security.NewTokenSigner(cfg.JWTSecret, cfg.JWTRefreshSecret, cfg.JWTAccessTTL, cfg.JWTRefreshTTL)
	if err != nil {
		a.cleanup()
		return nil, fmt.Errorf("failed to initialize token signer: %w", err)
	}

	notifier, err := newNotifier(cfg)
	if err != nil {
		a.cleanup()
		return nil, fmt.Errorf("failed to initialize mail notifier: %w", err)
	}

	bus := event.NewBus()
	auditCtx, auditCancel := context.WithCancel(context.Background())
	go event.NewAuditLogger(bus, slog.Default()).Run(auditCtx)
	a.cleanupFuncs = append(a.cleanupFuncs, auditCancel)

	a.sessions = service.NewSessionService(store, hasher, signer, notifier, bus, service.SessionConfig{
		ResetTTL:    cfg.PasswordResetTTL,
		MailTimeout: cfg.MailTimeout,
		FrontendURL: cfg.FrontendURL,
	})

	limiter := a.newLimiter(ctx, cfg)

	appRouter := router.New(cfg, limiter, middleware.NewAuthMiddleware(signer), router.Handlers{
		Auth:   handler.NewAuthHandler(a.sessions),
		Health: handler.NewHealthHandler(health),
	})

	a.server = &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appRouter,
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	return a, nil
}

// Handler exposes the routed handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

func (a *App) openStore(ctx context.Context, cfg *config.Config) (service.CredentialStore, handler.HealthCheck, error) {
	switch cfg.DBAdapter {
	case config.AdapterPostgres:
		slog.Info("connecting to PostgreSQL")
		db, err := database.New(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.cleanupFuncs = append(a.cleanupFuncs, db.Close)

		if err := db.EnsureSchema(ctx); err != nil {
			return nil, nil, fmt.Errorf("failed to ensure database schema: %w", err)
		}
		slog.Info("database ready")
		return repository.NewUserRepository(db.Pool), db.Health, nil

	case config.AdapterSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create sqlite directory: %w", err)
		}
		db, err := database.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		a.cleanupFuncs = append(a.cleanupFuncs, func() { _ = db.Close() })

		if err := database.EnsureSQLiteSchema(ctx, db); err != nil {
			return nil, nil, fmt.Errorf("failed to ensure sqlite schema: %w", err)
		}
		slog.Info("database ready")
		return repository.NewSQLiteUserRepository(db), db.PingContext, nil

	default:
		slog.Warn("using in-memory credential store; data is lost on restart")
		return repository.NewMemoryUserRepository(), nil, nil
	}
}

func newNotifier(cfg *config.Config) (mail.Notifier, error) {
	if cfg.SMTPHost == "" {
		slog.Warn("SMTP_HOST not set; password reset mails are logged instead of sent")
		return mail.NewLogNotifier(slog.Default()), nil
	}

	return mail.NewSMTPNotifier(mail.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPass,
		Secure:   cfg.SMTPSecure,
		FromAddr: cfg.MailFrom,
		FromName: cfg.MailFromName,
		Timeout:  cfg.MailTimeout,
	})
}

func (a *App) newLimiter(ctx context.Context, cfg *config.Config) middleware.Limiter {
	if cfg.RedisURL == "" {
		return middleware.NewMemoryLimiter(cfg.RateLimitRPM, cfg.AuthRateLimitRPM)
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Warn("invalid REDIS_URL; falling back to in-memory rate limiting", "error", err)
		return middleware.NewMemoryLimiter(cfg.RateLimitRPM, cfg.AuthRateLimitRPM)
	}

	client := redis.NewClient(opts)
	a.cleanupFuncs = append(a.cleanupFuncs, func() { _ = client.Close() })

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		slog.Warn("redis not reachable; rate limiting fails open until it is", "error", err)
	} else {
		slog.Info("redis rate limiter ready")
	}

	return middleware.NewRedisLimiter(client, "auth_rl", cfg.RateLimitRPM, cfg.AuthRateLimitRPM)
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

	return a.Shutdown()
}

func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := a.server.Shutdown(ctx)

	// Let queued reset mails go out before the store and bus go away.
	a.sessions.Wait()
	a.cleanup()

	if err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

func (a *App) cleanup() {
	for i := len(a.cleanupFuncs) - 1; i >= 0; i-- {
		a.cleanupFuncs[i]()
	}
	a.cleanupFuncs = nil
}

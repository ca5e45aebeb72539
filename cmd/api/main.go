// AngelaMos | 2026
// main.go

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/pflag"

	"github.com/carterperez-dev/templates/ordering-auth/internal/auth"
	"github.com/carterperez-dev/templates/ordering-auth/internal/config"
	"github.com/carterperez-dev/templates/ordering-auth/internal/core"
	"github.com/carterperez-dev/templates/ordering-auth/internal/health"
	"github.com/carterperez-dev/templates/ordering-auth/internal/mail"
	"github.com/carterperez-dev/templates/ordering-auth/internal/metrics"
	"github.com/carterperez-dev/templates/ordering-auth/internal/middleware"
	"github.com/carterperez-dev/templates/ordering-auth/internal/server"
	"github.com/carterperez-dev/templates/ordering-auth/internal/user"
)

const (
	drainDelay = 5 * time.Second
)

func main() {
	flags := pflag.NewFlagSet("api", pflag.ExitOnError)
	configPath := flags.String("config", "config.yaml", "path to config file")
	generateKeys := flags.Bool("generate-keys", false, "write a new ES256 session key pair and exit")
	privateKeyPath := flags.String("session.private_key_path", "keys/private.pem", "session signing key")
	publicKeyPath := flags.String("session.public_key_path", "keys/public.pem", "session verification key")
	flags.Int("server.port", 0, "listen port")
	flags.String("log.level", "", "log level (debug, info, warn, error)")
	flags.String("database.driver", "", "account storage driver (postgres, memory)")
	flags.String("mail.driver", "", "email driver (log, redis)")

	//nolint:errcheck // ExitOnError handles failures
	_ = flags.Parse(os.Args[1:])

	if *generateKeys {
		if err := writeKeyPair(*privateKeyPath, *publicKeyPath); err != nil {
			slog.Error("key generation failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*configPath, flags); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

//nolint:funlen,gocyclo // bootstrap code is inherently verbose
func run(configPath string, flags *pflag.FlagSet) error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	if _, err := os.Stat(configPath); err != nil {
		configPath = ""
	}

	cfg, err := config.Load(configPath, flags)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"name", cfg.App.Name,
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
	)

	var telemetry *core.Telemetry
	if cfg.Otel.Enabled {
		tel, telErr := core.NewTelemetry(ctx, cfg.Otel, cfg.App)
		if telErr != nil {
			logger.Warn("failed to initialize telemetry", "error", telErr)
		} else {
			telemetry = tel
			logger.Info("OpenTelemetry tracer initialized",
				"endpoint", cfg.Otel.Endpoint,
			)
		}
	}

	m := metrics.New()

	var checks []health.Check

	var userRepo user.Repository
	var db *core.Database
	switch cfg.Database.Driver {
	case config.DriverMemory:
		userRepo = user.NewMemoryRepository()
		logger.Warn("using in-memory account storage")
	default:
		db, err = core.NewDatabase(ctx, cfg.Database)
		if err != nil {
			return err
		}
		logger.Info("database connected",
			"max_open_conns", cfg.Database.MaxOpenConns,
			"max_idle_conns", cfg.Database.MaxIdleConns,
		)

		if cfg.Database.AutoMigrate {
			if err := db.Migrate(ctx); err != nil {
				return err
			}
			logger.Info("database migrations applied")
		}

		if err := m.RegisterDB(db.DB.DB); err != nil {
			logger.Warn("failed to register pool metrics", "error", err)
		}

		userRepo = user.NewRepository(db.DB)
		checks = append(checks, health.Check{Name: "database", Checker: db})
	}

	var redis *core.Redis
	if cfg.Redis.URL != "" {
		redis, err = core.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		logger.Info("redis connected",
			"pool_size", cfg.Redis.PoolSize,
		)
		checks = append(checks, health.Check{Name: "redis", Checker: redis})
	}

	var mailer mail.Dispatcher
	switch cfg.Mail.Driver {
	case config.MailDriverRedis:
		mailer = mail.NewRedisDispatcher(redis, cfg.Mail.Queue)
	default:
		mailer = mail.NewLogDispatcher(logger)
	}
	logger.Info("mail dispatcher initialized", "driver", cfg.Mail.Driver)

	hasher, err := core.NewPasswordHasher(cfg.Auth.BcryptCost)
	if err != nil {
		return err
	}

	sessions, err := auth.NewSessionManager(cfg.Session, cfg.SecureCookies())
	if err != nil {
		return err
	}
	logger.Info("session manager initialized",
		"algorithm", "ES256",
		"key_id", sessions.KeyID(),
		"secure_cookies", cfg.SecureCookies(),
	)

	userSvc := user.NewService(
		userRepo,
		hasher,
		user.WithResetTokenTTL(cfg.Auth.ResetTokenTTL),
		user.WithTokenBytes(cfg.Auth.TokenBytes),
	)
	userHandler := user.NewHandler(userSvc)

	authSvc := auth.NewService(
		userSvc,
		hasher,
		sessions,
		mailer,
		m,
		logger,
		auth.Config{
			BaseURL:             cfg.Auth.BaseURL,
			ConcealUnknownEmail: cfg.Auth.ConcealUnknownEmail,
			DispatchTimeout:     cfg.Mail.DispatchTimeout,
		},
	)
	authHandler := auth.NewHandler(authSvc)

	healthHandler := health.NewHandler(checks...)

	srv := server.New(server.Config{
		ServerConfig:  cfg.Server,
		HealthHandler: healthHandler,
		Logger:        logger,
	})

	router := srv.Router()

	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(logger))
	router.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	router.Use(middleware.CORS(cfg.CORS))

	healthHandler.RegisterRoutes(router)

	router.Handle("/metrics", m.Handler())
	router.Get("/.well-known/jwks.json", sessions.JWKSHandler())

	authenticator := middleware.Authenticator(sessions, sessions.CookieName())
	adminOnly := middleware.RequireAdmin

	router.Route("/api/v1", func(r chi.Router) {
		authHandler.RegisterRoutes(r, authenticator)
		userHandler.RegisterAdminRoutes(r, authenticator, adminOnly)
	})

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		cfg.Server.ShutdownTimeout+drainDelay+5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx, drainDelay); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	authSvc.Wait()

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}

	if redis != nil {
		if err := redis.Close(); err != nil {
			logger.Error("redis close error", "error", err)
		}
	}

	if db != nil {
		if err := db.Close(); err != nil {
			logger.Error("database close error", "error", err)
		}
	}

	logger.Info("application stopped")
	return nil
}

func writeKeyPair(privateKeyPath, publicKeyPath string) error {
	for _, path := range []string{privateKeyPath, publicKeyPath} {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return fmt.Errorf("create key directory: %w", err)
		}
	}

	if err := auth.GenerateKeyPair(privateKeyPath, publicKeyPath); err != nil {
		return err
	}

	fmt.Printf("wrote %s and %s\n", privateKeyPath, publicKeyPath)
	return nil
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

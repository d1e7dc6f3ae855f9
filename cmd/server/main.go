package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	internalauth "github.com/jzupan/clubmgr/internal/auth"
	"github.com/jzupan/clubmgr/internal/background"
	"github.com/jzupan/clubmgr/internal/config"
	"github.com/jzupan/clubmgr/internal/database"
	"github.com/jzupan/clubmgr/internal/handlers"
	middlewareCustom "github.com/jzupan/clubmgr/internal/middleware"
	"github.com/jzupan/clubmgr/internal/repositories"
	"github.com/jzupan/clubmgr/internal/routes"
	"github.com/jzupan/clubmgr/internal/services"
	"github.com/jzupan/clubmgr/internal/session"
	pkghttp "github.com/jzupan/clubmgr/pkg/http"
	pkglogger "github.com/jzupan/clubmgr/pkg/logger"
)

func main() {
	logger := pkglogger.New(os.Getenv("LOG_LEVEL"))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.Migrate(migrateCtx); err != nil {
		migrateCancel()
		logger.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}
	migrateCancel()

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	attemptRepo := repositories.NewLoginAttemptRepository(db)
	deviceRepo := repositories.NewTrustedDeviceRepository(db)
	auditRepo := repositories.NewAuditLogRepository(db)

	// Session manager with background sweeper
	sessionManager := session.NewManager(cfg.Session.InactivityTTL, cfg.Session.AbsoluteTTL, logger)
	sweeperStop := make(chan struct{})
	sessionManager.StartSweeper(cfg.Session.SweepInterval, sweeperStop)

	// Security services
	auditService := services.NewAuditService(auditRepo, logger)
	rateLimitService := services.NewRateLimitService(attemptRepo, services.RateLimitConfig{
		MaxFailures: cfg.RateLimit.MaxFailures,
		Window:      cfg.RateLimit.Window,
	}, logger)
	timingDelay := internalauth.NewTimingDelay(cfg.Auth.TimingBaseDelay, cfg.Auth.TimingJitter)
	totpManager := internalauth.NewTOTPManager(cfg.Auth.TOTPIssuer)
	verifier := services.BcryptVerifier{}

	loginService := services.NewLoginService(
		userRepo, deviceRepo, rateLimitService, auditService, sessionManager,
		verifier, totpManager, timingDelay, cfg.Auth.DeviceTrustTTL, logger,
	)
	twoFactorService := services.NewTwoFactorService(
		userRepo, totpManager, totpManager, auditService, logger,
	)
	userService := services.NewUserService(userRepo, verifier, auditService,
		cfg.Auth.BcryptCost, cfg.Auth.MinPasswordLen, logger)

	// Bootstrap the first admin account
	bootstrapCtx, bootstrapCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := userService.EnsureAdmin(bootstrapCtx, cfg.Admin.Username, cfg.Admin.Password); err != nil {
		logger.Error("failed to ensure admin user", slog.Any("error", err))
	}
	bootstrapCancel()

	// HTTP surface
	cookieConfig := internalauth.CookieConfig{
		SessionName: cfg.Session.CookieName,
		DeviceName:  cfg.Session.DeviceCookie,
		SessionTTL:  cfg.Session.AbsoluteTTL,
		Secure:      cfg.Session.CookieSecure,
	}
	ipConfig := &pkghttp.IPConfig{
		TrustedProxies: []string{"127.0.0.1/32", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"},
	}

	renderer, err := handlers.NewRenderer(logger)
	if err != nil {
		logger.Error("failed to initialize renderer", slog.Any("error", err))
		os.Exit(1)
	}

	authHandler := handlers.NewAuthHandler(loginService, renderer, cookieConfig, ipConfig, cfg.Auth.DeviceTrustTTL)
	profileHandler := handlers.NewProfileHandler(userService, twoFactorService, renderer, cookieConfig, ipConfig)

	sessionMW := session.NewMiddleware(sessionManager, cookieConfig)

	router := chi.NewRouter()
	router.Use(middlewareCustom.SecureLogger(logger))
	routes.RegisterRoutes(router, routes.Config{
		AuthHandler:    authHandler,
		ProfileHandler: profileHandler,
		SessionMW:      sessionMW,
		DB:             db,
		FloodRPM:       cfg.RateLimit.FloodRPM,
		FloodHandler:   authHandler.Throttled,
	})

	// Background cleanup of expired grants and stale attempts
	cleanupManager := background.NewCleanupManager(deviceRepo, attemptRepo, cfg.RateLimit.Window, logger, time.Hour)
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	go cleanupManager.Start(cleanupCtx)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	close(sweeperStop)
	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

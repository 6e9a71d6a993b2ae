package main

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

	"github.com/joho/godotenv"
	"github.com/sessionguard/platform/internal/app"
	"github.com/sessionguard/platform/internal/auth"
	"github.com/sessionguard/platform/internal/geo"
	"github.com/sessionguard/platform/internal/guard"
	"github.com/sessionguard/platform/internal/infra"
	"github.com/sessionguard/platform/internal/metrics"
	"github.com/sessionguard/platform/internal/provider"
	"github.com/sessionguard/platform/internal/repository"
	"github.com/sessionguard/platform/internal/service"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *infra.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Postgres
	if cfg.RunMigrations {
		if err := infra.RunMigrations(cfg.DSN(), cfg.MigrationsDir, logger); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}
	pool, err := infra.NewPostgresPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	logger.Info("connected to postgres")
	store := repository.NewPgStore(pool)

	// Per-user login lock
	var locker guard.Locker = guard.NewKeyedMutex()
	if cfg.RedisURL != "" {
		client, err := infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer client.Close()
		locker = guard.NewRedisLocker(client, guard.RedisLockerOptions{})
		logger.Info("using redis login lock")
	}

	// Identity provider
	var identity provider.IdentityProvider
	var credentials service.CredentialIssuer
	switch cfg.IdentityProvider {
	case "gotrue":
		identity = provider.NewGoTrueIdentity(provider.GoTrueConfig{
			BaseURL:     cfg.GoTrueURL,
			AnonKey:     cfg.GoTrueAnonKey,
			JWTSecret:   cfg.GoTrueJWTSecret,
			EmailDomain: cfg.IdentityEmailDomain,
			Timeout:     cfg.GoTrueTimeout,
		}, guard.NewCircuitBreaker(5, 30*time.Second))
	default:
		local := provider.NewLocalIdentity(store.AuthUsers())
		identity, credentials = local, local
	}
	logger.Info("identity provider configured", "provider", cfg.IdentityProvider)

	// GeoIP
	var locator geo.Locator = geo.Nop{}
	if cfg.GeoIPCityDB != "" {
		mm, err := geo.Open(cfg.GeoIPCityDB)
		if err != nil {
			return fmt.Errorf("open geoip db: %w", err)
		}
		defer mm.Close()
		locator = mm
	}

	trustedProxies, err := cfg.TrustedProxyPrefixes()
	if err != nil {
		return err
	}
	limiter := guard.NewRateLimiter(cfg.LoginRateLimit, cfg.LoginRateWindow)
	go sweep(ctx, limiter, cfg.LoginRateWindow)

	router := app.NewRouter(app.RouterDeps{
		Store:          store,
		Identity:       identity,
		Credentials:    credentials,
		Locker:         locker,
		Geo:            locator,
		Policy:         cfg.PolicyConfig(),
		Metrics:        metrics.New(),
		JWTMgr:         auth.NewJWTManager(cfg.AdminJWTSecret, cfg.AdminJWTExpiry),
		Logger:         logger,
		LoginLimiter:   limiter,
		TrustedProxies: trustedProxies,
		CORSOrigins:    cfg.CORSOrigins(),
	})

	// Start server
	addr := fmt.Sprintf(":%d", cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}

// sweep drops idle limiter keys once per window.
func sweep(ctx context.Context, limiter *guard.RateLimiter, every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Sweep()
		}
	}
}

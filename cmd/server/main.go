package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"

	"crednet-oauth/internal/cache"
	"crednet-oauth/internal/config"
	"crednet-oauth/internal/handlers"
	"crednet-oauth/internal/identity"
	"crednet-oauth/internal/logging"
	"crednet-oauth/internal/middleware"
	"crednet-oauth/internal/monitoring"
	"crednet-oauth/internal/provider"
	"crednet-oauth/internal/ratelimit"
	"crednet-oauth/internal/sessions"
	"crednet-oauth/internal/store"
)

func main() {
	cfg := config.Load()

	logger := logging.New(&logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	if err := cfg.Validate(); err != nil {
		logger.Fatalf("Configuration validation failed: %v", err)
	}

	logger.InfoEvent().
		Str("log_level", cfg.Logging.Level).
		Str("log_format", cfg.Logging.Format).
		Msg("Starting CredNet authorization server")

	oauthStore, err := store.NewPostgres(&cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to OAuth store")
	}
	defer oauthStore.Close()

	identityStore, err := identity.NewPostgres(&cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to identity store")
	}
	defer identityStore.Close()

	// Redis is shared between the cache and the rate limiter.
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		logger.InfoEvent().
			Str("host", cfg.Redis.Host).
			Str("port", cfg.Redis.Port).
			Msg("Connected to Redis")
	}

	var cacheService cache.Cache
	if redisClient != nil {
		cacheService = cache.NewRedis(redisClient)
		logger.Info("Client and token caching enabled")
	}

	metricsService := monitoring.NewService()
	metricsService.RegisterPinger("store", oauthStore)
	metricsService.RegisterPinger("identity", identityStore)
	if cacheService != nil {
		metricsService.RegisterPinger("cache", cacheService)
	}

	var limiter ratelimit.Limiter
	limitCfg := &ratelimit.Config{
		MaxRequests: cfg.Security.RateLimitRequests,
		Window:      cfg.Security.RateLimitWindow,
	}
	switch cfg.Security.RateLimitBackend {
	case "redis":
		limiter = ratelimit.NewRedis(redisClient, limitCfg)
		logger.Info("Using Redis rate limiter")
	case "memory":
		limiter = ratelimit.NewMemory(limitCfg)
		logger.Warn("Using in-memory rate limiter (not suitable for multiple replicas)")
	}
	defer limiter.Close()

	sessionManager := sessions.NewManager(cfg.Auth.SessionSecret, cfg.Auth.SessionTTL)
	providerService := provider.NewService(oauthStore, identityStore, cacheService, cfg)
	handler := handlers.NewHandler(providerService, identityStore, sessionManager, metricsService, logger)
	mw := middleware.New(logger, metricsService, sessionManager, limiter)

	router := mux.NewRouter()
	router.Use(mw.Logger)
	router.Use(mw.Recovery)
	router.Use(mw.CORS(cfg.Security.AllowedOrigins))
	router.Use(mw.SecurityHeaders)
	router.Use(mw.RateLimit)
	router.Use(mw.RequestSizeLimit(cfg.Security.MaxRequestSize))
	if cfg.Security.RequireHTTPS {
		router.Use(mw.RequireHTTPS)
	}

	handler.RegisterRoutes(router, mw)

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	go runSweeper(sweepCtx, oauthStore, cfg.Auth.SweepInterval, logger)

	srv := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.InfoEvent().
			Str("host", cfg.Server.Host).
			Str("port", cfg.Server.Port).
			Msg("Authorization server listening")
		if cfg.Server.TLSCert != "" && cfg.Server.TLSKey != "" {
			if err := srv.ListenAndServeTLS(cfg.Server.TLSCert, cfg.Server.TLSKey); err != nil && err != http.ErrServerClosed {
				logger.WithError(err).Fatal("Failed to start HTTPS server")
			}
		} else {
			logger.Warn("Serving HTTP without TLS")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.WithError(err).Fatal("Failed to start server")
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}

// runSweeper periodically deletes expired authorization codes and
// expired revoked tokens so the tables stay bounded.
func runSweeper(ctx context.Context, st store.Store, interval time.Duration, logger *logging.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			codes, err := st.DeleteExpiredCodes(ctx)
			if err != nil {
				logger.WithError(err).Warn("Expired code sweep failed")
				continue
			}
			tokens, err := st.DeleteExpiredTokens(ctx)
			if err != nil {
				logger.WithError(err).Warn("Expired token sweep failed")
				continue
			}
			if codes > 0 || tokens > 0 {
				logger.InfoEvent().
					Int64("codes", codes).
					Int64("tokens", tokens).
					Msg("Swept expired records")
			}
		case <-ctx.Done():
			return
		}
	}
}

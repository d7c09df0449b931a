// Package main provides the entry point for the IT console server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/kneutral-org/itconsole/internal/api"
	"github.com/kneutral-org/itconsole/internal/config"
	"github.com/kneutral-org/itconsole/internal/equipment"
	"github.com/kneutral-org/itconsole/internal/logging"
	"github.com/kneutral-org/itconsole/internal/metrics"
	"github.com/kneutral-org/itconsole/internal/middleware"
	"github.com/kneutral-org/itconsole/internal/realtime"
)

func main() {
	cfg := config.Load()
	logger := logging.New("itconsole", cfg.LogLevel, cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()

	store, pool := openStore(ctx, cfg, logger)
	if pool != nil {
		defer pool.Close()
	}

	hub := realtime.NewHub(logger, realtime.WithAllowedOrigins(cfg.AllowedOrigins))

	// Without Redis the hub is the notifier. With Redis every process
	// publishes to the channel and the bridge relays it to the local hub.
	var notifier equipment.Notifier = hub
	var bridge *realtime.RedisBridge
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		redisClient = redis.NewClient(opts)
		defer func() { _ = redisClient.Close() }()

		bridge = realtime.NewRedisBridge(redisClient, cfg.RedisChannel, hub, logger)
		if err := bridge.Start(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to subscribe to redis channel")
		}
		notifier = bridge
	}

	service := equipment.NewService(store, notifier, logger)
	sweeper := equipment.NewSweeper(store, notifier, cfg.LivenessTimeout, cfg.SweepInterval, logger)

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logging.RequestLogger(logger))
	router.Use(metrics.HTTPMetrics())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	metrics.RegisterMetricsEndpoint(router)
	router.GET("/ws", hub.ServeWS)

	handler := api.NewHandler(service, logger, api.Config{
		ReportMaxPayloadSize: cfg.ReportMaxPayloadSize,
		RequestTimeout:       cfg.RequestTimeout,
		Authorizer:           middleware.StaticTokenAuthorizer{Token: cfg.APIToken},
	})
	handler.RegisterRoutes(router.Group(""))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	sweeper.Start()

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	sweeper.Stop()
	if bridge != nil {
		bridge.Stop()
	}
	hub.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server exited properly")
}

// openStore connects to Postgres when DATABASE_URL is set and falls back to
// the in-memory store otherwise. The returned pool is nil for the latter.
func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (equipment.Store, *pgxpool.Pool) {
	if cfg.DatabaseURL == "" {
		logger.Warn().Msg("DATABASE_URL not set, using in-memory equipment store")
		return equipment.NewInMemoryStore(), nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(connectCtx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create database pool")
	}
	if err := pool.Ping(connectCtx); err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	store := equipment.NewPostgresStore(pool)
	if err := store.Migrate(connectCtx); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	logger.Info().Msg("connected to postgres equipment store")
	return store, pool
}

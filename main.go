package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ShepherdHQ/shepherd-backend/config"
	"github.com/ShepherdHQ/shepherd-backend/handlers"
	"github.com/ShepherdHQ/shepherd-backend/internal/database"
	"github.com/ShepherdHQ/shepherd-backend/internal/events"
	"github.com/ShepherdHQ/shepherd-backend/internal/store/postgres"
	"github.com/ShepherdHQ/shepherd-backend/logger"
	"github.com/ShepherdHQ/shepherd-backend/router"
	"github.com/ShepherdHQ/shepherd-backend/services"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Initialize logger
	logger.InitLogger()
	log := logger.GetLogger()
	defer func() {
		if err := logger.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to close logger: %v\n", err)
		}
	}()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize database connection
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		log.Fatalf("Failed to parse database config: %v", err)
	}
	if cfg.Database.MaxConnections > 0 {
		poolConfig.MaxConns = int32(cfg.Database.MaxConnections)
	}
	if cfg.Server.Environment == config.EnvProduction {
		poolConfig.ConnConfig.TLSConfig = &tls.Config{
			ServerName: cfg.Database.Host,
			MinVersion: tls.VersionTLS12,
		}
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	dbClient := database.NewDatabaseClientWithConfig(pool, poolConfig)

	// Apply schema migrations before serving traffic
	if err := database.RunMigrations(cfg.Database.URL()); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	// Initialize Redis client with TLS in production
	redisOptions := &redis.Options{
		Addr:         cfg.Redis.Address,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}
	if cfg.Redis.UseTLS || cfg.Server.Environment == config.EnvProduction {
		redisOptions.TLSConfig = &tls.Config{
			ServerName: cfg.Redis.Address,
			MinVersion: tls.VersionTLS12,
		}
	}
	redisClient := redis.NewClient(redisOptions)
	defer func() {
		if err := redisClient.Close(); err != nil {
			log.Warnw("Failed to close Redis client", "error", err)
		}
	}()

	// Stores
	pushTokenStore := postgres.NewPushTokenStore(dbClient.GetPool())
	conversationStore := postgres.NewConversationStore(dbClient.GetPool())
	profileStore := postgres.NewProfileStore(dbClient.GetPool())

	// Dispatch pipeline
	workerPool := services.NewWorkerPool(cfg.WorkerPool)
	workerPool.Start()

	rateLimiter := services.NewRateLimitService(redisClient)
	dispatcher := services.NewPushDispatcher(cfg.Push, cfg.RateLimit, pushTokenStore, rateLimiter)
	trigger := services.NewNotificationTrigger(conversationStore, profileStore, dispatcher, workerPool)

	// Event service: domain events published by the write paths fan out to
	// the notification trigger here. The consumer picks up events published
	// by other instances off Redis.
	eventService := events.NewRedisEventService(redisClient, cfg.EventService)
	eventService.RegisterHandlers(trigger)
	if err := eventService.StartConsumer(context.Background()); err != nil {
		log.Fatalf("Failed to start event consumer: %v", err)
	}

	// Health
	healthService := services.NewHealthService(pool, redisClient, cfg.Server.Version)

	// Router setup
	r := router.SetupRouter(router.Dependencies{
		Config:           cfg,
		HealthHandler:    handlers.NewHealthHandler(healthService),
		PushTokenHandler: handlers.NewPushTokenHandler(pushTokenStore, log.Desugar()),
		Logger:           log,
	})

	if len(cfg.Server.TrustedProxies) > 0 {
		if err := r.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
			log.Fatalf("Failed to set trusted proxies: %v", err)
		}
	} else if err := r.SetTrustedProxies(nil); err != nil {
		log.Fatalf("Failed to clear trusted proxies: %v", err)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("Starting server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Block until we get a shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutdown signal received")

	shutdownTimeout := time.Duration(cfg.WorkerPool.ShutdownTimeoutSeconds) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Stop taking new requests first, then drain the dispatch queue, then
	// tear down the event subscriptions.
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("HTTP server shutdown failed", "error", err)
	}
	if err := workerPool.Shutdown(ctx); err != nil {
		log.Errorw("Worker pool shutdown failed", "error", err)
	}
	if err := eventService.Shutdown(ctx); err != nil {
		log.Errorw("Event service shutdown failed", "error", err)
	}

	log.Info("Server stopped")
}

/**
 * @description
 * This is the main entry point for the renewal service. It wires together the
 * configuration, the PostgreSQL store, the RabbitMQ producer and consumer, the
 * WhatsApp gateway and AI provider clients, the cron scheduler, the delivery
 * engine, and the HTTP API, then runs until a termination signal arrives.
 *
 * @dependencies
 * - github.com/joho/godotenv: For loading .env files during local development.
 * - github.com/jackc/pgx/v5/pgxpool: PostgreSQL connection pooling.
 * - The service's internal packages for config, store, app, and API wiring.
 */
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/JeffiBR/Boot-WhatsApp/internal/api"
	"github.com/JeffiBR/Boot-WhatsApp/internal/app"
	"github.com/JeffiBR/Boot-WhatsApp/internal/config"
	"github.com/JeffiBR/Boot-WhatsApp/internal/store"
	"github.com/JeffiBR/Boot-WhatsApp/pkg/aiclient"
	"github.com/JeffiBR/Boot-WhatsApp/pkg/rabbitmq"
	"github.com/JeffiBR/Boot-WhatsApp/pkg/whatsapp"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Load .env file for local development.
	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, using environment variables")
	}

	// Load application configuration.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Error("invalid timezone configured", "timezone", cfg.Timezone, "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Establish database connection with connection pool configuration.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to parse database URL", "error", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts behind poolers.
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connection established")

	repository := store.NewPostgresRepository(dbpool)

	// Set up the RabbitMQ producer. A broker outage at startup falls back to a
	// no-op publisher; events stay pending and the retry scan re-drives them
	// once the broker is reachable again.
	var producer rabbitmq.Publisher
	if p, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL); err != nil {
		logger.Warn("RabbitMQ unavailable; running with fallback publisher", "error", err)
		producer = &rabbitmq.EventProducerFallback{}
	} else {
		producer = p
	}
	defer producer.Close()

	// External collaborators.
	gateway := whatsapp.NewClient(cfg.WhatsAppGatewayURL, cfg.WhatsAppGatewayAPIKey)
	var ai app.AICompleter
	if cfg.AIProviderURL != "" {
		ai = aiclient.NewClient(cfg.AIProviderURL, cfg.AIProviderAPIKey)
	}

	// Application services.
	renderer := app.NewRenderer(ai, loc, logger)
	subscriptions := app.NewService(repository, loc, cfg.MaxPageSize)
	messages := app.NewMessageService(repository, loc, cfg.MaxPageSize)

	gwCfg, err := repository.GetGatewayConfig(ctx)
	if err != nil {
		logger.Error("failed to load gateway configuration", "error", err)
		os.Exit(1)
	}
	engine := app.NewEngine(repository, gateway, logger, cfg, loc, gwCfg.MessageIntervalSeconds)
	engine.Start(ctx)

	configs := app.NewConfigService(repository, ai, engine)

	// Consume queued notification events from RabbitMQ.
	consumer, err := rabbitmq.NewConsumer(cfg.RabbitMQURL)
	if err != nil {
		logger.Warn("RabbitMQ consumer unavailable; only the retry scan will drive deliveries", "error", err)
	} else {
		defer consumer.Close()
		bindings := map[string]func([]byte) bool{
			rabbitmq.RoutingKeyCreated: engine.HandleQueuedNotification,
			rabbitmq.RoutingKeyRetry:   engine.HandleQueuedNotification,
		}
		if err := consumer.ConsumeWithBindings(rabbitmq.NotificationExchange, cfg.NotificationQueue, bindings); err != nil {
			logger.Error("failed to start queue consumer", "error", err)
			os.Exit(1)
		}
		logger.Info("queue consumer started", "queue", cfg.NotificationQueue)
	}

	// Start the cron scheduler in the background.
	jobs := app.NewJobs(repository, renderer, producer, logger, cfg, loc)
	scheduler := app.NewScheduler(jobs, logger, cfg)
	scheduler.Start()

	// Start the HTTP server.
	handler := api.NewHandler(subscriptions, messages, configs, engine, gateway, logger)
	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: api.NewRouter(handler),
	}

	go func() {
		logger.Info("server starting", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("could not start server", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown: stop accepting HTTP traffic, stop the cron jobs, then
	// let in-flight deliveries drain.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	stopCtx := scheduler.Stop()
	<-stopCtx.Done()

	cancel()
	engine.Wait()
	logger.Info("service stopped gracefully")
}

/**
 * @description
 * This is the main entry point for the wallet-service. Its responsibility is
 * to initialize all necessary components, start the HTTP API and the event
 * consumer, and shut everything down gracefully.
 *
 * Key features:
 * - Loads application configuration from environment variables; a missing KMS
 *   credential aborts startup.
 * - Establishes and manages a connection pool to the PostgreSQL database, or
 *   falls back to in-memory stores when no DATABASE_URL is configured.
 * - Wires up the orchestrator and credential gate with their dependencies
 *   (repositories, KMS client, audit log, event producer).
 * - Starts the user.verified consumer and implements graceful shutdown.
 *
 * @dependencies
 * - The service's internal packages for config, app logic, storage, and
 *   external clients.
 * - pgxpool for database connection, godotenv for local config, and rabbitmq
 *   for messaging.
 */
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/custodia/wallet-service/internal/api"
	"github.com/custodia/wallet-service/internal/app"
	"github.com/custodia/wallet-service/internal/audit"
	"github.com/custodia/wallet-service/internal/config"
	"github.com/custodia/wallet-service/internal/store"
	"github.com/custodia/wallet-service/internal/validator"
	"github.com/custodia/wallet-service/pkg/kmsclient"
	"github.com/custodia/wallet-service/pkg/rabbitmq"
)

func main() {
	// Load .env file for local development.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load application configuration. A missing KMS credential is fatal.
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("cannot load config: %v", err)
	}

	// Set up persistence: PostgreSQL when configured, in-memory otherwise.
	var walletRepo store.WalletRepository
	var credRepo store.CredentialRepository
	if cfg.DatabaseURL != "" {
		dbConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Unable to parse database URL: %v\n", err)
		}
		dbConfig.MaxConns = 50
		dbConfig.MinConns = 5
		dbConfig.MaxConnLifetime = 30 * time.Minute
		dbConfig.MaxConnIdleTime = 5 * time.Minute

		dbpool, err := pgxpool.NewWithConfig(context.Background(), dbConfig)
		if err != nil {
			log.Fatalf("Unable to connect to database: %v\n", err)
		}
		defer dbpool.Close()
		log.Println("Database connection established")

		walletRepo = store.NewPostgresWalletRepository(dbpool)
		credRepo = store.NewPostgresCredentialRepository(dbpool)
	} else {
		log.Println("No DATABASE_URL configured; using in-memory stores")
		walletRepo = store.NewMemoryWalletRepository()
		credRepo = store.NewMemoryCredentialRepository()
	}

	// Audit log with optional JSONL file mirror.
	fileSink, err := audit.NewFileSink(cfg.AuditLogPath)
	if err != nil {
		log.Fatalf("Unable to open audit log file: %v", err)
	}
	var sink audit.Sink
	if fileSink != nil {
		sink = fileSink
	}
	auditLog := audit.NewLog(100, validator.Scrub, sink)

	// Event producer with no-op fallback when the broker is unreachable.
	var producer rabbitmq.Publisher
	if cfg.RabbitMQURL != "" {
		p, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
		if err != nil {
			log.Printf("WARN: Failed to connect to RabbitMQ, using fallback publisher: %v", err)
			producer = &rabbitmq.EventProducerFallback{}
		} else {
			producer = p
			defer p.Close()
		}
	} else {
		producer = &rabbitmq.EventProducerFallback{}
	}

	// Set up dependencies.
	kmsClient := kmsclient.NewClient(cfg.KMSAPIBaseURL, cfg.KMSAPIKey)
	provisioner := app.NewProvisioner(walletRepo, kmsClient, auditLog, producer, cfg.MaxConcurrentProvisions)

	// The platform biometric primitive is injected by the embedding
	// application; this deployment runs without one, so only the PIN method
	// can be enabled here.
	gate := app.NewCredentialGate(credRepo, auditLog, nil, producer)

	// Start consuming user.verified events when the broker is configured.
	if cfg.RabbitMQURL != "" {
		consumer, err := rabbitmq.NewConsumer(cfg.RabbitMQURL)
		if err != nil {
			log.Printf("WARN: Failed to connect consumer to RabbitMQ: %v", err)
		} else {
			defer consumer.Close()
			eventHandler := app.NewWalletEventHandler(provisioner)
			go func() {
				log.Printf("Starting consumer for event 'user.verified'...")
				err := consumer.Consume("user_events", "wallet_service_user_verified", "user.verified", eventHandler.HandleUserVerifiedEvent)
				if err != nil {
					log.Printf("Consumer error: %v", err) // Log as non-fatal
				}
			}()
		}
	}

	// Setup and start HTTP server.
	router := api.NewRouter(cfg, api.RouterDeps{
		Wallets:  api.NewWalletHandler(provisioner, walletRepo, gate),
		Security: api.NewSecurityHandler(gate, auditLog),
		KMS:      kmsClient,
	})
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not start server: %s\n", err)
		}
	}()

	log.Println("Wallet service is running with API and event consumer.")

	// Wait for termination signal for graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down wallet-service...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown failed: %v", err)
	}

	log.Println("Server gracefully stopped")
}

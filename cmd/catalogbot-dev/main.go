package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/testcontainers/testcontainers-go/modules/clickhouse"
	redisTC "github.com/testcontainers/testcontainers-go/modules/redis"

	"catalogbot/internal/app"
	"catalogbot/internal/storage/ch"
)

// main runs the bot against throwaway ClickHouse and Redis containers.
// Without GitHub credentials the catalog lives in memory.
func main() {
	ctx := context.Background()
	godotenv.Load()

	log.Println("Starting ClickHouse testcontainer...")
	clickhouseContainer, err := clickhouse.Run(ctx,
		"clickhouse/clickhouse-server:latest",
		clickhouse.WithUsername("default"),
		clickhouse.WithPassword("devpassword"),
		clickhouse.WithDatabase("default"),
	)
	if err != nil {
		log.Fatalf("Failed to start ClickHouse container: %v", err)
	}
	defer func() {
		log.Println("Stopping ClickHouse container...")
		if err := clickhouseContainer.Terminate(ctx); err != nil {
			log.Printf("Failed to terminate ClickHouse container: %v", err)
		}
	}()

	host, err := clickhouseContainer.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get ClickHouse host: %v", err)
	}
	port, err := clickhouseContainer.MappedPort(ctx, "9000/tcp")
	if err != nil {
		log.Fatalf("Failed to get ClickHouse port: %v", err)
	}
	log.Printf("ClickHouse started at %s:%s", host, port.Port())

	db, err := ch.OpenSQL(ch.DSN(host, port.Int(), "default", "default", "devpassword", false))
	if err != nil {
		log.Fatalf("Failed to open ClickHouse: %v", err)
	}
	if err := ch.Migrate(db, "./migrations"); err != nil {
		log.Fatalf("Failed to migrate journal: %v", err)
	}
	db.Close()

	log.Println("Starting Redis testcontainer...")
	redisContainer, err := redisTC.Run(ctx, "redis:7-alpine")
	if err != nil {
		log.Fatalf("Failed to start Redis container: %v", err)
	}
	defer func() {
		log.Println("Stopping Redis container...")
		if err := redisContainer.Terminate(ctx); err != nil {
			log.Printf("Failed to terminate Redis container: %v", err)
		}
	}()

	redisURL, err := redisContainer.ConnectionString(ctx)
	if err != nil {
		log.Fatalf("Failed to get Redis address: %v", err)
	}
	log.Printf("Redis started at %s", redisURL)

	os.Setenv("CLICKHOUSE_HOST", host)
	os.Setenv("CLICKHOUSE_PORT", port.Port())
	os.Setenv("CLICKHOUSE_DATABASE", "default")
	os.Setenv("CLICKHOUSE_USER", "default")
	os.Setenv("CLICKHOUSE_PASSWORD", "devpassword")
	os.Setenv("CLICKHOUSE_USE_TLS", "false")
	os.Setenv("REDIS_URL", redisURL)
	os.Setenv("WEBHOOK_MODE", "false")
	if os.Getenv("LOG_ENCODING") == "" {
		os.Setenv("LOG_ENCODING", "console")
	}
	if os.Getenv("PORT") == "" {
		os.Setenv("PORT", "8080")
	}

	if os.Getenv("GITHUB_TOKEN") == "" || os.Getenv("GITHUB_OWNER") == "" || os.Getenv("GITHUB_REPO") == "" {
		log.Println("⚠️  GITHUB_TOKEN, GITHUB_OWNER or GITHUB_REPO not set, using the in-memory catalog.")
		os.Setenv("USE_MOCK_STORE", "true")
	}
	if os.Getenv("TELEGRAM_BOT_TOKEN") == "" {
		log.Println("⚠️  TELEGRAM_BOT_TOKEN not set. Only the product API will be available.")
	}
	if os.Getenv("API_KEY") == "" {
		os.Setenv("API_KEY", "dev")
		log.Println("⚠️  API_KEY not set, using \"dev\".")
	}

	log.Println("Starting catalog bot with ClickHouse journal and Redis sessions...")
	fmt.Println()

	application, err := app.New()
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	// Run returns on SIGINT/SIGTERM so the deferred cleanups still fire.
	if err := application.Run(); err != nil {
		log.Printf("Application error: %v", err)
	}
}

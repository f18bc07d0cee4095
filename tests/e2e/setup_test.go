//go:build e2e
// +build e2e

// Package e2e provides end-to-end tests for the chat relay. They exercise the
// full path: WebSocket submission, PostgreSQL persistence, fan-out to every
// connected client, the history endpoint, and the RabbitMQ event bridge.
package e2e

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"chat-relay/internal/handler"
	"chat-relay/internal/messaging"
	"chat-relay/internal/middleware"
	"chat-relay/internal/repository/postgres"
	"chat-relay/internal/service"
	"chat-relay/internal/websocket"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	testDB      *sql.DB
	rmq         *messaging.RabbitMQ
	testHub     *websocket.Hub
	apiServer   *httptest.Server
	relayServer *httptest.Server
	apiURL      string
	wsURL       string
)

// TestMain sets up the E2E test environment
func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)

	cleanup, err := setupTestEnvironment(ctx)
	if err != nil {
		log.Fatalf("failed to setup test environment: %v", err)
	}

	code := m.Run()

	cleanup()
	cancel()

	os.Exit(code)
}

// setupTestEnvironment starts PostgreSQL, RabbitMQ, and the relay in-process
func setupTestEnvironment(ctx context.Context) (func(), error) {
	var cleanups []func()
	runCleanups := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	// Start PostgreSQL
	pgCleanup, connStr, err := startPostgres(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start PostgreSQL: %w", err)
	}
	cleanups = append(cleanups, pgCleanup)

	testDB, err = sql.Open("postgres", connStr)
	if err != nil {
		runCleanups()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	cleanups = append(cleanups, func() { testDB.Close() })

	if err := runMigrations(testDB); err != nil {
		runCleanups()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// Start RabbitMQ
	rmqCleanup, rmqURL, err := startRabbitMQ(ctx)
	if err != nil {
		runCleanups()
		return nil, fmt.Errorf("failed to start RabbitMQ: %w", err)
	}
	cleanups = append(cleanups, rmqCleanup)

	rmqCtx, rmqCancel := context.WithTimeout(ctx, 30*time.Second)
	rmq, err = messaging.NewRabbitMQWithRetry(rmqCtx, rmqURL)
	rmqCancel()
	if err != nil {
		runCleanups()
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	cleanups = append(cleanups, func() { rmq.Close() })

	// Wire the relay in-process
	serverCleanup := setupRelayServers()
	cleanups = append(cleanups, serverCleanup)

	return runCleanups, nil
}

// setupRelayServers builds the hub, service, and both HTTP surfaces
func setupRelayServers() func() {
	testHub = websocket.NewHub()
	hubCtx, hubCancel := context.WithCancel(context.Background())
	go func() {
		_ = testHub.Run(hubCtx)
	}()

	store := postgres.NewMessageRepository(testDB)
	relayService := service.NewRelayService(store, testHub, rmq)

	messageHandler := handler.NewMessageHandler(relayService)
	wsHandler := handler.NewWebSocketHandler(testHub, relayService, "*")

	api := chi.NewRouter()
	api.Use(middleware.Metrics())
	api.Get("/health", handler.Health)
	api.Get("/health/ready", handler.Ready(testDB, rmq))
	api.Get("/messages", messageHandler.History)
	apiServer = httptest.NewServer(api)
	apiURL = apiServer.URL

	relay := chi.NewRouter()
	relay.Get("/ws", wsHandler.HandleConnection)
	relayServer = httptest.NewServer(relay)
	wsURL = "ws" + strings.TrimPrefix(relayServer.URL, "http") + "/ws"

	return func() {
		relayServer.Close()
		apiServer.Close()
		hubCancel()
	}
}

// startPostgres starts a PostgreSQL container for testing
func startPostgres(ctx context.Context) (func(), string, error) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		).WithDeadline(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, "", err
	}

	host, err := container.Host(ctx)
	if err != nil {
		container.Terminate(ctx)
		return nil, "", err
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		container.Terminate(ctx)
		return nil, "", err
	}

	connStr := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	// Wait for PostgreSQL to be fully ready
	time.Sleep(2 * time.Second)

	cleanup := func() {
		container.Terminate(ctx)
	}

	return cleanup, connStr, nil
}

// startRabbitMQ starts a RabbitMQ container for testing
func startRabbitMQ(ctx context.Context) (func(), string, error) {
	req := testcontainers.ContainerRequest{
		Image:        "rabbitmq:3.12-management-alpine",
		ExposedPorts: []string{"5672/tcp"},
		Env: map[string]string{
			"RABBITMQ_DEFAULT_USER": "guest",
			"RABBITMQ_DEFAULT_PASS": "guest",
		},
		WaitingFor: wait.ForAll(
			wait.ForLog("Server startup complete"),
			wait.ForListeningPort("5672/tcp"),
		).WithDeadline(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, "", err
	}

	host, err := container.Host(ctx)
	if err != nil {
		container.Terminate(ctx)
		return nil, "", err
	}

	port, err := container.MappedPort(ctx, "5672")
	if err != nil {
		container.Terminate(ctx)
		return nil, "", err
	}

	url := fmt.Sprintf("amqp://guest:guest@%s:%s/", host, port.Port())

	// Wait for RabbitMQ to be fully ready
	time.Sleep(2 * time.Second)

	cleanup := func() {
		container.Terminate(ctx)
	}

	return cleanup, url, nil
}

// runMigrations creates the database schema
func runMigrations(db *sql.DB) error {
	schema := `
		CREATE EXTENSION IF NOT EXISTS "pgcrypto";

		CREATE TABLE IF NOT EXISTS messages (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			username TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE INDEX IF NOT EXISTS idx_messages_created_at ON messages (created_at);
	`

	_, err := db.Exec(schema)
	return err
}

// resetMessages truncates the message log between tests
func resetMessages(t *testing.T) {
	t.Helper()
	if _, err := testDB.Exec("TRUNCATE messages"); err != nil {
		t.Fatalf("failed to reset messages: %v", err)
	}
}

// httpGet issues a GET against the API server
func httpGet(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(apiURL + path)
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	return resp
}

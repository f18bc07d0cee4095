package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-relay/internal/config"
	"chat-relay/internal/handler"
	"chat-relay/internal/messaging"
	"chat-relay/internal/middleware"
	"chat-relay/internal/observability"
	"chat-relay/internal/repository/postgres"
	"chat-relay/internal/service"
	"chat-relay/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := config.Load()

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logFormat := os.Getenv("LOG_FORMAT")
	if logFormat == "" {
		logFormat = "json"
	}
	observability.InitLogger(logLevel, logFormat)

	slog.Info("starting chat relay")

	connCtx, connCancel := context.WithTimeout(context.Background(), 10*time.Second)
	db, err := config.NewPostgresConnection(connCtx, cfg.DatabaseURL)
	connCancel()
	if err != nil {
		slog.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to postgresql")

	var rmq *messaging.RabbitMQ
	var publisher service.EventPublisher
	if cfg.RabbitMQURL != "" {
		rmqCtx, rmqCancel := context.WithTimeout(context.Background(), 60*time.Second)
		rmq, err = messaging.NewRabbitMQWithRetry(rmqCtx, cfg.RabbitMQURL)
		rmqCancel()
		if err != nil {
			slog.Error("failed to connect to rabbitmq", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer rmq.Close()
		publisher = rmq
		slog.Info("message event bridge enabled")
	}

	messageStore := postgres.NewMessageRepository(db)

	hub := websocket.NewHub()

	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	go func() {
		if err := hub.Run(hubCtx); err != nil && err != context.Canceled {
			slog.Error("hub error", slog.String("error", err.Error()))
		}
	}()
	slog.Info("websocket hub started")

	relayService := service.NewRelayService(messageStore, hub, publisher)

	messageHandler := handler.NewMessageHandler(relayService)
	wsHandler := handler.NewWebSocketHandler(hub, relayService, cfg.AllowedOrigins)

	origins := middleware.ParseOrigins(cfg.AllowedOrigins)

	api := chi.NewRouter()
	api.Use(chimiddleware.Logger)
	api.Use(chimiddleware.Recoverer)
	api.Use(chimiddleware.RequestID)
	api.Use(chimiddleware.RealIP)
	api.Use(middleware.CORS(origins))
	api.Use(middleware.Metrics())

	api.Get("/health", handler.Health)
	api.Get("/health/ready", handler.Ready(db, rmq))
	api.Handle("/metrics", promhttp.Handler())
	api.Get("/messages", messageHandler.History)

	relay := chi.NewRouter()
	relay.Use(chimiddleware.Recoverer)
	relay.Use(chimiddleware.RealIP)
	relay.Use(middleware.Metrics())
	relay.Get("/ws", wsHandler.HandleConnection)

	apiSrv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// No read/write timeouts here: they would kill long-lived sockets
	relaySrv := &http.Server{
		Addr:    ":" + cfg.WSPort,
		Handler: relay,
	}

	go func() {
		slog.Info("history server listening", slog.String("port", cfg.Port))
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("history server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	go func() {
		slog.Info("relay server listening", slog.String("port", cfg.WSPort))
		if err := relaySrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("relay server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("history server shutdown error", slog.String("error", err.Error()))
	}
	if err := relaySrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("relay server shutdown error", slog.String("error", err.Error()))
	}

	hubCancel()

	time.Sleep(100 * time.Millisecond)

	slog.Info("server stopped gracefully")
}

package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"chat-relay/internal/messaging"
	"chat-relay/internal/observability"
)

// Health returns basic health check
func Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
	})
}

// HealthCheckResult represents the result of a health check
type HealthCheckResult struct {
	Status    string                 `json:"status"`
	LatencyMs int64                  `json:"latency_ms,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// Ready returns readiness check with dependencies. rmq may be nil when the
// event bridge is disabled.
func Ready(db *sql.DB, rmq *messaging.RabbitMQ) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		dbResult := make(chan HealthCheckResult, 1)
		go func() {
			dbResult <- checkDatabase(ctx, db)
		}()

		checks := map[string]HealthCheckResult{}

		if rmq != nil {
			checks["rabbitmq"] = checkRabbitMQ(rmq)
		}
		checks["database"] = <-dbResult

		allHealthy := true
		for _, check := range checks {
			if check.Status != "up" {
				allHealthy = false
			}
		}

		response := map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"checks":    checks,
		}

		w.Header().Set("Content-Type", "application/json")
		if allHealthy {
			response["status"] = "ready"
			w.WriteHeader(http.StatusOK)
		} else {
			response["status"] = "not_ready"
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		json.NewEncoder(w).Encode(response)
	}
}

// checkDatabase verifies database connectivity
func checkDatabase(ctx context.Context, db *sql.DB) HealthCheckResult {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	stats := db.Stats()
	observability.DBConnectionsOpen.Set(float64(stats.OpenConnections))
	observability.DBConnectionsInUse.Set(float64(stats.InUse))

	if err != nil {
		return HealthCheckResult{
			Status:    "down",
			LatencyMs: latency.Milliseconds(),
			Error:     err.Error(),
		}
	}

	return HealthCheckResult{
		Status:    "up",
		LatencyMs: latency.Milliseconds(),
		Metadata: map[string]interface{}{
			"connections_open":   stats.OpenConnections,
			"connections_in_use": stats.InUse,
			"connections_idle":   stats.Idle,
			"max_open":           stats.MaxOpenConnections,
		},
	}
}

// checkRabbitMQ verifies RabbitMQ connectivity
func checkRabbitMQ(rmq *messaging.RabbitMQ) HealthCheckResult {
	if rmq.IsClosed() {
		return HealthCheckResult{
			Status: "down",
			Error:  "connection closed",
		}
	}

	return HealthCheckResult{
		Status: "up",
	}
}

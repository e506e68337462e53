package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/openhumans/loggather/utils"
)

const (
	statusOK       = "ok"
	statusReady    = "ready"
	statusNotReady = "not_ready"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status      string            `json:"status"`
	Timestamp   string            `json:"timestamp,omitempty"`
	Checks      map[string]string `json:"checks,omitempty"`
	PendingJobs *int              `json:"pending_jobs,omitempty"`
}

// QueueDepth reports how many retrieval jobs are waiting
type QueueDepth interface {
	CountPending(ctx context.Context) (int, error)
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	db     *sql.DB
	jobs   QueueDepth
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. db and jobs may be nil
// when the process runs without a database.
func NewHealthHandler(db *sql.DB, jobs QueueDepth, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:     db,
		jobs:   jobs,
		logger: logger,
	}
}

// HandleHealth handles GET /healthz
// Basic health check - always returns 200 if service is running
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteJSON(w, http.StatusOK, HealthResponse{Status: statusOK})
}

// HandleReadiness handles GET /readyz
// Readiness check - validates that the database and job queue are usable
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string)
	ready := true

	if h.db == nil {
		checks["database"] = "not_initialized"
		ready = false
	} else if err := h.checkDatabase(ctx); err != nil {
		h.logger.Warn("database health check failed", zap.Error(err))
		checks["database"] = "unhealthy"
		ready = false
	} else {
		checks["database"] = "healthy"
	}

	response := HealthResponse{
		Status:    statusReady,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}

	if ready && h.jobs != nil {
		n, err := h.jobs.CountPending(ctx)
		if err != nil {
			h.logger.Warn("queue health check failed", zap.Error(err))
			checks["queue"] = "unhealthy"
			ready = false
		} else {
			checks["queue"] = "healthy"
			response.PendingJobs = &n
		}
	}

	httpStatus := http.StatusOK
	if !ready {
		response.Status = statusNotReady
		httpStatus = http.StatusServiceUnavailable
	}

	if err := utils.WriteJSON(w, httpStatus, response); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}

// checkDatabase checks database connectivity
func (h *HealthHandler) checkDatabase(ctx context.Context) error {
	if err := h.db.PingContext(ctx); err != nil {
		return err
	}

	var result int
	return h.db.QueryRowContext(ctx, "SELECT 1").Scan(&result)
}

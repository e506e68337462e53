package handlers

import (
	"database/sql"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openhumans/loggather/app"
	"github.com/openhumans/loggather/services/datalogs"
	"github.com/openhumans/loggather/utils"
)

// Version is reported by the status endpoint; overridden at build time
var Version = "0.1.0"

func newHealthHandler(deps *app.Dependencies) *HealthHandler {
	var db *sql.DB
	if deps.DB != nil {
		db = deps.DB.DB
	}
	return NewHealthHandler(db, deps.Jobs, deps.Logger)
}

// HealthCheck returns a simple health check handler
func HealthCheck(deps *app.Dependencies) http.HandlerFunc {
	return newHealthHandler(deps).HandleHealth
}

// ReadinessCheck performs a more thorough readiness check
func ReadinessCheck(deps *app.Dependencies) http.HandlerFunc {
	return newHealthHandler(deps).HandleReadiness
}

// StatusResponse is the body of GET /api/v1/status
type StatusResponse struct {
	Version          string   `json:"version"`
	Environment      string   `json:"environment"`
	StorageBackend   string   `json:"storage_backend"`
	LogTypes         []string `json:"log_types"`
	LogRetentionDays int      `json:"log_retention_days"`
}

// StatusHandler returns application status information
func StatusHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logTypes := make([]string, 0, len(datalogs.LogTypes))
		for _, t := range datalogs.LogTypes {
			logTypes = append(logTypes, t.String())
		}
		_ = utils.WriteJSON(w, http.StatusOK, StatusResponse{
			Version:          Version,
			Environment:      deps.Config.Environment,
			StorageBackend:   deps.Config.Storage.Backend,
			LogTypes:         logTypes,
			LogRetentionDays: deps.Config.LogRetentionDays,
		})
	}
}

// MetricsHandler exposes the Prometheus registry, or 404 when metrics are
// disabled
func MetricsHandler(deps *app.Dependencies) http.Handler {
	if deps.MetricsRegistry == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = utils.WriteNotFound(w, "Metrics are disabled")
		})
	}
	return promhttp.HandlerFor(deps.MetricsRegistry, promhttp.HandlerOpts{})
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openhumans/loggather/middleware"
	"github.com/openhumans/loggather/models"
	"github.com/openhumans/loggather/services/retrieval"
	"github.com/openhumans/loggather/utils"
)

// RetrievalMessage is returned once a retrieval job has been queued
const RetrievalMessage = "Log retrieval initiated"

// RetrievalService is what the logs handler needs from the retrieval service
type RetrievalService interface {
	Request(ctx context.Context, memberID uuid.UUID, req retrieval.Request) (*models.RetrievalJob, error)
	Jobs(ctx context.Context, memberID uuid.UUID, limit int) ([]*models.RetrievalJob, error)
	Job(ctx context.Context, memberID, jobID uuid.UUID) (*models.RetrievalJob, error)
}

// LogsHandler handles log retrieval requests and job status
type LogsHandler struct {
	retrieval RetrievalService
	logger    *zap.Logger
}

// NewLogsHandler creates a new LogsHandler
func NewLogsHandler(retrieval RetrievalService, logger *zap.Logger) *LogsHandler {
	return &LogsHandler{
		retrieval: retrieval,
		logger:    logger,
	}
}

// HandleRetrieve handles POST /api/v1/logs/retrieve.
// Accepts a JSON body or the dashboard's form fields.
func (h *LogsHandler) HandleRetrieve(w http.ResponseWriter, r *http.Request) {
	memberID := middleware.GetMemberIDFromContext(r.Context())

	req, err := decodeRetrievalRequest(r)
	if err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	job, err := h.retrieval.Request(r.Context(), memberID, req)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.WriteAccepted(w, job, RetrievalMessage); err != nil {
		h.logger.Error("failed to write retrieve response", zap.Error(err))
	}
}

// HandleListJobs handles GET /api/v1/logs/jobs
func (h *LogsHandler) HandleListJobs(w http.ResponseWriter, r *http.Request) {
	memberID := middleware.GetMemberIDFromContext(r.Context())

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			_ = utils.WriteBadRequest(w, "limit must be a positive integer", nil)
			return
		}
		limit = n
	}

	jobs, err := h.retrieval.Jobs(r.Context(), memberID, limit)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.WriteOK(w, jobs); err != nil {
		h.logger.Error("failed to write jobs response", zap.Error(err))
	}
}

// HandleGetJob handles GET /api/v1/logs/jobs/{id}
func (h *LogsHandler) HandleGetJob(w http.ResponseWriter, r *http.Request) {
	memberID := middleware.GetMemberIDFromContext(r.Context())

	jobID, err := utils.ParseUUID(chi.URLParam(r, "id"), "id")
	if err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	job, err := h.retrieval.Job(r.Context(), memberID, jobID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.WriteOK(w, job); err != nil {
		h.logger.Error("failed to write job response", zap.Error(err))
	}
}

func decodeRetrievalRequest(r *http.Request) (retrieval.Request, error) {
	var req retrieval.Request

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if err := r.ParseForm(); err != nil {
			return req, fmt.Errorf("invalid form body: %w", err)
		}
		req.StartDate = r.PostFormValue("start_date")
		req.EndDate = r.PostFormValue("end_date")
		return req, nil
	}

	if r.Body == nil {
		return req, nil
	}
	// An empty body requests every log with no date bounds.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return req, fmt.Errorf("invalid JSON body: %w", err)
	}
	return req, nil
}

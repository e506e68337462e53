package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openhumans/loggather/middleware"
	"github.com/openhumans/loggather/models"
	"github.com/openhumans/loggather/services/openhumans"
	"github.com/openhumans/loggather/utils"
)

const dateLayout = "2006-01-02"

// MemberDirectory is what the dashboard needs from the member service
type MemberDirectory interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Member, error)
	Files(ctx context.Context, memberID uuid.UUID) ([]openhumans.DataFile, error)
}

// DashboardResponse describes what a member can request and what they
// already have stored
type DashboardResponse struct {
	Member           *models.Member        `json:"member"`
	LogRetentionDays int                   `json:"log_retention_days"`
	OldestDate       string                `json:"oldest_date"`
	NewestDate       string                `json:"newest_date"`
	Files            []openhumans.DataFile `json:"files"`
}

// DashboardHandler serves the member dashboard data
type DashboardHandler struct {
	members       MemberDirectory
	retentionDays int
	logger        *zap.Logger
	now           func() time.Time
}

// NewDashboardHandler creates a new DashboardHandler
func NewDashboardHandler(members MemberDirectory, retentionDays int, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{
		members:       members,
		retentionDays: retentionDays,
		logger:        logger,
		now:           time.Now,
	}
}

// HandleDashboard handles GET /api/v1/dashboard
func (h *DashboardHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	memberID := middleware.GetMemberIDFromContext(r.Context())

	member, err := h.members.Get(r.Context(), memberID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	files, err := h.members.Files(r.Context(), memberID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	if files == nil {
		files = []openhumans.DataFile{}
	}

	today := h.now().UTC()
	resp := DashboardResponse{
		Member:           member,
		LogRetentionDays: h.retentionDays,
		OldestDate:       today.AddDate(0, 0, -h.retentionDays).Format(dateLayout),
		NewestDate:       today.Format(dateLayout),
		Files:            files,
	}

	if err := utils.WriteOK(w, resp); err != nil {
		h.logger.Error("failed to write dashboard response", zap.Error(err))
	}
}

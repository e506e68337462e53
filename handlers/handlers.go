package handlers

import (
	"net/http"

	"github.com/openhumans/loggather/app"
	"github.com/openhumans/loggather/utils"
)

// RetrieveLogsHandler queues a log retrieval for the signed-in member
func RetrieveLogsHandler(deps *app.Dependencies) http.HandlerFunc {
	return NewLogsHandler(deps.RetrievalService, deps.Logger).HandleRetrieve
}

// ListJobsHandler lists the signed-in member's retrieval jobs
func ListJobsHandler(deps *app.Dependencies) http.HandlerFunc {
	return NewLogsHandler(deps.RetrievalService, deps.Logger).HandleListJobs
}

// GetJobHandler gets one of the signed-in member's retrieval jobs
func GetJobHandler(deps *app.Dependencies) http.HandlerFunc {
	return NewLogsHandler(deps.RetrievalService, deps.Logger).HandleGetJob
}

// DashboardHandlerFunc serves the signed-in member's dashboard data
func DashboardHandlerFunc(deps *app.Dependencies) http.HandlerFunc {
	return NewDashboardHandler(deps.MemberService, deps.Config.LogRetentionDays, deps.Logger).HandleDashboard
}

// NotFound answers unknown routes with a JSON body
func NotFound(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteNotFound(w, "Route not found")
}

// MethodNotAllowed answers known routes called with the wrong method
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed", nil)
}

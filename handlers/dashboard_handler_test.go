package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openhumans/loggather/models"
	"github.com/openhumans/loggather/services"
	"github.com/openhumans/loggather/services/openhumans"
)

// MockMemberDirectory mocks the member service
type MockMemberDirectory struct {
	mock.Mock
}

func (m *MockMemberDirectory) Get(ctx context.Context, id uuid.UUID) (*models.Member, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Member), args.Error(1)
}

func (m *MockMemberDirectory) Files(ctx context.Context, memberID uuid.UUID) ([]openhumans.DataFile, error) {
	args := m.Called(ctx, memberID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]openhumans.DataFile), args.Error(1)
}

func newTestDashboard(members MemberDirectory) *DashboardHandler {
	h := NewDashboardHandler(members, 120, zap.NewNop())
	h.now = func() time.Time { return time.Date(2024, 6, 1, 15, 0, 0, 0, time.UTC) }
	return h
}

func TestHandleDashboard(t *testing.T) {
	member := models.NewMember("12345678", "alice")

	t.Run("returns selectable range and files", func(t *testing.T) {
		members := new(MockMemberDirectory)
		members.On("Get", mock.Anything, member.ID).Return(member, nil)
		members.On("Files", mock.Anything, member.ID).Return([]openhumans.DataFile{
			{ID: "7", Basename: "open-humans-access-logs-proj.csv"},
		}, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/dashboard", nil)
		w := httptest.NewRecorder()

		newTestDashboard(members).HandleDashboard(w, memberRequest(req, member.ID))

		assert.Equal(t, http.StatusOK, w.Code)

		var response struct {
			Data DashboardResponse `json:"data"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, 120, response.Data.LogRetentionDays)
		assert.Equal(t, "2024-02-02", response.Data.OldestDate)
		assert.Equal(t, "2024-06-01", response.Data.NewestDate)
		assert.Equal(t, "alice", response.Data.Member.Username)
		require.Len(t, response.Data.Files, 1)
		assert.Equal(t, "open-humans-access-logs-proj.csv", response.Data.Files[0].Basename)

		members.AssertExpectations(t)
	})

	t.Run("no files renders an empty list", func(t *testing.T) {
		members := new(MockMemberDirectory)
		members.On("Get", mock.Anything, member.ID).Return(member, nil)
		members.On("Files", mock.Anything, member.ID).Return(nil, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/dashboard", nil)
		w := httptest.NewRecorder()

		newTestDashboard(members).HandleDashboard(w, memberRequest(req, member.ID))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"files":[]`)
	})

	t.Run("revoked authorization", func(t *testing.T) {
		members := new(MockMemberDirectory)
		members.On("Get", mock.Anything, member.ID).Return(member, nil)
		members.On("Files", mock.Anything, member.ID).Return(nil, services.ErrTokenRevoked)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/dashboard", nil)
		w := httptest.NewRecorder()

		newTestDashboard(members).HandleDashboard(w, memberRequest(req, member.ID))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unknown member", func(t *testing.T) {
		members := new(MockMemberDirectory)
		members.On("Get", mock.Anything, member.ID).Return(nil, services.ErrMemberNotFound)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/dashboard", nil)
		w := httptest.NewRecorder()

		newTestDashboard(members).HandleDashboard(w, memberRequest(req, member.ID))

		assert.Equal(t, http.StatusNotFound, w.Code)
		members.AssertNotCalled(t, "Files", mock.Anything, mock.Anything)
	})
}

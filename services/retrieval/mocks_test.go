package retrieval

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/openhumans/loggather/models"
	"github.com/openhumans/loggather/services/datalogs"
)

type MockJobQueue struct {
	mock.Mock
}

func (m *MockJobQueue) Enqueue(ctx context.Context, job *models.RetrievalJob) error {
	return m.Called(ctx, job).Error(0)
}

func (m *MockJobQueue) Dequeue(ctx context.Context) (*models.RetrievalJob, error) {
	args := m.Called(ctx)
	if job := args.Get(0); job != nil {
		return job.(*models.RetrievalJob), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockJobQueue) Heartbeat(ctx context.Context, id uuid.UUID, attempt int) error {
	return m.Called(ctx, id, attempt).Error(0)
}

func (m *MockJobQueue) Ack(ctx context.Context, id uuid.UUID, attempt int) error {
	return m.Called(ctx, id, attempt).Error(0)
}

func (m *MockJobQueue) Nack(ctx context.Context, id uuid.UUID, attempt int, cause string, maxAttempts int) (models.JobStatus, error) {
	args := m.Called(ctx, id, attempt, cause, maxAttempts)
	return args.Get(0).(models.JobStatus), args.Error(1)
}

func (m *MockJobQueue) RecoverStale(ctx context.Context, cutoff time.Time, maxAttempts int) (int64, error) {
	args := m.Called(ctx, cutoff, maxAttempts)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockJobQueue) GetByID(ctx context.Context, id uuid.UUID) (*models.RetrievalJob, error) {
	args := m.Called(ctx, id)
	if job := args.Get(0); job != nil {
		return job.(*models.RetrievalJob), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockJobQueue) ListByMember(ctx context.Context, memberID uuid.UUID, limit int) ([]*models.RetrievalJob, error) {
	args := m.Called(ctx, memberID, limit)
	if jobs := args.Get(0); jobs != nil {
		return jobs.([]*models.RetrievalJob), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockJobQueue) CountPending(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Run(ctx context.Context, job *models.RetrievalJob) ([]*datalogs.Result, error) {
	args := m.Called(ctx, job)
	if res := args.Get(0); res != nil {
		return res.([]*datalogs.Result), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockCredentials struct {
	mock.Mock
}

func (m *MockCredentials) AccessToken(ctx context.Context, memberID uuid.UUID) (string, error) {
	args := m.Called(ctx, memberID)
	return args.String(0), args.Error(1)
}

type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) FetchAll(ctx context.Context, endpoint, accessToken string, dr datalogs.DateRange) ([]datalogs.LogRecord, error) {
	args := m.Called(ctx, endpoint, accessToken, dr)
	if recs := args.Get(0); recs != nil {
		return recs.([]datalogs.LogRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockUploader struct {
	mock.Mock
}

func (m *MockUploader) Upload(ctx context.Context, accessToken string, file datalogs.ExportFile) error {
	return m.Called(ctx, accessToken, file).Error(0)
}

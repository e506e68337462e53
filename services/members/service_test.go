package members

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openhumans/loggather/models"
	"github.com/openhumans/loggather/repositories"
	"github.com/openhumans/loggather/services"
	"github.com/openhumans/loggather/services/openhumans"
)

type MockMemberRepository struct {
	mock.Mock
}

func (m *MockMemberRepository) Upsert(ctx context.Context, member *models.Member) error {
	return m.Called(ctx, member).Error(0)
}

func (m *MockMemberRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Member, error) {
	args := m.Called(ctx, id)
	if member := args.Get(0); member != nil {
		return member.(*models.Member), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockMemberRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Member, error) {
	args := m.Called(ctx, id)
	if member := args.Get(0); member != nil {
		return member.(*models.Member), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockMemberRepository) GetByProjectMemberID(ctx context.Context, projectMemberID string) (*models.Member, error) {
	args := m.Called(ctx, projectMemberID)
	if member := args.Get(0); member != nil {
		return member.(*models.Member), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockMemberRepository) UpdateTokens(ctx context.Context, id uuid.UUID, accessToken, refreshToken string, expiresAt time.Time) error {
	return m.Called(ctx, id, accessToken, refreshToken, expiresAt).Error(0)
}

func (m *MockMemberRepository) WithTx(tx repositories.Transaction) repositories.MemberRepository {
	return m
}

type MockTransactionManager struct {
	mock.Mock
}

func (m *MockTransactionManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	args := m.Called(ctx)
	if tx := args.Get(0); tx != nil {
		return tx.(repositories.Transaction), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockTransactionManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	return m.Called(ctx, fn).Error(0)
}

type MockTransaction struct {
	mock.Mock
}

func (m *MockTransaction) Commit() error            { return m.Called().Error(0) }
func (m *MockTransaction) Rollback() error          { return m.Called().Error(0) }
func (m *MockTransaction) Context() context.Context { return context.Background() }

type MockOpenHumans struct {
	mock.Mock
}

func (m *MockOpenHumans) ExchangeCode(ctx context.Context, code string) (*openhumans.Token, error) {
	args := m.Called(ctx, code)
	if tok := args.Get(0); tok != nil {
		return tok.(*openhumans.Token), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockOpenHumans) RefreshToken(ctx context.Context, refreshToken string) (*openhumans.Token, error) {
	args := m.Called(ctx, refreshToken)
	if tok := args.Get(0); tok != nil {
		return tok.(*openhumans.Token), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockOpenHumans) ExchangeMember(ctx context.Context, accessToken string) (*openhumans.MemberInfo, error) {
	args := m.Called(ctx, accessToken)
	if info := args.Get(0); info != nil {
		return info.(*openhumans.MemberInfo), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockOpenHumans) ListFiles(ctx context.Context, accessToken string) ([]openhumans.DataFile, error) {
	args := m.Called(ctx, accessToken)
	if files := args.Get(0); files != nil {
		return files.([]openhumans.DataFile), args.Error(1)
	}
	return nil, args.Error(1)
}

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestService() (*Service, *MockMemberRepository, *MockTransactionManager, *MockOpenHumans) {
	repo := new(MockMemberRepository)
	txMgr := new(MockTransactionManager)
	oh := new(MockOpenHumans)
	svc := NewService(repo, txMgr, oh, zap.NewNop())
	svc.now = func() time.Time { return fixedNow }
	return svc, repo, txMgr, oh
}

func memberWithExpiry(expires time.Time) *models.Member {
	m := models.NewMember("12345678", "alice")
	m.SetTokens("old-access", "old-refresh", expires)
	return m
}

func TestService_Login(t *testing.T) {
	t.Run("stores member with token expiry", func(t *testing.T) {
		svc, repo, _, oh := newTestService()
		ctx := context.Background()

		oh.On("ExchangeCode", ctx, "the-code").Return(&openhumans.Token{
			AccessToken: "a", RefreshToken: "r", ExpiresIn: 36000,
		}, nil)
		oh.On("ExchangeMember", ctx, "a").Return(&openhumans.MemberInfo{
			ProjectMemberID: "12345678", Username: "alice",
		}, nil)
		repo.On("Upsert", ctx, mock.MatchedBy(func(m *models.Member) bool {
			return m.ProjectMemberID == "12345678" &&
				m.AccessToken == "a" &&
				m.RefreshToken == "r" &&
				m.TokenExpiresAt.Equal(fixedNow.Add(10*time.Hour))
		})).Return(nil)

		member, err := svc.Login(ctx, "the-code")
		require.NoError(t, err)
		assert.Equal(t, "alice", member.Username)
		repo.AssertExpectations(t)
	})

	t.Run("missing code", func(t *testing.T) {
		svc, _, _, _ := newTestService()
		_, err := svc.Login(context.Background(), "")
		assert.True(t, services.IsValidationError(err))
	})

	t.Run("rejected code", func(t *testing.T) {
		svc, repo, _, oh := newTestService()
		oh.On("ExchangeCode", mock.Anything, "bad").
			Return(nil, services.NewDomainError(services.ErrorTypeUnauthorized, "rejected", nil))

		_, err := svc.Login(context.Background(), "bad")
		assert.True(t, services.IsUnauthorizedError(err))
		repo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
	})
}

func TestService_AccessToken(t *testing.T) {
	t.Run("fresh token used as is", func(t *testing.T) {
		svc, repo, txMgr, oh := newTestService()
		member := memberWithExpiry(fixedNow.Add(time.Hour))
		repo.On("GetByID", mock.Anything, member.ID).Return(member, nil)

		token, err := svc.AccessToken(context.Background(), member.ID)
		require.NoError(t, err)
		assert.Equal(t, "old-access", token)
		txMgr.AssertNotCalled(t, "Begin", mock.Anything)
		oh.AssertNotCalled(t, "RefreshToken", mock.Anything, mock.Anything)
	})

	t.Run("token inside leeway is refreshed", func(t *testing.T) {
		svc, repo, txMgr, oh := newTestService()
		member := memberWithExpiry(fixedNow.Add(30 * time.Second))
		tx := new(MockTransaction)

		repo.On("GetByID", mock.Anything, member.ID).Return(member, nil)
		txMgr.On("Begin", mock.Anything).Return(tx, nil)
		repo.On("GetByIDForUpdate", mock.Anything, member.ID).Return(member, nil)
		oh.On("RefreshToken", mock.Anything, "old-refresh").
			Return(&openhumans.Token{AccessToken: "new-access", RefreshToken: "new-refresh", ExpiresIn: 3600}, nil)
		repo.On("UpdateTokens", mock.Anything, member.ID, "new-access", "new-refresh", fixedNow.Add(time.Hour)).Return(nil)
		tx.On("Commit").Return(nil)

		token, err := svc.AccessToken(context.Background(), member.ID)
		require.NoError(t, err)
		assert.Equal(t, "new-access", token)
		repo.AssertExpectations(t)
		tx.AssertExpectations(t)
	})

	t.Run("refreshed by another worker while waiting for lock", func(t *testing.T) {
		svc, repo, txMgr, oh := newTestService()
		stale := memberWithExpiry(fixedNow)
		fresh := memberWithExpiry(fixedNow.Add(time.Hour))
		fresh.ID = stale.ID
		fresh.AccessToken = "other-worker"
		tx := new(MockTransaction)

		repo.On("GetByID", mock.Anything, stale.ID).Return(stale, nil)
		txMgr.On("Begin", mock.Anything).Return(tx, nil)
		repo.On("GetByIDForUpdate", mock.Anything, stale.ID).Return(fresh, nil)
		tx.On("Commit").Return(nil)

		token, err := svc.AccessToken(context.Background(), stale.ID)
		require.NoError(t, err)
		assert.Equal(t, "other-worker", token)
		oh.AssertNotCalled(t, "RefreshToken", mock.Anything, mock.Anything)
	})

	t.Run("refused refresh means revoked", func(t *testing.T) {
		svc, repo, txMgr, oh := newTestService()
		member := memberWithExpiry(fixedNow.Add(-time.Hour))
		tx := new(MockTransaction)

		repo.On("GetByID", mock.Anything, member.ID).Return(member, nil)
		txMgr.On("Begin", mock.Anything).Return(tx, nil)
		repo.On("GetByIDForUpdate", mock.Anything, member.ID).Return(member, nil)
		oh.On("RefreshToken", mock.Anything, "old-refresh").
			Return(nil, services.NewDomainError(services.ErrorTypeUnauthorized, "rejected", nil))
		tx.On("Rollback").Return(nil)

		_, err := svc.AccessToken(context.Background(), member.ID)
		assert.ErrorIs(t, err, services.ErrTokenRevoked)
		repo.AssertNotCalled(t, "UpdateTokens", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		tx.AssertExpectations(t)
	})

	t.Run("unknown member", func(t *testing.T) {
		svc, repo, _, _ := newTestService()
		id := uuid.New()
		repo.On("GetByID", mock.Anything, id).Return(nil, repositories.ErrMemberNotFound)

		_, err := svc.AccessToken(context.Background(), id)
		assert.True(t, services.IsNotFoundError(err))
	})

	t.Run("database failure is internal", func(t *testing.T) {
		svc, repo, _, _ := newTestService()
		id := uuid.New()
		repo.On("GetByID", mock.Anything, id).Return(nil, errors.New("connection refused"))

		_, err := svc.AccessToken(context.Background(), id)
		assert.True(t, services.IsInternalError(err))
	})
}

func TestService_Files(t *testing.T) {
	svc, repo, _, oh := newTestService()
	member := memberWithExpiry(fixedNow.Add(time.Hour))
	files := []openhumans.DataFile{{Basename: "open-humans-access-logs-None-None-x.csv"}}

	repo.On("GetByID", mock.Anything, member.ID).Return(member, nil)
	oh.On("ListFiles", mock.Anything, "old-access").Return(files, nil)

	got, err := svc.Files(context.Background(), member.ID)
	require.NoError(t, err)
	assert.Equal(t, files, got)
}

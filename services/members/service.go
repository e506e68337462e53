package members

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openhumans/loggather/models"
	"github.com/openhumans/loggather/repositories"
	"github.com/openhumans/loggather/services"
	"github.com/openhumans/loggather/services/openhumans"
)

// DefaultRefreshLeeway is how close to expiry an access token may get before
// it is refreshed ahead of use.
const DefaultRefreshLeeway = 60 * time.Second

// OpenHumans is the subset of the Open Humans client the member service needs
type OpenHumans interface {
	ExchangeCode(ctx context.Context, code string) (*openhumans.Token, error)
	RefreshToken(ctx context.Context, refreshToken string) (*openhumans.Token, error)
	ExchangeMember(ctx context.Context, accessToken string) (*openhumans.MemberInfo, error)
	ListFiles(ctx context.Context, accessToken string) ([]openhumans.DataFile, error)
}

// Service manages members and their Open Humans credentials
type Service struct {
	members repositories.MemberRepository
	txMgr   repositories.TransactionManager
	oh      OpenHumans
	logger  *zap.Logger
	leeway  time.Duration
	now     func() time.Time
}

// NewService creates a new member service
func NewService(members repositories.MemberRepository, txMgr repositories.TransactionManager, oh OpenHumans, logger *zap.Logger) *Service {
	return &Service{
		members: members,
		txMgr:   txMgr,
		oh:      oh,
		logger:  logger,
		leeway:  DefaultRefreshLeeway,
		now:     time.Now,
	}
}

// Login completes the OAuth flow: it trades the authorization code for
// tokens, identifies the member and stores the credential.
func (s *Service) Login(ctx context.Context, code string) (*models.Member, error) {
	if code == "" {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "missing authorization code", nil)
	}

	issued := s.now()
	tok, err := s.oh.ExchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}

	info, err := s.oh.ExchangeMember(ctx, tok.AccessToken)
	if err != nil {
		return nil, err
	}

	member := models.NewMember(info.ProjectMemberID, info.Username)
	member.SetTokens(tok.AccessToken, tok.RefreshToken, tok.ExpiresAt(issued))

	if err := s.members.Upsert(ctx, member); err != nil {
		return nil, services.WrapInternal("failed to store member", err)
	}

	s.logger.Info("member logged in",
		zap.String("member_id", member.ID.String()),
		zap.String("project_member_id", member.ProjectMemberID))
	return member, nil
}

// Get retrieves a member by ID
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Member, error) {
	member, err := s.members.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return member, nil
}

// AccessToken returns a usable access token for the member, refreshing it
// first when it is within the refresh leeway of expiring. The refresh runs
// under a row lock so concurrent jobs for one member refresh only once.
func (s *Service) AccessToken(ctx context.Context, memberID uuid.UUID) (string, error) {
	member, err := s.members.GetByID(ctx, memberID)
	if err != nil {
		return "", mapRepoError(err)
	}
	if !member.TokenExpiresWithin(s.now(), s.leeway) {
		return member.AccessToken, nil
	}

	return services.WithTransactionResult(ctx, s.txMgr, func(ctx context.Context, tx repositories.Transaction) (string, error) {
		repo := s.members.WithTx(tx)

		locked, err := repo.GetByIDForUpdate(ctx, memberID)
		if err != nil {
			return "", mapRepoError(err)
		}
		// another worker may have refreshed while we waited on the lock
		if !locked.TokenExpiresWithin(s.now(), s.leeway) {
			return locked.AccessToken, nil
		}

		issued := s.now()
		tok, err := s.oh.RefreshToken(ctx, locked.RefreshToken)
		if err != nil {
			if services.IsUnauthorizedError(err) {
				s.logger.Warn("open humans refused token refresh",
					zap.String("member_id", memberID.String()),
					zap.Error(err))
				return "", services.ErrTokenRevoked
			}
			return "", err
		}

		refresh := tok.RefreshToken
		if refresh == "" {
			refresh = locked.RefreshToken
		}
		if err := repo.UpdateTokens(ctx, memberID, tok.AccessToken, refresh, tok.ExpiresAt(issued)); err != nil {
			return "", mapRepoError(err)
		}

		s.logger.Info("refreshed member access token", zap.String("member_id", memberID.String()))
		return tok.AccessToken, nil
	})
}

// Files lists the member's files currently stored in the project
func (s *Service) Files(ctx context.Context, memberID uuid.UUID) ([]openhumans.DataFile, error) {
	token, err := s.AccessToken(ctx, memberID)
	if err != nil {
		return nil, err
	}
	return s.oh.ListFiles(ctx, token)
}

func mapRepoError(err error) error {
	if errors.Is(err, repositories.ErrMemberNotFound) {
		return services.NewDomainError(services.ErrorTypeNotFound, "member not found", err)
	}
	return services.WrapInternal("member lookup failed", err)
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openhumans/loggather/models"
	"github.com/openhumans/loggather/repositories"
)

const memberColumns = `id, project_member_id, username, access_token, refresh_token, token_expires_at, created_at, updated_at`

// MemberRepository implements the repositories.MemberRepository interface
type MemberRepository struct {
	db     *DB
	tx     *Transaction
	logger *zap.Logger
}

// NewMemberRepository creates a new member repository
func NewMemberRepository(db *DB, logger *zap.Logger) repositories.MemberRepository {
	return &MemberRepository{
		db:     db,
		logger: logger,
	}
}

func (r *MemberRepository) executor(ctx context.Context) Executor {
	if r.tx != nil {
		return r.tx.tx
	}
	return GetExecutor(ctx, r.db)
}

// Upsert inserts or updates a member keyed by project member id
func (r *MemberRepository) Upsert(ctx context.Context, member *models.Member) error {
	query := `
		INSERT INTO members (` + memberColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (project_member_id) DO UPDATE SET
			username = EXCLUDED.username,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_expires_at = EXCLUDED.token_expires_at,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`

	err := r.executor(ctx).QueryRowContext(ctx, query,
		member.ID,
		member.ProjectMemberID,
		member.Username,
		member.AccessToken,
		member.RefreshToken,
		member.TokenExpiresAt,
		member.CreatedAt,
		member.UpdatedAt,
	).Scan(&member.ID, &member.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert member: %w", err)
	}

	r.logger.Debug("member upserted",
		zap.String("id", member.ID.String()),
		zap.String("project_member_id", member.ProjectMemberID))
	return nil
}

// GetByID retrieves a member by ID
func (r *MemberRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetByIDForUpdate retrieves a member and locks the row
func (r *MemberRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE id = $1 FOR UPDATE`
	return r.getOne(ctx, query, id)
}

// GetByProjectMemberID retrieves a member by Open Humans project member id
func (r *MemberRepository) GetByProjectMemberID(ctx context.Context, projectMemberID string) (*models.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE project_member_id = $1`
	return r.getOne(ctx, query, projectMemberID)
}

func (r *MemberRepository) getOne(ctx context.Context, query string, arg interface{}) (*models.Member, error) {
	member := &models.Member{}

	err := r.executor(ctx).QueryRowContext(ctx, query, arg).Scan(
		&member.ID,
		&member.ProjectMemberID,
		&member.Username,
		&member.AccessToken,
		&member.RefreshToken,
		&member.TokenExpiresAt,
		&member.CreatedAt,
		&member.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %v", repositories.ErrMemberNotFound, arg)
		}
		return nil, fmt.Errorf("failed to get member: %w", err)
	}

	return member, nil
}

// UpdateTokens stores a refreshed token pair
func (r *MemberRepository) UpdateTokens(ctx context.Context, id uuid.UUID, accessToken, refreshToken string, expiresAt time.Time) error {
	query := `
		UPDATE members
		SET access_token = $2, refresh_token = $3, token_expires_at = $4, updated_at = $5
		WHERE id = $1
	`

	result, err := r.executor(ctx).ExecContext(ctx, query, id, accessToken, refreshToken, expiresAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update member tokens: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", repositories.ErrMemberNotFound, id)
	}

	r.logger.Debug("member tokens updated", zap.String("id", id.String()))
	return nil
}

// WithTx returns a new repository instance bound to the transaction
func (r *MemberRepository) WithTx(tx repositories.Transaction) repositories.MemberRepository {
	pgTx, _ := tx.(*Transaction)
	return &MemberRepository{
		db:     r.db,
		tx:     pgTx,
		logger: r.logger,
	}
}

package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/openhumans/loggather/models"
)

var (
	// ErrNoJobs is returned by Dequeue when nothing is pending.
	ErrNoJobs = errors.New("no jobs available")
	// ErrJobNotFound is returned when a job is missing or not in the expected state.
	ErrJobNotFound = errors.New("job not found")
	// ErrMemberNotFound is returned when no member matches the lookup.
	ErrMemberNotFound = errors.New("member not found")
)

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// MemberRepository handles member data operations
type MemberRepository interface {
	// Upsert inserts the member or, when the project member id already
	// exists, updates its username and tokens. The stored row is written
	// back into member.
	Upsert(ctx context.Context, member *models.Member) error

	// GetByID retrieves a member by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.Member, error)

	// GetByIDForUpdate retrieves a member and locks its row until the
	// surrounding transaction ends
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Member, error)

	// GetByProjectMemberID retrieves a member by Open Humans project member id
	GetByProjectMemberID(ctx context.Context, projectMemberID string) (*models.Member, error)

	// UpdateTokens stores a refreshed token pair
	UpdateTokens(ctx context.Context, id uuid.UUID, accessToken, refreshToken string, expiresAt time.Time) error

	// WithTx returns a new repository instance bound to the transaction
	WithTx(tx Transaction) MemberRepository
}

// RetrievalJobQueue is an at-least-once queue of retrieval jobs
type RetrievalJobQueue interface {
	// Enqueue adds a pending job
	Enqueue(ctx context.Context, job *models.RetrievalJob) error

	// Dequeue claims the oldest pending job and marks it processing. The
	// claim is identified by the job id plus its incremented attempt count.
	// Returns ErrNoJobs if nothing is pending.
	Dequeue(ctx context.Context) (*models.RetrievalJob, error)

	// Heartbeat keeps a claim alive while the job runs. Returns
	// ErrJobNotFound once the claim is no longer held.
	Heartbeat(ctx context.Context, id uuid.UUID, attempt int) error

	// Ack marks the claimed job succeeded. Returns ErrJobNotFound when the
	// claim was lost to stale recovery.
	Ack(ctx context.Context, id uuid.UUID, attempt int) error

	// Nack records a failed attempt. The job goes back to pending unless it
	// has reached maxAttempts, in which case it is marked failed. The
	// resulting status is returned. Returns ErrJobNotFound when the claim
	// was lost.
	Nack(ctx context.Context, id uuid.UUID, attempt int, cause string, maxAttempts int) (models.JobStatus, error)

	// RecoverStale returns jobs whose last heartbeat is older than cutoff to
	// pending, or marks them failed once they have used maxAttempts
	RecoverStale(ctx context.Context, cutoff time.Time, maxAttempts int) (int64, error)

	// GetByID retrieves a job by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.RetrievalJob, error)

	// ListByMember retrieves a member's most recent jobs, newest first
	ListByMember(ctx context.Context, memberID uuid.UUID, limit int) ([]*models.RetrievalJob, error)

	// CountPending returns the number of jobs waiting to be claimed
	CountPending(ctx context.Context) (int, error)
}

// Repositories aggregates all repositories
type Repositories struct {
	Members MemberRepository
	Jobs    RetrievalJobQueue
}

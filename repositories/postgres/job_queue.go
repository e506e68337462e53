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

const (
	jobColumns = `id, member_id, start_date, end_date, status, attempts, last_error, created_at, started_at, finished_at`
	dateLayout = "2006-01-02"
)

// JobQueue implements repositories.RetrievalJobQueue on the retrieval_jobs
// table. Claims use SELECT ... FOR UPDATE SKIP LOCKED so any number of
// workers can poll concurrently without double delivery.
type JobQueue struct {
	db     *DB
	logger *zap.Logger
	now    func() time.Time
}

// NewJobQueue creates a new PostgreSQL-backed retrieval job queue
func NewJobQueue(db *DB, logger *zap.Logger) *JobQueue {
	return &JobQueue{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func nullDate(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Enqueue adds a pending job
func (q *JobQueue) Enqueue(ctx context.Context, job *models.RetrievalJob) error {
	query := `
		INSERT INTO retrieval_jobs (id, member_id, start_date, end_date, status, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := GetExecutor(ctx, q.db).ExecContext(ctx, query,
		job.ID,
		job.MemberID,
		nullDate(job.StartDate),
		nullDate(job.EndDate),
		models.JobStatusPending,
		job.Attempts,
		job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue retrieval job: %w", err)
	}

	q.logger.Debug("enqueued retrieval job",
		zap.String("job_id", job.ID.String()),
		zap.String("member_id", job.MemberID.String()))
	return nil
}

// Dequeue claims the oldest pending job
func (q *JobQueue) Dequeue(ctx context.Context) (*models.RetrievalJob, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	selectQuery := `
		SELECT ` + jobColumns + `
		FROM retrieval_jobs
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`

	job, err := scanJob(tx.QueryRowContext(ctx, selectQuery))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrNoJobs
		}
		return nil, fmt.Errorf("failed to select retrieval job: %w", err)
	}

	now := q.now()
	updateQuery := `
		UPDATE retrieval_jobs
		SET status = 'processing', started_at = $2, heartbeat_at = $2, attempts = attempts + 1
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, updateQuery, job.ID, now); err != nil {
		return nil, fmt.Errorf("failed to claim retrieval job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	job.Status = models.JobStatusProcessing
	job.StartedAt = &now
	job.Attempts++

	q.logger.Debug("dequeued retrieval job",
		zap.String("job_id", job.ID.String()),
		zap.Int("attempt", job.Attempts))
	return job, nil
}

// Heartbeat refreshes heartbeat_at for a claim that is still held
func (q *JobQueue) Heartbeat(ctx context.Context, id uuid.UUID, attempt int) error {
	query := `
		UPDATE retrieval_jobs
		SET heartbeat_at = $3
		WHERE id = $1 AND attempts = $2 AND status = 'processing'
	`

	result, err := q.db.ExecContext(ctx, query, id, attempt, q.now())
	if err != nil {
		return fmt.Errorf("failed to heartbeat retrieval job: %w", err)
	}
	return expectOneRow(result)
}

// Ack marks a claimed job succeeded
func (q *JobQueue) Ack(ctx context.Context, id uuid.UUID, attempt int) error {
	query := `
		UPDATE retrieval_jobs
		SET status = 'succeeded', finished_at = $3, last_error = ''
		WHERE id = $1 AND attempts = $2 AND status = 'processing'
	`

	result, err := q.db.ExecContext(ctx, query, id, attempt, q.now())
	if err != nil {
		return fmt.Errorf("failed to ack retrieval job: %w", err)
	}
	if err := expectOneRow(result); err != nil {
		return err
	}

	q.logger.Debug("acknowledged retrieval job", zap.String("job_id", id.String()))
	return nil
}

// Nack records a failed attempt and re-pends or fails the job
func (q *JobQueue) Nack(ctx context.Context, id uuid.UUID, attempt int, cause string, maxAttempts int) (models.JobStatus, error) {
	query := `
		UPDATE retrieval_jobs
		SET status = CASE WHEN attempts >= $4 THEN 'failed' ELSE 'pending' END,
			finished_at = CASE WHEN attempts >= $4 THEN $5::timestamptz ELSE NULL END,
			started_at = NULL,
			heartbeat_at = NULL,
			last_error = $3
		WHERE id = $1 AND attempts = $2 AND status = 'processing'
		RETURNING status
	`

	var status models.JobStatus
	err := q.db.QueryRowContext(ctx, query, id, attempt, cause, maxAttempts, q.now()).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", repositories.ErrJobNotFound
		}
		return "", fmt.Errorf("failed to nack retrieval job: %w", err)
	}

	q.logger.Debug("nacked retrieval job",
		zap.String("job_id", id.String()),
		zap.String("status", string(status)))
	return status, nil
}

// RecoverStale releases jobs whose worker stopped sending heartbeats
func (q *JobQueue) RecoverStale(ctx context.Context, cutoff time.Time, maxAttempts int) (int64, error) {
	query := `
		UPDATE retrieval_jobs
		SET status = CASE WHEN attempts >= $2 THEN 'failed' ELSE 'pending' END,
			finished_at = CASE WHEN attempts >= $2 THEN $3::timestamptz ELSE NULL END,
			last_error = 'worker lost while processing',
			started_at = NULL,
			heartbeat_at = NULL
		WHERE status = 'processing' AND COALESCE(heartbeat_at, started_at) < $1
	`

	result, err := q.db.ExecContext(ctx, query, cutoff, maxAttempts, q.now())
	if err != nil {
		return 0, fmt.Errorf("failed to recover stale retrieval jobs: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n > 0 {
		q.logger.Warn("recovered stale retrieval jobs", zap.Int64("count", n))
	}
	return n, nil
}

// GetByID retrieves a job by ID
func (q *JobQueue) GetByID(ctx context.Context, id uuid.UUID) (*models.RetrievalJob, error) {
	query := `SELECT ` + jobColumns + ` FROM retrieval_jobs WHERE id = $1`

	job, err := scanJob(GetExecutor(ctx, q.db).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get retrieval job: %w", err)
	}
	return job, nil
}

// ListByMember retrieves a member's most recent jobs
func (q *JobQueue) ListByMember(ctx context.Context, memberID uuid.UUID, limit int) ([]*models.RetrievalJob, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM retrieval_jobs
		WHERE member_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := GetExecutor(ctx, q.db).QueryContext(ctx, query, memberID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list retrieval jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]*models.RetrievalJob, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan retrieval job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating retrieval jobs: %w", err)
	}

	return jobs, nil
}

// CountPending returns the number of pending jobs
func (q *JobQueue) CountPending(ctx context.Context) (int, error) {
	var n int
	err := GetExecutor(ctx, q.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM retrieval_jobs WHERE status = 'pending'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending retrieval jobs: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*models.RetrievalJob, error) {
	var (
		job                   models.RetrievalJob
		startDate, endDate    sql.NullTime
		startedAt, finishedAt sql.NullTime
	)

	err := row.Scan(
		&job.ID,
		&job.MemberID,
		&startDate,
		&endDate,
		&job.Status,
		&job.Attempts,
		&job.LastError,
		&job.CreatedAt,
		&startedAt,
		&finishedAt,
	)
	if err != nil {
		return nil, err
	}

	if startDate.Valid {
		job.StartDate = startDate.Time.Format(dateLayout)
	}
	if endDate.Valid {
		job.EndDate = endDate.Time.Format(dateLayout)
	}
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		job.FinishedAt = &t
	}
	return &job, nil
}

func expectOneRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return repositories.ErrJobNotFound
	}
	return nil
}

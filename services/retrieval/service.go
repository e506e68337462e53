package retrieval

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openhumans/loggather/models"
	"github.com/openhumans/loggather/repositories"
	"github.com/openhumans/loggather/services"
	"github.com/openhumans/loggather/utils"
)

const dateLayout = "2006-01-02"

// DefaultListLimit bounds how many jobs a member listing returns
const DefaultListLimit = 20

// Request asks for a member's access logs in an optional date range.
// Both bounds are inclusive calendar dates.
type Request struct {
	StartDate string `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
}

// Validate checks the date formats and that start is not after end
func (r Request) Validate() error {
	if err := utils.ValidateStruct(r); err != nil {
		derr := services.NewDomainError(services.ErrorTypeValidation, "invalid date range", err)
		for field, msg := range utils.GetValidationFields(err) {
			derr.WithDetail(field, msg)
		}
		return derr
	}
	if r.StartDate == "" || r.EndDate == "" {
		return nil
	}
	start, _ := time.Parse(dateLayout, r.StartDate)
	end, _ := time.Parse(dateLayout, r.EndDate)
	if start.After(end) {
		return services.NewDomainError(services.ErrorTypeValidation, "invalid date range", services.ErrInvalidDateRange).
			WithDetail("start_date", r.StartDate).
			WithDetail("end_date", r.EndDate)
	}
	return nil
}

// Service accepts retrieval requests and exposes their status. The work
// itself happens in a Pool.
type Service struct {
	jobs   repositories.RetrievalJobQueue
	logger *zap.Logger
}

// NewService creates a new retrieval service
func NewService(jobs repositories.RetrievalJobQueue, logger *zap.Logger) *Service {
	return &Service{
		jobs:   jobs,
		logger: logger,
	}
}

// Request validates the range and enqueues a retrieval job for the member.
// It returns as soon as the job is stored.
func (s *Service) Request(ctx context.Context, memberID uuid.UUID, req Request) (*models.RetrievalJob, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	job := models.NewRetrievalJob(memberID, req.StartDate, req.EndDate)
	if err := s.jobs.Enqueue(ctx, job); err != nil {
		return nil, services.WrapInternal("failed to enqueue retrieval job", err)
	}

	s.logger.Info("log retrieval initiated",
		zap.String("job_id", job.ID.String()),
		zap.String("member_id", memberID.String()),
		zap.String("start_date", req.StartDate),
		zap.String("end_date", req.EndDate))
	return job, nil
}

// Jobs lists the member's most recent retrieval jobs
func (s *Service) Jobs(ctx context.Context, memberID uuid.UUID, limit int) ([]*models.RetrievalJob, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	jobs, err := s.jobs.ListByMember(ctx, memberID, limit)
	if err != nil {
		return nil, services.WrapInternal("failed to list retrieval jobs", err)
	}
	return jobs, nil
}

// Job returns one of the member's jobs. Jobs owned by other members are
// reported as not found.
func (s *Service) Job(ctx context.Context, memberID, jobID uuid.UUID) (*models.RetrievalJob, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, repositories.ErrJobNotFound) {
			return nil, services.NewDomainError(services.ErrorTypeNotFound, "retrieval job not found", err)
		}
		return nil, services.WrapInternal("failed to get retrieval job", err)
	}
	if job.MemberID != memberID {
		return nil, services.NewDomainError(services.ErrorTypeNotFound, "retrieval job not found", nil)
	}
	return job, nil
}

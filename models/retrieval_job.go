package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a retrieval job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusSucceeded  JobStatus = "succeeded"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal returns true once the job will not run again
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

// RetrievalJob is one queued request to export a member's access logs.
// StartDate and EndDate are YYYY-MM-DD or empty when unbounded.
type RetrievalJob struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	MemberID   uuid.UUID  `json:"member_id" db:"member_id"`
	StartDate  string     `json:"start_date,omitempty" db:"start_date"`
	EndDate    string     `json:"end_date,omitempty" db:"end_date"`
	Status     JobStatus  `json:"status" db:"status"`
	Attempts   int        `json:"attempts" db:"attempts"`
	LastError  string     `json:"last_error,omitempty" db:"last_error"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty" db:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" db:"finished_at"`
}

// TableName returns the table name for the RetrievalJob model
func (RetrievalJob) TableName() string {
	return "retrieval_jobs"
}

// NewRetrievalJob creates a pending job for the member
func NewRetrievalJob(memberID uuid.UUID, startDate, endDate string) *RetrievalJob {
	return &RetrievalJob{
		ID:        uuid.New(),
		MemberID:  memberID,
		StartDate: startDate,
		EndDate:   endDate,
		Status:    JobStatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

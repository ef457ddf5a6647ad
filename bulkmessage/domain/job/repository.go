package job

import (
	"context"
	"time"
)

type ListFilter struct {
	UserID  string
	Status  Status
	Channel Channel
	Limit   int
	Offset  int
}

// DueQuery selects what a poller may pick up on a tick.
type DueQuery struct {
	Mode        ExecutionMode
	Now         time.Time
	StaleBefore time.Time
	Limit       int
}

// ClaimRequest describes the conditional transition to running.
// AllowAnyStatus is used by manual execution: everything except cancelled or
// a fresh running job may be claimed.
type ClaimRequest struct {
	JobID          string
	Owner          string
	Now            time.Time
	StaleBefore    time.Time
	AllowAnyStatus bool
}

// ProgressUpdate is written after every recipient. A non-empty Owner makes
// the write conditional on the job still being claimed by that runner.
type ProgressUpdate struct {
	Owner            string
	Progress         Progress
	FailedRecipients []FailedRecipient
	HeartbeatAt      time.Time
}

// Completion is the end-of-run state plus the history record stored with it.
// Owner has the same meaning as in ProgressUpdate.
type Completion struct {
	Owner            string
	Status           Status
	Progress         Progress
	FailedRecipients []FailedRecipient
	LastError        string
	LastExecutedAt   time.Time
	NextExecutionAt  *time.Time
	CompletedAt      *time.Time
	Record           ExecutionRecord
}

type IJobRepository interface {
	Create(ctx context.Context, j *ScheduledJob) error
	Get(ctx context.Context, id string) (*ScheduledJob, error)
	List(ctx context.Context, filter ListFilter) ([]ScheduledJob, error)
	// Update rewrites the definition of a job that is not running. It leaves
	// execution bookkeeping alone and drops any claim; a running job yields
	// ErrJobRunning.
	Update(ctx context.Context, j *ScheduledJob) error
	// Delete yields ErrJobRunning for a running job.
	Delete(ctx context.Context, id string) error
	UpdateStatus(ctx context.Context, id string, status Status) error
	// TransitionStatus moves the job to status only when its current status
	// is one of from, and returns ErrStatusConflict otherwise. Moving to a
	// claimable status drops the claim.
	TransitionStatus(ctx context.Context, id string, from []Status, to Status) error

	ListDue(ctx context.Context, q DueQuery) ([]ScheduledJob, error)
	// Claim returns the job as it was claimed, or ErrJobAlreadyClaimed.
	Claim(ctx context.Context, req ClaimRequest) (*ScheduledJob, error)
	// Release hands a running job held by owner back to scheduled, keeping its progress.
	Release(ctx context.Context, id, owner string) error
	// ResetRun stores a fresh progress block and clears failures for a new run.
	// It, SaveProgress, Touch and Finish yield ErrLeaseLost when owner no
	// longer holds the claim.
	ResetRun(ctx context.Context, id, owner string, p Progress) error
	SaveProgress(ctx context.Context, id string, update ProgressUpdate) error
	Touch(ctx context.Context, id, owner string, at time.Time) error
	// Finish applies the completion and appends its record atomically, incrementing execution_count.
	Finish(ctx context.Context, id string, c Completion) error

	ListExecutions(ctx context.Context, jobID string, limit int) ([]ExecutionRecord, error)
}

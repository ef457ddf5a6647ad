package application

import (
	"context"
	"errors"
	"time"

	"github.com/AzielCF/az-bulk/bulkmessage/domain/job"
	"github.com/sirupsen/logrus"
)

// Persister writes run state back to storage. Every write is scoped to the
// claim the job was started with, and job.ErrLeaseLost is handed back so the
// run stops. Other progress and heartbeat failures are logged and the run goes
// on, since the next claim resumes from whatever progress was stored last.
type Persister struct {
	repo  job.IJobRepository
	clock func() time.Time
}

func NewPersister(repo job.IJobRepository, clock func() time.Time) *Persister {
	if clock == nil {
		clock = time.Now
	}
	return &Persister{repo: repo, clock: clock}
}

// writeCtx keeps writes alive while the run itself is being cancelled.
func writeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
}

func (p *Persister) ResetRun(ctx context.Context, j *job.ScheduledJob) error {
	wctx, cancel := writeCtx(ctx)
	defer cancel()
	err := p.repo.ResetRun(wctx, j.ID, j.ClaimedBy, j.Progress)
	if errors.Is(err, job.ErrLeaseLost) {
		return err
	}
	if err != nil {
		logrus.WithError(err).Warnf("[DISPATCH] Failed to reset progress for job %s", j.ID)
	}
	return nil
}

func (p *Persister) SaveProgress(ctx context.Context, j *job.ScheduledJob) error {
	wctx, cancel := writeCtx(ctx)
	defer cancel()

	failed := make([]job.FailedRecipient, len(j.FailedRecipients))
	copy(failed, j.FailedRecipients)

	err := p.repo.SaveProgress(wctx, j.ID, job.ProgressUpdate{
		Owner:            j.ClaimedBy,
		Progress:         j.Progress,
		FailedRecipients: failed,
		HeartbeatAt:      p.clock().UTC(),
	})
	if errors.Is(err, job.ErrLeaseLost) {
		return err
	}
	if err != nil {
		logrus.WithError(err).Warnf("[DISPATCH] Failed to persist progress %d/%d for job %s",
			j.Progress.Current, j.Progress.Total, j.ID)
	}
	return nil
}

// Heartbeat failures only matter through the status check between recipients.
func (p *Persister) Heartbeat(ctx context.Context, jobID, owner string) {
	wctx, cancel := writeCtx(ctx)
	defer cancel()
	if err := p.repo.Touch(wctx, jobID, owner, p.clock().UTC()); err != nil {
		logrus.WithError(err).Debugf("[DISPATCH] Heartbeat failed for job %s", jobID)
	}
}

// Finish stores the terminal state and the execution record together.
func (p *Persister) Finish(ctx context.Context, jobID string, c job.Completion) error {
	wctx, cancel := writeCtx(ctx)
	defer cancel()
	return p.repo.Finish(wctx, jobID, c)
}

// Release gives a half-done run back to the pollers.
func (p *Persister) Release(ctx context.Context, jobID, owner string) {
	wctx, cancel := writeCtx(ctx)
	defer cancel()
	if err := p.repo.Release(wctx, jobID, owner); err != nil {
		logrus.WithError(err).Warnf("[DISPATCH] Failed to release job %s", jobID)
	}
}

package repository

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/AzielCF/az-bulk/bulkmessage/domain/job"
	"github.com/google/uuid"
)

// MemoryJobRepository keeps jobs in process memory with the same claim and
// lease rules as the SQL store. The executor, poller and use case tests run
// against it; processes always use JobGormRepository.
type MemoryJobRepository struct {
	mu         sync.RWMutex
	jobs       map[string]*job.ScheduledJob
	executions map[string][]job.ExecutionRecord
	clock      func() time.Time
}

func NewMemoryJobRepository() *MemoryJobRepository {
	return &MemoryJobRepository{
		jobs:       make(map[string]*job.ScheduledJob),
		executions: make(map[string][]job.ExecutionRecord),
		clock:      time.Now,
	}
}

func cloneJob(j *job.ScheduledJob) *job.ScheduledJob {
	c := *j
	c.Recipients = append([]job.Recipient(nil), j.Recipients...)
	c.FailedRecipients = append([]job.FailedRecipient(nil), j.FailedRecipients...)
	if j.Media != nil {
		m := *j.Media
		c.Media = &m
	}
	return &c
}

func (r *MemoryJobRepository) Create(_ context.Context, j *job.ScheduledJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	now := r.clock().UTC()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	j.UpdatedAt = now
	r.jobs[j.ID] = cloneJob(j)
	return nil
}

func (r *MemoryJobRepository) Get(_ context.Context, id string) (*job.ScheduledJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, job.ErrJobNotFound
	}
	return cloneJob(j), nil
}

func (r *MemoryJobRepository) List(_ context.Context, f job.ListFilter) ([]job.ScheduledJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]job.ScheduledJob, 0, len(r.jobs))
	for _, j := range r.jobs {
		if f.UserID != "" && j.UserID != f.UserID {
			continue
		}
		if f.Status != "" && j.Status != f.Status {
			continue
		}
		if f.Channel != "" && j.Channel != f.Channel {
			continue
		}
		res = append(res, *cloneJob(j))
	}
	sort.Slice(res, func(a, b int) bool { return res[a].ScheduledFor.Before(res[b].ScheduledFor) })

	if f.Offset > 0 {
		if f.Offset >= len(res) {
			return []job.ScheduledJob{}, nil
		}
		res = res[f.Offset:]
	}
	if f.Limit > 0 && len(res) > f.Limit {
		res = res[:f.Limit]
	}
	return res, nil
}

func (r *MemoryJobRepository) Update(_ context.Context, j *job.ScheduledJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.jobs[j.ID]
	if !ok {
		return job.ErrJobNotFound
	}
	if stored.IsRunning() {
		return job.ErrJobRunning
	}
	j.UpdatedAt = r.clock().UTC()
	j.ClaimedBy = ""
	j.CreatedAt = stored.CreatedAt
	j.ExecutionCount = stored.ExecutionCount
	j.LastExecutedAt = stored.LastExecutedAt
	j.StartedAt = stored.StartedAt
	j.HeartbeatAt = stored.HeartbeatAt
	r.jobs[j.ID] = cloneJob(j)
	return nil
}

func (r *MemoryJobRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return job.ErrJobNotFound
	}
	if j.IsRunning() {
		return job.ErrJobRunning
	}
	delete(r.jobs, id)
	delete(r.executions, id)
	return nil
}

func (r *MemoryJobRepository) UpdateStatus(_ context.Context, id string, status job.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return job.ErrJobNotFound
	}
	j.Status = status
	j.UpdatedAt = r.clock().UTC()
	return nil
}

func (r *MemoryJobRepository) TransitionStatus(_ context.Context, id string, from []job.Status, to job.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return job.ErrJobNotFound
	}
	if !slices.Contains(from, j.Status) {
		return job.ErrStatusConflict
	}
	j.Status = to
	if to.Claimable() {
		j.ClaimedBy = ""
	}
	j.UpdatedAt = r.clock().UTC()
	return nil
}

func isStale(j *job.ScheduledJob, staleBefore time.Time) bool {
	return j.Status == job.StatusRunning && (j.HeartbeatAt == nil || j.HeartbeatAt.Before(staleBefore))
}

func (r *MemoryJobRepository) ListDue(_ context.Context, q job.DueQuery) ([]job.ScheduledJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := []job.ScheduledJob{}
	for _, j := range r.jobs {
		if j.ExecutionMode != q.Mode || !j.AutoExecute || j.ScheduledFor.After(q.Now) {
			continue
		}
		if !j.Status.Claimable() && !isStale(j, q.StaleBefore) {
			continue
		}
		res = append(res, *cloneJob(j))
	}
	sort.Slice(res, func(a, b int) bool { return res[a].ScheduledFor.Before(res[b].ScheduledFor) })
	if q.Limit > 0 && len(res) > q.Limit {
		res = res[:q.Limit]
	}
	return res, nil
}

func (r *MemoryJobRepository) Claim(_ context.Context, req job.ClaimRequest) (*job.ScheduledJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[req.JobID]
	if !ok {
		return nil, job.ErrJobNotFound
	}

	var claimable bool
	if req.AllowAnyStatus {
		claimable = j.Status != job.StatusCancelled && (j.Status != job.StatusRunning || isStale(j, req.StaleBefore))
	} else {
		claimable = j.Status.Claimable() || isStale(j, req.StaleBefore)
	}
	if !claimable {
		return nil, job.ErrJobAlreadyClaimed
	}

	now := req.Now.UTC()
	j.Status = job.StatusRunning
	j.ClaimedBy = req.Owner
	j.HeartbeatAt = &now
	j.StartedAt = &now
	j.UpdatedAt = now
	return cloneJob(j), nil
}

func (r *MemoryJobRepository) Release(_ context.Context, id, owner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return job.ErrJobNotFound
	}
	if j.Status == job.StatusRunning && j.ClaimedBy == owner {
		j.Status = job.StatusScheduled
		j.ClaimedBy = ""
		j.UpdatedAt = r.clock().UTC()
	}
	return nil
}

// owned returns the job if owner still holds it. Callers hold r.mu.
func (r *MemoryJobRepository) owned(id, owner string) (*job.ScheduledJob, error) {
	j, ok := r.jobs[id]
	if !ok {
		return nil, job.ErrJobNotFound
	}
	if owner != "" && j.ClaimedBy != owner {
		return nil, job.ErrLeaseLost
	}
	return j, nil
}

func (r *MemoryJobRepository) ResetRun(_ context.Context, id, owner string, p job.Progress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, err := r.owned(id, owner)
	if err != nil {
		return err
	}
	j.Progress = p
	j.FailedRecipients = []job.FailedRecipient{}
	return nil
}

func (r *MemoryJobRepository) SaveProgress(_ context.Context, id string, u job.ProgressUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, err := r.owned(id, u.Owner)
	if err != nil {
		return err
	}
	hb := u.HeartbeatAt
	j.Progress = u.Progress
	j.FailedRecipients = append([]job.FailedRecipient(nil), u.FailedRecipients...)
	j.HeartbeatAt = &hb
	j.UpdatedAt = hb
	return nil
}

func (r *MemoryJobRepository) Touch(_ context.Context, id, owner string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, err := r.owned(id, owner)
	if err != nil {
		return err
	}
	j.HeartbeatAt = &at
	return nil
}

func (r *MemoryJobRepository) Finish(_ context.Context, id string, c job.Completion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, err := r.owned(id, c.Owner)
	if err != nil {
		return err
	}

	status := finalStatus(j.Status, c.Status)

	j.Status = status
	j.Progress = c.Progress
	j.FailedRecipients = append([]job.FailedRecipient(nil), c.FailedRecipients...)
	j.LastError = c.LastError
	last := c.LastExecutedAt
	j.LastExecutedAt = &last
	j.NextExecutionAt = c.NextExecutionAt
	if c.NextExecutionAt != nil && status != job.StatusCancelled {
		j.ScheduledFor = *c.NextExecutionAt
	}
	j.CompletedAt = c.CompletedAt
	j.ClaimedBy = ""
	j.ExecutionCount++
	j.UpdatedAt = r.clock().UTC()

	rec := c.Record
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.JobID = id
	rec.FailedRecipients = append([]job.FailedRecipient(nil), rec.FailedRecipients...)
	r.executions[id] = append(r.executions[id], rec)
	return nil
}

// finalStatus lets an operator cancel, or a pause of a job that would be
// rescheduled, issued during the last send win over the computed status.
func finalStatus(stored, computed job.Status) job.Status {
	switch {
	case stored == job.StatusCancelled:
		return job.StatusCancelled
	case stored == job.StatusPaused && computed == job.StatusScheduled:
		return job.StatusPaused
	}
	return computed
}

func (r *MemoryJobRepository) ListExecutions(_ context.Context, jobID string, limit int) ([]job.ExecutionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	src := r.executions[jobID]
	res := make([]job.ExecutionRecord, 0, len(src))
	for i := len(src) - 1; i >= 0; i-- {
		res = append(res, src[i])
		if limit > 0 && len(res) == limit {
			break
		}
	}
	return res, nil
}

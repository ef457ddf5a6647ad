package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AzielCF/az-bulk/bulkmessage/application"
	"github.com/AzielCF/az-bulk/bulkmessage/domain/job"
	domainScheduled "github.com/AzielCF/az-bulk/domains/scheduledmessage"
	pkgError "github.com/AzielCF/az-bulk/pkg/error"
	"github.com/AzielCF/az-bulk/pkg/msgworker"
	"github.com/AzielCF/az-bulk/validations"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Scheduler is the poller running in this process.
type Scheduler interface {
	Start(ctx context.Context)
	Stop()
	SetInterval(d time.Duration) error
	TriggerCheck(ctx context.Context) error
	ExecuteByID(ctx context.Context, id string) (application.Result, error)
	Status() application.PollerStatus
}

const (
	defaultListLimit       = 50
	maxListLimit           = 500
	defaultExecutionsLimit = 20
	maxExecutionsLimit     = 200
)

type serviceScheduledMessage struct {
	repo      job.IJobRepository
	scheduler Scheduler
	pool      *msgworker.Pool
	timezone  string
	clock     func() time.Time
}

func NewScheduledMessageService(repo job.IJobRepository, scheduler Scheduler, pool *msgworker.Pool, defaultTimezone string) domainScheduled.IScheduledMessageUsecase {
	if defaultTimezone == "" {
		defaultTimezone = "Africa/Dar_es_Salaam"
	}
	return &serviceScheduledMessage{
		repo:      repo,
		scheduler: scheduler,
		pool:      pool,
		timezone:  defaultTimezone,
		clock:     time.Now,
	}
}

// defaultSettings mirrors what operators expect per channel: WhatsApp spreads
// sends out randomly, SMS gateways take a steady pace.
func defaultSettings(channel job.Channel) job.Settings {
	if channel == job.ChannelWhatsApp {
		return job.Settings{MinDelay: 3000, MaxDelay: 8000, UseRandomDelay: true}
	}
	return job.Settings{MinDelay: 1000, MaxDelay: 1000, UseRandomDelay: false}
}

func applySettings(s *job.Settings, req *domainScheduled.SettingsRequest) {
	if req == nil {
		return
	}
	if req.MinDelay != nil {
		s.MinDelay = *req.MinDelay
	}
	if req.MaxDelay != nil {
		s.MaxDelay = *req.MaxDelay
	}
	if req.UseRandomDelay != nil {
		s.UseRandomDelay = *req.UseRandomDelay
	}
	if s.MaxDelay < s.MinDelay {
		s.MaxDelay = s.MinDelay
	}
}

func toRecipients(in []domainScheduled.RecipientRequest) []job.Recipient {
	out := make([]job.Recipient, len(in))
	for i, r := range in {
		out[i] = job.Recipient{
			Phone:      strings.TrimSpace(r.Phone),
			Name:       strings.TrimSpace(r.Name),
			ExternalID: r.ExternalID,
		}
	}
	return out
}

func toMedia(in *domainScheduled.MediaRequest) *job.Media {
	if in == nil {
		return nil
	}
	return &job.Media{URL: in.URL, Type: job.MediaType(strings.ToLower(in.Type)), ViewOnce: in.ViewOnce}
}

// toAPIError turns domain errors into the error types the HTTP layer renders.
func toAPIError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, job.ErrJobNotFound):
		return pkgError.NotFoundError(err.Error())
	case errors.Is(err, job.ErrJobRunning),
		errors.Is(err, job.ErrJobAlreadyClaimed),
		errors.Is(err, job.ErrJobNotPausable),
		errors.Is(err, job.ErrJobNotResumable),
		errors.Is(err, job.ErrJobFinished),
		errors.Is(err, job.ErrStatusConflict),
		errors.Is(err, job.ErrLeaseLost):
		return pkgError.ConflictError(err.Error())
	case errors.Is(err, application.ErrIntervalTooShort),
		errors.Is(err, job.ErrInvalidIntervalFormat),
		errors.Is(err, job.ErrInvalidScheduleType):
		return pkgError.ValidationError(err.Error())
	}
	var generic pkgError.GenericError
	if errors.As(err, &generic) {
		return err
	}
	return pkgError.InternalServerError(err.Error())
}

func (service serviceScheduledMessage) Create(ctx context.Context, request domainScheduled.CreateRequest) (job.ScheduledJob, error) {
	if err := validations.ValidateCreateScheduledMessage(ctx, request); err != nil {
		return job.ScheduledJob{}, err
	}

	channel := job.Channel(strings.ToLower(request.MessageType))
	recipients := toRecipients(request.Recipients)

	j := job.ScheduledJob{
		ID:              uuid.NewString(),
		UserID:          request.UserID,
		Name:            request.Name,
		Channel:         channel,
		Template:        request.MessageContent,
		Media:           toMedia(request.Media),
		Recipients:      recipients,
		TotalRecipients: len(recipients),
		Recurrence: job.Recurrence{
			Type:     job.NormalizeScheduleType(request.ScheduleType),
			Interval: strings.TrimSpace(request.RecurrenceInterval),
		},
		ScheduledFor:     request.ScheduledFor.UTC(),
		Timezone:         request.Timezone,
		ExecutionMode:    job.ExecutionMode(request.ExecutionMode),
		AutoExecute:      true,
		Settings:         defaultSettings(channel),
		Status:           job.StatusScheduled,
		Progress:         job.Progress{Total: len(recipients)},
		FailedRecipients: []job.FailedRecipient{},
	}
	if request.RecurrenceEndDate != nil {
		end := request.RecurrenceEndDate.UTC()
		j.Recurrence.EndDate = &end
	}
	if j.Timezone == "" {
		j.Timezone = service.timezone
	}
	if j.ExecutionMode == "" {
		j.ExecutionMode = job.ModeServer
	}
	if request.AutoExecute != nil {
		j.AutoExecute = *request.AutoExecute
	}
	applySettings(&j.Settings, request.Settings)
	next := j.ScheduledFor
	j.NextExecutionAt = &next

	if err := service.repo.Create(ctx, &j); err != nil {
		return job.ScheduledJob{}, toAPIError(err)
	}

	logrus.Infof("[SCHEDULER] Scheduled message %s created: %s to %d recipients at %s (%s)",
		j.ID, j.Channel, j.TotalRecipients, j.ScheduledFor.Format(time.RFC3339), j.Recurrence.Type)
	service.wakeIfDue(ctx, &j)
	return j, nil
}

func (service serviceScheduledMessage) Get(ctx context.Context, id string) (job.ScheduledJob, error) {
	j, err := service.repo.Get(ctx, id)
	if err != nil {
		return job.ScheduledJob{}, toAPIError(err)
	}
	return *j, nil
}

func (service serviceScheduledMessage) List(ctx context.Context, request domainScheduled.ListRequest) ([]job.ScheduledJob, error) {
	limit := request.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := request.Offset
	if offset < 0 {
		offset = 0
	}

	jobs, err := service.repo.List(ctx, job.ListFilter{
		UserID:  request.UserID,
		Status:  job.Status(strings.ToLower(request.Status)),
		Channel: job.Channel(strings.ToLower(request.MessageType)),
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		return nil, toAPIError(err)
	}
	return jobs, nil
}

func (service serviceScheduledMessage) Update(ctx context.Context, id string, request domainScheduled.UpdateRequest) (job.ScheduledJob, error) {
	if err := validations.ValidateUpdateScheduledMessage(ctx, request); err != nil {
		return job.ScheduledJob{}, err
	}

	j, err := service.repo.Get(ctx, id)
	if err != nil {
		return job.ScheduledJob{}, toAPIError(err)
	}
	if j.IsRunning() {
		return job.ScheduledJob{}, pkgError.ConflictError(fmt.Sprintf("cannot update scheduled message %s while it is running", id))
	}

	if request.Name != nil {
		j.Name = *request.Name
	}
	if request.MessageContent != nil {
		j.Template = *request.MessageContent
	}
	if request.RemoveMedia {
		j.Media = nil
	} else if request.Media != nil {
		j.Media = toMedia(request.Media)
	}
	if request.Recipients != nil {
		j.Recipients = toRecipients(request.Recipients)
		j.TotalRecipients = len(j.Recipients)
		j.ResetProgress()
	}
	if request.ScheduleType != nil {
		j.Recurrence.Type = job.NormalizeScheduleType(*request.ScheduleType)
	}
	if request.RecurrenceInterval != nil {
		j.Recurrence.Interval = strings.TrimSpace(*request.RecurrenceInterval)
	}
	if request.RecurrenceEndDate != nil {
		end := request.RecurrenceEndDate.UTC()
		j.Recurrence.EndDate = &end
	}
	if request.ScheduledFor != nil {
		j.ScheduledFor = request.ScheduledFor.UTC()
		next := j.ScheduledFor
		j.NextExecutionAt = &next
		// moving a finished job to a new slot schedules it again
		if j.Status == job.StatusCompleted || j.Status == job.StatusFailed {
			j.Status = job.StatusScheduled
			j.CompletedAt = nil
			j.ResetProgress()
		}
	}
	if request.Timezone != nil {
		j.Timezone = *request.Timezone
	}
	if request.ExecutionMode != nil {
		j.ExecutionMode = job.ExecutionMode(*request.ExecutionMode)
	}
	if request.AutoExecute != nil {
		j.AutoExecute = *request.AutoExecute
	}
	applySettings(&j.Settings, request.Settings)

	if err := validations.ValidateScheduledJob(ctx, *j); err != nil {
		return job.ScheduledJob{}, err
	}
	// the store refuses the write if a runner claimed the job since the read
	if err := service.repo.Update(ctx, j); err != nil {
		return job.ScheduledJob{}, toAPIError(err)
	}

	logrus.Infof("[SCHEDULER] Scheduled message %s updated", id)
	service.wakeIfDue(ctx, j)
	return *j, nil
}

func (service serviceScheduledMessage) Delete(ctx context.Context, id string) error {
	j, err := service.repo.Get(ctx, id)
	if err != nil {
		return toAPIError(err)
	}
	if j.IsRunning() {
		return pkgError.ConflictError(fmt.Sprintf("cannot delete scheduled message %s while it is running, pause or cancel it first", id))
	}
	if err := service.repo.Delete(ctx, id); err != nil {
		return toAPIError(err)
	}
	logrus.Infof("[SCHEDULER] Scheduled message %s deleted", id)
	return nil
}

// transition is a single conditional write, so a claim or another operator
// action landing after the read cannot be overwritten.
func (service serviceScheduledMessage) transition(ctx context.Context, id string, to job.Status, from []job.Status, refused error) (job.ScheduledJob, error) {
	err := service.repo.TransitionStatus(ctx, id, from, to)
	if errors.Is(err, job.ErrStatusConflict) {
		if current, getErr := service.repo.Get(ctx, id); getErr == nil {
			err = fmt.Errorf("%w (current status: %s)", refused, current.Status)
		} else {
			err = refused
		}
	}
	if err != nil {
		return job.ScheduledJob{}, toAPIError(err)
	}
	logrus.Infof("[SCHEDULER] Scheduled message %s -> %s", id, to)
	return service.Get(ctx, id)
}

// Pause stops a running job between two recipients; its progress is kept for Resume.
func (service serviceScheduledMessage) Pause(ctx context.Context, id string) (job.ScheduledJob, error) {
	return service.transition(ctx, id, job.StatusPaused,
		[]job.Status{job.StatusScheduled, job.StatusPending, job.StatusRunning}, job.ErrJobNotPausable)
}

// Resume drops the paused run's claim; whichever runner claims the job next
// continues from the stored progress.
func (service serviceScheduledMessage) Resume(ctx context.Context, id string) (job.ScheduledJob, error) {
	j, err := service.transition(ctx, id, job.StatusScheduled, []job.Status{job.StatusPaused}, job.ErrJobNotResumable)
	if err == nil {
		service.wakeIfDue(ctx, &j)
	}
	return j, err
}

func (service serviceScheduledMessage) Cancel(ctx context.Context, id string) (job.ScheduledJob, error) {
	return service.transition(ctx, id, job.StatusCancelled,
		[]job.Status{job.StatusScheduled, job.StatusPending, job.StatusRunning, job.StatusPaused, job.StatusFailed},
		job.ErrJobFinished)
}

// Execute runs a job now, outside its schedule. With a worker pool the run is
// queued and the call returns immediately.
func (service serviceScheduledMessage) Execute(ctx context.Context, id string) (domainScheduled.ExecuteResponse, error) {
	j, err := service.repo.Get(ctx, id)
	if err != nil {
		return domainScheduled.ExecuteResponse{}, toAPIError(err)
	}
	switch j.Status {
	case job.StatusCancelled:
		return domainScheduled.ExecuteResponse{}, pkgError.ConflictError("cancelled scheduled messages cannot be executed")
	case job.StatusRunning:
		return domainScheduled.ExecuteResponse{}, toAPIError(job.ErrJobRunning)
	}
	if service.scheduler == nil {
		return domainScheduled.ExecuteResponse{}, pkgError.InternalServerError("no scheduler is configured in this process")
	}

	if service.pool == nil {
		res, err := service.scheduler.ExecuteByID(ctx, id)
		if err != nil && res.Status == "" {
			return domainScheduled.ExecuteResponse{}, toAPIError(err)
		}
		if err != nil {
			logrus.WithError(err).Warnf("[SCHEDULER] Manual run of %s ended with an error", id)
		}
		return domainScheduled.ExecuteResponse{JobID: id, Status: res.Status, Progress: res.Progress}, nil
	}

	queued := service.pool.TryDispatch(msgworker.Task{
		JobID: id,
		Label: "manual-execute",
		Handler: func(ctx context.Context) error {
			_, err := service.scheduler.ExecuteByID(ctx, id)
			return err
		},
	})
	if !queued {
		return domainScheduled.ExecuteResponse{}, pkgError.ConflictError("execution queue is full, try again later")
	}

	logrus.Infof("[SCHEDULER] Manual run of scheduled message %s queued", id)
	return domainScheduled.ExecuteResponse{JobID: id, Queued: true, Status: j.Status, Progress: j.Progress}, nil
}

func (service serviceScheduledMessage) ListExecutions(ctx context.Context, id string, limit int) ([]job.ExecutionRecord, error) {
	if _, err := service.repo.Get(ctx, id); err != nil {
		return nil, toAPIError(err)
	}
	if limit <= 0 {
		limit = defaultExecutionsLimit
	}
	if limit > maxExecutionsLimit {
		limit = maxExecutionsLimit
	}
	records, err := service.repo.ListExecutions(ctx, id, limit)
	if err != nil {
		return nil, toAPIError(err)
	}
	return records, nil
}

func (service serviceScheduledMessage) SchedulerStatus(_ context.Context) (domainScheduled.SchedulerStatus, error) {
	var st domainScheduled.SchedulerStatus
	if service.scheduler != nil {
		st.Poller = service.scheduler.Status()
	}
	if service.pool != nil {
		stats := service.pool.GetStats()
		st.Pool = &stats
	}
	return st, nil
}

func (service serviceScheduledMessage) SetSchedulerInterval(ctx context.Context, request domainScheduled.IntervalRequest) (domainScheduled.SchedulerStatus, error) {
	interval, err := validations.ValidateSchedulerInterval(ctx, request)
	if err != nil {
		return domainScheduled.SchedulerStatus{}, err
	}
	if service.scheduler == nil {
		return domainScheduled.SchedulerStatus{}, pkgError.InternalServerError("no scheduler is configured in this process")
	}
	if err := service.scheduler.SetInterval(interval); err != nil {
		return domainScheduled.SchedulerStatus{}, toAPIError(err)
	}
	return service.SchedulerStatus(ctx)
}

func (service serviceScheduledMessage) TriggerCheck(ctx context.Context) error {
	if service.scheduler == nil {
		return pkgError.InternalServerError("no scheduler is configured in this process")
	}
	return toAPIError(service.scheduler.TriggerCheck(ctx))
}

// StartScheduler detaches from the request so the poller outlives it; Stop ends it.
func (service serviceScheduledMessage) StartScheduler(ctx context.Context) (domainScheduled.SchedulerStatus, error) {
	if service.scheduler == nil {
		return domainScheduled.SchedulerStatus{}, pkgError.InternalServerError("no scheduler is configured in this process")
	}
	service.scheduler.Start(context.WithoutCancel(ctx))
	return service.SchedulerStatus(ctx)
}

func (service serviceScheduledMessage) StopScheduler(ctx context.Context) (domainScheduled.SchedulerStatus, error) {
	if service.scheduler == nil {
		return domainScheduled.SchedulerStatus{}, pkgError.InternalServerError("no scheduler is configured in this process")
	}
	service.scheduler.Stop()
	return service.SchedulerStatus(ctx)
}

func (service serviceScheduledMessage) wakeIfDue(ctx context.Context, j *job.ScheduledJob) {
	if service.scheduler == nil || !j.AutoExecute || j.Status != job.StatusScheduled || j.ScheduledFor.After(service.clock()) {
		return
	}
	if err := service.scheduler.TriggerCheck(ctx); err != nil {
		logrus.WithError(err).Debugf("[SCHEDULER] Could not wake pollers for %s", j.ID)
	}
}

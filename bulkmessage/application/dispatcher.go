package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AzielCF/az-bulk/bulkmessage/domain/job"
	"github.com/AzielCF/az-bulk/bulkmessage/domain/transport"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

// Result summarizes one Execute call.
type Result struct {
	JobID       string
	Status      job.Status
	Progress    job.Progress
	Outcome     job.ExecutionOutcome
	NextRun     *time.Time
	Duration    time.Duration
	Interrupted bool // stopped by pause, shutdown or a lost claim, the run is not finished
}

// Executor sends one claimed job to its recipients.
type Executor struct {
	repo      job.IJobRepository
	persister *Persister
	renderer  *Renderer
	delays    *DelayPolicy
	sleep     Sleeper
	events    job.EventSink
	clock     func() time.Time

	sms      transport.SMSSender
	whatsapp transport.WhatsAppSender

	runner         string
	heartbeatEvery time.Duration
}

type ExecutorOption func(*Executor)

func WithSMSSender(s transport.SMSSender) ExecutorOption {
	return func(e *Executor) { e.sms = s }
}

func WithWhatsAppSender(s transport.WhatsAppSender) ExecutorOption {
	return func(e *Executor) { e.whatsapp = s }
}

func WithSleeper(s Sleeper) ExecutorOption {
	return func(e *Executor) { e.sleep = s }
}

func WithDelayPolicy(p *DelayPolicy) ExecutorOption {
	return func(e *Executor) { e.delays = p }
}

func WithEventSink(s job.EventSink) ExecutorOption {
	return func(e *Executor) { e.events = s }
}

func WithClock(clock func() time.Time) ExecutorOption {
	return func(e *Executor) { e.clock = clock }
}

func WithRunnerName(name string) ExecutorOption {
	return func(e *Executor) { e.runner = name }
}

func WithHeartbeatInterval(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.heartbeatEvery = d }
}

func NewExecutor(repo job.IJobRepository, renderer *Renderer, opts ...ExecutorOption) *Executor {
	e := &Executor{
		repo:           repo,
		renderer:       renderer,
		sleep:          SleepContext,
		clock:          time.Now,
		heartbeatEvery: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.renderer == nil {
		e.renderer = NewRenderer("", "", time.UTC)
	}
	if e.delays == nil {
		e.delays = NewDelayPolicy(0)
	}
	e.persister = NewPersister(repo, e.clock)
	return e
}

// Execute runs a job that the caller has already claimed. Recipients before
// Progress.Current are never sent again. A paused job or a cancelled ctx stops
// between recipients and is reported with Interrupted set. Once the claim
// stored for the job no longer names j.ClaimedBy the run stops without further
// writes and job.ErrLeaseLost is returned.
func (e *Executor) Execute(ctx context.Context, j *job.ScheduledJob) (Result, error) {
	started := e.clock()
	log := logrus.WithFields(logrus.Fields{"job_id": j.ID, "channel": j.Channel})

	switch {
	case j.NeedsFinish():
		log.Infof("[DISPATCH] Job %s already attempted all %d recipients, storing its completion", j.ID, j.Progress.Total)
		return e.finish(ctx, j, started)
	case j.NeedsFreshRun():
		j.ResetProgress()
		j.StampRun()
		if err := e.persister.ResetRun(ctx, j); err != nil {
			return e.lostLease(j, started, "")
		}
	default:
		j.StampRun()
		if j.Progress.Current > 0 {
			log.Infof("[DISPATCH] Resuming job %s at recipient %d/%d", j.ID, j.Progress.Current, j.Progress.Total)
		}
	}

	e.publish(j, job.EventExecutionStarted, "")

	send, err := e.senderFor(ctx, j)
	if err != nil {
		log.WithError(err).Errorf("[DISPATCH] Batch setup failed for job %s", j.ID)
		return e.failBatch(ctx, j, started, err)
	}

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go e.heartbeat(hbCtx, j.ID, j.ClaimedBy)

	total := len(j.Recipients)
	if j.Progress.Total > 0 && j.Progress.Total < total {
		total = j.Progress.Total
	}

	for i := j.Progress.Current; i < total; i++ {
		if ctx.Err() != nil {
			return e.interrupted(j, started), ctx.Err()
		}

		switch status, held := e.checkClaim(ctx, j); {
		case !held:
			return e.lostLease(j, started, status)
		case status == job.StatusPaused:
			log.Infof("[DISPATCH] Job %s paused at %d/%d", j.ID, j.Progress.Current, j.Progress.Total)
			j.Status = job.StatusPaused
			e.publish(j, job.EventExecutionPaused, "")
			res := e.interrupted(j, started)
			res.Status = job.StatusPaused
			return res, nil
		case status == job.StatusCancelled:
			log.Infof("[DISPATCH] Job %s cancelled at %d/%d", j.ID, j.Progress.Current, j.Progress.Total)
			return e.finishCancelled(ctx, j, started)
		}

		recipient := j.Recipients[i]
		text := e.renderer.RenderForJob(j, recipient, e.clock())

		if err := send(ctx, recipient, text); err != nil {
			if ctx.Err() != nil {
				// the send was cut by shutdown, retry this recipient on resume
				return e.interrupted(j, started), ctx.Err()
			}
			j.Progress.Failed++
			j.FailedRecipients = append(j.FailedRecipients, job.FailedRecipient{
				Phone: recipient.Phone,
				Name:  recipient.Name,
				Error: err.Error(),
			})
			log.WithError(err).Warnf("[DISPATCH] Send to %s failed", recipient.Phone)
		} else {
			j.Progress.Success++
		}
		j.Progress.Current++

		if err := e.persister.SaveProgress(ctx, j); err != nil {
			return e.lostLease(j, started, "")
		}
		e.publish(j, job.EventProgress, "")

		if i < total-1 {
			if err := e.sleep(ctx, e.delays.Next(j.Settings)); err != nil {
				return e.interrupted(j, started), err
			}
		}
	}

	return e.finish(ctx, j, started)
}

type sendFunc func(ctx context.Context, r job.Recipient, text string) error

func (e *Executor) senderFor(ctx context.Context, j *job.ScheduledJob) (sendFunc, error) {
	var ready any
	var send sendFunc

	switch j.Channel {
	case job.ChannelSMS:
		if e.sms == nil {
			return nil, fmt.Errorf("sms: %w", job.ErrTransportUnavailable)
		}
		ready = e.sms
		send = func(ctx context.Context, r job.Recipient, text string) error {
			_, err := e.sms.SendSMS(ctx, r.Phone, text)
			return err
		}
	case job.ChannelWhatsApp:
		if e.whatsapp == nil {
			return nil, fmt.Errorf("whatsapp: %w", job.ErrTransportUnavailable)
		}
		ready = e.whatsapp
		var media transport.MediaOptions
		if j.Media != nil {
			media = transport.MediaOptions{URL: j.Media.URL, Type: string(j.Media.Type), ViewOnce: j.Media.ViewOnce}
		}
		send = func(ctx context.Context, r job.Recipient, text string) error {
			_, err := e.whatsapp.SendMessage(ctx, r.Phone, text, media)
			return err
		}
	default:
		return nil, fmt.Errorf("unsupported channel %q", j.Channel)
	}

	if rd, ok := ready.(transport.Readiness); ok {
		if err := rd.Ready(ctx); err != nil {
			return nil, err
		}
	}
	return send, nil
}

// checkClaim re-reads the job between recipients. held is false once the
// claim moved to another runner, or an operator left the job in a status this
// run may not continue from. Paused and cancelled are reported to the caller.
func (e *Executor) checkClaim(ctx context.Context, j *job.ScheduledJob) (status job.Status, held bool) {
	current, err := e.repo.Get(ctx, j.ID)
	if err != nil {
		// storage hiccup: keep sending, the next check may succeed
		logrus.WithError(err).Debugf("[DISPATCH] Could not re-read status of job %s", j.ID)
		return job.StatusRunning, true
	}
	if j.ClaimedBy == "" {
		return current.Status, true
	}
	if current.ClaimedBy != j.ClaimedBy {
		return current.Status, false
	}
	switch current.Status {
	case job.StatusRunning, job.StatusPaused, job.StatusCancelled:
		return current.Status, true
	}
	return current.Status, false
}

// lostLease ends a run that someone else now owns. observed is the stored
// status when known.
func (e *Executor) lostLease(j *job.ScheduledJob, started time.Time, observed job.Status) (Result, error) {
	logrus.WithField("job_id", j.ID).Warnf("[DISPATCH] Job %s is no longer claimed by %s, stopping at %d/%d",
		j.ID, j.ClaimedBy, j.Progress.Current, j.Progress.Total)
	res := e.interrupted(j, started)
	res.Status = observed
	return res, fmt.Errorf("job %s: %w", j.ID, job.ErrLeaseLost)
}

func (e *Executor) heartbeat(ctx context.Context, id, owner string) {
	if e.heartbeatEvery <= 0 {
		return
	}
	ticker := time.NewTicker(e.heartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.persister.Heartbeat(ctx, id, owner)
		}
	}
}

func (e *Executor) interrupted(j *job.ScheduledJob, started time.Time) Result {
	return Result{
		JobID:       j.ID,
		Status:      job.StatusRunning,
		Progress:    j.Progress,
		Duration:    e.clock().Sub(started),
		Interrupted: true,
	}
}

func (e *Executor) executedBy(j *job.ScheduledJob) string {
	if j.ClaimedBy != "" {
		return j.ClaimedBy
	}
	if e.runner != "" {
		return e.runner
	}
	return string(j.ExecutionMode)
}

func (e *Executor) record(j *job.ScheduledJob, now, started time.Time, outcome job.ExecutionOutcome) job.ExecutionRecord {
	failed := make([]job.FailedRecipient, len(j.FailedRecipients))
	copy(failed, j.FailedRecipients)
	return job.ExecutionRecord{
		JobID:            j.ID,
		ExecutedAt:       now.UTC(),
		Duration:         now.Sub(started),
		TotalSent:        j.Progress.Current,
		SuccessCount:     j.Progress.Success,
		FailedCount:      j.Progress.Failed,
		Outcome:          outcome,
		FailedRecipients: failed,
		ExecutedBy:       e.executedBy(j),
	}
}

// nextRun anchors the recurrence on the slot that ran, in the job's timezone.
func (e *Executor) nextRun(j *job.ScheduledJob, now time.Time) (*time.Time, error) {
	loc := e.renderer.Location(j.Timezone)
	base := j.ScheduledFor
	if base.IsZero() {
		base = now
	}
	next, err := NextAfter(j.Recurrence, base.In(loc), now.In(loc))
	if err != nil || next == nil {
		return nil, err
	}
	utc := next.UTC()
	return &utc, nil
}

func (e *Executor) finish(ctx context.Context, j *job.ScheduledJob, started time.Time) (Result, error) {
	now := e.clock()
	log := logrus.WithField("job_id", j.ID)

	next, err := e.nextRun(j, now)
	var lastError string
	if err != nil {
		log.WithError(err).Errorf("[DISPATCH] Could not compute next run for job %s, finishing it", j.ID)
		lastError = err.Error()
		next = nil
	}

	var status job.Status
	switch {
	case j.Progress.Success == 0:
		status = job.StatusFailed
		next = nil
		if lastError == "" {
			lastError = "all recipients failed"
		}
	case next != nil:
		status = job.StatusScheduled
	default:
		status = job.StatusCompleted
	}

	completion := job.Completion{
		Owner:            j.ClaimedBy,
		Status:           status,
		Progress:         j.Progress,
		FailedRecipients: j.FailedRecipients,
		LastError:        lastError,
		LastExecutedAt:   now.UTC(),
		NextExecutionAt:  next,
		Record:           e.record(j, now, started, job.OutcomeFor(j.Progress.Success, j.Progress.Failed)),
	}
	if status != job.StatusScheduled {
		at := now.UTC()
		completion.CompletedAt = &at
	}

	if err := e.persister.Finish(ctx, j.ID, completion); err != nil {
		if errors.Is(err, job.ErrLeaseLost) {
			return e.lostLease(j, started, "")
		}
		// progress stays at Current == Total, so the next claim only finishes
		log.WithError(err).Errorf("[DISPATCH] Failed to store completion of job %s", j.ID)
		return e.interrupted(j, started), fmt.Errorf("finish job %s: %w", j.ID, err)
	}

	j.Status = status
	j.ExecutionCount++
	j.NextExecutionAt = next
	if next != nil {
		j.ScheduledFor = *next
	}

	evt := job.EventExecutionCompleted
	if status == job.StatusFailed {
		evt = job.EventExecutionFailed
	}
	e.publish(j, evt, lastError)

	nextLabel := "none"
	if next != nil {
		nextLabel = humanize.Time(*next)
	}
	log.Infof("[DISPATCH] Job %s finished as %s: %d sent, %d ok, %d failed in %s (next run: %s)",
		j.ID, status, j.Progress.Current, j.Progress.Success, j.Progress.Failed,
		completion.Record.Duration.Round(time.Millisecond), nextLabel)

	return Result{
		JobID:    j.ID,
		Status:   status,
		Progress: j.Progress,
		Outcome:  completion.Record.Outcome,
		NextRun:  next,
		Duration: completion.Record.Duration,
	}, nil
}

func (e *Executor) finishCancelled(ctx context.Context, j *job.ScheduledJob, started time.Time) (Result, error) {
	now := e.clock()
	at := now.UTC()
	completion := job.Completion{
		Owner:            j.ClaimedBy,
		Status:           job.StatusCancelled,
		Progress:         j.Progress,
		FailedRecipients: j.FailedRecipients,
		LastExecutedAt:   at,
		CompletedAt:      &at,
		Record:           e.record(j, now, started, job.OutcomeCancelled),
	}
	if err := e.persister.Finish(ctx, j.ID, completion); err != nil {
		if errors.Is(err, job.ErrLeaseLost) {
			return e.lostLease(j, started, "")
		}
		return e.interrupted(j, started), fmt.Errorf("finish cancelled job %s: %w", j.ID, err)
	}
	j.Status = job.StatusCancelled
	j.ExecutionCount++
	e.publish(j, job.EventExecutionFailed, "cancelled")

	return Result{
		JobID:    j.ID,
		Status:   job.StatusCancelled,
		Progress: j.Progress,
		Outcome:  job.OutcomeCancelled,
		Duration: completion.Record.Duration,
	}, nil
}

// failBatch ends a run that could not start sending at all.
func (e *Executor) failBatch(ctx context.Context, j *job.ScheduledJob, started time.Time, cause error) (Result, error) {
	now := e.clock()
	at := now.UTC()
	// failures from the resumed part of the run stay on record
	j.FailedRecipients = append(j.FailedRecipients, job.FailedRecipient{Phone: job.SystemPhone, Error: cause.Error()})

	completion := job.Completion{
		Owner:            j.ClaimedBy,
		Status:           job.StatusFailed,
		Progress:         j.Progress,
		FailedRecipients: j.FailedRecipients,
		LastError:        cause.Error(),
		LastExecutedAt:   at,
		CompletedAt:      &at,
		Record:           e.record(j, now, started, job.OutcomeFailed),
	}
	if err := e.persister.Finish(ctx, j.ID, completion); err != nil {
		if errors.Is(err, job.ErrLeaseLost) {
			return e.lostLease(j, started, "")
		}
		return e.interrupted(j, started), errors.Join(cause, fmt.Errorf("finish failed job %s: %w", j.ID, err))
	}
	j.Status = job.StatusFailed
	j.ExecutionCount++
	e.publish(j, job.EventExecutionFailed, cause.Error())

	return Result{
		JobID:    j.ID,
		Status:   job.StatusFailed,
		Progress: j.Progress,
		Outcome:  job.OutcomeFailed,
		Duration: completion.Record.Duration,
	}, fmt.Errorf("batch setup: %w", cause)
}

func (e *Executor) publish(j *job.ScheduledJob, t job.EventType, errMsg string) {
	if e.events == nil {
		return
	}
	e.events.Publish(job.Event{
		Type:      t,
		JobID:     j.ID,
		JobName:   j.Name,
		Progress:  j.Progress,
		Status:    j.Status,
		Error:     errMsg,
		Runner:    e.executedBy(j),
		Timestamp: e.clock().UTC(),
	})
}

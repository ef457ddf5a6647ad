package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/AzielCF/az-bulk/bulkmessage/application"
	"github.com/AzielCF/az-bulk/bulkmessage/domain/job"
	"github.com/AzielCF/az-bulk/bulkmessage/domain/transport"
	"github.com/AzielCF/az-bulk/bulkmessage/repository"
	domainScheduled "github.com/AzielCF/az-bulk/domains/scheduledmessage"
	pkgError "github.com/AzielCF/az-bulk/pkg/error"
	"github.com/AzielCF/az-bulk/pkg/msgworker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSMS struct {
	mu   sync.Mutex
	sent []string
}

func (s *stubSMS) SendSMS(_ context.Context, phone, _ string) (transport.SendResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, phone)
	return transport.SendResponse{MessageID: "ok"}, nil
}

func (s *stubSMS) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type fixture struct {
	repo   *repository.MemoryJobRepository
	sms    *stubSMS
	poller *application.Poller
	svc    *serviceScheduledMessage
}

func newFixture(t *testing.T, pool *msgworker.Pool) *fixture {
	t.Helper()
	f := &fixture{repo: repository.NewMemoryJobRepository(), sms: &stubSMS{}}
	exec := application.NewExecutor(f.repo, application.NewRenderer("", "", time.UTC),
		application.WithSMSSender(f.sms),
		application.WithSleeper(func(ctx context.Context, _ time.Duration) error { return ctx.Err() }),
		application.WithHeartbeatInterval(0),
	)
	f.poller = application.NewPoller(f.repo, exec, application.PollerConfig{Mode: job.ModeBrowser, Interval: time.Hour})
	t.Cleanup(f.poller.Stop)

	svc := NewScheduledMessageService(f.repo, f.poller, pool, "")
	f.svc = svc.(*serviceScheduledMessage)
	return f
}

func createRequest() domainScheduled.CreateRequest {
	return domainScheduled.CreateRequest{
		UserID:         "user-1",
		Name:           "Reminder",
		MessageType:    "sms",
		MessageContent: "Hi {name}",
		Recipients: []domainScheduled.RecipientRequest{
			{Phone: " +255700000001 ", Name: "Alex"},
			{Phone: "+255700000002", Name: "Sam"},
		},
		ScheduleType: "daily",
		ScheduledFor: time.Now().Add(time.Hour),
	}
}

func TestScheduledMessage_CreateDefaults(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, createRequest())
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, job.StatusScheduled, created.Status)
	assert.Equal(t, job.ModeServer, created.ExecutionMode)
	assert.True(t, created.AutoExecute)
	assert.Equal(t, "Africa/Dar_es_Salaam", created.Timezone)
	assert.Equal(t, job.ScheduleDaily, created.Recurrence.Type)
	assert.Equal(t, job.Settings{MinDelay: 1000, MaxDelay: 1000}, created.Settings)
	assert.Equal(t, 2, created.TotalRecipients)
	assert.Equal(t, job.Progress{Total: 2}, created.Progress)
	assert.Equal(t, "+255700000001", created.Recipients[0].Phone)

	stored, err := f.svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, stored.ID)
}

func TestScheduledMessage_CreateWhatsAppDefaultsAndOverrides(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	req := createRequest()
	req.MessageType = "whatsapp"
	created, err := f.svc.Create(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, job.Settings{MinDelay: 3000, MaxDelay: 8000, UseRandomDelay: true}, created.Settings)

	manual := false
	minDelay := 500
	req.AutoExecute = &manual
	req.ExecutionMode = "browser"
	req.Settings = &domainScheduled.SettingsRequest{MinDelay: &minDelay}
	created, err = f.svc.Create(ctx, req)
	require.NoError(t, err)
	assert.False(t, created.AutoExecute)
	assert.Equal(t, job.ModeBrowser, created.ExecutionMode)
	assert.Equal(t, 500, created.Settings.MinDelay)
	assert.Equal(t, 8000, created.Settings.MaxDelay)
}

func TestScheduledMessage_CreateValidation(t *testing.T) {
	f := newFixture(t, nil)

	req := createRequest()
	req.ScheduleType = "custom"
	req.RecurrenceInterval = "abc"
	_, err := f.svc.Create(context.Background(), req)
	assert.IsType(t, pkgError.ValidationError(""), err)
}

func TestScheduledMessage_UpdateAndDeleteRejectedWhileRunning(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, createRequest())
	require.NoError(t, err)
	require.NoError(t, f.repo.UpdateStatus(ctx, created.ID, job.StatusRunning))

	name := "renamed"
	_, err = f.svc.Update(ctx, created.ID, domainScheduled.UpdateRequest{Name: &name})
	assert.IsType(t, pkgError.ConflictError(""), err)

	err = f.svc.Delete(ctx, created.ID)
	assert.IsType(t, pkgError.ConflictError(""), err)

	_, err = f.svc.Get(ctx, created.ID)
	assert.NoError(t, err)
}

// claimAfterRead lets a runner claim the job right after the use case read it.
type claimAfterRead struct {
	*repository.MemoryJobRepository
	armed bool
}

func (r *claimAfterRead) Get(ctx context.Context, id string) (*job.ScheduledJob, error) {
	j, err := r.MemoryJobRepository.Get(ctx, id)
	if r.armed {
		r.armed = false
		_, _ = r.MemoryJobRepository.Claim(ctx, job.ClaimRequest{JobID: id, Owner: "worker-1", Now: time.Now()})
	}
	return j, err
}

func TestScheduledMessage_UpdateLosesToConcurrentClaim(t *testing.T) {
	repo := &claimAfterRead{MemoryJobRepository: repository.NewMemoryJobRepository()}
	svc := NewScheduledMessageService(repo, nil, nil, "")
	ctx := context.Background()

	created, err := svc.Create(ctx, createRequest())
	require.NoError(t, err)

	repo.armed = true
	name := "renamed"
	_, err = svc.Update(ctx, created.ID, domainScheduled.UpdateRequest{Name: &name})
	assert.IsType(t, pkgError.ConflictError(""), err)

	stored, err := repo.MemoryJobRepository.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusRunning, stored.Status)
	assert.Equal(t, "worker-1", stored.ClaimedBy)
	assert.Equal(t, "Reminder", stored.Name)

	// pausing keeps the claim so the runner can stop cleanly, resuming drops it
	_, err = svc.Pause(ctx, created.ID)
	require.NoError(t, err)
	stored, _ = repo.MemoryJobRepository.Get(ctx, created.ID)
	assert.Equal(t, "worker-1", stored.ClaimedBy)

	resumed, err := svc.Resume(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusScheduled, resumed.Status)
	assert.Empty(t, resumed.ClaimedBy)
}

func TestScheduledMessage_Update(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, createRequest())
	require.NoError(t, err)
	require.NoError(t, f.repo.SaveProgress(ctx, created.ID, job.ProgressUpdate{
		Progress:    job.Progress{Current: 1, Total: 2, Success: 1},
		HeartbeatAt: time.Now(),
	}))

	content := "Hello {name}"
	updated, err := f.svc.Update(ctx, created.ID, domainScheduled.UpdateRequest{
		MessageContent: &content,
		Recipients: []domainScheduled.RecipientRequest{
			{Phone: "+1555000001"}, {Phone: "+1555000002"}, {Phone: "+1555000003"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello {name}", updated.Template)
	assert.Equal(t, 3, updated.TotalRecipients)
	assert.Equal(t, job.Progress{Total: 3}, updated.Progress)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)

	custom := "custom"
	_, err = f.svc.Update(ctx, created.ID, domainScheduled.UpdateRequest{ScheduleType: &custom})
	assert.IsType(t, pkgError.ValidationError(""), err)

	_, err = f.svc.Update(ctx, "missing", domainScheduled.UpdateRequest{MessageContent: &content})
	assert.IsType(t, pkgError.NotFoundError(""), err)
}

func TestScheduledMessage_UpdateReschedulesFinishedJob(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, createRequest())
	require.NoError(t, err)
	require.NoError(t, f.repo.UpdateStatus(ctx, created.ID, job.StatusCompleted))

	later := time.Now().Add(48 * time.Hour)
	updated, err := f.svc.Update(ctx, created.ID, domainScheduled.UpdateRequest{ScheduledFor: &later})
	require.NoError(t, err)
	assert.Equal(t, job.StatusScheduled, updated.Status)
	assert.True(t, later.Equal(updated.ScheduledFor))
}

func TestScheduledMessage_PauseResumeCancel(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, createRequest())
	require.NoError(t, err)

	_, err = f.svc.Resume(ctx, created.ID)
	assert.IsType(t, pkgError.ConflictError(""), err)

	paused, err := f.svc.Pause(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusPaused, paused.Status)

	_, err = f.svc.Pause(ctx, created.ID)
	assert.IsType(t, pkgError.ConflictError(""), err)

	resumed, err := f.svc.Resume(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusScheduled, resumed.Status)

	cancelled, err := f.svc.Cancel(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCancelled, cancelled.Status)

	_, err = f.svc.Cancel(ctx, created.ID)
	assert.IsType(t, pkgError.ConflictError(""), err)

	_, err = f.svc.Pause(ctx, "missing")
	assert.IsType(t, pkgError.NotFoundError(""), err)
}

func TestScheduledMessage_ExecuteInline(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, createRequest())
	require.NoError(t, err)

	res, err := f.svc.Execute(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, res.Queued)
	assert.Equal(t, job.StatusScheduled, res.Status)
	assert.Equal(t, job.Progress{Current: 2, Total: 2, Success: 2, Run: 1}, res.Progress)
	assert.Equal(t, 2, f.sms.count())

	records, err := f.svc.ListExecutions(ctx, created.ID, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, job.OutcomeSuccess, records[0].Outcome)

	_, err = f.svc.ListExecutions(ctx, "missing", 0)
	assert.IsType(t, pkgError.NotFoundError(""), err)
}

func TestScheduledMessage_ExecuteRejectsCancelled(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, createRequest())
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, created.ID)
	require.NoError(t, err)

	_, err = f.svc.Execute(ctx, created.ID)
	assert.IsType(t, pkgError.ConflictError(""), err)
	assert.Equal(t, 0, f.sms.count())
}

func TestScheduledMessage_ExecuteQueued(t *testing.T) {
	pool := msgworker.NewPool(2, 10)
	pool.Start(context.Background())
	t.Cleanup(pool.Stop)

	f := newFixture(t, pool)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, createRequest())
	require.NoError(t, err)

	res, err := f.svc.Execute(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, res.Queued)

	assert.Eventually(t, func() bool {
		j, err := f.svc.Get(ctx, created.ID)
		return err == nil && j.ExecutionCount == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, f.sms.count())

	st, err := f.svc.SchedulerStatus(ctx)
	require.NoError(t, err)
	require.NotNil(t, st.Pool)
	assert.Equal(t, 2, st.Pool.NumWorkers)
}

func TestScheduledMessage_SchedulerControls(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.SetSchedulerInterval(ctx, domainScheduled.IntervalRequest{Interval: "soon"})
	assert.IsType(t, pkgError.ValidationError(""), err)

	st, err := f.svc.SetSchedulerInterval(ctx, domainScheduled.IntervalRequest{Interval: "30s"})
	require.NoError(t, err)
	assert.Equal(t, "30s", st.Poller.Interval)
	assert.False(t, st.Poller.Running)

	st, err = f.svc.StartScheduler(ctx)
	require.NoError(t, err)
	assert.True(t, st.Poller.Running)
	assert.Equal(t, job.ModeBrowser, st.Poller.Mode)

	require.NoError(t, f.svc.TriggerCheck(ctx))

	st, err = f.svc.StopScheduler(ctx)
	require.NoError(t, err)
	assert.False(t, st.Poller.Running)
}

func TestScheduledMessage_DeleteAndList(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first, err := f.svc.Create(ctx, createRequest())
	require.NoError(t, err)
	req := createRequest()
	req.MessageType = "whatsapp"
	_, err = f.svc.Create(ctx, req)
	require.NoError(t, err)

	all, err := f.svc.List(ctx, domainScheduled.ListRequest{UserID: "user-1"})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	wa, err := f.svc.List(ctx, domainScheduled.ListRequest{MessageType: "WhatsApp"})
	require.NoError(t, err)
	assert.Len(t, wa, 1)

	require.NoError(t, f.svc.Delete(ctx, first.ID))
	_, err = f.svc.Get(ctx, first.ID)
	assert.IsType(t, pkgError.NotFoundError(""), err)
}

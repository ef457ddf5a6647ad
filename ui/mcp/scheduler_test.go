package mcp

import (
	"context"
	"testing"
	"time"

	"github.com/AzielCF/az-bulk/bulkmessage/application"
	"github.com/AzielCF/az-bulk/bulkmessage/domain/job"
	domainScheduled "github.com/AzielCF/az-bulk/domains/scheduledmessage"
	pkgError "github.com/AzielCF/az-bulk/pkg/error"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubService struct {
	domainScheduled.IScheduledMessageUsecase

	listed    domainScheduled.ListRequest
	paused    string
	triggered bool
	interval  string
}

func (s *stubService) List(_ context.Context, req domainScheduled.ListRequest) ([]job.ScheduledJob, error) {
	s.listed = req
	return []job.ScheduledJob{{ID: "a"}, {ID: "b"}}, nil
}

func (s *stubService) Get(_ context.Context, id string) (job.ScheduledJob, error) {
	if id == "missing" {
		return job.ScheduledJob{}, pkgError.NotFoundError("scheduled message not found")
	}
	next := time.Now().Add(2 * time.Hour)
	return job.ScheduledJob{
		ID: id, Name: "Weekly promo", Status: job.StatusScheduled,
		Progress:        job.Progress{Total: 10, Success: 4},
		NextExecutionAt: &next,
	}, nil
}

func (s *stubService) Pause(_ context.Context, id string) (job.ScheduledJob, error) {
	s.paused = id
	return job.ScheduledJob{ID: id, Status: job.StatusPaused}, nil
}

func (s *stubService) Execute(_ context.Context, id string) (domainScheduled.ExecuteResponse, error) {
	return domainScheduled.ExecuteResponse{JobID: id, Queued: true}, nil
}

func (s *stubService) SchedulerStatus(context.Context) (domainScheduled.SchedulerStatus, error) {
	return domainScheduled.SchedulerStatus{Poller: application.PollerStatus{Running: true, Interval: "1m0s", TotalRuns: 1200}}, nil
}

func (s *stubService) TriggerCheck(context.Context) error {
	s.triggered = true
	return nil
}

func (s *stubService) SetSchedulerInterval(_ context.Context, req domainScheduled.IntervalRequest) (domainScheduled.SchedulerStatus, error) {
	if req.Interval == "10ms" {
		return domainScheduled.SchedulerStatus{}, pkgError.ValidationError("interval must be at least 1s")
	}
	s.interval = req.Interval
	return domainScheduled.SchedulerStatus{Poller: application.PollerStatus{Interval: "30s"}}, nil
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestSchedulerTools_List(t *testing.T) {
	svc := &stubService{}
	h := InitMcpScheduler(svc)

	res, err := h.handleListJobs(context.Background(), callRequest(map[string]any{"status": "paused", "limit": float64(5)}))
	require.NoError(t, err)
	assert.Equal(t, "Found 2 scheduled messages", resultText(t, res))
	assert.Equal(t, "paused", svc.listed.Status)
	assert.Equal(t, 5, svc.listed.Limit)
}

func TestSchedulerTools_Get(t *testing.T) {
	h := InitMcpScheduler(&stubService{})

	res, err := h.handleGetJob(context.Background(), callRequest(map[string]any{"id": "j1"}))
	require.NoError(t, err)
	text := resultText(t, res)
	assert.Contains(t, text, "Weekly promo is scheduled (4/10 sent)")
	assert.Contains(t, text, "next run")

	_, err = h.handleGetJob(context.Background(), callRequest(map[string]any{"id": "missing"}))
	assert.ErrorAs(t, err, new(pkgError.NotFoundError))

	_, err = h.handleGetJob(context.Background(), callRequest(map[string]any{}))
	assert.Error(t, err)
}

func TestSchedulerTools_Actions(t *testing.T) {
	svc := &stubService{}
	h := InitMcpScheduler(svc)

	res, err := h.handlePause(context.Background(), callRequest(map[string]any{"id": "j1"}))
	require.NoError(t, err)
	assert.Equal(t, "j1", svc.paused)
	assert.Equal(t, "Scheduled message j1 paused", resultText(t, res))

	res, err = h.handleExecute(context.Background(), callRequest(map[string]any{"id": "j1"}))
	require.NoError(t, err)
	assert.Equal(t, "Scheduled message j1 queued for execution", resultText(t, res))

	res, err = h.handleStatus(context.Background(), callRequest(nil))
	require.NoError(t, err)
	assert.Equal(t, "Scheduler running every 1m0s, 1,200 runs so far", resultText(t, res))

	_, err = h.handleTrigger(context.Background(), callRequest(nil))
	require.NoError(t, err)
	assert.True(t, svc.triggered)
}

func TestSchedulerTools_SetInterval(t *testing.T) {
	svc := &stubService{}
	h := InitMcpScheduler(svc)

	res, err := h.handleSetInterval(context.Background(), callRequest(map[string]any{"interval": "30s"}))
	require.NoError(t, err)
	assert.Equal(t, "30s", svc.interval)
	assert.Equal(t, "Scheduler interval set to 30s", resultText(t, res))

	_, err = h.handleSetInterval(context.Background(), callRequest(map[string]any{"interval": "10ms"}))
	assert.ErrorAs(t, err, new(pkgError.ValidationError))
}

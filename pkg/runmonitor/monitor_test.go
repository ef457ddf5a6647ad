package runmonitor

import (
	"testing"
	"time"

	"github.com/AzielCF/az-bulk/bulkmessage/domain/job"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_CountsAndRingBuffer(t *testing.T) {
	m := New(3, 0)

	m.Publish(job.Event{Type: job.EventExecutionStarted, JobID: "a"})
	m.Publish(job.Event{Type: job.EventProgress, JobID: "a"})
	m.Publish(job.Event{Type: job.EventProgress, JobID: "a"})
	m.Publish(job.Event{Type: job.EventExecutionCompleted, JobID: "a"})
	m.Publish(job.Event{Type: job.EventExecutionFailed, JobID: "b"})

	stats := m.Stats("")
	assert.Equal(t, int64(1), stats.TotalStarted)
	assert.Equal(t, int64(2), stats.TotalProgress)
	assert.Equal(t, int64(1), stats.TotalCompleted)
	assert.Equal(t, int64(1), stats.TotalFailed)

	require.Len(t, stats.RecentEvents, 3)
	assert.Equal(t, job.EventProgress, stats.RecentEvents[0].Type)
	assert.Equal(t, job.EventExecutionCompleted, stats.RecentEvents[1].Type)
	assert.Equal(t, job.EventExecutionFailed, stats.RecentEvents[2].Type)
	for _, e := range stats.RecentEvents {
		assert.False(t, e.Timestamp.IsZero())
	}
}

func TestMonitor_FiltersByJob(t *testing.T) {
	m := New(10, 0)
	m.Publish(job.Event{Type: job.EventExecutionStarted, JobID: "a"})
	m.Publish(job.Event{Type: job.EventExecutionStarted, JobID: "b"})

	stats := m.Stats("b")
	require.Len(t, stats.RecentEvents, 1)
	assert.Equal(t, "b", stats.RecentEvents[0].JobID)
	assert.Equal(t, int64(2), stats.TotalStarted)
}

func TestMonitor_DropsExpiredEvents(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := New(10, time.Minute)
	m.now = func() time.Time { return now }

	m.Publish(job.Event{Type: job.EventProgress, JobID: "old", Timestamp: now.Add(-2 * time.Minute)})
	m.Publish(job.Event{Type: job.EventProgress, JobID: "new"})

	stats := m.Stats("")
	require.Len(t, stats.RecentEvents, 1)
	assert.Equal(t, "new", stats.RecentEvents[0].JobID)
}

func TestFromEnv(t *testing.T) {
	t.Setenv("RUN_MONITOR_BUFFER", "2")
	t.Setenv("RUN_MONITOR_TTL", "30")

	m := FromEnv()
	assert.Len(t, m.events, 2)
	assert.Equal(t, 30*time.Second, m.ttl)
}

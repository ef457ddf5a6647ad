package runmonitor

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AzielCF/az-bulk/bulkmessage/domain/job"
)

type Stats struct {
	TotalStarted   int64       `json:"total_started"`
	TotalCompleted int64       `json:"total_completed"`
	TotalFailed    int64       `json:"total_failed"`
	TotalPaused    int64       `json:"total_paused"`
	TotalProgress  int64       `json:"total_progress"`
	RecentEvents   []job.Event `json:"recent_events"`
}

// Monitor keeps the last execution events of this process in a ring buffer.
// It is a job.EventSink.
type Monitor struct {
	eventsMu sync.Mutex
	events   []job.Event
	idx      int
	count    int
	ttl      time.Duration
	now      func() time.Time

	totalStarted   int64
	totalCompleted int64
	totalFailed    int64
	totalPaused    int64
	totalProgress  int64
}

// New creates a monitor holding size events. A ttl of zero keeps events until
// they are overwritten.
func New(size int, ttl time.Duration) *Monitor {
	if size <= 0 {
		size = 200
	}
	return &Monitor{events: make([]job.Event, size), ttl: ttl, now: time.Now}
}

// FromEnv reads RUN_MONITOR_BUFFER and RUN_MONITOR_TTL.
func FromEnv() *Monitor {
	return New(envInt("RUN_MONITOR_BUFFER", 200), envDuration("RUN_MONITOR_TTL", 0))
}

func (m *Monitor) Publish(e job.Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = m.now().UTC()
	}

	switch e.Type {
	case job.EventExecutionStarted:
		atomic.AddInt64(&m.totalStarted, 1)
	case job.EventExecutionCompleted:
		atomic.AddInt64(&m.totalCompleted, 1)
	case job.EventExecutionFailed:
		atomic.AddInt64(&m.totalFailed, 1)
	case job.EventExecutionPaused:
		atomic.AddInt64(&m.totalPaused, 1)
	case job.EventProgress:
		atomic.AddInt64(&m.totalProgress, 1)
	}

	m.eventsMu.Lock()
	m.events[m.idx] = e
	m.idx = (m.idx + 1) % len(m.events)
	if m.count < len(m.events) {
		m.count++
	}
	m.eventsMu.Unlock()
}

// Stats returns the counters and the buffered events, oldest first. jobID
// narrows the events to one job when set.
func (m *Monitor) Stats(jobID string) Stats {
	m.eventsMu.Lock()
	defer m.eventsMu.Unlock()

	res := make([]job.Event, 0, m.count)
	cutoff := time.Time{}
	if m.ttl > 0 {
		cutoff = m.now().UTC().Add(-m.ttl)
	}
	start := (m.idx - m.count) % len(m.events)
	if start < 0 {
		start += len(m.events)
	}
	for i := 0; i < m.count; i++ {
		e := m.events[(start+i)%len(m.events)]
		if !cutoff.IsZero() && e.Timestamp.Before(cutoff) {
			continue
		}
		if jobID != "" && e.JobID != jobID {
			continue
		}
		res = append(res, e)
	}

	return Stats{
		TotalStarted:   atomic.LoadInt64(&m.totalStarted),
		TotalCompleted: atomic.LoadInt64(&m.totalCompleted),
		TotalFailed:    atomic.LoadInt64(&m.totalFailed),
		TotalPaused:    atomic.LoadInt64(&m.totalPaused),
		TotalProgress:  atomic.LoadInt64(&m.totalProgress),
		RecentEvents:   res,
	}
}

func envInt(name string, def int) int {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDuration(name string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err == nil {
		return d
	}
	sec, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	if sec <= 0 {
		return 0
	}
	return time.Duration(sec) * time.Second
}

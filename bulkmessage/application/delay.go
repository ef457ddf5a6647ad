package application

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/AzielCF/az-bulk/bulkmessage/domain/job"
)

// DelayPolicy picks the pause between two consecutive sends of a job.
type DelayPolicy struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewDelayPolicy(seed int64) *DelayPolicy {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &DelayPolicy{rng: rand.New(rand.NewSource(seed))}
}

// Next returns MinDelay when randomness is off, otherwise a uniform value in
// [MinDelay, MaxDelay]. An inverted range collapses to MinDelay.
func (p *DelayPolicy) Next(s job.Settings) time.Duration {
	minMs, maxMs := s.MinDelay, s.MaxDelay
	if minMs < 0 {
		minMs = 0
	}
	if !s.UseRandomDelay || maxMs <= minMs {
		return time.Duration(minMs) * time.Millisecond
	}

	p.mu.Lock()
	ms := minMs + p.rng.Intn(maxMs-minMs+1)
	p.mu.Unlock()
	return time.Duration(ms) * time.Millisecond
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

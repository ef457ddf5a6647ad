package application

import (
	"context"
	"testing"
	"time"

	"github.com/AzielCF/az-bulk/bulkmessage/domain/job"
	"github.com/stretchr/testify/assert"
)

func TestDelayPolicy_RandomRange(t *testing.T) {
	p := NewDelayPolicy(42)
	s := job.Settings{MinDelay: 3000, MaxDelay: 8000, UseRandomDelay: true}

	seen := map[time.Duration]bool{}
	for i := 0; i < 1000; i++ {
		d := p.Next(s)
		assert.GreaterOrEqual(t, d, 3000*time.Millisecond)
		assert.LessOrEqual(t, d, 8000*time.Millisecond)
		seen[d] = true
	}
	assert.Greater(t, len(seen), 100)
}

func TestDelayPolicy_Fixed(t *testing.T) {
	p := NewDelayPolicy(1)

	assert.Equal(t, time.Second, p.Next(job.Settings{MinDelay: 1000, MaxDelay: 5000}))
	assert.Equal(t, 2*time.Second, p.Next(job.Settings{MinDelay: 2000, MaxDelay: 1000, UseRandomDelay: true}))
	assert.Equal(t, time.Duration(0), p.Next(job.Settings{MinDelay: -5, UseRandomDelay: false}))
}

func TestSleepContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, SleepContext(ctx, time.Hour), context.Canceled)
	assert.NoError(t, SleepContext(context.Background(), time.Millisecond))
	assert.NoError(t, SleepContext(context.Background(), 0))
}

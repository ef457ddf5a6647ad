package msgworker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_DispatchNonBlocking(t *testing.T) {
	pool := NewPool(2, 10)
	pool.Start(context.Background())
	defer pool.Stop()

	start := time.Now()
	ok := pool.TryDispatch(Task{
		JobID: "job-1",
		Handler: func(ctx context.Context) error {
			time.Sleep(100 * time.Millisecond)
			return nil
		},
	})
	elapsed := time.Since(start)

	assert.True(t, ok)
	assert.Less(t, elapsed, 10*time.Millisecond, "dispatch must not wait for the handler")
}

func TestPool_SameJobRunsSequentially(t *testing.T) {
	pool := NewPool(4, 100)
	pool.Start(context.Background())

	var results []int
	var mu sync.Mutex

	for i := 1; i <= 5; i++ {
		val := i
		require.True(t, pool.TryDispatch(Task{
			JobID: "job-same",
			Handler: func(ctx context.Context) error {
				time.Sleep(5 * time.Millisecond)
				mu.Lock()
				results = append(results, val)
				mu.Unlock()
				return nil
			},
		}))
	}

	// Stop drains the queues.
	pool.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{1, 2, 3, 4, 5}, results)
}

func TestPool_DifferentJobsRunInParallel(t *testing.T) {
	pool := NewPool(8, 100)
	pool.Start(context.Background())
	defer pool.Stop()

	var active, maxActive int32
	var wg sync.WaitGroup

	// pick job ids that hash to distinct workers
	used := map[int]bool{}
	for i := 0; len(used) < 3 && i < 1000; i++ {
		id := fmt.Sprintf("job-%d", i)
		shard := pool.shardFor(id)
		if used[shard] {
			continue
		}
		used[shard] = true
		wg.Add(1)
		pool.TryDispatch(Task{
			JobID: id,
			Handler: func(ctx context.Context) error {
				defer wg.Done()
				cur := atomic.AddInt32(&active, 1)
				for {
					m := atomic.LoadInt32(&maxActive)
					if cur <= m || atomic.CompareAndSwapInt32(&maxActive, m, cur) {
						break
					}
				}
				time.Sleep(50 * time.Millisecond)
				atomic.AddInt32(&active, -1)
				return nil
			},
		})
	}
	wg.Wait()

	assert.GreaterOrEqual(t, atomic.LoadInt32(&maxActive), int32(2))
}

func TestPool_StatsCountErrorsAndPanics(t *testing.T) {
	pool := NewPool(1, 10)
	var ended []error
	var mu sync.Mutex
	pool.OnTaskEnd = func(_ int, _ string, err error) {
		mu.Lock()
		ended = append(ended, err)
		mu.Unlock()
	}
	pool.Start(context.Background())

	pool.TryDispatch(Task{JobID: "a", Handler: func(ctx context.Context) error { return errors.New("boom") }})
	pool.TryDispatch(Task{JobID: "a", Handler: func(ctx context.Context) error { panic("kaboom") }})
	pool.TryDispatch(Task{JobID: "a", Handler: func(ctx context.Context) error { return nil }})
	pool.Stop()

	stats := pool.GetStats()
	assert.Equal(t, int64(3), stats.TotalDispatched)
	assert.Equal(t, int64(3), stats.TotalProcessed)
	assert.Equal(t, int64(2), stats.TotalErrors)
	assert.Equal(t, 0, stats.ActiveWorkers)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, ended, 3)
}

func TestPool_RejectsAfterStop(t *testing.T) {
	pool := NewPool(1, 1)
	pool.Start(context.Background())
	pool.Stop()

	ok := pool.TryDispatch(Task{JobID: "late", Handler: func(ctx context.Context) error { return nil }})
	assert.False(t, ok)
	assert.Equal(t, int64(1), pool.GetStats().TotalDropped)
}

func TestPool_QueueFull(t *testing.T) {
	pool := NewPool(1, 1)
	pool.Start(context.Background())
	defer pool.Stop()

	release := make(chan struct{})
	started := make(chan struct{})
	pool.TryDispatch(Task{JobID: "x", Handler: func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}})
	<-started

	assert.True(t, pool.TryDispatch(Task{JobID: "x", Handler: func(ctx context.Context) error { return nil }}))
	assert.False(t, pool.TryDispatch(Task{JobID: "x", Handler: func(ctx context.Context) error { return nil }}))
	close(release)
}

func TestPool_ConsistentSharding(t *testing.T) {
	pool := NewPool(4, 100)

	s1 := pool.shardFor("job-123")
	s2 := pool.shardFor("job-123")
	assert.Equal(t, s1, s2)
	assert.GreaterOrEqual(t, s1, 0)
	assert.Less(t, s1, 4)
}

package msgworker

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Task is one unit of work bound to a scheduled job. Tasks sharing a JobID
// always land on the same worker and run in dispatch order.
type Task struct {
	JobID   string
	Label   string
	Handler func(ctx context.Context) error
}

// PoolStats is a point in time snapshot of the pool.
type PoolStats struct {
	NumWorkers      int           `json:"num_workers"`
	QueueSize       int           `json:"queue_size"`
	ActiveWorkers   int           `json:"active_workers"`
	TotalDispatched int64         `json:"total_dispatched"`
	TotalProcessed  int64         `json:"total_processed"`
	TotalDropped    int64         `json:"total_dropped"`
	TotalErrors     int64         `json:"total_errors"`
	WorkerStats     []WorkerStats `json:"worker_stats"`
	ActiveJobs      []string      `json:"active_jobs"`
}

type WorkerStats struct {
	WorkerID      int    `json:"worker_id"`
	QueueDepth    int    `json:"queue_depth"`
	IsProcessing  bool   `json:"is_processing"`
	CurrentJob    string `json:"current_job,omitempty"`
	TasksRunCount int64  `json:"tasks_processed"`
}

// Pool runs tasks on a fixed set of workers sharded by job id.
type Pool struct {
	numWorkers int
	queueSize  int
	workers    []*worker
	wg         sync.WaitGroup
	stopOnce   sync.Once
	stopped    int32

	totalDispatched int64
	totalProcessed  int64
	totalDropped    int64
	totalErrors     int64

	OnTaskStart func(workerID int, jobID string)
	OnTaskEnd   func(workerID int, jobID string, err error)
}

type worker struct {
	id        int
	queue     chan Task
	ctx       context.Context
	cancel    context.CancelFunc
	busy      int32
	processed int64
	current   atomic.Value // string
	pool      *Pool
}

func NewPool(numWorkers, queueSize int) *Pool {
	if numWorkers <= 0 {
		numWorkers = 4
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	return &Pool{
		numWorkers: numWorkers,
		queueSize:  queueSize,
		workers:    make([]*worker, numWorkers),
	}
}

// Start launches the workers. Cancelling ctx makes workers drain what is queued and exit.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.numWorkers; i++ {
		workerCtx, cancel := context.WithCancel(ctx)
		w := &worker{
			id:     i,
			queue:  make(chan Task, p.queueSize),
			ctx:    workerCtx,
			cancel: cancel,
			pool:   p,
		}
		w.current.Store("")
		p.workers[i] = w

		p.wg.Add(1)
		go w.run(&p.wg)
	}

	logrus.Infof("[EXEC_POOL] Started with %d workers, queue size: %d", p.numWorkers, p.queueSize)
}

// TryDispatch enqueues without blocking and reports whether the task was accepted.
func (p *Pool) TryDispatch(task Task) bool {
	if atomic.LoadInt32(&p.stopped) == 1 {
		atomic.AddInt64(&p.totalDropped, 1)
		return false
	}

	shard := p.shardFor(task.JobID)
	atomic.AddInt64(&p.totalDispatched, 1)

	sent := func() (ok bool) {
		defer func() {
			// queue closed by a concurrent Stop
			if r := recover(); r != nil {
				ok = false
			}
		}()
		select {
		case p.workers[shard].queue <- task:
			return true
		default:
			return false
		}
	}()
	if sent {
		return true
	}

	atomic.AddInt64(&p.totalDropped, 1)
	logrus.Warnf("[EXEC_POOL] Worker %d queue full (or stopped), dropping task for job %s", shard, task.JobID)
	return false
}

// Stop closes the queues and waits for running and queued tasks to finish.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		atomic.StoreInt32(&p.stopped, 1)
		logrus.Info("[EXEC_POOL] Stopping workers...")
		for _, w := range p.workers {
			if w == nil {
				continue
			}
			close(w.queue)
		}
		p.wg.Wait()
		for _, w := range p.workers {
			if w != nil {
				w.cancel()
			}
		}
		logrus.Info("[EXEC_POOL] All workers stopped")
	})
}

func (p *Pool) shardFor(jobID string) int {
	h := fnv.New32a()
	h.Write([]byte(jobID))
	return int(h.Sum32() % uint32(p.numWorkers))
}

func (p *Pool) GetStats() PoolStats {
	stats := PoolStats{
		NumWorkers:      p.numWorkers,
		QueueSize:       p.queueSize,
		TotalDispatched: atomic.LoadInt64(&p.totalDispatched),
		TotalProcessed:  atomic.LoadInt64(&p.totalProcessed),
		TotalDropped:    atomic.LoadInt64(&p.totalDropped),
		TotalErrors:     atomic.LoadInt64(&p.totalErrors),
		WorkerStats:     make([]WorkerStats, 0, len(p.workers)),
		ActiveJobs:      []string{},
	}

	for _, w := range p.workers {
		if w == nil {
			continue
		}
		busy := atomic.LoadInt32(&w.busy) == 1
		current, _ := w.current.Load().(string)
		if busy {
			stats.ActiveWorkers++
			if current != "" {
				stats.ActiveJobs = append(stats.ActiveJobs, current)
			}
		}
		stats.WorkerStats = append(stats.WorkerStats, WorkerStats{
			WorkerID:      w.id,
			QueueDepth:    len(w.queue),
			IsProcessing:  busy,
			CurrentJob:    current,
			TasksRunCount: atomic.LoadInt64(&w.processed),
		})
	}
	return stats
}

func (w *worker) run(wg *sync.WaitGroup) {
	defer wg.Done()
	logrus.Debugf("[EXEC_POOL] Worker %d started", w.id)

	for task := range w.queue {
		w.execute(task)
	}
	logrus.Debugf("[EXEC_POOL] Worker %d shutting down", w.id)
}

func (w *worker) execute(task Task) {
	if w.pool.OnTaskStart != nil {
		w.pool.OnTaskStart(w.id, task.JobID)
	}
	atomic.StoreInt32(&w.busy, 1)
	w.current.Store(task.JobID)

	var err error
	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(&w.pool.totalErrors, 1)
			logrus.Errorf("[EXEC_POOL] Worker %d panic for job %s: %v", w.id, task.JobID, r)
		}
		if w.pool.OnTaskEnd != nil {
			w.pool.OnTaskEnd(w.id, task.JobID, err)
		}
		w.current.Store("")
		atomic.StoreInt32(&w.busy, 0)
		atomic.AddInt64(&w.processed, 1)
		atomic.AddInt64(&w.pool.totalProcessed, 1)
	}()

	err = task.Handler(w.ctx)
	if err != nil {
		atomic.AddInt64(&w.pool.totalErrors, 1)
		logrus.WithError(err).Errorf("[EXEC_POOL] Worker %d task %q failed for job %s", w.id, task.Label, task.JobID)
	}
}

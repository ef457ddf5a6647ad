package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AzielCF/az-bulk/bulkmessage/domain/job"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

var (
	ErrCheckInProgress  = errors.New("a due-job check is already running")
	ErrIntervalTooShort = errors.New("poll interval must be at least one second")
)

// Locker is an optional cross-process guard taken around each run, on top of the
// conditional claim in storage.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// Notifier broadcasts a wake-up to pollers in other processes.
type Notifier interface {
	Notify(ctx context.Context) error
}

type PollerConfig struct {
	Mode       job.ExecutionMode
	Owner      string
	Interval   time.Duration
	StaleAfter time.Duration
	LockTTL    time.Duration
	BatchSize  int
}

// CheckResult counts what one tick did.
type CheckResult struct {
	Due      int `json:"due"`
	Executed int `json:"executed"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

type PollerStatus struct {
	Running     bool              `json:"running"`
	Checking    bool              `json:"checking"`
	Mode        job.ExecutionMode `json:"mode"`
	Owner       string            `json:"owner"`
	Interval    string            `json:"interval"`
	ActiveJob   string            `json:"active_job,omitempty"`
	LastCheckAt *time.Time        `json:"last_check_at,omitempty"`
	NextCheckAt *time.Time        `json:"next_check_at,omitempty"`
	LastCheck   CheckResult       `json:"last_check"`
	TotalRuns   int64             `json:"total_runs"`
}

// Poller finds due jobs on a fixed tick and runs them one after another.
type Poller struct {
	cfg      PollerConfig
	repo     job.IJobRepository
	exec     *Executor
	locker   Locker
	notifier Notifier
	clock    func() time.Time

	mu        sync.Mutex
	cron      *cron.Cron
	entryID   cron.EntryID
	runCtx    context.Context
	cancel    context.CancelFunc
	running   bool
	lastCheck *time.Time
	lastRes   CheckResult
	activeJob string

	checking  atomic.Bool
	totalRuns atomic.Int64
	wg        sync.WaitGroup
}

type PollerOption func(*Poller)

func WithLocker(l Locker) PollerOption {
	return func(p *Poller) { p.locker = l }
}

func WithNotifier(n Notifier) PollerOption {
	return func(p *Poller) { p.notifier = n }
}

func WithPollerClock(clock func() time.Time) PollerOption {
	return func(p *Poller) { p.clock = clock }
}

func NewPoller(repo job.IJobRepository, exec *Executor, cfg PollerConfig, opts ...PollerOption) *Poller {
	if cfg.Mode == "" {
		cfg.Mode = job.ModeServer
	}
	if cfg.Owner == "" {
		cfg.Owner = string(cfg.Mode) + "-poller"
	}
	if cfg.Interval < time.Second {
		cfg.Interval = time.Minute
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 5 * time.Minute
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}

	p := &Poller{cfg: cfg, repo: repo, exec: exec, clock: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start schedules the tick and runs a first check right away.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}

	p.runCtx, p.cancel = context.WithCancel(ctx)
	p.cron = cron.New(cron.WithChain(cron.Recover(cron.PrintfLogger(logrus.StandardLogger()))))
	p.entryID = p.cron.Schedule(cron.Every(p.cfg.Interval), p.cronJob())
	p.cron.Start()
	p.running = true

	logrus.Infof("[POLLER] %s poller started as %s, checking every %s", p.cfg.Mode, p.cfg.Owner, p.cfg.Interval)
	p.spawnTick(p.runCtx)
}

// Stop cancels the in-flight run, which is released back to storage, and waits for it.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.cancel()
	stopped := p.cron.Stop()
	p.mu.Unlock()

	<-stopped.Done()
	p.wg.Wait()
	logrus.Infof("[POLLER] %s poller stopped", p.cfg.Mode)
}

// SetInterval swaps the tick schedule in place; counters and the running state are kept.
func (p *Poller) SetInterval(d time.Duration) error {
	if d < time.Second {
		return fmt.Errorf("%w: got %s", ErrIntervalTooShort, d)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cfg.Interval = d
	if p.running {
		p.cron.Remove(p.entryID)
		p.entryID = p.cron.Schedule(cron.Every(d), p.cronJob())
	}
	logrus.Infof("[POLLER] %s poller interval set to %s", p.cfg.Mode, d)
	return nil
}

// TriggerCheck asks for an immediate check here, if the poller is running, and
// in every other process when a notifier is set. A check already in flight
// absorbs the request.
func (p *Poller) TriggerCheck(ctx context.Context) error {
	p.Wake()
	if p.notifier == nil {
		return nil
	}
	if err := p.notifier.Notify(ctx); err != nil {
		return fmt.Errorf("notify pollers: %w", err)
	}
	return nil
}

// Wake runs a local check without notifying anyone. Remote wake-ups land here.
func (p *Poller) Wake() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.spawnTick(p.runCtx)
}

// CheckNow runs one check synchronously.
func (p *Poller) CheckNow(ctx context.Context) (CheckResult, error) {
	return p.tick(ctx)
}

// ExecuteByID claims and runs one job regardless of its schedule. Only cancelled
// jobs and jobs another runner is actively sending are refused.
func (p *Poller) ExecuteByID(ctx context.Context, id string) (Result, error) {
	return p.runJob(ctx, id, true)
}

func (p *Poller) Status() PollerStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := PollerStatus{
		Running:   p.running,
		Checking:  p.checking.Load(),
		Mode:      p.cfg.Mode,
		Owner:     p.cfg.Owner,
		Interval:  p.cfg.Interval.String(),
		ActiveJob: p.activeJob,
		LastCheck: p.lastRes,
		TotalRuns: p.totalRuns.Load(),
	}
	if p.lastCheck != nil {
		at := *p.lastCheck
		st.LastCheckAt = &at
	}
	if p.running {
		if next := p.cron.Entry(p.entryID).Next; !next.IsZero() {
			st.NextCheckAt = &next
		}
	}
	return st
}

func (p *Poller) cronJob() cron.Job {
	return cron.FuncJob(func() {
		p.mu.Lock()
		ctx := p.runCtx
		p.mu.Unlock()
		p.logTick(p.tick(ctx))
	})
}

// spawnTick must be called with p.mu held.
func (p *Poller) spawnTick(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.logTick(p.tick(ctx))
	}()
}

func (p *Poller) logTick(res CheckResult, err error) {
	switch {
	case errors.Is(err, ErrCheckInProgress):
		logrus.Debugf("[POLLER] Check skipped, another one is running")
	case err != nil && !errors.Is(err, context.Canceled):
		logrus.WithError(err).Errorf("[POLLER] %s check failed", p.cfg.Mode)
	case res.Due > 0:
		logrus.Infof("[POLLER] %s check: %d due, %d executed, %d skipped, %d failed",
			p.cfg.Mode, res.Due, res.Executed, res.Skipped, res.Failed)
	}
}

func (p *Poller) tick(ctx context.Context) (CheckResult, error) {
	if !p.checking.CompareAndSwap(false, true) {
		return CheckResult{}, ErrCheckInProgress
	}
	defer p.checking.Store(false)

	var res CheckResult
	now := p.clock()
	due, err := p.repo.ListDue(ctx, job.DueQuery{
		Mode:        p.cfg.Mode,
		Now:         now,
		StaleBefore: now.Add(-p.cfg.StaleAfter),
		Limit:       p.cfg.BatchSize,
	})
	if err != nil {
		return res, fmt.Errorf("list due jobs: %w", err)
	}
	res.Due = len(due)

	for _, j := range due {
		if ctx.Err() != nil {
			break
		}
		if j.Status == job.StatusRunning {
			logrus.Warnf("[POLLER] Job %s has a stale heartbeat, recovering it", j.ID)
		}
		_, err := p.runJob(ctx, j.ID, false)
		switch {
		case errors.Is(err, job.ErrJobAlreadyClaimed), errors.Is(err, job.ErrJobNotFound), errors.Is(err, job.ErrLeaseLost):
			res.Skipped++
		case errors.Is(err, context.Canceled):
		case err != nil:
			res.Failed++
		default:
			res.Executed++
		}
	}

	p.mu.Lock()
	p.lastCheck = &now
	p.lastRes = res
	p.mu.Unlock()
	return res, ctx.Err()
}

func (p *Poller) runJob(ctx context.Context, id string, manual bool) (Result, error) {
	if p.locker != nil {
		key := "lock:job:" + id
		ok, err := p.locker.Acquire(ctx, key, p.cfg.LockTTL)
		switch {
		case err != nil:
			logrus.WithError(err).Warnf("[POLLER] Lock backend unavailable for job %s, relying on the storage claim", id)
		case !ok:
			return Result{JobID: id}, job.ErrJobAlreadyClaimed
		default:
			defer func() {
				if err := p.locker.Release(context.WithoutCancel(ctx), key); err != nil {
					logrus.WithError(err).Debugf("[POLLER] Failed to release lock for job %s", id)
				}
			}()
		}
	}

	now := p.clock()
	claimed, err := p.repo.Claim(ctx, job.ClaimRequest{
		JobID:          id,
		Owner:          p.cfg.Owner,
		Now:            now,
		StaleBefore:    now.Add(-p.cfg.StaleAfter),
		AllowAnyStatus: manual,
	})
	if err != nil {
		return Result{JobID: id}, err
	}

	p.setActive(id)
	defer p.setActive("")
	p.totalRuns.Add(1)

	res, err := p.exec.Execute(ctx, claimed)
	if res.Interrupted && res.Status == job.StatusRunning && !errors.Is(err, job.ErrLeaseLost) {
		logrus.Infof("[POLLER] Job %s interrupted at %d/%d, releasing it", id, res.Progress.Current, res.Progress.Total)
		p.exec.persister.Release(ctx, id, p.cfg.Owner)
	}
	return res, err
}

func (p *Poller) setActive(id string) {
	p.mu.Lock()
	p.activeJob = id
	p.mu.Unlock()
}

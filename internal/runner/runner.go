// Package runner drives the probe steps: app start, the periodic loop and
// app shutdown, followed by an orderly cleanup.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimeagent/internal/config"
	"github.com/hamed0406/uptimeagent/internal/metrics"
	"github.com/hamed0406/uptimeagent/internal/probe"
	"github.com/hamed0406/uptimeagent/internal/report"
	"github.com/hamed0406/uptimeagent/internal/scheduler"
	"github.com/hamed0406/uptimeagent/internal/step"
	"github.com/hamed0406/uptimeagent/internal/transport"
)

var (
	ErrNotInitialized = errors.New("runner is not initialized")
	ErrAlreadyRunning = errors.New("runner is already running")
)

// DefaultCleanupPacing separates the waits of Cleanup.
const DefaultCleanupPacing = time.Second

type Options struct {
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	// Pool is shared by probes and sinks. The runner creates one when nil and
	// closes it in Cleanup either way.
	Pool *transport.Pool
	// Reports are the collaborators of the report sinks built in Initialize.
	Reports report.Deps
	// Reporter replaces the sinks built from the configuration.
	Reporter step.Reporter
	// Resolver and Pinger override the probes' network backends.
	Resolver probe.Resolver
	Pinger   probe.Pinger

	// CleanupPacing defaults to DefaultCleanupPacing; negative disables it.
	CleanupPacing time.Duration
	Now           func() time.Time
}

type Runner struct {
	opts   Options
	logger *zap.Logger
	pool   *transport.Pool

	cleanupCtx    context.Context
	cleanupCancel context.CancelFunc

	mu          sync.Mutex
	initialized bool
	running     bool
	busy        bool
	runCancel   context.CancelFunc
	cfg         *config.Checker
	clientID    string
	sched       *scheduler.Scheduler
	orch        *step.Orchestrator
	appStart    *step.State
	periodic    []*step.State
	appShutdown *step.State
	lastCycleAt time.Time

	cycles  atomic.Uint64
	skipped atomic.Uint64
}

func New(opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Pool == nil {
		opts.Pool = transport.NewPool(transport.DefaultLifetime)
	}
	if opts.CleanupPacing < 0 {
		opts.CleanupPacing = 0
	} else if opts.CleanupPacing == 0 {
		opts.CleanupPacing = DefaultCleanupPacing
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		opts:          opts,
		logger:        opts.Logger,
		pool:          opts.Pool,
		cleanupCtx:    ctx,
		cleanupCancel: cancel,
	}
}

// Pool returns the transport pool shared by probes and sinks.
func (r *Runner) Pool() *transport.Pool { return r.pool }

// Initialize builds the scheduler, every probe and every sink of cfg. It may
// be called again while the runner is stopped.
func (r *Runner) Initialize(cfg *config.Checker, clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return ErrAlreadyRunning
	}

	sched, err := scheduler.New(cfg.Schedule, cfg.ScheduleUTC)
	if err != nil {
		return err
	}

	deps := probe.Deps{
		Pool:     r.pool,
		Logger:   r.logger,
		Resolver: r.opts.Resolver,
		Pinger:   r.opts.Pinger,
	}
	appStart, err1 := step.NewState("app_start", cfg.AppStart, deps)
	appShutdown, err2 := step.NewState("app_shutdown", cfg.AppShutdown, deps)
	err = multierr.Combine(err1, err2)
	periodic := make([]*step.State, 0, len(cfg.Periodic))
	for i := range cfg.Periodic {
		st, perr := step.NewState(fmt.Sprintf("periodic[%d]", i), &cfg.Periodic[i], deps)
		err = multierr.Append(err, perr)
		periodic = append(periodic, st)
	}
	if err != nil {
		return err
	}

	reporter := r.opts.Reporter
	if reporter == nil {
		rd := r.opts.Reports
		rd.Logger = r.logger
		rd.Metrics = r.opts.Metrics
		rd.Pool = r.pool
		rd.ClientID = clientID
		d, err := report.Build(cfg.Reports, rd)
		if err != nil {
			return err
		}
		reporter = d
	}

	r.cfg = cfg
	r.clientID = clientID
	r.sched = sched
	r.appStart = appStart
	r.periodic = periodic
	r.appShutdown = appShutdown
	r.orch = &step.Orchestrator{
		Logger:      r.logger,
		Reporter:    reporter,
		Concurrency: cfg.Concurrency,
		ClientID:    clientID,
		Metrics:     r.opts.Metrics,
	}
	r.initialized = true

	r.logger.Info("runner_initialized",
		zap.String("client_id", clientID),
		zap.String("schedule", sched.String()),
		zap.Duration("interval", cfg.Interval),
		zap.Int("periodic_steps", len(periodic)),
	)
	return nil
}

// Start runs the app start step and then the periodic loop until ctx is
// done or Stop is called. The app shutdown step runs on the way out.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if !r.initialized {
		r.mu.Unlock()
		return ErrNotInitialized
	}
	if r.running {
		r.mu.Unlock()
		return ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.runCancel = cancel
	r.running = true
	r.mu.Unlock()
	defer cancel()

	r.enterRunning()
	defer r.exitRunning()

	if !r.hasPeriodicProbes() {
		r.logger.Info("runner_no_periodic_probes")
		return nil
	}

	var lastStart time.Time
	for {
		if err := sleep(runCtx, r.intervalDelay(lastStart)); err != nil {
			return nil
		}
		lastStart = r.opts.Now()

		if !r.sched.IsInTimeWindows(lastStart) {
			r.skipped.Add(1)
			r.opts.Metrics.CycleSkipped()
			r.logger.Debug("cycle_skipped_by_schedule", zap.Time("at", lastStart))
			continue
		}
		r.runCycle(runCtx, lastStart)
	}
}

// Stop cancels the periodic loop. Cleanup waits for what is still running.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running && r.runCancel != nil {
		r.logger.Info("runner_stop_requested")
		r.runCancel()
	}
}

// Cleanup waits for the last run of every step, app start first and app
// shutdown last. Cancelling ctx aborts the steps still running.
func (r *Runner) Cleanup(ctx context.Context) error {
	stop := context.AfterFunc(ctx, r.cleanupCancel)
	defer stop()

	r.mu.Lock()
	states := []*step.State{r.appStart}
	states = append(states, r.periodic...)
	states = append(states, r.appShutdown)
	r.mu.Unlock()

	var errs error
	waited := false
	for _, st := range states {
		if st == nil {
			continue
		}
		if waited {
			if err := sleep(r.cleanupCtx, r.opts.CleanupPacing); err != nil {
				errs = multierr.Append(errs, err)
				break
			}
		}
		waited = true
		err := st.Wait(r.cleanupCtx)
		for _, e := range multierr.Errors(err) {
			// runs interrupted by Stop are expected
			if errors.Is(e, context.Canceled) && r.cleanupCtx.Err() == nil {
				continue
			}
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", st.Name, e))
		}
	}

	r.pool.Close()
	if errs != nil {
		r.logger.Warn("runner_cleanup_incomplete", zap.Error(errs))
	} else {
		r.logger.Info("runner_cleanup_done")
	}
	return errs
}

type Status struct {
	Initialized   bool       `json:"initialized"`
	Running       bool       `json:"running"`
	Busy          bool       `json:"busy"`
	ClientID      string     `json:"client_id"`
	Schedule      string     `json:"schedule"`
	Interval      string     `json:"interval"`
	Probes        int        `json:"probes"`
	Cycles        uint64     `json:"cycles"`
	SkippedCycles uint64     `json:"skipped_cycles"`
	LastCycleAt   *time.Time `json:"last_cycle_at,omitempty"`
}

func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Status{
		Initialized:   r.initialized,
		Running:       r.running,
		Busy:          r.busy,
		ClientID:      r.clientID,
		Cycles:        r.cycles.Load(),
		SkippedCycles: r.skipped.Load(),
	}
	if r.sched != nil {
		s.Schedule = r.sched.String()
	}
	if r.cfg != nil {
		s.Interval = r.cfg.Interval.String()
	}
	s.Probes = r.appStart.ProbeCount() + r.appShutdown.ProbeCount()
	for _, st := range r.periodic {
		s.Probes += st.ProbeCount()
	}
	if !r.lastCycleAt.IsZero() {
		t := r.lastCycleAt
		s.LastCycleAt = &t
	}
	return s
}

func (r *Runner) runCycle(ctx context.Context, at time.Time) {
	r.setBusy(true, at)
	defer r.setBusy(false, at)

	r.cycles.Add(1)
	r.opts.Metrics.CycleStarted()
	for _, st := range r.periodic {
		if err := r.orch.RunStep(ctx, st, step.DefaultBounds()); err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Warn("periodic_step_failed", zap.String("step", st.Name), zap.Error(err))
		}
	}
}

// enterRunning runs the app start step once the previous app shutdown
// finished.
func (r *Runner) enterRunning() {
	r.opts.Metrics.SetRunning(true)
	r.logger.Info("runner_running", zap.Bool("running", true))

	if err := r.orch.RunStep(r.cleanupCtx, r.appStart, step.DefaultBounds(), r.appShutdown.Last()); err != nil {
		r.logger.Warn("app_start_step_failed", zap.Error(err))
	}
}

// exitRunning runs the app shutdown step once the app start step finished.
func (r *Runner) exitRunning() {
	r.mu.Lock()
	r.running = false
	r.runCancel = nil
	r.mu.Unlock()
	r.opts.Metrics.SetRunning(false)
	r.logger.Info("runner_running", zap.Bool("running", false))

	if err := r.orch.RunStep(r.cleanupCtx, r.appShutdown, step.DefaultBounds(), r.appStart.Last()); err != nil {
		r.logger.Warn("app_shutdown_step_failed", zap.Error(err))
	}
}

func (r *Runner) setBusy(busy bool, at time.Time) {
	r.mu.Lock()
	r.busy = busy
	if busy {
		r.lastCycleAt = at
	}
	r.mu.Unlock()
	r.opts.Metrics.SetBusy(busy)
	r.logger.Debug("runner_busy", zap.Bool("busy", busy))
}

func (r *Runner) hasPeriodicProbes() bool {
	for _, st := range r.periodic {
		if st.ProbeCount() > 0 {
			return true
		}
	}
	return false
}

func (r *Runner) intervalDelay(lastStart time.Time) time.Duration {
	if lastStart.IsZero() {
		return 0
	}
	d := r.cfg.Interval - r.opts.Now().Sub(lastStart)
	if d < 0 {
		return 0
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

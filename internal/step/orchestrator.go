package step

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimeagent/internal/domain"
	"github.com/hamed0406/uptimeagent/internal/metrics"
	"github.com/hamed0406/uptimeagent/internal/probe"
	"github.com/hamed0406/uptimeagent/internal/report"
)

// MaxDurationUnbounded stands in for an unset max duration.
const MaxDurationUnbounded = 30 * 24 * time.Hour

// Bounds are the effective limits of one step run.
type Bounds struct {
	Min        time.Duration
	Max        time.Duration
	SendReport bool
}

// DefaultBounds are inherited by top-level steps.
func DefaultBounds() Bounds {
	return Bounds{Max: MaxDurationUnbounded, SendReport: true}
}

type Reporter interface {
	Report(ctx context.Context, entries []report.Entry) error
}

type Orchestrator struct {
	Logger   *zap.Logger
	Reporter Reporter
	// Concurrency bounds how many probes of one step run at once.
	Concurrency int
	ClientID    string
	Metrics     *metrics.Metrics
}

func (o *Orchestrator) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// RunStep starts st after the runs in extra and st's own previous run have
// finished. It returns once the run is launched, or once it finished when st
// must finish before the next step. The before and after steps are started
// around it.
func (o *Orchestrator) RunStep(ctx context.Context, st *State, inherited Bounds, extra ...*Handle) (err error) {
	if st == nil {
		return nil
	}
	b := st.bounds(inherited)

	if st.After != nil {
		defer func() {
			err = multierr.Append(err, o.RunStep(ctx, st.After, b, st.Before.Last()))
		}()
	}
	if st.Before != nil {
		var waits []*Handle
		if st.After != nil {
			waits = append(waits, st.After.Last())
		}
		if err := o.RunStep(ctx, st.Before, b, waits...); err != nil {
			return err
		}
	}

	if len(st.Groups) == 0 {
		return nil
	}

	waits := append(append([]*Handle(nil), extra...), st.Last())
	h := newHandle()
	st.setLast(h)
	go func() {
		h.complete(o.execute(ctx, st, b, waits))
	}()

	if st.FinishBeforeNext {
		return h.Wait(ctx)
	}
	return nil
}

func (o *Orchestrator) execute(ctx context.Context, st *State, b Bounds, waits []*Handle) error {
	for _, w := range waits {
		select {
		case <-w.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	sctx, cancel := context.WithTimeout(ctx, b.Max)
	defer cancel()

	start := time.Now()
	entries := o.runProbes(sctx, st, start)
	elapsed := time.Since(start)
	o.Metrics.ObserveStep(st.Name, elapsed.Seconds())

	failed := 0
	for i := range entries {
		e := &entries[i]
		if !e.Result.Succeeded() {
			failed++
		}
		if e.Result.Tags == nil {
			e.Result.Tags = domain.Tags{}
		}
		e.Result.Tags.Add("clientId", o.ClientID)
		e.Result.Tags.Add("checkDuration", elapsed.String())
		o.Metrics.ObserveResult(e.Label, e.Result)
	}
	o.logger().Info("step_finished",
		zap.String("step", st.Name),
		zap.Int("probes", len(entries)),
		zap.Int("failed", failed),
		zap.Duration("took", elapsed),
	)

	if b.SendReport && o.Reporter != nil && len(entries) > 0 {
		if err := o.Reporter.Report(sctx, entries); err != nil {
			o.logger().Debug("step_report_incomplete", zap.String("step", st.Name), zap.Error(err))
		}
	}

	if rest := b.Min - time.Since(start); rest > 0 {
		t := time.NewTimer(rest)
		defer t.Stop()
		select {
		case <-t.C:
		case <-sctx.Done():
		}
	}
	return sctx.Err()
}

type job struct {
	group string
	p     probe.Probe
}

// runProbes dispatches the due probes in group then probe order and returns
// one entry per dispatched probe, in that order.
func (o *Orchestrator) runProbes(ctx context.Context, st *State, now time.Time) []report.Entry {
	var jobs []job
	for _, g := range st.Groups {
		for _, p := range g.Probes {
			if p.ShouldRun(now) {
				jobs = append(jobs, job{group: g.Name, p: p})
			}
		}
	}
	if len(jobs) == 0 {
		return nil
	}

	concurrency := o.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)
	results := make([]domain.CheckResult, len(jobs))
	dispatched := make([]bool, len(jobs))
	var wg sync.WaitGroup

dispatch:
	for i, j := range jobs {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			o.logger().Warn("step_dispatch_stopped",
				zap.String("step", st.Name),
				zap.Int("skipped", len(jobs)-i),
				zap.Error(ctx.Err()),
			)
			break dispatch
		}
		dispatched[i] = true
		wg.Add(1)
		go func(i int, j job) {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					results[i] = domain.FromError("RunChecks", fmt.Errorf("probe %s panicked: %v", j.p.Name(), r))
				}
			}()
			results[i] = j.p.Run(ctx)
		}(i, j)
	}
	wg.Wait()

	entries := make([]report.Entry, 0, len(jobs))
	for i, j := range jobs {
		if !dispatched[i] {
			continue
		}
		entries = append(entries, report.Entry{
			Label:        Label(j.group, j.p),
			Result:       results[i],
			ReportGroups: j.p.ReportGroups(),
			At:           now,
		})
	}
	return entries
}

// Label names a probe result in reports: "<group>.<probe>(<kind>)".
func Label(group string, p probe.Probe) string {
	return fmt.Sprintf("%s.%s(%s)", group, p.Name(), p.Kind())
}

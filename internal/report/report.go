// Package report delivers probe results to the configured sinks.
package report

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimeagent/internal/domain"
	"github.com/hamed0406/uptimeagent/internal/metrics"
)

// Entry is one reported probe result. Label is "<group>.<probe>(<kind>)".
type Entry struct {
	Label        string
	Result       domain.CheckResult
	ReportGroups []string
	At           time.Time
}

// Sink receives the entries routed to it.
type Sink interface {
	Name() string
	Report(ctx context.Context, entries []Entry) error
}

// MatchGroups reports whether an entry with entryGroups goes to a sink
// subscribed to sinkGroups. Entries without groups only reach "*" sinks.
func MatchGroups(sinkGroups, entryGroups []string) bool {
	if len(sinkGroups) == 0 {
		sinkGroups = []string{"*"}
	}
	if len(entryGroups) == 0 {
		for _, g := range sinkGroups {
			if g == "*" {
				return true
			}
		}
		return false
	}
	for _, g := range sinkGroups {
		for _, e := range entryGroups {
			if g == e {
				return true
			}
		}
	}
	return false
}

type route struct {
	sink    Sink
	groups  []string
	timeout time.Duration
}

// Dispatcher fans a batch of entries out to every sink concurrently.
type Dispatcher struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
	routes  []route
}

func NewDispatcher(logger *zap.Logger, m *metrics.Metrics) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{logger: logger, metrics: m}
}

// Add registers s for the given groups. A non-positive timeout means the
// sink is bounded only by the caller's context.
func (d *Dispatcher) Add(s Sink, groups []string, timeout time.Duration) {
	d.routes = append(d.routes, route{sink: s, groups: groups, timeout: timeout})
}

func (d *Dispatcher) Sinks() []Sink {
	out := make([]Sink, 0, len(d.routes))
	for _, r := range d.routes {
		out = append(out, r.sink)
	}
	return out
}

// Report delivers entries to every sink and waits for all of them. Sink
// failures are logged and counted; the combined error is returned for
// callers that care.
func (d *Dispatcher) Report(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 || len(d.routes) == 0 {
		return nil
	}

	var (
		mu   sync.Mutex
		errs error
		wg   sync.WaitGroup
	)
	for _, rt := range d.routes {
		selected := filter(entries, rt.groups)
		if len(selected) == 0 {
			continue
		}
		wg.Add(1)
		go func(rt route, selected []Entry) {
			defer wg.Done()
			err := d.deliver(ctx, rt, selected)
			if err == nil {
				d.logger.Debug("report_sent",
					zap.String("sink", rt.sink.Name()),
					zap.Int("entries", len(selected)),
				)
				return
			}
			d.metrics.ReportFailed(rt.sink.Name())
			d.logger.Warn("report_failed",
				zap.String("sink", rt.sink.Name()),
				zap.Int("entries", len(selected)),
				zap.Error(err),
			)
			mu.Lock()
			errs = multierr.Append(errs, fmt.Errorf("sink %s: %w", rt.sink.Name(), err))
			mu.Unlock()
		}(rt, selected)
	}
	wg.Wait()
	return errs
}

func (d *Dispatcher) deliver(ctx context.Context, rt route, entries []Entry) (err error) {
	if rt.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rt.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	err = rt.sink.Report(ctx, entries)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && rt.timeout > 0 {
		err = fmt.Errorf("%w (timeout %s)", err, rt.timeout)
	}
	return err
}

func filter(entries []Entry, groups []string) []Entry {
	var out []Entry
	for _, e := range entries {
		if MatchGroups(groups, e.ReportGroups) {
			out = append(out, e)
		}
	}
	return out
}

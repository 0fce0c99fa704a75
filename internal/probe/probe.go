// Package probe runs the configured checks. Every probe converts its own
// errors into a CheckResult, so callers only ever see results.
package probe

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimeagent/internal/config"
	"github.com/hamed0406/uptimeagent/internal/domain"
	"github.com/hamed0406/uptimeagent/internal/retry"
	"github.com/hamed0406/uptimeagent/internal/transport"
)

// Probe is one configured check, reused across cycles.
type Probe interface {
	Name() string
	Kind() config.ProbeKind
	Order() int
	ReportGroups() []string
	MinInterval() time.Duration
	LastRun() time.Time
	// ShouldRun reports whether more than MinInterval passed since the last run.
	ShouldRun(now time.Time) bool
	Run(ctx context.Context) domain.CheckResult
}

// Deps are the shared collaborators a probe may need.
type Deps struct {
	Pool     *transport.Pool
	Logger   *zap.Logger
	Resolver Resolver
	Pinger   Pinger
}

type base struct {
	name         string
	kind         config.ProbeKind
	order        int
	reportGroups []string
	minInterval  time.Duration
	lastRun      atomic.Int64
}

func (b *base) init(def config.ProbeDef, group *config.Group) {
	b.name = def.Name
	b.kind = def.Kind
	b.order = def.Order
	b.reportGroups = def.ReportGroups
	b.minInterval = def.EffectiveMinInterval(group)
}

func (b *base) Name() string               { return b.name }
func (b *base) Kind() config.ProbeKind     { return b.kind }
func (b *base) Order() int                 { return b.order }
func (b *base) ReportGroups() []string     { return b.reportGroups }
func (b *base) MinInterval() time.Duration { return b.minInterval }

func (b *base) LastRun() time.Time {
	n := b.lastRun.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

func (b *base) ShouldRun(now time.Time) bool {
	return now.Sub(b.LastRun()) > b.minInterval
}

// markRun records now as the last run; it never moves backwards.
func (b *base) markRun(now time.Time) {
	n := now.UnixNano()
	for {
		cur := b.lastRun.Load()
		if n <= cur || b.lastRun.CompareAndSwap(cur, n) {
			return
		}
	}
}

func retryOptions(r config.Retry, timeout time.Duration, op string) retry.Options {
	return retry.Options{Timeout: timeout, MaxRetries: r.MaxRetries, Delay: r.RetryDelay, Op: op}
}

type builder func(def config.ProbeDef, group *config.Group, deps Deps) (Probe, error)

var builders = map[config.ProbeKind]builder{
	config.KindDNS:       newDNSProbe,
	config.KindHTTP:      newHTTPProbe,
	config.KindRawSocket: newSocketProbe,
	config.KindTCP:       newSocketProbe,
	config.KindUDP:       newSocketProbe,
	config.KindTLS:       newTLSProbe,
	config.KindPing:      newPingProbe,
	config.KindExec:      newExecProbe,
}

// Build creates the probe for def. A missing required field is a *domain.ConfigError.
func Build(def config.ProbeDef, group *config.Group, deps Deps) (Probe, error) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Pool == nil {
		deps.Pool = transport.NewPool(0)
	}
	build, ok := builders[def.Kind]
	if !ok {
		return nil, &domain.ConfigError{Field: "kind", Reason: fmt.Sprintf("unknown probe kind %q", def.Kind)}
	}
	if def.Name == "" {
		return nil, domain.MissingField("name")
	}
	p, err := build(def, group, deps)
	if err != nil {
		return nil, fmt.Errorf("probe %q: %w", def.Name, err)
	}
	return p, nil
}

// withTags adds tags to every result that does not carry them yet.
func withTags(results []domain.NamedResult, tags domain.Tags) {
	for i := range results {
		if results[i].Result.Tags == nil {
			results[i].Result.Tags = domain.Tags{}
		}
		results[i].Result.Tags.AddAll(tags)
	}
}

// shortCircuit turns an aggregated Failure into an error so the retry wrapper
// tries again and the probe boundary reports the failed result unchanged.
func shortCircuit(res domain.CheckResult) (domain.CheckResult, error) {
	if res.Outcome == domain.Failure {
		return domain.CheckResult{}, &domain.ShortCircuitError{Result: res}
	}
	return res, nil
}

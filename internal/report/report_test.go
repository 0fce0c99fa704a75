package report

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hamed0406/uptimeagent/internal/config"
	"github.com/hamed0406/uptimeagent/internal/domain"
	"github.com/hamed0406/uptimeagent/internal/metrics"
	"github.com/hamed0406/uptimeagent/internal/repo/memory"
	"github.com/hamed0406/uptimeagent/internal/transport"
)

func entry(label string, o domain.Outcome, groups ...string) Entry {
	return Entry{
		Label:        label,
		Result:       domain.NewResult(o, o.String()+" desc", domain.Tags{"clientId": "c1"}),
		ReportGroups: groups,
		At:           time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

type recordingSink struct {
	name  string
	err   error
	block bool

	mu  sync.Mutex
	got []Entry
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Report(ctx context.Context, entries []Entry) error {
	s.mu.Lock()
	s.got = append(s.got, entries...)
	s.mu.Unlock()
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return s.err
}

func (s *recordingSink) labels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, e := range s.got {
		out = append(out, e.Label)
	}
	return out
}

func TestMatchGroups(t *testing.T) {
	cases := []struct {
		name        string
		sink, entry []string
		want        bool
	}{
		{"wildcard takes ungrouped", []string{"*"}, nil, true},
		{"empty sink groups mean wildcard", nil, nil, true},
		{"named sink skips ungrouped", []string{"ops"}, nil, false},
		{"intersection", []string{"ops", "dev"}, []string{"dev"}, true},
		{"no intersection", []string{"ops"}, []string{"dev"}, false},
		{"wildcard does not match named entry groups", []string{"*"}, []string{"dev"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, MatchGroups(tc.sink, tc.entry))
		})
	}
}

func TestDispatcher_RoutesByGroupAndCombinesErrors(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := metrics.New(prometheus.NewRegistry())
	d := NewDispatcher(zap.NewNop(), m)
	all := &recordingSink{name: "all"}
	ops := &recordingSink{name: "ops", err: errors.New("down")}
	slow := &recordingSink{name: "slow", block: true}
	d.Add(all, []string{"*"}, 0)
	d.Add(ops, []string{"ops"}, 0)
	d.Add(slow, []string{"*"}, 20*time.Millisecond)

	err := d.Report(context.Background(), []Entry{
		entry("g.a(http)", domain.Success),
		entry("g.b(dns)", domain.Failure, "ops"),
	})

	require.Equal(t, []string{"g.a(http)"}, all.labels())
	require.Equal(t, []string{"g.b(dns)"}, ops.labels())
	require.Len(t, multierr.Errors(err), 2)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 1.0, testutil.ToFloat64(m.ReportFailures.WithLabelValues("ops")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.ReportFailures.WithLabelValues("slow")))
}

func TestDispatcher_NoEntriesIsNoop(t *testing.T) {
	d := NewDispatcher(nil, nil)
	s := &recordingSink{name: "s"}
	d.Add(s, nil, 0)
	require.NoError(t, d.Report(context.Background(), nil))
	require.Empty(t, s.labels())
}

func TestWebhook_AnyURISuccessIsEnough(t *testing.T) {
	var (
		hits     atomic.Int32
		clientID atomic.Value
		keys     atomic.Value
	)
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID.Store(r.Header.Get(ClientUIDHeader))
		var items []struct {
			Key   string             `json:"key"`
			Value domain.CheckResult `json:"value"`
		}
		_ = json.NewDecoder(r.Body).Decode(&items)
		var ks []string
		for _, it := range items {
			ks = append(ks, it.Key+"="+it.Value.Outcome.String())
		}
		keys.Store(ks)
	}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	pool := transport.NewPool(time.Minute)
	defer pool.Close()
	wh, err := NewWebhook("hook", config.WebhookParams{
		URIs:          []string{bad.URL, good.URL},
		MaxRetries:    2,
		RetryDelay:    time.Millisecond,
		PerURITimeout: time.Second,
	}, pool, "client-1")
	require.NoError(t, err)

	err = wh.Report(context.Background(), []Entry{entry("g.a(http)", domain.Failure)})
	require.NoError(t, err)
	require.Equal(t, "client-1", clientID.Load())
	require.Equal(t, []string{"g.a(http)=Failure"}, keys.Load())
	require.Equal(t, int32(3), hits.Load(), "failing URI is retried")
}

func TestWebhook_AllURIsFail(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer bad.Close()

	wh, err := NewWebhook("hook", config.WebhookParams{URIs: []string{bad.URL}}, nil, "")
	require.NoError(t, err)
	err = wh.Report(context.Background(), []Entry{entry("g.a(http)", domain.Success)})
	require.ErrorContains(t, err, "502")
}

func TestNewWebhook_RequiresURIs(t *testing.T) {
	_, err := NewWebhook("hook", config.WebhookParams{}, nil, "")
	require.True(t, domain.IsConfigError(err))
}

func TestMetricsSink_ExportsAvailability(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, err := NewMetrics("prom", config.MetricsParams{Tags: map[string]string{"env": "test"}}, reg, "c1")
	require.NoError(t, err)

	require.NoError(t, s.Report(context.Background(), []Entry{
		entry("g.a(http)", domain.Success),
		entry("g.b(dns)", domain.Failure),
	}))
	require.Equal(t, 1.0, testutil.ToFloat64(s.availability.WithLabelValues("g.a(http)", "c1")))
	require.Equal(t, 0.0, testutil.ToFloat64(s.availability.WithLabelValues("g.b(dns)", "c1")))
	require.Equal(t, 1.0, testutil.ToFloat64(s.results.WithLabelValues("g.b(dns)", "c1", "Failure")))

	// a second sink with the same labels reuses the registered collectors
	again, err := NewMetrics("prom", config.MetricsParams{Tags: map[string]string{"env": "test"}}, reg, "c1")
	require.NoError(t, err)
	require.Same(t, s.availability, again.availability)
}

func TestLogSink_FailuresAtWarn(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	s, err := NewLog("log", config.LogParams{Level: "debug"}, zap.New(core))
	require.NoError(t, err)

	require.NoError(t, s.Report(context.Background(), []Entry{
		entry("g.a(http)", domain.Success),
		entry("g.b(dns)", domain.Failure),
	}))
	all := logs.FilterMessage("probe_result").All()
	require.Len(t, all, 2)
	require.Equal(t, zapcore.DebugLevel, all[0].Level)
	require.Equal(t, zapcore.WarnLevel, all[1].Level)
	require.Equal(t, "c1", all[1].ContextMap()["tag.clientId"])
}

func TestStoreSink_AppendsRecords(t *testing.T) {
	mem := memory.New()
	s := NewStore("db", mem, "c1")
	require.NoError(t, s.Report(context.Background(), []Entry{entry("g.a(http)", domain.Failure)}))

	rec, err := mem.LastByLabel(context.Background(), "g.a(http)")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, "c1", rec.ClientID)
	require.False(t, rec.Up())
}

type fakeNotifier struct {
	titles []string
	err    error
}

func (f *fakeNotifier) Send(_ context.Context, title, _ string) error {
	f.titles = append(f.titles, title)
	return f.err
}

func TestAlertSink_StateTransitionsAndCooldown(t *testing.T) {
	ctx := context.Background()
	n := &fakeNotifier{}
	a := NewAlert("alert", config.AlertParams{AlertOnRecovery: true, Cooldown: 10 * time.Minute}, memory.New(), n)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }

	report := func(o domain.Outcome) {
		t.Helper()
		require.NoError(t, a.Report(ctx, []Entry{entry("g.a(http)", o)}))
	}

	report(domain.Success) // first sight, up: nothing to say
	require.Empty(t, n.titles)

	report(domain.Failure)
	require.Equal(t, []string{"🔴 Target DOWN"}, n.titles)

	report(domain.Failure) // unchanged
	require.Len(t, n.titles, 1)

	now = now.Add(time.Minute)
	report(domain.Success) // recovery bypasses cooldown
	require.Equal(t, "🟢 Target RECOVERED", n.titles[1])

	now = now.Add(time.Minute)
	report(domain.Failure) // within cooldown of the recovery send
	require.Len(t, n.titles, 2)

	now = now.Add(time.Minute)
	report(domain.Success) // the silent down left no send time, so this recovery is sent
	require.Len(t, n.titles, 3)
	report(domain.Failure) // within cooldown of that recovery
	require.Len(t, n.titles, 3)
}

func TestAlertSink_FailedSendIsRetriedNextCycle(t *testing.T) {
	ctx := context.Background()
	n := &fakeNotifier{err: errors.New("slack down")}
	a := NewAlert("alert", config.AlertParams{}, memory.New(), n)

	require.Error(t, a.Report(ctx, []Entry{entry("g.a(http)", domain.Failure)}))
	n.err = nil
	require.NoError(t, a.Report(ctx, []Entry{entry("g.a(http)", domain.Failure)}))
	require.Len(t, n.titles, 2)
}

func TestBuild_FromConfig(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	cfg, err := config.Parse([]byte(`
reports:
  - kind: webhook
    name: hook
    uris: [` + srv.URL + `]
  - kind: metrics
    name: prom
  - kind: log
    name: log
    groups: [ops]
  - kind: store
    name: db
  - kind: alert
    name: alert
`))
	require.NoError(t, err)

	d, err := Build(cfg.Reports, Deps{Registerer: prometheus.NewRegistry(), ClientID: "c1"})
	require.NoError(t, err)

	var names []string
	for _, s := range d.Sinks() {
		names = append(names, s.Name())
	}
	require.Equal(t, []string{"hook", "prom", "log", "db", "alert"}, names)
	require.NoError(t, d.Report(context.Background(), []Entry{entry("g.a(http)", domain.Success)}))
}

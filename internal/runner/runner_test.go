package runner

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimeagent/internal/config"
	"github.com/hamed0406/uptimeagent/internal/metrics"
	"github.com/hamed0406/uptimeagent/internal/report"
)

type capture struct {
	mu     sync.Mutex
	labels []string
}

func (c *capture) Report(_ context.Context, entries []report.Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range entries {
		c.labels = append(c.labels, e.Label+"="+e.Result.Outcome.String())
	}
	return nil
}

func (c *capture) list() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.labels...)
}

func (c *capture) count(prefix string) int {
	n := 0
	for _, l := range c.list() {
		if strings.HasPrefix(l, prefix) {
			n++
		}
	}
	return n
}

func checkerYAML(url, schedule string) string {
	return `
interval: 10ms
schedule: "` + schedule + `"
schedule_utc: true
app_start:
  finish_before_next: true
  groups:
    - name: boot
      probes:
        - kind: http
          name: up
          uris: [` + url + `]
periodic:
  - groups:
      - name: web
        probes:
          - kind: http
            name: home
            uris: [` + url + `]
app_shutdown:
  groups:
    - name: bye
      probes:
        - kind: http
          name: down
          uris: [` + url + `]
`
}

func newRunner(t *testing.T, yaml string, rep *capture, opts Options) *Runner {
	t.Helper()
	cfg, err := config.Parse([]byte(yaml))
	require.NoError(t, err)

	opts.Logger = zap.NewNop()
	opts.Reporter = rep
	if opts.CleanupPacing == 0 {
		opts.CleanupPacing = -1
	}
	r := New(opts)
	require.NoError(t, r.Initialize(cfg, "client-1"))
	return r
}

func TestStart_RequiresInitialize(t *testing.T) {
	r := New(Options{})
	require.ErrorIs(t, r.Start(context.Background()), ErrNotInitialized)
}

func TestRunner_Lifecycle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	rep := &capture{}
	m := metrics.New(prometheus.NewRegistry())
	r := newRunner(t, checkerYAML(srv.URL, ""), rep, Options{Metrics: m})

	done := make(chan error, 1)
	go func() { done <- r.Start(context.Background()) }()

	require.Eventually(t, func() bool { return rep.count("web.home(http)") >= 2 }, 5*time.Second, 5*time.Millisecond)

	st := r.Status()
	require.True(t, st.Running)
	require.Equal(t, "client-1", st.ClientID)
	require.Equal(t, 3, st.Probes)
	require.NotNil(t, st.LastCycleAt)

	// a second Start while running is refused
	require.ErrorIs(t, r.Start(context.Background()), ErrAlreadyRunning)

	r.Stop()
	require.NoError(t, <-done)
	require.NoError(t, r.Cleanup(context.Background()))

	labels := rep.list()
	require.Equal(t, "boot.up(http)=Success", labels[0], "app start reports first")
	require.Contains(t, labels, "bye.down(http)=Success")
	require.False(t, r.Status().Running)
	require.GreaterOrEqual(t, r.Status().Cycles, uint64(2))
	require.Equal(t, 0.0, testutil.ToFloat64(m.Running))
	require.GreaterOrEqual(t, testutil.ToFloat64(m.Cycles), 2.0)
}

func TestRunner_ClosedScheduleSkipsCycles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	// 2024-06-01 is a Saturday
	noon := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	rep := &capture{}
	r := newRunner(t, checkerYAML(srv.URL, "Saturday[01:00-02:00]"), rep, Options{
		Now: func() time.Time { return noon },
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Start(ctx) }()

	require.Eventually(t, func() bool { return r.Status().SkippedCycles >= 3 }, 5*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	require.NoError(t, r.Cleanup(context.Background()))

	require.Zero(t, rep.count("web.home(http)"))
	require.Zero(t, r.Status().Cycles)
}

func TestRunner_NoPeriodicProbesReturnsAfterStartAndShutdown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	rep := &capture{}
	r := newRunner(t, `
app_start:
  groups:
    - name: boot
      probes:
        - kind: http
          name: up
          uris: [`+srv.URL+`]
`, rep, Options{})

	require.NoError(t, r.Start(context.Background()))
	require.NoError(t, r.Cleanup(context.Background()))
	require.Equal(t, []string{"boot.up(http)=Success"}, rep.list())
}

func TestRunner_CleanupAbortsWhenContextDone(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	rep := &capture{}
	// the shutdown probe hangs; only the cleanup deadline ends it
	r := newRunner(t, `
app_shutdown:
  groups:
    - name: bye
      probes:
        - kind: http
          name: hang
          uris: [`+srv.URL+`]
          max_retries: 0
`, rep, Options{CleanupPacing: time.Millisecond})

	require.NoError(t, r.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := r.Cleanup(ctx)
	require.Error(t, err)
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestInitialize_RejectsBadSchedule(t *testing.T) {
	r := New(Options{})
	err := r.Initialize(&config.Checker{Schedule: "Funday[01:00-02:00]"}, "c")
	require.Error(t, err)
	require.ErrorIs(t, r.Start(context.Background()), ErrNotInitialized)
}

func TestIntervalDelay(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	r := New(Options{Now: func() time.Time { return now }})
	r.cfg = &config.Checker{Interval: time.Minute}

	require.Zero(t, r.intervalDelay(time.Time{}))
	require.Equal(t, 45*time.Second, r.intervalDelay(now.Add(-15*time.Second)))
	require.Zero(t, r.intervalDelay(now.Add(-2*time.Minute)))
}

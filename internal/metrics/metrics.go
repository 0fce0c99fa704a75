// Package metrics holds the agent's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hamed0406/uptimeagent/internal/domain"
)

const (
	Namespace = "uptimeagent"

	LabelLabel    = "label"
	LabelOutcome  = "outcome"
	LabelClientID = "client_id"
	LabelSink     = "sink"
	LabelStep     = "step"
)

// Metrics are the runner and dispatcher collectors. The zero value is not
// usable; build it with New.
type Metrics struct {
	Running        prometheus.Gauge
	Busy           prometheus.Gauge
	CyclesSkipped  prometheus.Counter
	Cycles         prometheus.Counter
	StepDuration   *prometheus.HistogramVec
	ProbeResults   *prometheus.CounterVec
	ReportFailures *prometheus.CounterVec
}

// New builds the collectors and registers them on reg when it is not nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "running",
			Help:      "1 while the runner loop is active",
		}),
		Busy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "busy",
			Help:      "1 while a periodic cycle is in progress",
		}),
		CyclesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "cycles_skipped_total",
			Help:      "Cycles skipped because the schedule was closed",
		}),
		Cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "cycles_total",
			Help:      "Periodic cycles started",
		}),
		StepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "step_duration_seconds",
			Help:      "Time spent running the probes of one step",
			Buckets:   prometheus.DefBuckets,
		}, []string{LabelStep}),
		ProbeResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "probe_results_total",
			Help:      "Probe results by label and outcome",
		}, []string{LabelLabel, LabelOutcome}),
		ReportFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "report_failures_total",
			Help:      "Failed report deliveries by sink",
		}, []string{LabelSink}),
	}
	if reg != nil {
		reg.MustRegister(
			m.Running,
			m.Busy,
			m.CyclesSkipped,
			m.Cycles,
			m.StepDuration,
			m.ProbeResults,
			m.ReportFailures,
		)
	}
	return m
}

func (m *Metrics) SetRunning(v bool) {
	if m != nil {
		m.Running.Set(boolValue(v))
	}
}

func (m *Metrics) SetBusy(v bool) {
	if m != nil {
		m.Busy.Set(boolValue(v))
	}
}

func (m *Metrics) CycleSkipped() {
	if m != nil {
		m.CyclesSkipped.Inc()
	}
}

func (m *Metrics) CycleStarted() {
	if m != nil {
		m.Cycles.Inc()
	}
}

func (m *Metrics) ObserveStep(step string, seconds float64) {
	if m != nil {
		m.StepDuration.WithLabelValues(step).Observe(seconds)
	}
}

func (m *Metrics) ObserveResult(label string, res domain.CheckResult) {
	if m != nil {
		m.ProbeResults.WithLabelValues(label, res.Outcome.String()).Inc()
	}
}

func (m *Metrics) ReportFailed(sink string) {
	if m != nil {
		m.ReportFailures.WithLabelValues(sink).Inc()
	}
}

func boolValue(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

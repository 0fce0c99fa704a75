package report

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hamed0406/uptimeagent/internal/config"
	"github.com/hamed0406/uptimeagent/internal/metrics"
)

// Metrics exports every reported result as Prometheus series: an
// availability gauge (1 up, 0 down) and a result counter per label.
type Metrics struct {
	name         string
	clientID     string
	availability *prometheus.GaugeVec
	results      *prometheus.CounterVec
}

func NewMetrics(name string, p config.MetricsParams, reg prometheus.Registerer, clientID string) (*Metrics, error) {
	constLabels := prometheus.Labels{metrics.LabelSink: name}
	for k, v := range p.Tags {
		constLabels[k] = v
	}

	availability := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   metrics.Namespace,
		Name:        "probe_available",
		Help:        "1 when the last reported result of the probe succeeded",
		ConstLabels: constLabels,
	}, []string{metrics.LabelLabel, metrics.LabelClientID})
	results := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   metrics.Namespace,
		Name:        "probe_reported_total",
		Help:        "Reported probe results by outcome",
		ConstLabels: constLabels,
	}, []string{metrics.LabelLabel, metrics.LabelClientID, metrics.LabelOutcome})

	if reg != nil {
		var err error
		if availability, err = register(reg, availability); err != nil {
			return nil, err
		}
		if results, err = register(reg, results); err != nil {
			return nil, err
		}
	}
	return &Metrics{name: name, clientID: clientID, availability: availability, results: results}, nil
}

// register returns the already registered collector when an identical one
// exists, so a reloaded configuration keeps its series.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *Metrics) Name() string { return m.name }

func (m *Metrics) Report(ctx context.Context, entries []Entry) error {
	for _, e := range entries {
		v := 0.0
		if e.Result.Succeeded() {
			v = 1
		}
		m.availability.WithLabelValues(e.Label, m.clientID).Set(v)
		m.results.WithLabelValues(e.Label, m.clientID, e.Result.Outcome.String()).Inc()
	}
	return nil
}

package report

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimeagent/internal/config"
	"github.com/hamed0406/uptimeagent/internal/domain"
	"github.com/hamed0406/uptimeagent/internal/metrics"
	"github.com/hamed0406/uptimeagent/internal/notify"
	"github.com/hamed0406/uptimeagent/internal/repo"
	"github.com/hamed0406/uptimeagent/internal/repo/memory"
	"github.com/hamed0406/uptimeagent/internal/transport"
)

// Deps are the collaborators sinks are built from. Nil stores fall back to
// in-memory ones.
type Deps struct {
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
	Registerer prometheus.Registerer
	Pool       *transport.Pool
	ClientID   string
	Results    repo.ResultStore
	Alerts     repo.AlertStore
}

// Build creates a Dispatcher with one sink per report configuration.
func Build(reports []config.Report, deps Deps) (*Dispatcher, error) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Pool == nil {
		deps.Pool = transport.NewPool(transport.DefaultLifetime)
	}
	if deps.Results == nil || deps.Alerts == nil {
		mem := memory.New()
		if deps.Results == nil {
			deps.Results = mem
		}
		if deps.Alerts == nil {
			deps.Alerts = mem
		}
	}

	d := NewDispatcher(deps.Logger, deps.Metrics)
	for _, rc := range reports {
		s, err := buildSink(rc, deps)
		if err != nil {
			return nil, fmt.Errorf("report %q: %w", rc.Name, err)
		}
		d.Add(s, rc.Groups, rc.Timeout)
	}
	return d, nil
}

func buildSink(rc config.Report, deps Deps) (Sink, error) {
	switch rc.Kind {
	case config.ReportWebhook:
		if rc.Webhook == nil {
			return nil, domain.MissingField("uris")
		}
		return NewWebhook(rc.Name, *rc.Webhook, deps.Pool, deps.ClientID)
	case config.ReportMetrics:
		if rc.Metrics == nil {
			rc.Metrics = &config.MetricsParams{}
		}
		return NewMetrics(rc.Name, *rc.Metrics, deps.Registerer, deps.ClientID)
	case config.ReportLog:
		if rc.Log == nil {
			rc.Log = &config.LogParams{}
		}
		return NewLog(rc.Name, *rc.Log, deps.Logger)
	case config.ReportStore:
		return NewStore(rc.Name, deps.Results, deps.ClientID), nil
	case config.ReportAlert:
		if rc.Alert == nil {
			rc.Alert = &config.AlertParams{AlertOnRecovery: true}
		}
		return NewAlert(rc.Name, *rc.Alert, deps.Alerts, notifierFor(*rc.Alert, deps)), nil
	default:
		return nil, fmt.Errorf("unknown report kind %q", rc.Kind)
	}
}

func notifierFor(p config.AlertParams, deps Deps) notify.Notifier {
	if p.SlackWebhookURL == "" {
		return notify.Log{Logger: deps.Logger}
	}
	client, _ := deps.Pool.Client("")
	return notify.NewSlack(p.SlackWebhookURL, client)
}

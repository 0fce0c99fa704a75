package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

type ReportKind string

const (
	ReportWebhook ReportKind = "webhook"
	ReportMetrics ReportKind = "metrics"
	ReportLog     ReportKind = "log"
	ReportStore   ReportKind = "store"
	ReportAlert   ReportKind = "alert"
)

// Report configures one sink. Groups defaults to ["*"].
type Report struct {
	Kind    ReportKind    `yaml:"kind"`
	Name    string        `yaml:"name"`
	Groups  []string      `yaml:"groups"`
	Timeout time.Duration `yaml:"timeout"`

	Webhook *WebhookParams `yaml:"-"`
	Metrics *MetricsParams `yaml:"-"`
	Log     *LogParams     `yaml:"-"`
	Alert   *AlertParams   `yaml:"-"`
}

type WebhookParams struct {
	URIs          []string          `yaml:"uris"`
	Headers       map[string]string `yaml:"headers"`
	MaxRetries    int               `yaml:"max_retries"`
	RetryDelay    time.Duration     `yaml:"retry_delay"`
	PerURITimeout time.Duration     `yaml:"per_uri_timeout"`
	ProxyURL      string            `yaml:"proxy_url"`
}

// MetricsParams adds static labels to every exported series.
type MetricsParams struct {
	Tags map[string]string `yaml:"tags"`
}

type LogParams struct {
	// Level logs successes at this level; failures are always logged at warn.
	Level string `yaml:"level"`
}

type AlertParams struct {
	SlackWebhookURL string        `yaml:"slack_webhook_url"`
	AlertOnRecovery bool          `yaml:"alert_on_recovery"`
	Cooldown        time.Duration `yaml:"cooldown"`
}

func (r *Report) UnmarshalYAML(value *yaml.Node) error {
	type plain Report
	var common plain
	if err := value.Decode(&common); err != nil {
		return err
	}
	*r = Report(common)

	var params any
	switch r.Kind {
	case ReportWebhook:
		r.Webhook = &WebhookParams{MaxRetries: 3, RetryDelay: 15 * time.Second, PerURITimeout: 90 * time.Second}
		params = r.Webhook
	case ReportMetrics:
		r.Metrics = &MetricsParams{}
		params = r.Metrics
	case ReportLog:
		r.Log = &LogParams{Level: "info"}
		params = r.Log
	case ReportStore:
		return nil
	case ReportAlert:
		r.Alert = &AlertParams{AlertOnRecovery: true, Cooldown: 10 * time.Minute}
		params = r.Alert
	default:
		return fmt.Errorf("line %d: report %q has unknown kind %q", value.Line, r.Name, r.Kind)
	}
	return value.Decode(params)
}

package config

import (
	"fmt"
	"net/url"

	"go.uber.org/multierr"

	"github.com/hamed0406/uptimeagent/internal/domain"
	"github.com/hamed0406/uptimeagent/internal/scheduler"
	"github.com/hamed0406/uptimeagent/internal/validation"
)

// Validate reports every structural problem of c at once.
func (c *Checker) Validate() error {
	var err error
	if _, serr := scheduler.New(c.Schedule, c.ScheduleUTC); serr != nil {
		err = multierr.Append(err, &domain.ConfigError{Field: "schedule", Reason: serr.Error()})
	}
	if c.RemoteConfigURL != "" {
		if _, uerr := url.ParseRequestURI(c.RemoteConfigURL); uerr != nil {
			err = multierr.Append(err, &domain.ConfigError{Field: "remote_config_url", Reason: uerr.Error()})
		}
	}

	err = multierr.Append(err, validateStep("app_start", c.AppStart))
	for i := range c.Periodic {
		err = multierr.Append(err, validateStep(fmt.Sprintf("periodic[%d]", i), &c.Periodic[i]))
	}
	err = multierr.Append(err, validateStep("app_shutdown", c.AppShutdown))

	names := map[string]bool{}
	for i, r := range c.Reports {
		field := fmt.Sprintf("reports[%d]", i)
		if r.Name == "" {
			err = multierr.Append(err, domain.MissingField(field+".name"))
		} else if names[r.Name] {
			err = multierr.Append(err, &domain.ConfigError{Field: field + ".name", Reason: fmt.Sprintf("duplicate report %q", r.Name)})
		}
		names[r.Name] = true
		if r.Webhook != nil && len(r.Webhook.URIs) == 0 {
			err = multierr.Append(err, domain.MissingField(field+".uris"))
		}
	}
	return err
}

func validateStep(path string, s *Step) error {
	if s == nil {
		return nil
	}
	var err error
	if s.MinDuration < 0 || s.MaxDuration < 0 {
		err = multierr.Append(err, &domain.ConfigError{Field: path, Reason: "durations must not be negative"})
	}
	if s.MaxDuration > 0 && s.MinDuration > s.MaxDuration {
		err = multierr.Append(err, &domain.ConfigError{Field: path, Reason: "min_duration exceeds max_duration"})
	}
	for gi, g := range s.Groups {
		gpath := fmt.Sprintf("%s.groups[%d]", path, gi)
		if g.Name == "" {
			err = multierr.Append(err, domain.MissingField(gpath+".name"))
		}
		for pi := range g.Probes {
			err = multierr.Append(err, validateProbe(fmt.Sprintf("%s.probes[%d]", gpath, pi), &g.Probes[pi]))
		}
	}
	err = multierr.Append(err, validateStep(path+".before", s.Before))
	err = multierr.Append(err, validateStep(path+".after", s.After))
	return err
}

// Capability returns the validation capability a probe of kind k runs.
func (k ProbeKind) Capability() validation.Capability {
	switch k {
	case KindHTTP:
		return validation.CapHTTP
	case KindRawSocket, KindTCP, KindUDP:
		return validation.CapText
	case KindExec:
		return validation.CapExit
	default:
		return validation.CapIP
	}
}

func validateProbe(path string, p *ProbeDef) error {
	var err error
	if p.Name == "" {
		err = multierr.Append(err, domain.MissingField(path+".name"))
	}
	if p.Kind == KindTLS && len(p.Validations) > 0 {
		err = multierr.Append(err, &domain.ConfigError{Field: path + ".validations", Reason: "tls probes take no validations"})
	}
	for i, v := range p.Validations {
		if !validation.Known(v.Kind) {
			err = multierr.Append(err, &domain.ConfigError{
				Field:  fmt.Sprintf("%s.validations[%d].kind", path, i),
				Reason: fmt.Sprintf("unknown validation kind %q", v.Kind),
			})
			continue
		}
		if !validation.Supports(v.Kind, p.Kind.Capability()) {
			err = multierr.Append(err, &domain.ConfigError{
				Field:  fmt.Sprintf("%s.validations[%d]", path, i),
				Reason: fmt.Sprintf("%q cannot validate %s probes", v.Kind, p.Kind),
			})
		}
	}
	if p.Socket != nil && p.Socket.Network != "tcp" && p.Socket.Network != "udp" {
		err = multierr.Append(err, &domain.ConfigError{Field: path + ".network", Reason: fmt.Sprintf("unsupported network %q", p.Socket.Network)})
	}
	if p.HTTP != nil && p.HTTP.ProxyURL != "" {
		u, perr := url.Parse(p.HTTP.ProxyURL)
		if perr != nil || (u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "socks5") {
			err = multierr.Append(err, &domain.ConfigError{Field: path + ".proxy_url", Reason: "scheme must be http, https or socks5"})
		}
	}
	return err
}

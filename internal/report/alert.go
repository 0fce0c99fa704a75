package report

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/hamed0406/uptimeagent/internal/config"
	"github.com/hamed0406/uptimeagent/internal/notify"
	"github.com/hamed0406/uptimeagent/internal/repo"
)

// Alert notifies when a label flips between up and down. The first result
// seen for a label only raises an alert when it is down.
type Alert struct {
	name     string
	alerts   repo.AlertStore
	notifier notify.Notifier
	params   config.AlertParams
	now      func() time.Time
}

func NewAlert(name string, p config.AlertParams, alerts repo.AlertStore, n notify.Notifier) *Alert {
	return &Alert{name: name, alerts: alerts, notifier: n, params: p, now: time.Now}
}

func (a *Alert) Name() string { return a.name }

func (a *Alert) Report(ctx context.Context, entries []Entry) error {
	now := a.now()
	var errs error

	for _, e := range entries {
		up := e.Result.Succeeded()
		rec, err := a.alerts.Get(ctx, e.Label)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}

		// Has the up/down state changed compared to what we last recorded?
		stateChanged := rec == nil || rec.LastState != up

		// Cooldown only matters for DOWN alerts (suppresses noisy repeats).
		cooled := true
		if rec != nil && rec.LastSentAt != nil {
			cooled = now.Sub(*rec.LastSentAt) >= a.params.Cooldown
		}

		downAlert := stateChanged && !up && cooled
		recoveryAlert := stateChanged && up && rec != nil && a.params.AlertOnRecovery // bypass cooldown

		if downAlert || recoveryAlert {
			title := "🔴 Target DOWN"
			if up {
				title = "🟢 Target RECOVERED"
			}
			checked := e.At
			if checked.IsZero() {
				checked = now
			}
			text := fmt.Sprintf(
				"Probe: %s\nOutcome: %s\nReason: %s\nChecked: %s",
				e.Label, e.Result.Outcome, e.Result.Description, checked.UTC().Format(time.RFC3339),
			)

			if err := a.notifier.Send(ctx, title, text); err != nil {
				// keep the old state so the next cycle tries again
				errs = multierr.Append(errs, err)
				continue
			}
			errs = multierr.Append(errs, a.alerts.Set(ctx, e.Label, up, now))
			continue
		}

		// If state changed but we did not send (e.g., DOWN within cooldown or
		// recovery alerts disabled), still record the new state without a send time.
		if stateChanged {
			errs = multierr.Append(errs, a.alerts.Set(ctx, e.Label, up, time.Time{}))
		}
	}
	return errs
}

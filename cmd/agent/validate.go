package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimeagent/internal/clientid"
	"github.com/hamed0406/uptimeagent/internal/config"
	"github.com/hamed0406/uptimeagent/internal/report"
	"github.com/hamed0406/uptimeagent/internal/repo/memory"
	"github.com/hamed0406/uptimeagent/internal/runner"
	"github.com/hamed0406/uptimeagent/internal/transport"
)

// validate builds every probe and sink of the configuration against
// in-memory stores and a throwaway registry.
func validate(cmd *cobra.Command, opts *options) error {
	cfg := config.FromEnv()
	opts.apply(cmd.Flags(), &cfg)
	log := zap.NewNop()

	pool := transport.NewPool(transport.DefaultLifetime)
	defer pool.Close()

	checker, err := loadChecker(context.Background(), cfg.CheckerConfig, pool, opts.noRemote, log)
	if err != nil {
		return err
	}

	store := memory.New()
	r := runner.New(runner.Options{
		Logger:  log,
		Pool:    pool,
		Reports: report.Deps{Registerer: prometheus.NewRegistry(), Results: store, Alerts: store},
	})
	if err := r.Initialize(checker, clientid.Resolve(cfg.ClientID, cfg.IncludeUser)); err != nil {
		return err
	}

	st := r.Status()
	fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d probes, %d periodic steps, %d reports, schedule %q, interval %s)\n",
		cfg.CheckerConfig, st.Probes, len(checker.Periodic), len(checker.Reports), st.Schedule, st.Interval)
	return nil
}

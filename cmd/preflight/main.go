// cmd/preflight/main.go
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hamed0406/uptimeagent/internal/config"
	"github.com/hamed0406/uptimeagent/internal/instance"
	"github.com/hamed0406/uptimeagent/internal/logging"
	"github.com/hamed0406/uptimeagent/internal/report"
	"github.com/hamed0406/uptimeagent/internal/repo/memory"
	"github.com/hamed0406/uptimeagent/internal/runner"
)

func main() {
	var strict bool
	cmd := &cobra.Command{
		Use:          "preflight",
		Short:        "Checks the environment and the checker configuration before deploying the agent",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := &preflight{out: cmd.OutOrStdout(), errOut: cmd.ErrOrStderr(), strict: strict}
			p.run(config.FromEnv())
			if p.failed {
				return fmt.Errorf("preflight failed")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "Treat missing API keys as failures")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type preflight struct {
	out, errOut io.Writer
	strict      bool
	failed      bool
}

func (p *preflight) fail(msg string) {
	fmt.Fprintln(p.errOut, "✖", msg)
	p.failed = true
}
func (p *preflight) warn(msg string) { fmt.Fprintln(p.errOut, "⚠", msg) }
func (p *preflight) ok(msg string)   { fmt.Fprintln(p.out, "✔", msg) }

func (p *preflight) run(cfg config.Config) {
	admin := strings.TrimSpace(os.Getenv("ADMIN_API_KEYS"))
	pub := strings.TrimSpace(os.Getenv("PUBLIC_API_KEYS"))

	missing := p.warn
	if p.strict {
		missing = p.fail
	}
	if cfg.Addr == "" {
		p.ok("status API disabled")
	} else {
		p.ok("API_ADDR=" + cfg.Addr)
		if admin == "" {
			missing("ADMIN_API_KEYS is empty (POST /api/stop is open to anyone).")
		}
		if pub == "" && admin == "" {
			missing("PUBLIC_API_KEYS is empty (read routes are open).")
		}
	}

	// Normalize and sanity-check lists (no spaces around commas).
	for name, v := range map[string]string{"ADMIN_API_KEYS": admin, "PUBLIC_API_KEYS": pub} {
		if strings.Contains(v, " ") {
			p.warn(name + " contains spaces; use comma-separated with no spaces, e.g. key1,key2")
		}
	}

	if cfg.DatabaseURL == "" {
		p.warn("DATABASE_URL empty; results and alert state are kept in memory only.")
	} else {
		p.ok("DATABASE_URL present")
	}

	if len(cfg.AllowedOrigins) == 0 {
		p.warn("ALLOWED_ORIGINS empty; the status API accepts any origin.")
	} else {
		p.ok("ALLOWED_ORIGINS=" + strings.Join(cfg.AllowedOrigins, ","))
	}

	if _, err := zapcore.ParseLevel(cfg.LogLevel); err != nil {
		p.fail("LOG_LEVEL: " + err.Error())
	}
	if log, err := logging.NewLogger(logging.Options{Dir: cfg.LogDir, Level: "error"}); err != nil {
		p.fail("LOG_DIR is not writable: " + err.Error())
	} else {
		_ = log.Sync()
		p.ok("LOG_DIR=" + cfg.LogDir)
	}

	if lock, err := instance.Acquire("", cfg.AppGUID); err != nil {
		p.warn("single-instance lock: " + err.Error())
	} else {
		_ = lock.Release()
		p.ok("single-instance lock free for " + cfg.AppGUID)
	}

	p.checkConfig(cfg)
	if !p.failed {
		p.ok("preflight passed")
	}
}

// checkConfig builds every probe and sink of the checker file.
func (p *preflight) checkConfig(cfg config.Config) {
	checker, err := config.Load(cfg.CheckerConfig)
	if err != nil {
		p.fail(err.Error())
		return
	}
	if checker.RemoteConfigURL != "" {
		p.warn("remote_config_url is set; the agent will replace this file with " + checker.RemoteConfigURL)
	}

	store := memory.New()
	r := runner.New(runner.Options{
		Logger:  zap.NewNop(),
		Reports: report.Deps{Registerer: prometheus.NewRegistry(), Results: store, Alerts: store},
	})
	defer r.Pool().Close()
	if err := r.Initialize(checker, "preflight"); err != nil {
		p.fail("checker config: " + err.Error())
		return
	}
	st := r.Status()
	if st.Probes == 0 {
		p.warn(cfg.CheckerConfig + " defines no probes")
	}
	if len(checker.Reports) == 0 {
		p.warn(cfg.CheckerConfig + " defines no reports; results are only logged")
	}
	p.ok(fmt.Sprintf("%s: %d probes, schedule %q", cfg.CheckerConfig, st.Probes, st.Schedule))
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/hamed0406/uptimeagent/internal/config"
	"github.com/hamed0406/uptimeagent/internal/sysinfo"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// options are the command line overrides of the environment config.
type options struct {
	checkerConfig string
	clientID      string
	addr          string
	logDir        string
	logLevel      string
	includeUser   bool
	noRemote      bool
}

func (o *options) bind(fs *pflag.FlagSet) {
	fs.StringVarP(&o.checkerConfig, "config", "c", "", "Path of the checker YAML (env CHECKER_CONFIG)")
	fs.StringVar(&o.clientID, "client-id", "", "Client id reported with every result (env CHECKER_CLIENT_ID)")
	fs.StringVar(&o.addr, "addr", "", "Status API bind address, empty string disables it (env API_ADDR)")
	fs.StringVar(&o.logDir, "log-dir", "", "Log directory (env LOG_DIR)")
	fs.StringVar(&o.logLevel, "log-level", "", "Log level: debug, info, warn, error (env LOG_LEVEL)")
	fs.BoolVar(&o.includeUser, "include-user", false, "Prefix derived client ids with user@host. (env CHECKER_INCLUDE_USER)")
	fs.BoolVar(&o.noRemote, "no-remote", false, "Ignore remote_config_url")
}

// apply overlays the flags that were set on the environment config.
func (o *options) apply(fs *pflag.FlagSet, cfg *config.Config) {
	if fs.Changed("config") {
		cfg.CheckerConfig = o.checkerConfig
	}
	if fs.Changed("client-id") {
		cfg.ClientID = o.clientID
	}
	if fs.Changed("addr") {
		cfg.Addr = o.addr
	}
	if fs.Changed("log-dir") {
		cfg.LogDir = o.logDir
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if fs.Changed("include-user") {
		cfg.IncludeUser = o.includeUser
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "uptimeagent",
		Short: "Runs configured availability probes and reports the results",
		Long: `uptimeagent runs the probes of a checker configuration once at start,
periodically inside the configured schedule, and once at shutdown. Results are
sent to the configured report sinks. Press Ctrl+C once to stop and clean up,
twice to abort the cleanup.`,
		Version:      sysinfo.Version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(cmd, opts)
		},
	}
	opts.bind(cmd.PersistentFlags())

	cmd.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run the agent until interrupted (default)",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runAgent(cmd, opts)
			},
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Load the configuration and build every probe and sink without running them",
			RunE: func(cmd *cobra.Command, args []string) error {
				return validate(cmd, opts)
			},
		},
	)
	return cmd
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimeagent/internal/clientid"
	"github.com/hamed0406/uptimeagent/internal/config"
	"github.com/hamed0406/uptimeagent/internal/httpapi"
	apimw "github.com/hamed0406/uptimeagent/internal/httpapi/middleware"
	"github.com/hamed0406/uptimeagent/internal/instance"
	"github.com/hamed0406/uptimeagent/internal/logging"
	"github.com/hamed0406/uptimeagent/internal/metrics"
	"github.com/hamed0406/uptimeagent/internal/repo"
	"github.com/hamed0406/uptimeagent/internal/repo/memory"
	"github.com/hamed0406/uptimeagent/internal/repo/postgres"
	"github.com/hamed0406/uptimeagent/internal/report"
	"github.com/hamed0406/uptimeagent/internal/runner"
	"github.com/hamed0406/uptimeagent/internal/sysinfo"
	"github.com/hamed0406/uptimeagent/internal/transport"
)

type stores interface {
	repo.ResultStore
	repo.AlertStore
}

func runAgent(cmd *cobra.Command, opts *options) error {
	cfg := config.FromEnv()
	opts.apply(cmd.Flags(), &cfg)

	logger, err := logging.NewLogger(logging.Options{Dir: cfg.LogDir, Level: cfg.LogLevel, Console: cfg.LogConsole})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	lock, err := instance.Acquire("", cfg.AppGUID)
	if err != nil {
		logger.Error("instance_lock_failed", zap.String("guid", cfg.AppGUID), zap.Error(err))
		return err
	}
	defer lock.Release()

	sysinfo.Dump(logger)

	clientID := clientid.Resolve(cfg.ClientID, cfg.IncludeUser)
	logger.Info("client_id", zap.String("client_id", clientID))

	// first signal stops the runner, the second aborts cleanup
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()
	cleanupCtx, abortCleanup := context.WithCancel(context.Background())
	defer abortCleanup()

	pool := transport.NewPool(transport.DefaultLifetime)
	checker, err := loadChecker(runCtx, cfg.CheckerConfig, pool, opts.noRemote, logger)
	if err != nil {
		pool.Close()
		logger.Error("config_invalid", zap.Error(err))
		return err
	}

	store, closeStore, err := openStore(runCtx, cfg.DatabaseURL, logger)
	if err != nil {
		pool.Close()
		return err
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := runner.New(runner.Options{
		Logger:  logger,
		Metrics: metrics.New(reg),
		Pool:    pool,
		Reports: report.Deps{Registerer: reg, Results: store, Alerts: store},
	})
	if err := r.Initialize(checker, clientID); err != nil {
		pool.Close()
		logger.Error("runner_initialize_failed", zap.Error(err))
		return err
	}

	var api *http.Server
	if cfg.Addr != "" {
		srv := httpapi.NewServer(logger, r, store, reg)
		srv.Origins = cfg.AllowedOrigins
		keys := apimw.Keys{Public: cfg.PublicAPIKeys, Admin: cfg.AdminAPIKeys}
		api = &http.Server{
			Addr:              cfg.Addr,
			Handler:           srv.Router(keys, cfg.PublicRPM, cfg.PublicBurst),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("api_listen", zap.String("addr", cfg.Addr))
			if err := api.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("api_listen_failed", zap.Error(err))
			}
		}()
	}

	go func() {
		first := true
		for range sigs {
			if first {
				first = false
				logger.Info("end_requested", zap.String("hint", "press Ctrl+C again to cancel cleanup"))
				r.Stop()
				stopRun()
				continue
			}
			logger.Warn("cleanup_abort_requested")
			abortCleanup()
		}
	}()

	logger.Info("agent_started", zap.String("version", sysinfo.Version))
	if err := r.Start(runCtx); err != nil {
		logger.Error("runner_start_failed", zap.Error(err))
	}

	logger.Info("cleanup_started")
	ctx, cancel := context.WithTimeout(cleanupCtx, cfg.CleanupTimeout)
	defer cancel()
	cleanupErr := r.Cleanup(ctx)
	if errors.Is(cleanupErr, context.Canceled) || errors.Is(cleanupErr, context.DeadlineExceeded) {
		logger.Warn("cleanup_interrupted", zap.Error(cleanupErr))
	}

	if api != nil {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		_ = api.Shutdown(sctx)
	}
	logger.Info("agent_terminated")
	return nil
}

// openStore picks postgres when dsn is set, else the in-memory store.
func openStore(ctx context.Context, dsn string, log *zap.Logger) (stores, func(), error) {
	if dsn == "" {
		log.Info("store_memory")
		return memory.New(), func() {}, nil
	}
	pg, err := postgres.New(ctx, dsn, log)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		pg.Close()
		return nil, nil, fmt.Errorf("postgres schema: %w", err)
	}
	log.Info("store_postgres")
	return pg, pg.Close, nil
}

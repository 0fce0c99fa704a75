package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimeagent/internal/config"
	"github.com/hamed0406/uptimeagent/internal/transport"
)

const remoteConfigTimeout = 30 * time.Second

// loadChecker reads the checker file and, when it names a remote document,
// replaces it with the remote one. A failed fetch keeps the local document.
func loadChecker(ctx context.Context, path string, pool *transport.Pool, noRemote bool, log *zap.Logger) (*config.Checker, error) {
	log.Info("config_loading", zap.String("path", path))
	c, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if c.RemoteConfigURL == "" || noRemote {
		return c, nil
	}

	log.Info("config_remote_fetch", zap.String("url", c.RemoteConfigURL))
	client, err := pool.Client("")
	if err != nil {
		return nil, fmt.Errorf("remote config client: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, remoteConfigTimeout)
	defer cancel()
	remote, err := config.FetchRemote(ctx, client, c.RemoteConfigURL)
	if err != nil {
		log.Warn("config_remote_failed", zap.String("url", c.RemoteConfigURL), zap.Error(err))
		return c, nil
	}
	return remote, nil
}

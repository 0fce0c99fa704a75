package report

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hamed0406/uptimeagent/internal/config"
)

// Log writes one structured line per result. Failures always go out at warn.
type Log struct {
	name   string
	logger *zap.Logger
	level  zapcore.Level
}

func NewLog(name string, p config.LogParams, logger *zap.Logger) (*Log, error) {
	level := zapcore.InfoLevel
	if p.Level != "" {
		l, err := zapcore.ParseLevel(p.Level)
		if err != nil {
			return nil, fmt.Errorf("log report level: %w", err)
		}
		level = l
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{name: name, logger: logger.Named("report"), level: level}, nil
}

func (l *Log) Name() string { return l.name }

func (l *Log) Report(ctx context.Context, entries []Entry) error {
	for _, e := range entries {
		level := l.level
		if !e.Result.Succeeded() {
			level = zapcore.WarnLevel
		}
		if ce := l.logger.Check(level, "probe_result"); ce != nil {
			fields := []zap.Field{
				zap.String("label", e.Label),
				zap.String("outcome", e.Result.Outcome.String()),
				zap.String("description", e.Result.Description),
			}
			for _, k := range e.Result.Tags.Keys() {
				fields = append(fields, zap.String("tag."+k, e.Result.Tags[k]))
			}
			ce.Write(fields...)
		}
	}
	return nil
}

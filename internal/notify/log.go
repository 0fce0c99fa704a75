package notify

import (
	"context"

	"go.uber.org/zap"
)

// Log writes notifications to the agent log. It is the fallback when no
// chat webhook is configured.
type Log struct {
	Logger *zap.Logger
}

func (l Log) Send(ctx context.Context, title, text string) error {
	if l.Logger != nil {
		l.Logger.Warn("alert", zap.String("title", title), zap.String("text", text))
	}
	return nil
}

package repo

import (
	"context"

	"github.com/hamed0406/uptimeagent/internal/domain"
)

// ResultStore keeps reported results. Latest returns the newest record per
// label.
type ResultStore interface {
	Append(ctx context.Context, r *domain.ResultRecord) error
	Latest(ctx context.Context) ([]domain.ResultRecord, error)
	// LastByLabel returns nil, nil when the label has no results yet.
	LastByLabel(ctx context.Context, label string) (*domain.ResultRecord, error)
}

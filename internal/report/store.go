package report

import (
	"context"
	"time"

	"go.uber.org/multierr"

	"github.com/hamed0406/uptimeagent/internal/domain"
	"github.com/hamed0406/uptimeagent/internal/repo"
)

// Store persists every result through a repo.ResultStore.
type Store struct {
	name     string
	results  repo.ResultStore
	clientID string
}

func NewStore(name string, results repo.ResultStore, clientID string) *Store {
	return &Store{name: name, results: results, clientID: clientID}
}

func (s *Store) Name() string { return s.name }

func (s *Store) Report(ctx context.Context, entries []Entry) error {
	var errs error
	for _, e := range entries {
		at := e.At
		if at.IsZero() {
			at = time.Now()
		}
		r := domain.NewRecord(e.Label, s.clientID, e.Result, at)
		errs = multierr.Append(errs, s.results.Append(ctx, &r))
	}
	return errs
}

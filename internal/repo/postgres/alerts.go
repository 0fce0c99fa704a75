package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hamed0406/uptimeagent/internal/repo"
)

func (s *Store) Get(ctx context.Context, label string) (*repo.AlertRecord, error) {
	const q = `SELECT last_state, last_sent_at FROM alerts WHERE label=$1`
	var r repo.AlertRecord
	r.Label = label
	var lastSent *time.Time
	err := s.pool.QueryRow(ctx, q, label).Scan(&r.LastState, &lastSent)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	r.LastSentAt = lastSent
	return &r, nil
}

func (s *Store) Set(ctx context.Context, label string, lastState bool, sentAt time.Time) error {
	const q = `
		INSERT INTO alerts (label, last_state, last_sent_at)
		VALUES ($1,$2,$3)
		ON CONFLICT (label)
		DO UPDATE SET last_state=EXCLUDED.last_state, last_sent_at=EXCLUDED.last_sent_at
	`
	var ts *time.Time
	if !sentAt.IsZero() {
		ts = &sentAt
	}
	_, err := s.pool.Exec(ctx, q, label, lastState, ts)
	return err
}

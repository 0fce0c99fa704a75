package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimeagent/internal/domain"
	"github.com/hamed0406/uptimeagent/internal/repo"
)

var _ repo.ResultStore = (*Store)(nil)
var _ repo.AlertStore = (*Store)(nil)

// Schema creates the tables the store needs. It is safe to apply repeatedly.
const Schema = `
CREATE TABLE IF NOT EXISTS results (
  id          BIGSERIAL PRIMARY KEY,
  label       TEXT NOT NULL,
  client_id   TEXT NOT NULL,
  outcome     TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  tags        JSONB NOT NULL DEFAULT '{}'::jsonb,
  checked_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_results_label_time ON results (label, checked_at DESC);

CREATE TABLE IF NOT EXISTS alerts (
  label        TEXT PRIMARY KEY,
  last_state   BOOLEAN NOT NULL,
  last_sent_at TIMESTAMPTZ NULL
);
`

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{pool: pool, log: log}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema applies Schema.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	s.log.Debug("postgres_schema_ready")
	return nil
}

// ---- ResultStore ----

func (s *Store) Append(ctx context.Context, r *domain.ResultRecord) error {
	if r.CheckedAt.IsZero() {
		r.CheckedAt = time.Now().UTC()
	}
	tags := r.Tags
	if tags == nil {
		tags = domain.Tags{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO results
		   (label, client_id, outcome, description, tags, checked_at)
		 VALUES
		   ($1, $2, $3, $4, $5, $6)`,
		r.Label, r.ClientID, r.Outcome.String(), r.Description, tags, r.CheckedAt,
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

const selectColumns = `label, client_id, outcome, description, tags, checked_at`

func (s *Store) Latest(ctx context.Context) ([]domain.ResultRecord, error) {
	rows, err := s.pool.Query(ctx, `
SELECT DISTINCT ON (label) `+selectColumns+`
  FROM results
 ORDER BY label, checked_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("latest: %w", err)
	}
	defer rows.Close()

	var out []domain.ResultRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan latest: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) LastByLabel(ctx context.Context, label string) (*domain.ResultRecord, error) {
	row := s.pool.QueryRow(ctx, `
SELECT `+selectColumns+`
  FROM results
 WHERE label = $1
 ORDER BY checked_at DESC
 LIMIT 1`, label)
	r, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // no results yet
		}
		return nil, fmt.Errorf("last by label: %w", err)
	}
	return &r, nil
}

func scanRecord(row pgx.Row) (domain.ResultRecord, error) {
	var (
		r       domain.ResultRecord
		outcome string
	)
	if err := row.Scan(&r.Label, &r.ClientID, &outcome, &r.Description, &r.Tags, &r.CheckedAt); err != nil {
		return r, err
	}
	if err := r.Outcome.UnmarshalText([]byte(outcome)); err != nil {
		return r, err
	}
	return r, nil
}

package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hamed0406/uptimeagent/internal/domain"
	"github.com/hamed0406/uptimeagent/internal/repo"
)

// DefaultHistory is how many results per label the store keeps.
const DefaultHistory = 64

type Store struct {
	mu      sync.RWMutex
	history int
	results map[string][]*domain.ResultRecord
	alerts  map[string]repo.AlertRecord
}

func New() *Store {
	return NewWithHistory(DefaultHistory)
}

func NewWithHistory(n int) *Store {
	if n < 1 {
		n = 1
	}
	return &Store{
		history: n,
		results: make(map[string][]*domain.ResultRecord),
		alerts:  make(map[string]repo.AlertRecord),
	}
}

// ---- ResultStore ----

func (m *Store) Append(ctx context.Context, r *domain.ResultRecord) error {
	if r.CheckedAt.IsZero() {
		r.CheckedAt = time.Now().UTC()
	}
	cp := *r
	cp.Tags = r.Tags.Clone()

	m.mu.Lock()
	defer m.mu.Unlock()
	rs := append(m.results[r.Label], &cp)
	if len(rs) > m.history {
		rs = rs[len(rs)-m.history:]
	}
	m.results[r.Label] = rs
	return nil
}

func (m *Store) Latest(ctx context.Context) ([]domain.ResultRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.ResultRecord, 0, len(m.results))
	for _, rs := range m.results {
		if r := newest(rs); r != nil {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out, nil
}

func (m *Store) LastByLabel(ctx context.Context, label string) (*domain.ResultRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r := newest(m.results[label])
	if r == nil {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func newest(rs []*domain.ResultRecord) *domain.ResultRecord {
	var latest *domain.ResultRecord
	for _, r := range rs {
		if latest == nil || !r.CheckedAt.Before(latest.CheckedAt) {
			latest = r
		}
	}
	return latest
}

// ---- AlertStore ----

func (m *Store) Get(ctx context.Context, label string) (*repo.AlertRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.alerts[label]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *Store) Set(ctx context.Context, label string, lastState bool, sentAt time.Time) error {
	rec := repo.AlertRecord{Label: label, LastState: lastState}
	if !sentAt.IsZero() {
		ts := sentAt
		rec.LastSentAt = &ts
	}
	m.mu.Lock()
	m.alerts[label] = rec
	m.mu.Unlock()
	return nil
}

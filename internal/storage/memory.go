package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

func init() {
	Register("memory", func(ctx context.Context, cfg Config) (Repository, error) {
		return NewMemory(), nil
	})
}

// Memory is the in-process Repository used in tests and in deployments
// that run without a database. Data does not survive a restart.
type Memory struct {
	mu      sync.RWMutex
	audits  []AuditEntry
	reports []Report
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Close() {}

func (m *Memory) EnsureSchema(ctx context.Context) error { return nil }

func (m *Memory) InsertAudit(ctx context.Context, e AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	m.mu.Lock()
	m.audits = append(m.audits, e)
	m.mu.Unlock()
	return nil
}

func (m *Memory) ListAudits(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultAuditLimit
	}

	m.mu.RLock()
	out := make([]AuditEntry, 0, len(m.audits))
	for _, e := range m.audits {
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		if f.ResourceType != "" && e.ResourceType != f.ResourceType {
			continue
		}
		out = append(out, e)
	}
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) InsertReport(ctx context.Context, r Report) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	m.mu.Lock()
	m.reports = append(m.reports, r)
	m.mu.Unlock()
	return nil
}

func (m *Memory) GetReport(ctx context.Context, id string) (*Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := range m.reports {
		if m.reports[i].ID == id {
			r := m.reports[i]
			return &r, nil
		}
	}
	return nil, nil
}

func (m *Memory) ListReports(ctx context.Context, limit int) ([]Report, error) {
	if limit <= 0 {
		limit = DefaultReportLimit
	}
	m.mu.RLock()
	out := make([]Report, len(m.reports))
	copy(out, m.reports)
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

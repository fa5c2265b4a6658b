// Package storage defines the backend-agnostic persistence interface for
// audit events and saved analysis reports, plus the backend registry.
//
// Backends live in subpackages (sqlite, postgres, mssql, plus the
// in-process memory backend here) and register themselves from init().
// Importing a backend package is what makes its kind available; the
// service binary imports the ones it ships.
package storage

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Config selects and parameterizes a backend.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is
//     backend-specific. The memory backend ignores it.
type Config struct {
	Kind string
	DSN  string
}

// AuditEntry is one recorded user or system action.
type AuditEntry struct {
	ID           string         `json:"id"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
	IPAddress    string         `json:"ip_address,omitempty"`
	UserAgent    string         `json:"user_agent,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// AuditFilter narrows ListAudits. Zero values mean no restriction;
// Limit <= 0 means the backend default (100).
type AuditFilter struct {
	Action       string
	ResourceType string
	Limit        int
}

// Report is one persisted analysis result.
type Report struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Domain      string    `json:"domain"`
	Filename    string    `json:"filename"`
	RowCount    int       `json:"row_count"`
	ColumnCount int       `json:"column_count"`
	Summary     string    `json:"summary,omitempty"`
	ChartsJSON  string    `json:"charts_json,omitempty"`
	StatsJSON   string    `json:"stats_json,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Repository is the backend-agnostic persistence interface.
//
// IMPORTANT: the interface is intentionally minimal and focused on what
// the service needs. Each backend implements the semantics in its own
// idiomatic way (Postgres ON CONFLICT, SQLite OR IGNORE, etc).
type Repository interface {
	// Close releases backend resources. Treat as "call once" at
	// process shutdown.
	Close()

	// EnsureSchema creates tables as needed. Idempotent; called once
	// at startup.
	EnsureSchema(ctx context.Context) error

	// InsertAudit persists one audit entry.
	InsertAudit(ctx context.Context, e AuditEntry) error

	// ListAudits returns entries matching the filter, newest first.
	ListAudits(ctx context.Context, f AuditFilter) ([]AuditEntry, error)

	// InsertReport persists one analysis report.
	InsertReport(ctx context.Context, r Report) error

	// GetReport returns the report with the given id, or nil when
	// absent.
	GetReport(ctx context.Context, id string) (*Report, error)

	// ListReports returns the most recent reports, newest first.
	// limit <= 0 means the backend default (20).
	ListReports(ctx context.Context, limit int) ([]Report, error)
}

// DefaultAuditLimit bounds ListAudits when the filter leaves Limit unset.
const DefaultAuditLimit = 100

// DefaultReportLimit bounds ListReports when limit is unset.
const DefaultReportLimit = 20

type factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend under a kind (e.g. "postgres", "sqlite").
//
// Call from an init() function in a backend package. Registering an
// empty kind, a nil factory, or the same kind twice panics; failing
// fast beats ambiguous backend selection.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// New constructs a Repository using the registered backend factory.
//
// Errors:
//   - cfg.Kind empty or not registered.
//   - Whatever error the registered factory returns.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

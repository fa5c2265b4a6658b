// Package postgres implements storage.Repository on PostgreSQL via a
// pgx connection pool.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"insight/internal/storage"
)

// Repo implements storage.Repository for Postgres. Audit details are
// stored in a JSONB column; timestamps use TIMESTAMPTZ.
type Repo struct {
	pool *pgxpool.Pool
}

func init() {
	storage.Register("postgres", New)
}

// New creates a pool for cfg.DSN and pings it.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Repo{pool: pool}, nil
}

// Close closes the connection pool.
func (r *Repo) Close() { r.pool.Close() }

func (r *Repo) EnsureSchema(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS audit_logs (
			id UUID PRIMARY KEY,
			action TEXT NOT NULL,
			resource_type TEXT NOT NULL,
			resource_id TEXT,
			details JSONB,
			ip_address TEXT,
			user_agent TEXT,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS reports (
			id UUID PRIMARY KEY,
			title TEXT NOT NULL,
			domain TEXT NOT NULL,
			filename TEXT NOT NULL,
			row_count BIGINT NOT NULL,
			column_count BIGINT NOT NULL,
			summary TEXT,
			charts_json TEXT,
			stats_json TEXT,
			created_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, q := range ddl {
		if _, err := r.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (r *Repo) InsertAudit(ctx context.Context, e storage.AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	var details []byte
	if e.Details != nil {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("marshal audit details: %w", err)
		}
		details = b
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO audit_logs (id, action, resource_type, resource_id, details, ip_address, user_agent, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.Action, e.ResourceType, nullable(e.ResourceID), details,
		nullable(e.IPAddress), nullable(e.UserAgent), e.CreatedAt)
	return err
}

func (r *Repo) ListAudits(ctx context.Context, f storage.AuditFilter) ([]storage.AuditEntry, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = storage.DefaultAuditLimit
	}

	q := `SELECT id, action, resource_type, resource_id, details, ip_address, user_agent, created_at
	      FROM audit_logs WHERE 1=1`
	var args []any
	if f.Action != "" {
		args = append(args, f.Action)
		q += fmt.Sprintf(" AND action = $%d", len(args))
	}
	if f.ResourceType != "" {
		args = append(args, f.ResourceType)
		q += fmt.Sprintf(" AND resource_type = $%d", len(args))
	}
	args = append(args, limit)
	q += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.AuditEntry
	for rows.Next() {
		var e storage.AuditEntry
		var resourceID, ip, ua *string
		var details []byte
		if err := rows.Scan(&e.ID, &e.Action, &e.ResourceType, &resourceID, &details, &ip, &ua, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ResourceID = deref(resourceID)
		e.IPAddress = deref(ip)
		e.UserAgent = deref(ua)
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("unmarshal audit details: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Repo) InsertReport(ctx context.Context, rep storage.Report) error {
	if rep.ID == "" {
		rep.ID = uuid.NewString()
	}
	if rep.CreatedAt.IsZero() {
		rep.CreatedAt = time.Now()
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO reports (id, title, domain, filename, row_count, column_count, summary, charts_json, stats_json, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rep.ID, rep.Title, rep.Domain, rep.Filename, rep.RowCount, rep.ColumnCount,
		nullable(rep.Summary), nullable(rep.ChartsJSON), nullable(rep.StatsJSON), rep.CreatedAt)
	return err
}

func (r *Repo) GetReport(ctx context.Context, id string) (*storage.Report, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, title, domain, filename, row_count, column_count, summary, charts_json, stats_json, created_at
		 FROM reports WHERE id = $1`, id)
	rep, err := scanReport(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return rep, err
}

func (r *Repo) ListReports(ctx context.Context, limit int) ([]storage.Report, error) {
	if limit <= 0 {
		limit = storage.DefaultReportLimit
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, domain, filename, row_count, column_count, summary, charts_json, stats_json, created_at
		 FROM reports ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.Report
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rep)
	}
	return out, rows.Err()
}

func scanReport(row pgx.Row) (*storage.Report, error) {
	var rep storage.Report
	var summary, charts, stats *string
	if err := row.Scan(&rep.ID, &rep.Title, &rep.Domain, &rep.Filename, &rep.RowCount,
		&rep.ColumnCount, &summary, &charts, &stats, &rep.CreatedAt); err != nil {
		return nil, err
	}
	rep.Summary = deref(summary)
	rep.ChartsJSON = deref(charts)
	rep.StatsJSON = deref(stats)
	return &rep, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

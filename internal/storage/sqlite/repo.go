// Package sqlite implements storage.Repository on SQLite via the
// modernc.org driver (pure Go, no cgo).
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"insight/internal/storage"
)

// Repo implements storage.Repository for SQLite.
//
// SQLite has no native timestamp type; timestamps are stored as
// RFC3339Nano strings for reliable round-trip behavior and easy
// debugging. Audit details are stored as a JSON text column.
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", New)
}

// New opens the database at cfg.DSN and pings it.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

// EnsureSchema creates the audit and report tables if they do not exist.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS audit_logs (
			id TEXT PRIMARY KEY,
			action TEXT NOT NULL,
			resource_type TEXT NOT NULL,
			resource_id TEXT,
			details TEXT,
			ip_address TEXT,
			user_agent TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS reports (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			domain TEXT NOT NULL,
			filename TEXT NOT NULL,
			row_count INTEGER NOT NULL,
			column_count INTEGER NOT NULL,
			summary TEXT,
			charts_json TEXT,
			stats_json TEXT,
			created_at TEXT NOT NULL
		)`,
	}
	for _, q := range ddl {
		if _, err := r.db.ExecContext(ctx, q); err != nil {
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

	details := ""
	if e.Details != nil {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("marshal audit details: %w", err)
		}
		details = string(b)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, action, resource_type, resource_id, details, ip_address, user_agent, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Action, e.ResourceType, e.ResourceID, details, e.IPAddress, e.UserAgent,
		e.CreatedAt.Format(time.RFC3339Nano))
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
		q += " AND action = ?"
		args = append(args, f.Action)
	}
	if f.ResourceType != "" {
		q += " AND resource_type = ?"
		args = append(args, f.ResourceType)
	}
	q += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.AuditEntry
	for rows.Next() {
		var e storage.AuditEntry
		var details, created sql.NullString
		var resourceID, ip, ua sql.NullString
		if err := rows.Scan(&e.ID, &e.Action, &e.ResourceType, &resourceID, &details, &ip, &ua, &created); err != nil {
			return nil, err
		}
		e.ResourceID = resourceID.String
		e.IPAddress = ip.String
		e.UserAgent = ua.String
		if details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &e.Details); err != nil {
				return nil, fmt.Errorf("unmarshal audit details: %w", err)
			}
		}
		if created.Valid {
			if t, err := time.Parse(time.RFC3339Nano, created.String); err == nil {
				e.CreatedAt = t
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
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO reports (id, title, domain, filename, row_count, column_count, summary, charts_json, stats_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rep.ID, rep.Title, rep.Domain, rep.Filename, rep.RowCount, rep.ColumnCount,
		rep.Summary, rep.ChartsJSON, rep.StatsJSON, rep.CreatedAt.Format(time.RFC3339Nano))
	return err
}

func (r *Repo) GetReport(ctx context.Context, id string) (*storage.Report, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, title, domain, filename, row_count, column_count, summary, charts_json, stats_json, created_at
		 FROM reports WHERE id = ?`, id)
	rep, err := scanReport(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rep, err
}

func (r *Repo) ListReports(ctx context.Context, limit int) ([]storage.Report, error) {
	if limit <= 0 {
		limit = storage.DefaultReportLimit
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, title, domain, filename, row_count, column_count, summary, charts_json, stats_json, created_at
		 FROM reports ORDER BY created_at DESC LIMIT ?`, limit)
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

type scanner interface {
	Scan(dest ...any) error
}

func scanReport(s scanner) (*storage.Report, error) {
	var rep storage.Report
	var summary, charts, stats, created sql.NullString
	if err := s.Scan(&rep.ID, &rep.Title, &rep.Domain, &rep.Filename, &rep.RowCount,
		&rep.ColumnCount, &summary, &charts, &stats, &created); err != nil {
		return nil, err
	}
	rep.Summary = summary.String
	rep.ChartsJSON = charts.String
	rep.StatsJSON = stats.String
	if created.Valid {
		if t, err := time.Parse(time.RFC3339Nano, created.String); err == nil {
			rep.CreatedAt = t
		}
	}
	return &rep, nil
}

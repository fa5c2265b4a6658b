// Package mssql implements storage.Repository on SQL Server via the
// microsoft/go-mssqldb driver and database/sql.
package mssql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/microsoft/go-mssqldb"

	"insight/internal/storage"
)

// Repo implements storage.Repository for SQL Server. Audit details are
// stored as NVARCHAR(MAX) JSON text; timestamps use DATETIMEOFFSET.
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("mssql", New)
}

// New opens the database at cfg.DSN and pings it.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
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

// EnsureSchema creates the audit and report tables if they do not
// exist. SQL Server has no CREATE TABLE IF NOT EXISTS; the guard is an
// OBJECT_ID check.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	ddl := []string{
		`IF OBJECT_ID('audit_logs', 'U') IS NULL
		CREATE TABLE audit_logs (
			id NVARCHAR(36) PRIMARY KEY,
			action NVARCHAR(64) NOT NULL,
			resource_type NVARCHAR(64) NOT NULL,
			resource_id NVARCHAR(255),
			details NVARCHAR(MAX),
			ip_address NVARCHAR(64),
			user_agent NVARCHAR(512),
			created_at DATETIMEOFFSET NOT NULL
		)`,
		`IF OBJECT_ID('reports', 'U') IS NULL
		CREATE TABLE reports (
			id NVARCHAR(36) PRIMARY KEY,
			title NVARCHAR(255) NOT NULL,
			domain NVARCHAR(64) NOT NULL,
			filename NVARCHAR(255) NOT NULL,
			row_count BIGINT NOT NULL,
			column_count BIGINT NOT NULL,
			summary NVARCHAR(MAX),
			charts_json NVARCHAR(MAX),
			stats_json NVARCHAR(MAX),
			created_at DATETIMEOFFSET NOT NULL
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
		 VALUES (@p1, @p2, @p3, @p4, @p5, @p6, @p7, @p8)`,
		e.ID, e.Action, e.ResourceType, e.ResourceID, details, e.IPAddress, e.UserAgent, e.CreatedAt)
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
		q += fmt.Sprintf(" AND action = @p%d", len(args))
	}
	if f.ResourceType != "" {
		args = append(args, f.ResourceType)
		q += fmt.Sprintf(" AND resource_type = @p%d", len(args))
	}
	args = append(args, limit)
	q += fmt.Sprintf(" ORDER BY created_at DESC OFFSET 0 ROWS FETCH NEXT @p%d ROWS ONLY", len(args))

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.AuditEntry
	for rows.Next() {
		var e storage.AuditEntry
		var resourceID, details, ip, ua sql.NullString
		if err := rows.Scan(&e.ID, &e.Action, &e.ResourceType, &resourceID, &details, &ip, &ua, &e.CreatedAt); err != nil {
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
		 VALUES (@p1, @p2, @p3, @p4, @p5, @p6, @p7, @p8, @p9, @p10)`,
		rep.ID, rep.Title, rep.Domain, rep.Filename, rep.RowCount, rep.ColumnCount,
		rep.Summary, rep.ChartsJSON, rep.StatsJSON, rep.CreatedAt)
	return err
}

func (r *Repo) GetReport(ctx context.Context, id string) (*storage.Report, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, title, domain, filename, row_count, column_count, summary, charts_json, stats_json, created_at
		 FROM reports WHERE id = @p1`, id)
	rep, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
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
		 FROM reports ORDER BY created_at DESC OFFSET 0 ROWS FETCH NEXT @p1 ROWS ONLY`, limit)
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
	var summary, charts, stats sql.NullString
	if err := s.Scan(&rep.ID, &rep.Title, &rep.Domain, &rep.Filename, &rep.RowCount,
		&rep.ColumnCount, &summary, &charts, &stats, &rep.CreatedAt); err != nil {
		return nil, err
	}
	rep.Summary = summary.String
	rep.ChartsJSON = charts.String
	rep.StatsJSON = stats.String
	return &rep, nil
}

// Package audit records user and system actions for compliance review.
//
// The logger is best-effort by contract: a storage failure is logged
// and swallowed, never surfaced to the request that triggered the
// action. Auditing must not be able to fail an analysis.
package audit

import (
	"context"
	"time"

	"insight/internal/storage"
)

// Action types.
const (
	ActionUpload  = "upload"
	ActionAnalyze = "analyze"
	ActionChat    = "chat"
	ActionExport  = "export"
)

// Resource types.
const (
	ResourceFile    = "file"
	ResourceReport  = "report"
	ResourceSession = "session"
)

// Logger is the minimal logging interface for audit failures.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// Auditor writes audit entries through a storage.Repository.
type Auditor struct {
	repo   storage.Repository
	logger Logger

	// now is a test seam.
	now func() time.Time
}

// New creates an Auditor. A nil repo yields an Auditor whose methods
// are no-ops, so callers never need to branch on whether auditing is
// configured.
func New(repo storage.Repository, logger Logger) *Auditor {
	return &Auditor{repo: repo, logger: logger, now: time.Now}
}

// Log records one entry. Failures are reported to the logger and
// dropped.
func (a *Auditor) Log(ctx context.Context, action, resourceType string, details map[string]any) {
	a.log(ctx, storage.AuditEntry{
		Action:       action,
		ResourceType: resourceType,
		Details:      details,
	})
}

// LogUpload records a file upload.
func (a *Auditor) LogUpload(ctx context.Context, filename string, sizeBytes int) {
	a.log(ctx, storage.AuditEntry{
		Action:       ActionUpload,
		ResourceType: ResourceFile,
		Details: map[string]any{
			"filename":   filename,
			"size_bytes": sizeBytes,
		},
	})
}

// LogAnalysis records a completed analysis.
func (a *Auditor) LogAnalysis(ctx context.Context, filename, domain string, rowCount int) {
	a.log(ctx, storage.AuditEntry{
		Action:       ActionAnalyze,
		ResourceType: ResourceReport,
		Details: map[string]any{
			"filename":  filename,
			"domain":    domain,
			"row_count": rowCount,
		},
	})
}

// LogChat records a chat exchange against a stored session.
func (a *Auditor) LogChat(ctx context.Context, sessionID string) {
	a.log(ctx, storage.AuditEntry{
		Action:       ActionChat,
		ResourceType: ResourceSession,
		ResourceID:   sessionID,
	})
}

func (a *Auditor) log(ctx context.Context, e storage.AuditEntry) {
	if a == nil || a.repo == nil {
		return
	}
	e.CreatedAt = a.now()
	if err := a.repo.InsertAudit(ctx, e); err != nil {
		if a.logger != nil {
			a.logger.Printf("audit insert failed action=%s: %v", e.Action, err)
		}
	}
}

package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"insight/internal/storage"
)

type failingRepo struct {
	storage.Repository
}

func (failingRepo) InsertAudit(ctx context.Context, e storage.AuditEntry) error {
	return errors.New("db down")
}

type captureLogger struct{ lines []string }

func (c *captureLogger) Printf(format string, v ...any) {
	c.lines = append(c.lines, fmt.Sprintf(format, v...))
}

func TestAuditorLogsEntries(t *testing.T) {
	t.Parallel()

	repo := storage.NewMemory()
	a := New(repo, nil)
	a.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	a.LogUpload(ctx, "data.csv", 1234)
	a.LogAnalysis(ctx, "data.csv", "hr", 42)
	a.LogChat(ctx, "sess-1")
	a.Log(ctx, ActionExport, ResourceReport, map[string]any{"format": "csv"})

	entries, err := repo.ListAudits(ctx, storage.AuditFilter{})
	if err != nil {
		t.Fatalf("ListAudits: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("entries=%d, want 4", len(entries))
	}

	byAction := map[string]storage.AuditEntry{}
	for _, e := range entries {
		byAction[e.Action] = e
	}

	up := byAction[ActionUpload]
	if up.ResourceType != ResourceFile || up.Details["filename"] != "data.csv" || up.Details["size_bytes"] != 1234 {
		t.Fatalf("upload entry=%+v", up)
	}
	an := byAction[ActionAnalyze]
	if an.ResourceType != ResourceReport || an.Details["domain"] != "hr" || an.Details["row_count"] != 42 {
		t.Fatalf("analyze entry=%+v", an)
	}
	ch := byAction[ActionChat]
	if ch.ResourceType != ResourceSession || ch.ResourceID != "sess-1" {
		t.Fatalf("chat entry=%+v", ch)
	}
	if up.CreatedAt.IsZero() {
		t.Fatalf("created_at not stamped")
	}
}

// TestAuditorNilRepoNoop verifies auditing can be left unconfigured
// without branching at call sites.
func TestAuditorNilRepoNoop(t *testing.T) {
	t.Parallel()

	log := &captureLogger{}
	a := New(nil, log)
	a.LogUpload(context.Background(), "data.csv", 1)
	a.LogChat(context.Background(), "s")
	if len(log.lines) != 0 {
		t.Fatalf("nil-repo auditor logged: %v", log.lines)
	}

	// A nil Auditor is equally safe.
	var nilA *Auditor
	nilA.LogUpload(context.Background(), "data.csv", 1)
}

// TestAuditorSwallowsStorageErrors verifies a failing repository is
// reported to the logger and never propagated.
func TestAuditorSwallowsStorageErrors(t *testing.T) {
	t.Parallel()

	log := &captureLogger{}
	a := New(failingRepo{}, log)
	a.LogUpload(context.Background(), "data.csv", 1)

	if len(log.lines) != 1 {
		t.Fatalf("log lines=%v, want 1 failure line", log.lines)
	}
	if !strings.Contains(log.lines[0], "audit insert failed") || !strings.Contains(log.lines[0], "db down") {
		t.Fatalf("log line=%q", log.lines[0])
	}
}

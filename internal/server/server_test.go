package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"insight/internal/audit"
	"insight/internal/blueprint"
	"insight/internal/dataset"
	"insight/internal/session"
	"insight/internal/storage"
)

const mockBlueprintReply = `{
	"domain": "HR",
	"primary_grain": "employee_name",
	"numeric_columns": ["salary"],
	"categorical_columns": ["department"],
	"recommended_charts": [
		{"title": "Salary by Dept", "chart_type": "bar", "x_axis_col": "department", "y_axis_col": "salary", "reasoning": "salary spread"}
	],
	"summary_insight": "Salaries vary by department."
}`

const hrCSV = "Employee Name,Department,Salary,Hire Date\n" +
	"Alice,Engineering,100,2024-01-01\n" +
	"Bob,Sales,50,2024-02-01\n" +
	"Cara,Engineering,200,2024-03-01\n"

type failingProvider struct{}

func (failingProvider) Name() string { return "failing" }
func (failingProvider) Chat(ctx context.Context, prompt string) (string, error) {
	return "", errors.New("provider down")
}

type testEnv struct {
	store   *session.Store
	repo    *storage.Memory
	handler http.Handler
}

func newTestEnv(t *testing.T, provider blueprint.Provider) *testEnv {
	t.Helper()
	store := session.NewStore(time.Minute)
	t.Cleanup(store.Close)
	repo := storage.NewMemory()

	srv := New(Options{
		Sessions: store,
		Provider: provider,
		Auditor:  audit.New(repo, nil),
		Repo:     repo,
	})
	return &testEnv{store: store, repo: repo, handler: srv.Handler()}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, filename, contents string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write([]byte(contents)); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/analyze", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, blueprint.Mock{})
	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", rec.Code)
	}

	var body map[string]any
	decodeJSON(t, rec, &body)
	if body["status"] != "online" || body["engine"] != "insight" {
		t.Fatalf("body=%v", body)
	}
	if body["sessions_active"] != 0.0 {
		t.Fatalf("sessions_active=%v, want 0", body["sessions_active"])
	}
}

func TestAnalyze(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, blueprint.Mock{Reply: mockBlueprintReply})
	rec := env.do(t, uploadRequest(t, "people.csv", hrCSV))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Success   bool   `json:"success"`
		SessionID string `json:"session_id"`
		Filename  string `json:"filename"`
		Domain    string `json:"domain"`
		Stats     struct {
			RowCount    int `json:"rowCount"`
			ColumnCount int `json:"columnCount"`
		} `json:"stats"`
		CleaningLog []string `json:"cleaning_log"`
		Charts      []struct {
			Type string           `json:"type"`
			Data []map[string]any `json:"data"`
		} `json:"charts"`
		Statistics struct {
			RowCount  int                        `json:"row_count"`
			Summaries map[string]json.RawMessage `json:"numeric_summaries"`
		} `json:"statistics"`
		Forecast *struct {
			Metric string `json:"metric"`
		} `json:"forecast"`
		Narrative struct {
			Title   string   `json:"title"`
			Summary []string `json:"summary"`
		} `json:"ai_narrative"`
	}
	decodeJSON(t, rec, &resp)

	if !resp.Success || resp.SessionID == "" {
		t.Fatalf("resp=%+v", resp)
	}
	if resp.Domain != "hr" {
		t.Fatalf("domain=%q, want hr", resp.Domain)
	}
	if resp.Stats.RowCount != 3 || resp.Stats.ColumnCount != 4 {
		t.Fatalf("stats=%+v", resp.Stats)
	}
	if len(resp.CleaningLog) == 0 {
		t.Fatalf("cleaning log empty")
	}

	if len(resp.Charts) != 1 || resp.Charts[0].Type != "bar" {
		t.Fatalf("charts=%+v", resp.Charts)
	}
	if len(resp.Charts[0].Data) != 2 {
		t.Fatalf("chart data=%v, want 2 department groups", resp.Charts[0].Data)
	}

	if resp.Statistics.RowCount != 3 {
		t.Fatalf("statistics=%+v", resp.Statistics)
	}
	if _, ok := resp.Statistics.Summaries["salary"]; !ok {
		t.Fatalf("summaries=%v, want salary", resp.Statistics.Summaries)
	}

	if resp.Forecast == nil || resp.Forecast.Metric != "salary" {
		t.Fatalf("forecast=%+v, want salary metric", resp.Forecast)
	}

	if resp.Narrative.Title != "Executive Summary (MOCK)" {
		t.Fatalf("narrative=%+v", resp.Narrative)
	}

	// Session is retrievable afterward.
	if _, ok := env.store.Get(resp.SessionID); !ok {
		t.Fatalf("session %q not stored", resp.SessionID)
	}

	// Audit trail and saved report.
	audits, err := env.repo.ListAudits(context.Background(), storage.AuditFilter{})
	if err != nil || len(audits) != 2 {
		t.Fatalf("audits=%v err=%v, want upload+analyze", audits, err)
	}
	reports, err := env.repo.ListReports(context.Background(), 0)
	if err != nil || len(reports) != 1 {
		t.Fatalf("reports=%v err=%v", reports, err)
	}
	if reports[0].Filename != "people.csv" || reports[0].RowCount != 3 {
		t.Fatalf("report=%+v", reports[0])
	}
}

// TestAnalyzeProviderFailure verifies a dead provider degrades to the
// fallback blueprint instead of failing the request.
func TestAnalyzeProviderFailure(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, failingProvider{})
	rec := env.do(t, uploadRequest(t, "people.csv", hrCSV))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Success   bool `json:"success"`
		Blueprint struct {
			Domain  string `json:"domain"`
			Insight string `json:"summary_insight"`
		} `json:"blueprint"`
		Charts    []any `json:"charts"`
		Narrative struct {
			Title string `json:"title"`
		} `json:"ai_narrative"`
	}
	decodeJSON(t, rec, &resp)
	if !resp.Success {
		t.Fatalf("resp=%+v", resp)
	}
	if resp.Blueprint.Domain != "General" || resp.Blueprint.Insight != "AI analysis failed. Using raw data view." {
		t.Fatalf("blueprint=%+v, want fallback", resp.Blueprint)
	}
	if len(resp.Charts) != 0 {
		t.Fatalf("charts=%v, want none", resp.Charts)
	}
	if resp.Narrative.Title != "General Analysis" {
		t.Fatalf("narrative title=%q", resp.Narrative.Title)
	}
}

func TestAnalyzeUnsupportedFormat(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, blueprint.Mock{})
	rec := env.do(t, uploadRequest(t, "notes.txt", "hello"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", rec.Code)
	}
	var body map[string]string
	decodeJSON(t, rec, &body)
	if body["detail"] != "Unsupported file format" {
		t.Fatalf("detail=%q", body["detail"])
	}
}

func TestAnalyzeMissingFile(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, blueprint.Mock{})
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("other", "x")
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/analyze", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := env.do(t, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", rec.Code)
	}
}

func seedSession(env *testEnv, rows int) string {
	ds := &dataset.Dataset{Columns: []string{"name", "salary"}}
	for i := 0; i < rows; i++ {
		ds.Rows = append(ds.Rows, dataset.Row{
			"name":   dataset.Text("p"),
			"salary": dataset.Number(float64(100 + i)),
		})
	}
	return env.store.Put("seed.csv", ds, dataset.Classification{
		Numeric:     []string{"salary"},
		Categorical: []string{"name"},
	})
}

func TestDataPagination(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, blueprint.Mock{})
	id := seedSession(env, 25)

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/data?session_id="+id+"&page=2&limit=10", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}

	var body struct {
		Page      int              `json:"page"`
		Limit     int              `json:"limit"`
		TotalRows int              `json:"total_rows"`
		Data      []map[string]any `json:"data"`
	}
	decodeJSON(t, rec, &body)
	if body.Page != 2 || body.Limit != 10 || body.TotalRows != 25 {
		t.Fatalf("body=%+v", body)
	}
	if len(body.Data) != 10 {
		t.Fatalf("rows=%d, want 10", len(body.Data))
	}
	if body.Data[0]["salary"] != 110.0 {
		t.Fatalf("first row=%v, want salary 110", body.Data[0])
	}

	// Past the end: empty page, not an error.
	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/data?session_id="+id+"&page=9&limit=10", nil))
	decodeJSON(t, rec, &body)
	if len(body.Data) != 0 {
		t.Fatalf("past-end rows=%d, want 0", len(body.Data))
	}

	// Bad paging values fall back to defaults.
	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/data?session_id="+id+"&page=-1&limit=abc", nil))
	decodeJSON(t, rec, &body)
	if body.Page != 1 || body.Limit != 100 {
		t.Fatalf("fallback paging=%+v", body)
	}
}

func TestDataSessionErrors(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, blueprint.Mock{})

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/data", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing id status=%d, want 400", rec.Code)
	}

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/data?session_id=ghost", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown id status=%d, want 404", rec.Code)
	}
	var body map[string]string
	decodeJSON(t, rec, &body)
	if body["detail"] != "Session expired or not found." {
		t.Fatalf("detail=%q", body["detail"])
	}
}

func chatRequestBody(t *testing.T, sessionID, message string) *http.Request {
	t.Helper()
	b, _ := json.Marshal(map[string]string{"session_id": sessionID, "message": message})
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestChat(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, blueprint.Mock{})
	id := seedSession(env, 5)

	rec := env.do(t, chatRequestBody(t, id, "what is the average salary?"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}

	var body map[string]string
	decodeJSON(t, rec, &body)
	if !strings.HasPrefix(body["response"], "Mock Chat:") {
		t.Fatalf("response=%q", body["response"])
	}

	// Chat is audited against the session.
	audits, err := env.repo.ListAudits(context.Background(), storage.AuditFilter{Action: audit.ActionChat})
	if err != nil || len(audits) != 1 || audits[0].ResourceID != id {
		t.Fatalf("chat audits=%v err=%v", audits, err)
	}
}

func TestChatErrors(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, blueprint.Mock{})
	id := seedSession(env, 5)

	rec := env.do(t, chatRequestBody(t, id, "   "))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty message status=%d, want 400", rec.Code)
	}

	rec = env.do(t, chatRequestBody(t, "ghost", "hi"))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown session status=%d, want 404", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader("not json"))
	rec = env.do(t, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad body status=%d, want 400", rec.Code)
	}
}

func TestChatProviderFailure(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, failingProvider{})
	id := seedSession(env, 5)

	rec := env.do(t, chatRequestBody(t, id, "hi"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d, want 500", rec.Code)
	}
	var body map[string]string
	decodeJSON(t, rec, &body)
	if body["detail"] != "AI processing failed." {
		t.Fatalf("detail=%q", body["detail"])
	}
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, blueprint.Mock{})
	rec := env.do(t, httptest.NewRequest(http.MethodOptions, "/analyze", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status=%d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS header")
	}
}

func TestStatsText(t *testing.T) {
	t.Parallel()

	ds := &dataset.Dataset{
		Columns: []string{"salary"},
		Rows: []dataset.Row{
			{"salary": dataset.Number(100)},
			{"salary": dataset.Number(200)},
		},
	}
	sess := &session.Session{
		Data:  ds,
		Class: dataset.Classification{Numeric: []string{"salary"}},
	}

	text := statsText(sess)
	if !strings.Contains(text, "rows: 2, columns: 1") {
		t.Fatalf("stats text=%q", text)
	}
	if !strings.Contains(text, "salary: mean=150.00") {
		t.Fatalf("stats text=%q", text)
	}
}

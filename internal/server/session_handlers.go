package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"insight/internal/analyze"
	"insight/internal/blueprint"
	"insight/internal/session"
)

// handleData pages through a stored session's rows.
func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r.URL.Query().Get("session_id"))
	if !ok {
		return
	}

	page := queryInt(r, "page", 1)
	if page < 1 {
		page = 1
	}
	limit := queryInt(r, "limit", s.pageLimit)
	if limit < 1 {
		limit = s.pageLimit
	}

	total := sess.Data.RowCount()
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	rows := make([]map[string]any, 0, end-start)
	for _, row := range sess.Data.Rows[start:end] {
		m := make(map[string]any, len(sess.Data.Columns))
		for _, c := range sess.Data.Columns {
			m[c] = row[c]
		}
		rows = append(rows, m)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"page":       page,
		"limit":      limit,
		"total_rows": total,
		"data":       rows,
	})
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// handleChat answers a question about a stored session. The provider
// sees column names and summary statistics, never raw rows.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid chat request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		httpError(w, http.StatusBadRequest, "message is required")
		return
	}

	sess, ok := s.lookupSession(w, req.SessionID)
	if !ok {
		return
	}

	prompt := blueprint.ChatPrompt(sess.Data.Columns, statsText(sess), req.Message)

	s.logf("chat session=%s", req.SessionID)
	reply, err := s.provider.Chat(r.Context(), prompt)
	if err != nil {
		s.logf("chat provider failed session=%s: %v", req.SessionID, err)
		httpError(w, http.StatusInternalServerError, "AI processing failed.")
		return
	}

	s.auditor.LogChat(r.Context(), req.SessionID)
	writeJSON(w, http.StatusOK, map[string]string{"response": reply})
}

// lookupSession resolves a session id or writes the 404 the UI expects.
func (s *Server) lookupSession(w http.ResponseWriter, id string) (*session.Session, bool) {
	if id == "" {
		httpError(w, http.StatusBadRequest, "session_id is required")
		return nil, false
	}
	sess, ok := s.sessions.Get(id)
	if !ok {
		httpError(w, http.StatusNotFound, "Session expired or not found.")
		return nil, false
	}
	return sess, true
}

// statsText renders per-column summaries as the plain-text block the
// chat prompt embeds.
func statsText(sess *session.Session) string {
	report := analyze.Analyze(sess.Data, sess.Class)

	cols := make([]string, 0, len(report.Summaries))
	for c := range report.Summaries {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	var b strings.Builder
	fmt.Fprintf(&b, "rows: %d, columns: %d\n", report.RowCount, report.ColumnCount)
	for _, c := range cols {
		sum := report.Summaries[c]
		fmt.Fprintf(&b, "%s: mean=%.2f std=%.2f min=%.2f max=%.2f median=%.2f\n",
			c, sum.Mean, sum.Std, sum.Min, sum.Max, sum.Median)
	}
	return b.String()
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"insight/internal/analyze"
	"insight/internal/blueprint"
	"insight/internal/chart"
	"insight/internal/dataset"
	"insight/internal/domain"
	"insight/internal/ingest"
	"insight/internal/metrics"
	"insight/internal/normalize"
	"insight/internal/storage"
)

// maxUploadBytes bounds the multipart upload size (50 MiB).
const maxUploadBytes = 50 << 20

// analysisResponse is the /analyze payload. Field names match what the
// UI consumes.
type analysisResponse struct {
	Success     bool                   `json:"success"`
	SessionID   string                 `json:"session_id"`
	Filename    string                 `json:"filename"`
	Domain      string                 `json:"domain"`
	Stats       statsBlock             `json:"stats"`
	Data        []map[string]any       `json:"data"`
	CleaningLog []string               `json:"cleaning_log"`
	Narrative   narrativeBlock         `json:"ai_narrative"`
	Blueprint   *blueprint.Blueprint   `json:"blueprint"`
	Charts      []chart.Result         `json:"charts"`
	Statistics  *analyze.Report        `json:"statistics"`
	Forecast    *analyze.Forecast      `json:"forecast,omitempty"`
	Class       dataset.Classification `json:"classification"`
}

type statsBlock struct {
	RowCount        int      `json:"rowCount"`
	ColumnCount     int      `json:"columnCount"`
	NumericColumns  []string `json:"numericColumns"`
	CategoryColumns []string `json:"categoryColumns"`
}

type narrativeBlock struct {
	Title   string   `json:"title"`
	Summary []string `json:"summary"`
}

// handleAnalyze runs the full pipeline on an uploaded file.
//
// Failure taxonomy: unsupported format and unreadable bytes are 400,
// an empty dataset after cleaning is 422, everything else is 500. A
// failed blueprint or forecast degrades the response, never fails it.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		httpError(w, http.StatusBadRequest, "invalid multipart upload")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httpError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		httpError(w, http.StatusBadRequest, "unreadable file")
		return
	}

	s.logf("analyze start file=%q size=%d", header.Filename, len(raw))
	s.auditor.LogUpload(ctx, header.Filename, len(raw))

	ds, err := ingest.Read(raw, header.Filename)
	if err != nil {
		if errors.Is(err, ingest.ErrUnsupportedFormat) {
			httpError(w, http.StatusBadRequest, "Unsupported file format")
			return
		}
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}

	domainLabel := domain.Classify(ds.Columns)
	res, err := normalize.Normalize(ds, normalize.Options{
		Filename: header.Filename,
		Domain:   domainLabel,
	})
	if err != nil {
		httpError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	bp := s.buildBlueprint(r, res.Data, header.Filename)

	// Statistics and charts read the normalized table independently;
	// neither mutates it.
	var (
		wg       sync.WaitGroup
		report   *analyze.Report
		forecast *analyze.Forecast
		charts   []chart.Result
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		report = analyze.Analyze(res.Data, res.Classification)
		forecast = analyze.BuildForecast(res.Data, res.Classification, analyze.DefaultHorizon)
	}()
	go func() {
		defer wg.Done()
		charts = chart.BuildAll(res.Data, bp.Charts, s.logger)
	}()
	wg.Wait()

	sessionID := s.sessions.Put(header.Filename, res.Data, res.Classification)

	narrative := s.buildNarrative(r, header.Filename, bp, report, res.Classification)

	resp := analysisResponse{
		Success:   true,
		SessionID: sessionID,
		Filename:  header.Filename,
		Domain:    domainLabel,
		Stats: statsBlock{
			RowCount:        res.Data.RowCount(),
			ColumnCount:     res.Data.ColumnCount(),
			NumericColumns:  res.Classification.Numeric,
			CategoryColumns: res.Classification.Categorical,
		},
		Data:        previewRows(res.Data, s.previewRows),
		CleaningLog: res.Log,
		Narrative:   narrative,
		Blueprint:   bp,
		Charts:      charts,
		Statistics:  report,
		Forecast:    forecast,
		Class:       res.Classification,
	}

	s.auditor.LogAnalysis(ctx, header.Filename, domainLabel, res.Data.RowCount())
	s.saveReport(ctx, header.Filename, domainLabel, resp)

	s.metrics.IncCounter(metrics.MetricAnalysesTotal, 1, metrics.Labels{"domain": domainLabel})
	s.metrics.IncCounter(metrics.MetricRowsTotal, float64(res.Data.RowCount()), nil)
	for _, c := range charts {
		s.metrics.IncCounter(metrics.MetricChartsTotal, 1, metrics.Labels{"type": c.Type})
	}
	s.metrics.ObserveHistogram(metrics.MetricAnalyzeDuration, time.Since(start).Seconds(), nil)

	s.logf("analyze done file=%q domain=%s rows=%d charts=%d duration=%s",
		header.Filename, domainLabel, res.Data.RowCount(), len(charts), time.Since(start).Round(time.Millisecond))

	writeJSON(w, http.StatusOK, resp)
}

// buildBlueprint asks the provider for an analysis plan and substitutes
// the fallback on any failure.
func (s *Server) buildBlueprint(r *http.Request, ds *dataset.Dataset, filename string) *blueprint.Blueprint {
	prompt := blueprint.StructurePrompt(ds, filename, 5)
	reply, err := s.provider.Chat(r.Context(), prompt)
	if err != nil {
		s.logf("blueprint provider failed: %v", err)
		return blueprint.Fallback()
	}
	bp, err := blueprint.Parse(reply)
	if err != nil {
		s.logf("blueprint parse failed: %v", err)
		return blueprint.Fallback()
	}
	return bp
}

// buildNarrative produces the executive-summary block. Provider failure
// degrades to the blueprint's own summary insight.
func (s *Server) buildNarrative(r *http.Request, filename string, bp *blueprint.Blueprint, report *analyze.Report, cls dataset.Classification) narrativeBlock {
	numeric := cls.Numeric
	if len(numeric) > 5 {
		numeric = numeric[:5]
	}
	prompt := strings.Join([]string{
		"You are a Senior Data Analyst.",
		"CONTEXT:",
		"- Domain: " + bp.Domain,
		"- File: " + filename,
		"- Rows: " + strconv.Itoa(report.RowCount),
		"- Key Columns: " + strings.Join(numeric, ", "),
		"",
		"TASK:",
		"Write exactly 3 distinct, professional bullet points summarizing this dataset.",
		"Focus on potential insights based on the column names.",
		"Return ONLY the 3 bullets, nothing else.",
	}, "\n")

	text, err := s.provider.Chat(r.Context(), prompt)
	if err != nil || strings.TrimSpace(text) == "" {
		return narrativeBlock{
			Title:   bp.Domain + " Analysis",
			Summary: []string{bp.Insight},
		}
	}
	return narrativeBlock{
		Title:   blueprint.NarrativeTitle(s.provider),
		Summary: blueprint.Bullets(text),
	}
}

// saveReport persists the analysis when a repository is configured.
// Best-effort: failures are logged and dropped.
func (s *Server) saveReport(ctx context.Context, filename, domainLabel string, resp analysisResponse) {
	if s.repo == nil {
		return
	}

	chartsJSON, _ := json.Marshal(resp.Charts)
	statsJSON, _ := json.Marshal(resp.Statistics)

	err := s.repo.InsertReport(ctx, storage.Report{
		Title:       filename,
		Domain:      domainLabel,
		Filename:    filename,
		RowCount:    resp.Stats.RowCount,
		ColumnCount: resp.Stats.ColumnCount,
		Summary:     strings.Join(resp.Narrative.Summary, "\n"),
		ChartsJSON:  string(chartsJSON),
		StatsJSON:   string(statsJSON),
	})
	if err != nil {
		s.logf("report insert failed file=%q: %v", filename, err)
	}
}

// previewRows renders the first n rows as display maps in column order.
func previewRows(ds *dataset.Dataset, n int) []map[string]any {
	out := make([]map[string]any, 0, n)
	for i, row := range ds.Rows {
		if i == n {
			break
		}
		m := make(map[string]any, len(ds.Columns))
		for _, c := range ds.Columns {
			m[c] = row[c]
		}
		out = append(out, m)
	}
	return out
}

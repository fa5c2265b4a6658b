// Package ingest parses raw file bytes into a dataset.Dataset.
//
// The ingestor is responsible for:
//   - Selecting a parser by filename extension (.csv, .xls, .xlsx)
//   - Locating the true header row in spreadsheets (skipping banner rows)
//   - Dropping merged-cell artifact columns and fully empty rows
//   - Converting spreadsheet serial dates in date-named columns
//
// All cells come out as text values except serial dates, which are
// converted here so downstream type coercion sees real dates. Everything
// else (numeric coercion, header standardization) belongs to the
// normalize package.
package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"insight/internal/dataset"
)

// ErrUnsupportedFormat is returned when the filename extension is not a
// recognized tabular format.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// headerScanRows bounds the banner-row scan in spreadsheets.
const headerScanRows = 5

// headerMinCells is the minimum count of non-empty cells for a row to be
// accepted as the header row.
const headerMinCells = 3

// Read parses raw bytes into a Dataset. The extension of filename selects
// the parser; anything but .csv/.xls/.xlsx fails with ErrUnsupportedFormat.
func Read(data []byte, filename string) (*dataset.Dataset, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return readCSV(data)
	case ".xls", ".xlsx":
		return readSpreadsheet(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(filename))
	}
}

// readCSV parses CSV bytes. The first row is always the header.
func readCSV(data []byte) (*dataset.Dataset, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Best-effort: malformed rows are skipped, not fatal.
			continue
		}
		row := make([]string, len(rec))
		copy(row, rec)
		rows = append(rows, row)
	}

	return buildDataset(header, rows)
}

// readSpreadsheet parses .xls/.xlsx bytes from the first sheet without
// assuming a header row. The first row among the leading headerScanRows
// whose non-empty cell count is >= headerMinCells becomes the header; rows
// above it (titles, banners) are discarded.
func readSpreadsheet(data []byte) (*dataset.Dataset, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open spreadsheet: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("spreadsheet has no sheets")
	}

	raw, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("spreadsheet sheet %q is empty", sheets[0])
	}

	headerIdx := 0
	for i := 0; i < len(raw) && i < headerScanRows; i++ {
		if nonEmptyCells(raw[i]) >= headerMinCells {
			headerIdx = i
			break
		}
	}

	header := raw[headerIdx]
	var rows [][]string
	if headerIdx+1 < len(raw) {
		rows = raw[headerIdx+1:]
	}

	return buildDataset(header, rows)
}

// buildDataset assembles the rectangular table:
//   - columns with an empty or auto-generated header are dropped
//     (merged-cell artifacts)
//   - fully empty rows are dropped
//   - date-named columns are scanned for spreadsheet serial values
func buildDataset(header []string, rows [][]string) (*dataset.Dataset, error) {
	type col struct {
		name string
		idx  int
	}

	cols := make([]col, 0, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" || isAutoHeader(h) {
			continue
		}
		cols = append(cols, col{name: h, idx: i})
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("no usable columns in header row")
	}

	ds := &dataset.Dataset{Columns: make([]string, 0, len(cols))}
	for _, c := range cols {
		ds.Columns = append(ds.Columns, c.name)
	}

	for _, raw := range rows {
		row := make(dataset.Row, len(cols))
		empty := true
		for _, c := range cols {
			var cell string
			if c.idx < len(raw) {
				cell = strings.TrimSpace(raw[c.idx])
			}
			if cell == "" {
				row[c.name] = dataset.Null()
				continue
			}
			empty = false
			row[c.name] = ingestValue(c.name, cell)
		}
		if empty {
			continue
		}
		ds.Rows = append(ds.Rows, row)
	}

	return ds, nil
}

// ingestValue wraps a raw cell. Cells in date-named columns that parse as a
// number in the serial-date range are converted to real dates here; every
// other cell stays text for the normalizer to coerce.
func ingestValue(column, cell string) dataset.Value {
	if strings.Contains(strings.ToLower(column), "date") {
		if n, err := strconv.ParseFloat(cell, 64); err == nil {
			if t, ok := dataset.FromExcelSerial(n); ok {
				return dataset.Date(t)
			}
		}
	}
	return dataset.Text(cell)
}

func nonEmptyCells(row []string) int {
	n := 0
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			n++
		}
	}
	return n
}

// isAutoHeader recognizes placeholder headers that spreadsheet readers
// synthesize for merged or unnamed cells.
func isAutoHeader(h string) bool {
	return strings.HasPrefix(h, "Unnamed") || strings.HasPrefix(h, "__EMPTY")
}

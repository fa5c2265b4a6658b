// Package normalize coerces a raw Dataset into typed columns and
// classifies them.
//
// The normalizer is responsible for:
//   - Name-based numeric and date coercion
//   - Domain-specific cleaning rule sets (finance, hr, general)
//   - Spreadsheet serial-date conversion
//   - Content-based numeric inference for unhinted columns
//   - Column classification (numeric / categorical / date)
//   - Header standardization to snake_case
//
// Every transformation appends a human-readable line to the cleaning log,
// in application order. The log is part of the contract: audits and UI
// display depend on it, so steps append and never reorder.
//
// Design constraints:
//   - Coercion is deliberately lossy: an unparsable cell in a
//     numeric-hinted column becomes 0, not null, and never an error.
//   - A rule that touches nothing still logs that it ran.
package normalize

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"insight/internal/dataset"
)

// numericNameHints force whole-column numeric coercion when the
// standardized column name contains one of them.
var numericNameHints = []string{
	"salary", "price", "cost", "age", "rating", "score", "amount", "profit", "sales",
}

// dateNameHints force whole-column date coercion.
var dateNameHints = []string{"date", "time"}

// dateNamePatterns classify a column as a date column by name alone.
var dateNamePatterns = []string{"date", "time", "month", "year", "period"}

// domainRules maps a cleaning domain to its ordered rule list. The tables
// are fixed at process start; selection falls back to "general" for
// unknown domains.
var domainRules = map[string][]cleaningRule{
	"finance": {ruleCurrency, rulePercent, ruleNulls, ruleTrim},
	"hr":      {ruleNames, ruleDates, ruleNulls, ruleTrim},
	"general": {ruleNulls, ruleTrim},
}

type cleaningRule func(ds *dataset.Dataset, log *cleaningLog)

// Options selects the cleaning behavior for one normalization run.
type Options struct {
	// Filename is echoed into the cleaning log.
	Filename string
	// Domain picks the cleaning rule set; empty or unknown means "general".
	Domain string
}

// Result is the normalizer output: the coerced dataset, its column
// classification, and the ordered cleaning log.
type Result struct {
	Data           *dataset.Dataset
	Classification dataset.Classification
	Log            []string
}

type cleaningLog struct{ lines []string }

func (l *cleaningLog) addf(format string, args ...any) {
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

// Normalize coerces column types in place and returns the classification
// and cleaning log. The caller keeps ownership of ds.
func Normalize(ds *dataset.Dataset, opt Options) (*Result, error) {
	if ds == nil || len(ds.Columns) == 0 {
		return nil, fmt.Errorf("normalize: dataset has no columns")
	}

	log := &cleaningLog{}
	log.addf("[INGEST] Ingested file %q", opt.Filename)
	log.addf("[FORMAT] Detected %s", strings.ToUpper(strings.TrimPrefix(filepath.Ext(opt.Filename), ".")))
	log.addf("[ROWS] Initial row count: %d", len(ds.Rows))

	dropEmptyRows(ds, log)

	coerceNumericByName(ds, log)
	coerceDateByName(ds, log)

	domain := strings.ToLower(strings.TrimSpace(opt.Domain))
	rules, ok := domainRules[domain]
	if !ok {
		domain = "general"
		rules = domainRules["general"]
	}
	log.addf("[DOMAIN] Applied %s domain protocols", strings.ToUpper(domain))
	for _, rule := range rules {
		rule(ds, log)
	}
	log.addf("[RULES] Applied %d domain-specific cleaning rules", len(rules))

	convertSerialDates(ds, log)
	inferNumericColumns(ds)

	cls := classify(ds, log)
	standardizeHeaders(ds, &cls, log)

	log.addf("[FINAL] Final dataset: %d rows x %d columns", len(ds.Rows), len(ds.Columns))

	return &Result{Data: ds, Classification: cls, Log: log.lines}, nil
}

// dropEmptyRows removes rows where every cell is null. Ingestion already
// drops them for file sources, but datasets can arrive by other paths.
func dropEmptyRows(ds *dataset.Dataset, log *cleaningLog) {
	kept := ds.Rows[:0]
	dropped := 0
	for _, row := range ds.Rows {
		empty := true
		for _, c := range ds.Columns {
			if !row[c].IsNull() {
				empty = false
				break
			}
		}
		if empty {
			dropped++
			continue
		}
		kept = append(kept, row)
	}
	ds.Rows = kept
	if dropped > 0 {
		log.addf("[CLEAN] Removed %d invalid/empty rows", dropped)
	}
}

// coerceNumericByName forces numeric storage for columns whose
// standardized name carries a numeric hint. Unparsable and null cells
// become 0 — a deliberate lossy default, not an error. Columns that also
// match a date hint are left alone; date coercion takes precedence.
func coerceNumericByName(ds *dataset.Dataset, log *cleaningLog) {
	coerced := 0
	for _, col := range ds.Columns {
		std := StandardizeHeader(col)
		if !containsAny(std, numericNameHints) || containsAny(std, dateNameHints) {
			continue
		}
		coerced++
		for _, row := range ds.Rows {
			row[col] = dataset.Number(toNumber(row[col]))
		}
	}
	if coerced > 0 {
		log.addf("[NUMERIC] Coerced %d columns to numeric by name", coerced)
	}
}

// coerceDateByName forces date storage for columns whose standardized name
// carries a date hint. Unparsable cells become null dates.
func coerceDateByName(ds *dataset.Dataset, log *cleaningLog) {
	coerced := 0
	for _, col := range ds.Columns {
		if !containsAny(StandardizeHeader(col), dateNameHints) {
			continue
		}
		coerced++
		for _, row := range ds.Rows {
			row[col] = toDate(row[col])
		}
	}
	if coerced > 0 {
		log.addf("[DATE] Coerced %d columns to date by name", coerced)
	}
}

// -----------------------------------------------------------------------------
// Domain rules
// -----------------------------------------------------------------------------

var (
	currencyRe = regexp.MustCompile(`^[\$£€¥][\d,\.]+$`)
	percentRe  = regexp.MustCompile(`^\d+\.?\d*%$`)
)

// ruleCurrency strips currency symbols from text cells matching the
// currency pattern and converts them to numbers.
func ruleCurrency(ds *dataset.Dataset, log *cleaningLog) {
	cells, cols := 0, 0
	for _, col := range ds.Columns {
		touched := false
		for _, row := range ds.Rows {
			v := row[col]
			if v.Kind() != dataset.KindText || !currencyRe.MatchString(v.Text()) {
				continue
			}
			s := strings.NewReplacer("$", "", "£", "", "€", "", "¥", "", ",", "").Replace(v.Text())
			if n, err := strconv.ParseFloat(s, 64); err == nil {
				row[col] = dataset.Number(n)
				cells++
				touched = true
			}
		}
		if touched {
			cols++
		}
	}
	if cells > 0 {
		log.addf("[CURRENCY] Converted currency values in %d columns (%d cells)", cols, cells)
	} else {
		log.addf("[CURRENCY] No currency-formatted values found")
	}
}

// rulePercent converts "12.5%"-style text cells to fractions (value/100).
func rulePercent(ds *dataset.Dataset, log *cleaningLog) {
	cells, cols := 0, 0
	for _, col := range ds.Columns {
		touched := false
		for _, row := range ds.Rows {
			v := row[col]
			if v.Kind() != dataset.KindText || !percentRe.MatchString(v.Text()) {
				continue
			}
			if n, err := strconv.ParseFloat(strings.TrimSuffix(v.Text(), "%"), 64); err == nil {
				row[col] = dataset.Number(n / 100)
				cells++
				touched = true
			}
		}
		if touched {
			cols++
		}
	}
	if cells > 0 {
		log.addf("[PERCENT] Converted percentages in %d columns (%d cells)", cols, cells)
	} else {
		log.addf("[PERCENT] No percentage-formatted values found")
	}
}

// ruleNulls counts null cells. Nulls are kept as-is (numeric-hinted
// columns already defaulted them to 0); the rule exists so the audit trail
// records how much of the dataset was missing.
func ruleNulls(ds *dataset.Dataset, log *cleaningLog) {
	nulls := 0
	for _, row := range ds.Rows {
		for _, col := range ds.Columns {
			if row[col].IsNull() {
				nulls++
			}
		}
	}
	if nulls > 0 {
		log.addf("[NULL] Handled %d null/empty values", nulls)
	} else {
		log.addf("[NULL] No null values found")
	}
}

// ruleTrim trims edge whitespace from text cells. Ingestion trims file
// sources already, so this usually reports zero for uploads.
func ruleTrim(ds *dataset.Dataset, log *cleaningLog) {
	cells := 0
	for _, row := range ds.Rows {
		for _, col := range ds.Columns {
			v := row[col]
			if v.Kind() != dataset.KindText {
				continue
			}
			if trimmed := strings.TrimSpace(v.Text()); trimmed != v.Text() {
				row[col] = dataset.Text(trimmed)
				cells++
			}
		}
	}
	log.addf("[TRIM] Trimmed whitespace in %d cells", cells)
}

// ruleNames normalizes person-name columns (hr rule set): internal
// whitespace collapsed, words title-cased.
func ruleNames(ds *dataset.Dataset, log *cleaningLog) {
	cells := 0
	for _, col := range ds.Columns {
		if !strings.Contains(StandardizeHeader(col), "name") {
			continue
		}
		for _, row := range ds.Rows {
			v := row[col]
			if v.Kind() != dataset.KindText {
				continue
			}
			if cleaned := titleCaseName(v.Text()); cleaned != v.Text() {
				row[col] = dataset.Text(cleaned)
				cells++
			}
		}
	}
	log.addf("[NAMES] Normalized %d name cells", cells)
}

// ruleDates re-runs date conversion for date-named columns (hr rule set).
// Name-based coercion has usually done the work already; the rule logs
// regardless so the protocol trail is complete.
func ruleDates(ds *dataset.Dataset, log *cleaningLog) {
	cells := 0
	for _, col := range ds.Columns {
		if !containsAny(StandardizeHeader(col), dateNameHints) {
			continue
		}
		for _, row := range ds.Rows {
			v := row[col]
			if v.Kind() != dataset.KindText {
				continue
			}
			if t, ok := ParseDate(v.Text()); ok {
				row[col] = dataset.Date(t)
				cells++
			}
		}
	}
	log.addf("[DATES] Converted %d date cells", cells)
}

func titleCaseName(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		if len(r) == 0 {
			continue
		}
		words[i] = strings.ToUpper(string(r[0])) + strings.ToLower(string(r[1:]))
	}
	return strings.Join(words, " ")
}

// -----------------------------------------------------------------------------
// Serial dates, numeric inference, classification
// -----------------------------------------------------------------------------

// convertSerialDates converts numeric cells in the spreadsheet serial
// range to real dates, for columns whose name matches a date pattern. The
// range bounds are exclusive and the epoch is 1899-12-30; both are
// load-bearing for Excel-originated data.
func convertSerialDates(ds *dataset.Dataset, log *cleaningLog) {
	cells := 0
	for _, col := range ds.Columns {
		if !containsAny(StandardizeHeader(col), dateNamePatterns) {
			continue
		}
		for _, row := range ds.Rows {
			v := row[col]
			if v.Kind() != dataset.KindNumber {
				continue
			}
			if t, ok := dataset.FromExcelSerial(v.Number()); ok {
				row[col] = dataset.Date(t)
				cells++
			}
		}
	}
	if cells > 0 {
		log.addf("[SERIAL] Converted %d spreadsheet serial dates", cells)
	}
}

// inferNumericColumns upgrades unhinted text columns to numeric storage
// when every non-null cell parses as a number. This mirrors what a
// dataframe reader would have inferred from the raw file.
func inferNumericColumns(ds *dataset.Dataset) {
	for _, col := range ds.Columns {
		if containsAny(StandardizeHeader(col), dateNamePatterns) {
			continue
		}
		numeric := true
		seen := false
		for _, row := range ds.Rows {
			v := row[col]
			switch v.Kind() {
			case dataset.KindNull:
				continue
			case dataset.KindNumber:
				seen = true
			case dataset.KindText:
				if _, err := parseFloatLoose(v.Text()); err != nil {
					numeric = false
				} else {
					seen = true
				}
			default:
				numeric = false
			}
			if !numeric {
				break
			}
		}
		if !numeric || !seen {
			continue
		}
		for _, row := range ds.Rows {
			if v := row[col]; v.Kind() == dataset.KindText {
				n, _ := parseFloatLoose(v.Text())
				row[col] = dataset.Number(n)
			}
		}
	}
}

// classify partitions columns by storage type. Date columns are selected
// by name pattern or by holding a genuine date value, and take precedence
// over the numeric set.
func classify(ds *dataset.Dataset, log *cleaningLog) dataset.Classification {
	var cls dataset.Classification

	dateSet := make(map[string]bool, len(ds.Columns))
	for _, col := range ds.Columns {
		if containsAny(StandardizeHeader(col), dateNamePatterns) {
			dateSet[col] = true
			continue
		}
		for _, row := range ds.Rows {
			if row[col].Kind() == dataset.KindDate {
				dateSet[col] = true
				break
			}
		}
	}

	for _, col := range ds.Columns {
		if dateSet[col] {
			cls.Date = append(cls.Date, col)
			continue
		}
		kind := storageKind(ds, col)
		switch kind {
		case dataset.KindNumber:
			cls.Numeric = append(cls.Numeric, col)
		default:
			cls.Categorical = append(cls.Categorical, col)
		}
	}

	if len(cls.Date) > 0 {
		cls.TimeGrain = cls.Date[0]
	}
	for _, col := range ds.Columns {
		if strings.Contains(StandardizeHeader(col), "id") {
			cls.PrimaryGrain = col
			break
		}
	}

	log.addf("[NUMERIC] Found %d numeric columns: [%s]", len(cls.Numeric), previewList(cls.Numeric, 5))
	log.addf("[CATEGORY] Found %d categorical columns: [%s]", len(cls.Categorical), previewList(cls.Categorical, 5))
	if len(cls.Date) > 0 {
		log.addf("[DATE] Found %d date columns: [%s]", len(cls.Date), previewList(cls.Date, 5))
	}

	return cls
}

// storageKind picks the dominant non-null kind of a column.
func storageKind(ds *dataset.Dataset, col string) dataset.Kind {
	counts := map[dataset.Kind]int{}
	for _, row := range ds.Rows {
		if v := row[col]; !v.IsNull() {
			counts[v.Kind()]++
		}
	}
	best, bestN := dataset.KindText, 0
	for _, k := range []dataset.Kind{dataset.KindNumber, dataset.KindDate, dataset.KindText} {
		if counts[k] > bestN {
			best, bestN = k, counts[k]
		}
	}
	return best
}

// standardizeHeaders renames every column (and row key, and classification
// entry) to its snake_case form. Collisions get a numeric suffix so the
// column set stays unique.
func standardizeHeaders(ds *dataset.Dataset, cls *dataset.Classification, log *cleaningLog) {
	rename := make(map[string]string, len(ds.Columns))
	used := make(map[string]bool, len(ds.Columns))

	for _, col := range ds.Columns {
		std := StandardizeHeader(col)
		if std == "" {
			std = "column"
		}
		name := std
		for i := 2; used[name]; i++ {
			name = fmt.Sprintf("%s_%d", std, i)
		}
		used[name] = true
		rename[col] = name
	}

	for i, col := range ds.Columns {
		ds.Columns[i] = rename[col]
	}
	for ri, row := range ds.Rows {
		out := make(dataset.Row, len(row))
		for col, v := range row {
			if n, ok := rename[col]; ok {
				out[n] = v
			} else {
				out[col] = v
			}
		}
		ds.Rows[ri] = out
	}

	renameAll := func(names []string) {
		for i, n := range names {
			if r, ok := rename[n]; ok {
				names[i] = r
			}
		}
	}
	renameAll(cls.Numeric)
	renameAll(cls.Categorical)
	renameAll(cls.Date)
	if r, ok := rename[cls.PrimaryGrain]; ok {
		cls.PrimaryGrain = r
	}
	if r, ok := rename[cls.TimeGrain]; ok {
		cls.TimeGrain = r
	}

	log.addf("[HEADERS] Standardized headers to snake_case")
}

// -----------------------------------------------------------------------------
// Cell parsing helpers
// -----------------------------------------------------------------------------

func toNumber(v dataset.Value) float64 {
	switch v.Kind() {
	case dataset.KindNumber:
		return v.Number()
	case dataset.KindText:
		if n, err := parseFloatLoose(v.Text()); err == nil {
			return n
		}
	}
	return 0
}

func toDate(v dataset.Value) dataset.Value {
	switch v.Kind() {
	case dataset.KindDate:
		return v
	case dataset.KindNumber:
		if t, ok := dataset.FromExcelSerial(v.Number()); ok {
			return dataset.Date(t)
		}
	case dataset.KindText:
		if t, ok := ParseDate(v.Text()); ok {
			return dataset.Date(t)
		}
	}
	return dataset.Null()
}

// parseFloatLoose accepts thousands separators ("1,234.56").
func parseFloatLoose(s string) (float64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	return strconv.ParseFloat(s, 64)
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05Z",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"01/02/2006",
	"02/01/2006",
	"Jan 2, 2006",
	"2 Jan 2006",
	"January 2, 2006",
	"2006-01",
}

// ParseDate tries the known date layouts in order.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func previewList(names []string, max int) string {
	if len(names) <= max {
		return strings.Join(names, ", ")
	}
	return strings.Join(names[:max], ", ") + "..."
}

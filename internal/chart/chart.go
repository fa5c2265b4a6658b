// Package chart turns chart specifications into pre-aggregated,
// render-ready data series.
//
// Each chart type owns an aggregation recipe (group-and-sum, monthly
// resample, correlation matrix, cumulative floating bars, quartiles).
// Failures are per-chart: a spec whose preconditions are unmet yields a
// skipped outcome with a reason, never an error that aborts the batch.
//
// Design constraints:
//   - A Result is created once per successful aggregation and never
//     mutated afterward.
//   - Aggregated rows are generic maps because every chart type has its
//     own row shape and the consumer renders them as-is.
package chart

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"insight/internal/analyze"
	"insight/internal/dataset"
)

// Logger is the minimal logging interface used for skip reporting.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

const (
	maxGroups         = 10
	maxHeatmapColumns = 6
	maxWaterfallBars  = 6
	maxBoxplotGroups  = 5
	minBoxplotValues  = 2
)

// Spec is one chart request: type, axis columns, and the reasoning text
// that becomes the chart's insight caption.
type Spec struct {
	Title     string `json:"title"`
	Type      string `json:"chart_type"`
	XCol      string `json:"x_axis_col"`
	YCol      string `json:"y_axis_col"`
	GroupCol  string `json:"group_col,omitempty"`
	Reasoning string `json:"reasoning"`
}

// Result is one rendered chart: the aggregated rows plus the labeling
// the consumer needs to draw it.
type Result struct {
	ID      string           `json:"id"`
	Title   string           `json:"title"`
	Type    string           `json:"type"`
	Data    []map[string]any `json:"data"`
	Insight string           `json:"insight"`
	XKey    string           `json:"x_key"`
	YKey    string           `json:"y_key"`
}

// Outcome is the per-chart aggregation result: either data or a skip
// reason, never both.
type Outcome struct {
	Data []map[string]any
	Skip string
}

// Skipped reports whether the aggregation was abandoned.
func (o Outcome) Skipped() bool { return o.Skip != "" }

func skip(format string, v ...any) Outcome {
	return Outcome{Skip: fmt.Sprintf(format, v...)}
}

// BuildAll aggregates every spec against the dataset. Skipped charts are
// logged and dropped; the returned slice holds only successful results.
func BuildAll(ds *dataset.Dataset, specs []Spec, logger Logger) []Result {
	out := make([]Result, 0, len(specs))
	for _, spec := range specs {
		o := Synthesize(ds, spec)
		if o.Skipped() {
			if logger != nil {
				logger.Printf("chart skipped title=%q type=%s reason=%s", spec.Title, spec.Type, o.Skip)
			}
			continue
		}
		if len(o.Data) == 0 {
			continue
		}
		out = append(out, Result{
			ID:      uuid.NewString(),
			Title:   spec.Title,
			Type:    spec.Type,
			Data:    o.Data,
			Insight: spec.Reasoning,
			XKey:    spec.XCol,
			YKey:    spec.YCol,
		})
	}
	return out
}

// Synthesize dispatches one spec to its aggregation recipe.
func Synthesize(ds *dataset.Dataset, spec Spec) Outcome {
	switch normalizeType(spec.Type) {
	case "bar", "pie":
		return groupedTotals(ds, spec)
	case "line", "area":
		return monthlyCounts(ds, spec)
	case "heatmap":
		return correlationGrid(ds)
	case "waterfall":
		return cumulativeBars(ds, spec)
	case "boxplot":
		return quartileSummary(ds, spec)
	default:
		return skip("unknown chart type %q", spec.Type)
	}
}

// groupedTotals serves bar and pie charts. When the y column is numeric
// the groups are summed and ordered by group label; otherwise the x
// values are counted and ordered by count descending, with the count
// column renamed to the requested y key. Only the top groups survive.
func groupedTotals(ds *dataset.Dataset, spec Spec) Outcome {
	if !ds.HasColumn(spec.XCol) {
		return skip("missing x column %q", spec.XCol)
	}

	if spec.YCol != "" && isNumericColumn(ds, spec.YCol) {
		sums := map[string]float64{}
		var order []string
		for _, row := range ds.Rows {
			x := row[spec.XCol].Display()
			if _, seen := sums[x]; !seen {
				order = append(order, x)
			}
			if v := row[spec.YCol]; v.Kind() == dataset.KindNumber {
				sums[x] += v.Number()
			}
		}
		sort.Strings(order)
		rows := make([]map[string]any, 0, len(order))
		for _, x := range order {
			rows = append(rows, map[string]any{spec.XCol: x, spec.YCol: sums[x]})
			if len(rows) == maxGroups {
				break
			}
		}
		return Outcome{Data: rows}
	}

	counts, order := countByValue(ds, spec.XCol)
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })

	yKey := spec.YCol
	if yKey == "" {
		yKey = "count"
	}
	rows := make([]map[string]any, 0, maxGroups)
	for _, x := range order {
		rows = append(rows, map[string]any{spec.XCol: x, yKey: counts[x]})
		if len(rows) == maxGroups {
			break
		}
	}
	return Outcome{Data: rows}
}

// monthlyCounts serves line and area charts: the x column must be
// date-typed; y occurrences are counted per calendar month over the
// continuous month range of the data, labeled YYYY-MM.
func monthlyCounts(ds *dataset.Dataset, spec Spec) Outcome {
	if !ds.HasColumn(spec.XCol) {
		return skip("missing x column %q", spec.XCol)
	}
	if !isDateColumn(ds, spec.XCol) {
		return Outcome{Data: []map[string]any{}}
	}

	counts := map[string]int{}
	var first, last time.Time
	seen := false
	for _, row := range ds.Rows {
		x := row[spec.XCol]
		if x.Kind() != dataset.KindDate {
			continue
		}
		t := x.Date()
		if !seen || t.Before(first) {
			first = t
		}
		if !seen || t.After(last) {
			last = t
		}
		seen = true
		if y := row[spec.YCol]; !y.IsNull() {
			counts[t.Format("2006-01")]++
		}
	}
	if !seen {
		return Outcome{Data: []map[string]any{}}
	}

	rows := []map[string]any{}
	cur := time.Date(first.Year(), first.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(last.Year(), last.Month(), 1, 0, 0, 0, 0, time.UTC)
	for !cur.After(end) {
		label := cur.Format("2006-01")
		rows = append(rows, map[string]any{spec.XCol: label, spec.YCol: counts[label]})
		cur = cur.AddDate(0, 1, 0)
	}
	return Outcome{Data: rows}
}

// correlationGrid serves heatmaps: the Pearson matrix over the first
// numeric columns, flattened to one record per cell. Spec-provided
// column hints are ignored. Undefined cells map to 0.
func correlationGrid(ds *dataset.Dataset) Outcome {
	var cols []string
	for _, c := range ds.Columns {
		if isNumericColumn(ds, c) {
			cols = append(cols, c)
			if len(cols) == maxHeatmapColumns {
				break
			}
		}
	}
	if len(cols) < 2 {
		return Outcome{Data: []map[string]any{}}
	}

	series := make([][]float64, len(cols))
	for i, c := range cols {
		series[i] = numericOrNaN(ds, c)
	}

	rows := make([]map[string]any, 0, len(cols)*len(cols))
	for i, x := range cols {
		for j, y := range cols {
			v := 0.0
			if r, ok := pairwisePearson(series[i], series[j]); ok {
				v = math.Round(r*100) / 100
			}
			rows = append(rows, map[string]any{"x": x, "y": y, "value": v})
		}
	}
	return Outcome{Data: rows}
}

// cumulativeBars serves waterfalls: sum y per x group, keep the largest
// groups, and emit running-cumulative floating bars.
func cumulativeBars(ds *dataset.Dataset, spec Spec) Outcome {
	if !ds.HasColumn(spec.XCol) {
		return skip("missing x column %q", spec.XCol)
	}
	if !isNumericColumn(ds, spec.YCol) {
		return Outcome{Data: []map[string]any{}}
	}

	sums := map[string]float64{}
	var order []string
	for _, row := range ds.Rows {
		x := row[spec.XCol].Display()
		if _, seen := sums[x]; !seen {
			order = append(order, x)
		}
		if v := row[spec.YCol]; v.Kind() == dataset.KindNumber {
			sums[x] += v.Number()
		}
	}
	sort.SliceStable(order, func(i, j int) bool { return sums[order[i]] > sums[order[j]] })
	if len(order) > maxWaterfallBars {
		order = order[:maxWaterfallBars]
	}

	rows := make([]map[string]any, 0, len(order))
	cumulative := 0.0
	for _, name := range order {
		v := sums[name]
		start := cumulative
		cumulative += v
		rows = append(rows, map[string]any{
			"name":         name,
			"value":        []float64{start, cumulative},
			"displayValue": v,
			"isNegative":   v < 0,
		})
	}
	return Outcome{Data: rows}
}

// quartileSummary serves boxplots: for the most frequent x categories,
// the five-number summary of y. Categories with too few observations
// are omitted, not reported.
func quartileSummary(ds *dataset.Dataset, spec Spec) Outcome {
	if !ds.HasColumn(spec.XCol) {
		return skip("missing x column %q", spec.XCol)
	}
	if !isNumericColumn(ds, spec.YCol) {
		return Outcome{Data: []map[string]any{}}
	}

	counts, order := countByValue(ds, spec.XCol)
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if len(order) > maxBoxplotGroups {
		order = order[:maxBoxplotGroups]
	}

	rows := []map[string]any{}
	for _, name := range order {
		var vals []float64
		for _, row := range ds.Rows {
			if row[spec.XCol].Display() != name {
				continue
			}
			if v := row[spec.YCol]; v.Kind() == dataset.KindNumber {
				vals = append(vals, v.Number())
			}
		}
		if len(vals) < minBoxplotValues {
			continue
		}
		sort.Float64s(vals)
		rows = append(rows, map[string]any{
			"name":   name,
			"min":    vals[0],
			"q1":     Quantile(vals, 0.25),
			"median": Quantile(vals, 0.50),
			"q3":     Quantile(vals, 0.75),
			"max":    vals[len(vals)-1],
		})
	}
	return Outcome{Data: rows}
}

// Quantile computes the q-th quantile of sorted values with linear
// interpolation between the two nearest ranks.
func Quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// countByValue tallies occurrences of each non-null display value and
// returns the first-appearance order of the values.
func countByValue(ds *dataset.Dataset, col string) (map[string]int, []string) {
	counts := map[string]int{}
	var order []string
	for _, row := range ds.Rows {
		v := row[col]
		if v.IsNull() {
			continue
		}
		x := v.Display()
		if _, seen := counts[x]; !seen {
			order = append(order, x)
		}
		counts[x]++
	}
	return counts, order
}

// isNumericColumn reports whether the column holds at least one numeric
// cell and no text cells. Null cells are tolerated.
func isNumericColumn(ds *dataset.Dataset, col string) bool {
	if col == "" || !ds.HasColumn(col) {
		return false
	}
	numeric := false
	for _, row := range ds.Rows {
		switch row[col].Kind() {
		case dataset.KindNumber:
			numeric = true
		case dataset.KindText, dataset.KindDate:
			return false
		}
	}
	return numeric
}

// isDateColumn reports whether the column holds at least one date cell
// and no text or numeric cells.
func isDateColumn(ds *dataset.Dataset, col string) bool {
	if col == "" || !ds.HasColumn(col) {
		return false
	}
	dated := false
	for _, row := range ds.Rows {
		switch row[col].Kind() {
		case dataset.KindDate:
			dated = true
		case dataset.KindText, dataset.KindNumber:
			return false
		}
	}
	return dated
}

// numericOrNaN returns the column as a full-length series with NaN in
// non-numeric positions, so pairwise correlation can align rows.
func numericOrNaN(ds *dataset.Dataset, col string) []float64 {
	out := make([]float64, len(ds.Rows))
	for i, row := range ds.Rows {
		if v := row[col]; v.Kind() == dataset.KindNumber {
			out[i] = v.Number()
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// pairwisePearson correlates two aligned series over rows where both
// values are present.
func pairwisePearson(xs, ys []float64) (float64, bool) {
	px := make([]float64, 0, len(xs))
	py := make([]float64, 0, len(ys))
	for i := range xs {
		if math.IsNaN(xs[i]) || math.IsNaN(ys[i]) {
			continue
		}
		px = append(px, xs[i])
		py = append(py, ys[i])
	}
	return analyze.Pearson(px, py)
}

// normalizeType lowercases and trims a requested chart type so provider
// output like "Bar" or " pie " still dispatches.
func normalizeType(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}

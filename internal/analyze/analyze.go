// Package analyze computes descriptive and relational statistics over a
// normalized dataset: per-column summaries, pairwise Pearson correlations
// with templated natural-language insights, and a linear-regression trend
// forecast.
//
// Design constraints:
//   - All computation is best-effort. Undefined correlations are dropped,
//     not reported as NaN; an impossible forecast returns nil, not an
//     error.
//   - Insight template choice is deterministic — derived from the column
//     names and the correlation value — so a given pair always yields the
//     same sentence. Do not replace with real randomness; fixtures depend
//     on it.
package analyze

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"insight/internal/dataset"
)

// identifierHints exclude pseudo-numeric columns (IDs, codes) from
// correlation analysis; correlating identifiers is noise.
var identifierHints = []string{"id", "code", "key", "extension"}

const (
	maxCorrelations = 10
	maxModels       = 5
	corrThreshold   = 0.3
	strongThreshold = 0.7
)

// Summary holds descriptive statistics for one numeric column.
type Summary struct {
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Median float64 `json:"median"`
}

// Correlation is one unordered column pair with |r| above the reporting
// threshold.
type Correlation struct {
	FeatureA    string  `json:"feature_a"`
	FeatureB    string  `json:"feature_b"`
	Correlation float64 `json:"correlation"`
	Insight     string  `json:"insight"`
}

// Model re-expresses a top correlation as a model-style insight record.
type Model struct {
	Feature     string  `json:"feature"`
	Correlation float64 `json:"correlation"`
	Insight     string  `json:"insight"`
	Type        string  `json:"type"`
}

// Report is the full statistical output for one dataset.
type Report struct {
	RowCount     int                `json:"row_count"`
	ColumnCount  int                `json:"column_count"`
	Summaries    map[string]Summary `json:"numeric_summaries"`
	Correlations []Correlation      `json:"correlations"`
	Models       []Model            `json:"models"`
}

// Analyze computes summaries, correlations, and model insights for every
// numeric column in the classification.
func Analyze(ds *dataset.Dataset, cls dataset.Classification) *Report {
	rep := &Report{
		RowCount:    ds.RowCount(),
		ColumnCount: ds.ColumnCount(),
		Summaries:   make(map[string]Summary, len(cls.Numeric)),
	}

	for _, col := range cls.Numeric {
		if !ds.HasColumn(col) {
			continue
		}
		if s, ok := summarize(ds.NumericValues(col)); ok {
			rep.Summaries[col] = s
		}
	}

	rep.Correlations = correlations(ds, cls.Numeric)
	rep.Models = buildModels(rep.Correlations)
	return rep
}

func summarize(vals []float64) (Summary, bool) {
	n := len(vals)
	if n == 0 {
		return Summary{}, false
	}

	min, max, sum := vals[0], vals[0], 0.0
	for _, v := range vals {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		sum += v
	}
	mean := sum / float64(n)

	variance := 0.0
	if n > 1 {
		for _, v := range vals {
			d := v - mean
			variance += d * d
		}
		variance /= float64(n - 1)
	}

	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)

	return Summary{
		Mean:   mean,
		Std:    math.Sqrt(variance),
		Min:    min,
		Max:    max,
		Median: median(sorted),
	}, true
}

// median expects sorted input.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// correlations computes the pairwise Pearson matrix over the qualifying
// numeric columns and keeps the strongest pairs.
//
// Qualifying means the standardized name carries no identifier hint.
// Fewer than 2 qualifying columns yields an empty (non-nil) list.
func correlations(ds *dataset.Dataset, numeric []string) []Correlation {
	out := []Correlation{}

	cols := make([]string, 0, len(numeric))
	for _, c := range numeric {
		if isIdentifier(c) || !ds.HasColumn(c) {
			continue
		}
		cols = append(cols, c)
	}
	if len(cols) < 2 {
		return out
	}

	for i := 0; i < len(cols); i++ {
		for j := i + 1; j < len(cols); j++ {
			r, ok := Pearson(pairedValues(ds, cols[i], cols[j]))
			if !ok || math.Abs(r) <= corrThreshold {
				continue
			}
			r = round3(r)
			out = append(out, Correlation{
				FeatureA:    cols[i],
				FeatureB:    cols[j],
				Correlation: r,
				Insight:     insightFor(cols[i], cols[j], r),
			})
		}
	}

	sort.SliceStable(out, func(a, b int) bool {
		return math.Abs(out[a].Correlation) > math.Abs(out[b].Correlation)
	})
	if len(out) > maxCorrelations {
		out = out[:maxCorrelations]
	}
	return out
}

func isIdentifier(col string) bool {
	lower := strings.ToLower(col)
	for _, h := range identifierHints {
		if strings.Contains(lower, h) {
			return true
		}
	}
	return false
}

// pairedValues collects (x, y) observations from rows where both cells
// are numeric.
func pairedValues(ds *dataset.Dataset, a, b string) ([]float64, []float64) {
	xs := make([]float64, 0, len(ds.Rows))
	ys := make([]float64, 0, len(ds.Rows))
	for _, row := range ds.Rows {
		va, vb := row[a], row[b]
		if va.Kind() != dataset.KindNumber || vb.Kind() != dataset.KindNumber {
			continue
		}
		xs = append(xs, va.Number())
		ys = append(ys, vb.Number())
	}
	return xs, ys
}

// Pearson computes the correlation coefficient of two equal-length
// series. ok is false when the coefficient is undefined (fewer than 2
// observations or a zero-variance series).
func Pearson(xs, ys []float64) (float64, bool) {
	n := float64(len(xs))
	if len(xs) != len(ys) || len(xs) < 2 {
		return 0, false
	}

	var sumX, sumY, sumXX, sumYY, sumXY float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
		sumXX += xs[i] * xs[i]
		sumYY += ys[i] * ys[i]
		sumXY += xs[i] * ys[i]
	}

	denom := math.Sqrt((n*sumXX - sumX*sumX) * (n*sumYY - sumY*sumY))
	if denom == 0 {
		return 0, false
	}
	r := (n*sumXY - sumX*sumY) / denom
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0, false
	}
	// Clamp floating-point drift.
	if r > 1 {
		r = 1
	} else if r < -1 {
		r = -1
	}
	return r, true
}

func buildModels(corrs []Correlation) []Model {
	out := []Model{}
	for i, c := range corrs {
		if i >= maxModels {
			break
		}
		out = append(out, Model{
			Feature:     fmt.Sprintf("%s<->%s", c.FeatureA, c.FeatureB),
			Correlation: c.Correlation,
			Insight:     c.Insight,
			Type:        "correlation",
		})
	}
	return out
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round3(v float64) float64 { return math.Round(v*1000) / 1000 }

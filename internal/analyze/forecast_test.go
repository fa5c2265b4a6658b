package analyze

import (
	"math"
	"testing"
	"time"

	"insight/internal/dataset"
)

func monthlyDataset(valueCol string, values []float64) *dataset.Dataset {
	ds := &dataset.Dataset{Columns: []string{"date", valueCol}}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, v := range values {
		ds.Rows = append(ds.Rows, dataset.Row{
			"date":   dataset.Date(start.AddDate(0, i, 0)),
			valueCol: dataset.Number(v),
		})
	}
	return ds
}

func TestBuildForecastUpward(t *testing.T) {
	t.Parallel()

	ds := monthlyDataset("revenue", []float64{100, 120, 140, 160})
	cls := dataset.Classification{Numeric: []string{"revenue"}, Date: []string{"date"}}

	f := BuildForecast(ds, cls, 0)
	if f == nil {
		t.Fatalf("BuildForecast returned nil")
	}
	if f.Metric != "revenue" || f.DateColumn != "date" {
		t.Fatalf("metric/date=(%q,%q), want (revenue,date)", f.Metric, f.DateColumn)
	}
	if f.Trend != TrendUpward {
		t.Fatalf("trend=%q, want %q", f.Trend, TrendUpward)
	}
	if f.Slope != 20 {
		t.Fatalf("slope=%v, want 20", f.Slope)
	}
	if f.Confidence != "Linear Regression (OLS)" {
		t.Fatalf("confidence=%q", f.Confidence)
	}

	if len(f.Historical) != 4 {
		t.Fatalf("historical=%d, want 4", len(f.Historical))
	}
	if f.Historical[0].Date != "2024-01-01" || f.Historical[0].IsForecast {
		t.Fatalf("historical[0]=%+v", f.Historical[0])
	}

	if len(f.Projected) != DefaultHorizon {
		t.Fatalf("projected=%d, want %d", len(f.Projected), DefaultHorizon)
	}
	if f.Projected[0].Value != 180 {
		t.Fatalf("projected[0].Value=%v, want 180", f.Projected[0].Value)
	}
	if !f.Projected[0].IsForecast {
		t.Fatalf("projected[0] not flagged as forecast")
	}
	// Real last date: projection labels are calendar dates 30 days apart.
	if want := "2024-05-01"; f.Projected[0].Date != want {
		t.Fatalf("projected[0].Date=%q, want %q", f.Projected[0].Date, want)
	}
}

func TestBuildForecastStableBand(t *testing.T) {
	t.Parallel()

	ds := monthlyDataset("revenue", []float64{100, 100.1, 99.9, 100})
	cls := dataset.Classification{Numeric: []string{"revenue"}, Date: []string{"date"}}

	f := BuildForecast(ds, cls, 0)
	if f == nil {
		t.Fatalf("BuildForecast returned nil")
	}
	if f.Trend != TrendStable {
		t.Fatalf("trend=%q, want %q (slope within band)", f.Trend, TrendStable)
	}
}

// TestBuildForecastClampsNegative verifies projected values never go
// below zero on a steep downward trend.
func TestBuildForecastClampsNegative(t *testing.T) {
	t.Parallel()

	ds := monthlyDataset("revenue", []float64{60, 40, 20})
	cls := dataset.Classification{Numeric: []string{"revenue"}, Date: []string{"date"}}

	f := BuildForecast(ds, cls, 0)
	if f == nil {
		t.Fatalf("BuildForecast returned nil")
	}
	if f.Trend != TrendDownward {
		t.Fatalf("trend=%q, want %q", f.Trend, TrendDownward)
	}
	for i, p := range f.Projected {
		if p.Value < 0 {
			t.Fatalf("projected[%d].Value=%v, want >= 0", i, p.Value)
		}
	}
	if f.Projected[0].Value != 0 {
		t.Fatalf("projected[0].Value=%v, want clamp to 0", f.Projected[0].Value)
	}
}

func TestBuildForecastPreconditions(t *testing.T) {
	t.Parallel()

	// No date column.
	ds, cls := numericDataset([]string{"revenue"}, [][]float64{{1}, {2}, {3}})
	if f := BuildForecast(ds, cls, 0); f != nil {
		t.Fatalf("forecast without date column=%+v, want nil", f)
	}

	// Fewer than 3 usable rows.
	short := monthlyDataset("revenue", []float64{100, 120})
	shortCls := dataset.Classification{Numeric: []string{"revenue"}, Date: []string{"date"}}
	if f := BuildForecast(short, shortCls, 0); f != nil {
		t.Fatalf("forecast with 2 rows=%+v, want nil", f)
	}

	// No numeric column.
	if f := BuildForecast(short, dataset.Classification{Date: []string{"date"}}, 0); f != nil {
		t.Fatalf("forecast without numeric column=%+v, want nil", f)
	}
}

// TestBuildForecastSyntheticLabels verifies unparsable dates switch the
// projection labels to "Month +k" form.
func TestBuildForecastSyntheticLabels(t *testing.T) {
	t.Parallel()

	ds := &dataset.Dataset{
		Columns: []string{"date", "revenue"},
		Rows: []dataset.Row{
			{"date": dataset.Text("???"), "revenue": dataset.Number(100)},
			{"date": dataset.Text("???"), "revenue": dataset.Number(100)},
			{"date": dataset.Text("???"), "revenue": dataset.Number(100)},
		},
	}
	cls := dataset.Classification{Numeric: []string{"revenue"}, Date: []string{"date"}}

	f := BuildForecast(ds, cls, 0)
	if f == nil {
		t.Fatalf("BuildForecast returned nil")
	}
	for i, p := range f.Projected {
		want := "Month +" + string(rune('1'+i))
		if p.Date != want {
			t.Fatalf("projected[%d].Date=%q, want %q", i, p.Date, want)
		}
	}
}

func TestPickValueColumn(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		numeric []string
		want    string
	}{
		{name: "priority_beats_position", numeric: []string{"headcount", "total_sales", "revenue_q1"}, want: "revenue_q1"},
		{name: "sales_over_fallback", numeric: []string{"quantity", "net_sales"}, want: "net_sales"},
		{name: "fallback_first", numeric: []string{"quantity", "weight"}, want: "quantity"},
		{name: "empty", numeric: nil, want: ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := pickValueColumn(tc.numeric); got != tc.want {
				t.Fatalf("pickValueColumn(%v)=%q, want %q", tc.numeric, got, tc.want)
			}
		})
	}
}

func TestOlsByIndex(t *testing.T) {
	t.Parallel()

	slope, intercept := olsByIndex([]float64{100, 120, 140, 160})
	if math.Abs(slope-20) > 1e-9 || math.Abs(intercept-100) > 1e-9 {
		t.Fatalf("ols=(%v,%v), want (20,100)", slope, intercept)
	}

	slope, _ = olsByIndex([]float64{5, 5, 5})
	if slope != 0 {
		t.Fatalf("flat slope=%v, want 0", slope)
	}
}

func TestCoerceDate(t *testing.T) {
	t.Parallel()

	when := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	if got, real := coerceDate(dataset.Date(when)); !real || !got.Equal(when) {
		t.Fatalf("coerceDate(date)=(%v,%v)", got, real)
	}
	if got, real := coerceDate(dataset.Number(45292)); !real || got.Year() != 2024 {
		t.Fatalf("coerceDate(serial)=(%v,%v)", got, real)
	}
	if got, real := coerceDate(dataset.Text("2024-03-01")); !real || !got.Equal(when) {
		t.Fatalf("coerceDate(text)=(%v,%v)", got, real)
	}
	if _, real := coerceDate(dataset.Text("nonsense")); real {
		t.Fatalf("coerceDate(nonsense) real=true, want fallback")
	}
}

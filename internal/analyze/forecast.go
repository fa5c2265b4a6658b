package analyze

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"insight/internal/dataset"
	"insight/internal/normalize"
)

// DefaultHorizon is the number of future points a forecast projects.
const DefaultHorizon = 6

// stableBand scales the mean to set the slope magnitude below which the
// trend is reported as Stable.
const stableBand = 0.01

// valuePriority orders the name fragments used to pick the forecast
// metric column. Earlier fragments win over later ones regardless of
// column position.
var valuePriority = []string{"revenue", "sales", "amount", "total", "value", "income", "salary"}

// Point is one observation in a forecast series, historical or projected.
type Point struct {
	Date       string  `json:"date"`
	Value      float64 `json:"value"`
	IsForecast bool    `json:"is_forecast"`
}

// Forecast is a linear-regression projection of one metric over time.
type Forecast struct {
	Metric     string  `json:"metric"`
	DateColumn string  `json:"date_column"`
	Trend      string  `json:"trend"`
	Slope      float64 `json:"slope"`
	Confidence string  `json:"confidence"`
	Historical []Point `json:"historical_data"`
	Projected  []Point `json:"forecast_data"`
}

// Trend labels.
const (
	TrendUpward   = "Upward"
	TrendDownward = "Downward"
	TrendStable   = "Stable"
)

// observation pairs a row's date with its metric value. real records
// whether the date came from the data or from the now() fallback.
type observation struct {
	when  time.Time
	value float64
	real  bool
}

// BuildForecast fits ordinary least squares of the chosen metric against
// row index and projects horizon future points 30 days apart.
//
// Best-effort: any unmet precondition (no date column, no numeric
// column, fewer than 3 usable rows) returns nil rather than an error.
// Unparsable date cells fall back to the current time instead of
// failing the whole forecast; such rows sort unpredictably and the
// projection labels switch to synthetic "Month +k" form.
func BuildForecast(ds *dataset.Dataset, cls dataset.Classification, horizon int) *Forecast {
	if len(cls.Date) == 0 || len(cls.Numeric) == 0 {
		return nil
	}
	if horizon <= 0 {
		horizon = DefaultHorizon
	}

	dateCol := cls.Date[0]
	valueCol := pickValueColumn(cls.Numeric)
	if valueCol == "" || !ds.HasColumn(dateCol) || !ds.HasColumn(valueCol) {
		return nil
	}

	obs := collectObservations(ds, dateCol, valueCol)
	if len(obs) < 3 {
		return nil
	}
	sort.SliceStable(obs, func(i, j int) bool { return obs[i].when.Before(obs[j].when) })

	n := len(obs)
	ys := make([]float64, n)
	for i, o := range obs {
		ys[i] = o.value
	}
	slope, intercept := olsByIndex(ys)

	mean := 0.0
	for _, y := range ys {
		mean += y
	}
	mean /= float64(n)

	trend := TrendStable
	if math.Abs(slope) >= stableBand*mean {
		if slope > 0 {
			trend = TrendUpward
		} else {
			trend = TrendDownward
		}
	}

	historical := make([]Point, 0, n)
	for _, o := range obs {
		historical = append(historical, Point{
			Date:  o.when.Format("2006-01-02"),
			Value: o.value,
		})
	}

	last := obs[n-1]
	projected := make([]Point, 0, horizon)
	for i := 1; i <= horizon; i++ {
		predicted := slope*float64(n-1+i) + intercept

		var label string
		if last.real {
			label = last.when.AddDate(0, 0, 30*i).Format("2006-01-02")
		} else {
			label = fmt.Sprintf("Month +%d", i)
		}

		projected = append(projected, Point{
			Date:       label,
			Value:      math.Max(0, round2(predicted)),
			IsForecast: true,
		})
	}

	return &Forecast{
		Metric:     valueCol,
		DateColumn: dateCol,
		Trend:      trend,
		Slope:      round2(slope),
		Confidence: "Linear Regression (OLS)",
		Historical: historical,
		Projected:  projected,
	}
}

// pickValueColumn returns the first numeric column matching the highest
// priority name fragment, else the first numeric column.
func pickValueColumn(numeric []string) string {
	for _, pattern := range valuePriority {
		for _, col := range numeric {
			if strings.Contains(strings.ToLower(col), pattern) {
				return col
			}
		}
	}
	if len(numeric) > 0 {
		return numeric[0]
	}
	return ""
}

// collectObservations drops rows with a null in either column and
// coerces every date cell to a time.Time.
func collectObservations(ds *dataset.Dataset, dateCol, valueCol string) []observation {
	obs := make([]observation, 0, len(ds.Rows))
	for _, row := range ds.Rows {
		dv, vv := row[dateCol], row[valueCol]
		if dv.Kind() == dataset.KindNull || vv.Kind() != dataset.KindNumber {
			continue
		}
		when, real := coerceDate(dv)
		obs = append(obs, observation{when: when, value: vv.Number(), real: real})
	}
	return obs
}

// coerceDate turns any cell value into a time. Genuine dates pass
// through, numbers in the spreadsheet serial range are converted, and
// strings are parsed best-effort. Everything else falls back to now
// with real=false.
func coerceDate(v dataset.Value) (time.Time, bool) {
	switch v.Kind() {
	case dataset.KindDate:
		return v.Date(), true
	case dataset.KindNumber:
		if t, ok := dataset.FromExcelSerial(v.Number()); ok {
			return t, true
		}
	case dataset.KindText:
		if t, ok := normalize.ParseDate(v.Text()); ok {
			return t, true
		}
	}
	return time.Now(), false
}

// olsByIndex fits y = slope*x + intercept with x = 0..n-1. Callers
// guarantee n >= 3, so the denominator is never zero.
func olsByIndex(ys []float64) (slope, intercept float64) {
	n := float64(len(ys))
	var sumX, sumY, sumXX, sumXY float64
	for i, y := range ys {
		x := float64(i)
		sumX += x
		sumY += y
		sumXX += x * x
		sumXY += x * y
	}
	slope = (n*sumXY - sumX*sumY) / (n*sumXX - sumX*sumX)
	intercept = (sumY - slope*sumX) / n
	return slope, intercept
}

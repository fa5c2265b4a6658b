// Package dataset defines the in-memory table model shared by the
// ingestion, normalization, analysis, and chart packages.
//
// A Dataset is a rectangular table: an ordered list of column names and an
// ordered list of rows, each row mapping column name to a typed scalar
// Value. Column typing is dynamic and decided once during normalization;
// downstream code dispatches on the Value kind instead of re-inspecting raw
// cell text.
//
// Design constraints:
//   - Every row carries the same column set as the header.
//   - Row order is insertion order from the source file.
//   - A Dataset is owned by the analysis invocation that created it (or by
//     the session store that retains it); nothing here is safe for
//     concurrent mutation.
package dataset

import (
	"encoding/json"
	"time"
)

// Kind discriminates the Value union.
type Kind uint8

const (
	KindNull Kind = iota
	KindNumber
	KindText
	KindDate
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindText:
		return "text"
	case KindDate:
		return "date"
	default:
		return "null"
	}
}

// Value is a tagged union over the cell types a column can hold.
// The zero Value is null.
type Value struct {
	kind Kind
	num  float64
	str  string
	t    time.Time
}

// Null returns the null Value.
func Null() Value { return Value{} }

// Number wraps a float64.
func Number(v float64) Value { return Value{kind: KindNumber, num: v} }

// Text wraps a string.
func Text(s string) Value { return Value{kind: KindText, str: s} }

// Date wraps a time.Time.
func Date(t time.Time) Value { return Value{kind: KindDate, t: t} }

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// Number returns the numeric payload. Only meaningful when Kind()==KindNumber.
func (v Value) Number() float64 { return v.num }

// Text returns the text payload. Only meaningful when Kind()==KindText.
func (v Value) Text() string { return v.str }

// Date returns the date payload. Only meaningful when Kind()==KindDate.
func (v Value) Date() time.Time { return v.t }

// Display renders the value the way it appears in API responses and chart
// labels: dates as a 10-character ISO date, numbers via the default float
// formatting, null as the empty string.
func (v Value) Display() string {
	switch v.kind {
	case KindNumber:
		b, _ := json.Marshal(v.num)
		return string(b)
	case KindText:
		return v.str
	case KindDate:
		return v.t.Format("2006-01-02")
	default:
		return ""
	}
}

// MarshalJSON renders numbers as JSON numbers, dates as "YYYY-MM-DD"
// strings, text as strings, and null as null.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNumber:
		return json.Marshal(v.num)
	case KindText:
		return json.Marshal(v.str)
	case KindDate:
		return json.Marshal(v.t.Format("2006-01-02"))
	default:
		return []byte("null"), nil
	}
}

// Row maps column name to cell value.
type Row map[string]Value

// Dataset is a rectangular table with ordered columns and rows.
type Dataset struct {
	Columns []string
	Rows    []Row
}

// RowCount returns the number of data rows.
func (d *Dataset) RowCount() int { return len(d.Rows) }

// ColumnCount returns the number of columns.
func (d *Dataset) ColumnCount() int { return len(d.Columns) }

// HasColumn reports whether name is one of the dataset's columns.
func (d *Dataset) HasColumn(name string) bool {
	for _, c := range d.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// ColumnValues returns every cell of the named column in row order,
// including nulls.
func (d *Dataset) ColumnValues(name string) []Value {
	out := make([]Value, 0, len(d.Rows))
	for _, r := range d.Rows {
		out = append(out, r[name])
	}
	return out
}

// NumericValues returns the numeric cells of the named column in row order.
// Non-numeric and null cells are skipped.
func (d *Dataset) NumericValues(name string) []float64 {
	out := make([]float64, 0, len(d.Rows))
	for _, r := range d.Rows {
		if v := r[name]; v.Kind() == KindNumber {
			out = append(out, v.Number())
		}
	}
	return out
}

// Classification partitions the dataset's columns by coerced type and
// records the identifying grain columns, when known.
//
// Date classification wins over numeric: a column matching a date-name
// pattern is excluded from Numeric even when its storage type is numeric.
type Classification struct {
	Numeric     []string `json:"numeric_columns"`
	Categorical []string `json:"categorical_columns"`
	Date        []string `json:"date_columns"`

	// PrimaryGrain is the column that identifies a row's subject
	// (e.g. employee_id). Empty when unknown.
	PrimaryGrain string `json:"primary_grain,omitempty"`

	// TimeGrain is the primary date column for trend analysis.
	// Empty when the dataset has no date column.
	TimeGrain string `json:"time_grain,omitempty"`
}

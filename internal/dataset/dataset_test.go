package dataset

import (
	"encoding/json"
	"testing"
	"time"
)

// TestValueKinds verifies constructor/accessor pairing and the null
// zero value.
func TestValueKinds(t *testing.T) {
	t.Parallel()

	if got := (Value{}).Kind(); got != KindNull {
		t.Fatalf("zero Value kind=%v, want KindNull", got)
	}
	if !Null().IsNull() {
		t.Fatalf("Null().IsNull()=false, want true")
	}

	if v := Number(42.5); v.Kind() != KindNumber || v.Number() != 42.5 {
		t.Fatalf("Number roundtrip failed: kind=%v value=%v", v.Kind(), v.Number())
	}
	if v := Text("hello"); v.Kind() != KindText || v.Text() != "hello" {
		t.Fatalf("Text roundtrip failed: kind=%v value=%q", v.Kind(), v.Text())
	}

	when := time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)
	if v := Date(when); v.Kind() != KindDate || !v.Date().Equal(when) {
		t.Fatalf("Date roundtrip failed: kind=%v value=%v", v.Kind(), v.Date())
	}
}

// TestValueDisplay verifies the rendering used in API previews and
// chart labels.
func TestValueDisplay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		v    Value
		want string
	}{
		{name: "null_empty", v: Null(), want: ""},
		{name: "text_verbatim", v: Text("Engineering"), want: "Engineering"},
		{name: "integer_number", v: Number(300), want: "300"},
		{name: "fractional_number", v: Number(12.5), want: "12.5"},
		{name: "date_iso", v: Date(time.Date(2024, 1, 5, 13, 30, 0, 0, time.UTC)), want: "2024-01-05"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := tc.v.Display(); got != tc.want {
				t.Fatalf("Display()=%q, want %q", got, tc.want)
			}
		})
	}
}

// TestValueMarshalJSON verifies the wire encoding per kind.
func TestValueMarshalJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		v    Value
		want string
	}{
		{name: "null", v: Null(), want: `null`},
		{name: "number", v: Number(3.5), want: `3.5`},
		{name: "text", v: Text("x"), want: `"x"`},
		{name: "date", v: Date(time.Date(2023, 12, 31, 23, 0, 0, 0, time.UTC)), want: `"2023-12-31"`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			b, err := json.Marshal(tc.v)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			if string(b) != tc.want {
				t.Fatalf("Marshal=%s, want %s", b, tc.want)
			}
		})
	}
}

// TestExcelSerialBoundaries verifies the exclusive range bounds: 20000
// and 100000 themselves are not serials, their neighbors inside are.
func TestExcelSerialBoundaries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		v    float64
		want bool
	}{
		{name: "lower_bound_excluded", v: 20000, want: false},
		{name: "just_inside_lower", v: 20001, want: true},
		{name: "just_inside_upper", v: 99999, want: true},
		{name: "upper_bound_excluded", v: 100000, want: false},
		{name: "ordinary_number", v: 300, want: false},
		{name: "negative", v: -45000, want: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := IsExcelSerial(tc.v); got != tc.want {
				t.Fatalf("IsExcelSerial(%v)=%v, want %v", tc.v, got, tc.want)
			}
		})
	}
}

// TestFromExcelSerial verifies epoch arithmetic against known dates.
func TestFromExcelSerial(t *testing.T) {
	t.Parallel()

	// Serial 45292 is 2024-01-01 in the 1900 date system.
	got, ok := FromExcelSerial(45292)
	if !ok {
		t.Fatalf("FromExcelSerial(45292) not ok")
	}
	want := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("FromExcelSerial(45292)=%v, want %v", got, want)
	}

	if _, ok := FromExcelSerial(100); ok {
		t.Fatalf("FromExcelSerial(100) ok, want out-of-range rejection")
	}
}

// TestDatasetAccessors verifies column lookups over rows with nulls and
// mixed kinds.
func TestDatasetAccessors(t *testing.T) {
	t.Parallel()

	ds := &Dataset{
		Columns: []string{"name", "salary"},
		Rows: []Row{
			{"name": Text("a"), "salary": Number(100)},
			{"name": Text("b"), "salary": Null()},
			{"name": Text("c"), "salary": Number(200)},
		},
	}

	if ds.RowCount() != 3 || ds.ColumnCount() != 2 {
		t.Fatalf("counts=(%d,%d), want (3,2)", ds.RowCount(), ds.ColumnCount())
	}
	if !ds.HasColumn("salary") || ds.HasColumn("bonus") {
		t.Fatalf("HasColumn misreported")
	}
	if got := len(ds.ColumnValues("salary")); got != 3 {
		t.Fatalf("ColumnValues len=%d, want 3 (nulls included)", got)
	}

	nums := ds.NumericValues("salary")
	if len(nums) != 2 || nums[0] != 100 || nums[1] != 200 {
		t.Fatalf("NumericValues=%v, want [100 200]", nums)
	}
}

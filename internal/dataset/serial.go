package dataset

import "time"

// Spreadsheet serial dates are detected by numeric range. The bounds are
// exclusive: 20000 and 100000 themselves are never converted. The range
// covers roughly 1954 through 2173, which is what Excel-originated date
// columns produce in practice.
const (
	serialDateMin = 20000
	serialDateMax = 100000
)

// excelEpoch is day zero of the 1900 date system as Excel actually
// implements it (the epoch is shifted two days to absorb the leap-year-1900
// bug plus one-based counting).
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// IsExcelSerial reports whether v falls in the heuristic serial-date range.
func IsExcelSerial(v float64) bool {
	return v > serialDateMin && v < serialDateMax
}

// FromExcelSerial converts a spreadsheet serial number to a date.
// ok is false when v is outside the heuristic range; callers must then keep
// the value numeric.
func FromExcelSerial(v float64) (time.Time, bool) {
	if !IsExcelSerial(v) {
		return time.Time{}, false
	}
	return excelEpoch.AddDate(0, 0, int(v)), true
}

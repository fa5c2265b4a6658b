package analyze

import (
	"fmt"
	"math"
)

// Insight phrase templates, bucketed by correlation magnitude. The weak
// bucket is unreachable through the reporting filter but kept so the
// generator is total over [-1, 1].
var (
	weakTemplates = []string{
		"Minimal linear relationship between %[1]s and %[2]s (r=%[3]s).",
		"Analysis suggests %[1]s and %[2]s operate independently (r=%[3]s).",
		"No significant correlation found between %[1]s and %[2]s (r=%[3]s).",
		"%[1]s does not appear to be a strong driver of %[2]s (r=%[3]s).",
	}
	strongTemplates = []string{
		"Strong %[4]s relationship between %[1]s and %[2]s (r=%[3]s).",
		"%[1]s is a significant indicator of %[2]s (r=%[3]s).",
		"Data correlation patterns link %[1]s closely with %[2]s (r=%[3]s).",
	}
	moderateTemplates = []string{
		"Moderate %[4]s correlation between %[1]s and %[2]s (r=%[3]s).",
	}
)

// insightFor renders the templated sentence for a correlated pair.
//
// Template choice within a bucket is deterministic: the index is
// (len(a) + len(b) + round(r*100)) mod the bucket size, with a Python
// style non-negative modulo so negative correlations stay in range.
// The same pair and value always produce the same sentence.
func insightFor(a, b string, r float64) string {
	var templates []string
	switch abs := math.Abs(r); {
	case abs > strongThreshold:
		templates = strongTemplates
	case abs < corrThreshold:
		templates = weakTemplates
	default:
		templates = moderateTemplates
	}

	idx := mod(len(a)+len(b)+int(math.Round(r*100)), len(templates))

	dir := "negative"
	if r > 0 {
		dir = "positive"
	}
	return fmt.Sprintf(templates[idx], a, b, fmt.Sprintf("%.2f", r), dir)
}

// mod is the floored modulo: the result takes the sign of n, never of x.
func mod(x, n int) int {
	return ((x % n) + n) % n
}

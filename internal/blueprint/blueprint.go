// Package blueprint is the boundary with the chart-recommendation
// collaborator: it builds the analysis prompt from a dataset snippet,
// parses the collaborator's JSON reply into a validated Blueprint, and
// substitutes a safe fallback when the reply is unusable.
//
// Parse failures never propagate past this package. A provider that
// returns garbage degrades the request to the fallback blueprint; it
// does not fail it.
package blueprint

import (
	"encoding/json"
	"fmt"
	"strings"

	"insight/internal/chart"
	"insight/internal/dataset"
)

// maxBullets caps the narrative summary length.
const maxBullets = 3

// validChartTypes is the accepted chart-type vocabulary. A blueprint
// recommending anything else fails validation as a whole.
var validChartTypes = map[string]bool{
	"bar": true, "line": true, "area": true, "pie": true,
	"scatter": true, "heatmap": true, "boxplot": true,
	"radar": true, "waterfall": true,
}

// Blueprint is the collaborator's analysis plan for one dataset.
type Blueprint struct {
	Domain       string       `json:"domain"`
	PrimaryGrain string       `json:"primary_grain"`
	TimeGrain    string       `json:"time_grain,omitempty"`
	Numeric      []string     `json:"numeric_columns"`
	Categorical  []string     `json:"categorical_columns"`
	Charts       []chart.Spec `json:"recommended_charts"`
	Insight      string       `json:"summary_insight"`
}

// Fallback returns the safe default blueprint used when the
// collaborator's reply cannot be parsed or validated.
func Fallback() *Blueprint {
	return &Blueprint{
		Domain:       "General",
		PrimaryGrain: "Unknown",
		Numeric:      []string{},
		Categorical:  []string{},
		Charts:       []chart.Spec{},
		Insight:      "AI analysis failed. Using raw data view.",
	}
}

// Parse extracts a Blueprint from the collaborator's raw reply,
// tolerating a markdown code fence around the JSON. The error return is
// for the caller's log line; callers substitute Fallback() on error.
func Parse(raw string) (*Blueprint, error) {
	clean := stripFences(raw)

	var bp Blueprint
	if err := json.Unmarshal([]byte(clean), &bp); err != nil {
		return nil, fmt.Errorf("parse blueprint: %w (reply: %.200s)", err, clean)
	}
	if err := bp.validate(); err != nil {
		return nil, err
	}

	if bp.Numeric == nil {
		bp.Numeric = []string{}
	}
	if bp.Categorical == nil {
		bp.Categorical = []string{}
	}
	if bp.Charts == nil {
		bp.Charts = []chart.Spec{}
	}
	return &bp, nil
}

func (bp *Blueprint) validate() error {
	if bp.Domain == "" {
		return fmt.Errorf("blueprint missing domain")
	}
	for _, c := range bp.Charts {
		t := strings.ToLower(strings.TrimSpace(c.Type))
		if !validChartTypes[t] {
			return fmt.Errorf("blueprint chart %q has unknown type %q", c.Title, c.Type)
		}
		if c.XCol == "" {
			return fmt.Errorf("blueprint chart %q missing x axis column", c.Title)
		}
	}
	return nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// StructurePrompt renders the dataset snippet the collaborator sees:
// filename, column names, inferred storage types, and the first rows as
// CSV text. Never the full data.
func StructurePrompt(ds *dataset.Dataset, filename string, sampleRows int) string {
	if sampleRows <= 0 {
		sampleRows = 5
	}

	types := make([]string, 0, len(ds.Columns))
	for _, c := range ds.Columns {
		types = append(types, fmt.Sprintf("%s=%s", c, columnKind(ds, c)))
	}

	var sample strings.Builder
	sample.WriteString(strings.Join(ds.Columns, ","))
	sample.WriteByte('\n')
	for i, row := range ds.Rows {
		if i == sampleRows {
			break
		}
		cells := make([]string, 0, len(ds.Columns))
		for _, c := range ds.Columns {
			cells = append(cells, row[c].Display())
		}
		sample.WriteString(strings.Join(cells, ","))
		sample.WriteByte('\n')
	}

	return fmt.Sprintf(`You are a Data Architect. Analyze this dataset snippet and define the analysis plan.

FILENAME: %s
COLUMNS: %s
TYPES: %s
SAMPLE DATA:
%s
CRITICAL RULES:
1. Identify the Domain (HR, Sales, etc.).
2. Identify the Primary Grain (e.g., 'EmployeeID' is better than 'LastName').
3. Never group by high-cardinality names (like 'LastName') for distribution charts. Use 'Department', 'Role', or 'Region'.
4. For Trends, use the primary Date column.
5. For Correlations, use ONLY numeric columns (ignore IDs/Dates).

RESPONSE FORMAT:
Return a valid JSON object with fields: domain, primary_grain, time_grain, numeric_columns, categorical_columns, recommended_charts, summary_insight.
Example chart: { "chart_type": "bar", "x_axis_col": "Department", "y_axis_col": "Year_Salary", "title": "Salary by Dept", "reasoning": "..." }
Respond with valid JSON only.`,
		filename, strings.Join(ds.Columns, ", "), strings.Join(types, ", "), sample.String())
}

// ChatPrompt renders the question-answering prompt: column names, a
// statistical summary, and the user's question. The collaborator never
// sees raw rows.
func ChatPrompt(columns []string, statsSummary, question string) string {
	return fmt.Sprintf(`You are a Data Analyst Assistant.
A user is asking a question about a dataset they just uploaded.

DATA METADATA:
- Columns: %s
- Statistical Summary:
%s

USER QUESTION: %q

INSTRUCTIONS:
- Answer based ONLY on the summary stats above.
- If the user asks for specific row details you can't see, explain that you only see the summary statistics.
- Be concise, professional, and helpful.`,
		strings.Join(columns, ", "), statsSummary, question)
}

// Bullets splits free provider text into at most maxBullets lines,
// stripping leading list markup. Blank lines are dropped.
func Bullets(text string) []string {
	out := make([]string, 0, maxBullets)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-* "))
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) == maxBullets {
			break
		}
	}
	return out
}

func columnKind(ds *dataset.Dataset, col string) string {
	for _, row := range ds.Rows {
		if v := row[col]; !v.IsNull() {
			return v.Kind().String()
		}
	}
	return "null"
}

// Package domain labels a dataset's business domain from its column names.
//
// Classification is purely lexical: each domain owns a fixed keyword list,
// and the score is the number of (keyword, header) pairs where the keyword
// is a substring of the header. No data values are inspected.
package domain

import "strings"

// Domain labels. General is the fallback when no domain reaches the
// minimum-evidence threshold.
const (
	Finance   = "finance"
	HR        = "hr"
	Education = "education"
	Biology   = "biology"
	General   = "general"
)

// minScore is the minimum-evidence threshold: below it the classifier
// refuses to guess and returns General.
const minScore = 2

// domainOrder fixes the tie-break: the first domain in this order
// achieving the maximum score wins. The order is part of the contract —
// reordering changes classification of tied datasets.
var domainOrder = []string{Finance, HR, Education, Biology}

// keywords maps each domain to its indicator terms. The tables are
// immutable and loaded once at process start.
var keywords = map[string][]string{
	Finance: {
		"revenue", "profit", "expense", "budget", "cost", "price",
		"amount", "balance", "transaction", "invoice", "payment",
		"credit", "debit", "tax", "gross", "net", "margin",
	},
	HR: {
		"employee", "salary", "department", "hire", "manager",
		"position", "title", "role", "team", "staff", "worker",
		"performance", "review", "tenure", "payroll", "benefits",
	},
	Education: {
		"student", "grade", "course", "teacher", "class",
		"subject", "score", "exam", "semester", "enrollment",
		"gpa", "attendance", "curriculum", "academic",
	},
	Biology: {
		"gene", "protein", "cell", "species", "dna", "rna",
		"sequence", "mutation", "organism", "sample", "experiment",
		"concentration", "ph", "assay", "culture",
	},
}

// Classify scores the header set against every domain's keyword list and
// returns the best label, or General when there are no headers or the best
// score is below the evidence threshold.
func Classify(headers []string) string {
	if len(headers) == 0 {
		return General
	}

	lowered := make([]string, len(headers))
	for i, h := range headers {
		lowered[i] = strings.ToLower(h)
	}

	best, bestScore := General, 0
	for _, d := range domainOrder {
		s := score(lowered, keywords[d])
		if s > bestScore {
			best, bestScore = d, s
		}
	}

	if bestScore < minScore {
		return General
	}
	return best
}

// score counts keyword/header substring hits. A header matching several
// keywords counts once per keyword, and a keyword matching several headers
// counts once per header.
func score(headers, kws []string) int {
	n := 0
	for _, kw := range kws {
		for _, h := range headers {
			if strings.Contains(h, kw) {
				n++
			}
		}
	}
	return n
}

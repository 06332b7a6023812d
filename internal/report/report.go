// Package report merges structural, notation and consistency findings into one validation report.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Caia-Tech/caia-quizcheck/internal/consistency"
	"github.com/Caia-Tech/caia-quizcheck/internal/notation"
	"github.com/Caia-Tech/caia-quizcheck/internal/validation"
	"github.com/Caia-Tech/caia-quizcheck/pkg/question"
)

// Status classifies a question or a whole report
type Status string

const (
	StatusValid   Status = "valid"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

// QuestionReport holds every finding for one question
type QuestionReport struct {
	Index          int                         `json:"index"`
	Label          string                      `json:"label"`
	Kind           question.Kind               `json:"type"`
	Status         Status                      `json:"status"`
	Issues         []validation.Issue          `json:"issues"`
	Corrections    []notation.Correction       `json:"corrections"`
	Contradictions []consistency.Contradiction `json:"contradictions"`
}

// Totals are the roll-up counts of a report
type Totals struct {
	Questions          int `json:"questions"`
	Valid              int `json:"valid"`
	Warning            int `json:"warning"`
	Error              int `json:"error"`
	StructuralErrors   int `json:"structural_errors"`
	StructuralWarnings int `json:"structural_warnings"`
	Corrections        int `json:"corrections"`
	Contradictions     int `json:"contradictions"`
}

// ValidationReport is created fresh for every run
type ValidationReport struct {
	Status                   Status                       `json:"status"`
	Questions                []QuestionReport             `json:"questions"`
	Totals                   Totals                       `json:"totals"`
	CorrectionsByRule        map[string]int               `json:"corrections_by_rule"`
	ContradictionsBySeverity map[consistency.Severity]int `json:"contradictions_by_severity"`
	// Unattributed collects findings whose question index is outside the set
	Unattributed []validation.Issue `json:"unattributed,omitempty"`
}

// Build aggregates findings per question. corrections is indexed by question position.
// Every question of the set appears in the report whatever its status.
func Build(set *question.QuestionSet, issues []validation.Issue, corrections [][]notation.Correction, contradictions []consistency.Contradiction) *ValidationReport {
	r := &ValidationReport{
		Questions:                make([]QuestionReport, set.Len()),
		CorrectionsByRule:        make(map[string]int),
		ContradictionsBySeverity: make(map[consistency.Severity]int),
	}
	for i := range r.Questions {
		q := set.Questions[i]
		r.Questions[i] = QuestionReport{
			Index:          i,
			Label:          q.Label(i),
			Kind:           q.Kind,
			Issues:         []validation.Issue{},
			Corrections:    []notation.Correction{},
			Contradictions: []consistency.Contradiction{},
		}
	}

	for _, issue := range issues {
		if issue.QuestionIndex < 0 || issue.QuestionIndex >= len(r.Questions) {
			r.Unattributed = append(r.Unattributed, issue)
		} else {
			qr := &r.Questions[issue.QuestionIndex]
			qr.Issues = append(qr.Issues, issue)
		}
		if issue.Severity == validation.SeverityError {
			r.Totals.StructuralErrors++
		} else {
			r.Totals.StructuralWarnings++
		}
	}
	for i, list := range corrections {
		if i >= len(r.Questions) {
			break
		}
		for _, c := range list {
			r.Questions[i].Corrections = append(r.Questions[i].Corrections, c)
			r.CorrectionsByRule[c.RuleID] += c.Count
			r.Totals.Corrections += c.Count
		}
	}
	for _, c := range contradictions {
		if c.QuestionIndex < 0 || c.QuestionIndex >= len(r.Questions) {
			continue
		}
		qr := &r.Questions[c.QuestionIndex]
		qr.Contradictions = append(qr.Contradictions, c)
		r.ContradictionsBySeverity[c.Severity]++
		r.Totals.Contradictions++
	}

	r.Totals.Questions = len(r.Questions)
	for i := range r.Questions {
		qr := &r.Questions[i]
		qr.Status = classify(qr)
		switch qr.Status {
		case StatusError:
			r.Totals.Error++
		case StatusWarning:
			r.Totals.Warning++
		default:
			r.Totals.Valid++
		}
	}

	switch {
	case r.Totals.Error > 0 || validation.HasErrors(r.Unattributed):
		r.Status = StatusError
	case r.Totals.Warning > 0 || len(r.Unattributed) > 0:
		r.Status = StatusWarning
	default:
		r.Status = StatusValid
	}
	return r
}

func classify(qr *QuestionReport) Status {
	if validation.HasErrors(qr.Issues) {
		return StatusError
	}
	if len(qr.Issues) > 0 || len(qr.Corrections) > 0 || len(qr.Contradictions) > 0 {
		return StatusWarning
	}
	return StatusValid
}

// Summary describes the report in plain language
func (r *ValidationReport) Summary() string {
	var b strings.Builder
	t := r.Totals

	fmt.Fprintf(&b, "%s checked: %d valid, %d with warnings, %d with errors.",
		plural(t.Questions, "question"), t.Valid, t.Warning, t.Error)

	var details []string
	if t.StructuralErrors > 0 {
		details = append(details, plural(t.StructuralErrors, "structural error"))
	}
	if t.StructuralWarnings > 0 {
		details = append(details, plural(t.StructuralWarnings, "structural warning"))
	}
	if t.Corrections > 0 {
		details = append(details, fmt.Sprintf("%s (%s)", plural(t.Corrections, "notation fix"), r.topRules(3)))
	}
	if t.Contradictions > 0 {
		details = append(details, fmt.Sprintf("%s (%s)", plural(t.Contradictions, "numeric contradiction"), r.severities()))
	}
	if len(details) > 0 {
		b.WriteString(" Found ")
		b.WriteString(strings.Join(details, ", "))
		b.WriteString(".")
	}

	for _, qr := range r.Questions {
		for _, issue := range qr.Issues {
			if issue.Severity == validation.SeverityError {
				b.WriteString("\n- ")
				b.WriteString(issue.Message)
			}
		}
	}
	return b.String()
}

// Corrections returns every correction across the report with its question index
func (r *ValidationReport) Corrections() map[int][]notation.Correction {
	out := make(map[int][]notation.Correction)
	for _, qr := range r.Questions {
		if len(qr.Corrections) > 0 {
			out[qr.Index] = qr.Corrections
		}
	}
	return out
}

func (r *ValidationReport) topRules(n int) string {
	type kv struct {
		rule  string
		count int
	}
	var rules []kv
	for rule, count := range r.CorrectionsByRule {
		rules = append(rules, kv{rule, count})
	}
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].count != rules[j].count {
			return rules[i].count > rules[j].count
		}
		return rules[i].rule < rules[j].rule
	})
	if len(rules) > n {
		rules = rules[:n]
	}
	parts := make([]string, len(rules))
	for i, r := range rules {
		parts[i] = fmt.Sprintf("%s ×%d", r.rule, r.count)
	}
	return strings.Join(parts, ", ")
}

func (r *ValidationReport) severities() string {
	var parts []string
	for _, s := range []consistency.Severity{consistency.SeveritySevere, consistency.SeverityMajor, consistency.SeverityMinor} {
		if n := r.ContradictionsBySeverity[s]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, s))
		}
	}
	return strings.Join(parts, ", ")
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	if strings.HasSuffix(noun, "x") {
		return fmt.Sprintf("%d %ses", n, noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

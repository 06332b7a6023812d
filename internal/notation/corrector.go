// Package notation rewrites malformed math markup in question text into canonical form.
package notation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Caia-Tech/caia-quizcheck/pkg/question"
	"github.com/rs/zerolog/log"
)

// maxPasses bounds how often the rule table is re-run while it still changes the text
const maxPasses = 4

// Correction is one applied rule on one field
type Correction struct {
	RuleID      string `json:"rule"`
	Description string `json:"description"`
	Count       int    `json:"count"`
	Field       string `json:"field,omitempty"`
}

// Corrector applies an ordered rule table. It holds no mutable state and is safe for concurrent use.
type Corrector struct {
	rules []Rule
}

// NewCorrector creates a corrector with the given rules, or DefaultRules when rules is nil
func NewCorrector(rules []Rule) *Corrector {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Corrector{rules: append([]Rule(nil), rules...)}
}

// Rules returns a copy of the rule table in application order
func (c *Corrector) Rules() []Rule {
	return append([]Rule(nil), c.rules...)
}

// Correct rewrites text and reports which rules fired and how often. Rules feed each other in
// table order; the table is re-run until it no longer changes anything, so correcting the result
// again is a no-op.
func (c *Corrector) Correct(text string) (string, []Correction) {
	counts := make(map[string]int)
	order := []string{}
	byID := make(map[string]Rule, len(c.rules))

	for pass := 0; pass < maxPasses; pass++ {
		changed := false
		for _, rule := range c.rules {
			after, n := rule.apply(text)
			if n == 0 {
				continue
			}
			if _, seen := counts[rule.ID]; !seen {
				order = append(order, rule.ID)
				byID[rule.ID] = rule
			}
			counts[rule.ID] += n
			text = after
			changed = true
		}
		if !changed {
			break
		}
	}

	corrections := make([]Correction, 0, len(order))
	for _, id := range order {
		corrections = append(corrections, Correction{
			RuleID:      id,
			Description: byID[id].Description,
			Count:       counts[id],
		})
	}
	return text, corrections
}

// CorrectQuestion corrects every text-bearing field of q and tags each correction with its field.
// The declared answer is only touched for kinds whose answer is free text.
func (c *Corrector) CorrectQuestion(q question.Question) (question.Question, []Correction) {
	out := q.Clone()
	var all []Correction
	fix := func(field string, value *string) {
		if *value == "" {
			return
		}
		corrected, corrections := c.Correct(*value)
		*value = corrected
		for _, corr := range corrections {
			corr.Field = field
			all = append(all, corr)
		}
	}

	fix("title", &out.Title)
	fix("question_text", &out.PromptText)
	for i := range out.Choices {
		fix(fmt.Sprintf("choices[%d]", i), &out.Choices[i])
	}
	for i := range out.Pairs {
		fix(fmt.Sprintf("pairs[%d].left", i), &out.Pairs[i].Left)
		fix(fmt.Sprintf("pairs[%d].right", i), &out.Pairs[i].Right)
	}
	if out.Kind.HasTextAnswer() {
		fix("correct_answer", &out.DeclaredAnswer)
	}
	fix("feedback_correct", &out.FeedbackCorrect)
	fix("feedback_incorrect", &out.FeedbackIncorrect)

	return out, all
}

// CorrectSet corrects a copy of the set; the result is indexed by question position
func (c *Corrector) CorrectSet(set *question.QuestionSet) (*question.QuestionSet, [][]Correction) {
	out := set.Clone()
	if out == nil {
		return nil, nil
	}
	perQuestion := make([][]Correction, len(out.Questions))
	total := 0
	for i, q := range out.Questions {
		out.Questions[i], perQuestion[i] = c.CorrectQuestion(q)
		total += len(perQuestion[i])
	}

	log.Debug().
		Int("questions", len(out.Questions)).
		Int("corrections", total).
		Msg("Corrected question notation")

	return out, perQuestion
}

// apply runs one rule once over text and returns how many occurrences it actually changed
func (r Rule) apply(text string) (string, int) {
	if len(r.Literals) > 0 {
		return replaceLiterals(text, r.Literals, r.Markup)
	}
	if r.Pattern == nil {
		return text, 0
	}
	matches := r.Pattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text, 0
	}

	var b strings.Builder
	b.Grow(len(text) + 16)
	last, count := 0, 0
	for _, m := range matches {
		original := text[m[0]:m[1]]
		if r.Accept != nil && !r.Accept(text, m) {
			continue
		}
		var replacement string
		if r.Rewrite != nil {
			groups := make([]string, len(m)/2)
			for g := range groups {
				if m[2*g] >= 0 {
					groups[g] = text[m[2*g]:m[2*g+1]]
				}
			}
			replacement = r.Rewrite(groups)
		} else {
			replacement = string(r.Pattern.ExpandString(nil, r.Replacement, text, m))
		}
		b.WriteString(text[last:m[0]])
		b.WriteString(replacement)
		last = m[1]
		if replacement != original {
			count++
		}
	}
	if count == 0 {
		return text, 0
	}
	b.WriteString(text[last:])
	return b.String(), count
}

type mathMode int

const (
	mathNone mathMode = iota
	mathParen
	mathBracket
	mathDollar
	mathDoubleDollar
)

// replaceLiterals swaps raw special characters for markup. Outside math the markup is wrapped in
// \( \); inside math a space separates it from a following letter.
func replaceLiterals(text string, literals []string, markup string) (string, int) {
	found := false
	for _, lit := range literals {
		if strings.Contains(text, lit) {
			found = true
			break
		}
	}
	if !found {
		return text, 0
	}

	var b strings.Builder
	b.Grow(len(text) + 16)
	mode := mathNone
	count := 0
	for i := 0; i < len(text); {
		if n := mode.step(text[i:]); n > 0 {
			b.WriteString(text[i : i+n])
			i += n
			continue
		}

		if lit := literalAt(text[i:], literals); lit != "" {
			count++
			i += len(lit)
			if mode == mathNone {
				b.WriteString(`\(` + markup + `\)`)
				continue
			}
			b.WriteString(markup)
			if next, _ := utf8.DecodeRuneInString(text[i:]); isLetter(next) {
				b.WriteByte(' ')
			}
			continue
		}
		b.WriteByte(text[i])
		i++
	}
	return b.String(), count
}

// step consumes a math delimiter or an escape pair at the start of s, updates the mode and
// returns the bytes consumed. It returns 0 for any other byte.
func (mode *mathMode) step(s string) int {
	if s[0] == '\\' && len(s) > 1 {
		switch s[1] {
		case '(':
			if *mode == mathNone {
				*mode = mathParen
			}
		case ')':
			if *mode == mathParen {
				*mode = mathNone
			}
		case '[':
			if *mode == mathNone {
				*mode = mathBracket
			}
		case ']':
			if *mode == mathBracket {
				*mode = mathNone
			}
		}
		return 2
	}
	if strings.HasPrefix(s, "$$") {
		switch *mode {
		case mathNone:
			*mode = mathDoubleDollar
		case mathDoubleDollar:
			*mode = mathNone
		}
		return 2
	}
	if s[0] == '$' {
		switch *mode {
		case mathNone:
			*mode = mathDollar
		case mathDollar:
			*mode = mathNone
		}
		return 1
	}
	return 0
}

// mathModeAt reports the math mode in effect at byte offset pos
func mathModeAt(text string, pos int) mathMode {
	mode := mathNone
	for i := 0; i < pos; {
		if n := mode.step(text[i:]); n > 0 {
			i += n
			continue
		}
		i++
	}
	return mode
}

func literalAt(s string, literals []string) string {
	for _, lit := range literals {
		if strings.HasPrefix(s, lit) {
			return lit
		}
	}
	return ""
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// Package consistency cross-checks declared numerical answers against values in the worked feedback.
package consistency

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/Caia-Tech/caia-quizcheck/pkg/question"
	"github.com/rs/zerolog/log"
)

const (
	// constantTolerance is how close a literal must be to a known constant to be skipped
	constantTolerance = 1e-9
	// rescanWindow bounds the search for a value after an excluded number
	rescanWindow = 40
)

var numberRegex = regexp.MustCompile(numberExpr)

// Contradiction is a value in the feedback that disagrees with the declared answer
type Contradiction struct {
	QuestionIndex     int      `json:"question_index"`
	DeclaredValue     float64  `json:"declared_value"`
	FoundValue        float64  `json:"found_value"`
	PercentDifference float64  `json:"percent_difference"`
	Severity          Severity `json:"severity"`
	Pattern           string   `json:"pattern"`
	Context           string   `json:"context"`
}

func (c Contradiction) String() string {
	return fmt.Sprintf("question %d: declared %g but feedback shows %g (%.1f%%, %s)",
		c.QuestionIndex+1, c.DeclaredValue, c.FoundValue, c.PercentDifference, c.Severity)
}

// Detector applies an immutable Config; it is safe for concurrent use
type Detector struct {
	config Config
}

// NewDetector creates a detector. Missing patterns or constants fall back to the defaults.
func NewDetector(config Config) *Detector {
	if config.Patterns == nil {
		config.Patterns = DefaultPatterns()
	}
	if config.KnownConstants == nil {
		config.KnownConstants = DefaultKnownConstants()
	}
	config.Patterns = append([]Pattern(nil), config.Patterns...)
	config.KnownConstants = append([]float64(nil), config.KnownConstants...)
	return &Detector{config: config}
}

// Config returns a copy of the detector's configuration
func (d *Detector) Config() Config {
	c := d.config
	c.Patterns = append([]Pattern(nil), d.config.Patterns...)
	c.KnownConstants = append([]float64(nil), d.config.KnownConstants...)
	return c
}

// Detect scans the correct-answer feedback of every numerical question
func (d *Detector) Detect(set *question.QuestionSet) []Contradiction {
	var found []Contradiction
	if set == nil {
		return found
	}
	for i, q := range set.Questions {
		found = append(found, d.DetectQuestion(i, q)...)
	}

	log.Debug().
		Int("questions", set.Len()).
		Int("contradictions", len(found)).
		Msg("Checked numerical consistency")

	return found
}

// DetectQuestion checks one question; anything but a numerical question with feedback yields nothing
func (d *Detector) DetectQuestion(index int, q question.Question) []Contradiction {
	if q.Kind != question.KindNumerical || strings.TrimSpace(q.FeedbackCorrect) == "" {
		return nil
	}
	declared, err := q.NumericAnswer()
	if err != nil || declared == 0 {
		// relative difference is undefined for a zero answer
		return nil
	}

	text := q.FeedbackCorrect
	seen := make(map[float64]bool)
	var found []Contradiction

	for _, p := range d.config.Patterns {
		for _, m := range p.Expr.FindAllStringSubmatchIndex(text, -1) {
			expr := p.Expr
			if p.Exclude != nil && p.Exclude.MatchString(text[m[1]:]) {
				// "rounding to 2 decimal places gives 0.81": the value follows the excluded number
				if m = rescan(p, text, m[1]); m == nil {
					continue
				}
				expr = numberRegex
			}
			value, ok := extractValue(expr, text, m)
			if !ok || seen[value] {
				continue
			}
			if d.skip(value, declared, mantissa(expr, text, m)) {
				seen[value] = true
				continue
			}
			seen[value] = true

			diff := math.Abs(value-declared) / math.Abs(declared) * 100
			if diff <= d.config.ThresholdPercent {
				continue
			}
			found = append(found, Contradiction{
				QuestionIndex:     index,
				DeclaredValue:     declared,
				FoundValue:        value,
				PercentDifference: diff,
				Severity:          d.severity(diff),
				Pattern:           p.Tag,
				Context:           snippet(text, m[0], m[1], d.config.ContextRadius),
			})
		}
	}
	return found
}

func (d *Detector) skip(value, declared float64, mantissa float64) bool {
	if math.Abs(value-declared) <= d.config.EqualityTolerance {
		return true
	}
	for _, c := range d.config.KnownConstants {
		if math.Abs(value-c) <= constantTolerance || math.Abs(mantissa-c) <= constantTolerance {
			return true
		}
	}
	return math.Abs(value) < d.config.MinMagnitude
}

func (d *Detector) severity(diff float64) Severity {
	switch {
	case diff <= d.config.MinorLimit:
		return SeverityMinor
	case diff <= d.config.MajorLimit:
		return SeverityMajor
	}
	return SeveritySevere
}

// rescan looks for the first standalone number after from, on the same line and within
// rescanWindow bytes, that the pattern does not exclude. The indexes are relative to text.
func rescan(p Pattern, text string, from int) []int {
	end := from + rescanWindow
	if end > len(text) {
		end = len(text)
	}
	if nl := strings.IndexByte(text[from:end], '\n'); nl >= 0 {
		end = from + nl
	}
	for from < end {
		loc := numberRegex.FindStringSubmatchIndex(text[from:end])
		if loc == nil {
			return nil
		}
		for i := range loc {
			if loc[i] >= 0 {
				loc[i] += from
			}
		}
		if standalone(numberRegex, text, loc) && !p.Exclude.MatchString(text[loc[1]:]) {
			return loc
		}
		from = loc[1]
	}
	return nil
}

func group(expr *regexp.Regexp, text string, m []int, name string) string {
	idx := expr.SubexpIndex(name)
	if idx < 0 || 2*idx+1 >= len(m) || m[2*idx] < 0 {
		return ""
	}
	return text[m[2*idx]:m[2*idx+1]]
}

// standalone rejects numbers glued to a preceding identifier or number, like the 2 of R2
func standalone(expr *regexp.Regexp, text string, m []int) bool {
	idx := expr.SubexpIndex("value")
	if idx < 0 || m[2*idx] <= 0 {
		return true
	}
	start := m[2*idx]
	prev := text[start-1]
	switch {
	case isWordByte(prev):
		return false
	case prev == '.' && start >= 2 && text[start-2] >= '0' && text[start-2] <= '9':
		return false
	}
	return true
}

func isWordByte(c byte) bool {
	return c == '_' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// literal drops thousands separators from a mantissa
func literal(expr *regexp.Regexp, text string, m []int) string {
	return strings.ReplaceAll(group(expr, text, m, "mantissa"), ",", "")
}

// mantissa returns the literal before any exponent, or NaN when there is no exponent
func mantissa(expr *regexp.Regexp, text string, m []int) float64 {
	if group(expr, text, m, "exp") == "" && group(expr, text, m, "sci") == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(literal(expr, text, m), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

func extractValue(expr *regexp.Regexp, text string, m []int) (float64, bool) {
	base := literal(expr, text, m)
	if base == "" || !standalone(expr, text, m) {
		return 0, false
	}
	if sci := group(expr, text, m, "sci"); sci != "" {
		v, err := strconv.ParseFloat(base+sci, 64)
		return v, err == nil
	}
	v, err := strconv.ParseFloat(base, 64)
	if err != nil {
		return 0, false
	}
	if exp := group(expr, text, m, "exp"); exp != "" {
		n, err := strconv.Atoi(strings.Replace(exp, "−", "-", 1))
		if err != nil {
			return 0, false
		}
		v *= math.Pow(10, float64(n))
	}
	return v, true
}

// snippet returns up to radius bytes of context on each side, cut on rune boundaries
func snippet(text string, start, end, radius int) string {
	from := start - radius
	if from < 0 {
		from = 0
	}
	for from > 0 && !utf8.RuneStart(text[from]) {
		from--
	}
	to := end + radius
	if to > len(text) {
		to = len(text)
	}
	for to < len(text) && !utf8.RuneStart(text[to]) {
		to++
	}
	s := strings.Join(strings.Fields(text[from:to]), " ")
	if from > 0 {
		s = "…" + s
	}
	if to < len(text) {
		s += "…"
	}
	return s
}

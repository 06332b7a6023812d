package validation

import (
	"fmt"
	"strings"

	"github.com/Caia-Tech/caia-quizcheck/pkg/question"
	"github.com/rs/zerolog/log"
)

// Severity grades a structural issue
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one structural finding on one field of one question
type Issue struct {
	QuestionIndex int      `json:"question_index"`
	Field         string   `json:"field"`
	Message       string   `json:"message"`
	Severity      Severity `json:"severity"`
}

// Config holds the cardinality conventions checked per question
type Config struct {
	ExpectedChoices  int `json:"expected_choices" yaml:"expected_choices"`
	MinPairs         int `json:"min_pairs" yaml:"min_pairs"`
	MinOrderingItems int `json:"min_ordering_items" yaml:"min_ordering_items"`
}

// DefaultConfig returns the conventions used for generated quizzes
func DefaultConfig() Config {
	return Config{
		ExpectedChoices:  question.ExpectedChoices,
		MinPairs:         2,
		MinOrderingItems: 2,
	}
}

// requiredFields lists what each kind needs beyond its type
var requiredFields = map[question.Kind][]string{
	question.KindMultipleChoice: {"choices", "correct_answer"},
	question.KindTrueFalse:      {"correct_answer"},
	question.KindNumerical:      {"correct_answer"},
	question.KindShortAnswer:    {"correct_answer"},
	question.KindFillBlank:      {"correct_answer"},
	question.KindMatching:       {"pairs"},
	question.KindOrdering:       {"choices"},
	question.KindEssay:          {},
}

// RequiredFields returns the kind-specific required fields, in check order
func RequiredFields(kind question.Kind) []string {
	return append([]string(nil), requiredFields[kind]...)
}

var fieldDescriptions = map[string]string{
	"type":           "question type",
	"question_text":  "question text",
	"choices":        "list of choices",
	"pairs":          "list of matching pairs",
	"correct_answer": "required answer field",
}

// Validator checks per-question fields against the kind table
type Validator struct {
	config Config
}

// NewValidator creates a validator; a zero Config falls back to the defaults
func NewValidator(config Config) *Validator {
	if config == (Config{}) {
		config = DefaultConfig()
	}
	return &Validator{config: config}
}

// ValidateStructure reports whether doc is a keyed collection with a non-empty questions list
func (v *Validator) ValidateStructure(doc any) bool {
	return ValidateStructure(doc)
}

// ValidateQuestions decodes every entry of an accepted document and reports field issues.
// The returned set keeps every entry, including ones that carry errors.
func (v *Validator) ValidateQuestions(doc map[string]any) (*question.QuestionSet, []Issue) {
	set, decodeProblems := question.DecodeSet(doc)
	items, _ := doc[ItemsKey].([]any)

	var issues []Issue
	for i, q := range set.Questions {
		for _, fe := range decodeProblems[i] {
			issues = append(issues, Issue{
				QuestionIndex: i,
				Field:         fe.Field,
				Message:       fmt.Sprintf("%s has an invalid %s: %s", q.Label(i), fe.Field, fe.Message),
				Severity:      SeverityError,
			})
		}
		if _, ok := items[i].(map[string]any); !ok {
			continue
		}
		reported := make(map[string]bool, len(decodeProblems[i]))
		for _, fe := range decodeProblems[i] {
			reported[fe.Field] = true
		}
		issues = append(issues, v.checkQuestion(i, q, reported)...)
	}

	log.Debug().
		Int("questions", set.Len()).
		Int("issues", len(issues)).
		Msg("Validated question fields")

	return set, issues
}

// ValidateQuestion checks a single decoded question. Fields are judged by their decoded values only.
func (v *Validator) ValidateQuestion(index int, q question.Question) []Issue {
	return v.checkQuestion(index, q, nil)
}

func (v *Validator) checkQuestion(i int, q question.Question, reported map[string]bool) []Issue {
	var issues []Issue
	add := func(field string, severity Severity, format string, args ...any) {
		issues = append(issues, Issue{
			QuestionIndex: i,
			Field:         field,
			Message:       fmt.Sprintf(format, args...),
			Severity:      severity,
		})
	}
	label := q.Label(i)
	missing := func(field string) {
		add(field, SeverityError, "%s is missing a %s (%s)", label, fieldDescriptions[field], field)
	}

	if q.Kind == "" {
		if !reported["type"] {
			missing("type")
		}
	} else if !q.Kind.Valid() {
		kinds := make([]string, 0, len(question.Kinds()))
		for _, k := range question.Kinds() {
			kinds = append(kinds, string(k))
		}
		add("type", SeverityError, "%s has unknown type %q; expected one of %s", label, q.Kind, strings.Join(kinds, ", "))
	}
	// missing prompt text is not fatal
	if strings.TrimSpace(q.PromptText) == "" && !reported["question_text"] {
		add("question_text", SeverityWarning, "%s has no question text", label)
	}
	if !q.Kind.Valid() {
		return issues
	}

	for _, field := range requiredFields[q.Kind] {
		// a field that failed to decode has already been reported
		if isEmpty(q, field) && !reported[field] {
			missing(field)
		}
	}

	switch q.Kind {
	case question.KindMultipleChoice:
		if n := len(q.Choices); n > 0 && n != v.config.ExpectedChoices {
			add("choices", SeverityWarning, "%s has %d choices; %d are expected", label, n, v.config.ExpectedChoices)
		}
		for c, choice := range q.Choices {
			if strings.TrimSpace(choice) == "" {
				add("choices", SeverityError, "%s has an empty choice (%s)", label, question.ChoiceLetter(c))
			}
		}
		if q.DeclaredAnswer != "" && len(q.Choices) > 0 {
			if _, ok := q.CorrectChoiceIndex(); !ok {
				add("correct_answer", SeverityWarning, "%s declares answer %q, which matches no choice", label, q.DeclaredAnswer)
			}
		}
	case question.KindTrueFalse:
		if q.DeclaredAnswer != "" {
			if _, err := q.BoolAnswer(); err != nil {
				add("correct_answer", SeverityError, "%s must declare true or false as its answer, not %q", label, q.DeclaredAnswer)
			}
		}
	case question.KindNumerical:
		if q.DeclaredAnswer != "" {
			if _, err := q.NumericAnswer(); err != nil {
				add("correct_answer", SeverityError, "%s must declare a number as its answer, not %q", label, q.DeclaredAnswer)
			}
		}
		if q.Tolerance < 0 {
			add("tolerance", SeverityWarning, "%s has a negative tolerance", label)
		}
	case question.KindMatching:
		if n := len(q.Pairs); n > 0 && n < v.config.MinPairs {
			add("pairs", SeverityError, "%s needs at least %d matching pairs, found %d", label, v.config.MinPairs, n)
		}
		for p, pair := range q.Pairs {
			if strings.TrimSpace(pair.Left) == "" || strings.TrimSpace(pair.Right) == "" {
				add("pairs", SeverityError, "%s has an incomplete matching pair (pair %d)", label, p+1)
			}
		}
	case question.KindOrdering:
		if n := len(q.Choices); n > 0 && n < v.config.MinOrderingItems {
			add("choices", SeverityError, "%s needs at least %d items to order, found %d", label, v.config.MinOrderingItems, n)
		}
	}

	if q.Points < 0 {
		add("points", SeverityWarning, "%s has negative points", label)
	}
	return issues
}

func isEmpty(q question.Question, field string) bool {
	switch field {
	case "choices":
		return len(q.Choices) == 0
	case "pairs":
		return len(q.Pairs) == 0
	case "correct_answer":
		return strings.TrimSpace(q.DeclaredAnswer) == ""
	}
	return false
}

// HasErrors reports whether any issue is an error
func HasErrors(issues []Issue) bool {
	for _, issue := range issues {
		if issue.Severity == SeverityError {
			return true
		}
	}
	return false
}

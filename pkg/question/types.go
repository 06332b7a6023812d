package question

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind is the declared question variant
type Kind string

const (
	KindMultipleChoice Kind = "multiple_choice"
	KindTrueFalse      Kind = "true_false"
	KindNumerical      Kind = "numerical"
	KindShortAnswer    Kind = "short_answer"
	KindEssay          Kind = "essay"
	KindMatching       Kind = "matching"
	KindOrdering       Kind = "ordering"
	KindFillBlank      Kind = "fill_blank"
)

// ExpectedChoices is the conventional number of options for a multiple choice question
const ExpectedChoices = 4

// Kinds lists every supported kind in display order
func Kinds() []Kind {
	return []Kind{
		KindMultipleChoice, KindTrueFalse, KindNumerical, KindShortAnswer,
		KindEssay, KindMatching, KindOrdering, KindFillBlank,
	}
}

// Valid reports whether k is a known kind
func (k Kind) Valid() bool {
	for _, known := range Kinds() {
		if k == known {
			return true
		}
	}
	return false
}

// HasTextAnswer reports whether the declared answer is free text (and may carry markup)
func (k Kind) HasTextAnswer() bool {
	switch k {
	case KindMultipleChoice, KindShortAnswer, KindFillBlank:
		return true
	}
	return false
}

// ParseKind maps loosely spelled kinds ("Multiple Choice", "multiple-choice", "mcq") onto a Kind.
// Unknown input is returned as-is so the validator can report it.
func ParseKind(s string) Kind {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("-", "_", " ", "_").Replace(norm)
	switch norm {
	case "multiple_choice", "multichoice", "mcq", "multiplechoice":
		return KindMultipleChoice
	case "true_false", "truefalse", "boolean", "tf":
		return KindTrueFalse
	case "numerical", "numeric", "number":
		return KindNumerical
	case "short_answer", "shortanswer", "short":
		return KindShortAnswer
	case "essay", "long_answer":
		return KindEssay
	case "matching", "match":
		return KindMatching
	case "ordering", "order", "sequence":
		return KindOrdering
	case "fill_blank", "fill_in_the_blank", "fill_in_blank", "cloze", "gap_fill":
		return KindFillBlank
	}
	return Kind(norm)
}

// MatchPair is one left/right association of a matching question
type MatchPair struct {
	Left  string `json:"left"`
	Right string `json:"right"`
}

// Metadata holds topic tags; the pipeline never interprets them
type Metadata struct {
	Topic      string   `json:"topic,omitempty"`
	Subtopic   string   `json:"subtopic,omitempty"`
	Difficulty string   `json:"difficulty,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

// Question is one assessment item
type Question struct {
	Kind              Kind        `json:"type"`
	Title             string      `json:"title,omitempty"`
	PromptText        string      `json:"question_text"`
	Choices           []string    `json:"choices,omitempty"`
	Pairs             []MatchPair `json:"pairs,omitempty"`
	DeclaredAnswer    string      `json:"correct_answer,omitempty"`
	FeedbackCorrect   string      `json:"feedback_correct,omitempty"`
	FeedbackIncorrect string      `json:"feedback_incorrect,omitempty"`
	Tolerance         float64     `json:"tolerance,omitempty"`
	Points            float64     `json:"points,omitempty"`
	Metadata          Metadata    `json:"metadata,omitempty"`
}

// QuestionSet is an ordered sequence of questions; order is the answer-key order
type QuestionSet struct {
	Questions []Question        `json:"questions"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Len returns the number of questions
func (s *QuestionSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Questions)
}

// Validate checks that the set can be used as output
func (s *QuestionSet) Validate() error {
	if s.Len() == 0 {
		return fmt.Errorf("question set must contain at least one question")
	}
	return nil
}

// Clone returns a deep copy so callers can correct a set without touching the original
func (s *QuestionSet) Clone() *QuestionSet {
	if s == nil {
		return nil
	}
	out := &QuestionSet{Questions: make([]Question, len(s.Questions))}
	for i, q := range s.Questions {
		out.Questions[i] = q.Clone()
	}
	if s.Metadata != nil {
		out.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// Clone returns a deep copy of the question
func (q Question) Clone() Question {
	c := q
	if q.Choices != nil {
		c.Choices = append([]string(nil), q.Choices...)
	}
	if q.Pairs != nil {
		c.Pairs = append([]MatchPair(nil), q.Pairs...)
	}
	if q.Metadata.Tags != nil {
		c.Metadata.Tags = append([]string(nil), q.Metadata.Tags...)
	}
	return c
}

// NumericAnswer parses the declared answer as a real number
func (q Question) NumericAnswer() (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(q.DeclaredAnswer), 64)
	if err != nil {
		return 0, fmt.Errorf("answer %q is not a number: %w", q.DeclaredAnswer, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("answer %q is not a real number", q.DeclaredAnswer)
	}
	return v, nil
}

// BoolAnswer parses the declared answer of a true/false question
func (q Question) BoolAnswer() (bool, error) {
	switch strings.ToLower(strings.TrimSpace(q.DeclaredAnswer)) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, fmt.Errorf("answer %q is neither true nor false", q.DeclaredAnswer)
}

// CorrectChoiceIndex resolves the declared answer of a multiple choice question to a choice index.
// The answer may be the choice text, a letter (A, B, ...) or a zero-based index.
func (q Question) CorrectChoiceIndex() (int, bool) {
	answer := strings.TrimSpace(q.DeclaredAnswer)
	if answer == "" {
		return -1, false
	}
	for i, c := range q.Choices {
		if strings.TrimSpace(c) == answer {
			return i, true
		}
	}
	if len(answer) == 1 {
		letter := strings.ToUpper(answer)[0]
		if letter >= 'A' && letter <= 'Z' {
			idx := int(letter - 'A')
			return idx, idx < len(q.Choices)
		}
	}
	if idx, err := strconv.Atoi(answer); err == nil {
		return idx, idx >= 0 && idx < len(q.Choices)
	}
	return -1, false
}

// ChoiceLetter returns the letter used for the choice at index i (A, B, ...)
func ChoiceLetter(i int) string {
	if i < 0 || i >= 26 {
		return strconv.Itoa(i + 1)
	}
	return string(rune('A' + i))
}

// Label returns a short human-readable identifier for the question at index i
func (q Question) Label(i int) string {
	if q.Title != "" {
		return fmt.Sprintf("question %d (%s)", i+1, q.Title)
	}
	return fmt.Sprintf("question %d", i+1)
}

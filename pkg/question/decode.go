package question

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// FieldError describes a field that is present but has the wrong shape
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Field name aliases seen across providers, canonical name first
var fieldAliases = map[string][]string{
	"type":               {"type", "kind", "question_type", "questionType"},
	"title":              {"title", "name"},
	"question_text":      {"question_text", "questionText", "prompt", "question", "text", "stem"},
	"choices":            {"choices", "options", "answers"},
	"pairs":              {"pairs", "matches"},
	"correct_answer":     {"correct_answer", "correctAnswer", "answer", "solution"},
	"feedback_correct":   {"feedback_correct", "correct_feedback", "feedbackCorrect", "explanation"},
	"feedback_incorrect": {"feedback_incorrect", "incorrect_feedback", "feedbackIncorrect"},
	"tolerance":          {"tolerance"},
	"points":             {"points", "score", "grade"},
	"metadata":           {"metadata", "meta"},
}

// lookup returns the first present alias of a canonical field
func lookup(entry map[string]any, field string) (any, bool) {
	for _, name := range fieldAliases[field] {
		if v, ok := entry[name]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// Present reports whether the entry carries a non-null value for the canonical field
func Present(entry map[string]any, field string) bool {
	_, ok := lookup(entry, field)
	return ok
}

// Decode converts one loosely-typed document entry into a Question.
// Shape problems are returned alongside the best-effort Question; missing fields are not
// reported here (that is the validator's job, since it depends on the kind).
func Decode(entry map[string]any) (Question, []FieldError) {
	var q Question
	var problems []FieldError
	bad := func(field, format string, args ...any) {
		problems = append(problems, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if v, ok := lookup(entry, "type"); ok {
		if s, ok := scalarString(v); ok {
			q.Kind = ParseKind(s)
		} else {
			bad("type", "must be text")
		}
	}
	textFields := []struct {
		name string
		dst  *string
	}{
		{"title", &q.Title},
		{"question_text", &q.PromptText},
		{"feedback_correct", &q.FeedbackCorrect},
		{"feedback_incorrect", &q.FeedbackIncorrect},
	}
	for _, f := range textFields {
		if v, ok := lookup(entry, f.name); ok {
			if s, ok := v.(string); ok {
				*f.dst = s
			} else {
				bad(f.name, "must be text")
			}
		}
	}

	if v, ok := lookup(entry, "correct_answer"); ok {
		if s, ok := scalarString(v); ok {
			q.DeclaredAnswer = s
		} else if list, ok := v.([]any); ok && len(list) == 1 {
			if s, ok := scalarString(list[0]); ok {
				q.DeclaredAnswer = s
			}
		} else {
			bad("correct_answer", "must be a single value")
		}
	}

	if v, ok := lookup(entry, "choices"); ok {
		choices, answer, err := decodeChoices(v)
		if err != nil {
			bad("choices", "%v", err)
		}
		q.Choices = choices
		if q.DeclaredAnswer == "" && answer != "" {
			q.DeclaredAnswer = answer
		}
	}

	if v, ok := lookup(entry, "pairs"); ok {
		pairs, err := decodePairs(v)
		if err != nil {
			bad("pairs", "%v", err)
		}
		q.Pairs = pairs
	}

	if v, ok := lookup(entry, "tolerance"); ok {
		f, err := number(v)
		if err != nil {
			bad("tolerance", "must be a number")
		}
		q.Tolerance = f
	}
	q.Points = 1
	if v, ok := lookup(entry, "points"); ok {
		f, err := number(v)
		if err != nil {
			bad("points", "must be a number")
		} else {
			q.Points = f
		}
	}

	q.Metadata = decodeMetadata(entry)
	return q, problems
}

// DecodeSet converts a parsed document into a QuestionSet. Entries that are not objects are
// reported by index and kept as empty questions so positions stay aligned with the source.
func DecodeSet(doc map[string]any) (*QuestionSet, map[int][]FieldError) {
	set := &QuestionSet{}
	problems := make(map[int][]FieldError)

	items, _ := doc["questions"].([]any)
	for i, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			set.Questions = append(set.Questions, Question{})
			problems[i] = append(problems[i], FieldError{Field: "question", Message: "entry is not an object"})
			continue
		}
		q, errs := Decode(entry)
		set.Questions = append(set.Questions, q)
		if len(errs) > 0 {
			problems[i] = errs
		}
	}

	if meta, ok := doc["metadata"].(map[string]any); ok {
		set.Metadata = make(map[string]string, len(meta))
		for k, v := range meta {
			if s, ok := scalarString(v); ok {
				set.Metadata[k] = s
			}
		}
	}
	return set, problems
}

func decodeChoices(v any) ([]string, string, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, "", fmt.Errorf("must be a list")
	}
	choices := make([]string, 0, len(list))
	answer := ""
	for i, item := range list {
		switch c := item.(type) {
		case map[string]any:
			text, _ := scalarString(firstOf(c, "text", "option", "value", "label"))
			choices = append(choices, text)
			if correct, ok := firstOf(c, "correct", "is_correct", "isCorrect").(bool); ok && correct && answer == "" {
				answer = text
			}
		default:
			s, ok := scalarString(item)
			if !ok {
				return choices, answer, fmt.Errorf("entry %d must be text", i+1)
			}
			choices = append(choices, s)
		}
	}
	return choices, answer, nil
}

func decodePairs(v any) ([]MatchPair, error) {
	var pairs []MatchPair
	switch p := v.(type) {
	case []any:
		for i, item := range p {
			m, ok := item.(map[string]any)
			if !ok {
				return pairs, fmt.Errorf("entry %d must be an object", i+1)
			}
			left, _ := scalarString(firstOf(m, "left", "prompt", "term", "question"))
			right, _ := scalarString(firstOf(m, "right", "answer", "definition", "match"))
			pairs = append(pairs, MatchPair{Left: left, Right: right})
		}
	case map[string]any:
		lefts := make([]string, 0, len(p))
		for left := range p {
			lefts = append(lefts, left)
		}
		sort.Strings(lefts)
		for _, left := range lefts {
			right, _ := scalarString(p[left])
			pairs = append(pairs, MatchPair{Left: left, Right: right})
		}
	default:
		return nil, fmt.Errorf("must be a list of pairs")
	}
	return pairs, nil
}

func decodeMetadata(entry map[string]any) Metadata {
	var md Metadata
	sources := []map[string]any{entry}
	if nested, ok := lookup(entry, "metadata"); ok {
		if m, ok := nested.(map[string]any); ok {
			sources = append([]map[string]any{m}, sources...)
		}
	}
	for _, src := range sources {
		if md.Topic == "" {
			md.Topic, _ = scalarString(src["topic"])
		}
		if md.Subtopic == "" {
			md.Subtopic, _ = scalarString(src["subtopic"])
		}
		if md.Difficulty == "" {
			md.Difficulty, _ = scalarString(src["difficulty"])
		}
		if tags, ok := src["tags"].([]any); ok && md.Tags == nil {
			for _, t := range tags {
				if s, ok := scalarString(t); ok {
					md.Tags = append(md.Tags, s)
				}
			}
		}
	}
	return md
}

func firstOf(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v
		}
	}
	return nil
}

// scalarString renders strings, numbers and booleans as text
func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case bool:
		return strconv.FormatBool(t), true
	}
	return "", false
}

func number(v any) (float64, error) {
	switch t := v.(type) {
	case json.Number:
		return t.Float64()
	case float64:
		return t, nil
	case int:
		return float64(t), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, err
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("not a real number: %q", t)
		}
		return f, nil
	}
	return 0, fmt.Errorf("not a number: %v", v)
}

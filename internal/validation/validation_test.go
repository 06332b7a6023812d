package validation

import (
	"encoding/json"
	"testing"

	"github.com/Caia-Tech/caia-quizcheck/pkg/question"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseDoc(t *testing.T, text string) map[string]any {
	t.Helper()
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &doc))
	return doc
}

func TestValidateStructure(t *testing.T) {
	tests := []struct {
		name     string
		doc      any
		expected bool
	}{
		{"NonEmptyQuestions", map[string]any{"questions": []any{map[string]any{}}}, true},
		{"EmptyQuestions", map[string]any{"questions": []any{}}, false},
		{"MissingQuestions", map[string]any{"items": []any{1}}, false},
		{"NullQuestions", map[string]any{"questions": nil}, false},
		{"QuestionsNotList", map[string]any{"questions": "none"}, false},
		{"TopLevelArray", []any{map[string]any{}}, false},
		{"Nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ValidateStructure(tt.doc))
			if tt.expected {
				assert.Empty(t, StructureProblem(tt.doc))
			} else {
				assert.NotEmpty(t, StructureProblem(tt.doc))
			}
		})
	}
}

func TestEmptyCollectionRejected(t *testing.T) {
	// Syntactically fine, structurally useless
	doc := parseDoc(t, `{"questions": [], "metadata": {"topic": "circuits"}}`)
	assert.False(t, NewValidator(Config{}).ValidateStructure(doc))
	assert.Contains(t, StructureProblem(doc), "empty")
}

func TestValidateQuestions(t *testing.T) {
	validator := NewValidator(DefaultConfig())

	tests := []struct {
		name     string
		entry    string
		errors   []string
		warnings []string
	}{
		{
			name:  "WellFormedNumerical",
			entry: `{"type":"numerical","question_text":"Find I","correct_answer":"4.0","tolerance":0.1}`,
		},
		{
			name:   "NumericalNotANumber",
			entry:  `{"type":"numerical","question_text":"Find I","correct_answer":"four"}`,
			errors: []string{"correct_answer"},
		},
		{
			name:   "NumericalInfinity",
			entry:  `{"type":"numerical","question_text":"Find I","correct_answer":"Inf"}`,
			errors: []string{"correct_answer"},
		},
		{
			name:   "NumericalNaN",
			entry:  `{"type":"numerical","question_text":"Find I","correct_answer":"NaN"}`,
			errors: []string{"correct_answer"},
		},
		{
			name:   "NumericalMissingAnswer",
			entry:  `{"type":"numerical","question_text":"Find I"}`,
			errors: []string{"correct_answer"},
		},
		{
			name:   "ToleranceNaN",
			entry:  `{"type":"numerical","question_text":"Find I","correct_answer":"2","tolerance":"NaN"}`,
			errors: []string{"tolerance"},
		},
		{
			name:   "ToleranceNotNumeric",
			entry:  `{"type":"numerical","question_text":"Find I","correct_answer":"2","tolerance":"small"}`,
			errors: []string{"tolerance"},
		},
		{
			name:  "NumericStringsAccepted",
			entry: `{"type":"numerical","question_text":"Find I","correct_answer":2.5,"tolerance":"0.05","points":"2"}`,
		},
		{
			name:  "TrueFalseBoolean",
			entry: `{"type":"true_false","question_text":"Is it?","correct_answer":true}`,
		},
		{
			name:  "TrueFalseCaseInsensitive",
			entry: `{"type":"true_false","question_text":"Is it?","correct_answer":"FALSE"}`,
		},
		{
			name:   "TrueFalseInvalid",
			entry:  `{"type":"true_false","question_text":"Is it?","correct_answer":"maybe"}`,
			errors: []string{"correct_answer"},
		},
		{
			name:  "MultipleChoiceFourChoices",
			entry: `{"type":"multiple_choice","question_text":"Pick","choices":["a","b","c","d"],"correct_answer":"B"}`,
		},
		{
			name:     "MultipleChoiceThreeChoicesWarns",
			entry:    `{"type":"multiple_choice","question_text":"Pick","choices":["a","b","c"],"correct_answer":"a"}`,
			warnings: []string{"choices"},
		},
		{
			name:     "MultipleChoiceFiveChoicesWarns",
			entry:    `{"type":"multiple_choice","question_text":"Pick","options":["a","b","c","d","e"],"answer":"e"}`,
			warnings: []string{"choices"},
		},
		{
			name:     "MultipleChoiceAnswerNotAChoice",
			entry:    `{"type":"multiple_choice","question_text":"Pick","choices":["a","b","c","d"],"correct_answer":"z1"}`,
			warnings: []string{"correct_answer"},
		},
		{
			name:   "MultipleChoiceMissingChoices",
			entry:  `{"type":"multiple_choice","question_text":"Pick","correct_answer":"a"}`,
			errors: []string{"choices"},
		},
		{
			name:   "MultipleChoiceEmptyChoiceList",
			entry:  `{"type":"multiple_choice","question_text":"Pick","choices":[],"correct_answer":"a"}`,
			errors: []string{"choices"},
		},
		{
			name:   "ChoicesNotAList",
			entry:  `{"type":"multiple_choice","question_text":"Pick","choices":"a, b","correct_answer":"a"}`,
			errors: []string{"choices"},
		},
		{
			name:  "ChoiceObjectsWithCorrectFlag",
			entry: `{"type":"multiple_choice","question_text":"Pick","choices":[{"text":"a"},{"text":"b","correct":true},{"text":"c"},{"text":"d"}]}`,
		},
		{
			name:  "MatchingPairs",
			entry: `{"type":"matching","question_text":"Match","pairs":[{"left":"V","right":"volt"},{"left":"A","right":"ampere"}]}`,
		},
		{
			name:   "MatchingSinglePair",
			entry:  `{"type":"matching","question_text":"Match","pairs":[{"left":"V","right":"volt"}]}`,
			errors: []string{"pairs"},
		},
		{
			name:   "MatchingIncompletePair",
			entry:  `{"type":"matching","question_text":"Match","pairs":[{"left":"V","right":"volt"},{"left":"A"}]}`,
			errors: []string{"pairs"},
		},
		{
			name:   "OrderingTooShort",
			entry:  `{"type":"ordering","question_text":"Order","choices":["only"]}`,
			errors: []string{"choices"},
		},
		{
			name:  "EssayNeedsNothingElse",
			entry: `{"type":"essay","question_text":"Discuss"}`,
		},
		{
			name:   "ShortAnswerMissingAnswer",
			entry:  `{"type":"short_answer","question_text":"Name it","correct_answer":""}`,
			errors: []string{"correct_answer"},
		},
		{
			name:   "UnknownKind",
			entry:  `{"type":"hotspot","question_text":"Click"}`,
			errors: []string{"type"},
		},
		{
			name:     "MissingTypeAndText",
			entry:    `{"correct_answer":"1"}`,
			errors:   []string{"type"},
			warnings: []string{"question_text"},
		},
		{
			name:  "KindAliases",
			entry: `{"question_type":"Fill in the Blank","prompt":"The unit of R is ___","answer":"ohm"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := parseDoc(t, `{"questions":[`+tt.entry+`]}`)
			set, issues := validator.ValidateQuestions(doc)
			require.Equal(t, 1, set.Len())

			var errorFields, warningFields []string
			for _, issue := range issues {
				assert.Equal(t, 0, issue.QuestionIndex)
				assert.NotEmpty(t, issue.Message)
				if issue.Severity == SeverityError {
					errorFields = append(errorFields, issue.Field)
				} else {
					warningFields = append(warningFields, issue.Field)
				}
			}
			assert.Equal(t, tt.errors, errorFields)
			assert.Equal(t, tt.warnings, warningFields)
			assert.Equal(t, len(tt.errors) > 0, HasErrors(issues))
		})
	}
}

func TestMissingAnswerMessage(t *testing.T) {
	doc := parseDoc(t, `{"questions":[
		{"type":"essay","question_text":"a"},
		{"type":"essay","question_text":"b"},
		{"type":"numerical","question_text":"c"}
	]}`)

	set, issues := NewValidator(DefaultConfig()).ValidateQuestions(doc)
	require.Equal(t, 3, set.Len())
	require.Len(t, issues, 1)
	assert.Equal(t, 2, issues[0].QuestionIndex)
	assert.Equal(t, "question 3 is missing a required answer field (correct_answer)", issues[0].Message)
}

func TestNonObjectEntryKept(t *testing.T) {
	doc := parseDoc(t, `{"questions":["just text", {"type":"essay","question_text":"ok"}]}`)

	set, issues := NewValidator(DefaultConfig()).ValidateQuestions(doc)
	assert.Equal(t, 2, set.Len())
	require.Len(t, issues, 1)
	assert.Equal(t, 0, issues[0].QuestionIndex)
	assert.Equal(t, SeverityError, issues[0].Severity)
	assert.Equal(t, question.KindEssay, set.Questions[1].Kind)
}

func TestStricterChoiceConvention(t *testing.T) {
	validator := NewValidator(Config{ExpectedChoices: 5, MinPairs: 2, MinOrderingItems: 2})
	q := question.Question{
		Kind:           question.KindMultipleChoice,
		PromptText:     "Pick",
		Choices:        []string{"a", "b", "c", "d"},
		DeclaredAnswer: "a",
		Points:         1,
	}

	issues := validator.ValidateQuestion(0, q)
	require.Len(t, issues, 1)
	assert.Equal(t, SeverityWarning, issues[0].Severity)
	assert.Contains(t, issues[0].Message, "5 are expected")
}

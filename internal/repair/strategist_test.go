package repair

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func firstQuestion(t *testing.T, result *ParseResult) map[string]any {
	t.Helper()
	require.True(t, result.Success, "diagnostics: %v", result.Diagnostics)
	items, ok := result.Document["questions"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, items)
	q, ok := items[0].(map[string]any)
	require.True(t, ok)
	return q
}

func TestParseOrRepairDirect(t *testing.T) {
	strategist := NewStrategist()

	result := strategist.ParseOrRepair(`{"questions":[{"type":"numerical","question_text":"x","correct_answer":4.0}]}`, "auto")

	q := firstQuestion(t, result)
	assert.False(t, result.Repaired)
	assert.Empty(t, result.Recipe)
	assert.Equal(t, StageNone, result.Stage)
	assert.Equal(t, json.Number("4.0"), q["correct_answer"])
}

func TestParseOrRepairStructureFailure(t *testing.T) {
	strategist := NewStrategist()

	tests := []struct {
		name  string
		input string
	}{
		{"EmptyQuestions", `{"questions":[]}`},
		{"NoQuestions", `{"items":[{"type":"essay"}]}`},
		{"TopLevelArray", `[{"type":"essay"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := strategist.ParseOrRepair(tt.input, "openai")
			assert.False(t, result.Success)
			assert.Equal(t, StageStructure, result.Stage)
			assert.Nil(t, result.Document)
			// a clean parse is never repaired
			assert.Empty(t, result.Recipe)
			assert.False(t, result.Repaired)

			var se *StructureError
			assert.True(t, errors.As(result.Err, &se))
			assert.NotEmpty(t, result.Diagnostics)
		})
	}
}

func TestParseOrRepairRecipes(t *testing.T) {
	strategist := NewStrategist()

	tests := []struct {
		name           string
		hint           string
		input          string
		expectedRecipe string
		field          string
		expected       string
	}{
		{
			name:           "TrailingCommas",
			hint:           "gpt-4o",
			input:          `{"questions":[{"type":"essay","question_text":"Explain",},],}`,
			expectedRecipe: "openai",
			field:          "question_text",
			expected:       "Explain",
		},
		{
			name:           "BlockMath",
			hint:           "Gemini 1.5 Pro",
			input:          `{"questions":[{"type":"essay","question_text":"Compute \[x^2\]"}]}`,
			expectedRecipe: "google",
			field:          "question_text",
			expected:       `Compute \(x^2\)`,
		},
		{
			name:           "BareKeys",
			hint:           "mistral-large",
			input:          `{questions:[{type:"essay", 'question_text': "Explain"}]}`,
			expectedRecipe: "mistral",
			field:          "question_text",
			expected:       "Explain",
		},
		{
			name:           "MarkdownEscapes",
			hint:           "ChatGPT",
			input:          `{"questions":[{"type":"short\_answer","question_text":"x","correct_answer":"a\*b"}]}`,
			expectedRecipe: "openai",
			field:          "type",
			expected:       "short_answer",
		},
		{
			name:           "StrayBackslashes",
			hint:           "deepseek-r1",
			input:          `{"questions":[{"type":"essay","question_text":"\alpha and \underline{x}"}]}`,
			expectedRecipe: "deepseek",
			field:          "question_text",
			expected:       `\alpha and \underline{x}`,
		},
		{
			name:           "ApologeticPreamble",
			hint:           "auto",
			input:          `I'm sorry {for the confusion}. Here it is: {"questions":[{"type":"essay","question_text":"x"}]}`,
			expectedRecipe: "generic",
			field:          "question_text",
			expected:       "x",
		},
		{
			name: "LeakedContext",
			hint: "claude-3-5-sonnet",
			input: "{\"questions\":[\n{\"type\":\"essay\",\"question_text\":\"x\"},\n" +
				"User: can you add one more?\n{\"type\":\"essay\",\"question_text\":\"y\"}]}",
			expectedRecipe: "anthropic",
			field:          "question_text",
			expected:       "x",
		},
		{
			name:           "TrailingContent",
			hint:           "",
			input:          `{"questions":[{"type":"essay","question_text":"x"}]} {"note": "second object"}`,
			expectedRecipe: "generic",
			field:          "type",
			expected:       "essay",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := strategist.ParseOrRepair(tt.input, tt.hint)
			q := firstQuestion(t, result)
			assert.True(t, result.Repaired)
			assert.Equal(t, tt.expectedRecipe, result.Recipe)
			assert.NotEmpty(t, result.RulesApplied)
			assert.Equal(t, tt.expected, q[tt.field])
		})
	}
}

func TestParseOrRepairSyntaxFailure(t *testing.T) {
	strategist := NewStrategist()

	result := strategist.ParseOrRepair("{\n  \"questions\": [}", "auto")

	assert.False(t, result.Success)
	assert.Equal(t, StageSyntax, result.Stage)
	assert.Equal(t, "generic", result.Recipe)
	require.Error(t, result.Err)

	var se *SyntaxError
	require.True(t, errors.As(result.Err, &se))
	assert.Equal(t, 2, se.Line)
	assert.Equal(t, 17, se.Column)
	assert.Contains(t, result.Diagnostics[len(result.Diagnostics)-1], "could not find a complete structured block")
}

func TestParse(t *testing.T) {
	t.Run("NumbersKept", func(t *testing.T) {
		doc, err := Parse(`{"a": 0.776}`)
		require.NoError(t, err)
		assert.Equal(t, json.Number("0.776"), doc.(map[string]any)["a"])
	})

	t.Run("Empty", func(t *testing.T) {
		_, err := Parse("   ")
		var se *SyntaxError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, 1, se.Line)
	})

	t.Run("TrailingData", func(t *testing.T) {
		_, err := Parse("{\"a\":1}\n  extra")
		var se *SyntaxError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, 2, se.Line)
		assert.Equal(t, 3, se.Column)
	})

	t.Run("Truncated", func(t *testing.T) {
		_, err := Parse(`{"a":[1,2`)
		var se *SyntaxError
		require.True(t, errors.As(err, &se))
		assert.Contains(t, se.Error(), "line 1")
	})
}

func TestRecipeName(t *testing.T) {
	tests := []struct {
		hint     string
		expected string
	}{
		{"", "generic"},
		{"auto", "generic"},
		{"AUTO", "generic"},
		{"openai", "openai"},
		{"gpt-4-turbo", "openai"},
		{"ChatGPT", "openai"},
		{"anthropic", "anthropic"},
		{"claude-3-opus", "anthropic"},
		{"google", "google"},
		{"gemini-pro", "google"},
		{"deepseek-chat", "deepseek"},
		{"mistral-small", "mistral"},
		{"llama-3", "generic"},
	}

	for _, tt := range tests {
		t.Run(tt.hint, func(t *testing.T) {
			assert.Equal(t, tt.expected, RecipeName(tt.hint))
		})
	}
}

func TestRecipesNonDestructive(t *testing.T) {
	valid := []string{
		`{"questions":[{"type":"essay","question_text":"x"}]}`,
		"{\n  \"questions\": [\n    {\"type\": \"numerical\", \"correct_answer\": -1.5e3, \"ok\": true, \"n\": null}\n  ]\n}\n",
		`{"text":"C:\\path\\[x\\]","s":"User: hi","u":"\u00b0 and \n","k":"a, b: c","arr":[[],{}]}`,
		`  {"quote":"she said \"hi\", {then} left","empty":{}}`,
		`{}`,
		`[{"questions":[{"type":"essay","question_text":"x"}]}]`,
		`[1, {"a": []}]`,
		`"see {} and {\"a\": 1}"`,
		`42`,
		`true`,
	}

	for name, recipe := range DefaultRecipes() {
		for _, text := range valid {
			before, err := Parse(text)
			require.NoError(t, err)

			after, applied := recipe.Apply(text)
			assert.Equal(t, text, after, "recipe %s changed valid input", name)
			assert.Empty(t, applied, "recipe %s", name)

			reparsed, err := Parse(after)
			require.NoError(t, err)
			assert.Equal(t, before, reparsed)
		}
	}
}

func TestRulesIdempotent(t *testing.T) {
	broken := []string{
		`{questions:[{'type':"essay",},],} trailing`,
		`Sorry! {"q":"\[a\] \_b\_ \alpha \u12"}`,
		"{\"q\":[\nAssistant: hi\n1,\n]}",
		`{"q":"\\\[ok"}`,
	}

	for _, rule := range Rules() {
		for _, text := range broken {
			once := rule.Apply(text)
			assert.Equal(t, once, rule.Apply(once), "rule %s on %q", rule.Name, text)
		}
	}
}

func TestDefaultRecipesComplete(t *testing.T) {
	recipes := DefaultRecipes()
	for _, name := range []string{"generic", "openai", "anthropic", "google", "deepseek", "mistral"} {
		recipe, ok := recipes[name]
		require.True(t, ok, name)
		assert.NotEmpty(t, recipe.Rules)
	}
	assert.Len(t, recipes["generic"].RuleNames(), len(Rules()))
}

func TestNewStrategistWithCopiesRecipes(t *testing.T) {
	custom := map[string]Recipe{"openai": DefaultRecipes()["openai"]}
	strategist := NewStrategistWith(custom, nil)

	assert.Len(t, custom, 1)
	assert.Equal(t, "openai", strategist.Recipe("gpt-4o").Name)
	assert.Equal(t, GenericRecipe, strategist.Recipe("llama").Name)

	assert.NotPanics(t, func() {
		fallback := NewStrategistWith(nil, nil)
		assert.Equal(t, GenericRecipe, fallback.Recipe("gpt-4o").Name)
	})
}

func TestStripPreamble(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Prose", `Sure! Here you go: {"questions":[]}`, `{"questions":[]}`},
		{"Punctuation", "---\n{\"questions\":[]}", `{"questions":[]}`},
		{"NoPreamble", `{"questions":[]}`, `{"questions":[]}`},
		{"ValidArray", `[{"questions":[]}]`, `[{"questions":[]}]`},
		{"BrokenArray", `[{"questions":[],}]`, `[{"questions":[],}]`},
		{"ValidString", `"note {} here"`, `"note {} here"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, stripPreamble(tt.input))
		})
	}
}

package repair

import (
	"fmt"
	"strings"
)

// GenericRecipe is used when the provider hint is empty, "auto" or unrecognized
const GenericRecipe = "generic"

// Recipe is a named, ordered list of rules targeting one provider's failure signature
type Recipe struct {
	Name  string
	Rules []Rule
}

// Apply runs every rule in order and returns the rewritten text with the names of rules that changed it
func (r Recipe) Apply(text string) (string, []string) {
	applied := []string{}
	for _, rule := range r.Rules {
		after := rule.Apply(text)
		if after != text {
			applied = append(applied, rule.Name)
			text = after
		}
	}
	return text, applied
}

// RuleNames lists the rules of the recipe in order
func (r Recipe) RuleNames() []string {
	names := make([]string, len(r.Rules))
	for i, rule := range r.Rules {
		names[i] = rule.Name
	}
	return names
}

// providerAliases maps hint substrings to recipe names, checked in order
var providerAliases = []struct {
	recipe  string
	aliases []string
}{
	{"openai", []string{"openai", "chatgpt", "gpt"}},
	{"anthropic", []string{"anthropic", "claude"}},
	{"google", []string{"google", "gemini", "bard"}},
	{"deepseek", []string{"deepseek"}},
	{"mistral", []string{"mistral", "mixtral"}},
}

var recipeRules = map[string][]string{
	// markdown-flavoured escapes and stray LaTeX backslashes
	"openai": {
		"strip_preamble", "strip_markdown_escapes", "escape_stray_backslashes",
		"remove_trailing_commas", "trim_trailing_content",
	},
	// apologetic preambles and conversation turns bleeding into the document
	"anthropic": {
		"strip_preamble", "strip_leaked_context", "escape_stray_backslashes",
		"remove_trailing_commas", "trim_trailing_content",
	},
	// block math that breaks string delimiters, loose keys
	"google": {
		"collapse_block_math", "strip_markdown_escapes", "escape_stray_backslashes",
		"quote_bare_keys", "remove_trailing_commas", "trim_trailing_content",
	},
	"deepseek": {
		"strip_preamble", "collapse_block_math", "escape_stray_backslashes",
		"remove_trailing_commas", "trim_trailing_content",
	},
	"mistral": {
		"strip_preamble", "escape_stray_backslashes", "quote_bare_keys",
		"remove_trailing_commas", "trim_trailing_content",
	},
	GenericRecipe: {
		"strip_preamble", "strip_leaked_context", "collapse_block_math", "strip_markdown_escapes",
		"escape_stray_backslashes", "quote_bare_keys", "remove_trailing_commas", "trim_trailing_content",
	},
}

// DefaultRecipes builds the recipe table from the rule catalogue
func DefaultRecipes() map[string]Recipe {
	byName := make(map[string]Rule)
	for _, rule := range Rules() {
		byName[rule.Name] = rule
	}
	recipes := make(map[string]Recipe, len(recipeRules))
	for name, ruleNames := range recipeRules {
		recipe := Recipe{Name: name}
		for _, ruleName := range ruleNames {
			rule, ok := byName[ruleName]
			if !ok {
				panic(fmt.Sprintf("recipe %s references unknown rule %s", name, ruleName))
			}
			recipe.Rules = append(recipe.Rules, rule)
		}
		recipes[name] = recipe
	}
	return recipes
}

// RecipeName resolves a provider hint such as "gpt-4o" or "Claude 3.5" to a recipe name
func RecipeName(hint string) string {
	hint = strings.ToLower(strings.TrimSpace(hint))
	if hint == "" || hint == "auto" {
		return GenericRecipe
	}
	for _, p := range providerAliases {
		for _, alias := range p.aliases {
			if strings.Contains(hint, alias) {
				return p.recipe
			}
		}
	}
	return GenericRecipe
}

package notation

import (
	"regexp"
	"strings"
)

// Class orders rules; every rule of a class runs before any rule of the next
type Class int

const (
	ClassCompoundSymbol Class = iota + 1
	ClassUnitSymbol
	ClassEscape
	ClassLiteral
)

func (c Class) String() string {
	switch c {
	case ClassCompoundSymbol:
		return "compound_symbol"
	case ClassUnitSymbol:
		return "unit_symbol"
	case ClassEscape:
		return "escape"
	case ClassLiteral:
		return "literal"
	}
	return "unknown"
}

// Rule is one notation fix. Pattern rules use Replacement as a regexp template unless Rewrite is
// set; literal rules replace any of Literals with Markup. Accept, when set, vetoes single matches;
// m holds the submatch indexes into text.
type Rule struct {
	ID          string
	Class       Class
	Description string
	Pattern     *regexp.Regexp
	Replacement string
	Rewrite     func(groups []string) string
	Accept      func(text string, m []int) bool
	Literals    []string
	Markup      string
}

// mathVocabulary is the set of commands whose doubled escape is collapsed
var mathVocabulary = []string{
	"frac", "dfrac", "tfrac", "sqrt", "text", "textbf", "mathrm", "mathbf", "mathit", "operatorname",
	"alpha", "beta", "gamma", "Gamma", "delta", "Delta", "epsilon", "varepsilon", "zeta", "eta",
	"theta", "Theta", "lambda", "Lambda", "mu", "nu", "xi", "pi", "Pi", "rho", "sigma", "Sigma",
	"tau", "phi", "Phi", "varphi", "chi", "psi", "Psi", "omega", "Omega",
	"arcsin", "arccos", "arctan", "sinh", "cosh", "tanh", "sin", "cos", "tan", "sec", "csc", "cot",
	"log", "ln", "exp", "lim", "sum", "prod", "int", "partial", "nabla",
	"times", "cdot", "div", "pm", "mp", "approx", "propto", "neq", "leq", "geq", "le", "ge", "ll", "gg",
	"infty", "circ", "angle", "perp", "parallel", "rightarrow", "leftarrow", "Rightarrow",
	"leftrightarrow", "to", "left", "right", "quad", "qquad", "cdots", "ldots", "hat", "bar", "vec",
	"overline", "underline", "boxed", "binom",
}

// DefaultRules returns the notation rules in priority order. The slice is freshly built on every
// call; a Corrector keeps its own copy.
func DefaultRules() []Rule {
	return []Rule{
		// class 1
		{
			ID:          "micro_unit",
			Class:       ClassCompoundSymbol,
			Description: "Micro prefix before a unit rewritten as \\mu\\,<unit>",
			Pattern: regexp.MustCompile(`(?:(^|[^A-Za-z\\])mu|\\+mu|\x{03BC}|\x{00B5})` +
				`(?:\s|~|\\[,;!]|\{\})*` +
				`(\\+(?:text|mathrm)\{[^{}]*\}|\\+Omega\b|\x{03A9}|\x{2126})`),
			Rewrite: func(groups []string) string {
				return groups[1] + `\mu\,` + canonicalUnit(groups[2])
			},
		},

		// class 2
		{
			ID:          "ohm_command",
			Class:       ClassUnitSymbol,
			Description: "Non-standard \\ohm command rewritten as \\Omega",
			Pattern:     regexp.MustCompile(`\\+[oO]hm\b`),
			Replacement: `\Omega`,
		},
		{
			ID:          "bare_omega",
			Class:       ClassUnitSymbol,
			Description: "Omega missing its escape prefix",
			Pattern:     regexp.MustCompile(`(^|[^\\A-Za-z])Omega\b`),
			Replacement: `${1}\Omega`,
		},
		{
			ID:          "bare_circ",
			Class:       ClassUnitSymbol,
			Description: "Degree superscript missing its escape prefix (^circ)",
			Pattern:     regexp.MustCompile(`\^(?:\{circ\}|circ\b)`),
			Replacement: `^\circ`,
		},
		{
			ID:          "degree_command",
			Class:       ClassUnitSymbol,
			Description: "Non-standard \\degree command rewritten as ^\\circ",
			Pattern:     regexp.MustCompile(`\^?\\+(?:text)?degree\b`),
			Replacement: `^\circ`,
		},

		// class 3
		{
			ID:          "double_escape",
			Class:       ClassEscape,
			Description: "Math command emitted with two or more backslashes",
			Pattern:     regexp.MustCompile(`\\{2,}(` + strings.Join(mathVocabulary, "|") + `)(\b|_)`),
			Replacement: `\${1}${2}`,
		},
		{
			ID:          "formfeed_escape",
			Class:       ClassEscape,
			Description: "\\f decoded as a form feed (\\frac, \\forall)",
			Pattern:     regexp.MustCompile(`\f(rac|orall)`),
			Replacement: `\f${1}`,
		},
		{
			ID:          "backspace_escape",
			Class:       ClassEscape,
			Description: "\\b decoded as a backspace (\\beta, \\bar, \\begin, \\boxed, \\binom)",
			Pattern:     regexp.MustCompile(`\x08(eta|ar|egin|oxed|inom)`),
			Replacement: `\b${1}`,
		},
		{
			ID:          "tab_escape",
			Class:       ClassEscape,
			Description: "\\t decoded as a tab (\\text, \\theta, \\times, \\tau)",
			Pattern:     regexp.MustCompile(`\t(ext\{|extbf\{|heta\b|imes\b|au\b|ilde\b|riangle\b|herefore\b)`),
			Replacement: `\t${1}`,
		},
		{
			ID:          "carriage_return_escape",
			Class:       ClassEscape,
			Description: "\\r decoded as a carriage return (\\rho, \\rightarrow, \\right)",
			Pattern:     regexp.MustCompile(`\r(ho|ightarrow|ight|angle)\b`),
			Replacement: `\r${1}`,
		},
		{
			ID:          "newline_escape",
			Class:       ClassEscape,
			Description: "\\n decoded as a newline (\\nabla, \\neq, \\notin, \\nu)",
			Pattern:     regexp.MustCompile(`\n(abla|eq|otin|u)(\b|[_^])`),
			Replacement: `\n${1}${2}`,
			Accept:      newlineCommand,
		},

		// class 4
		literalRule("literal_degree", "Degree sign", `^\circ`, "°"),
		literalRule("literal_ohm", "Ohm sign", `\Omega`, "\u03a9", "\u2126"),
		literalRule("literal_micro", "Micro sign", `\mu`, "\u03bc", "\u00b5"),
		literalRule("literal_plus_minus", "Plus-minus sign", `\pm`, "±"),
		literalRule("literal_less_equal", "Less-than-or-equal sign", `\leq`, "≤"),
		literalRule("literal_greater_equal", "Greater-than-or-equal sign", `\geq`, "≥"),
		literalRule("literal_not_equal", "Not-equal sign", `\neq`, "≠"),
		literalRule("literal_approx", "Approximately-equal sign", `\approx`, "≈"),
		literalRule("literal_times", "Multiplication sign", `\times`, "×"),
		literalRule("literal_divide", "Division sign", `\div`, "÷"),
		literalRule("literal_infinity", "Infinity sign", `\infty`, "∞"),
		literalRule("literal_arrow", "Right arrow", `\rightarrow`, "→"),
		literalRule("literal_delta", "Capital delta", `\Delta`, "Δ"),
		literalRule("literal_pi", "Pi", `\pi`, "π"),
		literalRule("literal_theta", "Theta", `\theta`, "θ"),
	}
}

// newlineCommand accepts \nabla and \notin anywhere. The words eq and u also start ordinary
// lines, so they count only inside math or when a subscript, superscript or group follows.
func newlineCommand(text string, m []int) bool {
	switch text[m[2]:m[3]] {
	case "abla", "otin":
		return true
	}
	if m[3] < len(text) && strings.IndexByte("_^{", text[m[3]]) >= 0 {
		return true
	}
	return mathModeAt(text, m[0]) != mathNone
}

func literalRule(id, name, markup string, literals ...string) Rule {
	return Rule{
		ID:          id,
		Class:       ClassLiteral,
		Description: name + " written as a raw character instead of " + markup,
		Literals:    literals,
		Markup:      markup,
	}
}

// canonicalUnit reduces a unit token to a single-backslash command
func canonicalUnit(unit string) string {
	switch unit {
	case "\u03a9", "\u2126":
		return `\Omega`
	}
	return `\` + strings.TrimLeft(unit, `\`)
}

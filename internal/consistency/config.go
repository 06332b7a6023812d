package consistency

import "regexp"

// Severity tiers a contradiction by how far the found value is from the declared one
type Severity string

const (
	SeverityMinor  Severity = "minor"
	SeverityMajor  Severity = "major"
	SeveritySevere Severity = "severe"
)

// Pattern is one context-tagged extraction rule. Expr must contain the named groups produced by
// numberExpr. Values whose following text matches Exclude are ignored.
type Pattern struct {
	Tag     string
	Expr    *regexp.Regexp
	Exclude *regexp.Regexp
}

// Config holds every threshold and table the detector uses
type Config struct {
	// ThresholdPercent is the smallest relative difference reported
	ThresholdPercent float64 `json:"threshold_percent" yaml:"threshold_percent"`
	// MinorLimit and MajorLimit are the upper bounds of the minor and major tiers
	MinorLimit float64 `json:"minor_limit" yaml:"minor_limit"`
	MajorLimit float64 `json:"major_limit" yaml:"major_limit"`
	// EqualityTolerance is the absolute distance at which a value counts as the declared answer
	EqualityTolerance float64 `json:"equality_tolerance" yaml:"equality_tolerance"`
	// MinMagnitude drops small values, which are overwhelmingly intermediate terms
	MinMagnitude float64 `json:"min_magnitude" yaml:"min_magnitude"`
	// KnownConstants are reasoning intermediates that recur as sub-steps
	KnownConstants []float64 `json:"known_constants" yaml:"known_constants"`
	ContextRadius  int       `json:"context_radius" yaml:"context_radius"`
	Patterns       []Pattern `json:"-" yaml:"-"`
}

// DefaultConfig returns the thresholds used for technical course material
func DefaultConfig() Config {
	return Config{
		ThresholdPercent:  2,
		MinorLimit:        10,
		MajorLimit:        25,
		EqualityTolerance: 0.001,
		MinMagnitude:      0.01,
		KnownConstants:    DefaultKnownConstants(),
		ContextRadius:     40,
		Patterns:          DefaultPatterns(),
	}
}

// StrictConfig reports rounding-level disagreement as well
func StrictConfig() Config {
	cfg := DefaultConfig()
	cfg.ThresholdPercent = 1
	cfg.MinorLimit = 5
	cfg.MajorLimit = 15
	cfg.MinMagnitude = 0.001
	return cfg
}

// DefaultKnownConstants lists constant mantissas that show up as intermediate steps
func DefaultKnownConstants() []float64 {
	return []float64{
		3.14, 3.142, 3.1416, 3.14159, 6.28, 6.283, // pi, 2pi
		2.718, 2.7183, 2.71828, // e
		9.8, 9.81, // g
		1.414, 1.4142, 1.732, 1.7321, 0.707, 0.7071, // sqrt 2, sqrt 3, 1/sqrt 2
		0.693, 0.6931, // ln 2
		6.022, 6.02, // Avogadro
		1.602, 1.6, // elementary charge
		8.854, 8.85, // vacuum permittivity
		1.38, 1.381, // Boltzmann
		0.025, 0.0259, 0.026, 25.9, 26, // thermal voltage
		0.7, 0.3, // diode drop
		100, 1000, 60, 273, 273.15,
	}
}

// numberExpr matches a decimal literal, optionally with thousands separators, and an optional
// x10^{n} or e-notation exponent
const numberExpr = `(?P<value>(?P<mantissa>-?(?:\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?|\.\d+))` +
	`(?:\s*(?:\\\(\s*)?(?:\\times|\\cdot|×|x|\*)(?:\s*\\\))?\s*10\^\{?(?P<exp>[-+−]?\d+)\}?` +
	`|(?P<sci>[eE][-+]?\d+))?)`

// mathGap tolerates math delimiters between a keyword and its number
const mathGap = `\s*(?:\\\)|\\\(|\$)?\s*(?:\\\)|\\\(|\$)?\s*`

// DefaultPatterns returns the extraction patterns in priority order
func DefaultPatterns() []Pattern {
	return []Pattern{
		{
			Tag:  "approximation",
			Expr: regexp.MustCompile(`(?:≈|\\approx|~|(?i:\bapproximately|\bapprox\.?|\babout|\broughly))` + mathGap + numberExpr),
		},
		{
			Tag:  "unit_wrapper",
			Expr: regexp.MustCompile(numberExpr + `(?:\s|~|\\[,;!]|\\mu\b|\\Omega\b)*\\(?:text|mathrm)\{`),
		},
		{
			Tag:  "assignment",
			Expr: regexp.MustCompile(`(?i:\b(?:answer|result|total|value|final))\b[^=\n]{0,40}?=` + mathGap + numberExpr),
		},
		{
			Tag:     "rounding",
			Expr:    regexp.MustCompile(`(?i:\bround(?:ed|ing|s)?)\b[^\d\n]{0,30}?` + numberExpr),
			Exclude: regexp.MustCompile(`^\s*(?i:decimal|significant|places|digits|d\.p\.|s\.f\.|sig)`),
		},
		{
			Tag: "alternative",
			Expr: regexp.MustCompile(`(?i:\balternative(?:ly)?|\bmy calculation|\bi get|\bi got|\brecalculat(?:ed|ing|ion)|\bactually|\bshould be)` +
				`[^\d\n]{0,40}?` + numberExpr),
		},
	}
}

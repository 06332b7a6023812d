package processing

import (
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// NormalizationRule is one text rewrite in the normalizer's fixed sequence.
// Rules never fail; a rule that finds nothing to do returns its input.
type NormalizationRule interface {
	Name() string
	Description() string
	Apply(content string) string
}

// NormalizationResult records what the normalizer did to a submission
type NormalizationResult struct {
	Text           string        `json:"text"`
	OriginalLength int           `json:"original_length"`
	CleanedLength  int           `json:"cleaned_length"`
	RulesApplied   []string      `json:"rules_applied"`
	ProcessingTime time.Duration `json:"processing_time"`
}

// Normalizer strips wrapper noise from raw LLM output
type Normalizer struct {
	rules        []NormalizationRule
	enabledRules map[string]bool
}

// NewNormalizer creates a normalizer with the default rule sequence
func NewNormalizer() *Normalizer {
	n := &Normalizer{
		rules:        make([]NormalizationRule, 0),
		enabledRules: make(map[string]bool),
	}

	// Order matters: each rule consumes the previous rule's output
	n.addRule(&FencedBlockRule{})
	n.addRule(&BraceSpanRule{})
	n.addRule(&SmartQuoteRule{})
	n.addRule(&LineCommentRule{})
	n.addRule(&DelimiterBalanceRule{})

	return n
}

func (n *Normalizer) addRule(rule NormalizationRule) {
	n.rules = append(n.rules, rule)
	n.enabledRules[rule.Name()] = true
}

// WithoutRule returns a copy of the normalizer with the named rule disabled
func (n *Normalizer) WithoutRule(ruleName string) *Normalizer {
	c := &Normalizer{
		rules:        n.rules,
		enabledRules: make(map[string]bool, len(n.enabledRules)),
	}
	for name, enabled := range n.enabledRules {
		c.enabledRules[name] = enabled
	}
	c.enabledRules[ruleName] = false
	return c
}

// Normalize returns the normalized text
func (n *Normalizer) Normalize(raw string) string {
	return n.NormalizeWithResult(raw).Text
}

// NormalizeWithResult normalizes raw text and reports which rules changed it
func (n *Normalizer) NormalizeWithResult(raw string) *NormalizationResult {
	start := time.Now()
	text := raw
	applied := []string{}

	for _, rule := range n.rules {
		if !n.enabledRules[rule.Name()] {
			continue
		}
		after := rule.Apply(text)
		if after != text {
			text = after
			applied = append(applied, rule.Name())
		}
	}
	text = strings.TrimSpace(text)

	result := &NormalizationResult{
		Text:           text,
		OriginalLength: len(raw),
		CleanedLength:  len(text),
		RulesApplied:   applied,
		ProcessingTime: time.Since(start),
	}

	log.Debug().
		Int("original_length", result.OriginalLength).
		Int("cleaned_length", result.CleanedLength).
		Strs("rules_applied", applied).
		Msg("Normalized submission text")

	return result
}

// GetEnabledRules returns the names of the enabled rules in application order
func (n *Normalizer) GetEnabledRules() []string {
	enabled := make([]string, 0, len(n.rules))
	for _, rule := range n.rules {
		if n.enabledRules[rule.Name()] {
			enabled = append(enabled, rule.Name())
		}
	}
	return enabled
}

// GetAvailableRules returns all rules with their descriptions
func (n *Normalizer) GetAvailableRules() map[string]string {
	rules := make(map[string]string, len(n.rules))
	for _, rule := range n.rules {
		rules[rule.Name()] = rule.Description()
	}
	return rules
}

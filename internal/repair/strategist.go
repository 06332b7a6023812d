// Package repair parses normalized LLM output and, when parsing fails, rewrites it with a
// provider-specific recipe before trying once more.
package repair

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Caia-Tech/caia-quizcheck/internal/validation"
	"github.com/rs/zerolog/log"
)

// Stage names the step a parse attempt failed at
type Stage string

const (
	StageNone      Stage = ""
	StageSyntax    Stage = "syntax"
	StageStructure Stage = "structure"
)

// SyntaxError is a parse failure with a human-usable position
type SyntaxError struct {
	Message string
	Offset  int64
	Line    int
	Column  int
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at line %d, column %d: %s", e.Line, e.Column, e.Message)
}

// StructureError reports a parsed document without a usable questions collection
type StructureError struct {
	Message string
}

func (e *StructureError) Error() string {
	return e.Message
}

// ParseResult is the outcome of ParseOrRepair. Document is set only on success.
type ParseResult struct {
	Success      bool           `json:"success"`
	Document     map[string]any `json:"-"`
	Diagnostics  []string       `json:"diagnostics"`
	Stage        Stage          `json:"stage,omitempty"`
	Recipe       string         `json:"recipe,omitempty"`
	Repaired     bool           `json:"repaired"`
	RulesApplied []string       `json:"rules_applied,omitempty"`
	Err          error          `json:"-"`
}

// StructureCheck returns an empty string for an acceptable document, or the problem otherwise
type StructureCheck func(doc any) string

// Strategist owns the recipe table; it is immutable and safe for concurrent use
type Strategist struct {
	recipes map[string]Recipe
	check   StructureCheck
}

// NewStrategist creates a strategist with the default recipes and structure check
func NewStrategist() *Strategist {
	return NewStrategistWith(DefaultRecipes(), validation.StructureProblem)
}

// NewStrategistWith creates a strategist with its own copy of recipes. A missing generic recipe
// is filled in from the defaults.
func NewStrategistWith(recipes map[string]Recipe, check StructureCheck) *Strategist {
	owned := make(map[string]Recipe, len(recipes)+1)
	for name, r := range recipes {
		owned[name] = r
	}
	if _, ok := owned[GenericRecipe]; !ok {
		owned[GenericRecipe] = DefaultRecipes()[GenericRecipe]
	}
	if check == nil {
		check = validation.StructureProblem
	}
	return &Strategist{recipes: owned, check: check}
}

// Recipe returns the recipe chosen for a provider hint
func (s *Strategist) Recipe(hint string) Recipe {
	if r, ok := s.recipes[RecipeName(hint)]; ok {
		return r
	}
	return s.recipes[GenericRecipe]
}

// ParseOrRepair parses normalized text into a document. A parse failure triggers exactly one
// repair attempt with the recipe selected by hint; a structure failure after a clean parse does not.
func (s *Strategist) ParseOrRepair(text, hint string) *ParseResult {
	result := &ParseResult{Diagnostics: []string{}}

	doc, err := Parse(text)
	if err == nil {
		return s.accept(result, doc)
	}

	recipe := s.Recipe(hint)
	result.Recipe = recipe.Name
	result.Diagnostics = append(result.Diagnostics, describeSyntax("the text could not be read as structured data", err))

	repaired, applied := recipe.Apply(text)
	result.RulesApplied = applied

	log.Debug().
		Str("hint", hint).
		Str("recipe", recipe.Name).
		Strs("rules_applied", applied).
		Err(err).
		Msg("Direct parse failed, applying repair recipe")

	if len(applied) == 0 {
		result.Diagnostics = append(result.Diagnostics,
			fmt.Sprintf("no %s repair rule applied; could not find a complete structured block", recipe.Name))
		result.Stage = StageSyntax
		result.Err = err
		return result
	}

	doc, err = Parse(repaired)
	if err != nil {
		result.Diagnostics = append(result.Diagnostics, describeSyntax(
			fmt.Sprintf("could not find a complete structured block even after the %s repairs (%s)",
				recipe.Name, strings.Join(applied, ", ")), err))
		result.Stage = StageSyntax
		result.Err = err
		return result
	}

	result.Repaired = true
	result.Diagnostics = append(result.Diagnostics,
		fmt.Sprintf("repaired the text with the %s recipe (%s)", recipe.Name, strings.Join(applied, ", ")))
	return s.accept(result, doc)
}

func (s *Strategist) accept(result *ParseResult, doc any) *ParseResult {
	if problem := s.check(doc); problem != "" {
		result.Stage = StageStructure
		result.Err = &StructureError{Message: problem}
		result.Diagnostics = append(result.Diagnostics, problem)
		return result
	}
	result.Success = true
	result.Document = doc.(map[string]any)
	return result
}

func describeSyntax(prefix string, err error) string {
	var se *SyntaxError
	if errors.As(err, &se) {
		return fmt.Sprintf("%s (line %d, column %d: %s)", prefix, se.Line, se.Column, se.Message)
	}
	return fmt.Sprintf("%s: %v", prefix, err)
}

// Parse decodes exactly one JSON value, keeping numbers as json.Number.
// Content after the value is an error.
func Parse(text string) (any, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &SyntaxError{Message: "no structured data found", Line: 1, Column: 1}
	}

	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, newSyntaxError(text, err)
	}
	offset := dec.InputOffset()
	if rest := strings.TrimSpace(text[offset:]); rest != "" {
		// skip leading whitespace so the position points at the extra content
		pos := offset + int64(len(text[offset:])-len(strings.TrimLeft(text[offset:], " \t\r\n")))
		return nil, positioned(text, pos+1, "unexpected content after the end of the document")
	}
	return doc, nil
}

func newSyntaxError(text string, err error) *SyntaxError {
	var jsonErr *json.SyntaxError
	switch {
	case errors.As(err, &jsonErr):
		return positioned(text, jsonErr.Offset, jsonErr.Error())
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return positioned(text, int64(len(text)), "the document ends before it is complete")
	}
	return positioned(text, 0, err.Error())
}

// positioned builds a SyntaxError for the byte just before offset
func positioned(text string, offset int64, message string) *SyntaxError {
	pos := int(offset) - 1
	if pos < 0 {
		pos = 0
	}
	if pos > len(text) {
		pos = len(text)
	}
	before := text[:pos]
	line := strings.Count(before, "\n") + 1
	column := pos - strings.LastIndex(before, "\n")
	return &SyntaxError{Message: message, Offset: offset, Line: line, Column: column}
}

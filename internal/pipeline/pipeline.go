// Package pipeline runs a submission through normalization, parsing and repair, structural
// validation, notation correction and consistency detection, and reports the outcome.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/Caia-Tech/caia-quizcheck/internal/consistency"
	"github.com/Caia-Tech/caia-quizcheck/internal/notation"
	"github.com/Caia-Tech/caia-quizcheck/internal/processing"
	"github.com/Caia-Tech/caia-quizcheck/internal/repair"
	"github.com/Caia-Tech/caia-quizcheck/internal/report"
	"github.com/Caia-Tech/caia-quizcheck/internal/validation"
	"github.com/Caia-Tech/caia-quizcheck/pkg/logging"
	"github.com/Caia-Tech/caia-quizcheck/pkg/question"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// AutoProvider selects the generic repair recipe
const AutoProvider = "auto"

// Stage names the last stage a run reached
type Stage string

const (
	StageNormalization Stage = "normalization"
	StageSyntax        Stage = "syntax"
	StageStructure     Stage = "structure"
	StageValidation    Stage = "validation"
	StageNotation      Stage = "notation"
	StageConsistency   Stage = "consistency"
	StageComplete      Stage = "complete"
)

// Submission is one piece of raw LLM output
type Submission struct {
	Text     string `json:"text"`
	Provider string `json:"provider,omitempty"`
	Source   string `json:"source,omitempty"`
}

// Result is the outcome of one run. Set holds the corrected questions; Original holds them as parsed.
type Result struct {
	RunID                string                   `json:"run_id"`
	Success              bool                     `json:"success"`
	Stage                Stage                    `json:"stage"`
	Source               string                   `json:"source,omitempty"`
	Provider             string                   `json:"provider"`
	Set                  *question.QuestionSet    `json:"set,omitempty"`
	Original             *question.QuestionSet    `json:"-"`
	Report               *report.ValidationReport `json:"report,omitempty"`
	Diagnostics          []string                 `json:"diagnostics"`
	Repaired             bool                     `json:"repaired"`
	Recipe               string                   `json:"recipe,omitempty"`
	RulesApplied         []string                 `json:"rules_applied,omitempty"`
	AppliedNormalization []string                 `json:"applied_normalization"`
	NormalizedText       string                   `json:"-"`
	Duration             time.Duration            `json:"duration"`
	CompletedAt          time.Time                `json:"completed_at"`
	Err                  error                    `json:"-"`
}

// Options configures the stages of a pipeline. Zero values fall back to defaults.
type Options struct {
	Validation            validation.Config
	Consistency           *consistency.Config
	NotationRules         []notation.Rule
	DisabledNormalization []string
	Recipes               map[string]repair.Recipe
	Events                *EventBus
	// DefaultProvider replaces an empty submission provider
	DefaultProvider string
	// RunTimeout bounds a single run; zero means no limit beyond ctx
	RunTimeout time.Duration
}

// Pipeline wires the stages together; it holds no per-run state and is safe for concurrent use
type Pipeline struct {
	normalizer *processing.Normalizer
	strategist *repair.Strategist
	validator  *validation.Validator
	corrector  *notation.Corrector
	detector   *consistency.Detector
	events     *EventBus
	provider   string
	timeout    time.Duration
}

// New creates a pipeline from options
func New(opts Options) *Pipeline {
	normalizer := processing.NewNormalizer()
	for _, name := range opts.DisabledNormalization {
		normalizer = normalizer.WithoutRule(name)
	}

	strategist := repair.NewStrategist()
	if opts.Recipes != nil {
		recipes := make(map[string]repair.Recipe, len(opts.Recipes))
		for name, r := range opts.Recipes {
			recipes[name] = r
		}
		strategist = repair.NewStrategistWith(recipes, validation.StructureProblem)
	}

	detectorConfig := consistency.DefaultConfig()
	if opts.Consistency != nil {
		detectorConfig = *opts.Consistency
	}

	return &Pipeline{
		normalizer: normalizer,
		strategist: strategist,
		validator:  validation.NewValidator(opts.Validation),
		corrector:  notation.NewCorrector(opts.NotationRules),
		detector:   consistency.NewDetector(detectorConfig),
		events:     opts.Events,
		provider:   opts.DefaultProvider,
		timeout:    opts.RunTimeout,
	}
}

// NewDefault creates a pipeline with every default table
func NewDefault() *Pipeline {
	return New(Options{})
}

// Process runs one submission. Syntax and structure failures are reported in the Result;
// the returned error is non-nil only when ctx ends the run early.
func (p *Pipeline) Process(ctx context.Context, sub Submission) (*Result, error) {
	start := time.Now()
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	provider := sub.Provider
	if provider == "" {
		provider = p.provider
	}
	if provider == "" {
		provider = AutoProvider
	}
	result := &Result{
		RunID:                uuid.NewString(),
		Source:               sub.Source,
		Provider:             provider,
		Stage:                StageNormalization,
		Diagnostics:          []string{},
		AppliedNormalization: []string{},
	}
	logger := logging.GetPipelineLogger(result.RunID, provider)

	finish := func() (*Result, error) {
		result.Duration = time.Since(start)
		result.CompletedAt = time.Now()
		p.publish(result)
		logger.Debug().
			Bool("success", result.Success).
			Str("stage", string(result.Stage)).
			Dur("duration", result.Duration).
			Msg("Run finished")
		return result, nil
	}
	checkpoint := func(next Stage) error {
		if err := ctx.Err(); err != nil {
			result.Err = err
			result.Duration = time.Since(start)
			result.Diagnostics = append(result.Diagnostics, fmt.Sprintf("the run was cancelled before %s", next))
			return fmt.Errorf("run %s cancelled before %s: %w", result.RunID, next, err)
		}
		result.Stage = next
		return nil
	}

	if err := checkpoint(StageNormalization); err != nil {
		return result, err
	}
	normalized := p.normalizer.NormalizeWithResult(sub.Text)
	result.NormalizedText = normalized.Text
	result.AppliedNormalization = normalized.RulesApplied

	if err := checkpoint(StageSyntax); err != nil {
		return result, err
	}
	parsed := p.strategist.ParseOrRepair(normalized.Text, provider)
	result.Diagnostics = append(result.Diagnostics, parsed.Diagnostics...)
	result.Recipe = parsed.Recipe
	result.Repaired = parsed.Repaired
	result.RulesApplied = parsed.RulesApplied
	if !parsed.Success {
		if parsed.Stage == repair.StageStructure {
			result.Stage = StageStructure
		}
		result.Err = parsed.Err
		return finish()
	}

	if err := checkpoint(StageValidation); err != nil {
		return result, err
	}
	set, issues := p.validator.ValidateQuestions(parsed.Document)
	result.Original = set
	for _, issue := range issues {
		if issue.Severity == validation.SeverityError {
			result.Diagnostics = append(result.Diagnostics, issue.Message)
		}
	}

	if err := checkpoint(StageNotation); err != nil {
		return result, err
	}
	corrected, corrections := p.corrector.CorrectSet(set)
	result.Set = corrected

	if err := checkpoint(StageConsistency); err != nil {
		return result, err
	}
	contradictions := p.detector.Detect(corrected)

	result.Report = report.Build(corrected, issues, corrections, contradictions)
	if validation.HasErrors(issues) {
		// the report is still built so the caller sees which question failed
		result.Stage = StageValidation
		result.Err = fmt.Errorf("%d question(s) failed structural validation", result.Report.Totals.Error)
		return finish()
	}

	result.Stage = StageComplete
	result.Success = true
	return finish()
}

// ProcessBatch runs submissions in order and stops at the first cancellation
func (p *Pipeline) ProcessBatch(ctx context.Context, subs []Submission) ([]*Result, error) {
	results := make([]*Result, 0, len(subs))
	for _, sub := range subs {
		result, err := p.Process(ctx, sub)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}

func (p *Pipeline) publish(result *Result) {
	if p.events == nil {
		return
	}
	eventType := EventRunCompleted
	if !result.Success {
		eventType = EventRunFailed
	}
	if err := p.events.Publish(NewRunEvent(eventType, result)); err != nil {
		log.Warn().Err(err).Str("run_id", result.RunID).Msg("Failed to publish run event")
	}
}

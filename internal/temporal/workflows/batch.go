package workflows

import (
	"fmt"
	"time"

	"github.com/Caia-Tech/caia-quizcheck/internal/report"
	"github.com/Caia-Tech/caia-quizcheck/pkg/question"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// Error types that are never retried
const (
	InvalidInputErrorType = "InvalidInputError"
	ExtractionErrorType   = "ExtractionError"
)

// DefaultMaxConcurrent bounds how many submissions run at once
const DefaultMaxConcurrent = 5

// SubmissionInput is one item of a batch. Exactly one of Text, Content or URL is used, in that order.
type SubmissionInput struct {
	Text        string `json:"text,omitempty"`
	Content     []byte `json:"content,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	URL         string `json:"url,omitempty"`
	Provider    string `json:"provider,omitempty"`
	Source      string `json:"source,omitempty"`
}

// BatchInput is the input of BatchValidationWorkflow
type BatchInput struct {
	Submissions []SubmissionInput `json:"submissions"`
	// Store keeps every successful run
	Store         bool `json:"store"`
	MaxConcurrent int  `json:"max_concurrent,omitempty"`
}

// ItemOutcome is the result of one submission
type ItemOutcome struct {
	Index       int           `json:"index"`
	Source      string        `json:"source,omitempty"`
	RunID       string        `json:"run_id,omitempty"`
	Success     bool          `json:"success"`
	Stage       string        `json:"stage,omitempty"`
	Status      report.Status `json:"status,omitempty"`
	Questions   int           `json:"questions"`
	SetID       string        `json:"set_id,omitempty"`
	Diagnostics []string      `json:"diagnostics,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// BatchResult aggregates the outcomes of a batch
type BatchResult struct {
	Items     []ItemOutcome `json:"items"`
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Stored    int           `json:"stored"`
}

// Activity types
type FetchResult struct {
	Content     []byte
	ContentType string
}

type ExtractInput struct {
	Content []byte
	Type    string
}

type ExtractResult struct {
	Text     string
	Metadata map[string]string
}

type ValidateInput struct {
	Text     string `json:"text"`
	Provider string `json:"provider,omitempty"`
	Source   string `json:"source,omitempty"`
}

// ValidateOutput carries the corrected set and its report so a later activity can store them
type ValidateOutput struct {
	RunID       string                   `json:"run_id"`
	Success     bool                     `json:"success"`
	Stage       string                   `json:"stage"`
	Provider    string                   `json:"provider"`
	Diagnostics []string                 `json:"diagnostics"`
	Set         *question.QuestionSet    `json:"set,omitempty"`
	Report      *report.ValidationReport `json:"report,omitempty"`
}

type StoreInput struct {
	Text   string         `json:"text"`
	Source string         `json:"source,omitempty"`
	Result ValidateOutput `json:"result"`
}

// Activity names for registration
const (
	FetchSubmissionActivityName    = "FetchSubmissionActivity"
	ExtractTextActivityName        = "ExtractTextActivity"
	ValidateSubmissionActivityName = "ValidateSubmissionActivity"
	StoreQuestionSetActivityName   = "StoreQuestionSetActivity"
)

// BatchValidationWorkflow validates every submission of a batch and optionally stores the
// successful ones. A failing submission never fails the batch.
func BatchValidationWorkflow(ctx workflow.Context, input BatchInput) (BatchResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting batch validation", "count", len(input.Submissions), "store", input.Store)

	if len(input.Submissions) == 0 {
		return BatchResult{}, temporal.NewNonRetryableApplicationError("batch has no submissions", InvalidInputErrorType, nil)
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts:        3,
			InitialInterval:        1 * time.Second,
			BackoffCoefficient:     2.0,
			MaximumInterval:        30 * time.Second,
			NonRetryableErrorTypes: []string{InvalidInputErrorType, ExtractionErrorType},
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	limit := input.MaxConcurrent
	if limit <= 0 {
		limit = DefaultMaxConcurrent
	}

	result := BatchResult{Items: make([]ItemOutcome, len(input.Submissions)), Total: len(input.Submissions)}
	texts := make([]string, len(input.Submissions))
	for i, sub := range input.Submissions {
		result.Items[i] = ItemOutcome{Index: i, Source: sub.Source}
		texts[i] = sub.Text
	}

	// Process in chunks so at most limit activities run at once
	for start := 0; start < len(input.Submissions); start += limit {
		end := min(start+limit, len(input.Submissions))
		chunk := input.Submissions[start:end]

		resolveTexts(ctx, chunk, start, texts, result.Items)
		outputs := validateChunk(ctx, chunk, start, texts, result.Items)
		if input.Store {
			storeChunk(ctx, chunk, start, texts, outputs, result.Items)
		}
	}

	for _, item := range result.Items {
		if item.Success {
			result.Succeeded++
		} else {
			result.Failed++
		}
		if item.SetID != "" {
			result.Stored++
		}
	}

	logger.Info("Batch validation completed", "succeeded", result.Succeeded, "failed", result.Failed, "stored", result.Stored)
	return result, nil
}

// resolveTexts fetches and extracts the submissions that were not given as text
func resolveTexts(ctx workflow.Context, chunk []SubmissionInput, offset int, texts []string, items []ItemOutcome) {
	fetches := make(map[int]workflow.Future)
	for i, sub := range chunk {
		if sub.Text == "" && len(sub.Content) == 0 && sub.URL != "" {
			fetches[i] = workflow.ExecuteActivity(ctx, FetchSubmissionActivityName, sub.URL)
		}
	}

	extracts := make(map[int]workflow.Future)
	for i, sub := range chunk {
		if sub.Text != "" {
			continue
		}
		content, contentType := sub.Content, sub.ContentType
		if f, ok := fetches[i]; ok {
			var fetched FetchResult
			if err := f.Get(ctx, &fetched); err != nil {
				items[offset+i].Error = fmt.Sprintf("fetch failed: %v", err)
				continue
			}
			content = fetched.Content
			if contentType == "" {
				contentType = fetched.ContentType
			}
		}
		if len(content) == 0 {
			items[offset+i].Error = "submission has no text, content or URL"
			continue
		}
		extracts[i] = workflow.ExecuteActivity(ctx, ExtractTextActivityName, ExtractInput{Content: content, Type: contentType})
	}

	for i := range chunk {
		f, ok := extracts[i]
		if !ok {
			continue
		}
		var extracted ExtractResult
		if err := f.Get(ctx, &extracted); err != nil {
			items[offset+i].Error = fmt.Sprintf("extraction failed: %v", err)
			continue
		}
		texts[offset+i] = extracted.Text
	}
}

func validateChunk(ctx workflow.Context, chunk []SubmissionInput, offset int, texts []string, items []ItemOutcome) map[int]ValidateOutput {
	futures := make(map[int]workflow.Future)
	for i, sub := range chunk {
		if items[offset+i].Error != "" {
			continue
		}
		futures[i] = workflow.ExecuteActivity(ctx, ValidateSubmissionActivityName, ValidateInput{
			Text:     texts[offset+i],
			Provider: sub.Provider,
			Source:   sub.Source,
		})
	}

	outputs := make(map[int]ValidateOutput)
	for i := range chunk {
		f, ok := futures[i]
		if !ok {
			continue
		}
		item := &items[offset+i]
		var out ValidateOutput
		if err := f.Get(ctx, &out); err != nil {
			item.Error = fmt.Sprintf("validation failed: %v", err)
			continue
		}
		item.RunID = out.RunID
		item.Success = out.Success
		item.Stage = out.Stage
		item.Diagnostics = out.Diagnostics
		item.Questions = out.Set.Len()
		if out.Report != nil {
			item.Status = out.Report.Status
		}
		outputs[i] = out
	}
	return outputs
}

func storeChunk(ctx workflow.Context, chunk []SubmissionInput, offset int, texts []string, outputs map[int]ValidateOutput, items []ItemOutcome) {
	futures := make(map[int]workflow.Future)
	for i, sub := range chunk {
		out, ok := outputs[i]
		if !ok || !out.Success {
			continue
		}
		futures[i] = workflow.ExecuteActivity(ctx, StoreQuestionSetActivityName, StoreInput{
			Text:   texts[offset+i],
			Source: sub.Source,
			Result: out,
		})
	}

	for i := range chunk {
		f, ok := futures[i]
		if !ok {
			continue
		}
		var setID string
		if err := f.Get(ctx, &setID); err != nil {
			items[offset+i].Error = fmt.Sprintf("store failed: %v", err)
			continue
		}
		items[offset+i].SetID = setID
	}
}

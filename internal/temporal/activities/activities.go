package activities

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Caia-Tech/caia-quizcheck/internal/pipeline"
	"github.com/Caia-Tech/caia-quizcheck/internal/storage"
	"github.com/Caia-Tech/caia-quizcheck/internal/temporal/workflows"
	"github.com/Caia-Tech/caia-quizcheck/pkg/extractor"
	"github.com/Caia-Tech/caia-quizcheck/pkg/logging"
	"github.com/Caia-Tech/caia-quizcheck/pkg/ratelimit"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
)

// maxFetchSize limits downloaded submissions
const maxFetchSize = 20 * 1024 * 1024

// Activities holds the dependencies of the batch activities. Register it with a worker
// so every method below becomes an activity named after the method.
type Activities struct {
	pipeline   *pipeline.Pipeline
	store      storage.Store
	extractor  *extractor.Engine
	httpClient *http.Client
	limiter    *ratelimit.HostLimiter
}

// NewActivities creates batch activities; store may be nil when sets are never stored
func NewActivities(p *pipeline.Pipeline, store storage.Store) *Activities {
	if p == nil {
		p = pipeline.NewDefault()
	}
	return &Activities{
		pipeline:  p,
		store:     store,
		extractor: extractor.NewEngine(),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: ratelimit.NewHostLimiter(ratelimit.DefaultHostLimiterConfig()),
	}
}

// WithFetchLimiter replaces the per-host limiter used by FetchSubmissionActivity
func (a *Activities) WithFetchLimiter(l *ratelimit.HostLimiter) *Activities {
	a.limiter = l
	return a
}

// FetchSubmissionActivity downloads a submission shared by URL
func (a *Activities) FetchSubmissionActivity(ctx context.Context, rawURL string) (workflows.FetchResult, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Fetching submission", "url", rawURL)

	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return workflows.FetchResult{}, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("unsupported URL %q", rawURL), workflows.InvalidInputErrorType, nil)
	}

	if a.limiter != nil {
		if err := a.limiter.Wait(ctx, parsed.Host); err != nil {
			return workflows.FetchResult{}, err
		}
	}

	result, err := a.fetch(ctx, rawURL)
	if a.limiter != nil {
		var appErr *temporal.ApplicationError
		switch {
		case err == nil:
			a.limiter.RecordSuccess(parsed.Host)
		case !errors.As(err, &appErr) || !appErr.NonRetryable():
			a.limiter.RecordError(parsed.Host, err)
		}
	}
	if err != nil {
		return workflows.FetchResult{}, err
	}

	logger.Info("Submission fetched", "url", rawURL, "size", len(result.Content), "contentType", result.ContentType)
	return result, nil
}

func (a *Activities) fetch(ctx context.Context, target string) (workflows.FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", target, nil)
	if err != nil {
		return workflows.FetchResult{}, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("failed to create request: %v", err), workflows.InvalidInputErrorType, err)
	}
	req.Header.Set("User-Agent", "quizcheck/1.0")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return workflows.FetchResult{}, fmt.Errorf("failed to fetch submission: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return workflows.FetchResult{}, temporal.NewNonRetryableApplicationError(err.Error(), workflows.InvalidInputErrorType, err)
		}
		return workflows.FetchResult{}, err
	}

	content, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchSize))
	if err != nil {
		return workflows.FetchResult{}, fmt.Errorf("failed to read response: %w", err)
	}

	return workflows.FetchResult{
		Content:     content,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

// ExtractTextActivity turns a document into the raw text of a submission
func (a *Activities) ExtractTextActivity(ctx context.Context, input workflows.ExtractInput) (workflows.ExtractResult, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Extracting text", "type", input.Type, "contentSize", len(input.Content))

	text, metadata, err := a.extractor.Extract(ctx, input.Content, extractor.TypeFromContentType(input.Type))
	if err != nil {
		var extractionErr *extractor.ExtractionError
		if errors.As(err, &extractionErr) {
			return workflows.ExtractResult{}, temporal.NewNonRetryableApplicationError(err.Error(), workflows.ExtractionErrorType, err)
		}
		return workflows.ExtractResult{}, fmt.Errorf("failed to extract text: %w", err)
	}

	logger.Info("Text extracted successfully", "textLength", len(text), "metadataCount", len(metadata))
	return workflows.ExtractResult{
		Text:     text,
		Metadata: metadata,
	}, nil
}

// ValidateSubmissionActivity runs one submission through the pipeline
func (a *Activities) ValidateSubmissionActivity(ctx context.Context, input workflows.ValidateInput) (workflows.ValidateOutput, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Validating submission", "provider", input.Provider, "source", input.Source, "size", len(input.Text))

	if strings.TrimSpace(input.Text) == "" {
		return workflows.ValidateOutput{}, temporal.NewNonRetryableApplicationError("submission text is empty", workflows.InvalidInputErrorType, nil)
	}

	result, err := a.pipeline.Process(ctx, pipeline.Submission{
		Text:     input.Text,
		Provider: input.Provider,
		Source:   input.Source,
	})
	if err != nil {
		return workflows.ValidateOutput{}, err
	}

	logger.Info("Submission validated", "runID", result.RunID, "success", result.Success, "stage", result.Stage)
	return workflows.ValidateOutput{
		RunID:       result.RunID,
		Success:     result.Success,
		Stage:       string(result.Stage),
		Provider:    result.Provider,
		Diagnostics: result.Diagnostics,
		Set:         result.Set,
		Report:      result.Report,
	}, nil
}

// StoreQuestionSetActivity stores the corrected set of a successful run
func (a *Activities) StoreQuestionSetActivity(ctx context.Context, input workflows.StoreInput) (string, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Storing question set", "runID", input.Result.RunID)

	if a.store == nil {
		return "", temporal.NewNonRetryableApplicationError("question set storage not configured", workflows.InvalidInputErrorType, nil)
	}
	if !input.Result.Success {
		return "", temporal.NewNonRetryableApplicationError("only successful runs can be stored", workflows.InvalidInputErrorType, nil)
	}

	rec := &storage.Record{
		Summary: storage.Summary{
			RunID:    input.Result.RunID,
			Provider: input.Result.Provider,
			Source:   input.Source,
			Metadata: map[string]string{"batch": "true"},
		},
		Text:   input.Text,
		Set:    input.Result.Set,
		Report: input.Result.Report,
	}
	if err := rec.Validate(); err != nil {
		return "", temporal.NewNonRetryableApplicationError(err.Error(), workflows.InvalidInputErrorType, err)
	}

	id, err := a.store.Save(ctx, rec)
	if err != nil {
		return "", fmt.Errorf("failed to store question set: %w", err)
	}

	info := activity.GetInfo(ctx)
	wfLogger := logging.GetWorkflowLogger(info.WorkflowExecution.ID, info.ActivityType.Name)
	wfLogger.Info().
		Str("set_id", id).
		Str("run_id", input.Result.RunID).
		Str("provider", input.Result.Provider).
		Int("questions", rec.Set.Len()).
		Msg("Question set stored")
	return id, nil
}

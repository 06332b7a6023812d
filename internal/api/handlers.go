// Package api serves the validation HTTP API.
package api

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Caia-Tech/caia-quizcheck/internal/pipeline"
	"github.com/Caia-Tech/caia-quizcheck/internal/storage"
	"github.com/Caia-Tech/caia-quizcheck/internal/temporal/workflows"
	"github.com/Caia-Tech/caia-quizcheck/pkg/export"
	"github.com/Caia-Tech/caia-quizcheck/pkg/extractor"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.temporal.io/sdk/client"
)

// Version is reported by the health endpoints
const Version = "0.1.0"

// DefaultMaxInputSize bounds submission text when no limit is configured
const DefaultMaxInputSize = 1024 * 1024

// Options wires the handlers to the pipeline and its optional collaborators
type Options struct {
	Pipeline     *pipeline.Pipeline
	Store        storage.Store
	Events       *pipeline.EventBus
	Temporal     client.Client
	TaskQueue    string
	MaxInputSize int
}

// Handlers contains the HTTP handlers for the API
type Handlers struct {
	pipeline     *pipeline.Pipeline
	store        storage.Store
	events       *pipeline.EventBus
	extractor    *extractor.Engine
	temporal     client.Client
	taskQueue    string
	maxInputSize int
}

// NewHandlers creates a new handlers instance
func NewHandlers(opts Options) *Handlers {
	p := opts.Pipeline
	if p == nil {
		p = pipeline.NewDefault()
	}
	maxInput := opts.MaxInputSize
	if maxInput <= 0 {
		maxInput = DefaultMaxInputSize
	}
	taskQueue := opts.TaskQueue
	if taskQueue == "" {
		taskQueue = "quizcheck-batch"
	}
	return &Handlers{
		pipeline:     p,
		store:        opts.Store,
		events:       opts.Events,
		extractor:    extractor.NewEngine(),
		temporal:     opts.Temporal,
		taskQueue:    taskQueue,
		maxInputSize: maxInput,
	}
}

// Health returns the service health status
func (h *Handlers) Health(c *fiber.Ctx) error {
	status := fiber.Map{
		"status":    "healthy",
		"service":   "quizcheck",
		"version":   Version,
		"timestamp": time.Now().UTC(),
		"storage":   "disabled",
		"batch":     h.temporal != nil,
	}
	if h.store != nil {
		if err := h.store.Health(c.UserContext()); err != nil {
			status["status"] = "degraded"
			status["storage"] = err.Error()
			return c.Status(fiber.StatusServiceUnavailable).JSON(status)
		}
		status["storage"] = "healthy"
	}
	return c.JSON(status)
}

// ValidateRequest is one submission to check
type ValidateRequest struct {
	Text     string `json:"text"`
	Provider string `json:"provider"`
	Source   string `json:"source"`
}

func (r ValidateRequest) submission() pipeline.Submission {
	return pipeline.Submission{Text: r.Text, Provider: r.Provider, Source: r.Source}
}

// Validate runs a submission through the pipeline and returns the result, failed or not
func (h *Handlers) Validate(c *fiber.Ctx) error {
	var req ValidateRequest
	if err := h.parseSubmission(c, &req); err != nil {
		return err
	}

	result, err := h.pipeline.Process(c.UserContext(), req.submission())
	if err != nil {
		return fiber.NewError(fiber.StatusRequestTimeout, err.Error())
	}
	return c.JSON(result)
}

// UploadResponse is the result of validating an uploaded document
type UploadResponse struct {
	Filename string            `json:"filename"`
	FileType string            `json:"file_type"`
	Size     int64             `json:"size"`
	Metadata map[string]string `json:"metadata"`
	Result   *pipeline.Result  `json:"result"`
}

// UploadDocument extracts a quiz from an uploaded file and validates it
func (h *Handlers) UploadDocument(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "No file uploaded or invalid file format",
			"details": err.Error(),
		})
	}

	fileType := extractor.TypeFromFilename(file.Filename)
	src, err := file.Open()
	if err != nil {
		log.Error().Err(err).Str("filename", file.Filename).Msg("Failed to open uploaded file")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process uploaded file",
		})
	}
	defer src.Close()

	content, err := io.ReadAll(src)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Failed to read file content",
			"details": err.Error(),
		})
	}

	text, metadata, err := h.extractor.Extract(c.UserContext(), content, fileType)
	if err != nil {
		var extractionErr *extractor.ExtractionError
		if errors.As(err, &extractionErr) {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"error":   "Could not read the uploaded file",
				"details": err.Error(),
			})
		}
		return err
	}
	if len(text) > h.maxInputSize {
		return fiber.NewError(fiber.StatusRequestEntityTooLarge, fmt.Sprintf("extracted text exceeds %d bytes", h.maxInputSize))
	}

	result, err := h.pipeline.Process(c.UserContext(), pipeline.Submission{
		Text:     text,
		Provider: c.FormValue("provider"),
		Source:   file.Filename,
	})
	if err != nil {
		return fiber.NewError(fiber.StatusRequestTimeout, err.Error())
	}

	return c.JSON(UploadResponse{
		Filename: file.Filename,
		FileType: fileType,
		Size:     file.Size,
		Metadata: metadata,
		Result:   result,
	})
}

// CreateSetResponse is returned when a set is stored
type CreateSetResponse struct {
	ID     string           `json:"id"`
	Result *pipeline.Result `json:"result"`
}

// CreateSet validates a submission and stores the corrected set when the run succeeds
func (h *Handlers) CreateSet(c *fiber.Ctx) error {
	if h.store == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "question set storage is not configured")
	}

	var req ValidateRequest
	if err := h.parseSubmission(c, &req); err != nil {
		return err
	}

	result, err := h.pipeline.Process(c.UserContext(), req.submission())
	if err != nil {
		return fiber.NewError(fiber.StatusRequestTimeout, err.Error())
	}
	if !result.Success {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":       "Submission failed validation",
			"diagnostics": result.Diagnostics,
			"result":      result,
		})
	}

	rec, err := storage.NewRecord(result, req.Text)
	if err != nil {
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	}
	id, err := h.store.Save(c.UserContext(), rec)
	if err != nil {
		log.Error().Err(err).Str("run_id", result.RunID).Msg("Failed to store question set")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Failed to store question set",
			"details": err.Error(),
		})
	}

	if h.events != nil {
		if err := h.events.Publish(pipeline.NewStoredEvent(result, id)); err != nil {
			log.Warn().Err(err).Str("set_id", id).Msg("Failed to publish stored event")
		}
	}

	log.Info().Str("set_id", id).Str("run_id", result.RunID).Int("questions", result.Set.Len()).Msg("Question set stored")
	return c.Status(fiber.StatusCreated).JSON(CreateSetResponse{ID: id, Result: result})
}

// ExportRequest is a submission to validate and export
type ExportRequest struct {
	ValidateRequest
	Format string `json:"format"`
}

// Export validates a submission and returns the corrected set in the requested format
func (h *Handlers) Export(c *fiber.Ctx) error {
	var req ExportRequest
	if err := h.parseSubmission(c, &req); err != nil {
		return err
	}
	format, err := export.ParseFormat(req.Format)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	result, err := h.pipeline.Process(c.UserContext(), req.submission())
	if err != nil {
		return fiber.NewError(fiber.StatusRequestTimeout, err.Error())
	}
	if !result.Success {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":       "Submission failed validation",
			"diagnostics": result.Diagnostics,
		})
	}

	data, err := export.Write(result.Set, format)
	if err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":   "Question set cannot be exported",
			"details": err.Error(),
		})
	}

	c.Set(fiber.HeaderContentType, format.ContentType())
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="quiz-%s%s"`, result.RunID, format.Extension()))
	return c.Send(data)
}

// BatchRequest is a batch of submissions to validate in the background
type BatchRequest struct {
	Submissions []workflows.SubmissionInput `json:"submissions"`
	Store       bool                        `json:"store"`
}

// BatchResponse represents the response for a started batch
type BatchResponse struct {
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
	Count      int    `json:"count"`
}

// CreateBatch starts a batch validation workflow
func (h *Handlers) CreateBatch(c *fiber.Ctx) error {
	if h.temporal == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "batch validation is not enabled")
	}

	var req BatchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
	}
	if len(req.Submissions) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "At least one submission is required",
		})
	}
	if req.Store && h.store == nil {
		return fiber.NewError(fiber.StatusBadRequest, "question set storage is not configured")
	}

	workflowID := fmt.Sprintf("batch-%s", uuid.New().String())
	we, err := h.temporal.ExecuteWorkflow(c.UserContext(), client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: h.taskQueue,
	}, workflows.BatchValidationWorkflow, workflows.BatchInput{
		Submissions: req.Submissions,
		Store:       req.Store,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to start batch workflow")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Failed to start batch validation",
			"details": err.Error(),
		})
	}

	log.Info().Str("workflow_id", workflowID).Int("count", len(req.Submissions)).Msg("Started batch validation workflow")
	return c.Status(fiber.StatusAccepted).JSON(BatchResponse{
		WorkflowID: we.GetID(),
		RunID:      we.GetRunID(),
		Count:      len(req.Submissions),
	})
}

// BatchStatusResponse represents the status of a batch workflow
type BatchStatusResponse struct {
	WorkflowID string                 `json:"workflow_id"`
	Status     string                 `json:"status"`
	StartTime  time.Time              `json:"start_time"`
	CloseTime  *time.Time             `json:"close_time,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Result     *workflows.BatchResult `json:"result,omitempty"`
}

// GetBatch returns the status of a batch workflow, with its result once completed
func (h *Handlers) GetBatch(c *fiber.Ctx) error {
	if h.temporal == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "batch validation is not enabled")
	}
	workflowID := c.Params("id")

	resp, err := h.temporal.DescribeWorkflowExecution(c.UserContext(), workflowID, "")
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":       "Batch not found",
			"workflow_id": workflowID,
		})
	}

	info := resp.WorkflowExecutionInfo
	response := BatchStatusResponse{
		WorkflowID: workflowID,
		Status:     info.Status.String(),
		StartTime:  info.StartTime.AsTime(),
	}
	if info.CloseTime != nil {
		closeTime := info.CloseTime.AsTime()
		response.CloseTime = &closeTime
	}

	switch response.Status {
	case "Completed":
		var result workflows.BatchResult
		if err := h.temporal.GetWorkflow(c.UserContext(), workflowID, "").Get(c.UserContext(), &result); err != nil {
			response.Error = err.Error()
		} else {
			response.Result = &result
		}
	case "Failed":
		response.Error = "Batch failed - check Temporal UI for details"
	}

	return c.JSON(response)
}

type submissionRequest interface {
	text() string
}

func (r *ValidateRequest) text() string { return r.Text }

// parseSubmission decodes the body and enforces the text limits
func (h *Handlers) parseSubmission(c *fiber.Ctx, req submissionRequest) error {
	if err := c.BodyParser(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
	}
	text := req.text()
	if strings.TrimSpace(text) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "text is required")
	}
	if len(text) > h.maxInputSize {
		return fiber.NewError(fiber.StatusRequestEntityTooLarge, fmt.Sprintf("text exceeds %d bytes", h.maxInputSize))
	}
	return nil
}

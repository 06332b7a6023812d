package presentation

import (
	"time"

	"github.com/Caia-Tech/caia-quizcheck/internal/report"
	"github.com/Caia-Tech/caia-quizcheck/internal/storage"
)

// OutputFormat represents the output format of a rendered report
type OutputFormat string

const (
	FormatJSON     OutputFormat = "json"
	FormatText     OutputFormat = "text"
	FormatMarkdown OutputFormat = "markdown"
)

// ParseOutputFormat maps a query value to a format, falling back to def when s is empty
func ParseOutputFormat(s string, def OutputFormat) (OutputFormat, bool) {
	switch s {
	case "":
		return def, true
	case "json":
		return FormatJSON, true
	case "text", "plain", "txt":
		return FormatText, true
	case "markdown", "md":
		return FormatMarkdown, true
	}
	return "", false
}

// ContentType returns the MIME type used when serving the format
func (f OutputFormat) ContentType() string {
	switch f {
	case FormatText:
		return "text/plain; charset=utf-8"
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	}
	return "application/json"
}

// RenderOptions configures report rendering
type RenderOptions struct {
	Format OutputFormat `json:"format"`
	// OnlyProblems skips questions whose status is valid
	OnlyProblems bool `json:"only_problems"`
	// MaxContextLength truncates contradiction context snippets; zero keeps them whole
	MaxContextLength int `json:"max_context_length"`
}

// CollectionOptions configures listing of stored sets
type CollectionOptions struct {
	PageSize       int           `json:"page_size"`
	PageNumber     int           `json:"page_number"`
	Status         report.Status `json:"status,omitempty"`
	Provider       string        `json:"provider,omitempty"`
	ShowStatistics bool          `json:"show_statistics"`
}

// RenderedReport is a report rendered for display
type RenderedReport struct {
	ID         string                   `json:"id"`
	Title      string                   `json:"title"`
	Status     report.Status            `json:"status"`
	Summary    string                   `json:"summary"`
	Format     OutputFormat             `json:"format"`
	Content    string                   `json:"content,omitempty"`
	Report     *report.ValidationReport `json:"report,omitempty"`
	RenderTime time.Time                `json:"render_time"`
}

// RenderedCollection is one page of stored set summaries
type RenderedCollection struct {
	Sets       []storage.Summary     `json:"sets"`
	TotalCount int                   `json:"total_count"`
	PageSize   int                   `json:"page_size"`
	PageNumber int                   `json:"page_number"`
	Statistics *CollectionStatistics `json:"statistics,omitempty"`
	RenderTime time.Time             `json:"render_time"`
}

// CollectionStatistics provides statistics about the matching sets
type CollectionStatistics struct {
	TotalSets            int                   `json:"total_sets"`
	TotalQuestions       int                   `json:"total_questions"`
	AverageQuestions     float64               `json:"average_questions"`
	StatusDistribution   map[report.Status]int `json:"status_distribution"`
	ProviderDistribution map[string]int        `json:"provider_distribution"`
	DateRange            *DateRange            `json:"date_range,omitempty"`
}

// DateRange represents a date range
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}
